package input

import (
	"image"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"panotracker/config"
	"panotracker/grid"
	"panotracker/recording"
	"panotracker/tracking"
	"panotracker/types"
)

// Key codes as returned by gocv.Window.WaitKey
const (
	KeyEscape = 27
	KeyEnter  = 13
	KeySpace  = ' '
	KeyLeft   = 2
	KeyRight  = 3
)

// Context is everything the key handlers act on
type Context struct {
	Tracker  *tracking.Tracker
	View     gocv.Mat // last rendered map view
	Video    types.VideoConfig
	Tracking types.TrackingConfig
	OutDir   string
	Logger   zerolog.Logger
}

// MapLevel returns the level the map view is drawn at. Without the pyramid
// only the full level exists.
func MapLevel(state *types.AppState, s config.Settings) grid.Level {
	if !s.Pyramidal {
		return grid.Full
	}
	return state.Level
}

// HandleEscapeKey handles the ESC key press based on current mode
func HandleEscapeKey(state *types.AppState, ctx Context) bool {
	if state.ColumnMode {
		state.ColumnMode = false
		ctx.Logger.Info().Msg("column mode left")
		return false // Don't quit
	}

	// Stop recording if active before quitting
	recording.CleanupRecording(state, ctx.Logger)
	return true // Quit program
}

// HandleMainKeys handles the main application keyboard commands
func HandleMainKeys(key int, state *types.AppState, ctx Context) bool {
	log := ctx.Logger
	switch key {
	case 'q':
		recording.CleanupRecording(state, log)
		return true

	case KeySpace:
		state.InitRequested = true

	case 'c':
		state.ShowGrid = !state.ShowGrid

	case 'x':
		state.ShowFeatures = !state.ShowFeatures

	case 'm':
		state.Level = (state.Level + 1) % grid.Level(len(grid.Levels))
		if !ctx.Tracker.Settings().Pyramidal {
			log.Info().Msg("map levels need pyramidal mode, showing full resolution")
		}

	case 'z':
		if !ctx.Tracker.Initialized() {
			log.Warn().Msg("column mode needs an initialized panorama")
			break
		}
		state.ColumnMode = true
		state.ColumnCursor = ctx.View.Cols() / 2
		log.Info().Msg("column mode: a/d or arrows move, ENTER invalidates")

	case 'r':
		ctx.Tracker.Reset()
		state.LostFrames = 0

	case 'v':
		if err := recording.ToggleRecording(state, ctx.View, ctx.Tracker.SessionID(), ctx.Video, log); err != nil {
			log.Error().Err(err).Msg("recording")
		}

	case 'p':
		path, err := recording.SaveSnapshot(ctx.View, ctx.OutDir, ctx.Tracker.SessionID())
		if err != nil {
			log.Error().Err(err).Msg("saving snapshot")
			break
		}
		log.Info().Str("file", path).Msg("snapshot saved")

	case 'g':
		paths, err := recording.SavePlots(state.History, ctx.OutDir, ctx.Tracker.SessionID())
		if err != nil {
			log.Error().Err(err).Msg("saving plots")
			break
		}
		log.Info().Strs("files", paths).Msg("plots saved")

	case 'd':
		enabled := !state.DebugMode.Load()
		state.DebugMode.Store(enabled)
		log.Info().Bool("enabled", enabled).Msg("debug overlay")
	}

	return false // Don't quit
}

// HandleColumnKeys moves the column cursor and invalidates the column
// under it
func HandleColumnKeys(key int, state *types.AppState, ctx Context) {
	width := ctx.View.Cols()
	switch key {
	case KeyLeft, 'a':
		state.ColumnCursor -= ctx.Tracking.ColumnStep
		if state.ColumnCursor < 0 {
			state.ColumnCursor = 0
		}
	case KeyRight, 'd':
		state.ColumnCursor += ctx.Tracking.ColumnStep
		if state.ColumnCursor >= width {
			state.ColumnCursor = width - 1
		}
	case KeyEnter:
		p := ColumnPoint(state, ctx.Tracker)
		if !ctx.Tracker.InvalidateColumn(p) {
			ctx.Logger.Warn().Int("x", p.X).Msg("cursor is outside the grid")
		}
	}
}

// ColumnPoint converts the cursor position on the map view into full
// resolution mosaic coordinates.
func ColumnPoint(state *types.AppState, tr *tracking.Tracker) image.Point {
	level := MapLevel(state, tr.Settings())
	window := tr.MapViewWindow(level)
	return image.Pt(window.Min.X+state.ColumnCursor, window.Min.Y).Mul(level.Factor())
}

// ProcessInput processes all keyboard input for the application
func ProcessInput(key int, state *types.AppState, ctx Context) bool {
	if key < 0 {
		return false
	}
	// Handle ESC key first
	if key == KeyEscape {
		return HandleEscapeKey(state, ctx)
	}

	if state.ColumnMode {
		if key == 'q' {
			return HandleMainKeys(key, state, ctx)
		}
		HandleColumnKeys(key, state, ctx)
		return false
	}

	return HandleMainKeys(key, state, ctx)
}

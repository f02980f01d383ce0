package ui

import (
	"fmt"
	"image"
	"image/color"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"panotracker/recording"
	"panotracker/telemetry"
	"panotracker/tracking"
	"panotracker/types"
)

var (
	Blue   = color.RGBA{B: 255}
	Red    = color.RGBA{R: 255}
	Green  = color.RGBA{G: 255}
	Yellow = color.RGBA{R: 255, G: 255}
	White  = color.RGBA{R: 255, G: 255, B: 255}
	Black  = color.RGBA{R: 0, G: 0, B: 0, A: 120}
)

// Status is what the overlays need to know about the tracker.
type Status struct {
	Initialized bool
	State       tracking.State
	Orientation tracking.Orientation
	Stats       telemetry.FrameStats
	LoopClosed  bool
}

// StatusOf reads the overlay status from tr.
func StatusOf(tr *tracking.Tracker) Status {
	return Status{
		Initialized: tr.Initialized(),
		State:       tr.State(),
		Orientation: tr.Orientation(),
		Stats:       tr.Stats(),
		LoopClosed:  tr.LoopClosed(),
	}
}

// StatusText returns the main status line and its colour
func StatusText(state *types.AppState, status Status) (string, color.RGBA) {
	switch {
	case state.ColumnMode:
		return "Column mode: a/d or arrows move, ENTER invalidates, ESC leaves", Yellow
	case !status.Initialized:
		return "Press SPACE to start the panorama", Red
	case status.State != tracking.Tracking:
		return fmt.Sprintf("Relocalizing (lost %d frames)", state.LostFrames), Red
	}
	o := status.Orientation
	text := fmt.Sprintf("yaw %.1f pitch %.1f roll %.1f  q %.3f", o.Yaw, o.Pitch, o.Roll, status.Stats.Quality)
	if status.LoopClosed {
		text += "  loop closed"
	}
	return text, Green
}

// HelpText returns the key help for the current mode
func HelpText(state *types.AppState) string {
	if state.ColumnMode {
		return "Column: a/d=move  Enter=invalidate  Esc=leave"
	}
	return "SPACE=init c=grid x=features m=level z=column r=reset v=record p=snapshot g=plot d=debug q=quit"
}

// DrawStatusMessage draws the main status message
func DrawStatusMessage(frame *gocv.Mat, state *types.AppState, status Status, config types.UIConfig, logger zerolog.Logger) {
	text, textColor := StatusText(state, status)
	if err := gocv.PutText(frame, text, image.Pt(10, 25), gocv.FontHersheyPlain, config.StatusFontSize, textColor, 2); err != nil {
		logger.Error().Err(err).Msg("adding status text")
	}
}

// DrawRecordingStatus draws the recording status and timer
func DrawRecordingStatus(frame *gocv.Mat, state *types.AppState, config types.UIConfig, logger zerolog.Logger) {
	if !state.IsRecording {
		return
	}

	duration := recording.GetRecordingDuration(state)
	recordingText := fmt.Sprintf("REC %02d:%02d", int(duration.Minutes()), int(duration.Seconds())%60)

	if err := gocv.PutText(frame, recordingText, image.Pt(10, 50), gocv.FontHersheyPlain, config.StatusFontSize, Red, 2); err != nil {
		logger.Error().Err(err).Msg("adding recording text")
	}
}

// DrawHelpText draws the compact help text in the bottom corner
func DrawHelpText(frame *gocv.Mat, state *types.AppState, config types.UIConfig, logger zerolog.Logger) {
	helpY := frame.Rows() - config.HelpOffsetY
	helpText := HelpText(state)

	// Small background for readability
	textSize := gocv.GetTextSize(helpText, gocv.FontHersheyPlain, config.HelpFontSize, 1)
	helpRect := image.Rect(5, helpY-5, textSize.X+15, helpY+textSize.Y+5)

	if err := gocv.Rectangle(frame, helpRect, Black, -1); err != nil {
		logger.Error().Err(err).Msg("drawing help background")
	}

	if err := gocv.PutText(frame, helpText, image.Pt(10, helpY+10), gocv.FontHersheyPlain, config.HelpFontSize, White, 1); err != nil {
		logger.Error().Err(err).Msg("adding help text")
	}
}

// DrawColumnCursor marks the column picked for invalidation
func DrawColumnCursor(frame *gocv.Mat, state *types.AppState, logger zerolog.Logger) {
	if !state.ColumnMode {
		return
	}
	x := state.ColumnCursor
	if err := gocv.Line(frame, image.Pt(x, 0), image.Pt(x, frame.Rows()), Yellow, 2); err != nil {
		logger.Error().Err(err).Msg("drawing column cursor")
	}
}

// DrawDebugLogs draws the debug log messages and the frame statistics
func DrawDebugLogs(frame *gocv.Mat, state *types.AppState, status Status, config types.UIConfig, logger zerolog.Logger) {
	if !state.DebugMode.Load() {
		return
	}

	state.DebugLogMutex.Lock()
	logs := make([]string, len(state.DebugLogs))
	copy(logs, state.DebugLogs)
	state.DebugLogMutex.Unlock()

	lines := append(status.Stats.Lines(), logs...)

	// Calculate position for debug logs (right side of screen)
	frameWidth := frame.Cols()
	startY := 80
	lineHeight := 18
	maxWidth := 420
	padding := 10

	debugHeight := (len(lines)+1)*lineHeight + padding*2
	debugRect := image.Rect(frameWidth-maxWidth-padding, startY-padding-lineHeight, frameWidth-padding, startY+debugHeight-padding)

	if err := gocv.Rectangle(frame, debugRect, Black, -1); err != nil {
		logger.Error().Err(err).Msg("drawing debug background")
	}

	headerText := fmt.Sprintf("Debug (%d logs):", len(logs))
	if err := gocv.PutText(frame, headerText, image.Pt(frameWidth-maxWidth, startY), gocv.FontHersheyPlain, config.DebugFontSize, Yellow, 1); err != nil {
		logger.Error().Err(err).Msg("adding debug header")
	}

	for i, line := range lines {
		y := startY + (i+1)*lineHeight

		// Truncate long messages
		if len(line) > 56 {
			line = line[:53] + "..."
		}

		if err := gocv.PutText(frame, line, image.Pt(frameWidth-maxWidth, y), gocv.FontHersheyPlain, config.DebugFontSize, White, 1); err != nil {
			logger.Error().Err(err).Msg("adding debug text")
		}
	}
}

// RenderFrame renders all UI elements on the map view
func RenderFrame(frame *gocv.Mat, state *types.AppState, status Status, config types.UIConfig, logger zerolog.Logger) {
	if frame.Empty() {
		return
	}
	DrawColumnCursor(frame, state, logger)
	DrawStatusMessage(frame, state, status, config, logger)
	DrawRecordingStatus(frame, state, config, logger)
	DrawHelpText(frame, state, config, logger)
	DrawDebugLogs(frame, state, status, config, logger)
}

// PrintStartupInstructions prints the initial control instructions
func PrintStartupInstructions() {
	fmt.Println("Controls:")
	fmt.Println("- SPACE starts the panorama (video files start on their own)")
	fmt.Println("- 'c' toggles grid lines, 'x' toggles feature markers")
	fmt.Println("- 'm' cycles the map level (full, half, quarter)")
	fmt.Println("- 'z' enters column mode: a/d or arrows move, ENTER invalidates the column, ESC leaves")
	fmt.Println("- 'r' resets the tracker")
	fmt.Println("- 'v' starts/stops recording the map view, 'p' saves a TIFF snapshot of it")
	fmt.Println("- 'g' saves orientation and quality plots")
	fmt.Println("- 'd' toggles the debug overlay")
	fmt.Println("- 'q' or ESC quits")
}

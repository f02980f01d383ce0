package recording

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
	"golang.org/x/image/tiff"

	"panotracker/telemetry"
	"panotracker/types"
)

const timestampLayout = "20060102_150405"

func fileName(session, kind, ext string, now time.Time) string {
	if len(session) > 8 {
		session = session[:8]
	}
	return fmt.Sprintf("panorama_%s_%s_%s.%s", kind, session, now.Format(timestampLayout), ext)
}

// StartRecording starts recording map views of the size of frame
func StartRecording(state *types.AppState, frame gocv.Mat, session string, config types.VideoConfig, logger zerolog.Logger) error {
	if state.IsRecording {
		return fmt.Errorf("recording already active")
	}
	if frame.Empty() {
		return fmt.Errorf("nothing to record yet")
	}

	filename := filepath.Join(config.Dir, fileName(session, "video", "mp4", time.Now()))

	// Try different codecs for better compatibility
	var vw *gocv.VideoWriter
	var err error
	var usedCodec string

	for _, fourcc := range config.Codecs {
		vw, err = gocv.VideoWriterFile(filename, fourcc, config.FPS, frame.Cols(), frame.Rows(), true)
		if err == nil {
			usedCodec = fourcc
			break
		}
	}

	if err != nil {
		return fmt.Errorf("could not create video writer with any codec: %w", err)
	}

	state.VideoWriter = vw
	state.IsRecording = true
	state.RecordingSize = image.Pt(frame.Cols(), frame.Rows())
	state.RecordingStartTime = time.Now()
	logger.Info().Str("file", filename).Str("codec", usedCodec).Msg("recording started")

	return nil
}

// StopRecording stops video recording
func StopRecording(state *types.AppState, logger zerolog.Logger) error {
	if !state.IsRecording {
		return fmt.Errorf("no active recording")
	}

	if state.VideoWriter != nil {
		if err := state.VideoWriter.Close(); err != nil {
			return fmt.Errorf("error closing video writer: %w", err)
		}
		state.VideoWriter = nil
	}

	state.IsRecording = false
	logger.Info().Dur("duration", time.Since(state.RecordingStartTime)).Msg("recording stopped")

	return nil
}

// ToggleRecording toggles video recording on/off
func ToggleRecording(state *types.AppState, frame gocv.Mat, session string, config types.VideoConfig, logger zerolog.Logger) error {
	if state.IsRecording {
		return StopRecording(state, logger)
	}
	return StartRecording(state, frame, session, config, logger)
}

// WriteFrame writes a frame to the video file if recording is active. The
// map view changes size with the level, so frames are scaled to the size
// the recording started with.
func WriteFrame(state *types.AppState, frame gocv.Mat) error {
	if !state.IsRecording || state.VideoWriter == nil || frame.Empty() {
		return nil
	}
	if frame.Cols() == state.RecordingSize.X && frame.Rows() == state.RecordingSize.Y {
		return state.VideoWriter.Write(frame)
	}
	scaled := gocv.NewMat()
	defer scaled.Close()
	gocv.Resize(frame, &scaled, state.RecordingSize, 0, 0, gocv.InterpolationLinear)
	return state.VideoWriter.Write(scaled)
}

// GetRecordingDuration returns the duration of the current recording
func GetRecordingDuration(state *types.AppState) time.Duration {
	if !state.IsRecording {
		return 0
	}
	return time.Since(state.RecordingStartTime)
}

// CleanupRecording ensures recording is properly stopped and cleaned up
func CleanupRecording(state *types.AppState, logger zerolog.Logger) {
	if state.IsRecording {
		_ = StopRecording(state, logger)
	}
}

// SaveSnapshot writes img as a deflate compressed TIFF into dir and returns
// its path.
func SaveSnapshot(img gocv.Mat, dir, session string) (string, error) {
	if img.Empty() {
		return "", fmt.Errorf("empty snapshot")
	}
	picture, err := img.ToImage()
	if err != nil {
		return "", fmt.Errorf("convert snapshot: %w", err)
	}

	path := filepath.Join(dir, fileName(session, "snapshot", "tiff", time.Now()))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}
	if err := tiff.Encode(f, picture, &tiff.Options{Compression: tiff.Deflate, Predictor: true}); err != nil {
		f.Close()
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close snapshot: %w", err)
	}
	return path, nil
}

// SavePlots writes the orientation and quality history as PNG plots into
// dir and returns their paths.
func SavePlots(history *telemetry.History, dir, session string) ([]string, error) {
	now := time.Now()
	orientation := filepath.Join(dir, fileName(session, "orientation", "png", now))
	if err := history.SaveOrientationPlot(orientation); err != nil {
		return nil, err
	}
	quality := filepath.Join(dir, fileName(session, "quality", "png", now))
	if err := history.SaveQualityPlot(quality); err != nil {
		return []string{orientation}, err
	}
	return []string{orientation, quality}, nil
}

package types

import (
	"image"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"panotracker/grid"
	"panotracker/telemetry"
)

// AppState holds the complete harness state
type AppState struct {
	// Map view overlays
	ShowGrid     bool
	ShowFeatures bool
	Level        grid.Level

	// Column invalidation
	ColumnMode   bool
	ColumnCursor int

	// Tracking requests handled by the frame loop
	InitRequested bool
	LostFrames    int

	// Video recording
	IsRecording        bool
	VideoWriter        *gocv.VideoWriter
	RecordingSize      image.Point
	RecordingStartTime time.Time

	// Frame processing
	FrameCount int
	History    *telemetry.History

	// Debug logging
	DebugMode     atomic.Bool
	DebugLogs     []string
	DebugLogMutex sync.Mutex
}

// NewAppState returns the state the harness starts in.
func NewAppState(historyLimit int) *AppState {
	return &AppState{
		ShowGrid:     true,
		ShowFeatures: true,
		Level:        grid.Full,
		History:      telemetry.NewHistory(historyLimit),
	}
}

// TrackingConfig holds harness level tracking constants
type TrackingConfig struct {
	// MaxLostFrames is how many consecutive relocalizing frames the harness
	// accepts before it starts a new panorama. Zero waits forever.
	MaxLostFrames int
	ColumnStep    int
	HistoryLimit  int
}

// DefaultTrackingConfig returns the default tracking configuration
func DefaultTrackingConfig() TrackingConfig {
	return TrackingConfig{
		MaxLostFrames: 300,
		ColumnStep:    10,
		HistoryLimit:  10000,
	}
}

// VideoConfig holds video recording configuration
type VideoConfig struct {
	FPS    float64
	Codecs []string
	Dir    string
}

// DefaultVideoConfig returns the default video configuration
func DefaultVideoConfig() VideoConfig {
	return VideoConfig{
		FPS:    30.0,
		Codecs: []string{"H264", "avc1", "x264", "mp4v"},
		Dir:    ".",
	}
}

// UIConfig holds UI configuration constants
type UIConfig struct {
	HelpFontSize   float64
	StatusFontSize float64
	HelpOffsetY    int
	MaxDebugLogs   int
	DebugFontSize  float64
}

// DefaultUIConfig returns the default UI configuration
func DefaultUIConfig() UIConfig {
	return UIConfig{
		HelpFontSize:   0.9,
		StatusFontSize: 1.2,
		HelpOffsetY:    30,
		MaxDebugLogs:   10,
		DebugFontSize:  0.8,
	}
}

// DebugLogger is the zerolog sink of the harness. Every event goes to out;
// while debug mode is on it is also kept, formatted as one line, for the
// on-screen overlay.
type DebugLogger struct {
	state   *AppState
	maxLogs int
	out     io.Writer
	console zerolog.ConsoleWriter
}

// NewDebugLogger creates a new debug logger writing through to out
func NewDebugLogger(state *AppState, maxLogs int, out io.Writer) *DebugLogger {
	d := &DebugLogger{
		state:   state,
		maxLogs: maxLogs,
		out:     out,
	}
	d.console = zerolog.ConsoleWriter{
		Out:          overlaySink{d},
		NoColor:      true,
		PartsExclude: []string{zerolog.TimestampFieldName},
	}
	return d
}

// Log adds a debug message to the log buffer
func (d *DebugLogger) Log(message string) {
	if !d.state.DebugMode.Load() {
		return
	}

	d.state.DebugLogMutex.Lock()
	defer d.state.DebugLogMutex.Unlock()

	d.state.DebugLogs = append(d.state.DebugLogs, message)
	if len(d.state.DebugLogs) > d.maxLogs {
		d.state.DebugLogs = d.state.DebugLogs[len(d.state.DebugLogs)-d.maxLogs:]
	}
}

// GetLogs returns a copy of the current debug logs
func (d *DebugLogger) GetLogs() []string {
	d.state.DebugLogMutex.Lock()
	defer d.state.DebugLogMutex.Unlock()

	logs := make([]string, len(d.state.DebugLogs))
	copy(logs, d.state.DebugLogs)
	return logs
}

// Write implements io.Writer for zerolog events
func (d *DebugLogger) Write(p []byte) (int, error) {
	if d.out != nil {
		_, _ = d.out.Write(p)
	}
	if d.state.DebugMode.Load() {
		_, _ = d.console.Write(p)
	}
	return len(p), nil
}

// Logger returns a timestamped logger writing to d.
func (d *DebugLogger) Logger() zerolog.Logger {
	return zerolog.New(d).With().Timestamp().Logger()
}

type overlaySink struct{ d *DebugLogger }

func (s overlaySink) Write(p []byte) (int, error) {
	if msg := strings.TrimSpace(string(p)); msg != "" {
		s.d.Log(msg)
	}
	return len(p), nil
}

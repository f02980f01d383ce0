package ui

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"gocv.io/x/gocv"

	"panotracker/telemetry"
	"panotracker/tracking"
	"panotracker/types"
)

func TestStatusText(t *testing.T) {
	state := types.NewAppState(0)

	text, c := StatusText(state, Status{})
	assert.Equal(t, "Press SPACE to start the panorama", text)
	assert.Equal(t, Red, c)

	status := Status{
		Initialized: true,
		State:       tracking.Tracking,
		Orientation: tracking.Orientation{Yaw: 12.34, Pitch: -1, Roll: 0.5},
		Stats:       telemetry.FrameStats{Quality: 0.0421},
		LoopClosed:  true,
	}
	text, c = StatusText(state, status)
	assert.Equal(t, "yaw 12.3 pitch -1.0 roll 0.5  q 0.042  loop closed", text)
	assert.Equal(t, Green, c)

	status.State = tracking.Relocalizing
	state.LostFrames = 7
	text, _ = StatusText(state, status)
	assert.Equal(t, "Relocalizing (lost 7 frames)", text)

	state.ColumnMode = true
	_, c = StatusText(state, status)
	assert.Equal(t, Yellow, c)
	assert.Contains(t, HelpText(state), "Enter=invalidate")
}

func TestRenderFrameDrawsOverlays(t *testing.T) {
	state := types.NewAppState(0)
	state.ColumnMode = true
	state.ColumnCursor = 100
	state.DebugMode.Store(true)
	state.DebugLogs = []string{"INF relocalized"}

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 240, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()
	RenderFrame(&frame, state, Status{Initialized: true}, types.DefaultUIConfig(), zerolog.Nop())

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	assert.Positive(t, gocv.CountNonZero(gray))
	assert.NotZero(t, frame.GetVecbAt(120, 100)[1])
}

package input

import (
	"image"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"panotracker/config"
	"panotracker/grid"
	"panotracker/synth"
	"panotracker/tracking"
	"panotracker/types"
	"panotracker/vision"
)

func newContext(t *testing.T, s config.Settings) Context {
	t.Helper()
	tr, err := tracking.New(s, tracking.WithProjector(vision.FlatProjector{}), tracking.WithMapSize(160, 160))
	require.NoError(t, err)
	t.Cleanup(tr.Close)
	view := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 160, 160, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { view.Close() })
	return Context{
		Tracker:  tr,
		View:     view,
		Video:    types.DefaultVideoConfig(),
		Tracking: types.DefaultTrackingConfig(),
		OutDir:   t.TempDir(),
		Logger:   zerolog.Nop(),
	}
}

func smallSettings() config.Settings {
	s := config.Default()
	s.Columns, s.Rows = 4, 4
	return s
}

func initialize(t *testing.T, ctx Context) {
	t.Helper()
	pano := synth.Panorama(160, 160, 3)
	defer pano.Close()
	region := pano.Region(image.Rect(20, 20, 140, 140))
	defer region.Close()
	frame := region.Clone()
	defer frame.Close()
	require.NoError(t, ctx.Tracker.Initialize(frame))
}

func TestToggles(t *testing.T) {
	ctx := newContext(t, smallSettings())
	state := types.NewAppState(0)

	assert.False(t, ProcessInput(-1, state, ctx))
	assert.False(t, ProcessInput('c', state, ctx))
	assert.False(t, state.ShowGrid)
	assert.False(t, ProcessInput('x', state, ctx))
	assert.False(t, state.ShowFeatures)
	assert.False(t, ProcessInput(KeySpace, state, ctx))
	assert.True(t, state.InitRequested)
	assert.False(t, ProcessInput('d', state, ctx))
	assert.True(t, state.DebugMode.Load())

	for _, want := range []grid.Level{grid.Half, grid.Quarter, grid.Full} {
		ProcessInput('m', state, ctx)
		assert.Equal(t, want, state.Level)
	}
	assert.Equal(t, grid.Full, MapLevel(&types.AppState{Level: grid.Half}, smallSettings()))

	assert.True(t, ProcessInput('q', state, ctx))
	assert.True(t, ProcessInput(KeyEscape, state, ctx))
}

func TestColumnModeNeedsPanorama(t *testing.T) {
	ctx := newContext(t, smallSettings())
	state := types.NewAppState(0)
	ProcessInput('z', state, ctx)
	assert.False(t, state.ColumnMode)
}

func TestColumnModeInvalidates(t *testing.T) {
	ctx := newContext(t, smallSettings())
	initialize(t, ctx)
	state := types.NewAppState(0)

	ProcessInput('z', state, ctx)
	require.True(t, state.ColumnMode)
	assert.Equal(t, 80, state.ColumnCursor)

	// 'd' moves the cursor instead of toggling debug in column mode.
	ProcessInput('d', state, ctx)
	assert.Equal(t, 90, state.ColumnCursor)
	assert.False(t, state.DebugMode.Load())
	for i := 0; i < 10; i++ {
		ProcessInput(KeyLeft, state, ctx)
	}
	assert.Equal(t, 0, state.ColumnCursor)
	for i := 0; i < 5; i++ {
		ProcessInput('d', state, ctx)
	}
	assert.Equal(t, image.Pt(50, 0), ColumnPoint(state, ctx.Tracker))

	ProcessInput(KeyEnter, state, ctx)
	assert.False(t, ProcessInput(KeyEscape, state, ctx))
	assert.False(t, state.ColumnMode)

	view := ctx.Tracker.RenderMapView(grid.Full, tracking.RenderOptions{Grid: true})
	defer view.Close()
	// Column 1 lost its coverage, so its grid lines are drawn grey.
	assert.Equal(t, uint8(90), view.GetVecbAt(60, 40)[0])
}

func TestSnapshotAndReset(t *testing.T) {
	ctx := newContext(t, smallSettings())
	initialize(t, ctx)
	state := types.NewAppState(0)

	ProcessInput('p', state, ctx)
	entries, err := os.ReadDir(ctx.OutDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	ProcessInput('r', state, ctx)
	assert.False(t, ctx.Tracker.Initialized())
}

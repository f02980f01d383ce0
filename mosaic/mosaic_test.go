package mosaic

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"panotracker/grid"
)

func filled(rows, cols int, v float64) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, 0, 0, 0), rows, cols, gocv.MatTypeCV8U)
}

func TestInitCentersFirstFrame(t *testing.T) {
	m := New(100, 60, true)
	defer m.Close()

	first := filled(10, 20, 200)
	defer first.Close()

	r := m.Init(first)
	assert.Equal(t, image.Rect(40, 25, 60, 35), r)
	assert.Equal(t, 200, m.CoveredPixels())
	assert.Equal(t, uint8(200), m.Level(grid.Full).GetUCharAt(25, 40))
	assert.Equal(t, uint8(0), m.Level(grid.Full).GetUCharAt(24, 40))

	half := m.Level(grid.Half)
	assert.Equal(t, 50, half.Cols())
	assert.Equal(t, 30, half.Rows())
	quarter := m.Level(grid.Quarter)
	assert.Equal(t, 25, quarter.Cols())
	assert.Equal(t, 15, quarter.Rows())
}

func TestMergeIsOneShotPerPixel(t *testing.T) {
	m := New(40, 40, false)
	defer m.Close()

	valid := filled(10, 20, 255)
	defer valid.Close()
	m.SetCurrentMask(valid)

	view := image.Rect(5, 5, 25, 15)
	frame := filled(10, 20, 77)
	defer frame.Close()

	assert.Equal(t, 200, m.Merge(view, frame))
	assert.Equal(t, uint8(77), m.Level(grid.Full).GetUCharAt(5, 5))

	// Same frame again: the XOR diff is empty.
	assert.Equal(t, 0, m.Merge(view, frame))
	prev := m.Mask(MaskPrevious)
	assert.Equal(t, 200, gocv.CountNonZero(prev))

	// Different content never overwrites existing pixels.
	other := filled(10, 20, 99)
	defer other.Close()
	assert.Equal(t, 0, m.Merge(view, other))
	assert.Equal(t, uint8(77), m.Level(grid.Full).GetUCharAt(5, 5))
}

func TestMergeHonoursCurrentMask(t *testing.T) {
	m := New(40, 40, false)
	defer m.Close()

	valid := filled(10, 20, 0)
	defer valid.Close()
	left := valid.Region(image.Rect(0, 0, 10, 10))
	left.SetTo(gocv.NewScalar(255, 0, 0, 0))
	left.Close()
	m.SetCurrentMask(valid)

	frame := filled(10, 20, 50)
	defer frame.Close()

	assert.Equal(t, 100, m.Merge(image.Rect(0, 0, 20, 10), frame))
	assert.Equal(t, uint8(50), m.Level(grid.Full).GetUCharAt(0, 9))
	assert.Equal(t, uint8(0), m.Level(grid.Full).GetUCharAt(0, 10))
}

func TestMergeRejectsMismatchedView(t *testing.T) {
	m := New(40, 40, false)
	defer m.Close()

	valid := filled(10, 20, 255)
	defer valid.Close()
	m.SetCurrentMask(valid)
	frame := filled(10, 20, 1)
	defer frame.Close()

	assert.Equal(t, 0, m.Merge(image.Rect(30, 0, 50, 10), frame))
	assert.Equal(t, 0, m.Merge(image.Rect(0, 0, 10, 10), frame))
}

func TestInvalidateRegionForcesRefill(t *testing.T) {
	m := New(40, 40, true)
	defer m.Close()

	valid := filled(10, 20, 255)
	defer valid.Close()
	m.SetCurrentMask(valid)
	view := image.Rect(0, 0, 20, 10)
	frame := filled(10, 20, 10)
	defer frame.Close()

	require.Equal(t, 200, m.Merge(view, frame))
	assert.False(t, m.RefreshLevels(false))

	m.InvalidateRegion(image.Rect(0, 0, 5, 40))
	assert.Equal(t, 150, m.CoveredPixels())

	newer := filled(10, 20, 20)
	defer newer.Close()
	assert.Equal(t, 50, m.Merge(view, newer))
	// Invalidated pixels take the new content.
	assert.Equal(t, uint8(20), m.Level(grid.Full).GetUCharAt(0, 0))
	assert.Equal(t, uint8(10), m.Level(grid.Full).GetUCharAt(0, 5))

	assert.True(t, m.RefreshLevels(false))
	assert.False(t, m.RefreshLevels(false))
}

func TestRefreshLevelsOnChangedCells(t *testing.T) {
	m := New(40, 40, true)
	defer m.Close()

	valid := filled(8, 8, 255)
	defer valid.Close()
	m.SetCurrentMask(valid)
	frame := filled(8, 8, 200)
	defer frame.Close()

	m.Merge(image.Rect(0, 0, 8, 8), frame)
	require.True(t, m.RefreshLevels(true))
	half := m.Level(grid.Half)
	assert.Equal(t, uint8(200), half.GetUCharAt(1, 1))
}

func TestLevelWithoutPyramid(t *testing.T) {
	m := New(40, 20, false)
	defer m.Close()

	first := filled(4, 4, 1)
	defer first.Close()
	m.Init(first)

	assert.Equal(t, 40, m.Level(grid.Quarter).Cols())
	assert.Equal(t, 20, m.Level(grid.Half).Rows())
}

package grid

import (
	"image"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func filledMask(rows, cols int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 0, 0, 0), rows, cols, gocv.MatTypeCV8U)
}

func TestCellSizePerLevel(t *testing.T) {
	g := New(4, 3, 40, 20)

	w, h := g.CellSize(Full)
	assert.Equal(t, 40, w)
	assert.Equal(t, 20, h)

	w, h = g.CellSize(Half)
	assert.Equal(t, 20, w)
	assert.Equal(t, 10, h)

	w, h = g.CellSize(Quarter)
	assert.Equal(t, 10, w)
	assert.Equal(t, 5, h)

	assert.Equal(t, image.Rect(20, 10, 30, 15), g.CellRect(2, 2, Quarter))
}

func TestUpdateCoverageRequiresEveryPixel(t *testing.T) {
	g := New(2, 2, 8, 8)
	mask := filledMask(16, 16)
	defer mask.Close()

	assert.True(t, g.UpdateCoverage(1, 1, mask))
	assert.True(t, g.Covered(1, 1))

	// A single zero pixel anywhere inside the cell clears it.
	mask.SetUCharAt(15, 8, 0)
	assert.False(t, g.UpdateCoverage(1, 1, mask))
	assert.False(t, g.Covered(1, 1))

	// Neighbouring cells are unaffected by that pixel.
	assert.True(t, g.UpdateCoverage(0, 1, mask))
}

func TestIsVisibleRequiresFullContainment(t *testing.T) {
	g := New(4, 4, 10, 10)

	view := image.Rect(10, 10, 30, 30)
	assert.True(t, g.IsVisible(1, 1, view), "edges touching the view count as inside")
	assert.True(t, g.IsVisible(2, 2, view))
	assert.False(t, g.IsVisible(0, 1, view))
	assert.False(t, g.IsVisible(3, 3, view))

	partial := image.Rect(15, 10, 30, 30)
	assert.False(t, g.IsVisible(1, 1, partial))
}

func TestUnsetVisibleCells(t *testing.T) {
	g := New(3, 2, 10, 10)
	g.SetCovered(0, 0, true)

	got := g.UnsetVisibleCells(image.Rect(0, 0, 20, 20))
	want := []image.Point{{0, 1}, {1, 0}, {1, 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("UnsetVisibleCells mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateFeaturesInstallsResult(t *testing.T) {
	g := New(2, 2, 10, 10)
	var ids IDAllocator
	g.SetFeatures(1, 0, Half, []Feature{
		NewFeature(&ids, image.Pt(1, 1), image.Pt(6, 1)),
		NewFeature(&ids, image.Pt(2, 2), image.Pt(7, 2)),
	})

	g.UpdateFeatures(1, 0, Half, func(fs []Feature) []Feature {
		return fs[:1]
	})

	fs := g.Features(1, 0, Half)
	require.Len(t, fs, 1)
	assert.Equal(t, 0, fs[0].ID)
	assert.Empty(t, g.Features(1, 0, Full))
	assert.Equal(t, 1, g.FeatureCount(Half))

	// Features returns a copy.
	fs[0].Quality = 0.5
	assert.Equal(t, 1.0, g.Features(1, 0, Half)[0].Quality)
}

func TestIDAllocatorIsMonotonic(t *testing.T) {
	var ids IDAllocator
	a := NewFeature(&ids, image.Point{}, image.Point{})
	b := NewFeature(&ids, image.Point{}, image.Point{})
	assert.Equal(t, 0, a.ID)
	assert.Equal(t, 1, b.ID)
	assert.Equal(t, 2, ids.Issued())
	assert.False(t, a.Motion.Known)
	assert.Equal(t, 1.0, a.Quality)
}

func TestOutOfRangePanics(t *testing.T) {
	g := New(2, 2, 10, 10)
	assert.Panics(t, func() { g.Covered(2, 0) })
	assert.Panics(t, func() { g.Features(0, -1, Full) })
}

func TestClearColumn(t *testing.T) {
	g := New(2, 3, 10, 10)
	for y := 0; y < 3; y++ {
		g.SetCovered(1, y, true)
		g.SetCovered(0, y, true)
	}
	g.ClearColumn(1)
	for y := 0; y < 3; y++ {
		assert.False(t, g.Covered(1, y))
		assert.True(t, g.Covered(0, y))
	}
}

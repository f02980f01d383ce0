package rotation

import (
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rotated(p image.Point, deg float64, c Point) Point {
	r := deg * math.Pi / 180
	x, y := float64(p.X)-c.X, float64(p.Y)-c.Y
	return Point{
		X: c.X + x*math.Cos(r) - y*math.Sin(r),
		Y: c.Y + x*math.Sin(r) + y*math.Cos(r),
	}
}

// scene returns a ring of features around (50, 40) and their displacements
// under a rotation of deg degrees plus a small translation.
func scene(n int, deg float64) (map[int]image.Point, []Displacement) {
	c := Point{X: 50, Y: 40}
	visible := make(map[int]image.Point)
	var matched []Displacement
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		p := image.Pt(50+int(30*math.Cos(a)), 40+int(30*math.Sin(a)))
		visible[i] = p
		q := rotated(p, deg, c)
		matched = append(matched, Displacement{
			FeatureID: i,
			DX:        q.X - float64(p.X) + 1,
			DY:        q.Y - float64(p.Y) - 2,
		})
	}
	return visible, matched
}

func TestFitSimilarityRecoversRotation(t *testing.T) {
	src := []Point{{0, 0}, {10, 0}, {0, 10}, {10, 10}}
	want := Similarity{A: math.Cos(0.1) * 2, B: math.Sin(0.1) * 2, TX: 3, TY: -4}
	var dst []Point
	for _, p := range src {
		dst = append(dst, want.Apply(p))
	}

	got, err := FitSimilarity(src, dst)
	require.NoError(t, err)
	assert.InDelta(t, want.A, got.A, 1e-9)
	assert.InDelta(t, want.B, got.B, 1e-9)
	assert.InDelta(t, want.TX, got.TX, 1e-9)
	assert.InDelta(t, want.TY, got.TY, 1e-9)
	assert.InDelta(t, 0.1*180/math.Pi, got.Angle(), 1e-9)
}

func TestFitSimilarityDegenerate(t *testing.T) {
	pts := []Point{{5, 5}, {5, 5}, {5, 5}}
	_, err := FitSimilarity(pts, pts)
	assert.Error(t, err)

	_, err = FitSimilarity(pts[:1], pts[:1])
	assert.Error(t, err)
}

func TestEstimate(t *testing.T) {
	e := Estimator{MinCorrespondences: 16, MaxResidual: 3}
	visible, matched := scene(20, 1.5)

	angle, n, ok := e.Estimate(visible, matched)
	require.True(t, ok)
	assert.Equal(t, 20, n)
	assert.InDelta(t, 1.5, angle, 1e-6)
}

func TestEstimateDropsOutliersAndUnknownIDs(t *testing.T) {
	e := Estimator{MinCorrespondences: 16, MaxResidual: 3}
	visible, matched := scene(20, -1)
	matched = append(matched,
		Displacement{FeatureID: 3, DX: 40, DY: 0},
		Displacement{FeatureID: 999, DX: 1, DY: -2},
	)

	angle, n, ok := e.Estimate(visible, matched)
	require.True(t, ok)
	assert.Equal(t, 20, n)
	assert.InDelta(t, -1, angle, 1e-6)
}

func TestEstimateNeedsEnoughCorrespondences(t *testing.T) {
	e := Estimator{MinCorrespondences: 16, MaxResidual: 3}
	visible, matched := scene(15, 2)

	angle, n, ok := e.Estimate(visible, matched)
	assert.False(t, ok)
	assert.Equal(t, 15, n)
	assert.Zero(t, angle)
}

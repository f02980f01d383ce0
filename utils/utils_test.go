package utils

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMedian(t *testing.T) {
	assert.Equal(t, 2.5, Median([]float64{1, 2, 3, 4}))
	assert.Equal(t, 5.0, Median([]float64{5}))
	assert.Equal(t, 0.0, Median(nil))
	assert.Equal(t, 3.0, Median([]float64{9, 3, 1}))

	in := []float64{4, 1, 3}
	Median(in)
	assert.Equal(t, []float64{4, 1, 3}, in, "input must not be reordered")
}

func TestFilterMovementVectorsORRule(t *testing.T) {
	xs := []float64{0, 0, 0, 100}
	ys := []float64{0, 0, 0, 0}
	fx, fy := FilterMovementVectors(xs, ys, 3)
	// y is within range for every sample, so the outlier in x survives.
	assert.Equal(t, xs, fx)
	assert.Equal(t, ys, fy)

	ys = []float64{0, 0, 0, 100}
	fx, fy = FilterMovementVectors(xs, ys, 3)
	assert.Equal(t, []float64{0, 0, 0}, fx)
	assert.Equal(t, []float64{0, 0, 0}, fy)
}

func TestFilterMovementVectorsBoundary(t *testing.T) {
	xs := []float64{0, 0, 0, 3, 2.9}
	ys := []float64{0, 0, 0, 3, 3}
	fx, _ := FilterMovementVectors(xs, ys, 3)
	// Exactly maxDiff on both axes is rejected; just under on one axis is kept.
	assert.Equal(t, []float64{0, 0, 0, 2.9}, fx)
}

func TestFilterMovementVectorsEmpty(t *testing.T) {
	fx, fy := FilterMovementVectors(nil, nil, 3)
	assert.Empty(t, fx)
	assert.Empty(t, fy)
}

func TestMeanAndStdDev(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.InDelta(t, 2.5, Mean([]float64{1, 2, 3, 4}), 1e-12)

	assert.Equal(t, 0.0, StdDev([]float64{7}))
	assert.InDelta(t, 2.0, StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-12)
}

func TestClampRect(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 50)
	assert.Equal(t, image.Rect(0, 0, 20, 10), ClampRect(image.Rect(-5, -5, 15, 5), bounds))
	assert.Equal(t, image.Rect(80, 40, 100, 50), ClampRect(image.Rect(90, 45, 110, 55), bounds))
	assert.Equal(t, image.Rect(0, 0, 100, 50), ClampRect(image.Rect(10, 0, 210, 50), bounds))
}

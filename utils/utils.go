package utils

import (
	"image"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Median returns the median of data, averaging the two middle values for
// even lengths. An empty slice has median 0.
func Median(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// Mean returns the arithmetic mean of data, 0 when empty.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev returns the population standard deviation of data.
func StdDev(data []float64) float64 {
	n := len(data)
	if n < 2 {
		return 0
	}
	// stat.Variance is the unbiased estimator.
	v := stat.Variance(data, nil) * float64(n-1) / float64(n)
	return math.Sqrt(v)
}

// FilterMovementVectors keeps the samples whose x lies within maxDiff of the
// x median or whose y lies within maxDiff of the y median. A sample is only
// dropped when both axes deviate.
func FilterMovementVectors(xs, ys []float64, maxDiff float64) ([]float64, []float64) {
	medX := Median(xs)
	medY := Median(ys)
	var fx, fy []float64
	for i := range xs {
		if math.Abs(xs[i]-medX) < maxDiff || math.Abs(ys[i]-medY) < maxDiff {
			fx = append(fx, xs[i])
			fy = append(fy, ys[i])
		}
	}
	return fx, fy
}

// ClampRect shifts rect so it lies inside bounds, shrinking it only when it
// is larger than bounds.
func ClampRect(rect, bounds image.Rectangle) image.Rectangle {
	if rect.Dx() > bounds.Dx() {
		rect.Max.X = rect.Min.X + bounds.Dx()
	}
	if rect.Dy() > bounds.Dy() {
		rect.Max.Y = rect.Min.Y + bounds.Dy()
	}
	if rect.Min.X < bounds.Min.X {
		rect = rect.Add(image.Pt(bounds.Min.X-rect.Min.X, 0))
	}
	if rect.Min.Y < bounds.Min.Y {
		rect = rect.Add(image.Pt(0, bounds.Min.Y-rect.Min.Y))
	}
	if rect.Max.X > bounds.Max.X {
		rect = rect.Add(image.Pt(bounds.Max.X-rect.Max.X, 0))
	}
	if rect.Max.Y > bounds.Max.Y {
		rect = rect.Add(image.Pt(0, bounds.Max.Y-rect.Max.Y))
	}
	return rect
}

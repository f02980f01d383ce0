package rotation

import (
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/mat"

	"panotracker/utils"
)

// Displacement is the motion of one feature measured this frame.
type Displacement struct {
	FeatureID int
	DX, DY    float64
}

// Point is a 2-D point in viewpoint coordinates.
type Point struct {
	X, Y float64
}

// Similarity is the transform x' = A*x - B*y + TX, y' = B*x + A*y + TY.
type Similarity struct {
	A, B, TX, TY float64
}

// Angle returns the rotation of the transform in degrees.
func (s Similarity) Angle() float64 {
	return math.Atan2(s.B, s.A) * 180 / math.Pi
}

// Apply maps p through the transform.
func (s Similarity) Apply(p Point) Point {
	return Point{
		X: s.A*p.X - s.B*p.Y + s.TX,
		Y: s.B*p.X + s.A*p.Y + s.TY,
	}
}

// FitSimilarity solves the least squares similarity mapping src onto dst.
func FitSimilarity(src, dst []Point) (Similarity, error) {
	n := len(src)
	if n < 2 || len(dst) != n {
		return Similarity{}, fmt.Errorf("need at least 2 paired points, got %d and %d", len(src), len(dst))
	}

	a := mat.NewDense(n*2, 4, nil)
	b := mat.NewVecDense(n*2, nil)
	for i := 0; i < n; i++ {
		x, y := src[i].X, src[i].Y

		a.Set(i*2, 0, x)
		a.Set(i*2, 1, -y)
		a.Set(i*2, 2, 1)
		b.SetVec(i*2, dst[i].X)

		a.Set(i*2+1, 0, y)
		a.Set(i*2+1, 1, x)
		a.Set(i*2+1, 3, 1)
		b.SetVec(i*2+1, dst[i].Y)
	}

	var qr mat.QR
	qr.Factorize(a)

	var params mat.VecDense
	if err := qr.SolveVecTo(&params, false, b); err != nil {
		return Similarity{}, err
	}
	return Similarity{
		A:  params.AtVec(0),
		B:  params.AtVec(1),
		TX: params.AtVec(2),
		TY: params.AtVec(3),
	}, nil
}

// Estimator measures in-plane camera rotation from the displacements of
// visible features.
type Estimator struct {
	MinCorrespondences int
	MaxResidual        float64
}

// Estimate returns the rotation in degrees between the visible feature
// positions and the same positions moved by their displacements. Matches
// further than MaxResidual from the median displacement on either axis are
// ignored. ok is false when too few correspondences remain or the fit is
// degenerate.
func (e Estimator) Estimate(visible map[int]image.Point, matched []Displacement) (angle float64, n int, ok bool) {
	xs := make([]float64, len(matched))
	ys := make([]float64, len(matched))
	for i, m := range matched {
		xs[i] = m.DX
		ys[i] = m.DY
	}
	medX, medY := utils.Median(xs), utils.Median(ys)

	var src, dst []Point
	for _, m := range matched {
		p, found := visible[m.FeatureID]
		if !found {
			continue
		}
		if math.Abs(m.DX-medX) >= e.MaxResidual || math.Abs(m.DY-medY) >= e.MaxResidual {
			continue
		}
		from := Point{X: float64(p.X), Y: float64(p.Y)}
		src = append(src, from)
		dst = append(dst, Point{X: from.X + m.DX, Y: from.Y + m.DY})
	}

	n = len(src)
	if n < e.MinCorrespondences {
		return 0, n, false
	}
	sim, err := FitSimilarity(src, dst)
	if err != nil {
		return 0, n, false
	}
	return sim.Angle(), n, true
}

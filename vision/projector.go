package vision

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image/color"
	"math"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrEmptyImage is returned when a projector receives no pixels.
	ErrEmptyImage = errors.New("vision: empty image")
	// ErrNotGrayscale is returned for multi-channel input.
	ErrNotGrayscale = errors.New("vision: expected a single channel image")
)

// Projector maps a grayscale camera frame onto the mosaic surface for the
// given orientation in degrees. It returns the projected frame and a mask
// of its valid pixels; the caller owns both.
type Projector interface {
	Project(gray gocv.Mat, yaw, pitch, roll float64) (warped, mask gocv.Mat, err error)
}

func checkGray(gray gocv.Mat) error {
	if gray.Empty() {
		return ErrEmptyImage
	}
	if gray.Channels() != 1 {
		return fmt.Errorf("%w, got %d channels", ErrNotGrayscale, gray.Channels())
	}
	return nil
}

// FlatProjector returns frames unchanged with every pixel valid. It suits
// narrow lenses and synthetic input.
type FlatProjector struct{}

func (FlatProjector) Project(gray gocv.Mat, _, _, _ float64) (gocv.Mat, gocv.Mat, error) {
	if err := checkGray(gray); err != nil {
		return gocv.NewMat(), gocv.NewMat(), err
	}
	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 0, 0, 0), gray.Rows(), gray.Cols(), gocv.MatTypeCV8U)
	return gray.Clone(), mask, nil
}

type projectionKey struct {
	cols, rows       int
	yaw, pitch, roll int64
}

// CylindricalProjector warps frames onto a cylinder of radius Scale around
// a pinhole camera with focal length Focal. The remap tables are cached
// for the last frame size and orientation.
type CylindricalProjector struct {
	Focal float64
	Scale float64

	key        projectionKey
	mapX, mapY gocv.Mat
	valid      gocv.Mat
	cached     bool
}

// NewCylindricalProjector creates a projector. A non-positive focal length
// is derived from the horizontal field of view of a width pixel wide frame
// on first use.
func NewCylindricalProjector(focal, scale float64) *CylindricalProjector {
	return &CylindricalProjector{Focal: focal, Scale: scale}
}

// FocalFromFOV returns the pinhole focal length of a width pixel wide image
// with the given horizontal field of view in degrees.
func FocalFromFOV(width int, fovDegrees float64) float64 {
	return float64(width) / 2 / math.Tan(fovDegrees*math.Pi/360)
}

func (p *CylindricalProjector) Project(gray gocv.Mat, yaw, pitch, roll float64) (gocv.Mat, gocv.Mat, error) {
	if err := checkGray(gray); err != nil {
		return gocv.NewMat(), gocv.NewMat(), err
	}
	if p.Focal <= 0 || p.Scale <= 0 {
		return gocv.NewMat(), gocv.NewMat(), fmt.Errorf("vision: invalid projection focal %g scale %g", p.Focal, p.Scale)
	}

	key := projectionKey{
		cols:  gray.Cols(),
		rows:  gray.Rows(),
		yaw:   int64(math.Round(yaw * 100)),
		pitch: int64(math.Round(pitch * 100)),
		roll:  int64(math.Round(roll * 100)),
	}
	if !p.cached || key != p.key {
		if err := p.build(key, yaw, pitch, roll); err != nil {
			return gocv.NewMat(), gocv.NewMat(), err
		}
	}

	warped := gocv.NewMat()
	gocv.Remap(gray, &warped, &p.mapX, &p.mapY, gocv.InterpolationNearestNeighbor, gocv.BorderConstant, color.RGBA{})
	return warped, p.valid.Clone(), nil
}

// Close releases the cached tables.
func (p *CylindricalProjector) Close() {
	if !p.cached {
		return
	}
	p.mapX.Close()
	p.mapY.Close()
	p.valid.Close()
	p.cached = false
}

func rotationMatrix(yaw, pitch, roll float64) *mat.Dense {
	a := -pitch * math.Pi / 180
	b := yaw * math.Pi / 180
	c := roll * math.Pi / 180
	rx := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, math.Cos(a), -math.Sin(a),
		0, math.Sin(a), math.Cos(a),
	})
	ry := mat.NewDense(3, 3, []float64{
		math.Cos(b), 0, math.Sin(b),
		0, 1, 0,
		-math.Sin(b), 0, math.Cos(b),
	})
	rz := mat.NewDense(3, 3, []float64{
		math.Cos(c), -math.Sin(c), 0,
		math.Sin(c), math.Cos(c), 0,
		0, 0, 1,
	})
	var r mat.Dense
	r.Product(rx, ry, rz)
	return &r
}

func (p *CylindricalProjector) build(key projectionKey, yaw, pitch, roll float64) error {
	p.Close()

	f, s := p.Focal, p.Scale
	cx := float64(key.cols-1) / 2
	cy := float64(key.rows-1) / 2
	k := mat.NewDense(3, 3, []float64{f, 0, cx, 0, f, cy, 0, 0, 1})
	kinv := mat.NewDense(3, 3, []float64{1 / f, 0, -cx / f, 0, 1 / f, -cy / f, 0, 0, 1})
	r := rotationMatrix(yaw, pitch, roll)

	var rkinv, krinv mat.Dense
	rkinv.Mul(r, kinv)
	krinv.Mul(k, r.T())

	// Forward-map the frame border to find the projected extent.
	minU, minV := math.Inf(1), math.Inf(1)
	maxU, maxV := math.Inf(-1), math.Inf(-1)
	forward := func(u, v float64) {
		x := rkinv.At(0, 0)*u + rkinv.At(0, 1)*v + rkinv.At(0, 2)
		y := rkinv.At(1, 0)*u + rkinv.At(1, 1)*v + rkinv.At(1, 2)
		z := rkinv.At(2, 0)*u + rkinv.At(2, 1)*v + rkinv.At(2, 2)
		pu := s * math.Atan2(x, z)
		pv := s * y / math.Hypot(x, z)
		minU, maxU = math.Min(minU, pu), math.Max(maxU, pu)
		minV, maxV = math.Min(minV, pv), math.Max(maxV, pv)
	}
	w, h := float64(key.cols-1), float64(key.rows-1)
	for u := 0.0; u <= w; u++ {
		forward(u, 0)
		forward(u, h)
	}
	for v := 0.0; v <= h; v++ {
		forward(0, v)
		forward(w, v)
	}
	tlx, tly := math.Floor(minU), math.Floor(minV)
	cols := int(math.Ceil(maxU)-tlx) + 1
	rows := int(math.Ceil(maxV)-tly) + 1
	if cols <= 0 || rows <= 0 {
		return fmt.Errorf("vision: degenerate projection %dx%d", cols, rows)
	}

	xs := make([]byte, cols*rows*4)
	ys := make([]byte, cols*rows*4)
	for j := 0; j < rows; j++ {
		v := (tly + float64(j)) / s
		for i := 0; i < cols; i++ {
			u := (tlx + float64(i)) / s
			x, y, z := math.Sin(u), v, math.Cos(u)
			px := krinv.At(0, 0)*x + krinv.At(0, 1)*y + krinv.At(0, 2)*z
			py := krinv.At(1, 0)*x + krinv.At(1, 1)*y + krinv.At(1, 2)*z
			pz := krinv.At(2, 0)*x + krinv.At(2, 1)*y + krinv.At(2, 2)*z
			mx, my := float32(-1), float32(-1)
			if pz > 0 {
				mx, my = float32(px/pz), float32(py/pz)
			}
			off := (j*cols + i) * 4
			binary.LittleEndian.PutUint32(xs[off:], math.Float32bits(mx))
			binary.LittleEndian.PutUint32(ys[off:], math.Float32bits(my))
		}
	}

	mapX, err := matFromFloats(rows, cols, xs)
	if err != nil {
		return err
	}
	mapY, err := matFromFloats(rows, cols, ys)
	if err != nil {
		mapX.Close()
		return err
	}

	ones := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 0, 0, 0), key.rows, key.cols, gocv.MatTypeCV8U)
	defer ones.Close()
	valid := gocv.NewMat()
	gocv.Remap(ones, &valid, &mapX, &mapY, gocv.InterpolationNearestNeighbor, gocv.BorderConstant, color.RGBA{})

	p.mapX, p.mapY, p.valid = mapX, mapY, valid
	p.key = key
	p.cached = true
	return nil
}

// matFromFloats copies little endian float32 data into a new Mat.
func matFromFloats(rows, cols int, data []byte) (gocv.Mat, error) {
	view, err := gocv.NewMatFromBytes(rows, cols, gocv.MatTypeCV32F, data)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("vision: building remap table: %w", err)
	}
	defer view.Close()
	return view.Clone(), nil
}

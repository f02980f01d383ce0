// Package synth renders deterministic textured scenes and a virtual camera
// that pans across them. It drives the demo source of the harness and the
// package tests.
package synth

import (
	"image"
	"image/color"
	"math/rand"
	"runtime"

	"gocv.io/x/gocv"
)

func gray(v uint8) color.RGBA {
	return color.RGBA{R: v, G: v, B: v, A: 255}
}

// Panorama renders a w x h grayscale scene of overlapping boxes and discs
// over a fine noise texture. The same seed always produces the same image.
// No pixel is zero, so every pixel of a frame cut from it counts as valid.
func Panorama(w, h int, seed int64) gocv.Mat {
	rng := rand.New(rand.NewSource(seed))
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 0, 0, 0), h, w, gocv.MatTypeCV8U)
	noise := make([]byte, w*h)
	for i := range noise {
		noise[i] = byte(rng.Intn(25))
	}

	shapes := w * h / 150
	for i := 0; i < shapes; i++ {
		x := rng.Intn(w)
		y := rng.Intn(h)
		v := uint8(60 + rng.Intn(190))
		if rng.Intn(2) == 0 {
			bw := 3 + rng.Intn(14)
			bh := 3 + rng.Intn(14)
			gocv.Rectangle(&img, image.Rect(x, y, x+bw, y+bh), gray(v), -1)
		} else {
			gocv.Circle(&img, image.Pt(x, y), 2+rng.Intn(7), gray(v), -1)
		}
	}

	// Fine grain texture keeps every small patch distinct.
	grain, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8U, noise)
	if err == nil {
		gocv.Add(img, grain, &img)
		grain.Close()
	}
	runtime.KeepAlive(noise)
	return img
}

// Shift returns a copy of img translated right by dx pixels with
// horizontal wraparound.
func Shift(img gocv.Mat, dx int) gocv.Mat {
	w := img.Cols()
	dx = ((dx % w) + w) % w
	if dx == 0 {
		return img.Clone()
	}
	left := img.Region(image.Rect(w-dx, 0, w, img.Rows()))
	defer left.Close()
	right := img.Region(image.Rect(0, 0, w-dx, img.Rows()))
	defer right.Close()
	out := gocv.NewMat()
	gocv.Hconcat(left, right, &out)
	return out
}

// Camera cuts fixed size frames out of a panorama. Horizontal movement wraps
// around the panorama; vertical movement is clamped to it.
type Camera struct {
	pano          gocv.Mat
	Width, Height int
	X, Y          int
}

// NewCamera centres a width x height camera on pano. The camera does not
// own pano.
func NewCamera(pano gocv.Mat, width, height int) *Camera {
	return &Camera{
		pano:   pano,
		Width:  width,
		Height: height,
		X:      pano.Cols()/2 - width/2,
		Y:      pano.Rows()/2 - height/2,
	}
}

// Pan moves the camera by (dx, dy) pixels.
func (c *Camera) Pan(dx, dy int) {
	w := c.pano.Cols()
	c.X = ((c.X+dx)%w + w) % w
	c.Y += dy
	if c.Y < 0 {
		c.Y = 0
	}
	if limit := c.pano.Rows() - c.Height; c.Y > limit {
		c.Y = limit
	}
}

// Frame returns the current grayscale view; the caller closes it.
func (c *Camera) Frame() gocv.Mat {
	w := c.pano.Cols()
	if c.X+c.Width <= w {
		r := c.pano.Region(image.Rect(c.X, c.Y, c.X+c.Width, c.Y+c.Height))
		defer r.Close()
		return r.Clone()
	}
	first := c.pano.Region(image.Rect(c.X, c.Y, w, c.Y+c.Height))
	defer first.Close()
	second := c.pano.Region(image.Rect(0, c.Y, c.Width-(w-c.X), c.Y+c.Height))
	defer second.Close()
	out := gocv.NewMat()
	gocv.Hconcat(first, second, &out)
	return out
}

// FrameBGR returns the current view as a three channel image.
func (c *Camera) FrameBGR() gocv.Mat {
	g := c.Frame()
	defer g.Close()
	out := gocv.NewMat()
	gocv.CvtColor(g, &out, gocv.ColorGrayToBGR)
	return out
}

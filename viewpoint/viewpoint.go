package viewpoint

import (
	"image"
	"math"

	"panotracker/grid"
)

// Viewpoint is the camera's current field of view in full resolution
// mosaic coordinates.
type Viewpoint struct {
	X, Y          int
	Width, Height int
}

// New creates a viewpoint at (x, y) of the given size.
func New(x, y, width, height int) *Viewpoint {
	return &Viewpoint{X: x, Y: y, Width: width, Height: height}
}

// Centered creates a viewpoint of the given size centred on a mapW x mapH
// mosaic.
func Centered(width, height, mapW, mapH int) *Viewpoint {
	return New(mapW/2-width/2, mapH/2-height/2, width, height)
}

// Rect returns the viewpoint at level l; coordinates are divided by the
// level factor.
func (v *Viewpoint) Rect(l grid.Level) image.Rectangle {
	f := l.Factor()
	x, y, w, h := v.X/f, v.Y/f, v.Width/f, v.Height/f
	return image.Rect(x, y, x+w, y+h)
}

// Center returns the centre of the viewpoint in full resolution coordinates.
func (v *Viewpoint) Center() image.Point {
	return image.Pt(v.X+v.Width/2, v.Y+v.Height/2)
}

// Resize follows the size of the projected frame, which changes with pitch,
// and pulls the viewpoint back inside the mapW x mapH mosaic if it grew past
// an edge.
func (v *Viewpoint) Resize(width, height, mapW, mapH int) {
	v.Width = width
	v.Height = height
	v.X = clamp(v.X, mapW-width)
	v.Y = clamp(v.Y, mapH-height)
}

func clamp(pos, limit int) int {
	if pos > limit {
		pos = limit
	}
	if pos < 0 {
		pos = 0
	}
	return pos
}

// Move shifts the viewpoint by the rounded delta. An axis whose move would
// leave the mosaic is dropped entirely for this call.
func (v *Viewpoint) Move(dx, dy float64, mapW, mapH int) {
	mx := int(math.Round(dx))
	my := int(math.Round(dy))
	if nx := v.X + mx; nx >= 0 && nx+v.Width <= mapW {
		v.X = nx
	}
	if ny := v.Y + my; ny >= 0 && ny+v.Height <= mapH {
		v.Y = ny
	}
}

// MoveTo places the viewpoint at (x, y) without any bounds check.
func (v *Viewpoint) MoveTo(x, y int) {
	v.X = x
	v.Y = y
}

// MoveWrapped applies the wraparound policy used once the panorama has been
// closed: crossing maxJump teleports x to minJump and crossing minJump
// teleports x to maxJump. Other moves fall back to Move.
func (v *Viewpoint) MoveWrapped(dx, dy float64, mapW, mapH, minJump, maxJump int) {
	next := float64(v.X) + dx
	switch {
	case next > float64(maxJump):
		v.MoveTo(minJump, v.Y)
	case next < float64(minJump):
		v.MoveTo(maxJump, v.Y)
	default:
		v.Move(dx, dy, mapW, mapH)
	}
}

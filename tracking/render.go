package tracking

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"panotracker/grid"
	"panotracker/utils"
)

// RenderOptions selects the overlays drawn on the map view.
type RenderOptions struct {
	Grid      bool
	Features  bool
	Viewpoint bool
	Status    bool
	// Follow crops the view to the window around the viewpoint returned by
	// MapViewWindow.
	Follow bool
}

var (
	gridColor      = color.RGBA{R: 255, G: 255, B: 255, A: 0}
	uncoveredColor = color.RGBA{R: 90, G: 90, B: 90, A: 0}
	featureColor   = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	viewColor      = color.RGBA{R: 255, G: 0, B: 0, A: 0}
	lostColor      = color.RGBA{R: 0, G: 0, B: 255, A: 0}
	statusColor    = color.RGBA{R: 0, G: 255, B: 255, A: 0}
)

// RenderMapView draws the mosaic at level l in colour with the requested
// overlays. The caller closes the result. Before Initialize the result is
// empty.
func (t *Tracker) RenderMapView(l grid.Level, opts RenderOptions) gocv.Mat {
	out := gocv.NewMat()
	if !t.initialized {
		return out
	}
	if !t.settings.Pyramidal {
		l = grid.Full
	}
	gocv.CvtColor(t.mosaic.Level(l), &out, gocv.ColorGrayToBGR)

	cw, ch := t.grid.CellSize(l)
	if opts.Grid {
		for x := 0; x < t.grid.Columns(); x++ {
			for y := 0; y < t.grid.Rows(); y++ {
				c := gridColor
				if !t.grid.Covered(x, y) {
					c = uncoveredColor
				}
				gocv.Rectangle(&out, image.Rect(x*cw, y*ch, (x+1)*cw, (y+1)*ch), c, 1)
			}
		}
	}
	if opts.Features {
		for x := 0; x < t.grid.Columns(); x++ {
			for y := 0; y < t.grid.Rows(); y++ {
				for _, f := range t.grid.Features(x, y, l) {
					gocv.Circle(&out, f.MapPos, 3, featureColor, 1)
				}
			}
		}
	}
	if opts.Viewpoint {
		c := viewColor
		if t.state != Tracking {
			c = lostColor
		}
		gocv.Rectangle(&out, t.view.Rect(l), c, 2)
	}

	if opts.Follow {
		window := t.MapViewWindow(l)
		region := out.Region(window)
		cropped := region.Clone()
		region.Close()
		out.Close()
		out = cropped
	}

	if opts.Status {
		o := t.Orientation()
		lines := []string{
			fmt.Sprintf("yaw %.2f pitch %.2f roll %.2f", o.Yaw, o.Pitch, o.Roll),
			fmt.Sprintf("%s quality %.3f deviation %.2f", t.state, t.quality, t.deviation),
		}
		for i, line := range lines {
			gocv.PutText(&out, line, image.Pt(10, 20+i*20), gocv.FontHersheyPlain, 1.2, statusColor, 1)
		}
	}
	return out
}

// MapViewWindow returns the part of level l shown when following the
// viewpoint: the configured map view width centred on the viewpoint and
// clamped to the mosaic.
func (t *Tracker) MapViewWindow(l grid.Level) image.Rectangle {
	if !t.initialized {
		return image.Rectangle{}
	}
	f := l.Factor()
	bounds := image.Rect(0, 0, t.mapW/f, t.mapH/f)
	w := t.viewPixels / f
	x := t.view.X/f + t.view.Width/2/f - w/2
	return utils.ClampRect(image.Rect(x, 0, x+w, t.mapH/f), bounds)
}

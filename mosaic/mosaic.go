package mosaic

import (
	"image"

	"gocv.io/x/gocv"

	"panotracker/grid"
)

// MaskKind selects one of the masks kept by the mosaic.
type MaskKind int

const (
	// MaskCurrent marks the valid pixels of the current projected frame.
	MaskCurrent MaskKind = iota
	// MaskMap marks the mosaic pixels that hold real data.
	MaskMap
	// MaskPrevious is the map mask inside the viewpoint before the last merge.
	MaskPrevious
)

// Mosaic is the panorama being built. Pixels are written once and never
// overwritten; the half and quarter copies are refreshed lazily.
type Mosaic struct {
	width, height int
	pyramidal     bool

	levels   [3]gocv.Mat
	mask     gocv.Mat
	current  gocv.Mat
	previous gocv.Mat

	refresh bool
}

// New allocates an empty width x height grayscale mosaic.
func New(width, height int, pyramidal bool) *Mosaic {
	m := &Mosaic{
		width:     width,
		height:    height,
		pyramidal: pyramidal,
		mask:      gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), height, width, gocv.MatTypeCV8U),
		current:   gocv.NewMat(),
		previous:  gocv.NewMat(),
	}
	m.levels[grid.Full] = gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), height, width, gocv.MatTypeCV8U)
	m.levels[grid.Half] = gocv.NewMat()
	m.levels[grid.Quarter] = gocv.NewMat()
	return m
}

func (m *Mosaic) Width() int  { return m.width }
func (m *Mosaic) Height() int { return m.height }

// Bounds returns the full resolution extent of the mosaic.
func (m *Mosaic) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.width, m.height)
}

// Init places the first frame in the centre of the mosaic, derives the map
// mask from its non-zero pixels and builds the downsampled levels. It
// returns the rectangle the frame was written to.
func (m *Mosaic) Init(first gocv.Mat) image.Rectangle {
	x := m.width/2 - first.Cols()/2
	y := m.height/2 - first.Rows()/2
	r := image.Rect(x, y, x+first.Cols(), y+first.Rows())

	dst := m.levels[grid.Full].Region(r)
	first.CopyTo(&dst)
	dst.Close()

	gocv.Threshold(m.levels[grid.Full], &m.mask, 0, 255, gocv.ThresholdBinary)
	m.resizeLevels()
	return r
}

// SetCurrentMask stores the validity mask of the current projected frame.
func (m *Mosaic) SetCurrentMask(mask gocv.Mat) {
	m.current.Close()
	m.current = mask.Clone()
}

// Merge copies the pixels of frame that are valid in the current mask and
// not yet present in the mosaic into the region under view. It returns the
// number of pixels written.
func (m *Mosaic) Merge(view image.Rectangle, frame gocv.Mat) int {
	if !view.In(m.Bounds()) || view.Dx() != m.current.Cols() || view.Dy() != m.current.Rows() {
		return 0
	}

	maskRegion := m.mask.Region(view)
	defer maskRegion.Close()

	m.previous.Close()
	m.previous = maskRegion.Clone()

	gocv.BitwiseOr(maskRegion, m.current, &maskRegion)
	diff := gocv.NewMat()
	defer diff.Close()
	gocv.BitwiseXor(maskRegion, m.previous, &diff)

	dst := m.levels[grid.Full].Region(view)
	defer dst.Close()
	frame.CopyToWithMask(&dst, diff)

	return gocv.CountNonZero(diff)
}

// RefreshLevels rebuilds the half and quarter levels when changed is set in
// pyramidal mode or an invalidation is pending. It reports whether they
// were rebuilt.
func (m *Mosaic) RefreshLevels(changed bool) bool {
	if !(m.pyramidal && changed) && !m.refresh {
		return false
	}
	m.resizeLevels()
	m.refresh = false
	return true
}

func (m *Mosaic) resizeLevels() {
	full := m.levels[grid.Full]
	gocv.Resize(full, &m.levels[grid.Half], image.Pt(m.width/2, m.height/2), 0, 0, gocv.InterpolationLinear)
	gocv.Resize(full, &m.levels[grid.Quarter], image.Pt(m.width/4, m.height/4), 0, 0, gocv.InterpolationLinear)
}

// Level returns the mosaic at level l. Without pyramidal mode every level
// is the full resolution image. The Mat is owned by the mosaic.
func (m *Mosaic) Level(l grid.Level) gocv.Mat {
	if l == grid.Full || !m.pyramidal {
		return m.levels[grid.Full]
	}
	return m.levels[l]
}

// Mask returns the requested mask. The Mat is owned by the mosaic.
func (m *Mosaic) Mask(kind MaskKind) gocv.Mat {
	switch kind {
	case MaskCurrent:
		return m.current
	case MaskPrevious:
		return m.previous
	}
	return m.mask
}

// InvalidateRegion marks rect as never written so the next merges refill it,
// and forces a level refresh.
func (m *Mosaic) InvalidateRegion(rect image.Rectangle) {
	r := rect.Intersect(m.Bounds())
	if r.Empty() {
		return
	}
	region := m.mask.Region(r)
	region.SetTo(gocv.NewScalar(0, 0, 0, 0))
	region.Close()
	m.refresh = true
}

// CoveredPixels counts the mosaic pixels holding data.
func (m *Mosaic) CoveredPixels() int {
	return gocv.CountNonZero(m.mask)
}

// Close releases every image held by the mosaic.
func (m *Mosaic) Close() {
	for i := range m.levels {
		m.levels[i].Close()
	}
	m.mask.Close()
	m.current.Close()
	m.previous.Close()
}

package grid

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

type cell struct {
	covered  bool
	features [3][]Feature
}

// Grid partitions the mosaic into fixed cells. Each cell tracks whether the
// coverage mask is fully set inside it and keeps an independent feature list
// per resolution level.
type Grid struct {
	cols, rows   int
	cellW, cellH int
	cells        []cell
}

// New creates a cols x rows grid of cellW x cellH cells at full resolution.
func New(cols, rows, cellW, cellH int) *Grid {
	if cols <= 0 || rows <= 0 || cellW <= 0 || cellH <= 0 {
		panic(fmt.Sprintf("grid: invalid dimensions %dx%d cells of %dx%d", cols, rows, cellW, cellH))
	}
	return &Grid{
		cols:  cols,
		rows:  rows,
		cellW: cellW,
		cellH: cellH,
		cells: make([]cell, cols*rows),
	}
}

func (g *Grid) Columns() int { return g.cols }
func (g *Grid) Rows() int    { return g.rows }

func (g *Grid) at(x, y int) *cell {
	if x < 0 || x >= g.cols || y < 0 || y >= g.rows {
		panic(fmt.Sprintf("grid: cell (%d,%d) outside %dx%d", x, y, g.cols, g.rows))
	}
	return &g.cells[y*g.cols+x]
}

// CellSize returns the cell dimensions at the given level.
func (g *Grid) CellSize(l Level) (int, int) {
	f := l.Factor()
	return g.cellW / f, g.cellH / f
}

// CellRect returns the bounds of cell (x, y) at the given level.
func (g *Grid) CellRect(x, y int, l Level) image.Rectangle {
	g.at(x, y)
	w, h := g.CellSize(l)
	return image.Rect(x*w, y*h, (x+1)*w, (y+1)*h)
}

// CoveredRegion returns the sub-image of img bounded by the cell at level l.
// The returned Mat shares memory with img and must be closed by the caller.
func (g *Grid) CoveredRegion(x, y int, l Level, img gocv.Mat) gocv.Mat {
	return img.Region(g.CellRect(x, y, l))
}

// UpdateCoverage recomputes the covered flag of cell (x, y) from the full
// resolution coverage mask and returns the new value.
func (g *Grid) UpdateCoverage(x, y int, mask gocv.Mat) bool {
	c := g.at(x, y)
	r := g.CellRect(x, y, Full)
	if r.Max.X > mask.Cols() || r.Max.Y > mask.Rows() {
		c.covered = false
		return false
	}
	region := mask.Region(r)
	defer region.Close()
	c.covered = gocv.CountNonZero(region) == r.Dx()*r.Dy()
	return c.covered
}

func (g *Grid) Covered(x, y int) bool {
	return g.at(x, y).covered
}

func (g *Grid) SetCovered(x, y int, covered bool) {
	g.at(x, y).covered = covered
}

// IsVisible reports whether the full resolution rectangle of cell (x, y)
// lies entirely inside view. Touching edges count as inside.
func (g *Grid) IsVisible(x, y int, view image.Rectangle) bool {
	return g.CellRect(x, y, Full).In(view)
}

// UnsetVisibleCells lists the visible cells that are not yet covered,
// column by column.
func (g *Grid) UnsetVisibleCells(view image.Rectangle) []image.Point {
	var out []image.Point
	for x := 0; x < g.cols; x++ {
		for y := 0; y < g.rows; y++ {
			if !g.at(x, y).covered && g.IsVisible(x, y, view) {
				out = append(out, image.Pt(x, y))
			}
		}
	}
	return out
}

// VisibleCells lists the cells fully inside view, column by column.
func (g *Grid) VisibleCells(view image.Rectangle) []image.Point {
	var out []image.Point
	for x := 0; x < g.cols; x++ {
		for y := 0; y < g.rows; y++ {
			if g.IsVisible(x, y, view) {
				out = append(out, image.Pt(x, y))
			}
		}
	}
	return out
}

// Features returns a copy of the features of cell (x, y) at level l.
func (g *Grid) Features(x, y int, l Level) []Feature {
	fs := g.at(x, y).features[l]
	out := make([]Feature, len(fs))
	copy(out, fs)
	return out
}

// SetFeatures replaces the features of cell (x, y) at level l.
func (g *Grid) SetFeatures(x, y int, l Level, fs []Feature) {
	g.at(x, y).features[l] = fs
}

// UpdateFeatures hands a copy of the feature list of cell (x, y) at level l
// to fn and installs whatever fn returns.
func (g *Grid) UpdateFeatures(x, y int, l Level, fn func([]Feature) []Feature) {
	c := g.at(x, y)
	c.features[l] = fn(g.Features(x, y, l))
}

// FeatureCount returns the number of features stored at level l.
func (g *Grid) FeatureCount(l Level) int {
	n := 0
	for i := range g.cells {
		n += len(g.cells[i].features[l])
	}
	return n
}

// ClearColumn marks every cell of column x as uncovered.
func (g *Grid) ClearColumn(x int) {
	for y := 0; y < g.rows; y++ {
		g.at(x, y).covered = false
	}
}

package grid

import (
	"fmt"
	"image"
)

// Level identifies one of the three mosaic resolutions.
type Level int

const (
	Full Level = iota
	Half
	Quarter
)

// Levels lists every resolution from finest to coarsest.
var Levels = []Level{Full, Half, Quarter}

// Factor returns the integer downscale of the level relative to Full.
func (l Level) Factor() int {
	switch l {
	case Full:
		return 1
	case Half:
		return 2
	case Quarter:
		return 4
	}
	panic(fmt.Sprintf("grid: unknown level %d", int(l)))
}

func (l Level) String() string {
	switch l {
	case Full:
		return "full"
	case Half:
		return "half"
	case Quarter:
		return "quarter"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Motion is the last displacement observed for a feature. Known is false
// until a match succeeds and again after a failed match.
type Motion struct {
	DX, DY int
	Known  bool
}

// Feature is a tracked corner owned by exactly one cell at one level.
type Feature struct {
	ID      int
	CellPos image.Point
	MapPos  image.Point
	Quality float64
	Motion  Motion
}

// IDAllocator hands out monotonically increasing feature identities.
type IDAllocator struct {
	next int
}

// Next returns a fresh identity.
func (a *IDAllocator) Next() int {
	id := a.next
	a.next++
	return id
}

// Issued reports how many identities have been handed out.
func (a *IDAllocator) Issued() int {
	return a.next
}

// NewFeature creates a full-quality feature with unknown motion.
func NewFeature(ids *IDAllocator, cellPos, mapPos image.Point) Feature {
	return Feature{
		ID:      ids.Next(),
		CellPos: cellPos,
		MapPos:  mapPos,
		Quality: 1.0,
	}
}

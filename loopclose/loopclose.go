package loopclose

import (
	"math"

	"gocv.io/x/gocv"

	"panotracker/vision"
)

// Result describes the seam of a closed panorama in mosaic x coordinates.
// Once closed, crossing MaxJump moves the viewpoint to MinJump and the
// other way round.
type Result struct {
	MinJump  int
	MaxJump  int
	Offset   float64 // mean x displacement of the accepted matches
	Matches  int
	Fallback bool // closed without any accepted match
}

// Match estimates the seam between the frames seen at the smallest and the
// largest yaw. ok is false when no descriptor match is closer than
// maxDistance; the returned result then carries no correction.
func Match(m vision.SparseFeatureMatcher, minImg, maxImg gocv.Mat, minPx, maxPx, features int, maxDistance float64) (Result, bool) {
	k1, d1 := m.DetectAndDescribe(minImg, features)
	defer d1.Close()
	k2, d2 := m.DetectAndDescribe(maxImg, features)
	defer d2.Close()

	var sum float64
	n := 0
	for _, c := range m.Match(d1, d2) {
		if c.Distance >= maxDistance {
			continue
		}
		if c.QueryIdx < 0 || c.QueryIdx >= len(k1) || c.TrainIdx < 0 || c.TrainIdx >= len(k2) {
			continue
		}
		sum += k1[c.QueryIdx].X - k2[c.TrainIdx].X
		n++
	}
	if n == 0 {
		return Result{MinJump: minPx, MaxJump: maxPx, Fallback: true}, false
	}
	offset := sum / float64(n)
	return Result{
		MinJump: minPx,
		MaxJump: maxPx - int(math.Round(offset)),
		Offset:  offset,
		Matches: n,
	}, true
}

// Closer watches the yaw range covered by the tracker and closes the
// panorama once it exceeds a full turn.
type Closer struct {
	Threshold   float64
	Features    int
	MaxDistance float64
	MaxAttempts int

	matcher vision.SparseFeatureMatcher

	seen           bool
	minYaw, maxYaw float64
	minPx, maxPx   int
	minImg, maxImg gocv.Mat
	generation     int
	triedAt        int

	attempts int
	closed   bool
	result   Result
}

// New creates a closer. A nil matcher uses ORB.
func New(threshold float64, features int, maxDistance float64, maxAttempts int, matcher vision.SparseFeatureMatcher) *Closer {
	if matcher == nil {
		matcher = vision.ORBMatcher{}
	}
	return &Closer{
		Threshold:   threshold,
		Features:    features,
		MaxDistance: maxDistance,
		MaxAttempts: maxAttempts,
		matcher:     matcher,
		minImg:      gocv.NewMat(),
		maxImg:      gocv.NewMat(),
		triedAt:     -1,
	}
}

// Observe records frame as an extreme when yaw is a new minimum or maximum.
// viewX is the viewpoint x coordinate at that yaw.
func (c *Closer) Observe(yaw float64, viewX int, frame gocv.Mat) {
	if c.closed {
		return
	}
	if !c.seen || yaw < c.minYaw {
		c.minYaw, c.minPx = yaw, viewX
		c.minImg.Close()
		c.minImg = frame.Clone()
		c.generation++
	}
	if !c.seen || yaw > c.maxYaw {
		c.maxYaw, c.maxPx = yaw, viewX
		c.maxImg.Close()
		c.maxImg = frame.Clone()
		c.generation++
	}
	c.seen = true
}

// Span returns the yaw range observed so far.
func (c *Closer) Span() float64 {
	if !c.seen {
		return 0
	}
	return c.maxYaw - c.minYaw
}

// Due reports whether an attempt should run: the span exceeds the
// threshold and an extreme frame changed since the last failed attempt.
func (c *Closer) Due() bool {
	return !c.closed && c.Span() > c.Threshold && c.generation != c.triedAt
}

// Attempt matches the extreme frames. It closes the panorama on success,
// or with a zero correction once MaxAttempts attempts have failed.
func (c *Closer) Attempt() (Result, bool) {
	res, ok := Match(c.matcher, c.minImg, c.maxImg, c.minPx, c.maxPx, c.Features, c.MaxDistance)
	c.attempts++
	c.triedAt = c.generation
	if !ok && c.attempts < c.MaxAttempts {
		return res, false
	}
	c.closed = true
	c.result = res
	c.minImg.Close()
	c.maxImg.Close()
	return res, true
}

// Attempts returns the number of matching attempts made.
func (c *Closer) Attempts() int { return c.attempts }

// Closed reports whether the panorama has been closed.
func (c *Closer) Closed() bool { return c.closed }

// Result returns the seam of a closed panorama.
func (c *Closer) Result() Result { return c.result }

// Close releases the stored extreme frames.
func (c *Closer) Close() {
	c.minImg.Close()
	c.maxImg.Close()
}

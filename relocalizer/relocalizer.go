package relocalizer

import (
	"image"
	"math"

	"gocv.io/x/gocv"

	"panotracker/vision"
)

// Orientation is yaw, pitch and roll in degrees.
type Orientation struct {
	Yaw, Pitch, Roll float64
}

// Snapshot is an orientation tagged thumbnail. Snapshots are never changed
// after they are stored.
type Snapshot struct {
	Thumbnail   gocv.Mat
	Orientation Orientation
}

// Relocalizer recovers the orientation of a frame by comparing its
// thumbnail with every stored snapshot. Scores use squared differences, so
// lower is better.
type Relocalizer struct {
	width, height int
	blur          int
	matcher       vision.TemplateMatcher
	snapshots     []Snapshot
}

// New creates a relocalizer storing width x height thumbnails blurred with
// a blur x blur box filter.
func New(width, height, blur int, matcher vision.TemplateMatcher) *Relocalizer {
	if matcher == nil {
		matcher = vision.CVTemplateMatcher{}
	}
	return &Relocalizer{width: width, height: height, blur: blur, matcher: matcher}
}

func (r *Relocalizer) thumbnail(frame gocv.Mat) gocv.Mat {
	small := gocv.NewMat()
	defer small.Close()
	gocv.Resize(frame, &small, image.Pt(r.width, r.height), 0, 0, gocv.InterpolationLinear)
	out := gocv.NewMat()
	gocv.Blur(small, &out, image.Pt(r.blur, r.blur))
	return out
}

// AddSnapshot stores a thumbnail of frame taken at o.
func (r *Relocalizer) AddSnapshot(frame gocv.Mat, o Orientation) {
	if frame.Empty() {
		return
	}
	r.snapshots = append(r.snapshots, Snapshot{Thumbnail: r.thumbnail(frame), Orientation: o})
}

// Len returns the number of stored snapshots.
func (r *Relocalizer) Len() int {
	return len(r.snapshots)
}

// Relocalize returns the orientation of the best matching snapshot and its
// score. ok is false, with an infinite score, when nothing is stored.
func (r *Relocalizer) Relocalize(frame gocv.Mat) (o Orientation, score float64, ok bool) {
	if len(r.snapshots) == 0 || frame.Empty() {
		return Orientation{}, math.Inf(1), false
	}
	query := r.thumbnail(frame)
	defer query.Close()

	score = vision.SqDiffNormed.Worst()
	for _, s := range r.snapshots {
		_, q := vision.BestMatch(r.matcher, query, s.Thumbnail, vision.SqDiffNormed)
		if vision.SqDiffNormed.Better(q, score) {
			score = q
			o = s.Orientation
			ok = true
		}
	}
	return o, score, ok
}

// Close releases every stored thumbnail.
func (r *Relocalizer) Close() {
	for _, s := range r.snapshots {
		s.Thumbnail.Close()
	}
	r.snapshots = nil
}

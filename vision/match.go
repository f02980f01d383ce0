package vision

import (
	"image"
	"math"

	"gocv.io/x/gocv"
)

// Metric is a template matching score function together with its polarity.
type Metric struct {
	Mode gocv.TemplateMatchMode
}

// SqDiffNormed is the metric the tracker uses by default.
var SqDiffNormed = Metric{Mode: gocv.TmSqdiffNormed}

// LowerIsBetter reports whether the best match has the smallest score.
func (m Metric) LowerIsBetter() bool {
	return m.Mode == gocv.TmSqdiff || m.Mode == gocv.TmSqdiffNormed
}

// Better reports whether score a beats score b.
func (m Metric) Better(a, b float64) bool {
	if m.LowerIsBetter() {
		return a < b
	}
	return a > b
}

// Worst returns a score every real score beats.
func (m Metric) Worst() float64 {
	if m.LowerIsBetter() {
		return math.Inf(1)
	}
	return math.Inf(-1)
}

// FailureScore is the score recorded for a feature that could not be
// searched at all. It is the worst value of the normalized metrics.
func (m Metric) FailureScore() float64 {
	if m.LowerIsBetter() {
		return 1
	}
	return 0
}

// Passes reports whether score is at least as good as threshold.
func (m Metric) Passes(score, threshold float64) bool {
	if m.LowerIsBetter() {
		return score <= threshold
	}
	return score >= threshold
}

// TemplateMatcher scores a template at every position of a search area.
type TemplateMatcher interface {
	// Match returns the score map; the caller closes it.
	Match(search, templ gocv.Mat, metric Metric) gocv.Mat
	// Extremum returns the location and value of the best score.
	Extremum(scores gocv.Mat, metric Metric) (image.Point, float64)
}

// CVTemplateMatcher matches with OpenCV's matchTemplate.
type CVTemplateMatcher struct{}

func (CVTemplateMatcher) Match(search, templ gocv.Mat, metric Metric) gocv.Mat {
	scores := gocv.NewMat()
	noMask := gocv.NewMat()
	defer noMask.Close()
	gocv.MatchTemplate(search, templ, &scores, metric.Mode, noMask)
	return scores
}

func (CVTemplateMatcher) Extremum(scores gocv.Mat, metric Metric) (image.Point, float64) {
	minVal, maxVal, minLoc, maxLoc := gocv.MinMaxLoc(scores)
	if metric.LowerIsBetter() {
		return minLoc, float64(minVal)
	}
	return maxLoc, float64(maxVal)
}

// BestMatch runs tm and returns the best location and score.
func BestMatch(tm TemplateMatcher, search, templ gocv.Mat, metric Metric) (image.Point, float64) {
	scores := tm.Match(search, templ, metric)
	defer scores.Close()
	if scores.Empty() {
		return image.Point{}, metric.Worst()
	}
	return tm.Extremum(scores, metric)
}

package tracking

import (
	"image"
	"math"

	"panotracker/config"
	"panotracker/grid"
	"panotracker/rotation"
	"panotracker/utils"
	"panotracker/vision"
)

// Feature quality lifecycle.
const (
	qualityReward  = 0.25
	qualityPenalty = 0.05
)

// trackLevel matches the features of every covered visible cell at level l,
// moves the viewpoint by the median of the filtered motions and updates
// feature qualities. It returns the deviation of the unfiltered motions and
// the scores of every feature it tried.
func (t *Tracker) trackLevel(l grid.Level, mode config.Mode) (float64, []float64) {
	defer t.timer.Track("track " + l.String())()

	viewFull := t.view.Rect(grid.Full)
	viewLevel := t.view.Rect(l)
	stats := &t.stats.Levels[l]

	var (
		xs, ys    []float64
		qualities []float64
		cells     []image.Point
	)
	for _, c := range t.grid.VisibleCells(viewFull) {
		if !t.grid.Covered(c.X, c.Y) {
			continue
		}
		cells = append(cells, c)
		t.grid.UpdateFeatures(c.X, c.Y, l, func(fs []grid.Feature) []grid.Feature {
			for i := range fs {
				motion, score, ok := t.matchFeature(fs[i], l, viewLevel, mode)
				qualities = append(qualities, score)
				if !ok {
					fs[i].Motion = grid.Motion{}
					stats.Failed++
					continue
				}
				fs[i].Motion = grid.Motion{DX: motion.X, DY: motion.Y, Known: true}
				xs = append(xs, float64(motion.X))
				ys = append(ys, float64(motion.Y))
			}
			return fs
		})
	}

	maxDev := t.settings.MaxDevFilter(l)
	medX, medY := utils.Median(xs), utils.Median(ys)
	fx, fy := utils.FilterMovementVectors(xs, ys, maxDev)
	stats.Used = len(fx)
	stats.Discarded = len(xs) - len(fx)
	stats.Removed = t.updateFeatures(l, cells, medX, medY, maxDev)

	f := float64(l.Factor())
	if len(fx) > 0 {
		t.moveViewpoint(-utils.Median(fx)*f, -utils.Median(fy)*f)
	}
	return (utils.StdDev(xs) + utils.StdDev(ys)) / 2, qualities
}

// matchFeature searches the current frame at level l for the template
// around feat. The returned motion is where the feature appears relative to
// where the viewpoint predicts it.
func (t *Tracker) matchFeature(feat grid.Feature, l grid.Level, view image.Rectangle, mode config.Mode) (image.Point, float64, bool) {
	frame := t.frames[l]
	size := t.settings.SupportAreaSize
	search := t.settings.SearchSize(l)

	origin := feat.MapPos.Sub(view.Min).Sub(image.Pt(search/2, search/2))
	if origin.X < 0 || origin.Y < 0 || origin.X+search >= frame.Cols() || origin.Y+search >= frame.Rows() {
		return image.Point{}, t.metric.FailureScore(), false
	}
	templOrigin := feat.MapPos.Sub(image.Pt(size/2, size/2))
	templRect := image.Rect(templOrigin.X, templOrigin.Y, templOrigin.X+size, templOrigin.Y+size)
	level := t.mosaic.Level(l)
	if !templRect.In(image.Rect(0, 0, level.Cols(), level.Rows())) {
		return image.Point{}, t.metric.FailureScore(), false
	}

	searchArea := frame.Region(image.Rect(origin.X, origin.Y, origin.X+search, origin.Y+search))
	defer searchArea.Close()
	templ := level.Region(templRect)
	defer templ.Close()

	loc, score := vision.BestMatch(t.templates, searchArea, templ, t.metric)
	motion := loc.Sub(image.Pt(search/2, search/2)).Add(image.Pt(size/2, size/2))

	if mode.RotationInvariant && l == grid.Full && t.metric.Better(score, t.settings.MinTrackingQuality) {
		t.matched = append(t.matched, MatchedFeature{FeatureID: feat.ID, Displacement: motion})
	}
	return motion, score, true
}

// updateFeatures rewards features that moved with the median, penalises the
// rest and drops features whose quality ran out. A full resolution cell
// emptied this way is seeded again. It returns the number of removed
// features.
func (t *Tracker) updateFeatures(l grid.Level, cells []image.Point, medX, medY, maxDev float64) int {
	removed := 0
	for _, c := range cells {
		erased := false
		t.grid.UpdateFeatures(c.X, c.Y, l, func(fs []grid.Feature) []grid.Feature {
			kept := fs[:0]
			for _, f := range fs {
				if f.Motion.Known {
					if math.Abs(float64(f.Motion.DX)-medX) > maxDev || math.Abs(float64(f.Motion.DY)-medY) > maxDev {
						f.Quality -= qualityPenalty
					} else {
						f.Quality = math.Min(1, f.Quality+qualityReward)
					}
				}
				if f.Quality <= 0 {
					erased = true
					removed++
					continue
				}
				kept = append(kept, f)
			}
			return kept
		})
		if erased && l == grid.Full && len(t.grid.Features(c.X, c.Y, grid.Full)) == 0 {
			t.logger.Debug().Int("x", c.X).Int("y", c.Y).Msg("reseeding emptied cell")
			t.seedCell(c.X, c.Y, grid.Full)
		}
	}
	return removed
}

// estimateRotation fits a similarity to the full resolution matches of this
// frame and subtracts its angle from roll.
func (t *Tracker) estimateRotation() {
	defer t.timer.Track("estimate rotation")()
	visible := make(map[int]image.Point)
	for _, c := range t.grid.VisibleCells(t.view.Rect(grid.Full)) {
		for _, f := range t.grid.Features(c.X, c.Y, grid.Full) {
			visible[f.ID] = f.MapPos
		}
	}
	matched := make([]rotation.Displacement, len(t.matched))
	for i, m := range t.matched {
		matched[i] = rotation.Displacement{
			FeatureID: m.FeatureID,
			DX:        float64(m.Displacement.X),
			DY:        float64(m.Displacement.Y),
		}
	}
	angle, n, ok := t.rotation.Estimate(visible, matched)
	if !ok {
		t.logger.Debug().Int("correspondences", n).Msg("too few correspondences for rotation")
		return
	}
	t.roll -= angle
}

// MatchedFeatures returns the full resolution matches of the last frame in
// rotation invariant mode.
func (t *Tracker) MatchedFeatures() []MatchedFeature {
	out := make([]MatchedFeature, len(t.matched))
	copy(out, t.matched)
	return out
}

func mean(xs []float64) float64 { return utils.Mean(xs) }

func abs(v float64) float64 { return math.Abs(v) }

package tracking

import (
	"image"

	"panotracker/config"
	"panotracker/grid"
	"panotracker/mosaic"
	"panotracker/vision"
)

// seedCell replaces the features of cell (x, y) at level l with the
// strongest corners whose support area fits inside the cell.
func (t *Tracker) seedCell(x, y int, l grid.Level) {
	cw, ch := t.grid.CellSize(l)
	region := t.grid.CoveredRegion(x, y, l, t.mosaic.Level(l))
	defer region.Close()

	half := t.settings.SupportAreaSize / 2
	var accepted []vision.Corner
	for _, c := range t.corners.Detect(region, t.settings.FASTThreshold) {
		cx, cy := int(c.X), int(c.Y)
		if cx-half >= 0 && cy-half >= 0 && cx+half <= cw && cy+half <= ch {
			accepted = append(accepted, c)
		}
	}
	vision.StrongestFirst(accepted)
	if len(accepted) > t.settings.MaxFeaturesPerCell {
		accepted = accepted[:t.settings.MaxFeaturesPerCell]
	}

	offset := image.Pt(x*cw, y*ch)
	fs := make([]grid.Feature, 0, len(accepted))
	for _, c := range accepted {
		cellPos := image.Pt(int(c.X), int(c.Y))
		fs = append(fs, grid.NewFeature(&t.ids, cellPos, cellPos.Add(offset)))
	}
	t.grid.SetFeatures(x, y, l, fs)
}

// extendMap merges the current frame into the mosaic, marks every cell the
// merge completed as covered and seeds features there.
func (t *Tracker) extendMap(mode config.Mode) {
	defer t.timer.Track("extend map")()
	view := t.view.Rect(grid.Full)
	unset := t.grid.UnsetVisibleCells(view)
	written := t.mosaic.Merge(view, t.frames[grid.Full])

	mask := t.mosaic.Mask(mosaic.MaskMap)
	var changed []image.Point
	for _, c := range unset {
		if t.grid.UpdateCoverage(c.X, c.Y, mask) {
			changed = append(changed, c)
		}
	}
	t.mosaic.RefreshLevels(len(changed) > 0)
	for _, c := range changed {
		for _, l := range mode.SeedLevels() {
			t.seedCell(c.X, c.Y, l)
		}
	}
	t.stats.Extended = written > 0
	if len(changed) > 0 {
		t.logger.Debug().Int("pixels", written).Int("cells", len(changed)).Msg("extended map")
	}
}

// relocalize looks the current frame up among the snapshots and jumps to
// the best one when it is good enough.
func (t *Tracker) relocalize() {
	defer t.timer.Track("relocalize")()
	o, score, ok := t.reloc.Relocalize(t.raw)
	if !ok || !t.metric.Better(score, t.settings.MinRelocQuality) {
		return
	}
	target := image.Pt(
		int(t.yawToPixels(o.Yaw))-t.view.Width/2,
		int(t.pitchToPixels(o.Pitch))-t.view.Height/2,
	)
	t.roll = o.Roll
	t.moveViewpoint(float64(target.X-t.view.X), float64(target.Y-t.view.Y))
	t.state = Tracking
	t.stats.Relocalized = true
	t.logger.Info().
		Float64("yaw", o.Yaw).Float64("pitch", o.Pitch).Float64("score", score).
		Msg("relocalized")
}

// moveViewpoint shifts the viewpoint, wrapping around once the loop is
// closed, and recomputes yaw and pitch.
func (t *Tracker) moveViewpoint(dx, dy float64) {
	if t.closer != nil && t.closer.Closed() {
		r := t.closer.Result()
		t.view.MoveWrapped(dx, dy, t.mapW, t.mapH, r.MinJump, r.MaxJump)
	} else {
		t.view.Move(dx, dy, t.mapW, t.mapH)
	}
	t.updateOrientation()
}

func (t *Tracker) updateOrientation() {
	c := t.view.Center()
	t.yaw = t.pixelsToYaw(float64(c.X))
	t.pitch = t.pixelsToPitch(float64(c.Y))
}

// degreesPerPixel is the horizontal angle covered by one projected pixel.
func (t *Tracker) degreesPerPixel() float64 {
	return t.settings.FOVHorizontal / float64(t.imgW)
}

func (t *Tracker) pixelsToYaw(x float64) float64 {
	return (x - float64(t.mapW)/2) * t.degreesPerPixel()
}

func (t *Tracker) yawToPixels(yaw float64) float64 {
	return yaw/t.degreesPerPixel() + float64(t.mapW)/2
}

func (t *Tracker) pixelsToPitch(y float64) float64 {
	vert := t.settings.MapVerticalDegrees
	return y/float64(t.mapH)*vert - vert/2
}

func (t *Tracker) pitchToPixels(pitch float64) float64 {
	vert := t.settings.MapVerticalDegrees
	return (pitch + vert/2) / vert * float64(t.mapH)
}

// SetOrientation moves the viewpoint to the given orientation and merges
// the last frame there. From then on the host drives the orientation and
// tracking no longer extends the map on its own.
func (t *Tracker) SetOrientation(yaw, pitch, roll float64) error {
	if !t.initialized {
		return ErrNotInitialized
	}
	t.manual = true
	dx := (yaw - t.yaw) / t.degreesPerPixel()
	dy := (pitch - t.pitch) / t.settings.MapVerticalDegrees * float64(t.mapH)
	t.roll = roll
	t.moveViewpoint(dx, dy)
	t.extendMap(t.settings.Mode())
	t.logger.Debug().Float64("yaw", t.yaw).Float64("pitch", t.pitch).Float64("roll", t.roll).Msg("orientation set")
	return nil
}

// ManualOrientation reports whether SetOrientation took over the map
// updates.
func (t *Tracker) ManualOrientation() bool { return t.manual }

// InvalidateColumn forgets the grid column containing p, a full resolution
// mosaic position, so the next frames rebuild it. It reports whether p hit a
// column.
func (t *Tracker) InvalidateColumn(p image.Point) bool {
	if !t.initialized {
		return false
	}
	cw, _ := t.grid.CellSize(grid.Full)
	col := p.X / cw
	if p.X < 0 || col >= t.grid.Columns() {
		return false
	}
	t.grid.ClearColumn(col)
	t.mosaic.InvalidateRegion(image.Rect(col*cw, 0, (col+1)*cw, t.mapH))
	t.logger.Info().Int("column", col).Msg("invalidated column")
	return true
}

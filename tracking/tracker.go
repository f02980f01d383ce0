package tracking

import (
	"errors"
	"fmt"
	"image"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"panotracker/config"
	"panotracker/grid"
	"panotracker/loopclose"
	"panotracker/mosaic"
	"panotracker/relocalizer"
	"panotracker/rotation"
	"panotracker/telemetry"
	"panotracker/viewpoint"
	"panotracker/vision"
)

var (
	// ErrNotInitialized is returned by frame operations before Initialize.
	ErrNotInitialized = errors.New("tracker not initialized")
	// ErrEmptyFrame is returned for frames without pixels.
	ErrEmptyFrame = errors.New("empty frame")
)

// State is the tracking state machine.
type State int

const (
	Tracking State = iota
	Relocalizing
	// Stopped is reserved; no transition leads to it.
	Stopped
)

func (s State) String() string {
	switch s {
	case Tracking:
		return "tracking"
	case Relocalizing:
		return "relocalizing"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Orientation is yaw, pitch and roll in degrees.
type Orientation = relocalizer.Orientation

// MatchedFeature is a full resolution feature matched in the current frame,
// kept for rotation estimation.
type MatchedFeature struct {
	FeatureID    int
	Displacement image.Point
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithProjector replaces the cylindrical projection.
func WithProjector(p vision.Projector) Option {
	return func(t *Tracker) { t.projector = p }
}

// WithCornerDetector replaces the FAST detector.
func WithCornerDetector(d vision.CornerDetector) Option {
	return func(t *Tracker) { t.corners = d }
}

// WithTemplateMatcher replaces the OpenCV template matcher.
func WithTemplateMatcher(m vision.TemplateMatcher) Option {
	return func(t *Tracker) { t.templates = m }
}

// WithSparseMatcher replaces the ORB matcher used for loop closure.
func WithSparseMatcher(m vision.SparseFeatureMatcher) Option {
	return func(t *Tracker) { t.sparse = m }
}

// WithLogger sets the logger; the default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithTelemetry shares timer with the caller, who can then read stage
// timings between frames.
func WithTelemetry(timer *telemetry.Timer) Option {
	return func(t *Tracker) { t.timer = timer }
}

// WithMapSize fixes the mosaic size in pixels instead of deriving it from
// the field of view and the map degrees.
func WithMapSize(width, height int) Option {
	return func(t *Tracker) { t.fixedMap = image.Pt(width, height) }
}

// Tracker estimates camera orientation by tracking features against a
// panorama it builds from the frames it sees. A Tracker is not safe for
// concurrent use.
type Tracker struct {
	settings config.Settings
	logger   zerolog.Logger
	session  string

	projector vision.Projector
	corners   vision.CornerDetector
	templates vision.TemplateMatcher
	sparse    vision.SparseFeatureMatcher
	metric    vision.Metric
	timer     *telemetry.Timer
	fixedMap  image.Point

	ids      grid.IDAllocator
	grid     *grid.Grid
	mosaic   *mosaic.Mosaic
	view     *viewpoint.Viewpoint
	reloc    *relocalizer.Relocalizer
	closer   *loopclose.Closer
	rotation rotation.Estimator

	initialized bool
	state       State
	frames      [3]gocv.Mat
	raw         gocv.Mat

	imgW, imgH int
	mapW, mapH int
	viewPixels int

	yaw, pitch, roll   float64
	quality, deviation float64
	manual             bool
	movedYaw, movedPit float64
	snapYaw, snapPit   float64

	matched    []MatchedFeature
	stats      telemetry.FrameStats
	frameCount int
}

// New creates a tracker. Call Initialize with the first frame before
// processing frames.
func New(settings config.Settings, opts ...Option) (*Tracker, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	t := &Tracker{
		settings:  settings,
		logger:    zerolog.Nop(),
		session:   uuid.NewString(),
		corners:   vision.FASTDetector{},
		templates: vision.CVTemplateMatcher{},
		sparse:    vision.ORBMatcher{},
		metric:    vision.SqDiffNormed,
		timer:     telemetry.NewTimer(),
		raw:       gocv.NewMat(),
	}
	for i := range t.frames {
		t.frames[i] = gocv.NewMat()
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.projector == nil {
		t.projector = vision.NewCylindricalProjector(settings.FocalLength, settings.ProjectionScale)
	}
	t.logger = t.logger.With().Str("session", t.session).Logger()
	t.rotation = rotation.Estimator{
		MinCorrespondences: settings.RotationMinCorrespondences,
		MaxResidual:        settings.RotationMaxResidual,
	}
	return t, nil
}

// Initialize seeds the mosaic with frame, centred in the panorama, and
// detects features in every cell the frame covers completely. Calling it
// again starts a new panorama.
func (t *Tracker) Initialize(frame gocv.Mat) error {
	if frame.Empty() {
		return ErrEmptyFrame
	}
	gray, err := toGray(frame)
	if err != nil {
		return err
	}
	if cp, ok := t.projector.(*vision.CylindricalProjector); ok && cp.Focal <= 0 {
		cp.Focal = vision.FocalFromFOV(gray.Cols(), t.settings.FOVHorizontal)
	}
	warped, mask, err := t.projector.Project(gray, 0, t.pitch, t.roll)
	if err != nil {
		gray.Close()
		return fmt.Errorf("project first frame: %w", err)
	}
	defer mask.Close()

	// A frame that does not fit leaves the running panorama untouched.
	s := t.settings
	imgW, imgH := mask.Cols(), mask.Rows()
	mapW := int(float64(imgW) / s.FOVHorizontal * s.MapHorizontalDegrees)
	mapH := int(float64(imgH) / s.FOVVertical * s.MapVerticalDegrees)
	if t.fixedMap != (image.Point{}) {
		mapW, mapH = t.fixedMap.X, t.fixedMap.Y
	}
	cellW, cellH := mapW/s.Columns, mapH/s.Rows
	if cellW <= 0 || cellH <= 0 || imgW > mapW || imgH > mapH {
		gray.Close()
		warped.Close()
		return fmt.Errorf("frame %dx%d does not fit a %dx%d mosaic of %dx%d cells",
			imgW, imgH, mapW, mapH, s.Columns, s.Rows)
	}

	t.release()
	t.imgW, t.imgH = imgW, imgH
	t.mapW, t.mapH = mapW, mapH
	t.viewPixels = int(float64(imgW) / s.FOVHorizontal * s.MapViewDegrees)

	mode := s.Mode()
	t.mosaic = mosaic.New(t.mapW, t.mapH, mode.Pyramidal)
	t.mosaic.SetCurrentMask(mask)
	t.mosaic.Init(warped)
	t.grid = grid.New(s.Columns, s.Rows, cellW, cellH)
	t.view = viewpoint.Centered(t.imgW, t.imgH, t.mapW, t.mapH)
	t.reloc = relocalizer.New(s.ThumbnailWidth, s.ThumbnailHeight, s.ThumbnailBlur, t.templates)
	t.closer = loopclose.New(s.LoopClosureDegrees, s.LoopClosureFeatures, s.LoopMatchMaxDistance, s.LoopClosureMaxAttempts, t.sparse)
	t.ids = grid.IDAllocator{}

	mapMask := t.mosaic.Mask(mosaic.MaskMap)
	for x := 0; x < s.Columns; x++ {
		for y := 0; y < s.Rows; y++ {
			if t.grid.UpdateCoverage(x, y, mapMask) {
				for _, l := range mode.SeedLevels() {
					t.seedCell(x, y, l)
				}
			}
		}
	}

	t.storeFrames(gray, warped, mode)
	t.state = Tracking
	t.yaw, t.pitch = 0, 0
	t.updateOrientation()
	t.quality, t.deviation = 0, 0
	t.manual = false
	t.movedYaw, t.movedPit, t.snapYaw, t.snapPit = 0, 0, 0, 0
	t.frameCount = 0
	t.initialized = true

	// Without a first snapshot an early tracking loss could never recover.
	t.reloc.AddSnapshot(t.raw, t.Orientation())

	t.logger.Info().
		Int("map_width", t.mapW).Int("map_height", t.mapH).
		Int("image_width", t.imgW).Int("image_height", t.imgH).
		Int("cell_width", cellW).Int("cell_height", cellH).
		Int("features", t.grid.FeatureCount(grid.Full)).
		Msg("initialized panorama")
	return nil
}

// ProcessFrame tracks frame against the panorama and updates orientation,
// mosaic, features and tracking state. An error means the frame was not
// used; the tracker state is unchanged.
func (t *Tracker) ProcessFrame(frame gocv.Mat) error {
	if !t.initialized {
		return ErrNotInitialized
	}
	if frame.Empty() {
		return ErrEmptyFrame
	}
	t.timer.Reset()
	stopFrame := t.timer.Track("process frame")

	mode := t.settings.Mode()
	if err := t.updateCurrentFrame(frame, mode); err != nil {
		stopFrame()
		return err
	}
	t.frameCount++
	t.stats = telemetry.FrameStats{Frame: t.frameCount}

	prevYaw, prevPitch := t.yaw, t.pitch
	sufficient := false
	if t.state == Tracking {
		if mode.RotationInvariant {
			t.matched = t.matched[:0]
		}
		var qualities []float64
		for _, l := range mode.TrackingLevels() {
			dev, qs := t.trackLevel(l, mode)
			qualities = append(qualities, qs...)
			if l == grid.Full {
				t.deviation = dev
			}
		}
		if mode.RotationInvariant {
			t.estimateRotation()
		}
		t.quality = mean(qualities)
		sufficient = t.metric.Passes(t.quality, t.settings.MinTrackingQuality) &&
			t.deviation <= t.settings.MaxDeviation
		if !sufficient {
			t.state = Relocalizing
			t.logger.Warn().
				Float64("quality", t.quality).Float64("deviation", t.deviation).
				Msg("tracking lost, relocalizing")
		}
	}

	if t.state == Relocalizing {
		t.relocalize()
	}

	if sufficient {
		t.snapYaw += prevYaw - t.yaw
		t.snapPit += prevPitch - t.pitch
		every := t.settings.SnapshotEveryDegrees
		if abs(t.snapYaw) > every || abs(t.snapPit) > every {
			t.reloc.AddSnapshot(t.raw, t.Orientation())
			t.snapYaw, t.snapPit = 0, 0
		}
	}

	if t.state == Tracking && sufficient && !t.manual {
		t.movedYaw += prevYaw - t.yaw
		t.movedPit += prevPitch - t.pitch
		step := t.settings.MapUpdateDegrees
		if step <= 0 || abs(t.movedYaw) > step || abs(t.movedPit) > step {
			t.extendMap(mode)
			t.movedYaw, t.movedPit = 0, 0
		}
	}

	t.checkLoopClosure()

	stopFrame()
	t.stats.State = t.state.String()
	t.stats.Quality = t.quality
	t.stats.Deviation = t.deviation
	t.stats.Sufficient = sufficient
	for _, l := range grid.Levels {
		t.stats.Features[l] = t.grid.FeatureCount(l)
	}
	t.stats.Snapshots = t.reloc.Len()
	t.stats.LoopClosed = t.closer.Closed()
	t.stats.Timings = t.timer.Results()
	return nil
}

func (t *Tracker) checkLoopClosure() {
	t.closer.Observe(t.yaw, t.view.X, t.frames[grid.Full])
	if !t.closer.Due() {
		return
	}
	defer t.timer.Track("loop closure")()
	res, closed := t.closer.Attempt()
	switch {
	case !closed:
		t.logger.Debug().Int("attempt", t.closer.Attempts()).Msg("loop closure found no matches, will retry")
	case res.Fallback:
		t.logger.Warn().
			Int("min_jump", res.MinJump).Int("max_jump", res.MaxJump).
			Int("attempts", t.closer.Attempts()).
			Msg("loop closed without matches, seam is uncorrected")
	default:
		t.logger.Info().
			Int("min_jump", res.MinJump).Int("max_jump", res.MaxJump).
			Float64("offset", res.Offset).Int("matches", res.Matches).
			Msg("loop closed")
	}
}

// updateCurrentFrame projects frame with the current orientation and keeps
// the grayscale, projected and downsampled versions.
func (t *Tracker) updateCurrentFrame(frame gocv.Mat, mode config.Mode) error {
	defer t.timer.Track("update current frame")()
	gray, err := toGray(frame)
	if err != nil {
		return err
	}
	warped, mask, err := t.projector.Project(gray, t.yaw, t.pitch, t.roll)
	if err != nil {
		gray.Close()
		return fmt.Errorf("project frame: %w", err)
	}
	defer mask.Close()
	t.mosaic.SetCurrentMask(mask)
	t.view.Resize(mask.Cols(), mask.Rows(), t.mapW, t.mapH)
	t.storeFrames(gray, warped, mode)
	return nil
}

func (t *Tracker) storeFrames(gray, warped gocv.Mat, mode config.Mode) {
	t.raw.Close()
	t.raw = gray
	t.frames[grid.Full].Close()
	t.frames[grid.Full] = warped
	if !mode.Pyramidal {
		return
	}
	for _, l := range []grid.Level{grid.Half, grid.Quarter} {
		f := l.Factor()
		gocv.Resize(warped, &t.frames[l], image.Pt(warped.Cols()/f, warped.Rows()/f), 0, 0, gocv.InterpolationLinear)
	}
}

func toGray(frame gocv.Mat) (gocv.Mat, error) {
	switch frame.Channels() {
	case 1:
		return frame.Clone(), nil
	case 3:
		gray := gocv.NewMat()
		gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
		return gray, nil
	case 4:
		gray := gocv.NewMat()
		gocv.CvtColor(frame, &gray, gocv.ColorBGRAToGray)
		return gray, nil
	}
	return gocv.NewMat(), fmt.Errorf("unsupported frame with %d channels", frame.Channels())
}

// Orientation returns the current yaw, pitch and roll in degrees.
func (t *Tracker) Orientation() Orientation {
	return Orientation{Yaw: t.yaw, Pitch: t.pitch, Roll: t.roll}
}

// Quality returns the mean match score of the last frame. With the default
// metric 0 is a perfect match.
func (t *Tracker) Quality() float64 { return t.quality }

// Deviation returns the spread of full resolution feature motions in the
// last frame.
func (t *Tracker) Deviation() float64 { return t.deviation }

func (t *Tracker) State() State { return t.state }

func (t *Tracker) Initialized() bool { return t.initialized }

// SessionID identifies this tracker in logs and recordings.
func (t *Tracker) SessionID() string { return t.session }

func (t *Tracker) Settings() config.Settings { return t.settings }

// Stats returns the statistics of the last processed frame.
func (t *Tracker) Stats() telemetry.FrameStats { return t.stats }

// LoopClosed reports whether the panorama wraps around.
func (t *Tracker) LoopClosed() bool {
	return t.closer != nil && t.closer.Closed()
}

// MapSize returns the full resolution mosaic size.
func (t *Tracker) MapSize() image.Point {
	return image.Pt(t.mapW, t.mapH)
}

// Viewpoint returns the current view rectangle at full resolution.
func (t *Tracker) Viewpoint() image.Rectangle {
	if t.view == nil {
		return image.Rectangle{}
	}
	return t.view.Rect(grid.Full)
}

// OrientationPixels returns the view centre relative to the mosaic centre.
func (t *Tracker) OrientationPixels() image.Point {
	if t.view == nil {
		return image.Point{}
	}
	return t.view.Center().Sub(image.Pt(t.mapW/2, t.mapH/2))
}

// ApplySettings takes over the runtime tunable subset of s. Geometry and
// modes keep the values the tracker was created with.
func (t *Tracker) ApplySettings(s config.Settings) error {
	next := t.settings.WithTunables(s)
	if err := next.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	t.settings = next
	t.rotation.MinCorrespondences = next.RotationMinCorrespondences
	t.rotation.MaxResidual = next.RotationMaxResidual
	t.logger.Info().Msg("applied runtime settings")
	return nil
}

// Reset drops the panorama. The next frame must go to Initialize.
func (t *Tracker) Reset() {
	t.release()
	t.initialized = false
	t.state = Tracking
	t.yaw, t.pitch, t.roll = 0, 0, 0
	t.quality, t.deviation = 0, 0
	t.stats = telemetry.FrameStats{}
	t.logger.Info().Msg("tracker reset")
}

func (t *Tracker) release() {
	if t.mosaic != nil {
		t.mosaic.Close()
		t.mosaic = nil
	}
	if t.reloc != nil {
		t.reloc.Close()
		t.reloc = nil
	}
	if t.closer != nil {
		t.closer.Close()
		t.closer = nil
	}
	t.grid = nil
	t.view = nil
	t.matched = nil
}

// Close releases every image held by the tracker.
func (t *Tracker) Close() {
	t.release()
	t.initialized = false
	t.raw.Close()
	for i := range t.frames {
		t.frames[i].Close()
	}
	if c, ok := t.projector.(interface{ Close() }); ok {
		c.Close()
	}
}

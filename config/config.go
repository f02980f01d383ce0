package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"panotracker/grid"
)

// Settings holds every tunable of the tracker. Zero values are not
// meaningful; start from Default and override.
type Settings struct {
	// Cell grid
	Columns int `yaml:"columns"`
	Rows    int `yaml:"rows"`

	// Camera and projection
	FOVHorizontal   float64 `yaml:"fov_horizontal"`
	FOVVertical     float64 `yaml:"fov_vertical"`
	FocalLength     float64 `yaml:"focal_length"`     // pixels, 0 derives it from the horizontal FOV
	ProjectionScale float64 `yaml:"projection_scale"` // cylinder radius in output pixels

	// Feature detection and template matching
	SupportAreaSize     int     `yaml:"support_area_size"`
	SearchSizeFull      int     `yaml:"search_size_full"`
	SearchSizeHalf      int     `yaml:"search_size_half"`
	SearchSizeQuarter   int     `yaml:"search_size_quarter"`
	FASTThreshold       int     `yaml:"fast_threshold"`
	MaxFeaturesPerCell  int     `yaml:"max_features_per_cell"`
	MaxDevFilterFull    float64 `yaml:"max_dev_filter_full"`
	MaxDevFilterHalf    float64 `yaml:"max_dev_filter_half"`
	MaxDevFilterQuarter float64 `yaml:"max_dev_filter_quarter"`

	// Tracking quality
	MinTrackingQuality float64 `yaml:"min_tracking_quality"`
	MinRelocQuality    float64 `yaml:"min_reloc_quality"`
	MaxDeviation       float64 `yaml:"max_deviation"`

	// Modes
	Pyramidal         bool `yaml:"pyramidal"`
	RotationInvariant bool `yaml:"rotation_invariant"`

	// Mosaic geometry in degrees
	MapHorizontalDegrees float64 `yaml:"map_horizontal_degrees"`
	MapVerticalDegrees   float64 `yaml:"map_vertical_degrees"`
	MapViewDegrees       float64 `yaml:"map_view_degrees"`
	MapUpdateDegrees     float64 `yaml:"map_update_degrees"`
	SnapshotEveryDegrees float64 `yaml:"snapshot_every_degrees"`

	// Rotation estimation
	RotationMinCorrespondences int     `yaml:"rotation_min_correspondences"`
	RotationMaxResidual        float64 `yaml:"rotation_max_residual"`

	// Relocalization thumbnails
	ThumbnailWidth  int `yaml:"thumbnail_width"`
	ThumbnailHeight int `yaml:"thumbnail_height"`
	ThumbnailBlur   int `yaml:"thumbnail_blur"`

	// Loop closure
	LoopClosureDegrees     float64 `yaml:"loop_closure_degrees"`
	LoopClosureFeatures    int     `yaml:"loop_closure_features"`
	LoopMatchMaxDistance   float64 `yaml:"loop_match_max_distance"`
	LoopClosureMaxAttempts int     `yaml:"loop_closure_max_attempts"`
}

// Default returns the settings the tracker was tuned with on a 640x480
// webcam.
func Default() Settings {
	return Settings{
		Columns:                    64,
		Rows:                       18,
		FOVHorizontal:              49,
		FOVVertical:                43,
		FocalLength:                623.1,
		ProjectionScale:            407,
		SupportAreaSize:            8,
		SearchSizeFull:             16,
		SearchSizeHalf:             16,
		SearchSizeQuarter:          16,
		FASTThreshold:              12,
		MaxFeaturesPerCell:         10,
		MaxDevFilterFull:           6,
		MaxDevFilterHalf:           4,
		MaxDevFilterQuarter:        2,
		MinTrackingQuality:         0.1,
		MinRelocQuality:            0.07,
		MaxDeviation:               6,
		MapHorizontalDegrees:       820,
		MapVerticalDegrees:         90,
		MapViewDegrees:             360,
		MapUpdateDegrees:           2,
		SnapshotEveryDegrees:       10,
		RotationMinCorrespondences: 16,
		RotationMaxResidual:        3,
		ThumbnailWidth:             80,
		ThumbnailHeight:            60,
		ThumbnailBlur:              5,
		LoopClosureDegrees:         370,
		LoopClosureFeatures:        200,
		LoopMatchMaxDistance:       64,
		LoopClosureMaxAttempts:     5,
	}
}

// Validate checks that the settings can drive a tracker.
func (s Settings) Validate() error {
	if s.Columns <= 0 || s.Rows <= 0 {
		return fmt.Errorf("grid must have at least one cell, got %dx%d", s.Columns, s.Rows)
	}
	if s.FOVHorizontal <= 0 || s.FOVHorizontal >= 180 {
		return fmt.Errorf("fov_horizontal must be in (0, 180), got %g", s.FOVHorizontal)
	}
	if s.FOVVertical <= 0 || s.FOVVertical >= 180 {
		return fmt.Errorf("fov_vertical must be in (0, 180), got %g", s.FOVVertical)
	}
	if s.FocalLength < 0 {
		return fmt.Errorf("focal_length must be non-negative, got %g", s.FocalLength)
	}
	if s.ProjectionScale <= 0 {
		return fmt.Errorf("projection_scale must be positive, got %g", s.ProjectionScale)
	}
	if s.SupportAreaSize < 2 || s.SupportAreaSize%2 != 0 {
		return fmt.Errorf("support_area_size must be an even number >= 2, got %d", s.SupportAreaSize)
	}
	for _, l := range grid.Levels {
		if s.SearchSize(l) < s.SupportAreaSize {
			return fmt.Errorf("search size at %s level (%d) is smaller than the support area (%d)",
				l, s.SearchSize(l), s.SupportAreaSize)
		}
		if s.MaxDevFilter(l) <= 0 {
			return fmt.Errorf("max deviation filter at %s level must be positive, got %g", l, s.MaxDevFilter(l))
		}
	}
	if s.FASTThreshold <= 0 {
		return fmt.Errorf("fast_threshold must be positive, got %d", s.FASTThreshold)
	}
	if s.MaxFeaturesPerCell <= 0 {
		return fmt.Errorf("max_features_per_cell must be positive, got %d", s.MaxFeaturesPerCell)
	}
	if s.MinTrackingQuality < 0 || s.MinRelocQuality < 0 {
		return fmt.Errorf("quality thresholds must be non-negative")
	}
	if s.MaxDeviation <= 0 {
		return fmt.Errorf("max_deviation must be positive, got %g", s.MaxDeviation)
	}
	if s.MapHorizontalDegrees <= s.LoopClosureDegrees {
		return fmt.Errorf("map_horizontal_degrees (%g) must exceed loop_closure_degrees (%g)",
			s.MapHorizontalDegrees, s.LoopClosureDegrees)
	}
	if s.MapVerticalDegrees <= 0 || s.MapViewDegrees <= 0 {
		return fmt.Errorf("map degrees must be positive")
	}
	if s.RotationMinCorrespondences < 3 {
		return fmt.Errorf("rotation_min_correspondences must be at least 3, got %d", s.RotationMinCorrespondences)
	}
	if s.ThumbnailWidth <= 0 || s.ThumbnailHeight <= 0 {
		return fmt.Errorf("thumbnail size must be positive, got %dx%d", s.ThumbnailWidth, s.ThumbnailHeight)
	}
	if s.ThumbnailBlur <= 0 {
		return fmt.Errorf("thumbnail_blur must be positive, got %d", s.ThumbnailBlur)
	}
	if s.LoopClosureFeatures <= 0 || s.LoopMatchMaxDistance <= 0 {
		return fmt.Errorf("loop closure features and match distance must be positive")
	}
	if s.LoopClosureMaxAttempts < 1 {
		return fmt.Errorf("loop_closure_max_attempts must be at least 1, got %d", s.LoopClosureMaxAttempts)
	}
	return nil
}

// SearchSize returns the template search window edge for level l.
func (s Settings) SearchSize(l grid.Level) int {
	switch l {
	case grid.Half:
		return s.SearchSizeHalf
	case grid.Quarter:
		return s.SearchSizeQuarter
	}
	return s.SearchSizeFull
}

// MaxDevFilter returns the outlier threshold applied to motions at level l.
func (s Settings) MaxDevFilter(l grid.Level) float64 {
	switch l {
	case grid.Half:
		return s.MaxDevFilterHalf
	case grid.Quarter:
		return s.MaxDevFilterQuarter
	}
	return s.MaxDevFilterFull
}

// WithTunables returns s with the fields that may change while a tracker
// is running copied from src. Geometry and mode stay as they were.
func (s Settings) WithTunables(src Settings) Settings {
	s.FASTThreshold = src.FASTThreshold
	s.MaxFeaturesPerCell = src.MaxFeaturesPerCell
	s.SearchSizeFull = src.SearchSizeFull
	s.SearchSizeHalf = src.SearchSizeHalf
	s.SearchSizeQuarter = src.SearchSizeQuarter
	s.MaxDevFilterFull = src.MaxDevFilterFull
	s.MaxDevFilterHalf = src.MaxDevFilterHalf
	s.MaxDevFilterQuarter = src.MaxDevFilterQuarter
	s.MinTrackingQuality = src.MinTrackingQuality
	s.MinRelocQuality = src.MinRelocQuality
	s.MaxDeviation = src.MaxDeviation
	s.MapUpdateDegrees = src.MapUpdateDegrees
	s.SnapshotEveryDegrees = src.SnapshotEveryDegrees
	return s
}

// Load reads a YAML settings file on top of Default. Keys the tracker does
// not know are reported on logger and otherwise ignored.
func Load(path string, logger zerolog.Logger) (Settings, error) {
	clean := filepath.Clean(path)
	if ext := strings.ToLower(filepath.Ext(clean)); ext != ".yaml" && ext != ".yml" {
		return Settings{}, fmt.Errorf("settings file must have .yaml or .yml extension, got %q", ext)
	}
	data, err := os.ReadFile(clean)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings file: %w", err)
	}

	s := Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings YAML: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings YAML: %w", err)
	}
	for _, key := range UnknownKeys(raw) {
		logger.Warn().Str("key", key).Str("file", clean).Msg("ignoring unknown setting")
	}

	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

// UnknownKeys returns the sorted keys of raw that do not name a setting.
func UnknownKeys(raw map[string]any) []string {
	known := make(map[string]bool)
	t := reflect.TypeOf(Settings{})
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("yaml"), ",")[0]
		if tag != "" {
			known[tag] = true
		}
	}
	var unknown []string
	for k := range raw {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	return unknown
}

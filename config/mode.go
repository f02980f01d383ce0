package config

import "panotracker/grid"

// Mode is the per-frame processing plan derived from Settings. The tracker
// reads it once at the top of each frame.
type Mode struct {
	Pyramidal         bool
	RotationInvariant bool
}

// Mode returns the processing plan of s.
func (s Settings) Mode() Mode {
	return Mode{Pyramidal: s.Pyramidal, RotationInvariant: s.RotationInvariant}
}

// TrackingLevels lists the levels to match, coarse to fine.
func (m Mode) TrackingLevels() []grid.Level {
	if m.Pyramidal {
		return []grid.Level{grid.Quarter, grid.Half, grid.Full}
	}
	return []grid.Level{grid.Full}
}

// SeedLevels lists the levels that receive features when a cell fills.
func (m Mode) SeedLevels() []grid.Level {
	if m.Pyramidal {
		return []grid.Level{grid.Full, grid.Half, grid.Quarter}
	}
	return []grid.Level{grid.Full}
}

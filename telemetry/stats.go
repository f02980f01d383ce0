package telemetry

import (
	"fmt"
	"strings"
)

// LevelStats counts how the features of one resolution level fared in a
// frame.
type LevelStats struct {
	Used      int // motions kept by the outlier filter
	Discarded int // motions rejected by the outlier filter
	Failed    int // search window left the frame
	Removed   int // features dropped for reaching zero quality
}

// FrameStats summarises the last processed frame.
type FrameStats struct {
	Frame       int
	State       string
	Quality     float64
	Deviation   float64
	Sufficient  bool
	Levels      [3]LevelStats
	Features    [3]int
	Snapshots   int
	Relocalized bool
	Extended    bool
	LoopClosed  bool
	Timings     []Timing
}

var levelNames = [3]string{"full", "half", "quarter"}

// String renders the stats as the multi-line debug report shown by the
// harness.
func (s FrameStats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "frame %d state %s quality %.3f deviation %.2f\n", s.Frame, s.State, s.Quality, s.Deviation)
	for i, l := range s.Levels {
		fmt.Fprintf(&b, "%s: used %d discarded %d failed %d removed %d features %d\n",
			levelNames[i], l.Used, l.Discarded, l.Failed, l.Removed, s.Features[i])
	}
	fmt.Fprintf(&b, "snapshots %d loop closed %t\n", s.Snapshots, s.LoopClosed)
	for _, t := range s.Timings {
		b.WriteString(t.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// Lines splits the report into display lines.
func (s FrameStats) Lines() []string {
	return strings.Split(strings.TrimRight(s.String(), "\n"), "\n")
}

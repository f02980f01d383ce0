package telemetry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerAccumulates(t *testing.T) {
	clock := time.Unix(0, 0)
	tm := NewTimer()
	tm.now = func() time.Time { return clock }

	tm.Start("match")
	clock = clock.Add(3 * time.Millisecond)
	tm.Stop("match")

	stop := tm.Track("extend")
	clock = clock.Add(time.Millisecond)
	stop()

	tm.Start("match")
	clock = clock.Add(2 * time.Millisecond)
	tm.Stop("match")

	tm.Stop("never started")

	res := tm.Results()
	require.Len(t, res, 2)
	assert.Equal(t, Timing{Name: "match", Elapsed: 5 * time.Millisecond, Calls: 2}, res[0])
	assert.Equal(t, "extend", res[1].Name)
	assert.Equal(t, "match: 5.00ms (2)", res[0].String())

	tm.Reset()
	assert.Empty(t, tm.Results())
}

func TestFrameStatsLines(t *testing.T) {
	s := FrameStats{Frame: 3, State: "tracking", Quality: 0.05}
	s.Levels[0] = LevelStats{Used: 10, Discarded: 2}
	lines := s.Lines()
	assert.Equal(t, "frame 3 state tracking quality 0.050 deviation 0.00", lines[0])
	assert.Equal(t, "full: used 10 discarded 2 failed 0 removed 0 features 0", lines[1])
	assert.Len(t, lines, 5)
}

func TestHistoryLimit(t *testing.T) {
	h := NewHistory(2)
	for i := 0; i < 5; i++ {
		h.Add(Sample{Frame: i})
	}
	assert.Equal(t, 2, h.Len())
	assert.Equal(t, 3, h.Samples()[0].Frame)
}

func TestSavePlots(t *testing.T) {
	dir := t.TempDir()
	h := NewHistory(0)
	assert.Error(t, h.SaveOrientationPlot(filepath.Join(dir, "empty.png")))

	for i := 0; i < 20; i++ {
		h.Add(Sample{Frame: i, Yaw: float64(i), Pitch: 1, Roll: -1, Quality: 0.02, Deviation: 1})
	}
	orientation := filepath.Join(dir, "orientation.png")
	require.NoError(t, h.SaveOrientationPlot(orientation))
	quality := filepath.Join(dir, "quality.svg")
	require.NoError(t, h.SaveQualityPlot(quality))

	for _, p := range []string{orientation, quality} {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}

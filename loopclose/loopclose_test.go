package loopclose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"panotracker/synth"
	"panotracker/vision"
)

type noMatches struct{}

func (noMatches) DetectAndDescribe(gocv.Mat, int) ([]vision.Keypoint, gocv.Mat) {
	return nil, gocv.NewMat()
}

func (noMatches) Match(_, _ gocv.Mat) []vision.Correspondence { return nil }

func TestMatchRecoversHorizontalShift(t *testing.T) {
	pano := synth.Panorama(800, 240, 21)
	defer pano.Close()
	cam := synth.NewCamera(pano, 320, 240)

	const shift = 20
	cam.X = 200
	minImg := cam.Frame()
	defer minImg.Close()
	cam.X = 200 + shift
	maxImg := cam.Frame()
	defer maxImg.Close()

	res, ok := Match(vision.ORBMatcher{}, minImg, maxImg, 1000, 4000, 200, 64)
	require.True(t, ok)
	assert.False(t, res.Fallback)
	assert.Greater(t, res.Matches, 10)
	assert.InDelta(t, shift, res.Offset, 2)
	assert.Equal(t, 1000, res.MinJump)
	assert.InDelta(t, 4000-1000-shift, res.MaxJump-res.MinJump, 2)
}

func TestMatchWithoutCorrespondences(t *testing.T) {
	img := gocv.NewMat()
	defer img.Close()

	res, ok := Match(noMatches{}, img, img, 10, 500, 200, 64)
	assert.False(t, ok)
	assert.True(t, res.Fallback)
	assert.Equal(t, 10, res.MinJump)
	assert.Equal(t, 500, res.MaxJump)
}

func TestCloserTracksExtremes(t *testing.T) {
	c := New(370, 200, 64, 3, noMatches{})
	defer c.Close()

	frame := synth.Panorama(40, 30, 1)
	defer frame.Close()

	c.Observe(0, 500, frame)
	c.Observe(-20, 300, frame)
	c.Observe(200, 2400, frame)
	assert.Equal(t, 220.0, c.Span())
	assert.False(t, c.Due())

	c.Observe(360, 4000, frame)
	assert.True(t, c.Due())
}

func TestCloserRetriesThenFallsBack(t *testing.T) {
	c := New(370, 200, 64, 2, noMatches{})
	defer c.Close()

	frame := synth.Panorama(40, 30, 1)
	defer frame.Close()

	c.Observe(0, 1000, frame)
	c.Observe(380, 5000, frame)
	require.True(t, c.Due())

	_, closed := c.Attempt()
	assert.False(t, closed)
	assert.False(t, c.Due(), "no retry until an extreme frame changes")

	c.Observe(200, 3000, frame)
	assert.False(t, c.Due(), "an interior yaw is not a new extreme")

	c.Observe(381, 5010, frame)
	require.True(t, c.Due())
	res, closed := c.Attempt()
	require.True(t, closed)
	assert.True(t, c.Closed())
	assert.True(t, res.Fallback)
	assert.Equal(t, 1000, res.MinJump)
	assert.Equal(t, 5010, res.MaxJump)
	assert.Equal(t, 2, c.Attempts())
	assert.False(t, c.Due())
}

package synth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func TestPanoramaIsDeterministicAndNonZero(t *testing.T) {
	a := Panorama(120, 60, 7)
	defer a.Close()
	b := Panorama(120, 60, 7)
	defer b.Close()

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(a, b, &diff)
	assert.Equal(t, 0, gocv.CountNonZero(diff))
	assert.Equal(t, 120*60, gocv.CountNonZero(a))
}

func TestCameraWrapsHorizontally(t *testing.T) {
	pano := Panorama(100, 50, 1)
	defer pano.Close()

	c := NewCamera(pano, 30, 20)
	c.X = 90
	f := c.Frame()
	defer f.Close()
	require.Equal(t, 30, f.Cols())
	require.Equal(t, 20, f.Rows())
	assert.Equal(t, pano.GetUCharAt(c.Y, 95), f.GetUCharAt(0, 5))
	assert.Equal(t, pano.GetUCharAt(c.Y, 3), f.GetUCharAt(0, 13))

	c.Pan(15, -100)
	assert.Equal(t, 5, c.X)
	assert.Equal(t, 0, c.Y)
}

func TestShiftWraps(t *testing.T) {
	pano := Panorama(40, 10, 3)
	defer pano.Close()

	s := Shift(pano, 5)
	defer s.Close()
	assert.Equal(t, pano.GetUCharAt(2, 0), s.GetUCharAt(2, 5))
	assert.Equal(t, pano.GetUCharAt(2, 39), s.GetUCharAt(2, 4))
}

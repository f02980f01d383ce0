package relocalizer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"panotracker/synth"
)

func TestRelocalizeWithoutSnapshots(t *testing.T) {
	r := New(80, 60, 5, nil)
	defer r.Close()

	frame := synth.Panorama(160, 120, 1)
	defer frame.Close()

	_, score, ok := r.Relocalize(frame)
	assert.False(t, ok)
	assert.True(t, math.IsInf(score, 1))
}

func TestRelocalizePicksBestSnapshot(t *testing.T) {
	pano := synth.Panorama(1200, 240, 9)
	defer pano.Close()
	cam := synth.NewCamera(pano, 320, 240)

	r := New(80, 60, 5, nil)
	defer r.Close()

	for i := 0; i < 3; i++ {
		cam.X = i * 400
		f := cam.Frame()
		r.AddSnapshot(f, Orientation{Yaw: float64(i * 30), Pitch: 1, Roll: float64(i)})
		f.Close()
	}
	require.Equal(t, 3, r.Len())

	cam.X = 402
	query := cam.Frame()
	defer query.Close()

	o, score, ok := r.Relocalize(query)
	require.True(t, ok)
	assert.Equal(t, Orientation{Yaw: 30, Pitch: 1, Roll: 1}, o)
	assert.Less(t, score, 0.07)
}

func TestAddSnapshotIgnoresEmptyFrames(t *testing.T) {
	r := New(80, 60, 5, nil)
	defer r.Close()

	empty := gocv.NewMat()
	defer empty.Close()
	r.AddSnapshot(empty, Orientation{})
	assert.Zero(t, r.Len())
}

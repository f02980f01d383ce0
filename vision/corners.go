package vision

import (
	"sort"

	"gocv.io/x/gocv"
)

// Corner is a detected interest point with its detector response.
type Corner struct {
	X, Y     float64
	Response float64
}

// CornerDetector finds corners in img using the given detector threshold.
type CornerDetector interface {
	Detect(img gocv.Mat, threshold int) []Corner
}

// FASTDetector detects FAST-9 corners with non-maximum suppression.
type FASTDetector struct{}

func (FASTDetector) Detect(img gocv.Mat, threshold int) []Corner {
	if img.Empty() {
		return nil
	}
	fast := gocv.NewFastFeatureDetectorWithParams(threshold, true, gocv.FastFeatureDetectorType9_16)
	defer fast.Close()

	kps := fast.Detect(img)
	out := make([]Corner, 0, len(kps))
	for _, kp := range kps {
		out = append(out, Corner{X: kp.X, Y: kp.Y, Response: kp.Response})
	}
	return out
}

// StrongestFirst sorts corners by descending response. Ties keep their
// detection order.
func StrongestFirst(cs []Corner) {
	sort.SliceStable(cs, func(i, j int) bool {
		return cs[i].Response > cs[j].Response
	})
}

package vision

import (
	"gocv.io/x/gocv"
)

// Keypoint is the image position of a described feature.
type Keypoint struct {
	X, Y float64
}

// Correspondence pairs a query descriptor with its nearest train descriptor.
type Correspondence struct {
	QueryIdx int
	TrainIdx int
	Distance float64
}

// SparseFeatureMatcher detects, describes and matches features between two
// whole images.
type SparseFeatureMatcher interface {
	// DetectAndDescribe returns keypoints and their descriptors; the caller
	// closes the descriptor Mat.
	DetectAndDescribe(img gocv.Mat, maxFeatures int) ([]Keypoint, gocv.Mat)
	Match(query, train gocv.Mat) []Correspondence
}

// ORBMatcher uses ORB descriptors and a brute force Hamming matcher.
type ORBMatcher struct{}

func (ORBMatcher) DetectAndDescribe(img gocv.Mat, maxFeatures int) ([]Keypoint, gocv.Mat) {
	if img.Empty() {
		return nil, gocv.NewMat()
	}
	orb := gocv.NewORBWithParams(maxFeatures, 1.2, 8, 31, 0, 2, gocv.ORBScoreTypeHarris, 31, 20)
	defer orb.Close()

	noMask := gocv.NewMat()
	defer noMask.Close()
	kps, desc := orb.DetectAndCompute(img, noMask)

	out := make([]Keypoint, len(kps))
	for i, kp := range kps {
		out[i] = Keypoint{X: kp.X, Y: kp.Y}
	}
	return out, desc
}

func (ORBMatcher) Match(query, train gocv.Mat) []Correspondence {
	if query.Empty() || train.Empty() {
		return nil
	}
	bf := gocv.NewBFMatcherWithParams(gocv.NormHamming, false)
	defer bf.Close()

	ms := bf.Match(query, train)
	out := make([]Correspondence, len(ms))
	for i, m := range ms {
		out[i] = Correspondence{QueryIdx: m.QueryIdx, TrainIdx: m.TrainIdx, Distance: m.Distance}
	}
	return out
}

// Package keyframe implements C2: deciding, per decoded frame, whether to
// run detection, based on image similarity against the last keyframe.
package keyframe

import (
	"gocv.io/x/gocv"

	"github.com/adverant/nexus/videotrack-worker/internal/imgsim"
)

// Decision is what a frame was classified as.
type Decision int

const (
	Keyframe Decision = iota
	Intermediate
)

// Selector tracks the last emitted keyframe and decides each incoming
// frame's classification.
type Selector struct {
	ssimThreshold    float64
	keyframeInterval uint64

	lastKeyframeGray    gocv.Mat
	hasLastKeyframe     bool
	framesSinceKeyframe uint64
}

// New builds a Selector. ssimThreshold is the spec's ssim_threshold
// (default 0.90); keyframeInterval is the hard upper bound on frames
// between detections (default 5), enforced even when SSIM stays high.
func New(ssimThreshold float64, keyframeInterval uint64) *Selector {
	return &Selector{
		ssimThreshold:    ssimThreshold,
		keyframeInterval: keyframeInterval,
	}
}

// Decide classifies gray (the current frame's grayscale image) and, if it
// becomes the new keyframe, stores a copy for the next comparison.
func (s *Selector) Decide(gray gocv.Mat) Decision {
	if !s.hasLastKeyframe {
		s.adopt(gray)
		return Keyframe
	}

	s.framesSinceKeyframe++
	if s.keyframeInterval > 0 && s.framesSinceKeyframe >= s.keyframeInterval {
		s.adopt(gray)
		return Keyframe
	}

	similarity := imgsim.SSIM(s.lastKeyframeGray, gray)
	if similarity < s.ssimThreshold {
		s.adopt(gray)
		return Keyframe
	}
	return Intermediate
}

func (s *Selector) adopt(gray gocv.Mat) {
	if s.hasLastKeyframe {
		s.lastKeyframeGray.Close()
	}
	s.lastKeyframeGray = gray.Clone()
	s.hasLastKeyframe = true
	s.framesSinceKeyframe = 0
}

// Close releases the stored keyframe buffer.
func (s *Selector) Close() {
	if s.hasLastKeyframe {
		s.lastKeyframeGray.Close()
	}
}

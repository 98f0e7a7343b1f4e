// Package motion implements C5: propagating the boxes alive at the most
// recent keyframe forward onto non-keyframe frames using sparse optical
// flow, without running detection. Grounded on nmichlo-norfair-go's
// camera_motion.go MotionEstimator.getSparseFlow (GoodFeaturesToTrack +
// CalcOpticalFlowPyrLK, status-filtered point pairs).
package motion

import (
	"math"
	"sort"

	"gocv.io/x/gocv"

	"github.com/adverant/nexus/videotrack-worker/internal/models"
)

const (
	maxCorners   = 1000
	qualityLevel = 0.01
	minDistance  = 10.0
)

// Interpolator estimates a single global transform (translation + uniform
// scale about the frame center) between the prior keyframe and the current
// intermediate frame, then applies it to every live track's last-keyframe
// box.
type Interpolator struct {
	width, height int
}

// New builds an Interpolator for frames of the given dimensions.
func New(width, height int) *Interpolator {
	return &Interpolator{width: width, height: height}
}

// Transform is the estimated global motion between two frames.
type Transform struct {
	DX, DY float64
	Scale  float64
	Valid  bool // false means InterpolationDegenerate — caller must fall back
}

// Estimate computes the global translation + scale from keyframeGray to
// currentGray. Returns Transform{Valid: false} when feature detection or
// flow tracking is degenerate (spec §4.5 fallback order); callers must
// then propagate the last-keyframe box unchanged.
func (it *Interpolator) Estimate(keyframeGray, currentGray gocv.Mat) Transform {
	corners := gocv.NewMat()
	defer corners.Close()
	gocv.GoodFeaturesToTrack(keyframeGray, &corners, maxCorners, qualityLevel, minDistance)
	if corners.Rows() == 0 {
		return Transform{Valid: false}
	}

	nextPts := gocv.NewMat()
	defer nextPts.Close()
	status := gocv.NewMat()
	defer status.Close()
	errOut := gocv.NewMat()
	defer errOut.Close()

	gocv.CalcOpticalFlowPyrLK(keyframeGray, currentGray, corners, nextPts, &status, &errOut)

	var dxs, dys, scales []float64
	cx := float64(it.width) / 2
	cy := float64(it.height) / 2

	for i := 0; i < status.Rows(); i++ {
		if status.GetUCharAt(i, 0) != 1 {
			continue
		}
		oldVec := corners.GetVecfAt(i, 0)
		newVec := nextPts.GetVecfAt(i, 0)

		ox, oy := float64(oldVec[0]), float64(oldVec[1])
		nx, ny := float64(newVec[0]), float64(newVec[1])

		dxs = append(dxs, nx-ox)
		dys = append(dys, ny-oy)

		oldR := math.Hypot(ox-cx, oy-cy)
		newR := math.Hypot(nx-cx, ny-cy)
		if oldR > 1e-6 {
			scales = append(scales, newR/oldR)
		}
	}

	if len(dxs) == 0 {
		return Transform{Valid: false}
	}

	scale := 1.0
	if len(scales) > 0 {
		scale = median(scales)
	}

	return Transform{
		DX:    median(dxs),
		DY:    median(dys),
		Scale: scale,
		Valid: true,
	}
}

// Apply transforms a box by this transform: translate its center, scale
// its extent.
func (t Transform) Apply(b models.Box) models.Box {
	cx, cy := b.Center()
	w := b.Width() * t.Scale
	h := b.Height() * t.Scale
	ncx := cx + t.DX
	ncy := cy + t.DY
	return models.Box{
		X1: ncx - w/2,
		Y1: ncy - h/2,
		X2: ncx + w/2,
		Y2: ncy + h/2,
	}
}

func median(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

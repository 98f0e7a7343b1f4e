// Package imgsim implements the luma-only Structural Similarity Index
// (SSIM) used by the keyframe selector and the identity re-acquirer. No
// library in the retrieved reference pack ships an SSIM implementation
// (checked gocv, gonum, and every other_examples/ file), so this is
// hand-rolled arithmetic over gocv.Mat buffers: gocv.GaussianBlur supplies
// the local means/variances/covariance windows, and the final SSIM
// combination is plain per-pixel float math.
package imgsim

import (
	"image"

	"gocv.io/x/gocv"
)

const (
	// window is the Gaussian window side length used for local statistics.
	window = 7
	// sigma is the Gaussian window standard deviation.
	sigma = 1.5

	c1 = (0.01 * 255) * (0.01 * 255)
	c2 = (0.03 * 255) * (0.03 * 255)
)

// SSIM computes the Structural Similarity Index between two single-channel
// grayscale images of identical dimensions. Result is in [-1, 1]; higher is
// more similar. Images of mismatched size are resized to the first image's
// dimensions before comparison.
func SSIM(a, b gocv.Mat) float64 {
	if a.Empty() || b.Empty() {
		return 0
	}
	if a.Rows() != b.Rows() || a.Cols() != b.Cols() {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(b, &resized, image.Pt(a.Cols(), a.Rows()), 0, 0, gocv.InterpolationLinear)
		return ssimSameSize(a, resized)
	}
	return ssimSameSize(a, b)
}

func ssimSameSize(a, b gocv.Mat) float64 {
	af := toFloat(a)
	defer af.Close()
	bf := toFloat(b)
	defer bf.Close()

	muA := blur(af)
	defer muA.Close()
	muB := blur(bf)
	defer muB.Close()

	aSq := elementwise(af, af, func(x, y float64) float64 { return x * y })
	defer aSq.Close()
	bSq := elementwise(bf, bf, func(x, y float64) float64 { return x * y })
	defer bSq.Close()
	ab := elementwise(af, bf, func(x, y float64) float64 { return x * y })
	defer ab.Close()

	eA2 := blur(aSq)
	defer eA2.Close()
	eB2 := blur(bSq)
	defer eB2.Close()
	eAB := blur(ab)
	defer eAB.Close()

	rows, cols := a.Rows(), a.Cols()
	var sum float64
	var count int
	for r := 0; r < rows; r++ {
		for cidx := 0; cidx < cols; cidx++ {
			ma := muA.GetDoubleAt(r, cidx)
			mb := muB.GetDoubleAt(r, cidx)
			varA := eA2.GetDoubleAt(r, cidx) - ma*ma
			varB := eB2.GetDoubleAt(r, cidx) - mb*mb
			covAB := eAB.GetDoubleAt(r, cidx) - ma*mb

			num := (2*ma*mb + c1) * (2*covAB + c2)
			den := (ma*ma + mb*mb + c1) * (varA + varB + c2)
			if den == 0 {
				continue
			}
			sum += num / den
			count++
		}
	}
	if count == 0 {
		return 1 // two identically degenerate (e.g. zero-size) images
	}
	return sum / float64(count)
}

func toFloat(m gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	m.ConvertTo(&out, gocv.MatTypeCV64F)
	return out
}

func blur(m gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	gocv.GaussianBlur(m, &out, image.Pt(window, window), sigma, sigma, gocv.BorderReflect)
	return out
}

// elementwise applies f to every pixel pair of two same-size CV64F mats.
func elementwise(a, b gocv.Mat, f func(x, y float64) float64) gocv.Mat {
	out := gocv.NewMat()
	a.CopyTo(&out)
	rows, cols := a.Rows(), a.Cols()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out.SetDoubleAt(r, c, f(a.GetDoubleAt(r, c), b.GetDoubleAt(r, c)))
		}
	}
	return out
}

package tracking

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/adverant/nexus/videotrack-worker/internal/models"
)

// Filter is a 7-dimensional constant-velocity Kalman filter over
// (center_x, center_y, scale, aspect_ratio, vx, vy, vscale), the classic
// SORT state. It satisfies models.KalmanFilter so a LiveTrack can drive
// prediction without knowing the linear-algebra details.
//
// Structure mirrors internal/filterpy/kalman.go's KalmanFilter (state x,
// covariance P, transition F, measurement H, noise R/Q, Joseph-form
// update) from the sibling tracking pack, narrowed to the fixed 7x4
// dimensions this tracker needs instead of a general dimX/dimZ filter.
type Filter struct {
	x *mat.Dense // 7x1: cx, cy, s, r, vcx, vcy, vs
	P *mat.Dense // 7x7
	F *mat.Dense // 7x7
	H *mat.Dense // 4x7
	R *mat.Dense // 4x4
	Q *mat.Dense // 7x7

	initialized bool
}

// NewFilter builds a filter initialized from the first observed box.
func NewFilter(b models.Box) *Filter {
	f := &Filter{
		x: mat.NewDense(7, 1, nil),
		P: mat.NewDense(7, 7, nil),
		F: mat.NewDense(7, 7, nil),
		H: mat.NewDense(4, 7, nil),
		R: mat.NewDense(4, 4, nil),
		Q: mat.NewDense(7, 7, nil),
	}

	for i := 0; i < 7; i++ {
		f.F.Set(i, i, 1.0)
	}
	f.F.Set(0, 4, 1.0) // cx += vcx
	f.F.Set(1, 5, 1.0) // cy += vcy
	f.F.Set(2, 6, 1.0) // s  += vs

	for i := 0; i < 4; i++ {
		f.H.Set(i, i, 1.0)
	}

	for i := 0; i < 7; i++ {
		if i >= 4 {
			f.P.Set(i, i, 1000.0) // high initial uncertainty on velocity
		} else {
			f.P.Set(i, i, 10.0)
		}
		f.Q.Set(i, i, 1.0)
	}
	for i := 0; i < 4; i++ {
		f.R.Set(i, i, 1.0)
	}

	cx, cy, s, r := boxToState(b)
	f.x.Set(0, 0, cx)
	f.x.Set(1, 0, cy)
	f.x.Set(2, 0, s)
	f.x.Set(3, 0, r)
	f.initialized = true

	return f
}

func boxToState(b models.Box) (cx, cy, s, r float64) {
	cx, cy = b.Center()
	w := b.Width()
	h := b.Height()
	s = w * h
	if h <= 0 {
		r = 0
	} else {
		r = w / h
	}
	return
}

func stateToBox(cx, cy, s, r float64) models.Box {
	if s < 0 {
		s = 0
	}
	w := math.Sqrt(s * r)
	var h float64
	if w == 0 {
		h = 0
	} else {
		h = s / w
	}
	return models.Box{
		X1: cx - w/2,
		Y1: cy - h/2,
		X2: cx + w/2,
		Y2: cy + h/2,
	}
}

// Predict advances the state one step and returns the predicted box.
func (f *Filter) Predict() models.Box {
	var xPrior mat.Dense
	xPrior.Mul(f.F, f.x)
	f.x.Copy(&xPrior)

	var temp, pPrior mat.Dense
	temp.Mul(f.F, f.P)
	pPrior.Mul(&temp, f.F.T())
	f.P.Add(&pPrior, f.Q)

	return stateToBox(f.x.At(0, 0), f.x.At(1, 0), f.x.At(2, 0), f.x.At(3, 0))
}

// Update incorporates an observed box as a measurement (Joseph-form
// covariance update, matching internal/filterpy/kalman.go's Update).
func (f *Filter) Update(observed models.Box) {
	cx, cy, s, r := boxToState(observed)
	z := mat.NewDense(4, 1, []float64{cx, cy, s, r})

	var hx, y mat.Dense
	hx.Mul(f.H, f.x)
	y.Sub(z, &hx)

	var temp1, sMat mat.Dense
	temp1.Mul(f.H, f.P)
	sMat.Mul(&temp1, f.H.T())
	sMat.Add(&sMat, f.R)

	var sInv mat.Dense
	if err := sInv.Inverse(&sMat); err != nil {
		return // singular innovation covariance, skip update
	}

	var temp2, k mat.Dense
	temp2.Mul(f.P, f.H.T())
	k.Mul(&temp2, &sInv)

	var kY mat.Dense
	kY.Mul(&k, &y)
	f.x.Add(f.x, &kY)

	identity := mat.NewDense(7, 7, nil)
	for i := 0; i < 7; i++ {
		identity.Set(i, i, 1.0)
	}
	// Joseph form: P = (I-KH) P (I-KH)^T + K R K^T.
	var kH, iMinusKH, temp3, newP, kR, kRkT mat.Dense
	kH.Mul(&k, f.H)
	iMinusKH.Sub(identity, &kH)
	temp3.Mul(&iMinusKH, f.P)
	newP.Mul(&temp3, iMinusKH.T())
	kR.Mul(&k, f.R)
	kRkT.Mul(&kR, k.T())
	newP.Add(&newP, &kRkT)
	f.P.Copy(&newP)
}

var _ models.KalmanFilter = (*Filter)(nil)

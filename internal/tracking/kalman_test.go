package tracking

import (
	"math"
	"testing"

	"github.com/adverant/nexus/videotrack-worker/internal/models"
)

func approxBox(t *testing.T, got, want models.Box, tol float64) {
	t.Helper()
	if math.Abs(got.X1-want.X1) > tol || math.Abs(got.Y1-want.Y1) > tol ||
		math.Abs(got.X2-want.X2) > tol || math.Abs(got.Y2-want.Y2) > tol {
		t.Errorf("box = %+v, want %+v (tol %v)", got, want, tol)
	}
}

func TestFilterPredictStationary(t *testing.T) {
	b := models.Box{X1: 10, Y1: 10, X2: 50, Y2: 50}
	f := NewFilter(b)

	// With zero initial velocity and no updates pulling it elsewhere, the
	// first prediction should stay close to the initialization box.
	predicted := f.Predict()
	approxBox(t, predicted, b, 1.0)
}

func TestFilterTracksConstantVelocity(t *testing.T) {
	f := NewFilter(models.Box{X1: 0, Y1: 0, X2: 10, Y2: 10})

	// Feed a sequence of boxes translating by (2, 0) per step and verify the
	// filter converges to predicting ahead along that velocity.
	for i := 1; i <= 20; i++ {
		f.Predict()
		shifted := models.Box{X1: float64(2 * i), Y1: 0, X2: float64(2*i + 10), Y2: 10}
		f.Update(shifted)
	}

	predicted := f.Predict()
	wantCx, _ := models.Box{X1: 42, Y1: 0, X2: 52, Y2: 10}.Center()
	gotCx, _ := predicted.Center()
	if math.Abs(gotCx-wantCx) > 3.0 {
		t.Errorf("after convergence, predicted center x = %v, want near %v", gotCx, wantCx)
	}
}

func TestFilterUpdatePullsTowardObservation(t *testing.T) {
	f := NewFilter(models.Box{X1: 0, Y1: 0, X2: 10, Y2: 10})
	f.Predict()
	f.Update(models.Box{X1: 40, Y1: 40, X2: 50, Y2: 50})

	cx, cy := f.x.At(0, 0), f.x.At(1, 0)
	if cx <= 5 || cy <= 5 {
		t.Errorf("state did not move toward observation: cx=%v cy=%v", cx, cy)
	}
}

func TestStateToBoxDegenerateScale(t *testing.T) {
	b := stateToBox(5, 5, -1, 1)
	if b.X1 != 5 || b.Y1 != 5 || b.X2 != 5 || b.Y2 != 5 {
		t.Errorf("negative scale should clamp to a zero-area box, got %+v", b)
	}
}

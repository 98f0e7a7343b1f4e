package gapcorrect

import (
	"testing"

	"github.com/adverant/nexus/videotrack-worker/internal/models"
	"github.com/adverant/nexus/videotrack-worker/internal/tsfmt"
)

func obsAt(frame uint64, fps float64, box models.Box) models.FrameObservation {
	return models.FrameObservation{
		FrameIndex: frame,
		Timestamp:  tsfmt.FromSeconds(float64(frame) / fps),
		Box:        box,
	}
}

// Scenario 2 from spec §8: 10 frames at 10fps, detections at 0,1,2,6,7,8,9.
// The gap (frames 3-5, length 3) is at the jitter_threshold_frames boundary
// (round(0.25*10) = 3) and must be fully filled.
func TestCorrectFillsJitterGap(t *testing.T) {
	const fps = 10.0
	box := models.Box{X1: 10, Y1: 10, X2: 50, Y2: 50}
	var frames []models.FrameObservation
	for _, idx := range []uint64{0, 1, 2, 6, 7, 8, 9} {
		frames = append(frames, obsAt(idx, fps, box))
	}

	out := Correct(frames, 3)

	if len(out) != 10 {
		t.Fatalf("len(out) = %d, want 10", len(out))
	}
	for i := 0; i < len(out)-1; i++ {
		if out[i+1].FrameIndex <= out[i].FrameIndex {
			t.Fatalf("frames not strictly increasing at %d: %d then %d", i, out[i].FrameIndex, out[i+1].FrameIndex)
		}
	}
	for _, idx := range []uint64{3, 4, 5} {
		found := false
		for _, f := range out {
			if f.FrameIndex == idx {
				found = true
				if !f.Interpolated || !f.JitterCorrected {
					t.Errorf("frame %d should be interpolated+jitter_corrected, got %+v", idx, f)
				}
				if f.Confidence != nil {
					t.Errorf("frame %d interpolated confidence should be nil, got %v", idx, *f.Confidence)
				}
			}
		}
		if !found {
			t.Errorf("expected filled frame %d in output", idx)
		}
	}
}

// Scenario 3 from spec §8: a true disappearance (gap 6 > threshold 3) must
// not be filled.
func TestCorrectLeavesTrueDisappearance(t *testing.T) {
	const fps = 10.0
	box := models.Box{X1: 10, Y1: 10, X2: 50, Y2: 50}
	frames := []models.FrameObservation{
		obsAt(0, fps, box),
		obsAt(1, fps, box),
		obsAt(2, fps, box),
		obsAt(9, fps, box),
	}

	out := Correct(frames, 3)

	if len(out) != 4 {
		t.Fatalf("gap > jitter_threshold_frames must not be filled, got %d observations, want 4", len(out))
	}
}

func TestCorrectSortsOutOfOrderInput(t *testing.T) {
	box := models.Box{X1: 0, Y1: 0, X2: 10, Y2: 10}
	frames := []models.FrameObservation{
		obsAt(2, 10, box),
		obsAt(0, 10, box),
		obsAt(1, 10, box),
	}

	out := Correct(frames, 3)
	for i := 0; i < len(out)-1; i++ {
		if out[i].FrameIndex >= out[i+1].FrameIndex {
			t.Fatalf("Correct did not sort input: %+v", out)
		}
	}
}

func TestCorrectInterpolatesBoxLinearly(t *testing.T) {
	a := models.Box{X1: 0, Y1: 0, X2: 10, Y2: 10}
	b := models.Box{X1: 10, Y1: 10, X2: 20, Y2: 20}
	frames := []models.FrameObservation{
		obsAt(0, 10, a),
		obsAt(2, 10, b),
	}

	out := Correct(frames, 3)
	if len(out) != 3 {
		t.Fatalf("len(out) = %d, want 3", len(out))
	}
	mid := out[1]
	if mid.Box.X1 != 5 || mid.Box.X2 != 15 {
		t.Errorf("midpoint box = %+v, want X1=5 X2=15", mid.Box)
	}
}

func TestCorrectSingleObservationUnchanged(t *testing.T) {
	frames := []models.FrameObservation{obsAt(0, 10, models.Box{X2: 1, Y2: 1})}
	out := Correct(frames, 3)
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
}

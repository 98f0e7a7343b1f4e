package tracking

import (
	"testing"

	"github.com/adverant/nexus/videotrack-worker/internal/models"
)

func box(x1, y1, x2, y2 float64) models.Box {
	return models.Box{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// Scenario 1 from spec §8: two frames, single object, zero motion.
func TestTrackerBirthAndReassociateZeroMotion(t *testing.T) {
	tracker := New(0.3, 3, 1)
	b := box(10, 10, 50, 50)

	step1 := tracker.Step([]models.Detection{{Box: b, Confidence: 0.9}}, nil, 0, nil)
	if len(step1.Born) != 1 {
		t.Fatalf("frame 0: len(Born) = %d, want 1", len(step1.Born))
	}
	id := step1.Born[0].TrackID

	step2 := tracker.Step([]models.Detection{{Box: b, Confidence: 0.9}}, nil, 1, nil)
	if len(step2.Born) != 0 {
		t.Fatalf("frame 1: expected no new births, got %+v", step2.Born)
	}
	found := false
	for _, e := range step2.Emitted {
		if e.TrackID == id {
			found = true
		}
	}
	if !found {
		t.Fatalf("frame 1: track %d not re-associated, emitted=%+v", id, step2.Emitted)
	}
}

// Scenario 4 from spec §8: one detector dropout must not fragment identity.
func TestTrackerSurvivesOneMissedFrame(t *testing.T) {
	tracker := New(0.3, 3, 1)
	b := box(10, 10, 50, 50)

	step1 := tracker.Step([]models.Detection{{Box: b}}, nil, 0, nil)
	id := step1.Born[0].TrackID

	// frame 1: detector drop, no detections
	tracker.Step(nil, nil, 1, nil)

	// frame 2: detection returns
	step3 := tracker.Step([]models.Detection{{Box: b}}, nil, 2, nil)
	if len(step3.Born) != 0 {
		t.Fatalf("track_id churned after single missed frame: got new births %+v", step3.Born)
	}
	matched := false
	for _, e := range step3.Emitted {
		if e.TrackID == id {
			matched = true
		}
	}
	if !matched {
		t.Fatalf("expected track %d to survive one missed frame", id)
	}
}

func TestTrackerRetiresAfterMaxAge(t *testing.T) {
	tracker := New(0.3, 2, 1)
	b := box(10, 10, 50, 50)

	step1 := tracker.Step([]models.Detection{{Box: b}}, nil, 0, nil)
	id := step1.Born[0].TrackID

	tracker.Step(nil, nil, 1, nil) // miss 1
	tracker.Step(nil, nil, 2, nil) // miss 2
	step4 := tracker.Step(nil, nil, 3, nil) // miss 3 > max_age(2)

	died := false
	for _, d := range step4.Died {
		if d.TrackID == id {
			died = true
		}
	}
	if !died {
		t.Fatalf("expected track %d to be retired after misses > max_age, Died=%+v", id, step4.Died)
	}
	if len(tracker.LiveTracks()) != 0 {
		t.Fatalf("expected no live tracks after retirement, got %d", len(tracker.LiveTracks()))
	}
}

func TestTrackerMinHitsGatesEmission(t *testing.T) {
	tracker := New(0.3, 3, 3)
	b := box(10, 10, 50, 50)

	// minHits=3: a track's first couple of hits may or may not emit
	// depending on the "younger than min_hits frames" allowance, but by
	// the time hits reaches min_hits it must emit.
	var last StepResult
	for i := uint64(0); i < 3; i++ {
		last = tracker.Step([]models.Detection{{Box: b}}, nil, i, nil)
	}
	if len(last.Emitted) != 1 {
		t.Fatalf("expected the track to emit once hits reaches min_hits, got %+v", last.Emitted)
	}
}

func TestTrackerUnmatchedDetectionBirthsNewIdentityWithoutReacquirer(t *testing.T) {
	tracker := New(0.3, 3, 1)
	step := tracker.Step([]models.Detection{{Box: box(0, 0, 10, 10)}}, nil, 0, nil)
	if len(step.Born) != 1 {
		t.Fatalf("len(Born) = %d, want 1", len(step.Born))
	}
	if len(step.Reacquired) != 0 {
		t.Fatalf("expected no reacquisitions with nil reacquirer, got %+v", step.Reacquired)
	}
}

package tracking

import (
	"testing"

	"github.com/adverant/nexus/videotrack-worker/internal/models"
)

func TestAssignDetectionsMatchesOverlapping(t *testing.T) {
	dets := []models.Box{{X1: 0, Y1: 0, X2: 10, Y2: 10}}
	tracks := []models.Box{{X1: 1, Y1: 1, X2: 11, Y2: 11}}

	matches, unmatchedDets, unmatchedTracks := AssignDetections(dets, tracks, 0.3)

	if len(matches) != 1 {
		t.Fatalf("len(matches) = %d, want 1", len(matches))
	}
	if matches[0].DetIdx != 0 || matches[0].TrackIdx != 0 {
		t.Errorf("matches[0] = %+v, want {0, 0, ...}", matches[0])
	}
	if len(unmatchedDets) != 0 || len(unmatchedTracks) != 0 {
		t.Errorf("expected no unmatched, got dets=%v tracks=%v", unmatchedDets, unmatchedTracks)
	}
}

func TestAssignDetectionsBelowThresholdSplits(t *testing.T) {
	dets := []models.Box{{X1: 0, Y1: 0, X2: 10, Y2: 10}}
	tracks := []models.Box{{X1: 50, Y1: 50, X2: 60, Y2: 60}}

	matches, unmatchedDets, unmatchedTracks := AssignDetections(dets, tracks, 0.3)

	if len(matches) != 0 {
		t.Fatalf("expected no matches below threshold, got %+v", matches)
	}
	if len(unmatchedDets) != 1 || len(unmatchedTracks) != 1 {
		t.Errorf("expected one unmatched det and track, got dets=%v tracks=%v", unmatchedDets, unmatchedTracks)
	}
}

func TestAssignDetectionsEmptyTracks(t *testing.T) {
	dets := []models.Box{{X1: 0, Y1: 0, X2: 10, Y2: 10}, {X1: 20, Y1: 20, X2: 30, Y2: 30}}
	matches, unmatchedDets, unmatchedTracks := AssignDetections(dets, nil, 0.3)
	if len(matches) != 0 || len(unmatchedTracks) != 0 {
		t.Fatalf("expected all dets unmatched with no tracks, got matches=%v tracks=%v", matches, unmatchedTracks)
	}
	if len(unmatchedDets) != 2 {
		t.Errorf("len(unmatchedDets) = %d, want 2", len(unmatchedDets))
	}
}

func TestAssignDetectionsEmptyDetections(t *testing.T) {
	tracks := []models.Box{{X1: 0, Y1: 0, X2: 10, Y2: 10}}
	matches, unmatchedDets, unmatchedTracks := AssignDetections(nil, tracks, 0.3)
	if len(matches) != 0 || len(unmatchedDets) != 0 {
		t.Fatalf("expected no matches/dets, got matches=%v dets=%v", matches, unmatchedDets)
	}
	if len(unmatchedTracks) != 1 {
		t.Errorf("len(unmatchedTracks) = %d, want 1", len(unmatchedTracks))
	}
}

// Scenario 5 from spec §8: crossing objects must not swap identity when
// IoU against the true predecessor beats IoU against the crossing track.
func TestAssignDetectionsPrefersHigherIoU(t *testing.T) {
	// Track A's predicted box is near detection A; track B's predicted box
	// is near detection B. Detections and tracks both indexed [A, B].
	dets := []models.Box{
		{X1: 0, Y1: 0, X2: 10, Y2: 10},   // close to track A
		{X1: 100, Y1: 100, X2: 110, Y2: 110}, // close to track B
	}
	tracks := []models.Box{
		{X1: 1, Y1: 1, X2: 11, Y2: 11},      // A
		{X1: 101, Y1: 101, X2: 111, Y2: 111}, // B
	}

	matches, _, _ := AssignDetections(dets, tracks, 0.3)
	if len(matches) != 2 {
		t.Fatalf("len(matches) = %d, want 2", len(matches))
	}
	for _, m := range matches {
		if m.DetIdx != m.TrackIdx {
			t.Errorf("identity swapped: det %d matched track %d, want same index", m.DetIdx, m.TrackIdx)
		}
	}
}

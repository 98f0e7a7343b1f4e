// Package tracking implements C3 (Data Associator + Tracker) and, in
// reacquire.go, C4 (Identity Re-acquirer). The overall Track() shape —
// a mutex-guarded live-track slice walked through predict/score/assign/
// update/age/birth/emit phases, with a trailing removeLostTracks sweep —
// is adapted from multi_object_tracker.go's MultiObjectTracker.Track, now
// driving a real Hungarian assignment (assignment.go) over a constant-
// velocity Kalman predictor (kalman.go) instead of greedy class-gated IoU.
package tracking

import (
	"sync"

	"gocv.io/x/gocv"

	"github.com/adverant/nexus/videotrack-worker/internal/models"
)

// Tracker maintains the live-track set for one job and advances it one
// keyframe at a time.
type Tracker struct {
	mu     sync.Mutex
	tracks []*models.LiveTrack

	nextTrackID  uint32
	stepCount    uint32
	iouThreshold float64
	maxAge       uint32
	minHits      uint32
}

// New builds a Tracker. iouThreshold, maxAge and minHits come from the
// job's Config (spec §6: iou_threshold, max_age, min_hits).
func New(iouThreshold float64, maxAge, minHits uint32) *Tracker {
	return &Tracker{
		iouThreshold: iouThreshold,
		maxAge:       maxAge,
		minHits:      minHits,
		nextTrackID:  1,
	}
}

// Reacquirer is the narrow collaborator C3 calls into on birth, matching
// spec §4.4's guarantee of returning at most one identity and never a live
// track. patch is the current detection's cropped sub-image (spec §4.4's
// primary SSIM-of-patch method), or a zero Mat when the caller could not
// extract one, in which case implementations fall back to IoU.
type Reacquirer interface {
	Reacquire(detection models.Detection, frameIndex uint64, patch gocv.Mat) (trackID uint32, ok bool)
}

// StepResult is what C3 emits for one keyframe: the live (track_id, box)
// pairs for tracks confirmed enough to emit, plus which detections were
// used to birth a brand-new identity (for the Track Store Writer to open a
// fresh document) vs. reacquire an existing one (for it to reopen one).
type StepResult struct {
	Emitted    []Emission
	Born       []Birth
	Reacquired []Birth
	Died       []Death
}

// Death is a live track removed this step because misses > max_age (spec
// §4.3 step 5/invariant 6). The caller hands this to the Reacquirer's
// Retire so the identity becomes a re-acquisition candidate.
type Death struct {
	TrackID uint32
	LastBox models.Box
}

// Emission is one (track_id, box) pair to persist for the current frame.
type Emission struct {
	TrackID uint32
	Box     models.Box
}

// Birth is a detection that became (or reattached to) a track this frame.
type Birth struct {
	TrackID   uint32
	Detection models.Detection
}

// Step runs one keyframe through predict/score/assign/update/age/birth/emit
// (spec §4.3, steps 1-7). patchFor, when non-nil, crops the current frame's
// pixels under a detection's box so an unmatched detection's re-acquisition
// attempt can use SSIM-of-patch (spec §4.4) instead of falling straight to
// IoU; callers with no image backing (e.g. tests) may pass nil.
func (t *Tracker) Step(detections []models.Detection, reacq Reacquirer, frameIndex uint64, patchFor func(models.Detection) gocv.Mat) StepResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stepCount++

	// 1. Predict.
	predicted := make([]models.Box, len(t.tracks))
	for i, tr := range t.tracks {
		if tr.Filter != nil {
			predicted[i] = tr.Filter.Predict()
		} else {
			predicted[i] = tr.LastBox
		}
	}

	detBoxes := make([]models.Box, len(detections))
	for i, d := range detections {
		detBoxes[i] = d.Box
	}

	// 2-3. Score + assign.
	matches, unmatchedDets, unmatchedTracks := AssignDetections(detBoxes, predicted, t.iouThreshold)

	var result StepResult

	// 4. Update matched pairs.
	matchedTrackIdx := make(map[int]bool, len(matches))
	for _, m := range matches {
		tr := t.tracks[m.TrackIdx]
		tr.LastBox = detections[m.DetIdx].Box
		tr.Hits++
		tr.Misses = 0
		tr.PushTrace(tr.LastBox)
		if tr.Filter != nil {
			tr.Filter.Update(tr.LastBox)
		}
		if tr.State == models.StateTentative && tr.Hits >= t.minHits {
			tr.State = models.StateConfirmed
		} else if tr.State == models.StateCoasting {
			tr.State = models.StateConfirmed
		}
		matchedTrackIdx[m.TrackIdx] = true
	}

	// 5. Age unmatched tracks.
	for _, idx := range unmatchedTracks {
		tr := t.tracks[idx]
		tr.Misses++
		if tr.State == models.StateConfirmed {
			tr.State = models.StateCoasting
		}
	}

	// 6. Birth: attempt re-acquisition, else mint a new identity.
	for _, di := range unmatchedDets {
		det := detections[di]
		if reacq != nil {
			patch := gocv.NewMat()
			if patchFor != nil {
				patch = patchFor(det)
			}
			trackID, ok := reacq.Reacquire(det, frameIndex, patch)
			patch.Close()
			if ok {
				nt := &models.LiveTrack{
					TrackID: trackID,
					LastBox: det.Box,
					Hits:    1,
					State:   models.StateConfirmed,
					Filter:  newFilterFor(det.Box),
				}
				nt.PushTrace(det.Box)
				t.tracks = append(t.tracks, nt)
				result.Reacquired = append(result.Reacquired, Birth{TrackID: trackID, Detection: det})
				continue
			}
		}

		trackID := t.nextTrackID
		t.nextTrackID++
		nt := &models.LiveTrack{
			TrackID: trackID,
			LastBox: det.Box,
			Hits:    1,
			State:   models.StateTentative,
			Filter:  newFilterFor(det.Box),
		}
		nt.PushTrace(det.Box)
		t.tracks = append(t.tracks, nt)
		result.Born = append(result.Born, Birth{TrackID: trackID, Detection: det})
	}

	// Remove tracks that have aged out (misses > max_age).
	alive := make([]*models.LiveTrack, 0, len(t.tracks))
	for _, tr := range t.tracks {
		if tr.Misses > t.maxAge {
			tr.State = models.StateDead
			result.Died = append(result.Died, Death{TrackID: tr.TrackID, LastBox: tr.LastBox})
			continue
		}
		alive = append(alive, tr)
	}
	t.tracks = alive

	// 7. Emit. Spec §4.3: emit confirmed-enough tracks, or any live track
	// while the job itself is younger than min_hits keyframes (there has
	// not yet been time for a track to accumulate min_hits hits).
	jobYoungerThanMinHits := t.stepCount <= t.minHits
	for _, tr := range t.tracks {
		if tr.Hits >= t.minHits || jobYoungerThanMinHits {
			result.Emitted = append(result.Emitted, Emission{TrackID: tr.TrackID, Box: tr.LastBox})
		}
	}

	return result
}

// LiveTracks returns a snapshot of the current live tracks, for the Motion
// Interpolator to propagate on intermediate frames.
func (t *Tracker) LiveTracks() []*models.LiveTrack {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*models.LiveTrack, len(t.tracks))
	copy(out, t.tracks)
	return out
}

func newFilterFor(b models.Box) *Filter {
	return NewFilter(b)
}

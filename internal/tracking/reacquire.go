package tracking

import (
	"sync"

	"gocv.io/x/gocv"

	"github.com/adverant/nexus/videotrack-worker/internal/imgsim"
	"github.com/adverant/nexus/videotrack-worker/internal/models"
)

// deadEntry is one recently-retired identity kept around for re-acquisition,
// mirroring the mutex-guarded identities map PersonReID used, keyed by
// track_id instead of a separately minted identity ID.
type deadEntry struct {
	trackID    uint32
	lastBox    models.Box
	frameIndex uint64
	patch      gocv.Mat // zero-value Mat (Empty()==true) when no patch was cached
	hasPatch   bool
}

// ReacquirerConfig mirrors spec §6's re-acquisition tunables.
type ReacquirerConfig struct {
	SSIMThreshold    float64 // default 0.70
	IoUThreshold     float64 // default 0.50
	TimeWindowFrames uint64  // derived from timeout_seconds_reacq * fps
}

// PatchReacquirer implements C4: when C3 is about to mint a new track_id,
// it first checks recently-dead tracks for a similarity match, preferring
// SSIM of the last-observed pixel patch and falling back to IoU when no
// patch was cached for a candidate. Structure (mutex-guarded candidate list,
// findBestMatch-style scoring) is adapted from person_reid.go's PersonReID,
// narrowed from appearance/attribute fusion to the spec's SSIM/IoU scheme.
type PatchReacquirer struct {
	mu     sync.Mutex
	dead   []*deadEntry
	config ReacquirerConfig
}

// NewPatchReacquirer builds a Reacquirer for one job's video_id scope.
func NewPatchReacquirer(config ReacquirerConfig) *PatchReacquirer {
	return &PatchReacquirer{config: config}
}

// Retire records a track's death so it becomes a re-acquisition candidate.
// patch may be a zero Mat if the caller could not retrieve the last
// sub-image (spec §4.4's fallback trigger).
func (r *PatchReacquirer) Retire(trackID uint32, lastBox models.Box, frameIndex uint64, patch gocv.Mat) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := &deadEntry{trackID: trackID, lastBox: lastBox, frameIndex: frameIndex}
	if !patch.Empty() {
		entry.patch = patch.Clone()
		entry.hasPatch = true
	}
	r.dead = append(r.dead, entry)
}

// Reacquire implements the Tracker.Reacquirer interface. detectionPatch is
// the current detection's cropped sub-image, or a zero Mat if the caller
// could not extract one, in which case every candidate falls back to IoU.
// Guarantees: returns at most one identity (the highest-similarity
// candidate); never returns a track still live (dead tracks are only added
// via Retire, which the processor calls for each track the Tracker reports
// in StepResult.Died, and for tracks loaded from earlier runs).
func (r *PatchReacquirer) Reacquire(detection models.Detection, frameIndex uint64, detectionPatch gocv.Mat) (uint32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bestIdx := -1
	bestScore := -1.0
	bestIsSSIM := false

	for i, cand := range r.dead {
		if frameIndex <= cand.frameIndex {
			continue // candidate's death must strictly precede the current frame
		}
		if frameIndex-cand.frameIndex > r.config.TimeWindowFrames {
			continue // outside the re-acquisition time window
		}

		if cand.hasPatch && !detectionPatch.Empty() {
			score := imgsim.SSIM(cand.patch, detectionPatch)
			if score > r.config.SSIMThreshold && score > bestScore {
				bestScore = score
				bestIdx = i
				bestIsSSIM = true
			}
			continue
		}

		// Fallback: IoU between last box and current detection box.
		score := models.IoU(cand.lastBox, detection.Box)
		if score > r.config.IoUThreshold && (!bestIsSSIM) && score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	if bestIdx < 0 {
		return 0, false
	}

	matched := r.dead[bestIdx]
	r.dead = append(r.dead[:bestIdx], r.dead[bestIdx+1:]...)
	if matched.hasPatch {
		matched.patch.Close()
	}
	return matched.trackID, true
}

// Prune drops candidates that have fallen outside the re-acquisition
// window relative to currentFrame, releasing their cached patches.
func (r *PatchReacquirer) Prune(currentFrame uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.dead[:0]
	for _, cand := range r.dead {
		if currentFrame-cand.frameIndex > r.config.TimeWindowFrames {
			if cand.hasPatch {
				cand.patch.Close()
			}
			continue
		}
		kept = append(kept, cand)
	}
	r.dead = kept
}

var _ Reacquirer = (*PatchReacquirer)(nil)

// Package gapcorrect implements C6: a post-pass over every persistent
// track, linearly interpolating sub-threshold gaps once the frame stream
// has been fully consumed. It runs after C1-C5 and never feeds back into
// live tracking state.
package gapcorrect

import (
	"sort"

	"github.com/adverant/nexus/videotrack-worker/internal/models"
	"github.com/adverant/nexus/videotrack-worker/internal/tsfmt"
)

// Correct sorts frames by frame_index (invariant 2 requires uniqueness,
// which the caller's writer already enforces at the (track_key,
// frame_index) grain) and fills any gap of 1..jitterThresholdFrames
// integer frames with linearly interpolated boxes and timestamps.
// Gaps larger than jitterThresholdFrames are left untouched — they
// represent a true disappearance.
func Correct(frames []models.FrameObservation, jitterThresholdFrames uint64) []models.FrameObservation {
	if len(frames) < 2 {
		return frames
	}

	sorted := append([]models.FrameObservation(nil), frames...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FrameIndex < sorted[j].FrameIndex })

	out := make([]models.FrameObservation, 0, len(sorted))
	out = append(out, sorted[0])

	for i := 0; i < len(sorted)-1; i++ {
		cur := sorted[i]
		next := sorted[i+1]

		if next.FrameIndex <= cur.FrameIndex {
			out = append(out, next)
			continue
		}

		gap := next.FrameIndex - cur.FrameIndex - 1
		if gap == 0 {
			out = append(out, next)
			continue
		}
		if gap > jitterThresholdFrames {
			out = append(out, next)
			continue
		}

		curSec, errA := tsfmt.ToSeconds(cur.Timestamp)
		nextSec, errB := tsfmt.ToSeconds(next.Timestamp)
		if errA != nil || errB != nil {
			out = append(out, next)
			continue
		}

		span := float64(next.FrameIndex - cur.FrameIndex)
		for missingIdx := cur.FrameIndex + 1; missingIdx < next.FrameIndex; missingIdx++ {
			t := float64(missingIdx-cur.FrameIndex) / span
			box := interpolateBox(cur.Box, next.Box, t)
			seconds := curSec + t*(nextSec-curSec)

			out = append(out, models.FrameObservation{
				FrameIndex:      missingIdx,
				Timestamp:       tsfmt.FromSeconds(seconds),
				Box:             box,
				Confidence:      nil,
				Interpolated:    true,
				JitterCorrected: true,
			})
		}
		out = append(out, next)
	}

	return out
}

func interpolateBox(a, b models.Box, t float64) models.Box {
	return models.Box{
		X1: a.X1 + t*(b.X1-a.X1),
		Y1: a.Y1 + t*(b.Y1-a.Y1),
		X2: a.X2 + t*(b.X2-a.X2),
		Y2: a.Y2 + t*(b.Y2-a.Y2),
	}
}

// Package trackerr defines the sentinel error taxonomy for the tracking
// pipeline. Frame-local errors are absorbed by the caller per their own
// fallback rules; only the job-fatal sentinels below ever abort the frame
// loop, matching the wrap-and-classify style storage_manager.go uses for
// Postgres failures.
package trackerr

import (
	"errors"
	"fmt"
)

// Sentinel errors. Wrap with fmt.Errorf("...: %w", Sentinel) to attach
// context; callers classify with errors.Is.
var (
	// ErrVideoOpen means the decoder could not open the blob. Fatal for the job.
	ErrVideoOpen = errors.New("video open error")

	// ErrBlobFetch means the blob store fetch failed. Retried up to a small
	// bound with exponential backoff before becoming fatal.
	ErrBlobFetch = errors.New("blob fetch error")

	// ErrDetector means the external detector call failed. Retried once per
	// frame; on repeat the frame is treated as zero detections.
	ErrDetector = errors.New("detector error")

	// ErrStoreWrite means a track-store write failed. Retried up to a small
	// bound before becoming fatal.
	ErrStoreWrite = errors.New("store write error")

	// ErrAssignmentDegenerate marks an empty detection or track set in the
	// assignment step. Always handled inline; never surfaced to the job loop.
	ErrAssignmentDegenerate = errors.New("assignment degenerate")

	// ErrInterpolationDegenerate marks insufficient optical-flow features.
	// Always handled via the §4.5 fallback order; never surfaced.
	ErrInterpolationDegenerate = errors.New("interpolation degenerate")

	// ErrCancelled means the job was cancelled by a cooperative termination
	// signal. Fatal for the job, recorded distinctly from other failures.
	ErrCancelled = errors.New("job cancelled")
)

// Wrap attaches context to a sentinel, preserving errors.Is matching.
func Wrap(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinel)
}

// IsFatal reports whether err should abort the job loop rather than being
// absorbed frame-locally.
func IsFatal(err error) bool {
	switch {
	case errors.Is(err, ErrVideoOpen),
		errors.Is(err, ErrBlobFetch),
		errors.Is(err, ErrStoreWrite),
		errors.Is(err, ErrCancelled):
		return true
	default:
		return false
	}
}

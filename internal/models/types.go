package models

import "time"

// Box is an axis-aligned rectangle in pixel coordinates, x2 >= x1, y2 >= y1.
type Box struct {
	X1 float64
	Y1 float64
	X2 float64
	Y2 float64
}

// Width returns the box width.
func (b Box) Width() float64 { return b.X2 - b.X1 }

// Height returns the box height.
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

// Center returns the box center point.
func (b Box) Center() (float64, float64) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Area returns the box area, clamped at zero for degenerate boxes.
func (b Box) Area() float64 {
	w := b.Width()
	h := b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// IoU computes intersection-over-union between two boxes.
func IoU(a, b Box) float64 {
	interX1 := maxF(a.X1, b.X1)
	interY1 := maxF(a.Y1, b.Y1)
	interX2 := minF(a.X2, b.X2)
	interY2 := minF(a.Y2, b.Y2)

	interW := interX2 - interX1
	interH := interY2 - interY1
	if interW <= 0 || interH <= 0 {
		return 0
	}
	inter := interW * interH
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// Detection is one frame's output of the external detector. Ephemeral.
type Detection struct {
	Box        Box
	Confidence float64
	ClassLabel string // optional, not part of identity
}

// FrameObservation is an immutable per-frame record appended to a persistent track.
type FrameObservation struct {
	FrameIndex      uint64
	Timestamp       string // HH:MM:SS.mmm
	Box             Box
	Confidence      *float32 // nil for interpolated/gap-corrected entries
	Interpolated    bool
	JitterCorrected bool
}

// TrackState is the tracker state-machine position of a live track.
type TrackState int

const (
	StateTentative TrackState = iota
	StateConfirmed
	StateCoasting
	StateDead
)

func (s TrackState) String() string {
	switch s {
	case StateTentative:
		return "tentative"
	case StateConfirmed:
		return "confirmed"
	case StateCoasting:
		return "coasting"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

const traceCap = 10

// KalmanFilter is the narrow interface LiveTrack needs from a constant-
// velocity predictor; internal/tracking.Filter implements it.
type KalmanFilter interface {
	Predict() Box
	Update(Box)
}

// LiveTrack is the in-memory tracker state for one identity, valid only
// for the lifetime of the job processing it.
type LiveTrack struct {
	TrackID uint32
	LastBox Box
	Hits    uint32
	Misses  uint32
	State   TrackState
	Filter  KalmanFilter

	trace []Box
}

// PushTrace appends a box to the bounded trace, evicting the oldest entry
// once the cap is reached.
func (t *LiveTrack) PushTrace(b Box) {
	t.trace = append(t.trace, b)
	if len(t.trace) > traceCap {
		t.trace = t.trace[len(t.trace)-traceCap:]
	}
}

// Trace returns the bounded history of boxes, oldest first.
func (t *LiveTrack) Trace() []Box {
	return t.trace
}

// PersistentTrack is the document-store representation of a track, keyed
// by "<video_id>_<track_id>".
type PersistentTrack struct {
	ID        string
	VideoID   string
	TrackID   uint32
	StartTime string
	EndTime   string
	Frames    []FrameObservation
}

// JobStatus is the lifecycle state of a queued video-analysis job.
type JobStatus string

const (
	JobUploaded  JobStatus = "UPLOADED"
	JobAnalyzing JobStatus = "ANALYZING"
	JobAnalyzed  JobStatus = "ANALYZED"
	JobError     JobStatus = "ERROR"
)

// Job is a row claimed from the external job queue.
type Job struct {
	ID           string
	VideoID      string
	Status       JobStatus
	ErrorMessage string
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// JobSummary is written once a job finishes successfully, so downstream
// consumers can read aggregate stats without scanning every track document.
type JobSummary struct {
	ID         string
	JobID      string
	VideoID    string
	TrackCount int
	FrameCount int
	Duration   time.Duration
}

// Config holds every tunable recognized by the pipeline, loaded from
// environment variables by internal/config.
type Config struct {
	SSIMThreshold       float64
	IoUThreshold        float64
	MaxAge              uint32
	MinHits             uint32
	TimeoutSecondsReacq float64
	SSIMThresholdReacq  float64
	IoUThresholdReacq   float64
	JitterSeconds       float64
	KeyframeInterval    uint64

	PostgresURL         string
	RedisURL            string
	TempDir             string
	JobPollInterval     time.Duration
	JobWallClockTimeout time.Duration
	DetectorURL         string
	BlobBaseURL         string
	AnnotateOutput      bool
}

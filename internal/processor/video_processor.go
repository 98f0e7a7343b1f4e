// Package processor is the Job Runner's per-video pipeline (spec §4.8): it
// drives C1 (frames.Source) through C5 (motion.Interpolator) in order for
// one job, handing every observation to C7 (storage.TrackStore) as it goes,
// then closes out with C6's gap-correction pass and a job_summaries row.
// The overall shape — a struct holding every collaborator, a Process(ctx,
// job) entry point, step-numbered comments, non-fatal steps absorbed with a
// log line — mirrors video_processor.go's VideoProcessor.Process, now
// driving the tracking core instead of the extractor/audio/scene pipeline.
package processor

import (
	"context"
	"image"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/adverant/nexus/videotrack-worker/internal/annotate"
	"github.com/adverant/nexus/videotrack-worker/internal/blobstore"
	"github.com/adverant/nexus/videotrack-worker/internal/detector"
	"github.com/adverant/nexus/videotrack-worker/internal/frames"
	"github.com/adverant/nexus/videotrack-worker/internal/gapcorrect"
	"github.com/adverant/nexus/videotrack-worker/internal/keyframe"
	"github.com/adverant/nexus/videotrack-worker/internal/models"
	"github.com/adverant/nexus/videotrack-worker/internal/motion"
	"github.com/adverant/nexus/videotrack-worker/internal/queue"
	"github.com/adverant/nexus/videotrack-worker/internal/storage"
	"github.com/adverant/nexus/videotrack-worker/internal/trackerr"
	"github.com/adverant/nexus/videotrack-worker/internal/tracking"
	"github.com/adverant/nexus/videotrack-worker/internal/tsfmt"
)

// Services bundles every external collaborator the Job Runner threads
// through a job (design note §9: "the redesign pushes these to an explicit
// Services structure... no module-level clients").
type Services struct {
	Jobs      *storage.JobStore
	Tracks    *storage.TrackStore
	Blobs     *blobstore.HTTPBlobStore
	Detector  *detector.HTTPDetector
	Canceller *queue.Canceller
	Config    models.Config
}

// VideoProcessor drives C1-C5 for one job at a time and hands closing
// writes to C7/C6. It holds no state across jobs; every map/slice below is
// built fresh per Process call.
type VideoProcessor struct {
	services Services
}

// NewVideoProcessor builds a VideoProcessor over the given Services.
func NewVideoProcessor(services Services) *VideoProcessor {
	return &VideoProcessor{services: services}
}

// touchedTrack records every (video_id, track_id) this job wrote to, so the
// closing Gap Corrector pass only re-reads tracks this job actually touched
// instead of scanning the whole table.
type touchedTrack struct {
	videoID string
	trackID uint32
}

// Process runs the full pipeline for one claimed job: fetch blob, decode
// frames, keyframe-select, associate/track, interpolate, write, then gap-
// correct every touched track. Returns a trackerr sentinel-wrapped error on
// job-fatal failure (spec §7); frame-local failures are absorbed and
// logged.
func (vp *VideoProcessor) Process(ctx context.Context, job *models.Job) error {
	startTime := time.Now()
	cfg := vp.services.Config

	cancelCh, cleanupCancel := vp.watchCancel(ctx, job.ID)
	defer cleanupCancel()

	videoPath, err := vp.services.Blobs.Fetch(ctx, job.VideoID)
	if err != nil {
		return err // already trackerr.ErrBlobFetch
	}
	defer vp.services.Blobs.Cleanup(videoPath)
	log.Printf("✓ fetched blob for video %s", job.VideoID)

	source, err := frames.Open(videoPath)
	if err != nil {
		return err // already trackerr.ErrVideoOpen
	}
	defer source.Close()
	log.Printf("✓ opened video %s: %dx%d @ %.2f fps", job.VideoID, source.Width(), source.Height(), source.FPS())

	var annotator *annotate.Writer
	if cfg.AnnotateOutput {
		annotator = annotate.New(videoPath+".annotated.mp4", source.FPS())
		defer annotator.Close()
	}

	selector := keyframe.New(cfg.SSIMThreshold, cfg.KeyframeInterval)
	defer selector.Close()

	tracker := tracking.New(cfg.IoUThreshold, cfg.MaxAge, cfg.MinHits)
	reacq := tracking.NewPatchReacquirer(tracking.ReacquirerConfig{
		SSIMThreshold:    cfg.SSIMThresholdReacq,
		IoUThreshold:     cfg.IoUThresholdReacq,
		TimeWindowFrames: uint64(cfg.TimeoutSecondsReacq * source.FPS()),
	})
	interpolator := motion.New(source.Width(), source.Height())

	if err := vp.seedReacquirer(ctx, job.VideoID, reacq); err != nil {
		log.Printf("warning: seed re-acquirer for video %s from prior runs: %v", job.VideoID, err)
	}

	touched := map[touchedTrack]struct{}{}
	patches := map[uint32]gocv.Mat{}
	defer func() {
		for _, p := range patches {
			p.Close()
		}
	}()

	var lastKeyframeGray gocv.Mat
	var hasLastKeyframe bool
	frameCount := 0

	for {
		select {
		case reason := <-cancelCh:
			return trackerr.Wrap(trackerr.ErrCancelled, "job %s cancelled: %s", job.ID, reason)
		default:
		}

		frame, ok, err := source.Next()
		if err != nil {
			return trackerr.Wrap(trackerr.ErrVideoOpen, "decode frame: %v", err)
		}
		if !ok {
			break
		}
		frameCount++
		ts := tsfmt.FromMillis(frame.TimestampMs)

		var emitted []annotate.Box
		if selector.Decide(frame.Gray) == keyframe.Keyframe {
			var writeErr error
			emitted, writeErr = vp.processKeyframe(ctx, job.VideoID, frame, ts, tracker, reacq, touched, patches)
			if writeErr != nil {
				frame.Close()
				if hasLastKeyframe {
					lastKeyframeGray.Close()
				}
				return writeErr
			}
			if hasLastKeyframe {
				lastKeyframeGray.Close()
			}
			lastKeyframeGray = frame.Gray.Clone()
			hasLastKeyframe = true
		} else {
			var transform motion.Transform
			if hasLastKeyframe {
				transform = interpolator.Estimate(lastKeyframeGray, frame.Gray)
			}
			var writeErr error
			emitted, writeErr = vp.processIntermediate(ctx, job.VideoID, frame, ts, tracker, transform, touched)
			if writeErr != nil {
				frame.Close()
				if hasLastKeyframe {
					lastKeyframeGray.Close()
				}
				return writeErr
			}
		}

		if annotator != nil {
			if err := annotator.WriteFrame(frame.Color, emitted); err != nil {
				log.Printf("warning: annotate frame %d: %v", frame.Index, err)
			}
		}
		frame.Close()
	}
	if hasLastKeyframe {
		lastKeyframeGray.Close()
	}

	trackCount, err := vp.correctGaps(ctx, job.VideoID, touched, uint64(math.Round(cfg.JitterSeconds*source.FPS())))
	if err != nil {
		return err
	}

	summary := models.JobSummary{
		ID:         uuid.NewString(),
		JobID:      job.ID,
		VideoID:    job.VideoID,
		TrackCount: trackCount,
		FrameCount: frameCount,
		Duration:   time.Since(startTime),
	}
	if err := vp.services.Jobs.WriteSummary(ctx, summary); err != nil {
		log.Printf("warning: write job summary for %s: %v", job.ID, err)
	}

	log.Printf("✅ video %s complete: %d frames, %d tracks, %s", job.VideoID, frameCount, trackCount, summary.Duration)
	return nil
}

// processKeyframe runs C3 (and C4 via the Reacquirer it holds) for one
// keyframe and upserts every emitted observation through C7. Detector
// failures are absorbed per spec §7 (treat the frame as zero detections);
// a persistent store-write failure, after TrackStore's own retries are
// exhausted, is job-fatal (spec §7's StoreWriteError policy), matching
// processIntermediate.
func (vp *VideoProcessor) processKeyframe(
	ctx context.Context,
	videoID string,
	frame frames.Frame,
	ts string,
	tracker *tracking.Tracker,
	reacq *tracking.PatchReacquirer,
	touched map[touchedTrack]struct{},
	patches map[uint32]gocv.Mat,
) ([]annotate.Box, error) {
	dets, err := vp.services.Detector.Infer(ctx, frame.Color)
	if err != nil {
		log.Printf("warning: detector failed for video %s frame %d, treating as zero detections: %v", videoID, frame.Index, err)
		dets = nil
	}

	patchFor := func(det models.Detection) gocv.Mat {
		return cropPatch(frame.Gray, det.Box)
	}
	step := tracker.Step(dets, reacq, frame.Index, patchFor)

	for _, death := range step.Died {
		patch, ok := patches[death.TrackID]
		if !ok {
			patch = gocv.NewMat()
		}
		reacq.Retire(death.TrackID, death.LastBox, frame.Index, patch)
		patch.Close()
		delete(patches, death.TrackID)
	}

	var emitted []annotate.Box
	for _, e := range step.Emitted {
		obs := models.FrameObservation{
			FrameIndex: frame.Index,
			Timestamp:  ts,
			Box:        e.Box,
			Confidence: detectionConfidence(dets, e.Box),
		}
		if err := vp.services.Tracks.UpsertObservation(ctx, videoID, e.TrackID, obs); err != nil {
			return nil, trackerr.Wrap(trackerr.ErrStoreWrite, "upsert track %d frame %d: %v", e.TrackID, frame.Index, err)
		}
		touched[touchedTrack{videoID, e.TrackID}] = struct{}{}

		if obs.Confidence != nil { // box observed by a detection this frame
			if old, ok := patches[e.TrackID]; ok {
				old.Close()
			}
			patches[e.TrackID] = cropPatch(frame.Gray, e.Box)
		}
		emitted = append(emitted, annotate.Box{TrackID: e.TrackID, Box: e.Box})
	}
	reacq.Prune(frame.Index)
	return emitted, nil
}

// processIntermediate runs C5 for one non-keyframe: propagate every live
// track's box through the estimated global transform (or unchanged, per
// the §4.5 fallback order) and upsert the interpolated observation.
func (vp *VideoProcessor) processIntermediate(
	ctx context.Context,
	videoID string,
	frame frames.Frame,
	ts string,
	tracker *tracking.Tracker,
	transform motion.Transform,
	touched map[touchedTrack]struct{},
) ([]annotate.Box, error) {
	var emitted []annotate.Box
	for _, tr := range tracker.LiveTracks() {
		box := tr.LastBox
		if transform.Valid {
			box = transform.Apply(tr.LastBox)
		}

		obs := models.FrameObservation{
			FrameIndex:   frame.Index,
			Timestamp:    ts,
			Box:          box,
			Interpolated: true,
		}
		if err := vp.services.Tracks.UpsertObservation(ctx, videoID, tr.TrackID, obs); err != nil {
			return nil, trackerr.Wrap(trackerr.ErrStoreWrite, "upsert interpolated track %d frame %d: %v", tr.TrackID, frame.Index, err)
		}
		touched[touchedTrack{videoID, tr.TrackID}] = struct{}{}
		emitted = append(emitted, annotate.Box{TrackID: tr.TrackID, Box: box})
	}
	return emitted, nil
}

// correctGaps runs C6 over every track this job touched, re-reading each
// one from the writer (the sole source of truth, spec §4.7) rather than
// trusting anything accumulated in memory during the frame loop.
func (vp *VideoProcessor) correctGaps(ctx context.Context, videoID string, touched map[touchedTrack]struct{}, jitterThresholdFrames uint64) (int, error) {
	count := 0
	for tt := range touched {
		pt, ok, err := vp.services.Tracks.Get(ctx, tt.videoID, tt.trackID)
		if err != nil {
			return count, trackerr.Wrap(trackerr.ErrStoreWrite, "gap-correct read %s_%d: %v", tt.videoID, tt.trackID, err)
		}
		if !ok {
			continue
		}
		count++
		corrected := gapcorrect.Correct(pt.Frames, jitterThresholdFrames)
		if err := vp.services.Tracks.ReplaceFrames(ctx, tt.videoID, tt.trackID, corrected); err != nil {
			return count, trackerr.Wrap(trackerr.ErrStoreWrite, "gap-correct write %s_%d: %v", tt.videoID, tt.trackID, err)
		}
	}
	return count, nil
}

// seedReacquirer loads prior runs' persisted tracks for videoID through C7's
// ScanRecentDead (spec §4.7) and retires each one into reacq, so a job that
// restarts mid-video or reprocesses a video can still reacquire identities
// that died in an earlier run rather than only ones that die during the
// current frame loop. Only box geometry survives in the store, so every
// seeded candidate falls back to IoU (no cached pixel patch).
func (vp *VideoProcessor) seedReacquirer(ctx context.Context, videoID string, reacq *tracking.PatchReacquirer) error {
	dead, err := vp.services.Tracks.ScanRecentDead(ctx, videoID, uint64(math.MaxInt64), uint64(math.MaxInt64))
	if err != nil {
		return err
	}
	for _, pt := range dead {
		if len(pt.Frames) == 0 {
			continue
		}
		last := pt.Frames[len(pt.Frames)-1]
		reacq.Retire(pt.TrackID, last.Box, last.FrameIndex, gocv.NewMat())
	}
	return nil
}

func (vp *VideoProcessor) watchCancel(ctx context.Context, jobID string) (<-chan string, func()) {
	if vp.services.Canceller == nil {
		return make(chan string), func() {}
	}
	return vp.services.Canceller.Watch(ctx, jobID)
}

// cropPatch extracts the pixel patch inside box from gray (the frame's
// single-channel image), for C4's SSIM-of-patch comparison. Returns an
// empty Mat (SSIM/IoU fallback per spec §4.4) when the box falls entirely
// outside the frame.
func cropPatch(gray gocv.Mat, box models.Box) gocv.Mat {
	rect := image.Rect(int(box.X1), int(box.Y1), int(box.X2), int(box.Y2)).Intersect(image.Rect(0, 0, gray.Cols(), gray.Rows()))
	if rect.Empty() {
		return gocv.NewMat()
	}
	return gray.Region(rect).Clone()
}

// detectionConfidence looks up the confidence of the detection whose box
// matches an emitted track box. Tracks emitted on their carried-forward
// last box (no detection matched this frame, e.g. a coasting track) have
// no corresponding detection, so this returns nil, matching spec's
// "confidence: <f32 | null>".
func detectionConfidence(dets []models.Detection, box models.Box) *float32 {
	for _, d := range dets {
		if d.Box == box {
			c := float32(d.Confidence)
			return &c
		}
	}
	return nil
}

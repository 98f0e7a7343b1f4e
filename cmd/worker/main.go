package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adverant/nexus/videotrack-worker/internal/blobstore"
	"github.com/adverant/nexus/videotrack-worker/internal/config"
	"github.com/adverant/nexus/videotrack-worker/internal/detector"
	"github.com/adverant/nexus/videotrack-worker/internal/models"
	"github.com/adverant/nexus/videotrack-worker/internal/processor"
	"github.com/adverant/nexus/videotrack-worker/internal/queue"
	"github.com/adverant/nexus/videotrack-worker/internal/storage"
	"github.com/adverant/nexus/videotrack-worker/internal/trackerr"
)

func main() {
	log.Println("videotrack-worker starting...")

	cfg := config.Load()

	jobs, err := storage.NewJobStore(cfg.PostgresURL)
	if err != nil {
		log.Fatalf("Failed to initialize job store: %v", err)
	}
	defer jobs.Close()
	log.Println("✓ job store initialized (PostgreSQL)")

	tracks, err := storage.NewTrackStore(cfg.PostgresURL)
	if err != nil {
		log.Fatalf("Failed to initialize track store: %v", err)
	}
	defer tracks.Close()
	log.Println("✓ track store initialized (PostgreSQL)")

	canceller, err := queue.NewCanceller(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to initialize cancellation watcher: %v", err)
	}
	defer canceller.Close()
	log.Println("✓ cancellation watcher initialized (Redis)")

	blobs := blobstore.New(cfg.BlobBaseURL, cfg.TempDir)
	det := detector.New(cfg.DetectorURL, 30*time.Second)

	videoProcessor := processor.NewVideoProcessor(processor.Services{
		Jobs:      jobs,
		Tracks:    tracks,
		Blobs:     blobs,
		Detector:  det,
		Canceller: canceller,
		Config:    cfg,
	})
	log.Println("✓ video processor initialized")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	stop := make(chan struct{})
	go runWorkerLoop(jobs, videoProcessor, cfg, stop)

	log.Println("✓ videotrack-worker ready - waiting for jobs...")
	log.Printf("  - job poll interval: %s", cfg.JobPollInterval)
	log.Printf("  - job wall-clock timeout: %s", cfg.JobWallClockTimeout)
	log.Printf("  - detector: %s", cfg.DetectorURL)
	log.Printf("  - blob store: %s", cfg.BlobBaseURL)

	<-sigChan
	log.Println("shutdown signal received, stopping gracefully...")
	close(stop)
	log.Println("videotrack-worker stopped")
}

// runWorkerLoop implements the Job Runner's find-one-and-set-status poll
// loop (spec §4.8): claim a job, drive it through the pipeline under a
// wall-clock timeout, record the terminal status, repeat. On an empty
// queue it sleeps JobPollInterval and retries.
func runWorkerLoop(jobs *storage.JobStore, proc *processor.VideoProcessor, cfg models.Config, stop <-chan struct{}) {
	ctx := context.Background()
	for {
		select {
		case <-stop:
			return
		default:
		}

		job, err := jobs.ClaimNext(ctx)
		if err != nil {
			log.Printf("warning: claim next job: %v", err)
			sleepOrStop(cfg.JobPollInterval, stop)
			continue
		}
		if job == nil {
			sleepOrStop(cfg.JobPollInterval, stop)
			continue
		}

		runJob(ctx, jobs, proc, job, cfg.JobWallClockTimeout)
	}
}

func runJob(ctx context.Context, jobs *storage.JobStore, proc *processor.VideoProcessor, job *models.Job, timeout time.Duration) {
	log.Printf("claimed job %s (video %s)", job.ID, job.VideoID)

	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := proc.Process(jobCtx, job)
	if err == nil {
		if err := jobs.Complete(ctx, job.ID, models.JobAnalyzed, ""); err != nil {
			log.Printf("warning: mark job %s analyzed: %v", job.ID, err)
		}
		return
	}

	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "job exceeded wall-clock timeout: " + msg
	} else if errors.Is(err, trackerr.ErrCancelled) {
		log.Printf("job %s cancelled: %v", job.ID, err)
	} else {
		log.Printf("job %s failed: %v", job.ID, err)
	}

	if cErr := jobs.Complete(ctx, job.ID, models.JobError, msg); cErr != nil {
		log.Printf("warning: mark job %s error: %v", job.ID, cErr)
	}
}

func sleepOrStop(d time.Duration, stop <-chan struct{}) {
	select {
	case <-time.After(d):
	case <-stop:
	}
}

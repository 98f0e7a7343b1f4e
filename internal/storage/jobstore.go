// Package storage implements the Postgres-backed job queue (jobstore.go)
// and track document store (trackstore.go). Connection setup, schema
// bootstrap, and the CREATE TABLE + separate CREATE INDEX idiom are
// adapted from storage_manager.go's NewStorageManager/initSchema; the
// job-row shape (status/error/started_at/completed_at) matches its jobs
// table, narrowed to the spec's four-state enum and repurposed for
// atomic claim instead of passive status recording.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/adverant/nexus/videotrack-worker/internal/models"
)

// JobStore is the Postgres-backed atomic job queue: find-one-and-set-status
// (spec §4.8), plus job_summaries rows written on successful completion
// (SPEC_FULL.md supplemental feature, grounded on processing_results).
type JobStore struct {
	db *sql.DB
}

// NewJobStore opens the Postgres connection and bootstraps the schema,
// following storage_manager.go's NewStorageManager pool configuration.
func NewJobStore(postgresURL string) (*JobStore, error) {
	db, err := sql.Open("postgres", postgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	js := &JobStore{db: db}
	if err := js.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return js, nil
}

func (js *JobStore) initSchema() error {
	tableSchema := `
	CREATE SCHEMA IF NOT EXISTS videotrack;

	CREATE TABLE IF NOT EXISTS videotrack.jobs (
		job_id VARCHAR(255) PRIMARY KEY,
		video_id VARCHAR(255) NOT NULL,
		status VARCHAR(50) NOT NULL,
		error TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		started_at TIMESTAMP,
		completed_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS videotrack.job_summaries (
		id VARCHAR(255) PRIMARY KEY,
		job_id VARCHAR(255) NOT NULL REFERENCES videotrack.jobs(job_id) ON DELETE CASCADE,
		video_id VARCHAR(255) NOT NULL,
		track_count INT NOT NULL,
		frame_count INT NOT NULL,
		duration_ms BIGINT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := js.db.Exec(tableSchema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	indexStatements := []string{
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON videotrack.jobs(status)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_video_id ON videotrack.jobs(video_id)`,
		`CREATE INDEX IF NOT EXISTS idx_job_summaries_job_id ON videotrack.job_summaries(job_id)`,
	}
	for _, stmt := range indexStatements {
		if _, err := js.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create index: %w (statement: %s)", err, stmt)
		}
	}
	return nil
}

// ClaimNext atomically finds one UPLOADED job, sets it to ANALYZING, and
// returns it. Returns (nil, nil) when the queue is empty — the Job Runner
// sleeps briefly and retries (spec §4.8).
func (js *JobStore) ClaimNext(ctx context.Context) (*models.Job, error) {
	tx, err := js.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	var job models.Job
	row := tx.QueryRowContext(ctx, `
		SELECT job_id, video_id, status
		FROM videotrack.jobs
		WHERE status = $1
		ORDER BY created_at
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`, models.JobUploaded)

	var status string
	if err := row.Scan(&job.ID, &job.VideoID, &status); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("claim query: %w", err)
	}
	job.Status = models.JobStatus(status)

	if _, err := tx.ExecContext(ctx, `
		UPDATE videotrack.jobs SET status = $2, started_at = CURRENT_TIMESTAMP WHERE job_id = $1
	`, job.ID, models.JobAnalyzing); err != nil {
		return nil, fmt.Errorf("claim update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	job.Status = models.JobAnalyzing
	return &job, nil
}

// Complete sets a job's terminal status (ANALYZED or ERROR) with an
// optional error message, matching storage_manager.go's UpdateJobStatus
// completed_at CASE pattern.
func (js *JobStore) Complete(ctx context.Context, jobID string, status models.JobStatus, errMsg string) error {
	_, err := js.db.ExecContext(ctx, `
		UPDATE videotrack.jobs
		SET status = $2, error = $3, completed_at = CURRENT_TIMESTAMP
		WHERE job_id = $1
	`, jobID, status, errMsg)
	return err
}

// WriteSummary records the aggregate stats for a completed job.
func (js *JobStore) WriteSummary(ctx context.Context, summary models.JobSummary) error {
	_, err := js.db.ExecContext(ctx, `
		INSERT INTO videotrack.job_summaries (id, job_id, video_id, track_count, frame_count, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			track_count = EXCLUDED.track_count,
			frame_count = EXCLUDED.frame_count,
			duration_ms = EXCLUDED.duration_ms
	`, summary.ID, summary.JobID, summary.VideoID, summary.TrackCount, summary.FrameCount, summary.Duration.Milliseconds())
	return err
}

// Close closes the underlying connection pool.
func (js *JobStore) Close() error {
	return js.db.Close()
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adverant/nexus/videotrack-worker/internal/models"
	"github.com/adverant/nexus/videotrack-worker/internal/trackerr"
	"github.com/adverant/nexus/videotrack-worker/internal/tsfmt"
)

const (
	maxWriteRetries     = 3
	writeRetryBaseDelay = 200 * time.Millisecond
)

// TrackStore is C7: the transactional document store for persistent
// tracks, keyed "<video_id>_<track_id>" with a JSONB frames array (spec
// §6). It is the sole path that mutates persistent track state — the
// associator only ever calls through here.
type TrackStore struct {
	db *sql.DB
}

// NewTrackStore opens a TrackStore sharing the same schema bootstrap
// conventions as JobStore.
func NewTrackStore(postgresURL string) (*TrackStore, error) {
	db, err := sql.Open("postgres", postgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	ts := &TrackStore{db: db}
	if err := ts.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize track schema: %w", err)
	}
	return ts, nil
}

func (ts *TrackStore) initSchema() error {
	schema := `
	CREATE SCHEMA IF NOT EXISTS videotrack;

	CREATE TABLE IF NOT EXISTS videotrack.tracks (
		id VARCHAR(255) PRIMARY KEY,
		video_id VARCHAR(255) NOT NULL,
		track_id BIGINT NOT NULL,
		start_time VARCHAR(32) NOT NULL,
		end_time VARCHAR(32) NOT NULL,
		frames JSONB NOT NULL DEFAULT '[]'::jsonb,
		last_frame_index BIGINT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := ts.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tracks table: %w", err)
	}

	indexStatements := []string{
		`CREATE INDEX IF NOT EXISTS idx_tracks_video_id ON videotrack.tracks(video_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tracks_video_last_frame ON videotrack.tracks(video_id, last_frame_index)`,
	}
	for _, stmt := range indexStatements {
		if _, err := ts.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create index: %w (statement: %s)", err, stmt)
		}
	}
	return nil
}

type frameDoc struct {
	Frame           uint64   `json:"frame"`
	Timestamp       string   `json:"timestamp"`
	Box             [4]float64 `json:"box"`
	Confidence      *float32 `json:"confidence"`
	Interpolated    bool     `json:"interpolated"`
	JitterCorrected bool     `json:"jitter_corrected"`
}

func toFrameDoc(obs models.FrameObservation) frameDoc {
	return frameDoc{
		Frame:           obs.FrameIndex,
		Timestamp:       obs.Timestamp,
		Box:             [4]float64{obs.Box.X1, obs.Box.Y1, obs.Box.X2, obs.Box.Y2},
		Confidence:      obs.Confidence,
		Interpolated:    obs.Interpolated,
		JitterCorrected: obs.JitterCorrected,
	}
}

func fromFrameDoc(d frameDoc) models.FrameObservation {
	return models.FrameObservation{
		FrameIndex:      d.Frame,
		Timestamp:       d.Timestamp,
		Box:             models.Box{X1: d.Box[0], Y1: d.Box[1], X2: d.Box[2], Y2: d.Box[3]},
		Confidence:      d.Confidence,
		Interpolated:    d.Interpolated,
		JitterCorrected: d.JitterCorrected,
	}
}

// UpsertObservation implements C7's atomic append-or-create operation.
// Multiple calls with the same (track_key, frame_index) are idempotent —
// only the first one inserts (invariant 2); later calls with that same
// frame_index are silently ignored rather than appended again. Transient
// failures are retried up to 3 times with backoff (spec §7's StoreWriteError
// policy) before surfacing a job-fatal trackerr.ErrStoreWrite.
func (ts *TrackStore) UpsertObservation(ctx context.Context, videoID string, trackID uint32, obs models.FrameObservation) error {
	var lastErr error
	for attempt := 1; attempt <= maxWriteRetries+1; attempt++ {
		err := ts.upsertObservationAttempt(ctx, videoID, trackID, obs)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt <= maxWriteRetries {
			select {
			case <-ctx.Done():
				return trackerr.Wrap(trackerr.ErrStoreWrite, "cancelled upserting track %d frame %d", trackID, obs.FrameIndex)
			case <-time.After(writeRetryBaseDelay * time.Duration(attempt)):
			}
		}
	}
	return trackerr.Wrap(trackerr.ErrStoreWrite, "upsert track %d frame %d failed after %d attempts: %v", trackID, obs.FrameIndex, maxWriteRetries+1, lastErr)
}

func (ts *TrackStore) upsertObservationAttempt(ctx context.Context, videoID string, trackID uint32, obs models.FrameObservation) error {
	trackKey := fmt.Sprintf("%s_%d", videoID, trackID)

	tx, err := ts.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	var framesJSON []byte
	var endTime string
	var lastFrameIndex uint64
	err = tx.QueryRowContext(ctx, `
		SELECT frames, end_time, last_frame_index FROM videotrack.tracks WHERE id = $1 FOR UPDATE
	`, trackKey).Scan(&framesJSON, &endTime, &lastFrameIndex)

	if err == sql.ErrNoRows {
		doc := []frameDoc{toFrameDoc(obs)}
		encoded, marshalErr := json.Marshal(doc)
		if marshalErr != nil {
			return fmt.Errorf("marshal frames: %w", marshalErr)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO videotrack.tracks (id, video_id, track_id, start_time, end_time, frames, last_frame_index)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, trackKey, videoID, trackID, obs.Timestamp, obs.Timestamp, encoded, obs.FrameIndex)
		if err != nil {
			return fmt.Errorf("insert track: %w", err)
		}
		return tx.Commit()
	}
	if err != nil {
		return fmt.Errorf("select track: %w", err)
	}

	var frames []frameDoc
	if err := json.Unmarshal(framesJSON, &frames); err != nil {
		return fmt.Errorf("unmarshal frames: %w", err)
	}

	for _, f := range frames {
		if f.Frame == obs.FrameIndex {
			return tx.Commit() // idempotent no-op: frame_index already recorded
		}
	}

	frames = append(frames, toFrameDoc(obs))
	encoded, err := json.Marshal(frames)
	if err != nil {
		return fmt.Errorf("marshal frames: %w", err)
	}

	newEndTime := endTime
	curSec, errA := tsfmt.ToSeconds(endTime)
	obsSec, errB := tsfmt.ToSeconds(obs.Timestamp)
	if errA == nil && errB == nil && obsSec > curSec {
		newEndTime = obs.Timestamp
	}

	newLastFrame := lastFrameIndex
	if obs.FrameIndex > newLastFrame {
		newLastFrame = obs.FrameIndex
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE videotrack.tracks
		SET frames = $2, end_time = $3, last_frame_index = $4, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`, trackKey, encoded, newEndTime, newLastFrame)
	if err != nil {
		return fmt.Errorf("update track: %w", err)
	}
	return tx.Commit()
}

// ReplaceFrames overwrites a track's frames array wholesale — used by the
// Gap Corrector's post-pass, which rewrites the full sorted+filled sequence
// rather than appending one observation at a time.
func (ts *TrackStore) ReplaceFrames(ctx context.Context, videoID string, trackID uint32, frames []models.FrameObservation) error {
	trackKey := fmt.Sprintf("%s_%d", videoID, trackID)
	docs := make([]frameDoc, len(frames))
	for i, f := range frames {
		docs[i] = toFrameDoc(f)
	}
	encoded, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("marshal frames: %w", err)
	}

	var lastIdx uint64
	if len(frames) > 0 {
		lastIdx = frames[len(frames)-1].FrameIndex
	}

	_, err = ts.db.ExecContext(ctx, `
		UPDATE videotrack.tracks SET frames = $2, last_frame_index = $3, updated_at = CURRENT_TIMESTAMP WHERE id = $1
	`, trackKey, encoded, lastIdx)
	return err
}

// Get fetches one persistent track by (video_id, track_id), for the Gap
// Corrector's closing pass, which re-reads the writer's own state rather
// than trusting any in-memory accumulation (spec §4.7: "the writer is the
// single source of truth").
func (ts *TrackStore) Get(ctx context.Context, videoID string, trackID uint32) (models.PersistentTrack, bool, error) {
	trackKey := fmt.Sprintf("%s_%d", videoID, trackID)

	var pt models.PersistentTrack
	var framesJSON []byte
	err := ts.db.QueryRowContext(ctx, `
		SELECT id, video_id, track_id, start_time, end_time, frames
		FROM videotrack.tracks WHERE id = $1
	`, trackKey).Scan(&pt.ID, &pt.VideoID, &pt.TrackID, &pt.StartTime, &pt.EndTime, &framesJSON)
	if err == sql.ErrNoRows {
		return models.PersistentTrack{}, false, nil
	}
	if err != nil {
		return models.PersistentTrack{}, false, fmt.Errorf("get track %s: %w", trackKey, err)
	}

	var docs []frameDoc
	if err := json.Unmarshal(framesJSON, &docs); err != nil {
		return models.PersistentTrack{}, false, fmt.Errorf("unmarshal frames: %w", err)
	}
	for _, d := range docs {
		pt.Frames = append(pt.Frames, fromFrameDoc(d))
	}
	return pt, true, nil
}

// ScanRecentDead returns persistent tracks for video_id whose last
// observation frame_index lies in [beforeFrame - windowFrames,
// beforeFrame) (lower bound clamped at 0), for C4's re-acquisition
// candidate lookup.
func (ts *TrackStore) ScanRecentDead(ctx context.Context, videoID string, beforeFrame, windowFrames uint64) ([]models.PersistentTrack, error) {
	var lowerBound int64 = 0
	if int64(beforeFrame)-int64(windowFrames) > 0 {
		lowerBound = int64(beforeFrame) - int64(windowFrames)
	}

	rows, err := ts.db.QueryContext(ctx, `
		SELECT id, video_id, track_id, start_time, end_time, frames
		FROM videotrack.tracks
		WHERE video_id = $1 AND last_frame_index < $2 AND last_frame_index >= $3
	`, videoID, beforeFrame, lowerBound)
	if err != nil {
		return nil, fmt.Errorf("scan recent dead: %w", err)
	}
	defer rows.Close()

	var out []models.PersistentTrack
	for rows.Next() {
		var pt models.PersistentTrack
		var framesJSON []byte
		if err := rows.Scan(&pt.ID, &pt.VideoID, &pt.TrackID, &pt.StartTime, &pt.EndTime, &framesJSON); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		var docs []frameDoc
		if err := json.Unmarshal(framesJSON, &docs); err != nil {
			return nil, fmt.Errorf("unmarshal frames: %w", err)
		}
		for _, d := range docs {
			pt.Frames = append(pt.Frames, fromFrameDoc(d))
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}

// Close closes the underlying connection pool.
func (ts *TrackStore) Close() error {
	return ts.db.Close()
}

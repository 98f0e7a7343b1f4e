// Package blobstore fetches the encoded video blob referenced by a job.
// Retry-with-backoff, temp-file handling, and content validation are
// adapted from internal/utils/http_downloader.go's HTTPDownloader, with
// the retry bound narrowed to the spec's BlobFetchError policy (retry up
// to 3, then fatal) instead of the teacher's open-ended MaxRetries knob.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adverant/nexus/videotrack-worker/internal/trackerr"
)

const maxRetries = 3

// HTTPBlobStore fetches video blobs by job ID from a base URL.
type HTTPBlobStore struct {
	client     *http.Client
	baseURL    string
	tempDir    string
	retryDelay time.Duration
}

// New builds an HTTPBlobStore. baseURL is joined with the job's video_id
// to form the fetch URL (e.g. "<baseURL>/<video_id>").
func New(baseURL, tempDir string) *HTTPBlobStore {
	return &HTTPBlobStore{
		client: &http.Client{
			Timeout: 5 * time.Minute,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		baseURL:    baseURL,
		tempDir:    tempDir,
		retryDelay: 2 * time.Second,
	}
}

// Fetch downloads the blob for videoID to a temp file, retrying up to 3
// times with exponential backoff on transient failure before returning a
// trackerr.ErrBlobFetch (spec §7).
func (s *HTTPBlobStore) Fetch(ctx context.Context, videoID string) (string, error) {
	url := fmt.Sprintf("%s/%s", s.baseURL, videoID)

	var lastErr error
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		path, err := s.fetchAttempt(ctx, url, videoID)
		if err == nil {
			return path, nil
		}
		lastErr = err

		if attempt <= maxRetries {
			select {
			case <-ctx.Done():
				return "", trackerr.Wrap(trackerr.ErrBlobFetch, "cancelled for %s", videoID)
			case <-time.After(s.retryDelay * time.Duration(1<<(attempt-1))):
			}
		}
	}

	return "", trackerr.Wrap(trackerr.ErrBlobFetch, "fetch %s failed after %d attempts: %v", videoID, maxRetries+1, lastErr)
}

func (s *HTTPBlobStore) fetchAttempt(ctx context.Context, url, videoID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "videotrack-worker/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	if err := os.MkdirAll(s.tempDir, 0755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}

	tempFile, err := os.CreateTemp(s.tempDir, fmt.Sprintf("videotrack-%s-*.bin", videoID))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	if _, err := io.Copy(tempFile, resp.Body); err != nil {
		tempFile.Close()
		os.Remove(tempFile.Name())
		return "", fmt.Errorf("copy body: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempFile.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}

	return tempFile.Name(), nil
}

// Cleanup removes a previously fetched temp file.
func (s *HTTPBlobStore) Cleanup(path string) error {
	if path == "" {
		return nil
	}
	if !filepathHasPrefix(path, s.tempDir) {
		return fmt.Errorf("refusing to delete file outside temp directory: %s", path)
	}
	return os.Remove(path)
}

func filepathHasPrefix(path, prefix string) bool {
	rel, err := filepath.Rel(prefix, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Package detector implements the spec's one external Detector method,
// infer(color_frame) -> []Detection, as a no-state HTTP client. Request
// construction, status-code handling and the makeRequest retry loop are
// adapted from internal/clients/mageagent_client.go's MageAgentClient,
// stripped of its async task-submission/poll machinery (the Detector
// interface is a single synchronous call per spec §6, not a job queue).
package detector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"gocv.io/x/gocv"

	"github.com/adverant/nexus/videotrack-worker/internal/models"
	"github.com/adverant/nexus/videotrack-worker/internal/trackerr"
)

// HTTPDetector calls an external object-detection service over HTTP. It
// retains no state across calls, matching spec §6: "No state retained
// across calls. Implementations may be swapped freely."
type HTTPDetector struct {
	baseURL    string
	httpClient *http.Client
	retryCount int
}

// New builds an HTTPDetector pointed at baseURL.
func New(baseURL string, timeout time.Duration) *HTTPDetector {
	return &HTTPDetector{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		retryCount: 1, // spec §7: retry once per frame on DetectorError
	}
}

type inferRequest struct {
	Image string `json:"image"` // base64-encoded color frame
}

type inferResponseDetection struct {
	Box        [4]float64 `json:"box"`
	Confidence float64    `json:"confidence"`
	ClassLabel string     `json:"class_label,omitempty"`
}

type inferResponse struct {
	Detections []inferResponseDetection `json:"detections"`
}

// Infer runs detection on one color frame. On repeated failure it returns
// trackerr.ErrDetector; per spec §4.5/§7 the caller treats that as zero
// detections for the frame rather than aborting the job.
func (d *HTTPDetector) Infer(ctx context.Context, color gocv.Mat) ([]models.Detection, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, color)
	if err != nil {
		return nil, trackerr.Wrap(trackerr.ErrDetector, "encode frame: %v", err)
	}
	defer buf.Close()

	payload := inferRequest{Image: base64.StdEncoding.EncodeToString(buf.GetBytes())}

	var resp inferResponse
	if err := d.makeRequest(ctx, payload, &resp); err != nil {
		return nil, trackerr.Wrap(trackerr.ErrDetector, "infer: %v", err)
	}

	out := make([]models.Detection, len(resp.Detections))
	for i, det := range resp.Detections {
		out[i] = models.Detection{
			Box: models.Box{
				X1: det.Box[0], Y1: det.Box[1], X2: det.Box[2], Y2: det.Box[3],
			},
			Confidence: det.Confidence,
			ClassLabel: det.ClassLabel,
		}
	}
	return out, nil
}

func (d *HTTPDetector) makeRequest(ctx context.Context, payload inferRequest, result *inferResponse) error {
	var lastErr error
	for attempt := 0; attempt <= d.retryCount; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
		err := d.doRequest(ctx, payload, result)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("request failed after %d attempts: %w", d.retryCount+1, lastErr)
}

func (d *HTTPDetector) doRequest(ctx context.Context, payload inferRequest, result *inferResponse) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/infer", d.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return json.Unmarshal(body, result)
}

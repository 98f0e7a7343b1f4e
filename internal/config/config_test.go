package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"SSIM_THRESHOLD", "IOU_THRESHOLD", "MAX_AGE", "MIN_HITS",
		"TIMEOUT_SECONDS_REACQ", "SSIM_THRESHOLD_REACQ", "IOU_THRESHOLD_REACQ",
		"JITTER_SECONDS", "KEYFRAME_INTERVAL", "POSTGRES_URL", "REDIS_URL",
		"TEMP_DIR", "JOB_POLL_INTERVAL", "JOB_WALL_CLOCK_TIMEOUT",
		"DETECTOR_URL", "BLOB_BASE_URL", "ANNOTATE_OUTPUT",
	} {
		os.Unsetenv(key)
	}

	cfg := Load()
	if cfg.SSIMThreshold != 0.90 {
		t.Errorf("SSIMThreshold = %v, want 0.90", cfg.SSIMThreshold)
	}
	if cfg.MaxAge != 3 {
		t.Errorf("MaxAge = %v, want 3", cfg.MaxAge)
	}
	if cfg.MinHits != 2 {
		t.Errorf("MinHits = %v, want 2", cfg.MinHits)
	}
	if cfg.KeyframeInterval != 5 {
		t.Errorf("KeyframeInterval = %v, want 5", cfg.KeyframeInterval)
	}
	if cfg.JobPollInterval != 2*time.Second {
		t.Errorf("JobPollInterval = %v, want 2s", cfg.JobPollInterval)
	}
	if cfg.AnnotateOutput {
		t.Error("AnnotateOutput default should be false")
	}
}

func TestLoadRespectsOverrides(t *testing.T) {
	os.Setenv("MAX_AGE", "10")
	os.Setenv("SSIM_THRESHOLD", "0.5")
	os.Setenv("ANNOTATE_OUTPUT", "true")
	os.Setenv("JOB_POLL_INTERVAL", "500ms")
	defer func() {
		os.Unsetenv("MAX_AGE")
		os.Unsetenv("SSIM_THRESHOLD")
		os.Unsetenv("ANNOTATE_OUTPUT")
		os.Unsetenv("JOB_POLL_INTERVAL")
	}()

	cfg := Load()
	if cfg.MaxAge != 10 {
		t.Errorf("MaxAge = %v, want 10", cfg.MaxAge)
	}
	if cfg.SSIMThreshold != 0.5 {
		t.Errorf("SSIMThreshold = %v, want 0.5", cfg.SSIMThreshold)
	}
	if !cfg.AnnotateOutput {
		t.Error("AnnotateOutput = false, want true")
	}
	if cfg.JobPollInterval != 500*time.Millisecond {
		t.Errorf("JobPollInterval = %v, want 500ms", cfg.JobPollInterval)
	}
}

func TestGetEnvIntIgnoresMalformedValue(t *testing.T) {
	os.Setenv("MIN_HITS", "not-a-number")
	defer os.Unsetenv("MIN_HITS")

	cfg := Load()
	if cfg.MinHits != 2 {
		t.Errorf("MinHits = %v, want default 2 for malformed override", cfg.MinHits)
	}
}

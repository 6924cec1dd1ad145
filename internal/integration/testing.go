package integration

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"neuroguide/internal/infra/config"
)

// Config holds integration test configuration from environment
type Config struct {
	Upstream    config.UpstreamConfig
	Models      config.ModelsConfig
	TestTimeout time.Duration
	SkipSlow    bool
}

// LoadConfig starts from the gateway defaults and applies the same
// NEUROGUIDE_* overrides the binary honours.
func LoadConfig() *Config {
	cfg := config.Defaults()
	config.ApplyEnvOverrides(cfg)
	return &Config{
		Upstream:    cfg.Upstream,
		Models:      cfg.Models,
		TestTimeout: 90 * time.Second,
		SkipSlow:    os.Getenv("SKIP_SLOW_TESTS") == "1",
	}
}

// SkipIfNoAPIKey skips the test if the upstream API key is not set
func SkipIfNoAPIKey(t *testing.T, key string) {
	t.Helper()
	if key == "" {
		t.Skip("Skipping integration test: NEUROGUIDE_UPSTREAM_API_KEY not set")
	}
}

// SkipIfShort skips integration tests in short mode
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// NewTestContext creates a context with timeout for integration tests
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// TestLogger writes debug logs through t.Log when -v is set.
func TestLogger(t *testing.T) *slog.Logger {
	t.Helper()
	if !testing.Verbose() {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(tWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type tWriter struct{ t *testing.T }

func (w tWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

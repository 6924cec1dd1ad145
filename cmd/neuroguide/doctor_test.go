package main

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"neuroguide/internal/infra/config"
)

func TestCheckConfigFile_Missing(t *testing.T) {
	result := checkConfigFile("/nonexistent/path/config.yaml", nil)(nil)
	if result.Status != StatusWarn {
		t.Errorf("expected WARN for missing config, got %s", result.Status)
	}
	if result.Fix == "" {
		t.Error("expected fix suggestion for missing config")
	}
}

func TestCheckConfigFile_LoadError(t *testing.T) {
	result := checkConfigFile("config.yaml", &config.ValidationError{Errors: []string{"bad"}})(nil)
	if result.Status != StatusFail {
		t.Errorf("expected FAIL for load error, got %s", result.Status)
	}
}

func TestCheckConfigFile_Valid(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("server:\n  addr: \":9000\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	result := checkConfigFile(cfgPath, nil)(nil)
	if result.Status != StatusPass {
		t.Errorf("expected PASS, got %s: %s", result.Status, result.Message)
	}
}

func TestChecks_NilConfig(t *testing.T) {
	for name, fn := range map[string]func(*config.Config) CheckResult{
		"key":     checkUpstreamKey,
		"connect": checkUpstreamConnectivity,
		"auth":    checkAuth,
		"listen":  checkListenAddr,
	} {
		if got := fn(nil).Status; got != StatusFail {
			t.Errorf("%s: expected FAIL for nil config, got %s", name, got)
		}
	}
}

func TestCheckUpstreamKey(t *testing.T) {
	cfg := config.Defaults()
	if got := checkUpstreamKey(cfg).Status; got != StatusFail {
		t.Errorf("expected FAIL without key, got %s", got)
	}
	cfg.Upstream.APIKey = "sk-test"
	if got := checkUpstreamKey(cfg).Status; got != StatusPass {
		t.Errorf("expected PASS with key, got %s", got)
	}
}

func TestCheckUpstreamConnectivity_SkippedWithoutKey(t *testing.T) {
	if got := checkUpstreamConnectivity(config.Defaults()).Status; got != StatusWarn {
		t.Errorf("expected WARN, got %s", got)
	}
}

func TestProbe(t *testing.T) {
	var gotAuth, gotPath string
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.WriteHeader(status)
	}))
	defer srv.Close()

	endpoint := modelsEndpoint(srv.URL + "/v1/")
	tests := []struct {
		status int
		want   CheckStatus
	}{
		{http.StatusOK, StatusPass},
		{http.StatusUnauthorized, StatusFail},
		{http.StatusForbidden, StatusFail},
		{http.StatusBadGateway, StatusWarn},
	}
	for _, tt := range tests {
		status = tt.status
		result := probe(endpoint, "sk-test", time.Second)
		if result.Status != tt.want {
			t.Errorf("status %d: expected %s, got %s (%s)", tt.status, tt.want, result.Status, result.Message)
		}
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotPath != "/v1/models" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestProbe_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	result := probe(url, "k", time.Second)
	if result.Status != StatusFail {
		t.Errorf("expected FAIL, got %s", result.Status)
	}
}

func TestCheckAuth(t *testing.T) {
	cfg := config.Defaults()
	if got := checkAuth(cfg).Status; got != StatusWarn {
		t.Errorf("expected WARN for empty static tokens, got %s", got)
	}
	cfg.Auth.Tokens = []config.TokenConfig{{Name: "web", Token: "t"}}
	if got := checkAuth(cfg).Status; got != StatusPass {
		t.Errorf("expected PASS, got %s", got)
	}
	cfg.Auth.Type = "remote"
	cfg.Auth.Remote.BaseURL = "https://id.example.com"
	if got := checkAuth(cfg).Status; got != StatusPass {
		t.Errorf("expected PASS for remote, got %s", got)
	}
}

func TestCheckListenAddr(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	cfg := config.Defaults()
	cfg.Server.Addr = ln.Addr().String()
	if got := checkListenAddr(cfg).Status; got != StatusFail {
		t.Errorf("expected FAIL for a bound port, got %s", got)
	}
	cfg.Server.Addr = "127.0.0.1:0"
	if got := checkListenAddr(cfg).Status; got != StatusPass {
		t.Errorf("expected PASS, got %s", got)
	}
}

func TestStatusIcon(t *testing.T) {
	if statusIcon(StatusPass) != "[PASS]" || statusIcon(StatusFail) != "[FAIL]" || statusIcon("x") != "[????]" {
		t.Error("unexpected icons")
	}
}

func TestAgentPrompts(t *testing.T) {
	if agentPrompts(config.PromptsConfig{}) != nil {
		t.Error("expected nil for no overrides")
	}
	got := agentPrompts(config.PromptsConfig{Agents: map[string]string{"scholar": "s"}})
	if got["scholar"] != "s" {
		t.Errorf("got %v", got)
	}
}

func TestNewGateway_BadAuthType(t *testing.T) {
	cfg := config.Defaults()
	cfg.Auth.Type = "ldap"
	_, err := newGateway(cfg, discardLogger())
	if err == nil {
		t.Fatal("expected error for unknown auth type")
	}
	if errors.Unwrap(err) == nil {
		t.Errorf("expected wrapped error, got %v", err)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

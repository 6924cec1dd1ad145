package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"neuroguide/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

var notLoaded = CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}

// runDoctor executes all health checks and reports results.
func runDoctor() error {
	cfgPath := configPath()
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Upstream API key", Fn: checkUpstreamKey},
		{Name: "Upstream connectivity", Fn: checkUpstreamConnectivity},
		{Name: "Auth", Fn: checkAuth},
		{Name: "Listen address", Fn: checkListenAddr},
	}

	fmt.Println("neuroguide doctor")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Printf("  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Printf("      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile reports whether the config file exists and loaded. A
// missing file only warns since defaults and env overrides still apply.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check config.yaml syntax and file permissions (0600)",
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults", cfgPath),
				Fix:     "Copy config.example.yaml to config.yaml",
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

func checkUpstreamKey(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	if cfg.Upstream.APIKey == "" {
		return CheckResult{
			Status:  StatusFail,
			Message: "no upstream API key, chat endpoints will answer 500",
			Fix:     "Set NEUROGUIDE_UPSTREAM_API_KEY or upstream.api_key",
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("API key configured for %s", cfg.Upstream.Name),
	}
}

// checkUpstreamConnectivity issues an authenticated GET against the
// upstream model listing.
func checkUpstreamConnectivity(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	if cfg.Upstream.APIKey == "" {
		return CheckResult{Status: StatusWarn, Message: "skipped, no API key"}
	}
	return probe(modelsEndpoint(cfg.Upstream.BaseURL), cfg.Upstream.APIKey, 10*time.Second)
}

func modelsEndpoint(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/models"
}

func probe(endpoint, apiKey string, timeout time.Duration) CheckResult {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot reach %s: %v", endpoint, err),
			Fix:     "Check upstream.base_url and network access",
		}
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("upstream rejected the API key (status %d)", resp.StatusCode),
			Fix:     "Rotate the upstream API key",
		}
	case resp.StatusCode >= 500:
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("upstream reachable but unhealthy (status %d)", resp.StatusCode),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("reachable (status %d, latency: %dms)", resp.StatusCode, latency.Milliseconds()),
	}
}

func checkAuth(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	switch cfg.Auth.Type {
	case "remote":
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("remote verifier at %s", cfg.Auth.Remote.BaseURL),
		}
	default:
		if len(cfg.Auth.Tokens) == 0 {
			return CheckResult{
				Status:  StatusWarn,
				Message: "static auth with no tokens, every request will answer 401",
				Fix:     "Add entries under auth.tokens",
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("%d static token(s)", len(cfg.Auth.Tokens)),
		}
	}
}

func checkListenAddr(cfg *config.Config) CheckResult {
	if cfg == nil {
		return notLoaded
	}
	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot bind %s: %v", cfg.Server.Addr, err),
			Fix:     "Free the port or change server.addr",
		}
	}
	ln.Close()
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s is free", cfg.Server.Addr)}
}

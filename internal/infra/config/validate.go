package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateServer(cfg, ve)
	validateUpstream(cfg, ve)
	validateModels(cfg, ve)
	validateOrchestrator(cfg, ve)
	validateAuth(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateServer(cfg *Config, ve *ValidationError) {
	if cfg.Server.Addr == "" {
		ve.Add("server.addr must not be empty")
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		ve.Add("server.max_body_bytes must be > 0")
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		ve.Add("server.allowed_origins must list at least one origin (use \"*\" for any)")
	}
	if rl := cfg.Server.RateLimit; rl.Enabled {
		if rl.RequestsPerMin <= 0 {
			ve.Add("server.rate_limit.requests_per_min must be > 0 when rate limiting is enabled")
		}
		if rl.Burst <= 0 {
			ve.Add("server.rate_limit.burst must be > 0 when rate limiting is enabled")
		}
	}
}

func validateUpstream(cfg *Config, ve *ValidationError) {
	if err := validateURL(cfg.Upstream.BaseURL); err != nil {
		ve.Add("upstream.base_url %q is invalid: %v", cfg.Upstream.BaseURL, err)
	}
	if cfg.Upstream.ConnTimeout < 0 || cfg.Upstream.RespTimeout < 0 {
		ve.Add("upstream timeouts must not be negative")
	}
	if cb := cfg.Upstream.CircuitBreaker; cb.Enabled && cb.Timeout < 0 {
		ve.Add("upstream.circuit_breaker.timeout must not be negative")
	}
}

func validateModels(cfg *Config, ve *ValidationError) {
	stages := []struct {
		name string
		m    ModelConfig
	}{
		{"router", cfg.Models.Router},
		{"agent", cfg.Models.Agent},
		{"stream", cfg.Models.Stream},
	}
	for _, s := range stages {
		if s.m.Model == "" {
			ve.Add("models.%s.model must not be empty", s.name)
		}
		if s.m.Temperature < 0 || s.m.Temperature > 2 {
			ve.Add("models.%s.temperature must be in [0, 2]", s.name)
		}
		if s.m.MaxTokens < 0 {
			ve.Add("models.%s.max_tokens must not be negative", s.name)
		}
	}
}

var validAgentPromptKeys = map[string]bool{
	"router":         true,
	"data_engineer":  true,
	"scholar":        true,
	"code_generator": true,
	"critic":         true,
}

func validateOrchestrator(cfg *Config, ve *ValidationError) {
	if cfg.Orchestrator.MaxAgents <= 0 {
		ve.Add("orchestrator.max_agents must be > 0")
	}
	if cfg.Orchestrator.HistoryLimit <= 0 {
		ve.Add("orchestrator.history_limit must be > 0")
	}
	if cfg.Orchestrator.ExcerptLength <= 0 {
		ve.Add("orchestrator.excerpt_length must be > 0")
	}
	for name := range cfg.Prompts.Agents {
		if !validAgentPromptKeys[name] {
			ve.Add("prompts.agents: unknown agent %q", name)
		}
	}
}

func validateAuth(cfg *Config, ve *ValidationError) {
	switch cfg.Auth.Type {
	case "static":
		seen := make(map[string]bool)
		for i, tok := range cfg.Auth.Tokens {
			if tok.Token == "" {
				ve.Add("auth.tokens[%d].token must not be empty", i)
			}
			if tok.Name != "" && seen[tok.Name] {
				ve.Add("auth.tokens[%d]: duplicate token name %q", i, tok.Name)
			}
			seen[tok.Name] = true
		}
	case "remote":
		if err := validateURL(cfg.Auth.Remote.BaseURL); err != nil {
			ve.Add("auth.remote.base_url %q is invalid: %v", cfg.Auth.Remote.BaseURL, err)
		}
	default:
		ve.Add("auth.type %q is invalid (want: static, remote)", cfg.Auth.Type)
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout)", cfg.Tracer.Exporter)
	}
	if r := cfg.Tracer.SampleRatio; r < 0 || r > 1 {
		ve.Add("tracer.sample_ratio must be within [0, 1], got %g", r)
	}
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host must not be empty")
	}
	return nil
}

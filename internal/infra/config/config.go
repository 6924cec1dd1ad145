package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the neuroguide gateway.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Upstream     UpstreamConfig     `yaml:"upstream"`
	Models       ModelsConfig       `yaml:"models"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Prompts      PromptsConfig      `yaml:"prompts"`
	Auth         AuthConfig         `yaml:"auth"`
	Logger       LoggerConfig       `yaml:"logger"`
	Tracer       TracerConfig       `yaml:"tracer"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr              string          `yaml:"addr"`
	ReadHeaderTimeout time.Duration   `yaml:"read_header_timeout"`
	ReadTimeout       time.Duration   `yaml:"read_timeout"`
	IdleTimeout       time.Duration   `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration   `yaml:"shutdown_timeout"`
	MaxBodyBytes      int64           `yaml:"max_body_bytes"`
	AllowedOrigins    []string        `yaml:"allowed_origins"`
	RateLimit         RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig holds per-IP request limiting for the gateway.
type RateLimitConfig struct {
	Enabled        bool     `yaml:"enabled"`
	RequestsPerMin int      `yaml:"requests_per_min"`
	Burst          int      `yaml:"burst"`
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// UpstreamConfig holds settings for the OpenAI-compatible inference gateway.
type UpstreamConfig struct {
	Name           string               `yaml:"name"`
	BaseURL        string               `yaml:"base_url"`
	APIKey         string               `yaml:"api_key"`
	ConnTimeout    time.Duration        `yaml:"conn_timeout"`
	RespTimeout    time.Duration        `yaml:"resp_timeout"`
	Pool           PoolConfig           `yaml:"pool"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds circuit breaker settings for the upstream.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings for the upstream.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ModelConfig selects a model and its sampling parameters.
type ModelConfig struct {
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// ModelsConfig holds the model used by each stage.
type ModelsConfig struct {
	Router ModelConfig `yaml:"router"`
	Agent  ModelConfig `yaml:"agent"`
	Stream ModelConfig `yaml:"stream"`
}

// OrchestratorConfig holds multi-agent plan settings.
type OrchestratorConfig struct {
	EnableCritic  bool `yaml:"enable_critic"`
	MaxAgents     int  `yaml:"max_agents"`
	HistoryLimit  int  `yaml:"history_limit"`
	ExcerptLength int  `yaml:"excerpt_length"`
}

// PromptsConfig overrides the built-in system prompts. Empty means built-in.
type PromptsConfig struct {
	Chat   string            `yaml:"chat"`
	Agents map[string]string `yaml:"agents,omitempty"` // agent type -> prompt
}

// AuthConfig selects how bearer credentials are verified.
type AuthConfig struct {
	Type   string           `yaml:"type"` // "static" or "remote"
	Tokens []TokenConfig    `yaml:"tokens"`
	Remote RemoteAuthConfig `yaml:"remote"`
}

// TokenConfig is one statically configured bearer token.
type TokenConfig struct {
	Name  string `yaml:"name"`
	Token string `yaml:"token"`
}

// RemoteAuthConfig points at an identity service that resolves a bearer
// token to a user.
type RemoteAuthConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	SampleRatio float64 `yaml:"sample_ratio"` // fraction of root spans kept
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			IdleTimeout:       120 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			MaxBodyBytes:      4 << 20,
			AllowedOrigins:    []string{"*"},
			RateLimit: RateLimitConfig{
				RequestsPerMin: 60,
				Burst:          10,
			},
		},
		Upstream: UpstreamConfig{
			Name:        "lovable",
			BaseURL:     "https://ai.gateway.lovable.dev/v1",
			ConnTimeout: 30 * time.Second,
			RespTimeout: 120 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Models: ModelsConfig{
			Router: ModelConfig{Model: "google/gemini-2.5-flash", Temperature: 0.1, MaxTokens: 500},
			Agent:  ModelConfig{Model: "google/gemini-2.5-pro", Temperature: 0.3, MaxTokens: 4000},
			Stream: ModelConfig{Model: "google/gemini-3-flash-preview", MaxTokens: 4000},
		},
		Orchestrator: OrchestratorConfig{
			EnableCritic:  true,
			MaxAgents:     3,
			HistoryLimit:  10,
			ExcerptLength: 500,
		},
		Auth: AuthConfig{
			Type: "static",
			Remote: RemoteAuthConfig{
				Timeout: 10 * time.Second,
			},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter:    "noop",
			SampleRatio: 1,
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file is not an error: defaults plus env overrides are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err == nil {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		if err := validatePermissions(absPath); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("NEUROGUIDE_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps NEUROGUIDE_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NEUROGUIDE_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("NEUROGUIDE_SERVER_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitAndTrim(v, ",")
	}
	if v := os.Getenv("NEUROGUIDE_SERVER_RATE_LIMIT_ENABLED"); v != "" {
		cfg.Server.RateLimit.Enabled = v == "true"
	}
	if v := os.Getenv("NEUROGUIDE_UPSTREAM_BASE_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := os.Getenv("NEUROGUIDE_UPSTREAM_API_KEY"); v != "" {
		cfg.Upstream.APIKey = v
	}
	if v := os.Getenv("NEUROGUIDE_UPSTREAM_RESP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Upstream.RespTimeout = d
		}
	}
	if v := os.Getenv("NEUROGUIDE_UPSTREAM_CIRCUIT_BREAKER_ENABLED"); v != "" {
		cfg.Upstream.CircuitBreaker.Enabled = v == "true"
	}
	if v := os.Getenv("NEUROGUIDE_MODELS_ROUTER"); v != "" {
		cfg.Models.Router.Model = v
	}
	if v := os.Getenv("NEUROGUIDE_MODELS_AGENT"); v != "" {
		cfg.Models.Agent.Model = v
	}
	if v := os.Getenv("NEUROGUIDE_MODELS_STREAM"); v != "" {
		cfg.Models.Stream.Model = v
	}
	if v := os.Getenv("NEUROGUIDE_ORCHESTRATOR_ENABLE_CRITIC"); v != "" {
		cfg.Orchestrator.EnableCritic = v == "true"
	}
	if v := os.Getenv("NEUROGUIDE_ORCHESTRATOR_MAX_AGENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Orchestrator.MaxAgents = n
		}
	}
	if v := os.Getenv("NEUROGUIDE_AUTH_TYPE"); v != "" {
		cfg.Auth.Type = v
	}
	if v := os.Getenv("NEUROGUIDE_AUTH_TOKENS"); v != "" {
		cfg.Auth.Tokens = nil
		for i, tok := range splitAndTrim(v, ",") {
			if tok == "" {
				continue
			}
			cfg.Auth.Tokens = append(cfg.Auth.Tokens, TokenConfig{
				Name:  "env-" + strconv.Itoa(i),
				Token: tok,
			})
		}
	}
	if v := os.Getenv("NEUROGUIDE_AUTH_REMOTE_BASE_URL"); v != "" {
		cfg.Auth.Remote.BaseURL = v
	}
	if v := os.Getenv("NEUROGUIDE_AUTH_REMOTE_API_KEY"); v != "" {
		cfg.Auth.Remote.APIKey = v
	}
	if v := os.Getenv("NEUROGUIDE_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("NEUROGUIDE_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("NEUROGUIDE_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("NEUROGUIDE_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("NEUROGUIDE_TRACER_SAMPLE_RATIO"); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Tracer.SampleRatio = r
		}
	}
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// decryptSecrets finds "enc:..." values in secret fields and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	secrets := map[string]*string{
		"upstream api_key":    &cfg.Upstream.APIKey,
		"auth remote api_key": &cfg.Auth.Remote.APIKey,
	}
	for i := range cfg.Auth.Tokens {
		secrets["auth token "+cfg.Auth.Tokens[i].Name] = &cfg.Auth.Tokens[i].Token
	}

	for name, fp := range secrets {
		if !strings.HasPrefix(*fp, "enc:") {
			continue
		}
		decrypted, err := DecryptValue(strings.TrimPrefix(*fp, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*fp = decrypted
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts an AES-256-GCM encrypted value.
func DecryptValue(encrypted, passphrase string) (string, error) {
	saltHex, dataHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file has restrictive permissions.
// The file may hold the upstream credential.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}

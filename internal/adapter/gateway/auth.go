package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"neuroguide/internal/domain"
	"neuroguide/internal/infra/config"
)

type authEntry struct {
	token    []byte
	identity *domain.Identity
}

// StaticTokenAuth verifies bearer tokens against a static list using
// constant-time comparison.
type StaticTokenAuth struct {
	entries []authEntry
}

// NewStaticTokenAuth builds a verifier from configured tokens.
func NewStaticTokenAuth(tokens []config.TokenConfig) *StaticTokenAuth {
	a := &StaticTokenAuth{entries: make([]authEntry, len(tokens))}
	for i, t := range tokens {
		a.entries[i] = authEntry{
			token:    []byte(t.Token),
			identity: &domain.Identity{Subject: t.Name, Name: t.Name},
		}
	}
	return a
}

// Verify implements domain.Verifier.
func (s *StaticTokenAuth) Verify(_ context.Context, token string) (*domain.Identity, error) {
	tokenBytes := []byte(token)
	var match *domain.Identity
	for _, e := range s.entries {
		if subtle.ConstantTimeCompare(tokenBytes, e.token) == 1 && match == nil {
			match = e.identity
		}
	}
	if match == nil {
		return nil, domain.ErrGatewayAuthFailed
	}
	return match, nil
}

// RemoteVerifier resolves a bearer token against an identity service's user
// endpoint.
type RemoteVerifier struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *slog.Logger
}

// NewRemoteVerifier creates a verifier calling GET <base_url>/auth/v1/user.
func NewRemoteVerifier(cfg config.RemoteAuthConfig, logger *slog.Logger) *RemoteVerifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RemoteVerifier{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/auth/v1/user",
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

type remoteUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Verify implements domain.Verifier. Every failure, including an unreachable
// identity service, is reported as ErrGatewayAuthFailed.
func (v *RemoteVerifier) Verify(ctx context.Context, token string) (*domain.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", domain.ErrGatewayAuthFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if v.apiKey != "" {
		req.Header.Set("apikey", v.apiKey)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.WarnContext(ctx, "identity service unreachable", "error", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrGatewayAuthFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: identity status %d", domain.ErrGatewayAuthFailed, resp.StatusCode)
	}

	var user remoteUser
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&user); err != nil {
		return nil, fmt.Errorf("%w: decode user: %w", domain.ErrGatewayAuthFailed, err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: user has no id", domain.ErrGatewayAuthFailed)
	}
	return &domain.Identity{Subject: user.ID, Name: user.Email}, nil
}

// NewVerifier builds the verifier selected by cfg.Type.
func NewVerifier(cfg config.AuthConfig, logger *slog.Logger) (domain.Verifier, error) {
	switch cfg.Type {
	case "static", "":
		return NewStaticTokenAuth(cfg.Tokens), nil
	case "remote":
		return NewRemoteVerifier(cfg.Remote, logger), nil
	}
	return nil, fmt.Errorf("unknown auth type %q", cfg.Type)
}

// bearerToken extracts the credential from an "Authorization: Bearer x"
// header.
func bearerToken(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", false
	}
	return token, true
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"neuroguide/internal/domain"
	"neuroguide/internal/infra/config"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = fmt.Errorf("%w: circuit open", domain.ErrUpstream)

// CircuitBreakerProvider wraps a StreamingLLMProvider with circuit breaker
// protection. When the upstream fails repeatedly, calls fail fast with
// ErrCircuitOpen until the breaker half-opens.
type CircuitBreakerProvider struct {
	inner   domain.StreamingLLMProvider
	breaker *gobreaker.CircuitBreaker[any]
	logger  *slog.Logger
}

// NewCircuitBreakerProvider wraps inner with a circuit breaker.
// Zero-valued settings fall back to defaults.
func NewCircuitBreakerProvider(inner domain.StreamingLLMProvider, cfg config.CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerProvider {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "upstream:" + inner.Name(),
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: countsAsHealthy,
	})

	return &CircuitBreakerProvider{
		inner:   inner,
		breaker: cb,
		logger:  logger,
	}
}

// countsAsHealthy reports whether err leaves the breaker's failure count
// untouched. Rate-limit and quota replies mean the upstream is up, and a
// cancelled caller says nothing about upstream health.
func countsAsHealthy(err error) bool {
	return err == nil ||
		errors.Is(err, domain.ErrRateLimit) ||
		errors.Is(err, domain.ErrQuotaExhausted) ||
		errors.Is(err, context.Canceled)
}

// Chat implements domain.LLMProvider.
func (p *CircuitBreakerProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	resp, err := p.breaker.Execute(func() (any, error) {
		return p.inner.Chat(ctx, req)
	})
	if err != nil {
		return nil, p.wrap(err)
	}
	return resp.(*domain.ChatResponse), nil
}

// ChatStream implements domain.StreamingLLMProvider. The breaker guards
// opening the stream; failures after the first byte do not count.
func (p *CircuitBreakerProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (io.ReadCloser, error) {
	body, err := p.breaker.Execute(func() (any, error) {
		return p.inner.ChatStream(ctx, req)
	})
	if err != nil {
		return nil, p.wrap(err)
	}
	return body.(io.ReadCloser), nil
}

func (p *CircuitBreakerProvider) wrap(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("provider %q: %w", p.inner.Name(), ErrCircuitOpen)
	}
	return err
}

// Name implements domain.LLMProvider.
func (p *CircuitBreakerProvider) Name() string { return p.inner.Name() }

// State returns the current circuit breaker state.
func (p *CircuitBreakerProvider) State() gobreaker.State {
	return p.breaker.State()
}

// Counts returns the current circuit breaker failure/success counts.
func (p *CircuitBreakerProvider) Counts() gobreaker.Counts {
	return p.breaker.Counts()
}

var _ domain.StreamingLLMProvider = (*CircuitBreakerProvider)(nil)

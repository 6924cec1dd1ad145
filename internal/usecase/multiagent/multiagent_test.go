package multiagent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"neuroguide/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedProvider answers Chat calls from a queue and records every request.
type scriptedProvider struct {
	mu        sync.Mutex
	replies   []*domain.ChatResponse
	errs      []error
	requests  []domain.ChatRequest
	onRequest func(domain.ChatRequest) (*domain.ChatResponse, error)
}

func (p *scriptedProvider) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.onRequest != nil {
		return p.onRequest(req)
	}
	i := len(p.requests) - 1
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i < len(p.replies) {
		return p.replies[i], nil
	}
	return nil, errors.New("scriptedProvider: no reply queued")
}

func (p *scriptedProvider) Name() string { return "scripted" }

func reply(content string) *domain.ChatResponse {
	return &domain.ChatResponse{Content: content}
}

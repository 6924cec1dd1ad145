package domain

import (
	"context"
	"io"
)

// LLMProvider is the interface for the upstream inference backend.
type LLMProvider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's identifier.
	Name() string
}

// StreamingLLMProvider extends LLMProvider with streaming support.
type StreamingLLMProvider interface {
	LLMProvider
	// ChatStream opens a streaming request and returns the raw event body.
	// A non-success upstream status is reported as an error before any
	// byte is returned. The caller must close the body.
	ChatStream(ctx context.Context, req ChatRequest) (io.ReadCloser, error)
}

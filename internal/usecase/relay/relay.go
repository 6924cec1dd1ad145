// Package relay implements the single-prompt streaming fast path: one
// streaming inference call whose event stream is decoded into text
// fragments and can be piped to a caller byte-for-byte.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"

	"neuroguide/internal/domain"
)

const readBufSize = 4096

// Config controls the streaming request.
type Config struct {
	Model        string
	MaxTokens    int
	Temperature  float64
	HistoryLimit int
	SystemPrompt string
}

// Relay opens streaming inference calls.
type Relay struct {
	provider domain.StreamingLLMProvider
	cfg      Config
	logger   *slog.Logger
}

// New creates a Relay. Empty SystemPrompt selects DefaultSystemPrompt; a
// non-positive HistoryLimit selects 10.
func New(provider domain.StreamingLLMProvider, cfg Config, logger *slog.Logger) *Relay {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	return &Relay{provider: provider, cfg: cfg, logger: logger}
}

// Open starts a stream answering the conversation. The system prompt is
// prepended to the most recent HistoryLimit turns of history. Upstream
// status failures are returned here, before any byte is read.
func (r *Relay) Open(ctx context.Context, history []domain.ChatMessage) (*Stream, error) {
	recent := domain.RecentHistory(history, r.cfg.HistoryLimit)
	messages := make([]domain.ChatMessage, 0, len(recent)+1)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleSystem, Content: r.cfg.SystemPrompt})
	messages = append(messages, recent...)

	body, err := r.provider.ChatStream(ctx, domain.ChatRequest{
		Model:       r.cfg.Model,
		Messages:    messages,
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
		Stream:      true,
	})
	if err != nil {
		return nil, domain.WrapOp("relay.open", err)
	}

	r.logger.DebugContext(ctx, "relay stream opened",
		"model", r.cfg.Model,
		"turns", len(recent),
		"dropped_turns", len(history)-len(recent),
	)

	return &Stream{
		ctx:     ctx,
		body:    body,
		dec:     NewDecoder(),
		readBuf: make([]byte, readBufSize),
		logger:  r.logger,
		started: time.Now(),
	}, nil
}

// Stream is a lazy, forward-only sequence of text fragments over one
// upstream response. It cannot be restarted. Consume it with Next, All or
// Pipe; mixing them is not supported.
type Stream struct {
	ctx     context.Context
	body    io.ReadCloser
	dec     *Decoder
	readBuf []byte
	logger  *slog.Logger
	started time.Time
	closed  bool
}

// Next returns the next text fragment, or io.EOF when the stream ended.
func (s *Stream) Next() (string, error) {
	for {
		frag, err := s.dec.Next()
		if err == nil {
			return frag, nil
		}
		if !errors.Is(err, ErrNeedMore) {
			return "", io.EOF
		}
		if err := s.fill(); err != nil {
			return "", err
		}
	}
}

// All yields every remaining fragment. A read error is yielded once as the
// final element.
func (s *Stream) All() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			frag, err := s.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(frag, err) || err != nil {
				return
			}
		}
	}
}

// Pipe copies the raw upstream bytes to w until the upstream closes,
// calling flush after every chunk, while decoding the same bytes so Text
// reflects what was sent. It returns the number of bytes written.
func (s *Stream) Pipe(w io.Writer, flush func()) (int64, error) {
	var written int64
	for {
		n, rerr := s.body.Read(s.readBuf)
		if n > 0 {
			chunk := s.readBuf[:n]
			s.dec.Write(chunk)
			s.drain()

			wn, werr := w.Write(chunk)
			written += int64(wn)
			if werr != nil {
				return written, fmt.Errorf("write downstream: %w", werr)
			}
			if flush != nil {
				flush()
			}
		}
		if errors.Is(rerr, io.EOF) {
			s.dec.Close()
			s.drain()
			return written, nil
		}
		if rerr != nil {
			return written, fmt.Errorf("%w: read stream: %w", domain.ErrUpstream, rerr)
		}
	}
}

// Text returns the accumulated text of every fragment decoded so far.
func (s *Stream) Text() string { return s.dec.Text() }

// Close releases the upstream connection. It is safe to call twice.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.DebugContext(s.ctx, "relay stream closed",
		"fragments", s.dec.Fragments(),
		"chars", len([]rune(s.dec.Text())),
		"completed", s.dec.Done(),
		"elapsed", time.Since(s.started),
	)
	return s.body.Close()
}

// fill reads one chunk from the upstream into the decoder.
func (s *Stream) fill() error {
	n, err := s.body.Read(s.readBuf)
	if n > 0 {
		s.dec.Write(s.readBuf[:n])
	}
	if errors.Is(err, io.EOF) {
		s.dec.Close()
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read stream: %w", domain.ErrUpstream, err)
	}
	return nil
}

// drain decodes everything currently buffered.
func (s *Stream) drain() {
	for {
		if _, err := s.dec.Next(); err != nil {
			return
		}
	}
}

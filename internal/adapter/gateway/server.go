// Package gateway exposes the chat relay and the orchestration pipeline over
// HTTP.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"neuroguide/internal/domain"
	"neuroguide/internal/infra/config"
	"neuroguide/internal/infra/middleware"
)

// Deps are the collaborators the gateway serves.
type Deps struct {
	Relay        ChatStreamer
	Orchestrator TurnOrchestrator
	Verifier     domain.Verifier
	// Configured is false when no upstream credential is set; chat
	// endpoints then answer 500 without calling out.
	Configured bool
}

// Server is the HTTP gateway.
type Server struct {
	cfg       config.ServerConfig
	deps      Deps
	logger    *slog.Logger
	httpSrv   *http.Server
	boundAddr string
}

// NewServer creates a gateway server.
func NewServer(cfg config.ServerConfig, deps Deps, logger *slog.Logger) *Server {
	return &Server{cfg: cfg, deps: deps, logger: logger}
}

// Handler returns the routed handler wrapped in the middleware chain. ctx
// bounds the rate limiter's cleanup goroutine.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /chat/orchestrate", s.handleOrchestrate)
	mux.HandleFunc("GET /health", s.handleHealth)

	var h http.Handler = mux
	if s.cfg.MaxBodyBytes > 0 {
		h = limitBody(s.cfg.MaxBodyBytes, h)
	}
	if rl := s.cfg.RateLimit; rl.Enabled {
		h = middleware.RateLimit(ctx, middleware.RateLimitConfig{
			RequestsPerMin: rl.RequestsPerMin,
			BurstSize:      rl.Burst,
			TrustedProxies: rl.TrustedProxies,
			OnLimit: func(w http.ResponseWriter, r *http.Request) {
				s.logger.WarnContext(r.Context(), "client rate limited", "remote", r.RemoteAddr)
				writeJSON(w, http.StatusTooManyRequests, errorBody{Error: msgRateLimited})
			},
		})(h)
	}
	h = middleware.CORS(s.cfg.AllowedOrigins)(h)
	h = middleware.SecurityHeaders(h)
	h = s.logRequests(h)
	return middleware.RequestID(h)
}

// Start listens and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.boundAddr = ln.Addr().String()

	s.httpSrv = &http.Server{
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	s.logger.Info("gateway started", "addr", s.boundAddr)

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
		defer cancel()
		if err := s.Stop(shutdownCtx); err != nil {
			s.logger.Warn("gateway shutdown", "error", err)
		}
	}()

	if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway serve: %w", err)
	}
	// Serve returns as soon as Shutdown begins; wait for in-flight streams.
	<-drained
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// BoundAddr returns the address the server bound to. Only valid after Start.
func (s *Server) BoundAddr() string { return s.boundAddr }

func (s *Server) shutdownTimeout() time.Duration {
	if s.cfg.ShutdownTimeout > 0 {
		return s.cfg.ShutdownTimeout
	}
	return 10 * time.Second
}

func limitBody(n int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, n)
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(p)
}

// Unwrap lets http.ResponseController reach the underlying Flusher.
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		s.logger.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"neuroguide/internal/domain"
	"neuroguide/internal/usecase/multiagent"
	"neuroguide/internal/usecase/relay"
)

// Caller-facing error messages.
const (
	msgAuthRequired  = "Authentication required"
	msgAuthInvalid   = "Invalid authentication"
	msgInvalidJSON   = "Invalid JSON body"
	msgBodyNotObject = "Request body must be an object"
	msgBodyTooLarge  = "Request body too large"
	msgNotConfigured = "AI service is not configured"
	msgRateLimited   = "Rate limit exceeded. Please try again in a moment."
	msgQuota         = "AI usage limit reached. Please add credits to continue."
	msgUpstream      = "Failed to get AI response"
	msgUnexpected    = "An unexpected error occurred"
	msgNoUserTurn    = "Messages must include a user message"
)

var (
	errNotConfigured = errors.New("gateway: upstream credential not configured")
	errBodyTooLarge  = errors.New("gateway: body too large")
)

// ChatStreamer opens a streamed answer for a conversation.
type ChatStreamer interface {
	Open(ctx context.Context, history []domain.ChatMessage) (*relay.Stream, error)
}

// TurnOrchestrator runs the full multi-agent pipeline for one query.
type TurnOrchestrator interface {
	Run(ctx context.Context, query string, history []domain.ChatMessage) (*multiagent.Result, error)
}

type errorBody struct {
	Error string `json:"error"`
}

// statusFor translates an error into the HTTP status and the message shown
// to the caller. Upstream bodies never reach the caller.
func statusFor(err error) (int, string) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Message
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge, msgBodyTooLarge
	case errors.Is(err, domain.ErrAuthRequired):
		return http.StatusUnauthorized, msgAuthRequired
	case errors.Is(err, domain.ErrAuthInvalid):
		return http.StatusUnauthorized, msgAuthInvalid
	case errors.Is(err, errNotConfigured):
		return http.StatusInternalServerError, msgNotConfigured
	case errors.Is(err, domain.ErrRateLimit):
		return http.StatusTooManyRequests, msgRateLimited
	case errors.Is(err, domain.ErrQuotaExhausted):
		return http.StatusPaymentRequired, msgQuota
	case errors.Is(err, domain.ErrUpstream):
		return http.StatusInternalServerError, msgUpstream
	}
	return http.StatusInternalServerError, msgUnexpected
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	level := s.logger.WarnContext
	if status >= http.StatusInternalServerError {
		level = s.logger.ErrorContext
	}
	attrs := []any{"path", r.URL.Path, "status", status, "code", domain.ErrorCodeOf(err), "error", err}
	var ue *domain.UpstreamError
	if errors.As(err, &ue) {
		attrs = append(attrs, "upstream_status", ue.StatusCode, "upstream_body", ue.Body)
	}
	level(r.Context(), "request failed", attrs...)
	writeJSON(w, status, errorBody{Error: msg})
}

// authenticate requires a bearer credential accepted by the verifier.
func (s *Server) authenticate(r *http.Request) (*domain.Identity, error) {
	token, ok := bearerToken(r)
	if !ok {
		return nil, domain.ErrAuthRequired
	}
	id, err := s.deps.Verifier.Verify(r.Context(), token)
	if err != nil {
		return nil, err
	}
	return id, nil
}

// readMessages decodes the request body and validates its messages.
func readMessages(r *http.Request) ([]domain.ChatMessage, error) {
	dec := json.NewDecoder(r.Body)
	var body any
	if err := dec.Decode(&body); err != nil {
		return nil, bodyError(err)
	}
	// The body must hold exactly one JSON value.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, bodyError(err)
	}
	obj, ok := body.(map[string]any)
	if !ok {
		return nil, invalid(-1, "object", msgBodyNotObject)
	}
	var raw json.RawMessage
	if v, present := obj["messages"]; present {
		raw, _ = json.Marshal(v)
	}
	return ValidateMessages(raw)
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return errBodyTooLarge
	}
	return invalid(-1, "json", msgInvalidJSON)
}

// prepare runs the checks shared by both chat endpoints.
func (s *Server) prepare(w http.ResponseWriter, r *http.Request) ([]domain.ChatMessage, bool) {
	id, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	msgs, err := readMessages(r)
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	if !s.deps.Configured {
		s.writeError(w, r, errNotConfigured)
		return nil, false
	}
	s.logger.DebugContext(r.Context(), "chat request accepted", "subject", id.Subject, "messages", len(msgs))
	return msgs, true
}

// handleChat streams a single-model answer as text/event-stream, passing
// upstream bytes through unchanged.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	msgs, ok := s.prepare(w, r)
	if !ok {
		return
	}

	stream, err := s.deps.Relay.Open(r.Context(), msgs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer stream.Close()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	n, err := stream.Pipe(w, func() { rc.Flush() })
	if err != nil {
		// Headers are gone; the caller sees a truncated stream.
		s.logger.WarnContext(r.Context(), "stream interrupted", "bytes", n, "error", err)
		return
	}
	s.logger.InfoContext(r.Context(), "stream complete", "bytes", n, "chars", len([]rune(stream.Text())))
}

// handleOrchestrate runs the multi-agent pipeline on the last user turn and
// returns the synthesized answer with every agent output.
func (s *Server) handleOrchestrate(w http.ResponseWriter, r *http.Request) {
	msgs, ok := s.prepare(w, r)
	if !ok {
		return
	}

	query, history, ok := splitQuery(msgs)
	if !ok {
		s.writeError(w, r, invalid(-1, "user_turn", msgNoUserTurn))
		return
	}

	result, err := s.deps.Orchestrator.Run(r.Context(), query, history)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// splitQuery takes the last user message as the query and everything before
// it as history.
func splitQuery(msgs []domain.ChatMessage) (string, []domain.ChatMessage, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == domain.RoleUser {
			return msgs[i].Content, msgs[:i], true
		}
	}
	return "", nil, false
}

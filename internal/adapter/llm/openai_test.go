package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neuroguide/internal/domain"
	"neuroguide/internal/infra/config"
)

// roundTripFunc is a function type that implements http.RoundTripper.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProvider(baseURL string) *OpenAIProvider {
	return NewOpenAIProvider(config.UpstreamConfig{
		Name:    "test",
		BaseURL: baseURL + "/",
		APIKey:  "test-key",
	}, newTestLogger())
}

func TestOpenAIProviderChat(t *testing.T) {
	var got openaiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "chatcmpl-1",
			"model": "google/gemini-2.5-pro",
			"choices": [{
				"index": 0,
				"message": {
					"role": "assistant",
					"content": "Here is the analysis.",
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "provide_citations", "arguments": "{\"citations\":[]}"}
					}]
				},
				"finish_reason": "tool_calls"
			}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`)
	}))
	defer server.Close()

	p := newTestProvider(server.URL)
	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Model:       "google/gemini-2.5-pro",
		Messages:    []domain.ChatMessage{{Role: domain.RoleSystem, Content: "sys"}, {Role: domain.RoleUser, Content: "hi"}},
		MaxTokens:   4000,
		Temperature: 0.3,
		Tools: []domain.ToolSchema{{
			Name:        "provide_citations",
			Description: "cite",
			Parameters:  json.RawMessage(`{"type":"object"}`),
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Here is the analysis.", resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "provide_citations", resp.ToolCalls[0].Name)
	assert.Equal(t, `{"citations":[]}`, resp.ToolCalls[0].Arguments)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	assert.Equal(t, "google/gemini-2.5-pro", got.Model)
	assert.False(t, got.Stream)
	assert.Equal(t, 4000, got.MaxTokens)
	require.NotNil(t, got.Temperature)
	assert.Equal(t, 0.3, *got.Temperature)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "function", got.Tools[0].Type)
	assert.Len(t, got.Messages, 2)
}

func TestOpenAIProviderChatOmitsZeroTemperature(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.NotContains(t, string(body), "temperature")
		assert.NotContains(t, string(body), "tools")
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	defer server.Close()

	resp, err := newTestProvider(server.URL).Chat(context.Background(), domain.ChatRequest{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
}

func TestOpenAIProviderChatEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[]}`)
	}))
	defer server.Close()

	resp, err := newTestProvider(server.URL).Chat(context.Background(), domain.ChatRequest{Model: "m"})
	require.NoError(t, err)
	assert.Empty(t, resp.Content)
	assert.Empty(t, resp.ToolCalls)
}

func TestOpenAIProviderChatStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimit},
		{http.StatusPaymentRequired, domain.ErrQuotaExhausted},
		{http.StatusInternalServerError, domain.ErrUpstream},
		{http.StatusUnauthorized, domain.ErrUpstream},
	}
	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			io.WriteString(w, `{"error":"upstream says no"}`)
		}))

		_, err := newTestProvider(server.URL).Chat(context.Background(), domain.ChatRequest{Model: "m"})
		assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
		server.Close()
	}
}

func TestOpenAIProviderChatInvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `not json`)
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL).Chat(context.Background(), domain.ChatRequest{Model: "m"})
	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestOpenAIProviderChatNetworkError(t *testing.T) {
	p := newTestProvider("http://upstream.invalid")
	p.client = &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})}

	_, err := p.Chat(context.Background(), domain.ChatRequest{Model: "m"})
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestOpenAIProviderChatStream(t *testing.T) {
	const frames = "data: {\"choices\":[{\"delta\":{\"content\":\"He\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"llo\"}}]}\n\n" +
		"data: [DONE]\n\n"

	var got openaiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, frames)
	}))
	defer server.Close()

	body, err := newTestProvider(server.URL).ChatStream(context.Background(), domain.ChatRequest{
		Model:    "google/gemini-3-flash-preview",
		Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	defer body.Close()

	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, frames, string(raw), "stream body is returned verbatim")
	assert.True(t, got.Stream)
}

func TestOpenAIProviderChatStreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		io.WriteString(w, strings.Repeat("x", 10000))
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL).ChatStream(context.Background(), domain.ChatRequest{Model: "m"})
	require.ErrorIs(t, err, domain.ErrQuotaExhausted)

	var ue *domain.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.LessOrEqual(t, len(ue.Body), maxErrorBody)
}

func TestOpenAIProviderName(t *testing.T) {
	assert.Equal(t, "test", newTestProvider("http://x").Name())
}

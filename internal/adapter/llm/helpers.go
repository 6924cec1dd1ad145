package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"neuroguide/internal/domain"
	"neuroguide/internal/infra/tracer"
)

// maxResponseBody is the maximum response body size we read from the upstream.
const maxResponseBody = 10 * 1024 * 1024 // 10 MB

// maxErrorBody bounds how much of an error body is kept for logging.
const maxErrorBody = 4096

// doJSONRequest performs a JSON POST request and returns the response body.
// Non-2xx responses become a *domain.UpstreamError.
func doJSONRequest(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) ([]byte, error) {
	httpResp, err := send(ctx, client, url, body, headers)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if !isSuccess(httpResp.StatusCode) {
		return nil, readHTTPError(httpResp)
	}

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", domain.ErrUpstream, err)
	}
	return respBody, nil
}

// doStreamRequest performs a JSON POST request for event streaming.
// It returns the open *http.Response (caller must close Body).
func doStreamRequest(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) (*http.Response, error) {
	h := map[string]string{"Accept": "text/event-stream"}
	for k, v := range headers {
		h[k] = v
	}

	httpResp, err := send(ctx, client, url, body, h)
	if err != nil {
		return nil, err
	}

	if !isSuccess(httpResp.StatusCode) {
		defer httpResp.Body.Close()
		return nil, readHTTPError(httpResp)
	}
	return httpResp, nil
}

func send(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %w", domain.ErrUpstream, err)
	}
	return httpResp, nil
}

func isSuccess(status int) bool { return status >= 200 && status < 300 }

func readHTTPError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return mapHTTPError(resp.StatusCode, body)
}

// mapHTTPError maps an upstream status code + response body to a domain error.
// Only 429 and 402 are distinguished; every other failure, including 401/403
// for our own credential, is a generic upstream failure.
func mapHTTPError(statusCode int, body []byte) error {
	var sentinel error
	switch statusCode {
	case http.StatusTooManyRequests:
		sentinel = domain.ErrRateLimit
	case http.StatusPaymentRequired:
		sentinel = domain.ErrQuotaExhausted
	default:
		sentinel = domain.ErrUpstream
	}
	return &domain.UpstreamError{StatusCode: statusCode, Body: string(body), Err: sentinel}
}

// logUpstreamError logs the status and body of a failed upstream call.
func logUpstreamError(ctx context.Context, logger *slog.Logger, op string, err error) {
	var ue *domain.UpstreamError
	if errors.As(err, &ue) {
		logger.WarnContext(ctx, "upstream error",
			"op", op,
			"status", ue.StatusCode,
			"body", ue.Body,
			"code", domain.ErrorCodeOf(err),
		)
		return
	}
	logger.WarnContext(ctx, "upstream request failed", "op", op, "error", err)
}

// logChatCompleted logs the standard debug message after a successful chat.
func logChatCompleted(ctx context.Context, logger *slog.Logger, providerName string, result *domain.ChatResponse) {
	logger.DebugContext(ctx, "llm chat completed",
		"provider", providerName,
		"model", result.Model,
		"tool_calls", len(result.ToolCalls),
		"tokens", result.Usage.TotalTokens,
	)
}

// setUsageAttrs adds token usage attributes to a trace span.
func setUsageAttrs(span trace.Span, usage domain.Usage) {
	span.SetAttributes(
		tracer.IntAttr("llm.prompt_tokens", usage.PromptTokens),
		tracer.IntAttr("llm.completion_tokens", usage.CompletionTokens),
	)
}

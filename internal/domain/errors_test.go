package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Executor.Execute", ErrUpstream, "agent scholar")
	want := "Executor.Execute: agent scholar: upstream request failed"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("Router.Classify", ErrClassificationParse, "")
	want := "Router.Classify: classification parse failed"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("Relay.Open", ErrRateLimit, "")
	if !errors.Is(err, ErrRateLimit) {
		t.Error("errors.Is should match ErrRateLimit")
	}
	assert.Equal(t, CodeRateLimit, err.Code())
}

func TestWrapOpNil(t *testing.T) {
	assert.NoError(t, WrapOp("op", nil))
	assert.EqualError(t, WrapOp("op", ErrUpstream), "op: upstream request failed")
}

func TestValidationErrorIsInvalidInput(t *testing.T) {
	var err error = &ValidationError{Index: 3, Rule: "role", Message: "bad role"}
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "bad role", err.Error())

	var ve *ValidationError
	require.True(t, errors.As(fmt.Errorf("wrap: %w", err), &ve))
	assert.Equal(t, 3, ve.Index)
}

func TestUpstreamErrorUnwrap(t *testing.T) {
	err := &UpstreamError{StatusCode: 402, Body: "secret detail", Err: ErrQuotaExhausted}
	assert.ErrorIs(t, err, ErrQuotaExhausted)
	assert.NotContains(t, err.Error(), "secret detail")
}

func TestErrorCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCode
	}{
		{nil, CodeUnknown},
		{errors.New("other"), CodeUnknown},
		{ErrRateLimit, CodeRateLimit},
		{fmt.Errorf("x: %w", ErrQuotaExhausted), CodeQuotaExhausted},
		{fmt.Errorf("x: %w", ErrAuthRequired), CodeAuthRequired},
		{fmt.Errorf("x: %w", ErrGatewayAuthFailed), CodeGatewayAuth},
		{&ValidationError{Message: "m"}, CodeInvalidInput},
		{&UpstreamError{StatusCode: 500, Err: ErrUpstream}, CodeUpstreamFailure},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorCodeOf(tt.err), "err=%v", tt.err)
	}
}

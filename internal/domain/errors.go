package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrInvalidInput        = fmt.Errorf("invalid input")
	ErrAuthInvalid         = fmt.Errorf("authentication failed")
	ErrRateLimit           = fmt.Errorf("rate limit exceeded")
	ErrQuotaExhausted      = fmt.Errorf("usage quota exhausted")
	ErrUpstream            = fmt.Errorf("upstream request failed")
	ErrClassificationParse = fmt.Errorf("classification parse failed")
	ErrConfigLoad          = fmt.Errorf("failed to load configuration")
	ErrDecryption          = fmt.Errorf("decryption failed")

	// Gateway errors.
	ErrAuthRequired      = fmt.Errorf("gateway: credential missing: %w", ErrAuthInvalid)
	ErrGatewayAuthFailed = fmt.Errorf("gateway: %w", ErrAuthInvalid)
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Router.Classify")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ValidationError is the first rule a request payload violated. Message is
// safe to return to the caller verbatim.
type ValidationError struct {
	Index   int // offending message index, -1 when not index-specific
	Rule    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// UpstreamError carries the upstream HTTP status and body. The body is for
// logs only and must never be sent to the caller.
type UpstreamError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream status %d: %v", e.StatusCode, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ErrorCode is a machine-parseable error category for logs and monitoring.
type ErrorCode string

const (
	CodeUnknown             ErrorCode = "UNKNOWN"
	CodeInvalidInput        ErrorCode = "INVALID_INPUT"
	CodeAuthInvalid         ErrorCode = "AUTH_INVALID"
	CodeAuthRequired        ErrorCode = "AUTH_REQUIRED"
	CodeGatewayAuth         ErrorCode = "GATEWAY_AUTH"
	CodeRateLimit           ErrorCode = "RATE_LIMIT"
	CodeQuotaExhausted      ErrorCode = "QUOTA_EXHAUSTED"
	CodeUpstreamFailure     ErrorCode = "UPSTREAM_FAILURE"
	CodeClassificationParse ErrorCode = "CLASSIFICATION_PARSE"
	CodeConfigLoad          ErrorCode = "CONFIG_LOAD"
	CodeDecryption          ErrorCode = "DECRYPTION"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
// More specific sentinels come first in errorCodeOrder.
var errorCodeMap = map[error]ErrorCode{
	ErrInvalidInput:        CodeInvalidInput,
	ErrAuthInvalid:         CodeAuthInvalid,
	ErrAuthRequired:        CodeAuthRequired,
	ErrGatewayAuthFailed:   CodeGatewayAuth,
	ErrRateLimit:           CodeRateLimit,
	ErrQuotaExhausted:      CodeQuotaExhausted,
	ErrUpstream:            CodeUpstreamFailure,
	ErrClassificationParse: CodeClassificationParse,
	ErrConfigLoad:          CodeConfigLoad,
	ErrDecryption:          CodeDecryption,
}

// errorCodeOrder fixes the errors.Is walk so wrapped gateway sentinels
// resolve before the ErrAuthInvalid they wrap.
var errorCodeOrder = []error{
	ErrAuthRequired,
	ErrGatewayAuthFailed,
	ErrAuthInvalid,
	ErrInvalidInput,
	ErrRateLimit,
	ErrQuotaExhausted,
	ErrUpstream,
	ErrClassificationParse,
	ErrConfigLoad,
	ErrDecryption,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	if code, ok := errorCodeMap[err]; ok {
		return code
	}
	for _, sentinel := range errorCodeOrder {
		if errors.Is(err, sentinel) {
			return errorCodeMap[sentinel]
		}
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}

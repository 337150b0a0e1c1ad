package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is the machine-readable "code" of a JSON error.
type ErrorCode string

const (
	ErrBadRequest   ErrorCode = "bad_request"       // 400
	ErrUnauthorized ErrorCode = "unauthorized"      // 401, or no stored identifier
	ErrForbidden    ErrorCode = "forbidden"         // 403, usually a wrong secret
	ErrNotFound     ErrorCode = "not_found"         // 404
	ErrConflict     ErrorCode = "conflict"          // 409
	ErrValidation   ErrorCode = "validation_failed" // 422 or rejected flag values
	ErrRateLimited  ErrorCode = "rate_limited"      // 429
	ErrServerError  ErrorCode = "server_error"      // 5xx
	ErrTimeout      ErrorCode = "timeout"
	ErrCircuitOpen  ErrorCode = "circuit_open"
	ErrNetwork      ErrorCode = "network_error"
	ErrNoData       ErrorCode = "no_data"
	ErrDecodeFailed ErrorCode = "decode_failed" // thumbnail bytes are not an image
	ErrUnknown      ErrorCode = "unknown"
)

type codeInfo struct {
	retryable  bool
	suggestion string
}

var codes = map[ErrorCode]codeInfo{
	ErrBadRequest:   {false, "Check the request format and parameters"},
	ErrUnauthorized: {false, "Run 'om auth login' to store the vendor identifier and secret"},
	ErrForbidden:    {false, "The product belongs to another vendor, or the secret is wrong"},
	ErrNotFound:     {false, "Verify the product ID with 'om products list'"},
	ErrConflict:     {false, "The product changed on the server; fetch it again and retry"},
	ErrValidation:   {false, "Check the input values"},
	ErrRateLimited:  {true, "Wait a moment and retry"},
	ErrServerError:  {true, "The server encountered an error; try again later"},
	ErrTimeout:      {true, "The request timed out; check network connectivity and retry"},
	ErrCircuitOpen:  {true, "Too many recent failures; wait before retrying"},
	ErrNetwork:      {true, "Check network connectivity and the configured host"},
	ErrNoData:       {false, "The server returned an empty body; retry the request"},
	ErrDecodeFailed: {false, "The image is corrupt or in an unsupported format"},
}

var statusCodes = map[int]ErrorCode{
	400: ErrBadRequest,
	401: ErrUnauthorized,
	403: ErrForbidden,
	404: ErrNotFound,
	409: ErrConflict,
	422: ErrValidation,
	429: ErrRateLimited,
}

// IsRetryable reports whether the same request may succeed later.
func (c ErrorCode) IsRetryable() bool { return codes[c].retryable }

// Suggestion is a one-line hint shown next to the error.
func (c ErrorCode) Suggestion() string { return codes[c].suggestion }

// ErrorCodeFromStatus maps an HTTP status code to an ErrorCode.
func ErrorCodeFromStatus(statusCode int) ErrorCode {
	if code, ok := statusCodes[statusCode]; ok {
		return code
	}
	if statusCode >= 500 && statusCode < 600 {
		return ErrServerError
	}
	return ErrUnknown
}

// StructuredError is the body of a JSON error: {"error": {...}}.
type StructuredError struct {
	Code          ErrorCode      `json:"code"`
	Message       string         `json:"message"`
	Retryable     bool           `json:"retryable"`
	Suggestion    string         `json:"suggestion,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
	AllowedValues []string       `json:"allowed_values,omitempty"`
}

func (e *StructuredError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// NewStructuredError fills Retryable and Suggestion from code.
func NewStructuredError(code ErrorCode, message string) *StructuredError {
	return &StructuredError{
		Code:       code,
		Message:    message,
		Retryable:  code.IsRetryable(),
		Suggestion: code.Suggestion(),
	}
}

func NewStructuredErrorWithContext(code ErrorCode, message string, ctx map[string]any) *StructuredError {
	err := NewStructuredError(code, message)
	err.Context = ctx
	return err
}

// NewValidationError reports a rejected value for field. When allowed is
// non-empty the message and suggestion list the accepted values.
func NewValidationError(field, got string, allowed []string) *StructuredError {
	err := NewStructuredErrorWithContext(ErrValidation,
		fmt.Sprintf("invalid %s %q", field, got),
		map[string]any{"field": field, "got": got})
	if len(allowed) > 0 {
		list := strings.Join(allowed, ", ")
		err.Message += ": must be one of " + list
		err.Suggestion = "Use one of: " + list
		err.AllowedValues = allowed
	}
	return err
}

// StructuredErrorFromAPIError keeps the status and request ID as context.
func StructuredErrorFromAPIError(apiErr *APIError) *StructuredError {
	ctx := map[string]any{"status_code": apiErr.StatusCode}
	if apiErr.RequestID != "" {
		ctx["request_id"] = apiErr.RequestID
	}
	return NewStructuredErrorWithContext(ErrorCodeFromStatus(apiErr.StatusCode), apiErr.Body, ctx)
}

// StructuredErrorFromError classifies err for JSON output. Errors that are
// already structured pass through; anything unrecognized is ErrUnknown.
func StructuredErrorFromError(err error) *StructuredError {
	if err == nil {
		return nil
	}

	var (
		se        *StructuredError
		apiErr    *APIError
		rateLimit *RateLimitError
		breaker   *CircuitBreakerError
	)
	switch {
	case errors.As(err, &se):
		return se
	case errors.As(err, &apiErr):
		return StructuredErrorFromAPIError(apiErr)
	case errors.As(err, &rateLimit):
		return NewStructuredErrorWithContext(ErrRateLimited, rateLimit.Error(),
			map[string]any{"retry_after": rateLimit.RetryAfter.String()})
	case errors.As(err, &breaker):
		return NewStructuredError(ErrCircuitOpen, breaker.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return NewStructuredError(ErrTimeout, err.Error())
	case errors.Is(err, ErrFailToResponse):
		return NewStructuredError(ErrNetwork, err.Error())
	case errors.Is(err, ErrNoneData):
		return NewStructuredError(ErrNoData, err.Error())
	}
	return NewStructuredError(ErrUnknown, err.Error())
}

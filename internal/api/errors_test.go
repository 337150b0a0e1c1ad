package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestAPIErrorWrapsOutOfRange(t *testing.T) {
	err := fmt.Errorf("get product: %w", &APIError{StatusCode: 404, Body: "no such product"})
	if !errors.Is(err, ErrOutOfRange) {
		t.Error("APIError should wrap ErrOutOfRange")
	}
	if !IsNotFoundError(err) {
		t.Error("expected IsNotFoundError")
	}
	if got := (&APIError{StatusCode: 500, Body: "boom"}).Error(); got != "API error (status 500): boom" {
		t.Errorf("Error() = %q", got)
	}
}

func TestMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"not found", &APIError{StatusCode: 404}, "The product could not be found."},
		{"out of range", &APIError{StatusCode: 400}, "The server rejected the request."},
		{"rate limited", &RateLimitError{RetryAfter: time.Second}, "The server is receiving too many requests. Try again shortly."},
		{"circuit", &CircuitBreakerError{}, "Too many recent server failures. Wait a moment and try again."},
		{"none data", fmt.Errorf("archive: %w", ErrNoneData), "The server returned no data."},
		{"transport", &TransportError{Method: "GET", URL: "https://x", Err: errors.New("dial tcp: refused")}, "Could not reach the server. Check your network connection."},
		{"other", errors.New("plain"), "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Message(tt.err); got != tt.want {
				t.Errorf("Message() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTransportErrorUnwrap(t *testing.T) {
	inner := context.DeadlineExceeded
	err := &TransportError{Method: http.MethodGet, URL: "https://x", Err: inner}
	if !errors.Is(err, ErrFailToResponse) || !errors.Is(err, inner) {
		t.Error("TransportError should unwrap to both ErrFailToResponse and its cause")
	}
}

func TestStructuredErrorFromError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      ErrorCode
		retryable bool
	}{
		{"api 403", &APIError{StatusCode: 403, Body: "wrong secret"}, ErrForbidden, false},
		{"api 503", &APIError{StatusCode: 503}, ErrServerError, true},
		{"rate limit", &RateLimitError{RetryAfter: 30 * time.Second}, ErrRateLimited, true},
		{"circuit", &CircuitBreakerError{}, ErrCircuitOpen, true},
		{"transport", &TransportError{Err: errors.New("refused")}, ErrNetwork, true},
		{"deadline", fmt.Errorf("list: %w", context.DeadlineExceeded), ErrTimeout, true},
		{"none data", ErrNoneData, ErrNoData, false},
		{"generic", errors.New("x"), ErrUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			se := StructuredErrorFromError(tt.err)
			if se.Code != tt.code {
				t.Errorf("Code = %v, want %v", se.Code, tt.code)
			}
			if se.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", se.Retryable, tt.retryable)
			}
		})
	}

	if StructuredErrorFromError(nil) != nil {
		t.Error("nil error should map to nil")
	}
	rl := StructuredErrorFromError(&RateLimitError{RetryAfter: 30 * time.Second})
	if rl.Context["retry_after"] != "30s" {
		t.Errorf("retry_after = %v", rl.Context["retry_after"])
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("currency", "EUR", Currencies)
	if err.Code != ErrValidation {
		t.Errorf("Code = %v", err.Code)
	}
	if err.Message != `invalid currency "EUR": must be one of KRW, USD` {
		t.Errorf("Message = %q", err.Message)
	}
	if len(err.AllowedValues) != 2 {
		t.Errorf("AllowedValues = %v", err.AllowedValues)
	}
}

func TestNewValidationErrorWithoutAllowedValues(t *testing.T) {
	err := NewValidationError("price", "abc", nil)
	if err.Message != `invalid price "abc"` {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Suggestion != ErrValidation.Suggestion() {
		t.Errorf("Suggestion = %q", err.Suggestion)
	}
	if err.AllowedValues != nil {
		t.Errorf("AllowedValues = %v", err.AllowedValues)
	}
}

func TestErrorCodeFromStatus(t *testing.T) {
	cases := map[int]ErrorCode{
		400: ErrBadRequest,
		401: ErrUnauthorized,
		403: ErrForbidden,
		404: ErrNotFound,
		409: ErrConflict,
		422: ErrValidation,
		429: ErrRateLimited,
		502: ErrServerError,
		418: ErrUnknown,
	}
	for status, want := range cases {
		if got := ErrorCodeFromStatus(status); got != want {
			t.Errorf("ErrorCodeFromStatus(%d) = %v, want %v", status, got, want)
		}
	}
}

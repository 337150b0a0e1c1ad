package api

import (
	"errors"
	"fmt"
	"time"
)

// Network error kinds. Concrete errors wrap one of these so callers can
// branch with errors.Is.
var (
	// ErrOutOfRange means the server answered with a non-2xx status.
	ErrOutOfRange = errors.New("response status out of range")
	// ErrNoneData means the response carried no body where data was expected.
	ErrNoneData = errors.New("response contained no data")
	// ErrFailToResponse means no valid HTTP response was received.
	ErrFailToResponse = errors.New("failed to receive a response")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Body       string
	RequestID  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error {
	return ErrOutOfRange
}

// TransportError is a failure to obtain any HTTP response.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: request failed: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrFailToResponse, e.Err}
}

// RateLimitError represents a rate limit exceeded error.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return ErrOutOfRange
}

// CircuitBreakerError indicates the circuit breaker is open.
type CircuitBreakerError struct{}

func (e *CircuitBreakerError) Error() string {
	return "circuit breaker is open, too many recent failures"
}

func (e *CircuitBreakerError) Unwrap() error {
	return ErrFailToResponse
}

// IsRateLimitError checks if the error is a rate limit error.
func IsRateLimitError(err error) bool {
	var e *RateLimitError
	return errors.As(err, &e)
}

// IsCircuitBreakerError checks if the error is a circuit breaker error.
func IsCircuitBreakerError(err error) bool {
	var e *CircuitBreakerError
	return errors.As(err, &e)
}

// IsNotFoundError checks if the error is a 404 from the backend.
func IsNotFoundError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}

// Message returns a short, user-facing description of a network error.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case IsCircuitBreakerError(err):
		return "Too many recent server failures. Wait a moment and try again."
	case IsRateLimitError(err):
		return "The server is receiving too many requests. Try again shortly."
	case IsNotFoundError(err):
		return "The product could not be found."
	case errors.Is(err, ErrOutOfRange):
		return "The server rejected the request."
	case errors.Is(err, ErrNoneData):
		return "The server returned no data."
	case errors.Is(err, ErrFailToResponse):
		return "Could not reach the server. Check your network connection."
	default:
		return err.Error()
	}
}

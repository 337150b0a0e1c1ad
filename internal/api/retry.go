package api

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	DefaultMaxRateLimitRetries     = 3
	DefaultMax5xxRetries           = 1
	DefaultRateLimitBaseDelay      = 1 * time.Second
	DefaultServerErrorRetryDelay   = 1 * time.Second
	DefaultCircuitBreakerThreshold = 5
	DefaultCircuitBreakerResetTime = 30 * time.Second
)

// RetryConfig controls retries of idempotent requests and the circuit breaker.
type RetryConfig struct {
	MaxRateLimitRetries     int
	Max5xxRetries           int
	RateLimitBaseDelay      time.Duration
	ServerErrorRetryDelay   time.Duration
	CircuitBreakerThreshold int
	CircuitBreakerResetTime time.Duration
}

// retryEnv maps OPENMARKET_* variables onto RetryConfig fields. Unparsable
// values keep the default and are logged.
var retryEnv = []struct {
	key   string
	apply func(cfg *RetryConfig, value string) error
}{
	{"OPENMARKET_MAX_RATE_LIMIT_RETRIES", intField(func(c *RetryConfig) *int { return &c.MaxRateLimitRetries })},
	{"OPENMARKET_MAX_5XX_RETRIES", intField(func(c *RetryConfig) *int { return &c.Max5xxRetries })},
	{"OPENMARKET_RATE_LIMIT_DELAY", durationField(func(c *RetryConfig) *time.Duration { return &c.RateLimitBaseDelay })},
	{"OPENMARKET_SERVER_ERROR_DELAY", durationField(func(c *RetryConfig) *time.Duration { return &c.ServerErrorRetryDelay })},
	{"OPENMARKET_CIRCUIT_BREAKER_THRESHOLD", intField(func(c *RetryConfig) *int { return &c.CircuitBreakerThreshold })},
	{"OPENMARKET_CIRCUIT_BREAKER_RESET_TIME", durationField(func(c *RetryConfig) *time.Duration { return &c.CircuitBreakerResetTime })},
}

func intField(field func(*RetryConfig) *int) func(*RetryConfig, string) error {
	return func(cfg *RetryConfig, value string) error {
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		*field(cfg) = n
		return nil
	}
}

func durationField(field func(*RetryConfig) *time.Duration) func(*RetryConfig, string) error {
	return func(cfg *RetryConfig, value string) error {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*field(cfg) = d
		return nil
	}
}

// DefaultRetryConfig returns the built-in defaults overridden by any
// OPENMARKET_MAX_RATE_LIMIT_RETRIES, OPENMARKET_MAX_5XX_RETRIES,
// OPENMARKET_RATE_LIMIT_DELAY, OPENMARKET_SERVER_ERROR_DELAY,
// OPENMARKET_CIRCUIT_BREAKER_THRESHOLD or OPENMARKET_CIRCUIT_BREAKER_RESET_TIME
// set in the environment.
func DefaultRetryConfig() RetryConfig {
	cfg := RetryConfig{
		MaxRateLimitRetries:     DefaultMaxRateLimitRetries,
		Max5xxRetries:           DefaultMax5xxRetries,
		RateLimitBaseDelay:      DefaultRateLimitBaseDelay,
		ServerErrorRetryDelay:   DefaultServerErrorRetryDelay,
		CircuitBreakerThreshold: DefaultCircuitBreakerThreshold,
		CircuitBreakerResetTime: DefaultCircuitBreakerResetTime,
	}
	for _, env := range retryEnv {
		value := strings.TrimSpace(os.Getenv(env.key))
		if value == "" {
			continue
		}
		if err := env.apply(&cfg, value); err != nil {
			slog.Warn("ignoring invalid retry setting", "env", env.key, "value", value)
		}
	}
	return cfg
}

// retryState counts the retries spent on one logical request.
type retryState struct {
	rateLimited  int
	serverErrors int
}

// retryDecision says whether a response should be retried and after how long.
type retryDecision struct {
	retry bool
	delay time.Duration
	// retryAfter is the server's hint, reported in RateLimitError when the
	// request gives up.
	retryAfter time.Duration
}

// decide applies cfg to a response. Only GET and HEAD are ever retried:
// create, update and archive requests are not safe to repeat.
func (cfg RetryConfig) decide(method string, status int, header http.Header, st *retryState) retryDecision {
	idempotent := method == http.MethodGet || method == http.MethodHead
	switch {
	case status == http.StatusTooManyRequests:
		hint, hasHint := retryAfterDuration(header)
		if !hasHint {
			hint = cfg.RateLimitBaseDelay
		}
		if !idempotent || st.rateLimited >= cfg.MaxRateLimitRetries {
			return retryDecision{retryAfter: hint}
		}
		delay := hint
		if !hasHint {
			delay = cfg.RateLimitBaseDelay << st.rateLimited
		}
		st.rateLimited++
		return retryDecision{retry: true, delay: delay, retryAfter: hint}
	case status >= 500:
		if !idempotent || st.serverErrors >= cfg.Max5xxRetries {
			return retryDecision{}
		}
		st.serverErrors++
		return retryDecision{retry: true, delay: cfg.ServerErrorRetryDelay}
	}
	return retryDecision{}
}

// sleepWithContext waits for d or until ctx is done.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retryAfterDuration parses Retry-After as seconds or an HTTP date.
// Values in the past clamp to zero.
func retryAfterDuration(h http.Header) (time.Duration, bool) {
	value := strings.TrimSpace(h.Get("Retry-After"))
	if value == "" {
		return 0, false
	}
	var d time.Duration
	if secs, err := strconv.Atoi(value); err == nil {
		d = time.Duration(secs) * time.Second
	} else if t, err := http.ParseTime(value); err == nil {
		d = time.Until(t)
	} else {
		return 0, false
	}
	return max(d, 0), true
}

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// circuitBreaker stops requests after threshold consecutive failures. After
// resetTime it goes half-open: the next request's outcome closes or
// re-opens the circuit.
type circuitBreaker struct {
	mu          sync.Mutex
	state       breakerState
	failures    int
	lastFailure time.Time
	threshold   int
	resetTime   time.Duration
}

// allow reports whether a request may be sent now.
func (cb *circuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != breakerOpen {
		return true
	}
	resetTime := cb.resetTime
	if resetTime <= 0 {
		resetTime = DefaultCircuitBreakerResetTime
	}
	if time.Since(cb.lastFailure) < resetTime {
		return false
	}
	cb.state = breakerHalfOpen
	return true
}

func (cb *circuitBreaker) success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.state = breakerClosed
}

// failure records a failed request and reports whether it opened the circuit.
func (cb *circuitBreaker) failure() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = time.Now()

	threshold := cb.threshold
	if threshold <= 0 {
		threshold = DefaultCircuitBreakerThreshold
	}
	switch {
	case cb.state == breakerHalfOpen:
		cb.state = breakerOpen
		return true
	case cb.state == breakerClosed && cb.failures >= threshold:
		cb.state = breakerOpen
		return true
	}
	return false
}

func (cb *circuitBreaker) reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = breakerClosed
	cb.failures = 0
	cb.lastFailure = time.Time{}
}

package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/openmarket/openmarket-cli/internal/debug"
	"github.com/openmarket/openmarket-cli/internal/formdata"
	"github.com/openmarket/openmarket-cli/internal/request"
)

const DefaultTimeout = 30 * time.Second

// Client is the OpenMarket API client.
//
// The client includes a circuit breaker that tracks server failures across requests.
// Use ResetCircuitBreaker() to clear its state when reusing a client between
// logical sessions.
type Client struct {
	Builder     *request.Builder
	Secret      string
	HTTP        *http.Client
	UserAgent   string
	RetryConfig RetryConfig

	// NewBoundary returns the multipart boundary for create requests.
	NewBoundary func() string

	circuitBreaker *circuitBreaker
}

// New creates a client for the vendor identified by identifier. secret
// authorizes product deletion and is sent with every create and update.
func New(host, identifier, secret string) *Client {
	baseTransport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		baseTransport = &http.Transport{}
	}
	transport := baseTransport.Clone()
	if transport.TLSClientConfig == nil {
		transport.TLSClientConfig = &tls.Config{}
	} else {
		transport.TLSClientConfig = transport.TLSClientConfig.Clone()
	}
	transport.TLSClientConfig.MinVersion = tls.VersionTLS12

	retryCfg := DefaultRetryConfig()
	return &Client{
		Builder:     request.NewBuilder(host, identifier),
		Secret:      secret,
		RetryConfig: retryCfg,
		NewBoundary: formdata.NewBoundary,
		HTTP: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: transport,
		},
		circuitBreaker: &circuitBreaker{
			threshold: retryCfg.CircuitBreakerThreshold,
			resetTime: retryCfg.CircuitBreakerResetTime,
		},
	}
}

// ResetCircuitBreaker clears the circuit breaker state.
func (c *Client) ResetCircuitBreaker() {
	if c.circuitBreaker != nil {
		c.circuitBreaker.reset()
	}
}

// SetRetryConfig updates the retry configuration and aligns circuit breaker settings.
func (c *Client) SetRetryConfig(cfg RetryConfig) {
	c.RetryConfig = cfg
	if c.circuitBreaker != nil {
		c.circuitBreaker.threshold = cfg.CircuitBreakerThreshold
		c.circuitBreaker.resetTime = cfg.CircuitBreakerResetTime
	}
}

// Do dispatches a built description and returns the raw response body,
// headers and status code.
func (c *Client) Do(ctx context.Context, d request.Description) ([]byte, http.Header, int, error) {
	return c.executeRequest(ctx, d)
}

// Fetch downloads the resource at rawURL. It is used for product images,
// which are served from hosts other than the API host.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	d, err := request.Fetch(rawURL)
	if err != nil {
		return nil, err
	}
	body, _, _, err := c.executeRequest(ctx, d)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("GET %s: %w", rawURL, ErrNoneData)
	}
	return body, nil
}

// doJSON dispatches d and decodes a non-empty JSON response into result.
func (c *Client) doJSON(ctx context.Context, d request.Description, result any) error {
	body, _, _, err := c.Do(ctx, d)
	if err != nil {
		return err
	}
	return decodeJSON(body, result)
}

func decodeJSON(body []byte, result any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return ErrNoneData
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unexpected API response format (JSON decode failed): %w", err)
	}
	return nil
}

// executeRequest sends d, retrying rate-limited and failed GETs as
// RetryConfig allows. Every attempt is rebuilt from d so bodies are never
// half consumed.
func (c *Client) executeRequest(ctx context.Context, d request.Description) ([]byte, http.Header, int, error) {
	u, err := d.URL()
	if err != nil {
		return nil, nil, 0, err
	}
	method, url := string(d.Method), u.String()

	if c.circuitBreaker != nil && !c.circuitBreaker.allow() {
		return nil, nil, 0, &CircuitBreakerError{}
	}

	var st retryState
	for attempt := 1; ; attempt++ {
		start := time.Now()
		req, err := d.HTTPRequest(ctx)
		if err != nil {
			return nil, nil, 0, err
		}
		if c.UserAgent != "" {
			req.Header.Set("User-Agent", c.UserAgent)
		}
		if req.Header.Get("Accept") == "" {
			req.Header.Set("Accept", "application/json")
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			if debug.IsEnabled(ctx) {
				slog.Debug("request failed", "method", method, "url", url, "attempt", attempt, "error", err)
			}
			if c.circuitBreaker != nil && ctx.Err() == nil {
				c.circuitBreaker.failure()
			}
			return nil, nil, 0, &TransportError{Method: method, URL: url, Err: err}
		}

		respBody, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, nil, 0, &TransportError{Method: method, URL: url, Err: fmt.Errorf("failed to read response: %w", err)}
		}
		if debug.IsEnabled(ctx) {
			slog.Debug("request complete", "method", method, "url", url, "status", resp.StatusCode, "attempt", attempt, "bytes", len(respBody), "duration", time.Since(start))
		}

		status := resp.StatusCode
		if status >= 500 && c.circuitBreaker != nil {
			c.circuitBreaker.failure()
		}
		decision := c.RetryConfig.decide(method, status, resp.Header, &st)
		if decision.retry {
			slog.Info("retrying request", "method", method, "status", status, "delay", decision.delay, "attempt", attempt+1)
			if err := sleepWithContext(ctx, decision.delay); err != nil {
				return nil, nil, 0, err
			}
			continue
		}

		switch {
		case status == http.StatusTooManyRequests:
			return nil, resp.Header, status, &RateLimitError{RetryAfter: decision.retryAfter}
		case status < 200 || status >= 300:
			return respBody, resp.Header, status, &APIError{
				StatusCode: status,
				Body:       sanitizeErrorBody(string(respBody)),
				RequestID:  requestIDFromHeader(resp.Header),
			}
		}

		if c.circuitBreaker != nil {
			c.circuitBreaker.success()
		}
		return respBody, resp.Header, status, nil
	}
}

func requestIDFromHeader(header http.Header) string {
	if header == nil {
		return ""
	}
	return header.Get("X-Request-Id")
}

// sanitizeErrorBody extracts a safe error message from an API response
// without echoing arbitrary payloads.
func sanitizeErrorBody(body string) string {
	var errResp struct {
		Code    int    `json:"code"`
		Error   string `json:"error"`
		Message string `json:"message"`
		Errors  any    `json:"errors"`
	}
	if err := json.Unmarshal([]byte(body), &errResp); err != nil {
		return "API request failed (response body redacted)"
	}

	validationErrors := formatValidationErrors(errResp.Errors)

	var result string
	if errResp.Message != "" {
		result = errResp.Message
	} else if errResp.Error != "" {
		result = errResp.Error
	}

	if validationErrors != "" {
		if result != "" {
			return result + "\nValidation errors:\n" + validationErrors
		}
		return "Validation errors:\n" + validationErrors
	}
	if result != "" {
		return result
	}
	return "API request failed (response body redacted)"
}

// formatValidationErrors handles both map[string]string and
// map[string][]string shapes.
func formatValidationErrors(errors any) string {
	errMap, ok := errors.(map[string]any)
	if !ok || len(errMap) == 0 {
		return ""
	}

	var lines []string
	for field, value := range errMap {
		switch v := value.(type) {
		case string:
			lines = append(lines, fmt.Sprintf("  %s: %s", field, v))
		case []any:
			for _, msg := range v {
				if msgStr, ok := msg.(string); ok {
					lines = append(lines, fmt.Sprintf("  %s: %s", field, msgStr))
				}
			}
		}
	}
	if len(lines) == 0 {
		return ""
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

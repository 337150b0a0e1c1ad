// Test utilities for the om commands.
//
// Commands run against an httptest server through OPENMARKET_HOST, which
// accepts an http:// URL. A typical test:
//
//	handler := newRouteHandler().
//	    On("GET", "/api/products/42", jsonResponse(200, productJSON))
//	setupTestEnvWithHandler(t, handler)
//
//	output := captureStdout(t, func() {
//	    if err := Execute(context.Background(), []string{"products", "get", "42"}); err != nil {
//	        t.Fatalf("command failed: %v", err)
//	    }
//	})
//
// setupTestEnvWithHandler also points the cache and config directories at
// temp dirs, uses an in-memory keyring and disables the update check, so
// tests never touch the developer's machine.
package cmd

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/99designs/keyring"

	"github.com/openmarket/openmarket-cli/internal/config"
)

// captureStdout executes a function and captures its stdout output.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	fn()

	_ = w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

// captureStderr executes a function and captures its stderr output.
func captureStderr(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	fn()

	_ = w.Close()
	os.Stderr = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

// withPersistentKeyring swaps in one in-memory keyring for the whole test.
func withPersistentKeyring(t *testing.T) {
	t.Helper()
	ring := keyring.NewArrayKeyring(nil)
	cleanup := config.SetOpenKeyring(func(keyring.Config) (keyring.Keyring, error) {
		return ring, nil
	})
	t.Cleanup(cleanup)
}

// isolateEnv points every on-disk location at temp dirs and clears
// credentials inherited from the developer's shell.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPENMARKET_CACHE_DIR", t.TempDir())
	t.Setenv("OPENMARKET_CONFIG_DIR", t.TempDir())
	t.Setenv("OPENMARKET_NO_UPDATE_CHECK", "1")
	t.Setenv("OPENMARKET_OUTPUT", "text")
	t.Setenv("OPENMARKET_HOST", "")
	t.Setenv("OPENMARKET_IDENTIFIER", "")
	t.Setenv("OPENMARKET_SECRET", "")
	t.Setenv("OPENMARKET_PROFILE", "")
	t.Setenv("OPENMARKET_MAX_5XX_RETRIES", "0")
	withPersistentKeyring(t)
}

type testEnv struct {
	server *httptest.Server
}

// setupTestEnvWithHandler starts handler behind an httptest server and
// exports credentials for it.
func setupTestEnvWithHandler(t *testing.T, handler http.Handler) *testEnv {
	t.Helper()
	isolateEnv(t)

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	t.Setenv("OPENMARKET_HOST", server.URL)
	t.Setenv("OPENMARKET_IDENTIFIER", "test-vendor")
	t.Setenv("OPENMARKET_SECRET", "test-secret")

	return &testEnv{server: server}
}

// jsonResponse creates an http.HandlerFunc that returns a JSON response with the given status and body.
func jsonResponse(statusCode int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_, _ = w.Write([]byte(body))
	}
}

// routeHandler routes requests by exact "METHOD PATH" and records every
// request it sees. Unmatched requests get 404.
type routeHandler struct {
	mu       sync.Mutex
	routes   map[string]http.HandlerFunc
	requests []recordedRequest
}

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

func newRouteHandler() *routeHandler {
	return &routeHandler{routes: make(map[string]http.HandlerFunc)}
}

// On registers a handler for the given HTTP method and path.
func (rh *routeHandler) On(method, path string, handler http.HandlerFunc) *routeHandler {
	rh.routes[method+" "+path] = handler
	return rh
}

func (rh *routeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	rh.mu.Lock()
	rh.requests = append(rh.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
		Body:   body,
	})
	handler, ok := rh.routes[r.Method+" "+r.URL.Path]
	rh.mu.Unlock()

	if ok {
		handler(w, r)
		return
	}
	http.NotFound(w, r)
}

// Requests returns a copy of the requests seen so far.
func (rh *routeHandler) Requests() []recordedRequest {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	return append([]recordedRequest(nil), rh.requests...)
}

// count returns how many requests hit method and path.
func (rh *routeHandler) count(method, path string) int {
	n := 0
	for _, r := range rh.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// handlerBody reads a request body inside a route handler.
func handlerBody(r *http.Request) []byte {
	body, _ := io.ReadAll(r.Body)
	return body
}

// pngBytes encodes a w x h opaque PNG.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.NRGBA{R: uint8(x * 40), G: uint8(y * 40), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func decodeJSON(t *testing.T, output string) map[string]any {
	t.Helper()
	var v map[string]any
	if err := json.Unmarshal([]byte(output), &v); err != nil {
		t.Fatalf("output is not valid JSON: %v, output: %s", err, output)
	}
	return v
}

func TestTestInfrastructure(t *testing.T) {
	handler := newRouteHandler().
		On("GET", "/api/test", jsonResponse(200, `{"method": "get"}`))
	env := setupTestEnvWithHandler(t, handler)

	if os.Getenv("OPENMARKET_HOST") != env.server.URL {
		t.Error("OPENMARKET_HOST not set correctly")
	}

	resp, err := http.Get(env.server.URL + "/api/test?x=1")
	if err != nil {
		t.Fatalf("GET request failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(env.server.URL + "/api/unknown")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("expected status 404 for unknown route, got %d", resp.StatusCode)
	}

	if got := handler.count("GET", "/api/test"); got != 1 {
		t.Errorf("count = %d, want 1", got)
	}
	if reqs := handler.Requests(); reqs[0].Query != "x=1" {
		t.Errorf("query = %q", reqs[0].Query)
	}
}

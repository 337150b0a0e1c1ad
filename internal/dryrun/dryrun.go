// Package dryrun provides dry-run mode functionality for previewing mutations.
package dryrun

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/openmarket/openmarket-cli/internal/request"
)

type contextKey string

const dryRunKey contextKey = "dry_run_enabled"

// maxBodyPreview bounds how much of a textual body is echoed.
const maxBodyPreview = 2048

// WithDryRun returns a context with dry-run mode enabled/disabled.
func WithDryRun(ctx context.Context, enabled bool) context.Context {
	return context.WithValue(ctx, dryRunKey, enabled)
}

// IsEnabled returns true if dry-run mode is enabled.
func IsEnabled(ctx context.Context) bool {
	if v, ok := ctx.Value(dryRunKey).(bool); ok {
		return v
	}
	return false
}

// Preview represents a dry-run preview of an operation
type Preview struct {
	Operation   string            `json:"operation"`
	Resource    string            `json:"resource"`
	Description string            `json:"description,omitempty"`
	Method      string            `json:"method,omitempty"`
	URL         string            `json:"url,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	BodyBytes   int               `json:"body_bytes,omitempty"`
	Body        string            `json:"body,omitempty"`
	Details     map[string]any    `json:"details,omitempty"`
	Warnings    []string          `json:"warnings,omitempty"`
}

// redactedHeaders are masked in previews.
var redactedHeaders = map[string]bool{
	"Identifier": true,
}

// FromDescription renders the request a mutation would send. Multipart
// bodies are summarized by size since they carry binary image data.
func FromDescription(operation, resource string, d request.Description) (*Preview, error) {
	u, err := d.URL()
	if err != nil {
		return nil, err
	}
	p := &Preview{
		Operation: operation,
		Resource:  resource,
		Method:    string(d.Method),
		URL:       u.String(),
		Headers:   make(map[string]string, len(d.Header)),
		BodyBytes: len(d.Body),
	}
	for k := range d.Header {
		v := d.Header.Get(k)
		if redactedHeaders[http.CanonicalHeaderKey(k)] && v != "" {
			v = "********"
		}
		p.Headers[k] = v
	}
	if isTextual(d.Header.Get("Content-Type")) && utf8.Valid(d.Body) {
		body := redactJSONSecret(d.Body)
		if len(body) > maxBodyPreview {
			body = body[:maxBodyPreview] + "..."
			p.Warnings = append(p.Warnings, fmt.Sprintf("body truncated to %d bytes", maxBodyPreview))
		}
		p.Body = body
	}
	return p, nil
}

// redactJSONSecret masks a top-level "secret" field and pretty-prints JSON.
func redactJSONSecret(body []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return string(body)
	}
	if _, ok := obj["secret"]; ok {
		obj["secret"] = "********"
	}
	out, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return string(body)
	}
	return string(out)
}

func isTextual(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "application/json") || strings.HasPrefix(ct, "text/")
}

// Write outputs the preview to the writer
func (p *Preview) Write(w io.Writer) {
	_, _ = fmt.Fprintf(w, "\n[DRY-RUN] Would %s %s\n", p.Operation, p.Resource)
	_, _ = fmt.Fprintf(w, "───────────────────────────────────────\n")

	if p.Description != "" {
		_, _ = fmt.Fprintf(w, "%s\n\n", p.Description)
	}

	if p.Method != "" {
		_, _ = fmt.Fprintf(w, "  %s %s\n", p.Method, p.URL)
		for _, k := range sortedKeys(p.Headers) {
			_, _ = fmt.Fprintf(w, "  %s: %s\n", k, p.Headers[k])
		}
		if p.BodyBytes > 0 {
			_, _ = fmt.Fprintf(w, "  body: %d bytes\n", p.BodyBytes)
		}
		if p.Body != "" {
			_, _ = fmt.Fprintf(w, "\n%s\n", p.Body)
		}
		_, _ = fmt.Fprintln(w)
	}

	if len(p.Details) > 0 {
		for _, k := range sortedKeys(p.Details) {
			_, _ = fmt.Fprintf(w, "  %s: %v\n", k, p.Details[k])
		}
		_, _ = fmt.Fprintln(w)
	}

	if len(p.Warnings) > 0 {
		_, _ = fmt.Fprintln(w, "Warnings:")
		for _, warning := range p.Warnings {
			_, _ = fmt.Fprintf(w, "  ! %s\n", warning)
		}
		_, _ = fmt.Fprintln(w)
	}

	_, _ = fmt.Fprintf(w, "───────────────────────────────────────\n")
	_, _ = fmt.Fprintln(w, "No changes made (dry-run mode)")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

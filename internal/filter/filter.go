// Package filter runs jq expressions (via gojq) over command output.
package filter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"
)

// Query is a parsed expression that can be applied to many values,
// such as each line of a JSONL product stream.
type Query struct {
	expr string
	code *gojq.Code
}

// NormalizeExpression fixes shell-escaped operators in jq expressions.
// Zsh escapes ! to \! even in single quotes, breaking operators like !=.
func NormalizeExpression(expr string) string {
	return strings.ReplaceAll(strings.TrimSpace(expr), `\!`, `!`)
}

// Compile parses and compiles expression once.
func Compile(expression string) (*Query, error) {
	expression = NormalizeExpression(expression)
	parsed, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}
	return &Query{expr: expression, code: code}, nil
}

// String returns the normalized expression.
func (q *Query) String() string { return q.expr }

// Run applies the query to data. No result is nil, a single result is
// returned as is and several results as a slice.
func (q *Query) Run(data any) (any, error) {
	results, err := q.collect(data)
	if err != nil {
		// List output is wrapped as {"items": [...]}; let ".[]" style
		// expressions address the products directly.
		if items, ok := itemsFallback(data, q.expr, err); ok {
			if retry, retryErr := q.collect(items); retryErr == nil {
				return collapse(retry), nil
			}
		}
		return nil, err
	}
	return collapse(results), nil
}

func (q *Query) collect(data any) ([]any, error) {
	iter := q.code.Run(data)

	var results []any
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return nil, fmt.Errorf("filter error: %w", err)
		}
		results = append(results, v)
	}
	return results, nil
}

func collapse(results []any) any {
	switch len(results) {
	case 0:
		return nil
	case 1:
		return results[0]
	default:
		return results
	}
}

func itemsFallback(data any, expression string, runErr error) (any, bool) {
	if !looksLikeRootArrayQuery(expression) {
		return nil, false
	}
	if !strings.Contains(runErr.Error(), "expected an object but got: array") {
		return nil, false
	}
	m, ok := data.(map[string]any)
	if !ok {
		return nil, false
	}
	items, ok := m["items"].([]any)
	return items, ok
}

func looksLikeRootArrayQuery(expression string) bool {
	expr := strings.TrimSpace(expression)
	return strings.HasPrefix(expr, ".[]") || strings.HasPrefix(expr, "[.[]") || strings.HasPrefix(expr, "(.[]")
}

// Apply applies a jq expression to data. An empty expression returns data.
func Apply(data any, expression string) (any, error) {
	if strings.TrimSpace(expression) == "" {
		return data, nil
	}
	q, err := Compile(expression)
	if err != nil {
		return nil, err
	}
	return q.Run(data)
}

// ApplyFromJSON decodes jsonData and applies expression to it.
func ApplyFromJSON(jsonData []byte, expression string) (any, error) {
	var data any
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return Apply(data, expression)
}

// ApplyToJSON applies expression and re-encodes the result pretty-printed.
func ApplyToJSON(jsonData []byte, expression string) ([]byte, error) {
	if strings.TrimSpace(expression) == "" {
		return jsonData, nil
	}
	result, err := ApplyFromJSON(jsonData, expression)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(result, "", "  ")
}

package outfmt

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", Text, false},
		{"text", Text, false},
		{"json", JSON, false},
		{"jsonl", JSONL, false},
		{"ndjson", JSONL, false},
		{"yaml", Text, true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestModeContext(t *testing.T) {
	ctx := context.Background()
	if ModeFromContext(ctx) != Text || IsJSON(ctx) {
		t.Error("default mode should be text")
	}
	ctx = WithMode(ctx, JSONL)
	if !IsJSON(ctx) || !IsJSONL(ctx) {
		t.Error("JSONL should count as JSON output")
	}
	if !IsCompact(ctx) {
		t.Error("JSONL should always be compact")
	}
	if !IsCompact(WithCompact(context.Background(), true)) {
		t.Error("WithCompact(true) should be reported")
	}
	if JSONL.String() != "jsonl" || Text.String() != "text" {
		t.Error("unexpected String() values")
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, map[string]int{"id": 1}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "{\n  \"id\": 1\n}\n" {
		t.Errorf("WriteJSON() = %q", buf.String())
	}
}

func TestWriteJSONFiltered(t *testing.T) {
	type product struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	list := []product{{1, "pen"}, {2, "ink"}}

	var buf bytes.Buffer
	if err := WriteJSONFiltered(&buf, list, "", true); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != `{"items":[{"id":1,"name":"pen"},{"id":2,"name":"ink"}]}` {
		t.Errorf("slice should be wrapped in items, got %s", buf.String())
	}

	buf.Reset()
	if err := WriteJSONFiltered(&buf, list, ".items[1].name", true); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != `"ink"` {
		t.Errorf("filtered output = %s", buf.String())
	}

	if err := WriteJSONFiltered(&buf, list, "[[[", true); err == nil {
		t.Error("expected error for invalid query")
	}
}

func TestNormalizeJSONOutput_NilSlice(t *testing.T) {
	var empty []string
	data, err := json.Marshal(normalizeJSONOutput(empty))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"items":[]}` {
		t.Errorf("nil slice = %s", data)
	}
	if raw := json.RawMessage(`[1]`); string(normalizeJSONOutput(raw).(json.RawMessage)) != "[1]" {
		t.Error("raw JSON should pass through")
	}
}

func TestQueryContext(t *testing.T) {
	if GetQuery(context.Background()) != "" {
		t.Error("query should be empty by default")
	}
	if GetQuery(WithQuery(context.Background(), ".id")) != ".id" {
		t.Error("WithQuery should round-trip")
	}
}

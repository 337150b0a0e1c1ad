package outfmt

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriteTemplate(t *testing.T) {
	var buf bytes.Buffer
	data := map[string]any{"items": []any{map[string]any{"id": 1}, map[string]any{"id": 2}}}
	if err := WriteTemplate(&buf, data, `{{range .items}}{{.id}} {{end}}`); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "1 2 " {
		t.Errorf("WriteTemplate() = %q", buf.String())
	}
}

func TestWriteTemplate_Errors(t *testing.T) {
	var buf bytes.Buffer
	err := WriteTemplate(&buf, nil, "{{.name")
	if err == nil || !strings.Contains(err.Error(), "invalid template") {
		t.Errorf("expected parse error, got %v", err)
	}
	err = WriteTemplate(&buf, map[string]any{"price": "abc"}, `{{money .price "KRW"}}`)
	if err == nil || !strings.Contains(err.Error(), "template execution error") {
		t.Errorf("expected execution error, got %v", err)
	}
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		amount   any
		currency any
		want     string
	}{
		{"1500", "KRW", "1500 KRW"},
		{"1499.6", "krw", "1500 KRW"},
		{"3.5", "USD", "3.50 USD"},
		{12.25, nil, "12.25"},
	}
	for _, tt := range tests {
		got, err := FormatMoney(tt.amount, tt.currency)
		if err != nil {
			t.Fatalf("FormatMoney(%v, %v) error = %v", tt.amount, tt.currency, err)
		}
		if got != tt.want {
			t.Errorf("FormatMoney(%v, %v) = %q, want %q", tt.amount, tt.currency, got, tt.want)
		}
	}
}

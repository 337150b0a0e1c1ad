package outfmt

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/openmarket/openmarket-cli/internal/filter"
)

// Formatter handles output formatting for commands.
type Formatter struct {
	ctx       context.Context
	out       io.Writer
	errOut    io.Writer
	tabWriter *tabwriter.Writer

	stream *filter.Query
}

// NewFormatter creates a new Formatter
func NewFormatter(ctx context.Context, out, errOut io.Writer) *Formatter {
	return &Formatter{
		ctx:       ctx,
		out:       out,
		errOut:    errOut,
		tabWriter: tabwriter.NewWriter(out, 0, 4, 2, ' ', 0),
	}
}

// Output writes data as JSON, or through the --template when one is set.
// It does nothing in text mode; callers render tables themselves.
func (f *Formatter) Output(data any) error {
	if !IsJSON(f.ctx) {
		return nil
	}
	query := GetQuery(f.ctx)
	if tmpl := GetTemplate(f.ctx); tmpl != "" {
		filtered, err := ApplyQuery(data, query)
		if err != nil {
			return err
		}
		return WriteTemplate(f.out, filtered, tmpl)
	}
	return WriteJSONFiltered(f.out, data, query, IsCompact(f.ctx))
}

// Stream writes one JSONL record. The query is compiled on first use and
// applied to each record on its own; records it filters to null are skipped.
func (f *Formatter) Stream(item any) error {
	query := GetQuery(f.ctx)
	if query == "" {
		return WriteJSONMaybeCompact(f.out, item, true)
	}
	if f.stream == nil {
		q, err := filter.Compile(query)
		if err != nil {
			return err
		}
		f.stream = q
	}
	plain, err := toPlain(item)
	if err != nil {
		return err
	}
	result, err := f.stream.Run(plain)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	return WriteJSONMaybeCompact(f.out, result, true)
}

// StartTable writes table headers. Returns true if in text mode.
func (f *Formatter) StartTable(headers []string) bool {
	if IsJSON(f.ctx) {
		return false
	}
	f.Row(headers...)
	return true
}

// Row writes a single row to the table.
func (f *Formatter) Row(columns ...string) {
	for i, col := range columns {
		if i > 0 {
			_, _ = fmt.Fprint(f.tabWriter, "\t")
		}
		_, _ = fmt.Fprint(f.tabWriter, col)
	}
	_, _ = fmt.Fprintln(f.tabWriter)
}

// EndTable flushes the table output.
func (f *Formatter) EndTable() error {
	return f.tabWriter.Flush()
}

// Empty writes a message to stderr indicating no results.
func (f *Formatter) Empty(message string) {
	_, _ = fmt.Fprintln(f.errOut, message)
}

// Package output renders CLI results as text or JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"
)

// Format represents the output format.
type Format string

// Output format constants.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatAuto Format = "auto"
)

// ParseFormat parses a format string. Anything unrecognized is auto.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON
	case "text":
		return FormatText
	default:
		return FormatAuto
	}
}

// DetectFormat resolves auto to text on a terminal and JSON otherwise.
func DetectFormat(w io.Writer, explicit Format) Format {
	if explicit != FormatAuto && explicit != "" {
		return explicit
	}
	if f, ok := w.(*os.File); ok {
		if term.IsTerminal(int(f.Fd())) { //nolint:gosec // G115: Fd() fits in int on supported platforms
			return FormatText
		}
	}
	return FormatJSON
}

// Formatter writes results in one format.
type Formatter struct {
	format Format
	w      io.Writer
}

// NewFormatter returns a formatter writing to w. An auto format is resolved
// against w.
func NewFormatter(format Format, w io.Writer) *Formatter {
	return &Formatter{format: DetectFormat(w, format), w: w}
}

// Format returns the resolved output format.
func (f *Formatter) Format() Format { return f.format }

// Writer returns the output writer.
func (f *Formatter) Writer() io.Writer { return f.w }

// IsJSON reports whether the formatter writes JSON.
func (f *Formatter) IsJSON() bool { return f.format == FormatJSON }

// Emit writes v as indented JSON, or calls text to render it otherwise.
func (f *Formatter) Emit(v any, text func(w io.Writer) error) error {
	if f.IsJSON() {
		return WriteJSON(f.w, v)
	}
	return text(f.w)
}

// Success writes a status line, or {"status":"success",...} in JSON.
func (f *Formatter) Success(message string) error {
	if f.IsJSON() {
		return WriteJSON(f.w, map[string]string{"status": "success", "message": message})
	}
	_, err := fmt.Fprintln(f.w, message)
	return err
}

// Table writes rows under headers, aligned in columns. In JSON each row
// becomes an object keyed by lowercased header.
func (f *Formatter) Table(headers []string, rows [][]string) error {
	if f.IsJSON() {
		objs := make([]map[string]string, len(rows))
		for i, row := range rows {
			obj := make(map[string]string, len(headers))
			for j, h := range headers {
				if j < len(row) {
					obj[strings.ToLower(h)] = row[j]
				}
			}
			objs[i] = obj
		}
		return WriteJSON(f.w, objs)
	}

	tw := tabwriter.NewWriter(f.w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

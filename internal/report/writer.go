package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/JakeFAU/sitecrawler/internal/crawler"
)

// Writer renders a finished crawl report.
type Writer interface {
	Write(report *crawler.CrawlReport) error
}

// Supported output formats.
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// NewWriter returns the Writer for format.
func NewWriter(format string, out io.Writer) (Writer, error) {
	switch format {
	case "", FormatJSON:
		return NewJSONWriter(out), nil
	case FormatMarkdown, "md":
		return NewMarkdownWriter(out), nil
	default:
		return nil, fmt.Errorf("unsupported report format %q", format)
	}
}

// JSONWriter writes indented JSON.
type JSONWriter struct {
	out io.Writer
}

// NewJSONWriter creates a JSONWriter.
func NewJSONWriter(out io.Writer) *JSONWriter {
	return &JSONWriter{out: out}
}

// Write encodes report.
func (w *JSONWriter) Write(report *crawler.CrawlReport) error {
	return WriteJSON(w.out, report)
}

// WriteJSON encodes any operation result as indented JSON.
func WriteJSON(out io.Writer, result crawler.Result) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode %s result: %w", result.Operation(), err)
	}
	return nil
}

// Package render formats scan data for the terminal: finalized reports and
// scan listings through pluggable writers, and the live-scan view through the
// incremental Live renderer.
package render

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/scanwatch/scanwatch/internal/scan"
)

// Writer formats reports and scan listings in a specific output format.
type Writer interface {
	// Format returns the format name (e.g., "text", "json").
	Format() string

	// WriteReport writes the formatted report to w.
	WriteReport(ctx context.Context, report *scan.Report, w io.Writer) error

	// WriteScanList writes the formatted scan listing to w.
	WriteScanList(ctx context.Context, scans []scan.Scan, w io.Writer) error
}

// New creates a writer by format name ("text" or "json"). The format name is
// case-insensitive.
func New(format string) (Writer, error) {
	switch strings.ToLower(format) {
	case "text":
		return &TextWriter{}, nil
	case "json":
		return &JSONWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %q", format)
	}
}

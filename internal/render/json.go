package render

import (
	"context"
	"encoding/json"
	"io"

	"github.com/scanwatch/scanwatch/internal/scan"
)

// JSONWriter outputs structured JSON.
type JSONWriter struct {
	// Compact outputs single-line JSON when true (no indentation).
	Compact bool
}

// Format returns "json".
func (r *JSONWriter) Format() string {
	return "json"
}

// WriteReport writes the report as JSON to w.
func (r *JSONWriter) WriteReport(ctx context.Context, report *scan.Report, w io.Writer) error {
	return r.encode(ctx, report, w)
}

// WriteScanList writes the scan listing as JSON to w.
func (r *JSONWriter) WriteScanList(ctx context.Context, scans []scan.Scan, w io.Writer) error {
	if scans == nil {
		scans = []scan.Scan{}
	}
	return r.encode(ctx, scans, w)
}

func (r *JSONWriter) encode(ctx context.Context, v interface{}, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	if !r.Compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

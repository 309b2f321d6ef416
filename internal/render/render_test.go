package render

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/scanwatch/scanwatch/internal/scan"
)

func TestNew(t *testing.T) {
	tests := []struct {
		format  string
		want    string
		wantErr bool
	}{
		{"text", "text", false},
		{"json", "json", false},
		{"JSON", "json", false},
		{"yaml", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		w, err := New(tt.format)
		if tt.wantErr {
			if err == nil {
				t.Errorf("New(%q) succeeded, want error", tt.format)
			}
			continue
		}
		if err != nil {
			t.Errorf("New(%q): %v", tt.format, err)
			continue
		}
		if w.Format() != tt.want {
			t.Errorf("New(%q).Format() = %q, want %q", tt.format, w.Format(), tt.want)
		}
	}
}

func sampleReport() *scan.Report {
	return &scan.Report{
		ID:        "r-1",
		ScanID:    "scan-1",
		CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		AIAnalysis: &scan.AIAnalysis{
			ExecutiveSummary: "The site is broadly healthy with a few weak spots.",
			OverallScore:     88,
			ScoresByCategory: map[string]int{
				"ssl":         92,
				"performance": 71,
			},
			CriticalIssues: []scan.AnalysisItem{
				{Title: "Expired intermediate certificate", Severity: "high",
					Description: "The chain served by the origin includes an intermediate that expired last month."},
			},
			Recommendations: []scan.AnalysisItem{
				{Title: "Enable HTTP/2"},
			},
			PerformanceAnalysis: "Response times degrade sharply above 40 concurrent users.",
		},
	}
}

func TestTextWriter_WriteReport(t *testing.T) {
	var buf strings.Builder
	w := &TextWriter{}
	if err := w.WriteReport(context.Background(), sampleReport(), &buf); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"Scan:    scan-1",
		"Overall score: 88/100",
		"ssl",
		"92/100",
		"Critical issues (1):",
		"[HIGH] Expired intermediate certificate",
		"Recommendations (1):",
		"Enable HTTP/2",
		"Performance:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report output missing %q\n%s", want, out)
		}
	}

	// Category scores come out in pipeline order, ssl before performance.
	if strings.Index(out, "ssl") > strings.Index(out, "performance  71") {
		t.Error("category scores not in pipeline order")
	}
}

func TestTextWriter_WriteReportWithoutAnalysis(t *testing.T) {
	var buf strings.Builder
	w := &TextWriter{}
	report := &scan.Report{ID: "r-1", ScanID: "scan-1", CreatedAt: time.Now()}
	if err := w.WriteReport(context.Background(), report, &buf); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	if !strings.Contains(buf.String(), "No analysis available") {
		t.Errorf("missing empty-analysis notice:\n%s", buf.String())
	}
}

func TestTextWriter_WriteScanList(t *testing.T) {
	score := 88
	scans := []scan.Scan{
		{ID: "scan-2", URL: "https://b.example", Status: scan.StatusRunning,
			CreatedAt: time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC)},
		{ID: "scan-1", URL: "https://a.example", Status: scan.StatusCompleted, OverallScore: &score,
			CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
	}

	var buf strings.Builder
	w := &TextWriter{}
	if err := w.WriteScanList(context.Background(), scans, &buf); err != nil {
		t.Fatalf("WriteScanList: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "ID") || !strings.Contains(out, "STATUS") {
		t.Errorf("missing header:\n%s", out)
	}
	if !strings.Contains(out, "scan-1") || !strings.Contains(out, "88") {
		t.Errorf("missing completed row with score:\n%s", out)
	}
	if !strings.Contains(out, "running") {
		t.Errorf("missing running status:\n%s", out)
	}
}

func TestTextWriter_WriteScanListEmpty(t *testing.T) {
	var buf strings.Builder
	w := &TextWriter{}
	if err := w.WriteScanList(context.Background(), nil, &buf); err != nil {
		t.Fatalf("WriteScanList: %v", err)
	}
	if !strings.Contains(buf.String(), "No scans found.") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestJSONWriter_WriteReport(t *testing.T) {
	var buf strings.Builder
	w := &JSONWriter{}
	if err := w.WriteReport(context.Background(), sampleReport(), &buf); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}

	var decoded scan.Report
	if err := json.Unmarshal([]byte(buf.String()), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.ScanID != "scan-1" || decoded.AIAnalysis.OverallScore != 88 {
		t.Errorf("decoded report = %+v", decoded)
	}
}

func TestJSONWriter_EmptyListIsArray(t *testing.T) {
	var buf strings.Builder
	w := &JSONWriter{Compact: true}
	if err := w.WriteScanList(context.Background(), nil, &buf); err != nil {
		t.Fatalf("WriteScanList: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[]" {
		t.Errorf("output = %q, want []", got)
	}
}

func TestWrap(t *testing.T) {
	got := wrap("one two three four five six seven", 12, "  ")
	for _, line := range strings.Split(got, "\n") {
		if !strings.HasPrefix(line, "  ") {
			t.Errorf("line %q missing indent", line)
		}
		if len(line) > 14+8 { // indent + width with slack for a long word
			t.Errorf("line %q too long", line)
		}
	}
	if strings.Join(strings.Fields(got), " ") != "one two three four five six seven" {
		t.Errorf("wrap lost words: %q", got)
	}
}

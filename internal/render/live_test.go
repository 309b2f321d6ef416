package render

import (
	"strings"
	"testing"

	"github.com/scanwatch/scanwatch/internal/scan"
	"github.com/scanwatch/scanwatch/internal/state"
)

func TestLive_LogMarkersAndTimestamps(t *testing.T) {
	tests := []struct {
		name  string
		entry scan.LogEntry
		want  string
	}{
		{
			name:  "info with rfc3339 timestamp",
			entry: scan.LogEntry{Timestamp: "2025-03-01T12:34:56Z", Phase: scan.PhaseDNS, Level: scan.LevelInfo, Message: "resolving"},
			want:  "12:34:56 [*] [dns] resolving\n",
		},
		{
			name:  "success",
			entry: scan.LogEntry{Timestamp: "2025-03-01T12:34:56Z", Phase: scan.PhaseSSL, Level: scan.LevelSuccess, Message: "handshake ok"},
			want:  "12:34:56 [+] [ssl] handshake ok\n",
		},
		{
			name:  "warning",
			entry: scan.LogEntry{Timestamp: "2025-03-01T12:34:56Z", Phase: scan.PhaseSEO, Level: scan.LevelWarning, Message: "missing sitemap"},
			want:  "12:34:56 [!] [seo] missing sitemap\n",
		},
		{
			name:  "error",
			entry: scan.LogEntry{Timestamp: "2025-03-01T12:34:56Z", Phase: scan.PhaseDAST, Level: scan.LevelError, Message: "probe failed"},
			want:  "12:34:56 [x] [dast] probe failed\n",
		},
		{
			name:  "unparseable timestamp kept verbatim",
			entry: scan.LogEntry{Timestamp: "just now", Phase: scan.PhaseDNS, Level: scan.LevelInfo, Message: "hi"},
			want:  "just now [*] [dns] hi\n",
		},
		{
			name:  "unknown level falls back to info marker",
			entry: scan.LogEntry{Timestamp: "just now", Phase: scan.PhaseDNS, Level: scan.LogLevel("fatal"), Message: "hi"},
			want:  "just now [*] [dns] hi\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf strings.Builder
			NewLive(&buf).Log(tt.entry)
			if buf.String() != tt.want {
				t.Errorf("Log output = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestLive_PhaseDedupAndPosition(t *testing.T) {
	var buf strings.Builder
	l := NewLive(&buf)

	l.Phase(scan.PhaseSSL)
	l.Phase(scan.PhaseSSL)
	l.Phase(scan.PhaseDAST)

	out := buf.String()
	if got := strings.Count(out, "phase: ssl"); got != 1 {
		t.Errorf("ssl header printed %d times, want 1", got)
	}
	if !strings.Contains(out, "ssl [2/5]") {
		t.Errorf("missing ssl pipeline position:\n%s", out)
	}
	if !strings.Contains(out, "dast [4/5]") {
		t.Errorf("missing dast pipeline position:\n%s", out)
	}
}

func TestLive_MetricsGatedByFlag(t *testing.T) {
	var buf strings.Builder
	l := NewLive(&buf)

	l.Metrics(scan.LiveMetrics{AvgResponseTime: 120})
	if buf.Len() != 0 {
		t.Errorf("metrics printed with ShowMetrics off: %q", buf.String())
	}

	l.ShowMetrics = true
	l.Metrics(scan.LiveMetrics{AvgResponseTime: 120, Throughput: 40.5, ErrorRate: 0.015, ActiveUsers: 7})
	out := buf.String()
	for _, want := range []string{"120ms", "40.5 req/s", "1.5%", "7 users"} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics line missing %q: %q", want, out)
		}
	}
}

func TestLive_CompleteSummary(t *testing.T) {
	score := 88
	snap := state.Snapshot{
		PhaseResults: map[scan.Phase]scan.PhaseResult{
			scan.PhaseSSL: {Score: 92, Grade: "A"},
			scan.PhaseSEO: {Score: 70, Grade: "C"},
		},
		OverallScore: &score,
	}
	history := []scan.LiveMetrics{
		{AvgResponseTime: 100},
		{AvgResponseTime: 300},
		{AvgResponseTime: 200},
	}

	var buf strings.Builder
	NewLive(&buf).Complete(snap, history)
	out := buf.String()

	for _, want := range []string{"Scan complete.", "ssl", "92/100", "A", "Overall score: 88/100", "Response time: "} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "ssl") > strings.Index(out, "seo") {
		t.Error("phase results not in pipeline order")
	}
}

func TestLive_CompleteWithoutHistoryOmitsSparkline(t *testing.T) {
	var buf strings.Builder
	NewLive(&buf).Complete(state.Snapshot{}, nil)
	if strings.Contains(buf.String(), "Response time:") {
		t.Errorf("sparkline printed with empty history:\n%s", buf.String())
	}
}

func TestSparkline(t *testing.T) {
	got := sparkline([]scan.LiveMetrics{
		{AvgResponseTime: 100},
		{AvgResponseTime: 500},
		{AvgResponseTime: 300},
	})
	runes := []rune(got)
	if len(runes) != 3 {
		t.Fatalf("sparkline length = %d, want 3", len(runes))
	}
	if runes[0] != '▁' {
		t.Errorf("min rune = %q, want lowest block", runes[0])
	}
	if runes[1] != '█' {
		t.Errorf("max rune = %q, want highest block", runes[1])
	}

	// A flat series renders as all-low without dividing by zero.
	flat := sparkline([]scan.LiveMetrics{{AvgResponseTime: 42}, {AvgResponseTime: 42}})
	if flat != "▁▁" {
		t.Errorf("flat sparkline = %q, want ▁▁", flat)
	}
}

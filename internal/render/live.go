package render

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/scanwatch/scanwatch/internal/scan"
	"github.com/scanwatch/scanwatch/internal/state"
)

// Level markers for live log lines, in the house style.
var levelMarkers = map[scan.LogLevel]string{
	scan.LevelInfo:    "[*]",
	scan.LevelSuccess: "[+]",
	scan.LevelWarning: "[!]",
	scan.LevelError:   "[x]",
}

// Live renders the in-progress scan view incrementally: a banner, phase
// headers, log lines, periodic metrics lines, and connection notices. It only
// appends; it never repaints, so it degrades cleanly when output is piped.
type Live struct {
	mu sync.Mutex
	w  io.Writer

	// ShowMetrics prints a metrics line for every progress event instead of
	// only on phase boundaries.
	ShowMetrics bool

	lastPhase scan.Phase
}

// NewLive creates a live renderer writing to w.
func NewLive(w io.Writer) *Live {
	return &Live{w: w}
}

// Banner prints the header for a live watch session.
func (l *Live) Banner(url, scanID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bar := strings.Repeat(doubleLine, lineWidth)
	fmt.Fprintln(l.w, bar)
	fmt.Fprintf(l.w, "scanwatch - live scan of %s\n", url)
	fmt.Fprintf(l.w, "scan id: %s\n", scanID)
	fmt.Fprintln(l.w, bar)
}

// Phase prints a phase header when the phase actually changes.
func (l *Live) Phase(p scan.Phase) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p == l.lastPhase {
		return
	}
	l.lastPhase = p

	position := ""
	for i, known := range scan.Phases() {
		if known == p {
			position = fmt.Sprintf(" [%d/%d]", i+1, len(scan.Phases()))
			break
		}
	}
	fmt.Fprintf(l.w, "\n--- phase: %s%s ---\n", p, position)
}

// Log prints one live log entry. The server timestamp is trusted verbatim;
// when it parses as RFC 3339 only the clock time is shown.
func (l *Live) Log(e scan.LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	marker, ok := levelMarkers[e.Level]
	if !ok {
		marker = "[*]"
	}
	ts := e.Timestamp
	if t, err := time.Parse(time.RFC3339, e.Timestamp); err == nil {
		ts = t.Format("15:04:05")
	}
	fmt.Fprintf(l.w, "%s %s [%s] %s\n", ts, marker, e.Phase, e.Message)
}

// Metrics prints the latest live metrics snapshot.
func (l *Live) Metrics(m scan.LiveMetrics) {
	if !l.ShowMetrics {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "    resp %.0fms | %.1f req/s | err %.1f%% | %d users\n",
		m.AvgResponseTime, m.Throughput, m.ErrorRate*100, m.ActiveUsers)
}

// ModuleComplete prints the scored result of a finished phase.
func (l *Live) ModuleComplete(p scan.Phase, res scan.PhaseResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "[+] %s complete: %d/100 (grade %s)\n", p, res.Score, res.Grade)
}

// StreamError prints a server-reported stream error.
func (l *Live) StreamError(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "[x] server error: %s\n", msg)
}

// Reconnecting prints the non-fatal reconnection notice. Already-rendered
// output stays on screen.
func (l *Live) Reconnecting() {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, "[!] connection lost, reconnecting...")
}

// ConnectionLost prints the terminal connection-failure notice.
func (l *Live) ConnectionLost() {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, "[!] live connection lost; no further updates will arrive")
}

// Complete prints the completion summary from the session snapshot, including
// a response-time strip from the metrics history when available.
func (l *Live) Complete(snap state.Snapshot, history []scan.LiveMetrics) {
	l.mu.Lock()
	defer l.mu.Unlock()

	bar := strings.Repeat(singleLine, lineWidth)
	fmt.Fprintln(l.w, bar)
	fmt.Fprintln(l.w, "Scan complete.")
	for _, phase := range scan.Phases() {
		if res, ok := snap.PhaseResults[phase]; ok {
			fmt.Fprintf(l.w, "  %-12s %3d/100  %s\n", phase, res.Score, res.Grade)
		}
	}
	if snap.OverallScore != nil {
		fmt.Fprintf(l.w, "Overall score: %d/100\n", *snap.OverallScore)
	}
	if len(history) > 0 {
		fmt.Fprintf(l.w, "Response time: %s\n", sparkline(history))
	}
	fmt.Fprintln(l.w, bar)
}

// sparkRunes maps normalized values to block characters, lowest to highest.
var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// sparkline renders avg response time history as a block strip.
func sparkline(history []scan.LiveMetrics) string {
	min, max := history[0].AvgResponseTime, history[0].AvgResponseTime
	for _, m := range history[1:] {
		if m.AvgResponseTime < min {
			min = m.AvgResponseTime
		}
		if m.AvgResponseTime > max {
			max = m.AvgResponseTime
		}
	}

	var b strings.Builder
	for _, m := range history {
		idx := 0
		if max > min {
			idx = int((m.AvgResponseTime - min) / (max - min) * float64(len(sparkRunes)-1))
		}
		b.WriteRune(sparkRunes[idx])
	}
	return b.String()
}

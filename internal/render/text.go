package render

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/scanwatch/scanwatch/internal/scan"
)

const (
	doubleLine = "\u2550" // ═
	singleLine = "\u2500" // ─
	lineWidth  = 60
)

// TextWriter outputs plain terminal text.
type TextWriter struct{}

// Format returns "text".
func (r *TextWriter) Format() string {
	return "text"
}

// WriteReport writes a formatted report to w.
func (r *TextWriter) WriteReport(ctx context.Context, report *scan.Report, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b := &strings.Builder{}
	doubleBar := strings.Repeat(doubleLine, lineWidth)
	singleBar := strings.Repeat(singleLine, lineWidth)

	fmt.Fprintln(b, doubleBar)
	fmt.Fprintln(b, "scanwatch - Scan Report")
	fmt.Fprintln(b, doubleBar)
	fmt.Fprintf(b, "Scan:    %s\n", report.ScanID)
	fmt.Fprintf(b, "Created: %s\n", report.CreatedAt.Format(time.RFC3339))
	if report.EmailSent {
		fmt.Fprintln(b, "Emailed: yes")
	}

	if a := report.AIAnalysis; a != nil {
		fmt.Fprintln(b, singleBar)
		fmt.Fprintf(b, "Overall score: %d/100\n", a.OverallScore)
		if len(a.ScoresByCategory) > 0 {
			for _, phase := range scan.Phases() {
				if score, ok := a.ScoresByCategory[string(phase)]; ok {
					fmt.Fprintf(b, "  %-12s %d/100\n", phase, score)
				}
			}
		}

		if a.ExecutiveSummary != "" {
			fmt.Fprintln(b, singleBar)
			fmt.Fprintln(b, "Summary:")
			fmt.Fprintln(b, wrap(a.ExecutiveSummary, lineWidth-2, "  "))
		}

		writeItems(b, singleBar, "Critical issues", a.CriticalIssues)
		writeItems(b, singleBar, "Warnings", a.Warnings)
		writeItems(b, singleBar, "Passed checks", a.PassedChecks)
		writeItems(b, singleBar, "Recommendations", a.Recommendations)

		writeAnalysis(b, singleBar, "Performance", a.PerformanceAnalysis)
		writeAnalysis(b, singleBar, "Security", a.SecurityAnalysis)
		writeAnalysis(b, singleBar, "SEO", a.SEOAnalysis)
	} else {
		fmt.Fprintln(b, singleBar)
		fmt.Fprintln(b, "No analysis available for this report.")
	}

	fmt.Fprintln(b, doubleBar)

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteScanList writes a formatted scan listing to w.
func (r *TextWriter) WriteScanList(ctx context.Context, scans []scan.Scan, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b := &strings.Builder{}
	if len(scans) == 0 {
		fmt.Fprintln(b, "No scans found.")
		_, err := io.WriteString(w, b.String())
		return err
	}

	fmt.Fprintf(b, "%-36s  %-9s  %-5s  %-20s  %s\n", "ID", "STATUS", "SCORE", "CREATED", "URL")
	for _, sc := range scans {
		score := "-"
		if sc.OverallScore != nil {
			score = fmt.Sprintf("%d", *sc.OverallScore)
		}
		fmt.Fprintf(b, "%-36s  %-9s  %-5s  %-20s  %s\n",
			sc.ID, sc.Status, score, sc.CreatedAt.Format("2006-01-02 15:04:05"), sc.URL)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// writeItems writes a titled section of analysis items, skipping empty
// sections.
func writeItems(b *strings.Builder, bar, title string, items []scan.AnalysisItem) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintln(b, bar)
	fmt.Fprintf(b, "%s (%d):\n", title, len(items))
	for _, item := range items {
		if item.Severity != "" {
			fmt.Fprintf(b, "  - [%s] %s\n", strings.ToUpper(item.Severity), item.Title)
		} else {
			fmt.Fprintf(b, "  - %s\n", item.Title)
		}
		if item.Description != "" {
			fmt.Fprintln(b, wrap(item.Description, lineWidth-4, "      "))
		}
	}
}

// writeAnalysis writes a titled free-text analysis section, skipping empty
// ones.
func writeAnalysis(b *strings.Builder, bar, title, text string) {
	if text == "" {
		return
	}
	fmt.Fprintln(b, bar)
	fmt.Fprintf(b, "%s:\n", title)
	fmt.Fprintln(b, wrap(text, lineWidth-2, "  "))
}

// wrap folds text to the given width with each line prefixed by indent.
func wrap(text string, width int, indent string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return indent
	}

	var lines []string
	line := indent + words[0]
	for _, word := range words[1:] {
		if len(line)+1+len(word) > width+len(indent) {
			lines = append(lines, line)
			line = indent + word
			continue
		}
		line += " " + word
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}

// Package scan defines the domain types shared by the REST client, the live
// event stream, and the renderers. The client treats scan phases as an opaque
// ordered enumeration; their meaning lives entirely server-side.
package scan

import "time"

// Phase is one stage of the backend scan pipeline.
type Phase string

const (
	PhasePending     Phase = "pending"
	PhaseDNS         Phase = "dns"
	PhaseSSL         Phase = "ssl"
	PhasePerformance Phase = "performance"
	PhaseDAST        Phase = "dast"
	PhaseSEO         Phase = "seo"
	PhaseCompleted   Phase = "completed"
)

// phaseOrder is the fixed progression a scan moves through, sentinels included.
var phaseOrder = [...]Phase{
	PhasePending,
	PhaseDNS,
	PhaseSSL,
	PhasePerformance,
	PhaseDAST,
	PhaseSEO,
	PhaseCompleted,
}

// Phases returns the five scanning phases in pipeline order, without the
// pending/completed sentinels.
func Phases() []Phase {
	return []Phase{PhaseDNS, PhaseSSL, PhasePerformance, PhaseDAST, PhaseSEO}
}

// Index returns the position of p in the fixed phase order, or -1 if p is not
// a known phase token.
func (p Phase) Index() int {
	for i, known := range phaseOrder {
		if p == known {
			return i
		}
	}
	return -1
}

// Known reports whether p is one of the fixed phase tokens.
func (p Phase) Known() bool {
	return p.Index() >= 0
}

// Status is the lifecycle state of a scan as reported by the REST API.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is final (no further progress expected).
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Scan is a scan record as returned by the REST API.
type Scan struct {
	ID              string     `json:"id"`
	URL             string     `json:"url"`
	Status          Status     `json:"status"`
	CurrentPhase    Phase      `json:"current_phase,omitempty"`
	OverallScore    *int       `json:"overall_score,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DurationSeconds *int       `json:"duration_seconds,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// LogLevel classifies a live log entry.
type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelSuccess LogLevel = "success"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
)

// Valid reports whether l is one of the defined log levels.
func (l LogLevel) Valid() bool {
	switch l {
	case LevelInfo, LevelSuccess, LevelWarning, LevelError:
		return true
	}
	return false
}

// LogEntry is a single line of live scan output. It is a value type with no
// identity beyond its position in the log sequence; the timestamp is kept as
// the server-supplied ISO-8601 string and trusted verbatim.
type LogEntry struct {
	Timestamp string   `json:"timestamp"`
	Phase     Phase    `json:"phase"`
	Level     LogLevel `json:"level"`
	Message   string   `json:"message"`
}

// LiveMetrics is a point-in-time snapshot of the performance probe. Each
// update fully replaces the previous one; it is not a delta.
type LiveMetrics struct {
	AvgResponseTime float64 `json:"avg_response_time"`
	Throughput      float64 `json:"throughput"`
	ErrorRate       float64 `json:"error_rate"`
	ActiveUsers     int     `json:"active_users"`
}

// PhaseResult is the scored outcome of one completed phase.
type PhaseResult struct {
	Score int    `json:"score"`
	Grade string `json:"grade"`
}

// Report is the finalized analysis document produced after all phases
// complete.
type Report struct {
	ID          string      `json:"id"`
	ScanID      string      `json:"scan_id"`
	AIAnalysis  *AIAnalysis `json:"ai_analysis,omitempty"`
	PDFPath     string      `json:"pdf_path,omitempty"`
	EmailSent   bool        `json:"email_sent"`
	EmailSentAt *time.Time  `json:"email_sent_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// AIAnalysis is the structured AI-generated analysis embedded in a report.
type AIAnalysis struct {
	ExecutiveSummary    string         `json:"executive_summary"`
	OverallScore        int            `json:"overall_score"`
	ScoresByCategory    map[string]int `json:"scores_by_category"`
	CriticalIssues      []AnalysisItem `json:"critical_issues"`
	Warnings            []AnalysisItem `json:"warnings"`
	PassedChecks        []AnalysisItem `json:"passed_checks"`
	Recommendations     []AnalysisItem `json:"recommendations"`
	PerformanceAnalysis string         `json:"performance_analysis"`
	SecurityAnalysis    string         `json:"security_analysis"`
	SEOAnalysis         string         `json:"seo_analysis"`
}

// AnalysisItem is one finding or recommendation inside an AI analysis.
type AnalysisItem struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Severity    string `json:"severity,omitempty"`
	Category    string `json:"category,omitempty"`
}

// Package state holds the client-side projection of a single live scan: the
// authoritative session store fed by the event stream, the bounded metrics
// history derived from it, and the reconciliation policy that arbitrates
// between the stream projection and the REST snapshot.
package state

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/scanwatch/scanwatch/internal/scan"
)

// Session is the single source of truth for one scan's live state. It is an
// explicit, test-constructible container: consumers receive it by reference,
// there is no package-level instance. The transport's read loop runs on its
// own goroutine, so all access is mutex-guarded.
//
// Every transition is total: it never panics and is applicable regardless of
// current state. The store trusts the server; the only shaping it applies is
// the backward-phase guard on SetPhase.
type Session struct {
	mu sync.RWMutex

	scanID        string
	phase         scan.Phase
	logs          []scan.LogEntry
	latestMetrics *scan.LiveMetrics
	phaseResults  map[scan.Phase]scan.PhaseResult
	overallScore  *int
	complete      bool
	reportReady   bool

	changed chan struct{}
	log     *logrus.Logger
}

// Snapshot is an immutable copy of the session state for readers.
type Snapshot struct {
	ScanID        string
	Phase         scan.Phase
	Logs          []scan.LogEntry
	LatestMetrics *scan.LiveMetrics
	PhaseResults  map[scan.Phase]scan.PhaseResult
	OverallScore  *int
	Complete      bool
	ReportReady   bool
}

// NewSession creates a session for the given scan id. The id is immutable for
// the session's lifetime; a different scan requires a new session.
func NewSession(scanID string, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Session{
		scanID:       scanID,
		phase:        scan.PhasePending,
		phaseResults: make(map[scan.Phase]scan.PhaseResult),
		changed:      make(chan struct{}, 1),
		log:          logger,
	}
}

// ScanID returns the immutable scan identifier.
func (s *Session) ScanID() string {
	return s.scanID
}

// Changes returns a coalescing notification channel: it receives at least one
// value after any state transition. Multiple transitions between reads fold
// into a single notification.
func (s *Session) Changes() <-chan struct{} {
	return s.changed
}

func (s *Session) notify() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// AddLog appends an entry to the log sequence. Entries are trusted verbatim:
// no dedup, no reordering; position is receipt order.
func (s *Session) AddLog(entry scan.LogEntry) {
	s.mu.Lock()
	s.logs = append(s.logs, entry)
	s.mu.Unlock()
	s.notify()
}

// UpdateMetrics replaces the latest metrics snapshot. Last write wins.
func (s *Session) UpdateMetrics(m scan.LiveMetrics) {
	s.mu.Lock()
	s.latestMetrics = &m
	s.mu.Unlock()
	s.notify()
}

// SetPhase moves the session to a new phase. Forward and repeated transitions
// through the fixed phase order apply unconditionally, as do phases the
// client does not recognize. A backward transition between two known phases
// is a protocol anomaly: it is logged and ignored rather than applied.
func (s *Session) SetPhase(p scan.Phase) {
	s.mu.Lock()
	if p.Known() && s.phase.Known() && p.Index() < s.phase.Index() {
		s.log.WithFields(logrus.Fields{
			"scan_id": s.scanID,
			"from":    s.phase,
			"to":      p,
		}).Warn("ignoring backward phase transition")
		s.mu.Unlock()
		return
	}
	s.phase = p
	s.mu.Unlock()
	s.notify()
}

// CompleteModule records the scored result of one phase. A repeated
// completion for the same phase overwrites the previous result; the server is
// not expected to send one, but there is no dedup key to guard with.
func (s *Session) CompleteModule(p scan.Phase, score int, grade string) {
	s.mu.Lock()
	s.phaseResults[p] = scan.PhaseResult{Score: score, Grade: grade}
	s.mu.Unlock()
	s.notify()
}

// CompleteScan sets the overall score and marks the session complete. The
// completion flag is monotonic; repeated calls keep it true and apply
// last-write-wins to the score.
func (s *Session) CompleteScan(score int) {
	s.mu.Lock()
	s.overallScore = &score
	s.complete = true
	s.mu.Unlock()
	s.notify()
}

// SetReportReady marks the final report as persisted and fetchable.
// Monotonic: never reverts until Reset.
func (s *Session) SetReportReady() {
	s.mu.Lock()
	s.reportReady = true
	s.mu.Unlock()
	s.notify()
}

// Reset restores every field to its initial value. The scan id is retained;
// attaching to a different scan requires a new session.
func (s *Session) Reset() {
	s.mu.Lock()
	s.phase = scan.PhasePending
	s.logs = nil
	s.latestMetrics = nil
	s.phaseResults = make(map[scan.Phase]scan.PhaseResult)
	s.overallScore = nil
	s.complete = false
	s.reportReady = false
	s.mu.Unlock()
	s.notify()
}

// Snapshot returns a consistent copy of the current state. The returned
// slices and maps are owned by the caller.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		ScanID:      s.scanID,
		Phase:       s.phase,
		Complete:    s.complete,
		ReportReady: s.reportReady,
	}
	if len(s.logs) > 0 {
		snap.Logs = make([]scan.LogEntry, len(s.logs))
		copy(snap.Logs, s.logs)
	}
	if s.latestMetrics != nil {
		m := *s.latestMetrics
		snap.LatestMetrics = &m
	}
	snap.PhaseResults = make(map[scan.Phase]scan.PhaseResult, len(s.phaseResults))
	for p, r := range s.phaseResults {
		snap.PhaseResults[p] = r
	}
	if s.overallScore != nil {
		v := *s.overallScore
		snap.OverallScore = &v
	}
	return snap
}

package state

import (
	"sync"

	"github.com/scanwatch/scanwatch/internal/scan"
)

// View is what the live-scan surface should display at a point in time.
type View int

const (
	// ViewLoading: the initial REST snapshot is still in flight.
	ViewLoading View = iota

	// ViewScanning: the scan is in progress; render live output.
	ViewScanning

	// ViewComplete: the scan finished (per stream or REST) but the report is
	// not yet ready; render the completion summary.
	ViewComplete

	// ViewNavigated: the report is ready; the live surface's responsibility
	// ends and the report view takes over.
	ViewNavigated
)

// String returns the view name.
func (v View) String() string {
	names := [...]string{"loading", "scanning", "complete", "navigated"}
	if int(v) < len(names) {
		return names[v]
	}
	return "unknown"
}

// Reconciler merges the two independently-arriving sources of truth about a
// scan: the stream-derived session flags and the REST status snapshot. The
// two race freely; this policy is the only ordering arbitration that exists.
//
// Rules: a terminal REST status wins for initial render even if the stream
// has not confirmed completion, and report readiness triggers a one-way,
// idempotent transition to ViewNavigated.
type Reconciler struct {
	mu         sync.Mutex
	restStatus scan.Status
	restKnown  bool
	navigated  bool
}

// NewReconciler creates a reconciler with no REST snapshot observed yet.
func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// ObserveRest records the latest REST-reported status.
func (r *Reconciler) ObserveRest(status scan.Status) {
	r.mu.Lock()
	r.restStatus = status
	r.restKnown = true
	r.mu.Unlock()
}

// Resolve decides the current view from the session snapshot and the last
// observed REST status. Once it has returned ViewNavigated it always returns
// ViewNavigated: repeated report-ready firings are no-ops.
func (r *Reconciler) Resolve(snap Snapshot) View {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.navigated {
		return ViewNavigated
	}
	if snap.ReportReady {
		r.navigated = true
		return ViewNavigated
	}
	if snap.Complete || (r.restKnown && r.restStatus.Terminal()) {
		return ViewComplete
	}
	if !r.restKnown {
		return ViewLoading
	}
	return ViewScanning
}

// Scanning derives the in-progress flag: the stream has not completed and the
// REST status is not terminal. It gates the reconnecting indicator and the
// terminal cursor animation.
func (r *Reconciler) Scanning(snap Snapshot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !snap.Complete && !(r.restKnown && r.restStatus.Terminal())
}

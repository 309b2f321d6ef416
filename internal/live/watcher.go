// Package live drives the live-scan view: it fetches the REST snapshot,
// attaches the event stream, projects events into the session store, and
// applies the reconciliation policy to decide when the scan is finished and
// when to hand over to the report view.
package live

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scanwatch/scanwatch/internal/api"
	"github.com/scanwatch/scanwatch/internal/render"
	"github.com/scanwatch/scanwatch/internal/scan"
	"github.com/scanwatch/scanwatch/internal/state"
	"github.com/scanwatch/scanwatch/internal/stream"
)

// defaultPollInterval is how often the REST status is re-checked while the
// scan is in progress. The stream is the primary source; the poll only covers
// the window where stream events were lost.
const defaultPollInterval = 5 * time.Second

// Options configures a Watcher.
type Options struct {
	API       *api.Client
	Transport *stream.Transport
	Renderer  *render.Live
	Logger    *logrus.Logger

	// PollInterval overrides the REST re-check cadence (tests).
	PollInterval time.Duration
}

// Watcher attaches to one scan at a time. A Watcher is not reusable across
// concurrent Run calls.
type Watcher struct {
	api       *api.Client
	transport *stream.Transport
	renderer  *render.Live
	log       *logrus.Logger
	poll      time.Duration
}

// New creates a Watcher.
func New(opts Options) *Watcher {
	w := &Watcher{
		api:       opts.API,
		transport: opts.Transport,
		renderer:  opts.Renderer,
		log:       opts.Logger,
		poll:      opts.PollInterval,
	}
	if w.log == nil {
		w.log = logrus.StandardLogger()
	}
	if w.poll <= 0 {
		w.poll = defaultPollInterval
	}
	return w
}

// Run watches the scan until its report is ready, the scan ends without a
// report, or ctx is cancelled. It returns the fetched report when one exists,
// or (nil, nil) when the scan finished without a fetchable report (failed
// scans, or a lost stream after completion).
func (w *Watcher) Run(ctx context.Context, scanID string) (*scan.Report, error) {
	sc, err := w.api.GetScan(ctx, scanID)
	if err != nil {
		return nil, fmt.Errorf("live: load scan %s: %w", scanID, err)
	}

	session := state.NewSession(scanID, w.log)
	history := state.NewMetricsHistory(0)
	rec := state.NewReconciler()
	rec.ObserveRest(sc.Status)

	w.renderer.Banner(sc.URL, scanID)

	// A scan that is already terminal never speaks on the stream again: skip
	// the transport and go straight for the report.
	if sc.Status.Terminal() {
		return w.finishWithoutStream(ctx, sc)
	}

	down := make(chan struct{})
	disconnect := w.transport.Connect(scanID, stream.Hooks{
		OnEvent: func(ev stream.Event) {
			w.apply(session, history, ev)
		},
		OnState: func(s stream.ConnState) {
			if s == stream.StateBackoff && rec.Scanning(session.Snapshot()) {
				w.renderer.Reconnecting()
			}
		},
		OnClose: func() {
			w.renderer.ConnectionLost()
			close(down)
		},
	})
	defer disconnect()

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	streamDown := down // nilled out once observed
	streamFailed := false
	completionShown := false

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-session.Changes():

		case <-ticker.C:
			if rec.Scanning(session.Snapshot()) {
				if latest, err := w.api.GetScan(ctx, scanID); err == nil {
					rec.ObserveRest(latest.Status)
				} else if !errors.Is(err, context.Canceled) {
					w.log.WithError(err).Debug("status poll failed")
				}
			}

		case <-streamDown:
			streamFailed = true
			streamDown = nil // block forever from now on
		}

		snap := session.Snapshot()
		switch rec.Resolve(snap) {
		case state.ViewNavigated:
			if !completionShown {
				w.renderer.Complete(snap, history.Snapshot())
				completionShown = true
			}
			report, err := w.api.GetReport(ctx, scanID)
			if err != nil {
				return nil, fmt.Errorf("live: fetch report: %w", err)
			}
			return report, nil

		case state.ViewComplete:
			if !completionShown {
				w.renderer.Complete(snap, history.Snapshot())
				completionShown = true
			}
			// The report-ready signal only travels on the stream. If the
			// stream is gone, fall back to asking the REST API directly.
			if streamFailed {
				report, err := w.api.GetReport(ctx, scanID)
				if errors.Is(err, api.ErrNotFound) {
					return nil, nil
				}
				if err != nil {
					return nil, fmt.Errorf("live: fetch report: %w", err)
				}
				return report, nil
			}
		}
	}
}

// finishWithoutStream handles a scan that was already terminal at load time:
// the page renders the completion state from the REST snapshot alone instead
// of waiting on stream events that will never come.
func (w *Watcher) finishWithoutStream(ctx context.Context, sc *scan.Scan) (*scan.Report, error) {
	snap := state.Snapshot{
		ScanID:       sc.ID,
		Phase:        scan.PhaseCompleted,
		Complete:     true,
		OverallScore: sc.OverallScore,
		PhaseResults: map[scan.Phase]scan.PhaseResult{},
	}
	w.renderer.Complete(snap, nil)

	if sc.Status == scan.StatusFailed {
		return nil, nil
	}
	report, err := w.api.GetReport(ctx, sc.ID)
	if errors.Is(err, api.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("live: fetch report: %w", err)
	}
	return report, nil
}

// apply projects one decoded stream event into the session store and the
// derived history, and mirrors it to the renderer. It runs on the transport's
// read goroutine; the store does the locking.
func (w *Watcher) apply(session *state.Session, history *state.MetricsHistory, ev stream.Event) {
	switch e := ev.(type) {
	case stream.PhaseChange:
		w.renderer.Phase(e.Phase)
		session.SetPhase(e.Phase)

	case stream.Log:
		w.renderer.Log(e.Entry)
		session.AddLog(e.Entry)

	case stream.Progress:
		session.UpdateMetrics(e.Metrics)
		history.Observe(e.Metrics)
		w.renderer.Metrics(e.Metrics)

	case stream.ModuleComplete:
		res := scan.PhaseResult{Score: e.Score, Grade: e.Grade}
		w.renderer.ModuleComplete(e.Phase, res)
		session.CompleteModule(e.Phase, e.Score, e.Grade)

	case stream.ScanComplete:
		session.CompleteScan(e.Score)

	case stream.ReportReady:
		session.SetReportReady()

	case stream.StreamError:
		// Surfaced, not stored: a server-side error message does not corrupt
		// the projection.
		w.renderer.StreamError(e.Message)
	}
}

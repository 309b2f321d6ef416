// Package stream consumes the server-pushed WebSocket event stream of a
// running scan. It owns the connection lifecycle (reconnect with backoff) and
// decodes raw frames into a closed set of typed events at the boundary.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/scanwatch/scanwatch/internal/scan"
)

// Sentinel decode errors. Both are non-fatal: the transport drops the frame,
// reports it to the diagnostic sink, and keeps reading.
var (
	// ErrBadFrame indicates a frame that is not valid JSON or is missing
	// required fields for its declared type.
	ErrBadFrame = errors.New("stream: bad frame")

	// ErrUnknownEvent indicates a structurally valid frame with an
	// unrecognized type. Treated as a forward-compatible no-op.
	ErrUnknownEvent = errors.New("stream: unknown event type")
)

// Event is one decoded inbound frame. The set of implementations is closed:
// PhaseChange, Log, Progress, ModuleComplete, ScanComplete, ReportReady and
// StreamError.
type Event interface {
	event()
}

// PhaseChange announces that the backend moved to a new scan phase.
type PhaseChange struct {
	Phase scan.Phase
}

// Log carries one live log entry.
type Log struct {
	Entry scan.LogEntry
}

// Progress carries a full replacement snapshot of the live metrics.
type Progress struct {
	Metrics scan.LiveMetrics
}

// ModuleComplete announces the scored completion of one phase.
type ModuleComplete struct {
	Phase scan.Phase
	Score int
	Grade string
}

// ScanComplete announces the end of the scan with its overall score.
type ScanComplete struct {
	Score int
}

// ReportReady announces that the final report has been persisted server-side
// and is fetchable.
type ReportReady struct{}

// StreamError carries a server-reported error message.
type StreamError struct {
	Message string
}

func (PhaseChange) event()    {}
func (Log) event()            {}
func (Progress) event()       {}
func (ModuleComplete) event() {}
func (ScanComplete) event()   {}
func (ReportReady) event()    {}
func (StreamError) event()    {}

// frame is the wire envelope. Type-specific fields are pointers so that
// presence can be validated before dispatch.
type frame struct {
	Type    string            `json:"type"`
	Phase   *scan.Phase       `json:"phase"`
	Entry   *scan.LogEntry    `json:"entry"`
	Metrics *scan.LiveMetrics `json:"metrics"`
	Score   *float64          `json:"score"`
	Grade   *string           `json:"grade"`
	Error   *string           `json:"error"`
}

// Decode parses a raw frame into a typed Event. A frame whose declared type
// is not in the closed set yields ErrUnknownEvent; a frame missing required
// fields for its type yields ErrBadFrame. Frames are never partially applied:
// either every required field is present or the frame is rejected whole.
func Decode(data []byte) (Event, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}

	switch f.Type {
	case "phase_change":
		if f.Phase == nil || *f.Phase == "" {
			return nil, fmt.Errorf("%w: phase_change without phase", ErrBadFrame)
		}
		return PhaseChange{Phase: *f.Phase}, nil

	case "log":
		if f.Entry == nil {
			return nil, fmt.Errorf("%w: log without entry", ErrBadFrame)
		}
		if !f.Entry.Level.Valid() {
			return nil, fmt.Errorf("%w: log entry with level %q", ErrBadFrame, f.Entry.Level)
		}
		return Log{Entry: *f.Entry}, nil

	case "progress":
		if f.Metrics == nil {
			return nil, fmt.Errorf("%w: progress without metrics", ErrBadFrame)
		}
		return Progress{Metrics: *f.Metrics}, nil

	case "module_complete":
		if f.Phase == nil || *f.Phase == "" {
			return nil, fmt.Errorf("%w: module_complete without phase", ErrBadFrame)
		}
		if f.Score == nil {
			return nil, fmt.Errorf("%w: module_complete without score", ErrBadFrame)
		}
		if f.Grade == nil || *f.Grade == "" {
			return nil, fmt.Errorf("%w: module_complete without grade", ErrBadFrame)
		}
		return ModuleComplete{Phase: *f.Phase, Score: int(*f.Score), Grade: *f.Grade}, nil

	case "scan_complete":
		if f.Score == nil {
			return nil, fmt.Errorf("%w: scan_complete without score", ErrBadFrame)
		}
		return ScanComplete{Score: int(*f.Score)}, nil

	case "report_ready":
		return ReportReady{}, nil

	case "error":
		if f.Error == nil {
			return nil, fmt.Errorf("%w: error frame without error", ErrBadFrame)
		}
		return StreamError{Message: *f.Error}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Type)
	}
}

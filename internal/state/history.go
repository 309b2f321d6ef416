package state

import (
	"sync"

	"github.com/scanwatch/scanwatch/internal/scan"
)

// DefaultHistoryCap is the bound on the metrics history ring.
const DefaultHistoryCap = 50

// MetricsHistory is a bounded FIFO of LiveMetrics snapshots derived from the
// session's latest-metrics field. It exists purely to feed charts and
// sparklines; it is not authoritative and is never persisted. Once the cap is
// exceeded the oldest snapshot is evicted.
type MetricsHistory struct {
	mu    sync.Mutex
	buf   []scan.LiveMetrics
	start int
	count int
}

// NewMetricsHistory creates a history ring with the given capacity. A
// capacity of zero or less uses DefaultHistoryCap.
func NewMetricsHistory(capacity int) *MetricsHistory {
	if capacity <= 0 {
		capacity = DefaultHistoryCap
	}
	return &MetricsHistory{buf: make([]scan.LiveMetrics, capacity)}
}

// Observe appends a metrics snapshot, evicting the oldest one if the ring is
// full.
func (h *MetricsHistory) Observe(m scan.LiveMetrics) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count < len(h.buf) {
		h.buf[(h.start+h.count)%len(h.buf)] = m
		h.count++
		return
	}
	h.buf[h.start] = m
	h.start = (h.start + 1) % len(h.buf)
}

// Len returns the number of stored snapshots.
func (h *MetricsHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Snapshot returns the stored metrics oldest-first. It is safe to call on an
// empty ring; the result is nil.
func (h *MetricsHistory) Snapshot() []scan.LiveMetrics {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return nil
	}
	out := make([]scan.LiveMetrics, h.count)
	for i := 0; i < h.count; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

package live_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scanwatch/scanwatch/internal/api"
	"github.com/scanwatch/scanwatch/internal/live"
	"github.com/scanwatch/scanwatch/internal/render"
	"github.com/scanwatch/scanwatch/internal/scan"
	"github.com/scanwatch/scanwatch/internal/stream"
	"github.com/scanwatch/scanwatch/internal/testutil"
)

type memStore struct {
	mu   sync.Mutex
	pair *api.TokenPair
}

func (m *memStore) Credentials() (*api.TokenPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pair == nil {
		return nil, nil
	}
	p := *m.pair
	return &p, nil
}

func (m *memStore) SetCredentials(pair *api.TokenPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := *pair
	m.pair = &p
	return nil
}

func (m *memStore) ClearCredentials() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair = nil
	return nil
}

// fastClock fires every timer immediately so backoff sequences run at test
// speed.
type fastClock struct{}

func (fastClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

// syncWriter guards a strings.Builder shared between the watcher goroutines
// and test assertions.
type syncWriter struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *syncWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func newWatcher(t *testing.T, srv *testutil.ScanServer, out *syncWriter, poll time.Duration) *live.Watcher {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	client, err := api.NewClient(api.Options{
		BaseURL:     srv.URL(),
		Credentials: &memStore{},
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.Login(context.Background(), "dev@example.com", "hunter2"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	transport := stream.NewTransport(stream.Options{
		BaseURL: srv.WSURL(),
		Clock:   fastClock{},
		Logger:  logger,
	})

	return live.New(live.Options{
		API:          client,
		Transport:    transport,
		Renderer:     render.NewLive(out),
		Logger:       logger,
		PollInterval: poll,
	})
}

func TestWatcher_StreamDrivesScanToReport(t *testing.T) {
	srv := testutil.NewScanServer()
	defer srv.Close()

	srv.AddScan(&scan.Scan{ID: "scan-1", URL: "https://example.com", Status: scan.StatusRunning, CreatedAt: time.Now()})
	srv.SetReport("scan-1", &scan.Report{ID: "r-1", ScanID: "scan-1", CreatedAt: time.Now()})
	srv.SetScript("scan-1",
		`{"type":"phase_change","phase":"ssl"}`,
		`{"type":"log","entry":{"timestamp":"2025-03-01T12:00:00Z","phase":"ssl","level":"info","message":"checking certificate chain"}}`,
		`{"type":"progress","metrics":{"avg_response_time":120,"throughput":40,"error_rate":0,"active_users":5}}`,
		`{"type":"module_complete","phase":"ssl","score":92,"grade":"A"}`,
		`{"type":"scan_complete","score":88}`,
		`{"type":"report_ready"}`,
	)

	out := &syncWriter{}
	w := newWatcher(t, srv, out, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	report, err := w.Run(ctx, "scan-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report == nil || report.ID != "r-1" {
		t.Fatalf("Run report = %+v, want r-1", report)
	}

	got := out.String()
	for _, want := range []string{
		"live scan of https://example.com",
		"phase: ssl [2/5]",
		"checking certificate chain",
		"[+] ssl complete: 92/100 (grade A)",
		"Scan complete.",
		"Overall score: 88/100",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestWatcher_TerminalCompletedScanSkipsStream(t *testing.T) {
	srv := testutil.NewScanServer()
	defer srv.Close()

	score := 88
	srv.AddScan(&scan.Scan{ID: "scan-1", URL: "https://example.com", Status: scan.StatusCompleted,
		OverallScore: &score, CreatedAt: time.Now()})
	srv.SetReport("scan-1", &scan.Report{ID: "r-1", ScanID: "scan-1", CreatedAt: time.Now()})

	out := &syncWriter{}
	w := newWatcher(t, srv, out, time.Second)

	report, err := w.Run(context.Background(), "scan-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report == nil || report.ID != "r-1" {
		t.Fatalf("Run report = %+v, want r-1", report)
	}
	if !strings.Contains(out.String(), "Overall score: 88/100") {
		t.Errorf("missing completion summary:\n%s", out.String())
	}
}

func TestWatcher_TerminalFailedScanReturnsNoReport(t *testing.T) {
	srv := testutil.NewScanServer()
	defer srv.Close()

	srv.AddScan(&scan.Scan{ID: "scan-1", URL: "https://example.com", Status: scan.StatusFailed, CreatedAt: time.Now()})

	out := &syncWriter{}
	w := newWatcher(t, srv, out, time.Second)

	report, err := w.Run(context.Background(), "scan-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report != nil {
		t.Fatalf("Run report = %+v, want nil for failed scan", report)
	}
}

func TestWatcher_CompletedScanWithoutReport(t *testing.T) {
	srv := testutil.NewScanServer()
	defer srv.Close()

	srv.AddScan(&scan.Scan{ID: "scan-1", URL: "https://example.com", Status: scan.StatusCompleted, CreatedAt: time.Now()})

	out := &syncWriter{}
	w := newWatcher(t, srv, out, time.Second)

	report, err := w.Run(context.Background(), "scan-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report != nil {
		t.Fatalf("Run report = %+v, want nil when no report exists", report)
	}
}

func TestWatcher_FallsBackToRestWhenStreamDies(t *testing.T) {
	srv := testutil.NewScanServer()
	defer srv.Close()

	srv.AddScan(&scan.Scan{ID: "scan-1", URL: "https://example.com", Status: scan.StatusRunning, CreatedAt: time.Now()})
	srv.SetScript("scan-1", `{"type":"phase_change","phase":"ssl"}`)
	srv.CloseAfterScript = true

	out := &syncWriter{}
	w := newWatcher(t, srv, out, 20*time.Millisecond)

	done := make(chan struct{})
	var report *scan.Report
	var runErr error
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go func() {
		report, runErr = w.Run(ctx, "scan-1")
		close(done)
	}()

	// Let the watcher load the running snapshot and burn through the stream
	// budget, then finish the scan on the REST side only.
	time.Sleep(200 * time.Millisecond)
	srv.SetReport("scan-1", &scan.Report{ID: "r-1", ScanID: "scan-1", CreatedAt: time.Now()})
	srv.SetStatus("scan-1", scan.StatusCompleted)

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
	}
	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}
	if report == nil || report.ID != "r-1" {
		t.Fatalf("Run report = %+v, want r-1 via REST fallback", report)
	}

	got := out.String()
	if !strings.Contains(got, "reconnecting") {
		t.Errorf("missing reconnecting notice:\n%s", got)
	}
	if !strings.Contains(got, "live connection lost") {
		t.Errorf("missing connection-lost notice:\n%s", got)
	}
}

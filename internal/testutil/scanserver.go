// Package testutil provides a mock scanning-platform backend for integration
// testing: the /api/v1 REST surface (auth, scans, reports) plus the
// /ws/scan/{id} WebSocket endpoint replaying scripted event frames.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/scanwatch/scanwatch/internal/scan"
)

// ScanServer is a fake platform backend. All mutating accessors are safe to
// call while the server is running.
type ScanServer struct {
	Server *httptest.Server

	mu       sync.Mutex
	tokenSeq int
	access   string
	refresh  string
	scanSeq  int
	scans    map[string]*scan.Scan
	reports  map[string]*scan.Report
	scripts  map[string][]string

	// FrameDelay is the pause between scripted frames.
	FrameDelay time.Duration

	// CloseAfterScript drops the WebSocket once all scripted frames have
	// been sent, instead of holding it open. Used to exercise reconnects.
	CloseAfterScript bool

	// RefreshCalls counts /auth/refresh hits.
	RefreshCalls int
}

var upgrader = websocket.Upgrader{}

// NewScanServer starts a fake backend. Close it after use.
func NewScanServer() *ScanServer {
	s := &ScanServer{
		scans:      make(map[string]*scan.Scan),
		reports:    make(map[string]*scan.Report),
		scripts:    make(map[string][]string),
		FrameDelay: time.Millisecond,
	}

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Post("/auth/logout", s.handleLogout)
			r.Post("/scans", s.handleCreateScan)
			r.Get("/scans", s.handleListScans)
			r.Get("/scans/{id}", s.handleGetScan)
			r.Delete("/scans/{id}", s.handleDeleteScan)
			r.Get("/reports/{scanID}", s.handleGetReport)
			r.Get("/reports/{scanID}/pdf", s.handleGetPDF)
			r.Post("/reports/{scanID}/email", s.handleEmailReport)
		})
	})
	r.Get("/ws/scan/{id}", s.handleStream)

	s.Server = httptest.NewServer(r)
	return s
}

// Close shuts the server down.
func (s *ScanServer) Close() {
	s.Server.Close()
}

// URL returns the HTTP base URL.
func (s *ScanServer) URL() string {
	return s.Server.URL
}

// WSURL returns the WebSocket base URL.
func (s *ScanServer) WSURL() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http")
}

// AddScan registers a scan record.
func (s *ScanServer) AddScan(sc *scan.Scan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans[sc.ID] = sc
}

// SetStatus updates a scan's status.
func (s *ScanServer) SetStatus(scanID string, status scan.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok := s.scans[scanID]; ok {
		sc.Status = status
	}
}

// SetReport registers the report returned for a scan id.
func (s *ScanServer) SetReport(scanID string, report *scan.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[scanID] = report
}

// SetScript sets the raw frames streamed to a scan's WebSocket, in order.
func (s *ScanServer) SetScript(scanID string, frames ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[scanID] = frames
}

// ExpireAccessToken invalidates the current access token so the next authed
// request gets a 401, exercising the refresh path. The refresh token stays
// valid.
func (s *ScanServer) ExpireAccessToken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = ""
}

// ----------------------------------------------------------------------------
// Auth
// ----------------------------------------------------------------------------

func (s *ScanServer) issueTokens() map[string]string {
	s.tokenSeq++
	s.access = fmt.Sprintf("access-%d", s.tokenSeq)
	s.refresh = fmt.Sprintf("refresh-%d", s.tokenSeq)
	return map[string]string{
		"access_token":  s.access,
		"refresh_token": s.refresh,
		"token_type":    "bearer",
	}
}

func (s *ScanServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Email == "" || in.Password == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "email and password required")
		return
	}

	s.mu.Lock()
	tokens := s.issueTokens()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, tokens)
}

func (s *ScanServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "refresh_token required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.RefreshCalls++
	if in.RefreshToken != s.refresh {
		writeDetail(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	writeJSON(w, http.StatusOK, s.issueTokens())
}

func (s *ScanServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.access = ""
	s.refresh = ""
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (s *ScanServer) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		valid := s.access != "" && r.Header.Get("Authorization") == "Bearer "+s.access
		s.mu.Unlock()
		if !valid {
			writeDetail(w, http.StatusUnauthorized, "could not validate credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ----------------------------------------------------------------------------
// Scans
// ----------------------------------------------------------------------------

func (s *ScanServer) handleCreateScan(w http.ResponseWriter, r *http.Request) {
	var in struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.URL == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "url required")
		return
	}

	s.mu.Lock()
	s.scanSeq++
	sc := &scan.Scan{
		ID:        fmt.Sprintf("scan-%d", s.scanSeq),
		URL:       in.URL,
		Status:    scan.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	s.scans[sc.ID] = sc
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, sc)
}

func (s *ScanServer) handleListScans(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	scans := make([]*scan.Scan, 0, len(s.scans))
	for _, sc := range s.scans {
		scans = append(scans, sc)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, scans)
}

func (s *ScanServer) handleGetScan(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	sc, ok := s.scans[chi.URLParam(r, "id")]
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "scan not found")
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *ScanServer) handleDeleteScan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	_, ok := s.scans[id]
	delete(s.scans, id)
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "scan not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

// ----------------------------------------------------------------------------
// Reports
// ----------------------------------------------------------------------------

func (s *ScanServer) handleGetReport(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	report, ok := s.reports[chi.URLParam(r, "scanID")]
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "report not found")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *ScanServer) handleGetPDF(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	_, ok := s.reports[chi.URLParam(r, "scanID")]
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "report not found")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	fmt.Fprint(w, "%PDF-1.4 mock report")
}

func (s *ScanServer) handleEmailReport(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Email == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "email required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "report sent"})
}

// ----------------------------------------------------------------------------
// Stream
// ----------------------------------------------------------------------------

// handleStream upgrades the connection and replays the scripted frames for
// the scan, then either holds the socket open until the client leaves or
// closes it (CloseAfterScript).
func (s *ScanServer) handleStream(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	s.mu.Lock()
	frames := s.scripts[chi.URLParam(r, "id")]
	delay := s.FrameDelay
	closeAfter := s.CloseAfterScript
	s.mu.Unlock()

	for _, frame := range frames {
		time.Sleep(delay)
		if err := ws.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			return
		}
	}
	if closeAfter {
		return
	}

	// The stream is receive-only for the client; a read here blocks until
	// the client closes the connection.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

// ----------------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/scanwatch/scanwatch/internal/api"
	"github.com/scanwatch/scanwatch/internal/scan"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCredentials_Roundtrip(t *testing.T) {
	s := openTestStore(t)

	pair, err := s.Credentials()
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	if pair != nil {
		t.Fatalf("fresh store returned credentials: %+v", pair)
	}

	want := &api.TokenPair{AccessToken: "acc", RefreshToken: "ref", TokenType: "bearer"}
	if err := s.SetCredentials(want); err != nil {
		t.Fatalf("SetCredentials: %v", err)
	}

	got, err := s.Credentials()
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	if got == nil || *got != *want {
		t.Errorf("Credentials = %+v, want %+v", got, want)
	}

	// Overwrite, last write wins.
	want2 := &api.TokenPair{AccessToken: "acc2", RefreshToken: "ref2", TokenType: "bearer"}
	if err := s.SetCredentials(want2); err != nil {
		t.Fatalf("SetCredentials: %v", err)
	}
	got, _ = s.Credentials()
	if got == nil || got.AccessToken != "acc2" {
		t.Errorf("Credentials after overwrite = %+v, want %+v", got, want2)
	}

	if err := s.ClearCredentials(); err != nil {
		t.Fatalf("ClearCredentials: %v", err)
	}
	got, err = s.Credentials()
	if err != nil || got != nil {
		t.Errorf("Credentials after clear = %+v, %v; want nil, nil", got, err)
	}
}

func TestClearCredentials_EmptyStoreIsNoop(t *testing.T) {
	s := openTestStore(t)
	if err := s.ClearCredentials(); err != nil {
		t.Errorf("ClearCredentials on empty store: %v", err)
	}
}

func TestClientID_StableAcrossCalls(t *testing.T) {
	s := openTestStore(t)

	first, err := s.ClientID()
	if err != nil {
		t.Fatalf("ClientID: %v", err)
	}
	if first == "" {
		t.Fatal("ClientID returned empty id")
	}

	second, err := s.ClientID()
	if err != nil {
		t.Fatalf("ClientID: %v", err)
	}
	if second != first {
		t.Errorf("ClientID = %q, want the generated %q again", second, first)
	}
}

func TestScanCache_ReplacesAndOrdersNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	scans := []scan.Scan{
		{ID: "scan-1", URL: "https://a.example", Status: scan.StatusCompleted, CreatedAt: base},
		{ID: "scan-2", URL: "https://b.example", Status: scan.StatusRunning, CreatedAt: base.Add(time.Hour)},
	}
	if err := s.CacheScans(ctx, scans); err != nil {
		t.Fatalf("CacheScans: %v", err)
	}

	got, err := s.CachedScans(ctx)
	if err != nil {
		t.Fatalf("CachedScans: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("cached count = %d, want 2", len(got))
	}
	if got[0].ID != "scan-2" || got[1].ID != "scan-1" {
		t.Errorf("order = [%s %s], want newest first", got[0].ID, got[1].ID)
	}

	// A later cache call fully replaces the previous list.
	if err := s.CacheScans(ctx, scans[:1]); err != nil {
		t.Fatalf("CacheScans: %v", err)
	}
	got, err = s.CachedScans(ctx)
	if err != nil {
		t.Fatalf("CachedScans: %v", err)
	}
	if len(got) != 1 || got[0].ID != "scan-1" {
		t.Errorf("cache after replace = %+v, want only scan-1", got)
	}
}

func TestOpen_CreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "scanwatch.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.SetCredentials(&api.TokenPair{AccessToken: "a", RefreshToken: "r"}); err != nil {
		t.Fatalf("SetCredentials: %v", err)
	}
}

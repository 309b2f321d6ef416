// Package store provides local persistence for the client: the auth token
// pair, a generated install identifier, and a cache of the last-seen scan
// list for offline use. Backed by SQLite via modernc.org/sqlite (pure Go).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/scanwatch/scanwatch/internal/api"
	"github.com/scanwatch/scanwatch/internal/scan"
)

// credentialsKey is the fixed settings key the token pair is stored under.
// It is the sole piece of durable credential state on the client.
const credentialsKey = "auth_tokens"

// clientIDKey holds the generated install identifier used in diagnostics.
const clientIDKey = "client_id"

// SQLiteStore is the local database. Safe for concurrent use; credential
// writes are last-write-wins.
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore satisfies the client's credential
// contract.
var _ api.CredentialStore = (*SQLiteStore)(nil)

// DefaultPath returns the per-user database location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("store: resolve config dir: %w", err)
	}
	return filepath.Join(dir, "scanwatch", "scanwatch.db"), nil
}

// Open creates or opens the database at dbPath, creating parent directories
// as needed. Use ":memory:" for testing.
func Open(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS scan_cache (
			id         TEXT PRIMARY KEY,
			scan_json  TEXT NOT NULL,
			cached_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// ----------------------------------------------------------------------------
// Settings
// ----------------------------------------------------------------------------

func (s *SQLiteStore) getSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: read setting %q: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) putSetting(key, value string) error {
	query := `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	if _, err := s.db.Exec(query, key, value); err != nil {
		return fmt.Errorf("store: write setting %q: %w", key, err)
	}
	return nil
}

// ----------------------------------------------------------------------------
// Credentials
// ----------------------------------------------------------------------------

// Credentials returns the stored token pair, or (nil, nil) when absent.
func (s *SQLiteStore) Credentials() (*api.TokenPair, error) {
	raw, err := s.getSetting(credentialsKey)
	if err != nil || raw == "" {
		return nil, err
	}
	var pair api.TokenPair
	if err := json.Unmarshal([]byte(raw), &pair); err != nil {
		return nil, fmt.Errorf("store: unmarshal credentials: %w", err)
	}
	return &pair, nil
}

// SetCredentials replaces the stored token pair.
func (s *SQLiteStore) SetCredentials(pair *api.TokenPair) error {
	data, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("store: marshal credentials: %w", err)
	}
	return s.putSetting(credentialsKey, string(data))
}

// ClearCredentials removes the stored token pair.
func (s *SQLiteStore) ClearCredentials() error {
	if _, err := s.db.Exec(`DELETE FROM settings WHERE key = ?`, credentialsKey); err != nil {
		return fmt.Errorf("store: clear credentials: %w", err)
	}
	return nil
}

// ClientID returns this install's identifier, generating and persisting one
// on first use.
func (s *SQLiteStore) ClientID() (string, error) {
	id, err := s.getSetting(clientIDKey)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}
	id = uuid.New().String()
	if err := s.putSetting(clientIDKey, id); err != nil {
		return "", err
	}
	return id, nil
}

// ----------------------------------------------------------------------------
// Scan cache
// ----------------------------------------------------------------------------

// CacheScans replaces the cached scan list with the given scans.
func (s *SQLiteStore) CacheScans(ctx context.Context, scans []scan.Scan) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin cache update: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM scan_cache`); err != nil {
		return fmt.Errorf("store: clear scan cache: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for i := range scans {
		data, err := json.Marshal(&scans[i])
		if err != nil {
			return fmt.Errorf("store: marshal scan %s: %w", scans[i].ID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO scan_cache (id, scan_json, cached_at) VALUES (?, ?, ?)`,
			scans[i].ID, string(data), now)
		if err != nil {
			return fmt.Errorf("store: cache scan %s: %w", scans[i].ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit cache update: %w", err)
	}
	return nil
}

// CachedScans returns the cached scan list, most recently created first.
func (s *SQLiteStore) CachedScans(ctx context.Context) ([]scan.Scan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT scan_json FROM scan_cache`)
	if err != nil {
		return nil, fmt.Errorf("store: list cached scans: %w", err)
	}
	defer rows.Close()

	var scans []scan.Scan
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("store: scan cache row: %w", err)
		}
		var sc scan.Scan
		if err := json.Unmarshal([]byte(raw), &sc); err != nil {
			return nil, fmt.Errorf("store: unmarshal cached scan: %w", err)
		}
		scans = append(scans, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate cache rows: %w", err)
	}

	// Newest first, matching the platform's list ordering.
	sort.Slice(scans, func(i, j int) bool {
		return scans[i].CreatedAt.After(scans[j].CreatedAt)
	})
	return scans, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Package statestore persists bb's client-side state in a small SQLite
// key–value table: the API token, the selected organization, the reference
// cache payload with its freshness timestamp, and the last viewed analysis
// reference. Values are JSON; a corrupted or unparseable value behaves as a
// cache miss, never as a fatal error.
package statestore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite"
)

// Well-known keys.
const (
	KeyAuthToken             = "auth_token"
	KeySelectedOrganization  = "selected_organization"
	KeyAllIntegrations       = "all_integrations"
	KeyIntegrationsFetchedAt = "all_integrations_timestamp"
	KeyLastAnalysisRef       = "last_analysis_ref"
)

// PlatformKey returns the per-platform cached status key
// (e.g. "github_integration").
func PlatformKey(platform string) string {
	return platform + "_integration"
}

// Store is a SQLite-backed key–value store. Safe for concurrent use; SQLite
// serializes writers and the busy timeout covers a second bb process.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if necessary) the store at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open state store: %w", err)
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS state (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state store: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Get unmarshals the value for key into out. The boolean reports whether a
// usable value existed; malformed JSON counts as absent.
func (s *Store) Get(key string, out any) (bool, error) {
	var raw string
	err := s.db.QueryRow("SELECT value FROM state WHERE key = ?", key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, nil
	}
	return true, nil
}

// Set stores a JSON-serialized value for key.
func (s *Store) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	_, err := s.db.Exec("DELETE FROM state WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// GetString is a convenience for plain string values.
func (s *Store) GetString(key string) (string, bool) {
	var v string
	ok, err := s.Get(key, &v)
	if err != nil {
		return "", false
	}
	return v, ok
}

// SetString stores a plain string value.
func (s *Store) SetString(key, v string) error {
	return s.Set(key, v)
}

// GetTime reads a timestamp value; absent or corrupt yields the zero time.
func (s *Store) GetTime(key string) time.Time {
	var v time.Time
	ok, err := s.Get(key, &v)
	if err != nil || !ok {
		return time.Time{}
	}
	return v
}

// SetTime stores a timestamp value.
func (s *Store) SetTime(key string, t time.Time) error {
	return s.Set(key, t)
}

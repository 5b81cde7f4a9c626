package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pfrederiksen/pokertour/internal/cache"
	"github.com/pfrederiksen/pokertour/internal/tournament"
)

const cacheSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key              TEXT PRIMARY KEY,
	tournaments_json TEXT NOT NULL,
	created_at       INTEGER NOT NULL,
	expires_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_expires ON cache_entries(expires_at);
`

// SQLiteStore persists cache entries as rows in a SQLite database.
// It implements cache.Persister.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) a SQLite database at path with the standard pragmas.
// ":memory:" is accepted for tests.
func OpenSQLite(path string) (*sql.DB, error) {
	if path != ":memory:" {
		var err error
		if path, err = ExpandPath(path); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() // nolint:errcheck
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close() // nolint:errcheck
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

// NewSQLiteStore wraps db and applies the cache schema
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(cacheSchema); err != nil {
		return nil, fmt.Errorf("applying cache schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load returns every stored entry, expired or not
func (s *SQLiteStore) Load() ([]cache.Entry, error) {
	rows, err := s.db.Query(`SELECT key, tournaments_json, created_at, expires_at FROM cache_entries`)
	if err != nil {
		return nil, fmt.Errorf("querying cache entries: %w", err)
	}
	defer rows.Close() // nolint:errcheck

	var entries []cache.Entry
	for rows.Next() {
		var (
			key       string
			payload   string
			createdAt int64
			expiresAt int64
		)
		if err := rows.Scan(&key, &payload, &createdAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scanning cache entry: %w", err)
		}

		var ts []tournament.Tournament
		if err := json.Unmarshal([]byte(payload), &ts); err != nil {
			return nil, fmt.Errorf("decoding cache entry %q: %w", key, err)
		}

		entries = append(entries, cache.Entry{
			Key:         key,
			Tournaments: ts,
			CreatedAt:   time.UnixMilli(createdAt).UTC(),
			ExpiresAt:   time.UnixMilli(expiresAt).UTC(),
		})
	}
	return entries, rows.Err()
}

// Save stores or replaces an entry
func (s *SQLiteStore) Save(entry cache.Entry) error {
	payload, err := json.Marshal(entry.Tournaments)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO cache_entries (key, tournaments_json, created_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			tournaments_json = excluded.tournaments_json,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		entry.Key, string(payload), entry.CreatedAt.UnixMilli(), entry.ExpiresAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("saving cache entry: %w", err)
	}
	return nil
}

// Delete removes an entry
func (s *SQLiteStore) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting cache entry: %w", err)
	}
	return nil
}

// Clear removes every entry
func (s *SQLiteStore) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("clearing cache entries: %w", err)
	}
	return nil
}

// PurgeExpired deletes rows expired at now and returns how many were removed
func (s *SQLiteStore) PurgeExpired(now time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM cache_entries WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purging cache entries: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

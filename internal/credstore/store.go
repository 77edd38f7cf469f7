/*
PURPOSE:
  Persists small settings (the API key) between invocations in a local
  SQLite database.

REQUIREMENTS:
  User-specified:
  - Remember the Gemini API key under "gemini_api_key" so it need not be
    passed on every run.
  - Allow clearing the stored key.

  Implementation-discovered:
  - A single key/value table is enough; values are overwritten in place.
  - Pure-Go driver so the binary stays cgo-free.

ARCHITECTURE INTEGRATION:
  - Called by: internal/cli/key.go, internal/cli/run.go (key resolution)
  - Dependencies: modernc.org/sqlite

ERROR HANDLING:
  - Get returns ErrNotFound for a missing key.
  - All other failures are wrapped with the operation name.

IMPLEMENTATION RULES:
  - One open connection (SQLite has one writer).
  - Create the parent directory on Open.

USAGE:
  st, err := credstore.Open(cfg.CredentialDB)
  defer st.Close()
  key, err := st.Get(ctx, credstore.APIKey)

RELATED FILES:
  - internal/config/config.go
*/

package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// APIKey is the settings key holding the Gemini API key.
const APIKey = "gemini_api_key"

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("credential not found")

// Store is a key/value settings table.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the settings database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("credential store path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create credential directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	const schema = `CREATE TABLE IF NOT EXISTS settings (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		db.Close()
		return nil, fmt.Errorf("failed to restrict credential store: %w", err)
	}

	return &Store{db: db}, nil
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Mask hides all but the last four characters of a secret. Secrets of eight
// characters or fewer are hidden entirely.
func Mask(secret string) string {
	r := []rune(secret)
	if len(r) <= 8 {
		return "****"
	}
	return "****" + string(r[len(r)-4:])
}

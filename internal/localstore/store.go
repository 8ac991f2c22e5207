// Package localstore holds the device-local durable state of the workout
// tracker: at most one incomplete-session snapshot plus the last-seen backend
// data fingerprint. It is pure storage; merge semantics live in the session
// controller.
package localstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/claude/liftlog/internal/models"
)

const fingerprintKey = "backend_fingerprint"

// Store persists the single incomplete-session slot in a SQLite database at
// dir/session.db. A Save always replaces the prior snapshot in full.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens (or creates) the session state database at dir/session.db.
func Open(dir string, log *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir %s: %w", dir, err)
	}

	dbPath := filepath.Join(dir, "session.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening session db: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS incomplete_session (
		slot       INTEGER PRIMARY KEY CHECK (slot = 1),
		payload    TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating session table: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS device_state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating device state table: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

// Save writes the snapshot into the single slot, replacing any prior one.
// A returned error means durable state is behind the in-memory engine and the
// caller must retry before reporting the workout as saved.
func (s *Store) Save(session *models.IncompleteSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encoding session snapshot: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO incomplete_session (slot, payload, updated_at) VALUES (1, ?, ?)`,
		string(payload), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving session snapshot: %w", err)
	}
	return nil
}

// Get returns the stored snapshot, or nil when the slot is empty. A snapshot
// that no longer decodes is treated as absent after a warn log; the backend
// round-trip during reconciliation is the recovery path.
func (s *Store) Get() (*models.IncompleteSession, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM incomplete_session WHERE slot = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session snapshot: %w", err)
	}

	var session models.IncompleteSession
	if err := json.Unmarshal([]byte(payload), &session); err != nil {
		s.log.Warn("discarding unreadable session snapshot", "error", err)
		return nil, nil
	}
	return &session, nil
}

// Clear empties the session slot. Clearing an already-empty slot is a no-op.
func (s *Store) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM incomplete_session WHERE slot = 1`); err != nil {
		return fmt.Errorf("clearing session snapshot: %w", err)
	}
	return nil
}

// Fingerprint returns the last-seen backend data fingerprint, or "" when none
// has been recorded yet.
func (s *Store) Fingerprint() (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM device_state WHERE key = ?`, fingerprintKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading fingerprint: %w", err)
	}
	return value, nil
}

// SetFingerprint records the backend data fingerprint.
func (s *Store) SetFingerprint(fp string) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO device_state (key, value) VALUES (?, ?)`,
		fingerprintKey, fp,
	)
	if err != nil {
		return fmt.Errorf("saving fingerprint: %w", err)
	}
	return nil
}

// Close closes the state database.
func (s *Store) Close() error {
	return s.db.Close()
}

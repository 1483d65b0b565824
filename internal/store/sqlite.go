// Package store persists field snapshots in SQLite so an interrupted entry
// session can be resumed. One row per field ID; saving overwrites the
// previous snapshot for that field.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"pinfield/internal/field"
)

// ErrNotFound is returned when no snapshot exists for a field ID.
var ErrNotFound = errors.New("store: snapshot not found")

// Schema for the snapshot store.
const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
    field_id        TEXT PRIMARY KEY,
    version         INTEGER NOT NULL,
    length          INTEGER NOT NULL,
    secure          INTEGER NOT NULL,
    cells           TEXT NOT NULL,
    focus           INTEGER NOT NULL,
    enabled         INTEGER NOT NULL,
    remaining_sec   INTEGER NOT NULL,
    saved_at_ns     INTEGER NOT NULL
);
`

// Store is the SQLite snapshot store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts the snapshot for a field ID.
func (s *Store) Save(fieldID string, snap field.Snapshot) error {
	if fieldID == "" {
		return errors.New("store: empty field ID")
	}
	if err := snap.Validate(); err != nil {
		return err
	}

	_, err := s.db.Exec(`
		INSERT INTO snapshots
			(field_id, version, length, secure, cells, focus, enabled, remaining_sec, saved_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(field_id) DO UPDATE SET
			version = excluded.version,
			length = excluded.length,
			secure = excluded.secure,
			cells = excluded.cells,
			focus = excluded.focus,
			enabled = excluded.enabled,
			remaining_sec = excluded.remaining_sec,
			saved_at_ns = excluded.saved_at_ns`,
		fieldID, snap.Version, snap.Length, boolToInt(snap.Secure), snap.Cells,
		snap.Focus, boolToInt(snap.Enabled), snap.Remaining, snap.SavedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot for a field ID.
func (s *Store) Load(fieldID string) (field.Snapshot, error) {
	var (
		snap            field.Snapshot
		secure, enabled int
		savedAtNs       int64
	)
	err := s.db.QueryRow(`
		SELECT version, length, secure, cells, focus, enabled, remaining_sec, saved_at_ns
		FROM snapshots WHERE field_id = ?`, fieldID,
	).Scan(&snap.Version, &snap.Length, &secure, &snap.Cells,
		&snap.Focus, &enabled, &snap.Remaining, &savedAtNs)
	if errors.Is(err, sql.ErrNoRows) {
		return field.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return field.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}

	snap.Secure = secure != 0
	snap.Enabled = enabled != 0
	snap.SavedAt = time.Unix(0, savedAtNs).UTC()

	if err := snap.Validate(); err != nil {
		return field.Snapshot{}, fmt.Errorf("stored snapshot corrupt: %w", err)
	}
	return snap, nil
}

// Delete removes the snapshot for a field ID. Deleting a missing snapshot
// is not an error.
func (s *Store) Delete(fieldID string) error {
	if _, err := s.db.Exec(`DELETE FROM snapshots WHERE field_id = ?`, fieldID); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

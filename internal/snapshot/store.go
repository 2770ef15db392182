// Package snapshot persists a run's fetched data — type tree, node list,
// global samples — in a single SQLite file, so later runs can rebuild the
// graph without touching CED or Mya. This replaces re-fetching during
// development and lets a data set be reproduced exactly.
package snapshot

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Section names used by the pipeline.
const (
	SectionTree    = "tree"
	SectionNodes   = "nodes"
	SectionGlobals = "globals"
)

// ErrNotFound is returned by Load when the section was never saved.
var ErrNotFound = errors.New("snapshot section not found")

// Store is a key → JSON payload table in one SQLite file.
type Store struct {
	db *sql.DB
}

// Open creates or opens the snapshot database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		section TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		saved_at INTEGER NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create snapshot schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save marshals v and stores it under section, replacing any earlier copy.
func (s *Store) Save(section string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", section, err)
	}
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO snapshots (section, payload, saved_at) VALUES (?, ?, ?)",
		section, payload, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", section, err)
	}
	return nil
}

// Load unmarshals the stored section into v.
func (s *Store) Load(section string, v any) error {
	var payload []byte
	err := s.db.QueryRow(
		"SELECT payload FROM snapshots WHERE section = ?", section).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, section)
	}
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", section, err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("snapshot %s decode: %w", section, err)
	}
	return nil
}

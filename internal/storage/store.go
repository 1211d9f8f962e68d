// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// =============================================================================
// STORE
// =============================================================================

// ErrNotFound reports a record key with no stored value.
var ErrNotFound = errors.New("record not found")

// Store is the SQLite-backed key-value persistence layer.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the store at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key     TEXT PRIMARY KEY,
			version INTEGER NOT NULL,
			value   TEXT NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create kv table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// put stores one record, replacing any previous value.
func (s *Store) put(key string, version int, value []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO kv (key, version, value) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET version = excluded.version, value = excluded.value`,
		key, version, string(value))
	if err != nil {
		return fmt.Errorf("failed to write record %q: %w", key, err)
	}
	return nil
}

// get loads one record's version and raw value.
func (s *Store) get(key string) (int, []byte, error) {
	var version int
	var value string
	err := s.db.QueryRow(`SELECT version, value FROM kv WHERE key = ?`, key).Scan(&version, &value)
	if err == sql.ErrNoRows {
		return 0, nil, ErrNotFound
	}
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read record %q: %w", key, err)
	}
	return version, []byte(value), nil
}

// =============================================================================
// VERSIONED RECORD ACCESS
// =============================================================================

// saveRecord marshals v and stores it under key at the given version.
func (s *Store) saveRecord(key string, version int, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record %q: %w", key, err)
	}
	return s.put(key, version, data)
}

// loadRecord unmarshals the record into out. When the stored version is
// older than current, unknown fields fall back to out's pre-set defaults and
// the record is rewritten at the current version (upgrade in place). A
// stored version newer than current is an error; downgrades lose data.
func (s *Store) loadRecord(key string, current int, out any) error {
	version, data, err := s.get(key)
	if err != nil {
		return err
	}
	if version > current {
		return fmt.Errorf("record %q has version %d, newer than supported %d", key, version, current)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse record %q: %w", key, err)
	}
	if version < current {
		return s.saveRecord(key, current, out)
	}
	return nil
}

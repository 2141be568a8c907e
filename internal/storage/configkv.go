package storage

import (
	"database/sql"
	"time"
)

// The config_entries table is a small versioned key-value store. Vector
// definitions and per-bundle audit settings live here as named JSON blobs;
// the version column increments on every write so callers can detect churn.

// GetConfig returns the value of a named configuration entry, or ErrNotFound.
func (s *Store) GetConfig(name string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM config_entries WHERE name = ?", name).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

// SetConfig upserts a named configuration entry, bumping its version.
func (s *Store) SetConfig(name, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO config_entries (name, value, version, updated_at) VALUES (?, ?, 1, ?)
		ON CONFLICT(name) DO UPDATE SET
			value = excluded.value,
			version = config_entries.version + 1,
			updated_at = excluded.updated_at`,
		name, value, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// DeleteConfig removes a named configuration entry. Absent names are a no-op.
func (s *Store) DeleteConfig(name string) error {
	_, err := s.db.Exec("DELETE FROM config_entries WHERE name = ?", name)
	return err
}

// ConfigVersion returns the write counter for a named entry, or ErrNotFound.
func (s *Store) ConfigVersion(name string) (int, error) {
	var version int
	err := s.db.QueryRow("SELECT version FROM config_entries WHERE name = ?", name).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	return version, err
}

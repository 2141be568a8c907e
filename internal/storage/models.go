package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ScoreRecord is one persisted per-vector risk score for an entity.
// Uniqueness key: (EntityType, EntityID, VectorID, Langcode). A newer write
// for the same key supersedes the old row via delete-then-insert.
type ScoreRecord struct {
	EntityType  string
	EntityID    int64
	RevisionID  int64
	Langcode    string
	VectorID    string
	Score       int
	ContentHash string
	ConfigHash  string
	AnalyzedAt  time.Time
}

// ScoreKey identifies the entity+language a score set belongs to.
type ScoreKey struct {
	EntityType string
	EntityID   int64
	RevisionID int64
	Langcode   string
}

// ScoreStatistics summarizes the current score row population.
type ScoreStatistics struct {
	TotalRecords     int
	DistinctEntities int
	DistinctVectors  int
	OldestAnalyzedAt time.Time
	NewestAnalyzedAt time.Time
}

// ContentItem is a stored content entity: the built-in entity store row.
type ContentItem struct {
	EntityType string
	EntityID   int64
	RevisionID int64
	Bundle     string
	Langcode   string
	Title      string
	Body       string // raw markup, rendered and stripped before hashing
	Published  bool
	CreatedAt  time.Time
}

package entity

import (
	"context"

	"github.com/dxpr/analyze-ai-content-security-audit/internal/storage"
)

// Entity is a loaded content entity ready for auditing.
type Entity struct {
	Type       string
	ID         int64
	RevisionID int64
	Bundle     string
	Langcode   string
	Title      string
	Body       string // raw markup
	Published  bool
}

// Candidate identifies an entity produced by a selection query. Transient,
// never persisted.
type Candidate struct {
	Type   string
	ID     int64
	Bundle string
}

// Query filters entity enumeration.
type Query struct {
	Type          string
	Bundle        string // empty matches all bundles
	PublishedOnly bool
	Limit         int // 0 means no limit
}

// Store is the built-in SQLite-backed entity store.
type Store struct {
	db *storage.Store
}

// NewStore creates an entity store over the shared database.
func NewStore(db *storage.Store) *Store {
	return &Store{db: db}
}

// Query enumerates candidates matching the filter.
func (s *Store) Query(ctx context.Context, q Query) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items, err := s.db.QueryContentItems(q.Type, q.Bundle, q.PublishedOnly, q.Limit)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, len(items))
	for i, item := range items {
		candidates[i] = Candidate{Type: item.EntityType, ID: item.EntityID, Bundle: item.Bundle}
	}
	return candidates, nil
}

// Load fetches one entity by type and id. Returns storage.ErrNotFound for
// absent entities.
func (s *Store) Load(ctx context.Context, entityType string, id int64) (Entity, error) {
	if err := ctx.Err(); err != nil {
		return Entity{}, err
	}
	item, err := s.db.GetContentItem(entityType, id)
	if err != nil {
		return Entity{}, err
	}
	return fromItem(item), nil
}

func fromItem(item storage.ContentItem) Entity {
	return Entity{
		Type:       item.EntityType,
		ID:         item.EntityID,
		RevisionID: item.RevisionID,
		Bundle:     item.Bundle,
		Langcode:   item.Langcode,
		Title:      item.Title,
		Body:       item.Body,
		Published:  item.Published,
	}
}

package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// SaveContentItem inserts or replaces a content item. When EntityID is zero
// the next free id for the entity type is assigned and the stored item is
// returned with it populated.
func (s *Store) SaveContentItem(item ContentItem) (ContentItem, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return ContentItem{}, fmt.Errorf("beginning content transaction: %w", err)
	}
	defer tx.Rollback()

	if item.EntityID == 0 {
		var maxID sql.NullInt64
		if err := tx.QueryRow(`SELECT MAX(entity_id) FROM content_items WHERE entity_type = ?`,
			item.EntityType).Scan(&maxID); err != nil {
			return ContentItem{}, fmt.Errorf("assigning entity id: %w", err)
		}
		item.EntityID = maxID.Int64 + 1
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if item.Langcode == "" {
		item.Langcode = "en"
	}

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO content_items (entity_type, entity_id, revision_id, bundle, langcode, title, body, published, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.EntityType, item.EntityID, item.RevisionID, item.Bundle, item.Langcode,
		item.Title, item.Body, boolToInt(item.Published), item.CreatedAt.UTC().Format(time.RFC3339),
	); err != nil {
		return ContentItem{}, fmt.Errorf("saving content item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ContentItem{}, err
	}
	return item, nil
}

// GetContentItem loads one content item by type and id, or ErrNotFound.
func (s *Store) GetContentItem(entityType string, entityID int64) (ContentItem, error) {
	var item ContentItem
	var published int
	var createdAt string
	err := s.db.QueryRow(`
		SELECT entity_type, entity_id, revision_id, bundle, langcode, title, body, published, created_at
		FROM content_items WHERE entity_type = ? AND entity_id = ?`,
		entityType, entityID,
	).Scan(&item.EntityType, &item.EntityID, &item.RevisionID, &item.Bundle, &item.Langcode,
		&item.Title, &item.Body, &published, &createdAt)
	if err == sql.ErrNoRows {
		return ContentItem{}, ErrNotFound
	}
	if err != nil {
		return ContentItem{}, err
	}
	item.Published = published != 0
	if item.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return ContentItem{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return item, nil
}

// QueryContentItems enumerates items of one entity type, optionally filtered
// by bundle and publication state. A limit of 0 means no limit.
func (s *Store) QueryContentItems(entityType, bundle string, publishedOnly bool, limit int) ([]ContentItem, error) {
	query := `
		SELECT entity_type, entity_id, revision_id, bundle, langcode, title, body, published, created_at
		FROM content_items WHERE entity_type = ?`
	args := []any{entityType}
	if bundle != "" {
		query += " AND bundle = ?"
		args = append(args, bundle)
	}
	if publishedOnly {
		query += " AND published = 1"
	}
	query += " ORDER BY entity_id ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying content items: %w", err)
	}
	defer rows.Close()

	var items []ContentItem
	for rows.Next() {
		var item ContentItem
		var published int
		var createdAt string
		if err := rows.Scan(&item.EntityType, &item.EntityID, &item.RevisionID, &item.Bundle,
			&item.Langcode, &item.Title, &item.Body, &published, &createdAt); err != nil {
			return nil, err
		}
		item.Published = published != 0
		if item.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// DeleteContentItem removes one content item and its cached scores.
func (s *Store) DeleteContentItem(entityType string, entityID int64) error {
	if _, err := s.db.Exec(`DELETE FROM content_items WHERE entity_type = ? AND entity_id = ?`,
		entityType, entityID); err != nil {
		return err
	}
	return s.DeleteScores(entityType, entityID)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

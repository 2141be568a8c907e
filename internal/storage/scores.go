package storage

import (
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// GetScores returns the cached vector-id → score mapping for the given key,
// restricted to rows whose stored hashes both match the supplied current
// content and config hashes. Rows with stale hashes are treated as absent
// (cache miss); they are not returned and not deleted by this call.
func (s *Store) GetScores(key ScoreKey, contentHash, configHash string) (map[string]int, error) {
	rows, err := s.db.Query(`
		SELECT vector_id, score FROM score_records
		WHERE entity_type = ? AND entity_id = ? AND langcode = ?
		  AND content_hash = ? AND config_hash = ?`,
		key.EntityType, key.EntityID, key.Langcode, contentHash, configHash,
	)
	if err != nil {
		return nil, fmt.Errorf("querying scores: %w", err)
	}
	defer rows.Close()

	scores := make(map[string]int)
	for rows.Next() {
		var vectorID string
		var score int
		if err := rows.Scan(&vectorID, &score); err != nil {
			return nil, err
		}
		scores[vectorID] = score
	}
	return scores, rows.Err()
}

// SaveScores replaces the cached score set for the given entity+language:
// all existing rows for (entity_type, entity_id, langcode) are deleted, then
// one fresh row per vector is inserted with the supplied hashes and the
// current timestamp. Every score is clamped into [0,100] before writing.
// An empty scores map clears the cache for the key without rewriting.
// The delete and inserts run in one transaction, so concurrent readers see
// either the old set, nothing, or the complete new set.
func (s *Store) SaveScores(key ScoreKey, scores map[string]int, contentHash, configHash string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning save transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM score_records
		WHERE entity_type = ? AND entity_id = ? AND langcode = ?`,
		key.EntityType, key.EntityID, key.Langcode,
	); err != nil {
		return fmt.Errorf("deleting superseded scores: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)

	// Deterministic insert order keeps write patterns stable across runs.
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, vectorID := range ids {
		if _, err := tx.Exec(`
			INSERT INTO score_records (entity_type, entity_id, revision_id, langcode, vector_id, score, content_hash, config_hash, analyzed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			key.EntityType, key.EntityID, key.RevisionID, key.Langcode,
			vectorID, ClampScore(scores[vectorID]), contentHash, configHash, now,
		); err != nil {
			return fmt.Errorf("inserting score for vector %s: %w", vectorID, err)
		}
	}

	return tx.Commit()
}

// DeleteScores removes every cached row for the entity across all languages.
// Used for forced refresh and entity deletion.
func (s *Store) DeleteScores(entityType string, entityID int64) error {
	_, err := s.db.Exec(`DELETE FROM score_records WHERE entity_type = ? AND entity_id = ?`,
		entityType, entityID)
	return err
}

// DeleteScoresForVector removes every cached row carrying the given vector
// id, across all entities. Used when a vector is deleted from configuration.
func (s *Store) DeleteScoresForVector(vectorID string) error {
	_, err := s.db.Exec(`DELETE FROM score_records WHERE vector_id = ?`, vectorID)
	return err
}

// InvalidateConfigCache deletes every row whose config hash differs from the
// currently computed one. This is what makes vector add/edit/delete/reorder
// transparently expire stale scores without a recomputation pass, and it
// also self-heals residual rows left by a crash between a config save and
// its cascading score deletion.
func (s *Store) InvalidateConfigCache(currentConfigHash string) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM score_records WHERE config_hash != ?`, currentConfigHash)
	if err != nil {
		return 0, fmt.Errorf("sweeping stale config rows: %w", err)
	}
	return res.RowsAffected()
}

// HasScores reports whether the entity has any cached row at all, valid or
// stale. Batch candidate selection uses this under the "any-cached"
// exclusion policy.
func (s *Store) HasScores(entityType string, entityID int64) (bool, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM score_records
		WHERE entity_type = ? AND entity_id = ?`,
		entityType, entityID,
	).Scan(&n)
	return n > 0, err
}

// HasRecentScores reports whether the entity has at least one row analyzed
// at or after `since` with the current config hash. Batch candidate
// selection uses this under the "recent-window" exclusion policy.
func (s *Store) HasRecentScores(entityType string, entityID int64, configHash string, since time.Time) (bool, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM score_records
		WHERE entity_type = ? AND entity_id = ? AND config_hash = ? AND analyzed_at >= ?`,
		entityType, entityID, configHash, since.UTC().Format(time.RFC3339),
	).Scan(&n)
	return n > 0, err
}

// Statistics aggregates over the current score row set.
func (s *Store) Statistics() (ScoreStatistics, error) {
	var stats ScoreStatistics
	var oldest, newest sql.NullString

	err := s.db.QueryRow(`
		SELECT COUNT(*),
		       COUNT(DISTINCT entity_type || ':' || entity_id),
		       COUNT(DISTINCT vector_id),
		       MIN(analyzed_at), MAX(analyzed_at)
		FROM score_records`,
	).Scan(&stats.TotalRecords, &stats.DistinctEntities, &stats.DistinctVectors, &oldest, &newest)
	if err != nil {
		return ScoreStatistics{}, fmt.Errorf("aggregating score statistics: %w", err)
	}

	if oldest.Valid {
		if stats.OldestAnalyzedAt, err = time.Parse(time.RFC3339, oldest.String); err != nil {
			return ScoreStatistics{}, fmt.Errorf("parsing oldest analyzed_at: %w", err)
		}
	}
	if newest.Valid {
		if stats.NewestAnalyzedAt, err = time.Parse(time.RFC3339, newest.String); err != nil {
			return ScoreStatistics{}, fmt.Errorf("parsing newest analyzed_at: %w", err)
		}
	}
	return stats, nil
}

// AverageScores returns the mean score per vector id over all current rows.
func (s *Store) AverageScores() (map[string]float64, error) {
	rows, err := s.db.Query(`SELECT vector_id, AVG(score) FROM score_records GROUP BY vector_id`)
	if err != nil {
		return nil, fmt.Errorf("averaging scores: %w", err)
	}
	defer rows.Close()

	averages := make(map[string]float64)
	for rows.Next() {
		var vectorID string
		var avg float64
		if err := rows.Scan(&vectorID, &avg); err != nil {
			return nil, err
		}
		averages[vectorID] = avg
	}
	return averages, rows.Err()
}

// ClampScore forces a score into the valid [0,100] range.
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

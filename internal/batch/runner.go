// Package batch drives the security analyzer across large entity sets in
// fixed-size chunks, isolating per-entity failures so one broken entity
// never aborts a run.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dxpr/analyze-ai-content-security-audit/internal/analyzer"
	"github.com/dxpr/analyze-ai-content-security-audit/internal/entity"
)

// DefaultChunkSize is the number of entities processed per scheduling step.
// Chunking exists for memory and responsiveness, not throughput.
const DefaultChunkSize = 5

// DefaultRecentWindow is the trailing window for the recent-window policy.
const DefaultRecentWindow = 7 * 24 * time.Hour

// SelectionPolicy names the candidate-exclusion rule applied when a run is
// not force-refreshing. The two policies are distinct by design; callers
// choose one explicitly.
type SelectionPolicy string

const (
	// PolicyAnyCached excludes entities that have any cached row at all,
	// valid or stale.
	PolicyAnyCached SelectionPolicy = "any-cached"
	// PolicyRecentWindow excludes only entities analyzed within the trailing
	// window under the current config hash.
	PolicyRecentWindow SelectionPolicy = "recent-window"
)

// Target is one (entity type, bundle) pair to audit. An empty bundle matches
// every bundle of the type.
type Target struct {
	Type   string
	Bundle string
}

// Options configures one batch run.
type Options struct {
	Targets      []Target
	Force        bool // delete cached scores before re-analyzing
	Limit        int  // hard cap on candidates; 0 means no cap
	ChunkSize    int  // 0 selects DefaultChunkSize
	Policy       SelectionPolicy
	RecentWindow time.Duration // 0 selects DefaultRecentWindow
}

// ItemError records one entity's failure without aborting the run.
type ItemError struct {
	EntityType string `json:"entity_type"`
	EntityID   int64  `json:"entity_id"`
	Message    string `json:"message"`
}

func (e ItemError) String() string {
	return fmt.Sprintf("%s/%d: %s", e.EntityType, e.EntityID, e.Message)
}

// Progress reports batch advancement. Fraction is monotone non-decreasing
// and reaches exactly 1.0 on completion regardless of per-entity errors.
type Progress struct {
	Attempted int
	Total     int
}

// Fraction returns attempted/total, or 1.0 for an empty run.
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 1.0
	}
	return float64(p.Attempted) / float64(p.Total)
}

// Result summarizes a completed run. Processed counts entities analyzed
// without fault; Errors holds one entry per failed entity.
type Result struct {
	RunID     string      `json:"run_id"`
	Total     int         `json:"total"`
	Processed int         `json:"processed"`
	Errors    []ItemError `json:"errors,omitempty"`
}

// EntitySource enumerates and loads entities. Implemented by entity.Store.
type EntitySource interface {
	Query(ctx context.Context, q entity.Query) ([]entity.Candidate, error)
	Load(ctx context.Context, entityType string, id int64) (entity.Entity, error)
}

// EntityAnalyzer runs one entity's audit. Implemented by analyzer.Analyzer.
// The batch layer consumes the pure data result; populating the cache is the
// side effect that matters here.
type EntityAnalyzer interface {
	Analyze(ctx context.Context, e entity.Entity) (analyzer.Result, error)
}

// ScoreStore defines the cache operations candidate selection and forced
// refresh need. Implemented by storage.Store.
type ScoreStore interface {
	DeleteScores(entityType string, entityID int64) error
	HasScores(entityType string, entityID int64) (bool, error)
	HasRecentScores(entityType string, entityID int64, configHash string, since time.Time) (bool, error)
}

// ConfigHasher supplies the current config fingerprint for the
// recent-window policy. Implemented by vectors.Registry.
type ConfigHasher interface {
	ConfigHash() (string, error)
}

// Runner executes batch audits sequentially, one chunk per step.
type Runner struct {
	entities EntitySource
	analyze  EntityAnalyzer
	scores   ScoreStore
	registry ConfigHasher
	logger   *slog.Logger
}

// NewRunner creates a Runner with explicit collaborators.
func NewRunner(entities EntitySource, analyze EntityAnalyzer, scores ScoreStore, registry ConfigHasher) *Runner {
	return &Runner{
		entities: entities,
		analyze:  analyze,
		scores:   scores,
		registry: registry,
		logger:   slog.Default(),
	}
}

// SelectCandidates enumerates eligible entities for the run. Only published
// entities qualify. When not force-refreshing, already-analyzed entities are
// excluded per the configured policy. The limit caps the final list.
func (r *Runner) SelectCandidates(ctx context.Context, opts Options) ([]entity.Candidate, error) {
	var configHash string
	if !opts.Force && opts.Policy == PolicyRecentWindow {
		hash, err := r.registry.ConfigHash()
		if err != nil {
			return nil, fmt.Errorf("computing config hash for selection: %w", err)
		}
		configHash = hash
	}

	window := opts.RecentWindow
	if window <= 0 {
		window = DefaultRecentWindow
	}
	since := time.Now().UTC().Add(-window)

	var selected []entity.Candidate
	for _, target := range opts.Targets {
		candidates, err := r.entities.Query(ctx, entity.Query{
			Type:          target.Type,
			Bundle:        target.Bundle,
			PublishedOnly: true,
		})
		if err != nil {
			return nil, fmt.Errorf("querying %s/%s candidates: %w", target.Type, target.Bundle, err)
		}

		for _, c := range candidates {
			if !opts.Force {
				excluded, err := r.alreadyAnalyzed(c, opts.Policy, configHash, since)
				if err != nil {
					return nil, err
				}
				if excluded {
					continue
				}
			}
			selected = append(selected, c)
			if opts.Limit > 0 && len(selected) >= opts.Limit {
				return selected, nil
			}
		}
	}
	return selected, nil
}

func (r *Runner) alreadyAnalyzed(c entity.Candidate, policy SelectionPolicy, configHash string, since time.Time) (bool, error) {
	switch policy {
	case PolicyRecentWindow:
		recent, err := r.scores.HasRecentScores(c.Type, c.ID, configHash, since)
		if err != nil {
			return false, fmt.Errorf("checking recent scores for %s/%d: %w", c.Type, c.ID, err)
		}
		return recent, nil
	default:
		// PolicyAnyCached, also the fallback for an unset policy.
		cached, err := r.scores.HasScores(c.Type, c.ID)
		if err != nil {
			return false, fmt.Errorf("checking cached scores for %s/%d: %w", c.Type, c.ID, err)
		}
		return cached, nil
	}
}

// Run selects candidates and processes them chunk by chunk. Each entity is
// loaded, optionally force-cleared, and analyzed; per-entity failures are
// recorded and the run continues. onProgress (optional) fires after every
// entity. Cancellation is honored between chunks; the error return covers
// batch-mechanism faults only.
func (r *Runner) Run(ctx context.Context, opts Options, onProgress func(Progress)) (Result, error) {
	result := Result{RunID: uuid.New().String()}

	candidates, err := r.SelectCandidates(ctx, opts)
	if err != nil {
		return result, fmt.Errorf("selecting candidates: %w", err)
	}
	result.Total = len(candidates)

	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	r.logger.Info("batch run starting",
		"run_id", result.RunID, "total", result.Total, "chunk_size", chunkSize, "force", opts.Force)

	attempted := 0
	for start := 0; start < len(candidates); start += chunkSize {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("batch cancelled after %d of %d entities: %w", attempted, result.Total, err)
		}

		end := start + chunkSize
		if end > len(candidates) {
			end = len(candidates)
		}

		for _, c := range candidates[start:end] {
			if itemErr := r.processOne(ctx, c, opts.Force); itemErr != nil {
				result.Errors = append(result.Errors, *itemErr)
			} else {
				result.Processed++
			}
			attempted++
			if onProgress != nil {
				onProgress(Progress{Attempted: attempted, Total: result.Total})
			}
		}
	}

	r.logger.Info("batch run finished",
		"run_id", result.RunID, "processed", result.Processed, "errors", len(result.Errors))

	return result, nil
}

// processOne audits a single entity, converting any fault into an ItemError.
func (r *Runner) processOne(ctx context.Context, c entity.Candidate, force bool) *ItemError {
	if force {
		if err := r.scores.DeleteScores(c.Type, c.ID); err != nil {
			return &ItemError{EntityType: c.Type, EntityID: c.ID,
				Message: fmt.Sprintf("clearing cached scores: %v", err)}
		}
	}

	e, err := r.entities.Load(ctx, c.Type, c.ID)
	if err != nil {
		return &ItemError{EntityType: c.Type, EntityID: c.ID,
			Message: fmt.Sprintf("loading entity: %v", err)}
	}

	res, err := r.analyze.Analyze(ctx, e)
	if err != nil {
		return &ItemError{EntityType: c.Type, EntityID: c.ID,
			Message: fmt.Sprintf("analyzing entity: %v", err)}
	}

	r.logger.Debug("batch entity done",
		"entity_type", c.Type, "entity_id", c.ID, "status", res.Status.String())
	return nil
}

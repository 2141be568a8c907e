package analyzer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dxpr/analyze-ai-content-security-audit/internal/entity"
	"github.com/dxpr/analyze-ai-content-security-audit/internal/extract"
	"github.com/dxpr/analyze-ai-content-security-audit/internal/fingerprint"
	"github.com/dxpr/analyze-ai-content-security-audit/internal/llm"
	"github.com/dxpr/analyze-ai-content-security-audit/internal/storage"
	"github.com/dxpr/analyze-ai-content-security-audit/internal/vectors"
)

// Status is the terminal outcome of analyzing one entity. Informational
// statuses are values, never errors: the batch layer only sees an error for
// genuine per-entity faults (load, render, store, transport).
type Status int

const (
	// StatusAnalyzed: fresh scores were produced and written through.
	StatusAnalyzed Status = iota
	// StatusCacheHit: stored scores matched both current fingerprints.
	StatusCacheHit
	// StatusNotEnabled: the entity's type/bundle has no audit configuration.
	StatusNotEnabled
	// StatusNoVectors: auditing is enabled but zero vectors apply.
	StatusNoVectors
	// StatusNoProvider: no chat backend or default model is available.
	StatusNoProvider
	// StatusNoResult: the model response could not be used; cache untouched.
	StatusNoResult
)

func (s Status) String() string {
	switch s {
	case StatusAnalyzed:
		return "analyzed"
	case StatusCacheHit:
		return "cache_hit"
	case StatusNotEnabled:
		return "not_enabled"
	case StatusNoVectors:
		return "no_vectors"
	case StatusNoProvider:
		return "no_provider"
	case StatusNoResult:
		return "no_result"
	default:
		return "unknown"
	}
}

// Result is the pure data outcome of one analysis. It carries no rendered
// output; Summary and Report derive presentation from it on demand.
type Result struct {
	Status      Status
	Scores      map[string]int   // vector id → clamped score; empty for informational statuses
	Vectors     []vectors.Vector // enabled vectors in ascending weight order
	ContentHash string
	ConfigHash  string
}

// ScoreStore defines the cache operations the analyzer needs.
// Implemented by storage.Store.
type ScoreStore interface {
	GetScores(key storage.ScoreKey, contentHash, configHash string) (map[string]int, error)
	SaveScores(key storage.ScoreKey, scores map[string]int, contentHash, configHash string) error
}

// VectorSource supplies the configured vectors and their fingerprint.
// Implemented by vectors.Registry.
type VectorSource interface {
	List() ([]vectors.Vector, error)
	ConfigHash() (string, error)
}

// SettingsSource supplies per-bundle audit settings.
// Implemented by vectors.Settings.
type SettingsSource interface {
	Get(entityType, bundle string) (vectors.BundleSettings, error)
}

// ChatBackend abstracts the LLM provider. Implemented by llm.Client.
type ChatBackend interface {
	HasAvailableProvider(ctx context.Context) bool
	DefaultModel(ctx context.Context) (llm.Model, bool)
	Chat(ctx context.Context, model string, messages []llm.Message, jsonSchema *llm.Schema) (string, error)
}

// ContentRenderer produces an entity's canonical display markup.
// Implemented by entity.Renderer.
type ContentRenderer interface {
	RenderDefaultView(e entity.Entity, langcode string) (string, error)
}

// Analyzer orchestrates one entity's audit: settings check, fingerprinting,
// cache lookup, prompt construction, chat call, decode, and write-through.
type Analyzer struct {
	scores   ScoreStore
	registry VectorSource
	settings SettingsSource
	chat     ChatBackend
	renderer ContentRenderer
	logger   *slog.Logger
}

// New creates an Analyzer with explicit collaborators.
func New(scores ScoreStore, registry VectorSource, settings SettingsSource, chat ChatBackend, renderer ContentRenderer) *Analyzer {
	return &Analyzer{
		scores:   scores,
		registry: registry,
		settings: settings,
		chat:     chat,
		renderer: renderer,
		logger:   slog.Default(),
	}
}

// Analyze runs the audit state machine for one entity. Terminal outcomes
// only; no retries happen at this layer. The returned error covers genuine
// faults (render, store, transport); informational outcomes are statuses.
func (a *Analyzer) Analyze(ctx context.Context, e entity.Entity) (Result, error) {
	settings, err := a.settings.Get(e.Type, e.Bundle)
	if err != nil {
		return Result{}, fmt.Errorf("loading audit settings for %s.%s: %w", e.Type, e.Bundle, err)
	}
	if !settings.Enabled {
		return Result{Status: StatusNotEnabled}, nil
	}

	enabled, err := a.enabledVectors(settings)
	if err != nil {
		return Result{}, err
	}
	if len(enabled) == 0 {
		return Result{Status: StatusNoVectors}, nil
	}

	markup, err := a.renderer.RenderDefaultView(e, e.Langcode)
	if err != nil {
		return Result{}, fmt.Errorf("rendering entity %s/%d: %w", e.Type, e.ID, err)
	}
	contentHash := fingerprint.Content(markup)

	configHash, err := a.registry.ConfigHash()
	if err != nil {
		return Result{}, fmt.Errorf("computing config hash: %w", err)
	}

	key := storage.ScoreKey{
		EntityType: e.Type,
		EntityID:   e.ID,
		RevisionID: e.RevisionID,
		Langcode:   e.Langcode,
	}

	cached, err := a.scores.GetScores(key, contentHash, configHash)
	if err != nil {
		return Result{}, fmt.Errorf("reading score cache: %w", err)
	}
	if len(cached) > 0 {
		return Result{
			Status:      StatusCacheHit,
			Scores:      cached,
			Vectors:     enabled,
			ContentHash: contentHash,
			ConfigHash:  configHash,
		}, nil
	}

	if !a.chat.HasAvailableProvider(ctx) {
		return Result{Status: StatusNoProvider, Vectors: enabled}, nil
	}
	model, ok := a.chat.DefaultModel(ctx)
	if !ok {
		return Result{Status: StatusNoProvider, Vectors: enabled}, nil
	}

	text := fingerprint.ExtractText(markup)
	raw, err := a.chat.Chat(ctx, model.ID, buildMessages(text, enabled), scoringSchema(enabled))
	if err != nil {
		return Result{}, fmt.Errorf("chat call for %s/%d: %w", e.Type, e.ID, err)
	}

	decoded, err := extract.Object(raw)
	if err != nil {
		a.logger.Warn("unusable model response, treating as no result",
			"entity_type", e.Type, "entity_id", e.ID, "error", err)
		return Result{Status: StatusNoResult, Vectors: enabled}, nil
	}

	scores := keepValidScores(decoded, enabled)
	if len(scores) == 0 {
		return Result{Status: StatusNoResult, Vectors: enabled}, nil
	}

	// Write-through before returning.
	if err := a.scores.SaveScores(key, scores, contentHash, configHash); err != nil {
		return Result{}, fmt.Errorf("caching scores for %s/%d: %w", e.Type, e.ID, err)
	}

	a.logger.Debug("entity analyzed",
		"entity_type", e.Type, "entity_id", e.ID, "vectors_scored", len(scores))

	return Result{
		Status:      StatusAnalyzed,
		Scores:      scores,
		Vectors:     enabled,
		ContentHash: contentHash,
		ConfigHash:  configHash,
	}, nil
}

// enabledVectors resolves the bundle's enabled vector set in ascending
// weight order. An empty settings list enables every configured vector.
func (a *Analyzer) enabledVectors(settings vectors.BundleSettings) ([]vectors.Vector, error) {
	all, err := a.registry.List()
	if err != nil {
		return nil, fmt.Errorf("listing vectors: %w", err)
	}

	if len(settings.Vectors) == 0 {
		return vectors.SortByWeight(all), nil
	}

	wanted := make(map[string]bool, len(settings.Vectors))
	for _, id := range settings.Vectors {
		wanted[id] = true
	}
	var enabled []vectors.Vector
	for _, v := range all {
		if wanted[v.ID] {
			enabled = append(enabled, v)
		}
	}
	return vectors.SortByWeight(enabled), nil
}

// keepValidScores filters the decoded object down to enabled vector ids with
// numeric values, clamping each into [0,100]. Missing ids are omitted, not
// defaulted to zero.
func keepValidScores(decoded map[string]any, enabled []vectors.Vector) map[string]int {
	scores := make(map[string]int)
	for _, v := range enabled {
		raw, present := decoded[v.ID]
		if !present {
			continue
		}
		score, ok := coerceScore(raw)
		if !ok {
			continue
		}
		scores[v.ID] = score
	}
	return scores
}

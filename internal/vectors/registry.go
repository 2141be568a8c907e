package vectors

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/dxpr/analyze-ai-content-security-audit/internal/fingerprint"
	"github.com/dxpr/analyze-ai-content-security-audit/internal/storage"
)

// configName is the key of the vector configuration blob in the config store.
const configName = "security.vectors"

// ErrNotFound is returned when a requested vector is not configured.
var ErrNotFound = errors.New("vector not found")

// Vector is one named category of security risk to score. Ordering is by
// ascending weight with insertion order as the stable tie-break.
type Vector struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Weight      int    `json:"weight"`
}

// ConfigStore defines the configuration operations the Registry needs.
// Implemented by storage.Store.
type ConfigStore interface {
	GetConfig(name string) (string, error)
	SetConfig(name, value string) error
}

// ScoreStore defines the score cache operations the Registry cascades into.
// Implemented by storage.Store.
type ScoreStore interface {
	DeleteScoresForVector(vectorID string) error
	InvalidateConfigCache(currentConfigHash string) (int64, error)
}

// Registry is the single writer for vector configuration. Every mutation
// changes the configuration fingerprint and is followed by an invalidation
// sweep of the score cache.
type Registry struct {
	config ConfigStore
	scores ScoreStore
	logger *slog.Logger
}

// NewRegistry creates a Registry over the given config and score stores.
func NewRegistry(config ConfigStore, scores ScoreStore) *Registry {
	return &Registry{
		config: config,
		scores: scores,
		logger: slog.Default(),
	}
}

// List returns all configured vectors in store (insertion) order. Callers
// that need display order sort by weight themselves (see SortByWeight).
func (r *Registry) List() ([]Vector, error) {
	raw, err := r.config.GetConfig(configName)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading vector config: %w", err)
	}

	var vs []Vector
	if err := json.Unmarshal([]byte(raw), &vs); err != nil {
		return nil, fmt.Errorf("parsing vector config: %w", err)
	}
	return vs, nil
}

// Get returns the vector with the given id, or ErrNotFound.
func (r *Registry) Get(id string) (Vector, error) {
	vs, err := r.List()
	if err != nil {
		return Vector{}, err
	}
	for _, v := range vs {
		if v.ID == id {
			return v, nil
		}
	}
	return Vector{}, ErrNotFound
}

// Save upserts a vector with an explicit weight. An existing id keeps its
// position in store order; a new id is appended. The write always triggers
// an invalidation sweep, even when no field materially changed.
func (r *Registry) Save(v Vector) error {
	if v.ID == "" {
		return errors.New("vector id is required")
	}

	vs, err := r.List()
	if err != nil {
		return err
	}

	replaced := false
	for i := range vs {
		if vs[i].ID == v.ID {
			vs[i] = v
			replaced = true
			break
		}
	}
	if !replaced {
		vs = append(vs, v)
	}

	return r.persist(vs)
}

// Add appends a new vector with an auto-assigned weight of max(existing)+1,
// placing it last in display order. Returns the stored vector.
func (r *Registry) Add(id, label, description string) (Vector, error) {
	if id == "" {
		return Vector{}, errors.New("vector id is required")
	}

	vs, err := r.List()
	if err != nil {
		return Vector{}, err
	}

	weight := 0
	for _, existing := range vs {
		if existing.ID == id {
			return Vector{}, fmt.Errorf("vector %q already exists", id)
		}
		if existing.Weight+1 > weight {
			weight = existing.Weight + 1
		}
	}

	v := Vector{ID: id, Label: label, Description: description, Weight: weight}
	vs = append(vs, v)
	if err := r.persist(vs); err != nil {
		return Vector{}, err
	}
	return v, nil
}

// Delete removes a vector from configuration, deletes every cached score row
// carrying its id, and sweeps the cache. An absent id is a no-op, not an
// error. A crash between the config write and the score deletion is healed
// by the sweep on the next mutation: the residual rows carry a config hash
// that no longer matches.
func (r *Registry) Delete(id string) error {
	vs, err := r.List()
	if err != nil {
		return err
	}

	kept := vs[:0]
	found := false
	for _, v := range vs {
		if v.ID == id {
			found = true
			continue
		}
		kept = append(kept, v)
	}
	if !found {
		return nil
	}

	if err := r.persist(kept); err != nil {
		return err
	}
	if err := r.scores.DeleteScoresForVector(id); err != nil {
		return fmt.Errorf("cascading score deletion for vector %s: %w", id, err)
	}
	return nil
}

// ConfigHash returns the current 128-bit configuration fingerprint.
func (r *Registry) ConfigHash() (string, error) {
	vs, err := r.List()
	if err != nil {
		return "", err
	}
	return hashVectors(vs), nil
}

// persist writes the vector list and runs the invalidation sweep against the
// new fingerprint.
func (r *Registry) persist(vs []Vector) error {
	if vs == nil {
		vs = []Vector{}
	}
	raw, err := json.Marshal(vs)
	if err != nil {
		return fmt.Errorf("serializing vector config: %w", err)
	}
	if err := r.config.SetConfig(configName, string(raw)); err != nil {
		return fmt.Errorf("saving vector config: %w", err)
	}

	swept, err := r.scores.InvalidateConfigCache(hashVectors(vs))
	if err != nil {
		return fmt.Errorf("sweeping score cache: %w", err)
	}
	if swept > 0 {
		r.logger.Info("vector config changed, swept stale scores", "rows", swept)
	}
	return nil
}

func hashVectors(vs []Vector) string {
	m := make(map[string]fingerprint.VectorConfig, len(vs))
	for _, v := range vs {
		m[v.ID] = fingerprint.VectorConfig{Label: v.Label, Description: v.Description, Weight: v.Weight}
	}
	return fingerprint.Config(m)
}

// SortByWeight returns the vectors sorted by ascending weight. The sort is
// stable, so equal weights keep their insertion order.
func SortByWeight(vs []Vector) []Vector {
	sorted := make([]Vector, len(vs))
	copy(sorted, vs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Weight < sorted[j].Weight
	})
	return sorted
}

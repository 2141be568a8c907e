package vectors

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dxpr/analyze-ai-content-security-audit/internal/storage"
)

// settingsName is the key of the per-bundle audit settings blob.
const settingsName = "security.audit_settings"

// BundleSettings controls whether auditing applies to one entity-type/bundle
// pair and which vectors are enabled for it. An empty Vectors list means all
// configured vectors are enabled.
type BundleSettings struct {
	Enabled bool     `json:"enabled"`
	Vectors []string `json:"vectors,omitempty"`
}

// Settings provides access to per-bundle audit configuration. A bundle with
// no stored settings is not audited.
type Settings struct {
	config ConfigStore
}

// NewSettings creates a Settings accessor over the given config store.
func NewSettings(config ConfigStore) *Settings {
	return &Settings{config: config}
}

// Get returns the settings for one entity-type/bundle pair. Absent settings
// come back as the zero value (auditing disabled).
func (s *Settings) Get(entityType, bundle string) (BundleSettings, error) {
	all, err := s.All()
	if err != nil {
		return BundleSettings{}, err
	}
	return all[bundleKey(entityType, bundle)], nil
}

// Set stores the settings for one entity-type/bundle pair.
func (s *Settings) Set(entityType, bundle string, bs BundleSettings) error {
	all, err := s.All()
	if err != nil {
		return err
	}
	if all == nil {
		all = make(map[string]BundleSettings)
	}
	all[bundleKey(entityType, bundle)] = bs

	raw, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("serializing audit settings: %w", err)
	}
	if err := s.config.SetConfig(settingsName, string(raw)); err != nil {
		return fmt.Errorf("saving audit settings: %w", err)
	}
	return nil
}

// All returns every stored bundle setting keyed by "entityType.bundle".
func (s *Settings) All() (map[string]BundleSettings, error) {
	raw, err := s.config.GetConfig(settingsName)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading audit settings: %w", err)
	}

	var all map[string]BundleSettings
	if err := json.Unmarshal([]byte(raw), &all); err != nil {
		return nil, fmt.Errorf("parsing audit settings: %w", err)
	}
	return all, nil
}

func bundleKey(entityType, bundle string) string {
	return entityType + "." + bundle
}

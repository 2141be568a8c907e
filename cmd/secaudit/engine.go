package main

import (
	"fmt"

	"github.com/dxpr/analyze-ai-content-security-audit/internal/analyzer"
	"github.com/dxpr/analyze-ai-content-security-audit/internal/batch"
	"github.com/dxpr/analyze-ai-content-security-audit/internal/config"
	"github.com/dxpr/analyze-ai-content-security-audit/internal/entity"
	"github.com/dxpr/analyze-ai-content-security-audit/internal/llm"
	"github.com/dxpr/analyze-ai-content-security-audit/internal/storage"
	"github.com/dxpr/analyze-ai-content-security-audit/internal/vectors"
)

// auditEngine bundles the wired components shared by every command.
type auditEngine struct {
	cfg      config.Config
	store    *storage.Store
	entities *entity.Store
	registry *vectors.Registry
	settings *vectors.Settings
	analyzer *analyzer.Analyzer
	runner   *batch.Runner
}

// buildEngine loads configuration, opens storage, seeds default vectors, and
// wires every component with explicit dependencies.
func buildEngine() (*auditEngine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	registry := vectors.NewRegistry(store, store)
	if err := registry.EnsureDefaults(); err != nil {
		store.Close()
		return nil, fmt.Errorf("seeding default vectors: %w", err)
	}

	settings := vectors.NewSettings(store)
	entities := entity.NewStore(store)
	chat := llm.New(cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.ChatTimeout)
	anlz := analyzer.New(store, registry, settings, chat, entity.NewRenderer())
	runner := batch.NewRunner(entities, anlz, store, registry)

	return &auditEngine{
		cfg:      cfg,
		store:    store,
		entities: entities,
		registry: registry,
		settings: settings,
		analyzer: anlz,
		runner:   runner,
	}, nil
}

func (e *auditEngine) Close() error {
	return e.store.Close()
}

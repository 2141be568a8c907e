package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dxpr/analyze-ai-content-security-audit/internal/batch"
)

type Config struct {
	Server  ServerConfig
	LLM     LLMConfig
	Storage StorageConfig
	Batch   BatchConfig
}

type ServerConfig struct {
	Port  int
	Token string // empty disables bearer auth (local use)
}

type LLMConfig struct {
	BaseURL     string
	Model       string
	ChatTimeout time.Duration
}

type StorageConfig struct {
	DataDir string
}

type BatchConfig struct {
	ChunkSize    int
	Policy       batch.SelectionPolicy
	RecentWindow time.Duration
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4400,
		},
		LLM: LLMConfig{
			BaseURL:     "http://localhost:11434",
			Model:       "mistral-nemo",
			ChatTimeout: 60 * time.Second,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Batch: BatchConfig{
			ChunkSize:    batch.DefaultChunkSize,
			Policy:       batch.PolicyAnyCached,
			RecentWindow: batch.DefaultRecentWindow,
		},
	}
}

// Load builds configuration from defaults and SECAUDIT_* environment
// overrides.
func Load() (Config, error) {
	cfg := defaults()
	applyEnvOverrides(&cfg)

	switch cfg.Batch.Policy {
	case batch.PolicyAnyCached, batch.PolicyRecentWindow:
	default:
		return Config{}, fmt.Errorf("invalid SECAUDIT_BATCH_POLICY %q: want %q or %q",
			cfg.Batch.Policy, batch.PolicyAnyCached, batch.PolicyRecentWindow)
	}
	if cfg.Batch.ChunkSize <= 0 {
		return Config{}, fmt.Errorf("invalid batch chunk size %d", cfg.Batch.ChunkSize)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SECAUDIT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SECAUDIT_TOKEN"); v != "" {
		cfg.Server.Token = v
	}
	if v := os.Getenv("SECAUDIT_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("SECAUDIT_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("SECAUDIT_LLM_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			cfg.LLM.ChatTimeout = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("SECAUDIT_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SECAUDIT_BATCH_CHUNK_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil {
			cfg.Batch.ChunkSize = size
		}
	}
	if v := os.Getenv("SECAUDIT_BATCH_POLICY"); v != "" {
		cfg.Batch.Policy = batch.SelectionPolicy(v)
	}
	if v := os.Getenv("SECAUDIT_BATCH_WINDOW_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			cfg.Batch.RecentWindow = time.Duration(days) * 24 * time.Hour
		}
	}
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "secaudit")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "secaudit")
}

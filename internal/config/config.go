// Package config loads and validates the mnemo configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/mnemo/internal/embed"
	"github.com/felixgeelhaar/mnemo/internal/memory"
)

// Config is the on-disk configuration.
type Config struct {
	Store    StoreConfig    `json:"store" yaml:"store"`
	Embedder EmbedderConfig `json:"embedder" yaml:"embedder"`
	Log      LogConfig      `json:"log" yaml:"log"`
	Database string         `json:"database" yaml:"database"`
}

type StoreConfig struct {
	DefaultTTL          int    `json:"default_ttl" yaml:"default_ttl"`
	MaxItems            int    `json:"max_items" yaml:"max_items"`
	EmbeddingDimension  int    `json:"embedding_dimension" yaml:"embedding_dimension"`
	RemovalStrategy     string `json:"removal_strategy" yaml:"removal_strategy"`
	PersistToDisk       bool   `json:"persist_to_disk" yaml:"persist_to_disk"`
	PersistenceInterval int    `json:"persistence_interval" yaml:"persistence_interval"`
	SweepInterval       int    `json:"sweep_interval" yaml:"sweep_interval"`
}

type EmbedderConfig struct {
	Provider   string `json:"provider" yaml:"provider"`
	Model      string `json:"model" yaml:"model"`
	BaseURL    string `json:"base_url" yaml:"base_url"`
	PluginPath string `json:"plugin_path" yaml:"plugin_path"`
	CacheSize  int    `json:"cache_size" yaml:"cache_size"`
}

type LogConfig struct {
	Format  string `json:"format" yaml:"format"`
	Verbose bool   `json:"verbose" yaml:"verbose"`
}

// ValidationResult represents the outcome of a validation pass.
type ValidationResult struct {
	Valid    bool
	Warnings []string
	Errors   []string
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Store: StoreConfig{
			MaxItems:            10000,
			EmbeddingDimension:  384,
			RemovalStrategy:     string(memory.StrategyFIFO),
			PersistToDisk:       true,
			PersistenceInterval: 300,
			SweepInterval:       60,
		},
		Embedder: EmbedderConfig{
			Provider:  "hash",
			CacheSize: 1024,
		},
		Log: LogConfig{
			Format: "console",
		},
	}
}

// Load reads a configuration file (JSON or YAML) over the defaults.
// An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to unmarshal JSON config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to unmarshal YAML config: %w", err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config format: %s (use .json or .yaml)", ext)
	}
	return cfg, nil
}

// Validate checks the configuration. Unknown strategies only warn because
// the store treats them as fifo.
func Validate(cfg Config) ValidationResult {
	res := ValidationResult{
		Valid:    true,
		Warnings: []string{},
		Errors:   []string{},
	}
	fail := func(format string, args ...any) {
		res.Valid = false
		res.Errors = append(res.Errors, fmt.Sprintf(format, args...))
	}

	s := cfg.Store
	if s.MaxItems <= 0 {
		fail("store.max_items must be positive, got %d", s.MaxItems)
	}
	if s.EmbeddingDimension <= 0 {
		fail("store.embedding_dimension must be positive, got %d", s.EmbeddingDimension)
	}
	if s.DefaultTTL < 0 {
		fail("store.default_ttl must not be negative, got %d", s.DefaultTTL)
	}
	if s.PersistenceInterval < 0 {
		fail("store.persistence_interval must not be negative, got %d", s.PersistenceInterval)
	}
	if s.SweepInterval < 0 {
		fail("store.sweep_interval must not be negative, got %d", s.SweepInterval)
	}
	switch memory.Strategy(s.RemovalStrategy) {
	case memory.StrategyFIFO, memory.StrategyLRU, memory.StrategyLFU, memory.StrategyTTL:
	default:
		res.Warnings = append(res.Warnings, fmt.Sprintf("unknown removal_strategy %q, falling back to fifo", s.RemovalStrategy))
	}
	if s.PersistToDisk && s.PersistenceInterval == 0 {
		res.Warnings = append(res.Warnings, "persistence_interval is 0; changes are only flushed on shutdown")
	}

	e := cfg.Embedder
	known := false
	for _, p := range embed.Providers {
		if e.Provider == p {
			known = true
			break
		}
	}
	if !known {
		fail("unknown embedder.provider %q (use one of %s)", e.Provider, strings.Join(embed.Providers, ", "))
	}
	if e.Provider == "plugin" && e.PluginPath == "" {
		fail("embedder.plugin_path is required for the plugin provider")
	}
	if e.CacheSize < 0 {
		fail("embedder.cache_size must not be negative, got %d", e.CacheSize)
	}
	if e.Provider == "hash" {
		res.Warnings = append(res.Warnings, "hash embedder only matches identical text; configure a model for semantic search")
	}

	switch cfg.Log.Format {
	case "", "console", "json":
	default:
		fail("unknown log.format %q (use console or json)", cfg.Log.Format)
	}

	return res
}

// StoreOptions converts the store section into memory options.
func (c Config) StoreOptions() memory.Options {
	return memory.Options{
		DefaultTTL:          c.Store.DefaultTTL,
		MaxItems:            c.Store.MaxItems,
		EmbeddingDimension:  c.Store.EmbeddingDimension,
		RemovalStrategy:     memory.Strategy(c.Store.RemovalStrategy),
		PersistToDisk:       c.Store.PersistToDisk,
		PersistenceInterval: time.Duration(c.Store.PersistenceInterval) * time.Second,
		SweepInterval:       time.Duration(c.Store.SweepInterval) * time.Second,
	}
}

// EmbedConfig converts the embedder section. apiKey comes from the settings table.
func (c Config) EmbedConfig(apiKey string) embed.Config {
	return embed.Config{
		Provider:   c.Embedder.Provider,
		Model:      c.Embedder.Model,
		BaseURL:    c.Embedder.BaseURL,
		APIKey:     apiKey,
		PluginPath: c.Embedder.PluginPath,
		Dimension:  c.Store.EmbeddingDimension,
		CacheSize:  c.Embedder.CacheSize,
	}
}

// DatabasePath returns the configured database, defaulting to ~/.mnemo/mnemo.db.
func (c Config) DatabasePath() string {
	if c.Database != "" {
		return c.Database
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".mnemo", "mnemo.db")
	}
	return filepath.Join(home, ".mnemo", "mnemo.db")
}

// Package config loads and validates docdex configuration.
// Configuration comes from .docdex.yaml in the docs root, with
// DOCDEX_* environment variables taking highest priority.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the per-corpus configuration file.
const ConfigFileName = ".docdex.yaml"

// DataDirName is the directory holding the manifest, cache, and index.
const DataDirName = ".docdex"

// DefaultTopK is the default number of search results.
const DefaultTopK = 5

// Config represents the complete docdex configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Indexing   IndexingConfig   `yaml:"indexing" json:"indexing"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Watch      WatchConfig      `yaml:"watch" json:"watch"`
	LogLevel   string           `yaml:"log_level" json:"log_level"`
}

// PathsConfig configures where documents and index data live.
type PathsConfig struct {
	// DocsDir is the document corpus root (default: "docs" under the
	// config root, or the root itself if no docs/ directory exists).
	DocsDir string `yaml:"docs_dir" json:"docs_dir"`

	// DataDir is where the manifest, embedding cache, and vector index
	// are persisted (default: <root>/.docdex).
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// IndexingConfig tunes the scan and chunking stages.
type IndexingConfig struct {
	// ChunkSize is the chunk window in tokens (default: 256).
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`

	// ChunkOverlap is the token overlap between neighboring chunks
	// (default: 50).
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`

	// MaxFileSize is the maximum document size in bytes (default: 10MB).
	// Larger documents are skipped with a warning.
	MaxFileSize int64 `yaml:"max_file_size" json:"max_file_size"`

	// Workers bounds concurrent embedding computation during an update
	// (default: 4).
	Workers int `yaml:"workers" json:"workers"`

	// Exclude lists path patterns to skip during scanning.
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedding backend ("static" is the built-in
	// deterministic hash embedder; external providers plug in via the
	// Embedder interface).
	Provider string `yaml:"provider" json:"provider"`

	// Dimensions is the embedding dimension (default: 384).
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// BatchSize is texts per embedding batch (default: 32).
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// CacheSize is the in-memory LRU size fronting the persistent
	// embedding cache (default: 1000).
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// SearchConfig configures query behavior.
type SearchConfig struct {
	// TopK is the default number of results returned (default: 5).
	TopK int `yaml:"top_k" json:"top_k"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	// Debounce is how long to coalesce file events before triggering a
	// re-scan (default: 2s).
	Debounce time.Duration `yaml:"debounce" json:"debounce"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Indexing: IndexingConfig{
			ChunkSize:    256,
			ChunkOverlap: 50,
			MaxFileSize:  10 * 1024 * 1024,
			Workers:      4,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Dimensions: 384,
			BatchSize:  32,
			CacheSize:  1000,
		},
		Search: SearchConfig{
			TopK: DefaultTopK,
		},
		Watch: WatchConfig{
			Debounce: 2 * time.Second,
		},
		LogLevel: "info",
	}
}

// Load reads configuration for the given root directory.
// Missing config file is not an error; defaults apply.
func Load(root string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(root, ConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyDefaults(cfg, root)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the root directory.
func (c *Config) Save(root string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(root, ConfigFileName), data, 0o644)
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Indexing.ChunkSize <= 0 {
		return fmt.Errorf("indexing.chunk_size must be positive, got %d", c.Indexing.ChunkSize)
	}
	if c.Indexing.ChunkOverlap < 0 || c.Indexing.ChunkOverlap >= c.Indexing.ChunkSize {
		return fmt.Errorf("indexing.chunk_overlap must be in [0, chunk_size), got %d", c.Indexing.ChunkOverlap)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	if c.Indexing.Workers <= 0 {
		return fmt.Errorf("indexing.workers must be positive, got %d", c.Indexing.Workers)
	}
	if c.Search.TopK <= 0 {
		return fmt.Errorf("search.top_k must be positive, got %d", c.Search.TopK)
	}
	return nil
}

// applyDefaults fills zero values after YAML parsing.
func applyDefaults(cfg *Config, root string) {
	def := Default()

	if cfg.Paths.DocsDir == "" {
		docs := filepath.Join(root, "docs")
		if info, err := os.Stat(docs); err == nil && info.IsDir() {
			cfg.Paths.DocsDir = docs
		} else {
			cfg.Paths.DocsDir = root
		}
	}
	if cfg.Paths.DataDir == "" {
		cfg.Paths.DataDir = filepath.Join(root, DataDirName)
	}
	if cfg.Indexing.ChunkSize == 0 {
		cfg.Indexing.ChunkSize = def.Indexing.ChunkSize
	}
	if cfg.Indexing.ChunkOverlap == 0 {
		cfg.Indexing.ChunkOverlap = def.Indexing.ChunkOverlap
	}
	if cfg.Indexing.MaxFileSize == 0 {
		cfg.Indexing.MaxFileSize = def.Indexing.MaxFileSize
	}
	if cfg.Indexing.Workers == 0 {
		cfg.Indexing.Workers = def.Indexing.Workers
	}
	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = def.Embeddings.Provider
	}
	if cfg.Embeddings.Dimensions == 0 {
		cfg.Embeddings.Dimensions = def.Embeddings.Dimensions
	}
	if cfg.Embeddings.BatchSize == 0 {
		cfg.Embeddings.BatchSize = def.Embeddings.BatchSize
	}
	if cfg.Embeddings.CacheSize == 0 {
		cfg.Embeddings.CacheSize = def.Embeddings.CacheSize
	}
	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = def.Search.TopK
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = def.Watch.Debounce
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
}

// applyEnvOverrides applies DOCDEX_* environment variable overrides.
// Env vars have highest priority, above both defaults and file config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DOCDEX_DOCS_DIR"); v != "" {
		cfg.Paths.DocsDir = v
	}
	if v := os.Getenv("DOCDEX_DATA_DIR"); v != "" {
		cfg.Paths.DataDir = v
	}
	if v := os.Getenv("DOCDEX_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DOCDEX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Indexing.Workers = n
		}
	}
	if v := os.Getenv("DOCDEX_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Embeddings.Dimensions = n
		}
	}
}

// ManifestPath returns the manifest snapshot location.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.Paths.DataDir, "manifest.json")
}

// CachePath returns the embedding cache database location.
func (c *Config) CachePath() string {
	return filepath.Join(c.Paths.DataDir, "embeddings.db")
}

// IndexPath returns the vector index location.
func (c *Config) IndexPath() string {
	return filepath.Join(c.Paths.DataDir, "vectors.hnsw")
}

// Package config loads and validates runtime configuration for the
// cache and search core: hardcoded defaults, then a project YAML
// file, then environment variables, highest precedence last.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aman-cerp/corpuscore/internal/model"
)

// Config is the complete runtime configuration.
type Config struct {
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Retention  RetentionConfig  `yaml:"retention" json:"retention"`
	Corpus     CorpusConfig     `yaml:"corpus" json:"corpus"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// StorageConfig configures where the cold store and disk cache live.
type StorageConfig struct {
	// DataDir holds the SQLite cold store file and the bbolt disk
	// cache file. Defaults to ~/.corpuscore.
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// DiskCacheSizeMB bounds the bbolt-backed disk cache.
	DiskCacheSizeMB int `yaml:"disk_cache_size_mb" json:"disk_cache_size_mb"`
}

// RetentionConfig configures how many versions are kept per resource
// type: default 3, overridable per ResourceType. LockTimeout bounds how
// long version.Manager waits to acquire a resource's lock before
// giving up with LockTimeout.
type RetentionConfig struct {
	DefaultKeepK int                        `yaml:"default_keep_k" json:"default_keep_k"`
	KeepKByType  map[model.ResourceType]int `yaml:"keep_k_by_type" json:"keep_k_by_type"`
	LockTimeout  string                     `yaml:"lock_timeout" json:"lock_timeout"`
}

// LockTimeoutDuration parses LockTimeout, falling back to
// version.DefaultLockTimeout (60s) on empty or invalid input.
func (r RetentionConfig) LockTimeoutDuration() time.Duration {
	if r.LockTimeout == "" {
		return 60 * time.Second
	}
	d, err := time.ParseDuration(r.LockTimeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// KeepKFor returns the configured retention depth for rt, falling back
// to DefaultKeepK and finally version.DefaultRetainK.
func (r RetentionConfig) KeepKFor(rt model.ResourceType) int {
	if k, ok := r.KeepKByType[rt]; ok && k > 0 {
		return k
	}
	if r.DefaultKeepK > 0 {
		return r.DefaultKeepK
	}
	return 3
}

// CorpusConfig configures default corpus creation behavior.
type CorpusConfig struct {
	// PreserveDiacriticsDefault is the default passed to
	// corpus.Manager.Create when a caller doesn't specify one
	// explicitly.
	PreserveDiacriticsDefault bool `yaml:"preserve_diacritics_default" json:"preserve_diacritics_default"`
}

// SearchConfig configures the search orchestrator's hot-reload cadence
// and default cascade mode.
type SearchConfig struct {
	// PollInterval is how often a search.Manager checks for
	// vocabulary_hash drift. Parsed from a duration string such as
	// "30s".
	PollInterval string `yaml:"poll_interval" json:"poll_interval"`
	// DefaultMode is the cascade mode used when a caller omits one.
	DefaultMode string `yaml:"default_mode" json:"default_mode"`
	// DefaultK bounds result counts when a caller doesn't specify one.
	DefaultK int `yaml:"default_k" json:"default_k"`
}

// PollIntervalDuration parses PollInterval, falling back to
// search.DefaultPollInterval's value (30s) on empty or invalid input.
func (s SearchConfig) PollIntervalDuration() time.Duration {
	if s.PollInterval == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(s.PollInterval)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// EmbeddingsConfig configures the embedder used by internal/semantic.
// "static" (embed.NewStaticEmbedder) is the only provider this module
// constructs itself; Model/Dimensions/BatchSize are carried for a host
// application wiring in its own embed.Embedder implementation.
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
}

// LoggingConfig configures structured log output.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"` // "json" or "console"
}

// NewConfig returns the hardcoded defaults.
func NewConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir:         defaultDataDir(),
			DiskCacheSizeMB: 512,
		},
		Retention: RetentionConfig{
			DefaultKeepK: 3,
			KeepKByType:  map[model.ResourceType]int{},
			LockTimeout:  "60s",
		},
		Corpus: CorpusConfig{
			PreserveDiacriticsDefault: false,
		},
		Search: SearchConfig{
			PollInterval: "30s",
			DefaultMode:  "smart",
			DefaultK:     10,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Model:      "",
			Dimensions: 0, // 0 lets the embedder report its own dimensionality
			BatchSize:  64,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".corpuscore")
	}
	return filepath.Join(home, ".corpuscore")
}

// Load builds a Config from defaults, an optional "corpuscore.yaml" in
// dir, and CORPUSCORE_* environment variables, in increasing order of
// precedence, then validates the result.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{"corpuscore.yaml", "corpuscore.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return c.loadYAML(path)
		}
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays non-zero fields of other onto c.
func (c *Config) mergeWith(other *Config) {
	if other.Storage.DataDir != "" {
		c.Storage.DataDir = other.Storage.DataDir
	}
	if other.Storage.DiskCacheSizeMB != 0 {
		c.Storage.DiskCacheSizeMB = other.Storage.DiskCacheSizeMB
	}

	if other.Retention.DefaultKeepK != 0 {
		c.Retention.DefaultKeepK = other.Retention.DefaultKeepK
	}
	for rt, k := range other.Retention.KeepKByType {
		c.Retention.KeepKByType[rt] = k
	}
	if other.Retention.LockTimeout != "" {
		c.Retention.LockTimeout = other.Retention.LockTimeout
	}

	if other.Corpus.PreserveDiacriticsDefault {
		c.Corpus.PreserveDiacriticsDefault = true
	}

	if other.Search.PollInterval != "" {
		c.Search.PollInterval = other.Search.PollInterval
	}
	if other.Search.DefaultMode != "" {
		c.Search.DefaultMode = other.Search.DefaultMode
	}
	if other.Search.DefaultK != 0 {
		c.Search.DefaultK = other.Search.DefaultK
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.Format != "" {
		c.Logging.Format = other.Logging.Format
	}
}

// applyEnvOverrides applies CORPUSCORE_* environment variables, the
// highest-precedence layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CORPUSCORE_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("CORPUSCORE_DISK_CACHE_SIZE_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Storage.DiskCacheSizeMB = n
		}
	}
	if v := os.Getenv("CORPUSCORE_RETENTION_KEEP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Retention.DefaultKeepK = n
		}
	}
	if v := os.Getenv("CORPUSCORE_RETENTION_LOCK_TIMEOUT"); v != "" {
		c.Retention.LockTimeout = v
	}
	if v := os.Getenv("CORPUSCORE_PRESERVE_DIACRITICS"); v != "" {
		c.Corpus.PreserveDiacriticsDefault = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("CORPUSCORE_SEARCH_POLL_INTERVAL"); v != "" {
		c.Search.PollInterval = v
	}
	if v := os.Getenv("CORPUSCORE_SEARCH_DEFAULT_MODE"); v != "" {
		c.Search.DefaultMode = v
	}
	if v := os.Getenv("CORPUSCORE_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("CORPUSCORE_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("CORPUSCORE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate rejects configurations that would silently misbehave.
func (c *Config) Validate() error {
	if c.Retention.DefaultKeepK < 1 {
		return fmt.Errorf("retention.default_keep_k must be at least 1, got %d", c.Retention.DefaultKeepK)
	}
	for rt, k := range c.Retention.KeepKByType {
		if k < 1 {
			return fmt.Errorf("retention.keep_k_by_type[%s] must be at least 1, got %d", rt, k)
		}
	}

	if _, err := time.ParseDuration(c.Search.PollIntervalRaw()); err != nil {
		return fmt.Errorf("search.poll_interval must be a valid duration, got %q: %w", c.Search.PollInterval, err)
	}

	if c.Retention.LockTimeout != "" {
		if _, err := time.ParseDuration(c.Retention.LockTimeout); err != nil {
			return fmt.Errorf("retention.lock_timeout must be a valid duration, got %q: %w", c.Retention.LockTimeout, err)
		}
	}

	validModes := map[string]bool{"exact": true, "prefix": true, "fuzzy": true, "semantic": true, "smart": true}
	if !validModes[strings.ToLower(c.Search.DefaultMode)] {
		return fmt.Errorf("search.default_mode must be one of exact/prefix/fuzzy/semantic/smart, got %s", c.Search.DefaultMode)
	}

	if c.Embeddings.Provider == "" {
		return fmt.Errorf("embeddings.provider must not be empty")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// PollIntervalRaw returns the configured interval string, defaulting
// to "30s" when empty, used by Validate to check parseability without
// masking an unparseable value behind PollIntervalDuration's fallback.
func (s SearchConfig) PollIntervalRaw() string {
	if s.PollInterval == "" {
		return "30s"
	}
	return s.PollInterval
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

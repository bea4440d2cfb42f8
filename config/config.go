package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for clustermatch.
type Config struct {
	Data      DataConfig      `yaml:"data"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DataConfig locates the static artifacts.
type DataConfig struct {
	Dir        string `yaml:"dir"`
	Model      string `yaml:"model"`      // doublestar pattern, newest match wins
	Population string `yaml:"population"` // doublestar pattern, newest match wins
	Reference  string `yaml:"reference"`  // doublestar pattern, newest match wins
	Delimiter  string `yaml:"delimiter"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider              string `yaml:"provider"`    // "openai", "mock"
	Model                 string `yaml:"model"`       // e.g., "text-embedding-3-large"
	APIKeyEnv             string `yaml:"api_key_env"` // Environment variable for API key
	BaseURL               string `yaml:"base_url"`
	Dimension             int    `yaml:"dimension"`
	TimeoutSeconds        int    `yaml:"timeout_seconds"`
	MaxRetries            int    `yaml:"max_retries"`
	ClientCacheSize       int    `yaml:"client_cache_size"`
	ClientCacheTTLMinutes int    `yaml:"client_cache_ttl_minutes"`
}

// IndexConfig holds vector index configuration.
type IndexConfig struct {
	Backend         string `yaml:"backend"` // "qdrant", "bolt", "memory"
	Collection      string `yaml:"collection"`
	URLEnv          string `yaml:"url_env"`
	APIKeyEnv       string `yaml:"api_key_env"`
	GRPCPort        int    `yaml:"grpc_port"`
	Path            string `yaml:"path"` // bolt database, relative to the data dir
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	MaxAttempts     int    `yaml:"max_attempts"`
	RetryIntervalMS int    `yaml:"retry_interval_ms"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text", "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			Dir:        ".",
			Model:      "welcome_survey_clustering_model_pipeline_v*.json",
			Population: "welcome_survey_simple_v*.csv",
			Reference:  "welcome_survey_name_and_description.json",
			Delimiter:  ";",
		},
		Embedding: EmbeddingConfig{
			Provider:              "openai",
			Model:                 "text-embedding-3-large",
			APIKeyEnv:             "OPENAI_API_KEY",
			Dimension:             3072,
			TimeoutSeconds:        10,
			MaxRetries:            2,
			ClientCacheSize:       16,
			ClientCacheTTLMinutes: 60,
		},
		Index: IndexConfig{
			Backend:         "qdrant",
			Collection:      "welcome_survey",
			URLEnv:          "QDRANT_URL",
			APIKeyEnv:       "QDRANT_API_KEY",
			GRPCPort:        6334,
			Path:            filepath.Join(".clustermatch", "index.db"),
			TimeoutSeconds:  10,
			MaxAttempts:     3,
			RetryIntervalMS: 200,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for clustermatch.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "clustermatch.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".clustermatch", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// LoadEnv loads a .env file from dir into the process environment.
// Variables that are already set keep their values; a missing file is not an error.
func LoadEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "openai", "mock":
	default:
		return fmt.Errorf("unsupported embedding provider: %s", c.Embedding.Provider)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.Embedding.Dimension)
	}
	switch c.Index.Backend {
	case "qdrant", "bolt", "memory":
	default:
		return fmt.Errorf("unsupported index backend: %s", c.Index.Backend)
	}
	if c.Index.Collection == "" {
		return fmt.Errorf("index collection must be set")
	}
	if c.Data.Delimiter == "" {
		return fmt.Errorf("data delimiter must be set")
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// EmbeddingTimeout returns the per-call embedding deadline.
func (c *Config) EmbeddingTimeout() time.Duration {
	return seconds(c.Embedding.TimeoutSeconds)
}

// IndexTimeout returns the per-call index deadline.
func (c *Config) IndexTimeout() time.Duration {
	return seconds(c.Index.TimeoutSeconds)
}

// RetryInterval returns the pause between index attempts.
func (c *Config) RetryInterval() time.Duration {
	if c.Index.RetryIntervalMS <= 0 {
		return 200 * time.Millisecond
	}
	return time.Duration(c.Index.RetryIntervalMS) * time.Millisecond
}

// ClientCacheTTL returns how long a per-credential client handle is reused.
func (c *Config) ClientCacheTTL() time.Duration {
	if c.Embedding.ClientCacheTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.Embedding.ClientCacheTTLMinutes) * time.Minute
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 10 * time.Second
	}
	return time.Duration(n) * time.Second
}

// DataDir resolves the data directory against root.
func (c *Config) DataDir(root string) string {
	if filepath.IsAbs(c.Data.Dir) {
		return c.Data.Dir
	}
	return filepath.Join(root, c.Data.Dir)
}

// IndexDBPath returns the path to the local index database.
func (c *Config) IndexDBPath(root string) string {
	if filepath.IsAbs(c.Index.Path) {
		return c.Index.Path
	}
	return filepath.Join(c.DataDir(root), c.Index.Path)
}

// EnsureIndexDir ensures the directory holding the local index exists.
func (c *Config) EnsureIndexDir(root string) error {
	return os.MkdirAll(filepath.Dir(c.IndexDBPath(root)), 0755)
}

// Package config loads navscout configuration from YAML with env-var
// overrides for secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"navscout/internal/browser"
	"navscout/internal/explore"
	"navscout/internal/oracle"
	"navscout/internal/probe"
)

// DefaultPath is where the CLI looks when --config is not given.
const DefaultPath = "navscout.yaml"

// Config holds all navscout configuration.
type Config struct {
	Browser browser.Config `yaml:"browser"`
	Probe   probe.Config   `yaml:"probe"`
	Oracle  OracleConfig   `yaml:"oracle"`
	Explore explore.Config `yaml:"explore"`
	Batch   BatchConfig    `yaml:"batch"`
	Store   StoreConfig    `yaml:"store"`
	Logging LoggingConfig  `yaml:"logging"`
}

// OracleConfig configures the classification oracle and its transport.
type OracleConfig struct {
	Model         string `yaml:"model"`
	APIKeyEnv     string `yaml:"api_key_env"`
	TimeoutMs     int    `yaml:"timeout_ms"`
	MaxRetries    int    `yaml:"max_retries"`
	BackoffBaseMs int    `yaml:"backoff_base_ms"`

	Client oracle.Config `yaml:"client"`

	// apiKey is resolved from the environment, never from the file.
	apiKey string
}

// BatchConfig configures the multi-site runner.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// StoreConfig configures the run artifact store.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Browser: browser.DefaultConfig(),
		Probe:   probe.DefaultConfig(),
		Oracle: OracleConfig{
			Model:         "gemini-2.5-flash",
			APIKeyEnv:     "GEMINI_API_KEY",
			TimeoutMs:     120000,
			MaxRetries:    3,
			BackoffBaseMs: 300,
			Client:        oracle.DefaultConfig(),
		},
		Explore: explore.DefaultConfig(),
		Batch:   BatchConfig{Concurrency: explore.DefaultConcurrency},
		Store:   StoreConfig{DatabasePath: "data/navscout.db"},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load reads the YAML file at path on top of defaults. A missing file is
// not an error; defaults plus env overrides are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	envName := c.Oracle.APIKeyEnv
	if envName == "" {
		envName = "GEMINI_API_KEY"
	}
	if key := os.Getenv(envName); key != "" {
		c.Oracle.apiKey = key
	}
	if path := os.Getenv("NAVSCOUT_DB"); path != "" {
		c.Store.DatabasePath = path
	}
}

// APIKey returns the oracle API key resolved from the environment.
func (c *Config) APIKey() string { return c.Oracle.apiKey }

// GeminiConfig assembles the transport configuration for the oracle.
func (c *Config) GeminiConfig() oracle.GeminiConfig {
	g := oracle.DefaultGeminiConfig(c.Oracle.apiKey)
	if c.Oracle.Model != "" {
		g.Model = c.Oracle.Model
	}
	if c.Oracle.TimeoutMs > 0 {
		g.Timeout = time.Duration(c.Oracle.TimeoutMs) * time.Millisecond
	}
	if c.Oracle.MaxRetries > 0 {
		g.MaxRetries = c.Oracle.MaxRetries
	}
	if c.Oracle.BackoffBaseMs > 0 {
		g.BackoffBase = time.Duration(c.Oracle.BackoffBaseMs) * time.Millisecond
	}
	return g
}

// Validate checks settings the CLI cannot recover from at runtime.
func (c *Config) Validate() error {
	if c.Oracle.apiKey == "" {
		env := c.Oracle.APIKeyEnv
		if env == "" {
			env = "GEMINI_API_KEY"
		}
		return fmt.Errorf("oracle api key missing: set %s", env)
	}
	if c.Batch.Concurrency < 0 {
		return fmt.Errorf("batch concurrency must be >= 0, got %d", c.Batch.Concurrency)
	}
	return nil
}

// Package config loads the semindex configuration file and applies
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dshills/semindex/internal/embedder"
	"github.com/dshills/semindex/internal/indexer"
	"github.com/dshills/semindex/internal/manager"
)

// Environment overrides
const (
	EnvDBPath = "SEMINDEX_DB_PATH"
	EnvVault  = "SEMINDEX_VAULT"
	EnvDebug  = "SEMINDEX_DEBUG"
	EnvConfig = "SEMINDEX_CONFIG"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool            `yaml:"debug"`
	Vault      VaultConfig     `yaml:"vault"`
	Storage    StorageConfig   `yaml:"storage"`
	Embedding  embedder.Config `yaml:"embedding"`
	Processing indexer.Config  `yaml:"processing"`
	Manager    manager.Config  `yaml:"manager"`
}

// VaultConfig selects the indexed directory and its documents.
type VaultConfig struct {
	Path       string   `yaml:"path"`
	Extensions []string `yaml:"extensions"`
	Exclude    []string `yaml:"exclude"`
	Watch      *bool    `yaml:"watch"`
}

// WatchOrDefault reports whether file events are followed; defaults to true when unset.
func (v *VaultConfig) WatchOrDefault() bool {
	if v.Watch != nil {
		return *v.Watch
	}
	return true
}

// StorageConfig holds the database location.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// Load reads the config file at path, applies environment overrides,
// expands paths and fills defaults. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	configDir := "."

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		configDir = filepath.Dir(path)
	}

	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)

	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	if cfg.Vault.Path != "" {
		cfg.Vault.Path = expandPath(cfg.Vault.Path, configDir)
	}
	return &cfg, nil
}

// ApplyEnv overrides file values with the environment.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.Storage.DatabasePath = v
	}
	if v := os.Getenv(EnvVault); v != "" {
		cfg.Vault.Path = v
	}
	if v := os.Getenv(embedder.EnvProvider); v != "" {
		cfg.Embedding.Provider = strings.ToLower(v)
	}
	switch cfg.Embedding.Provider {
	case embedder.ProviderOpenAI:
		if v := os.Getenv(embedder.EnvOpenAIAPIKey); v != "" && cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = v
		}
	case embedder.ProviderJina:
		if v := os.Getenv(embedder.EnvJinaAPIKey); v != "" && cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = v
		}
	}
	switch strings.ToLower(os.Getenv(EnvDebug)) {
	case "1", "true", "yes":
		cfg.Debug = true
	}
}

// ManagerConfig merges the processing section into the manager settings.
func (c *Config) ManagerConfig() manager.Config {
	m := c.Manager
	m.Processor = c.Processing
	return m
}

// VaultDir returns the vault path, or an error when none is configured.
func (c *Config) VaultDir() (string, error) {
	if c.Vault.Path == "" {
		return "", fmt.Errorf("no vault configured: set vault.path or %s", EnvVault)
	}
	return c.Vault.Path, nil
}

// expandPath converts a path to absolute. "~/" is the home directory;
// other relative paths are relative to configDir.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
		return path
	}
	if abs, err := filepath.Abs(filepath.Join(configDir, path)); err == nil {
		return abs
	}
	return path
}

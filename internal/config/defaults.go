package config

import (
	"github.com/dshills/semindex/internal/embedder"
	"github.com/dshills/semindex/internal/vault"
)

// DefaultDBPath is used when neither the file nor the environment sets one.
const DefaultDBPath = "~/.semindex/index.db"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = DefaultDBPath
	}
	if cfg.Vault.Extensions == nil {
		cfg.Vault.Extensions = append([]string(nil), vault.DefaultExtensions...)
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = embedder.DetectProvider()
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	cfg.Processing.ApplyDefaults()
	cfg.Manager.ApplyDefaults()
}

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dshills/semindex/internal/config"
	"github.com/dshills/semindex/internal/embedder"
	"github.com/dshills/semindex/internal/indexer"
	"github.com/dshills/semindex/internal/manager"
	"github.com/dshills/semindex/internal/storage"
	"github.com/dshills/semindex/internal/vault"
)

// app holds what every command needs.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *storage.SQLiteStorage
	vault   *vault.FSVault
	manager *manager.Manager
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if vaultFlag != "" {
		abs, err := filepath.Abs(vaultFlag)
		if err != nil {
			return nil, fmt.Errorf("resolve vault path: %w", err)
		}
		cfg.Vault.Path = abs
	}
	if dbFlag != "" {
		cfg.Storage.DatabasePath = dbFlag
	}
	if debugFlag {
		cfg.Debug = true
	}
	return cfg, nil
}

// newLogger writes to stderr; stdout is reserved for MCP and command output.
func newLogger(debug bool) (*zap.Logger, error) {
	var zcfg zap.Config
	if debug {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	return zcfg.Build()
}

// newApp wires storage, vault, provider and manager from the configuration.
func newApp(progress indexer.Progress) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	vaultDir, err := cfg.VaultDir()
	if err != nil {
		return nil, err
	}
	v, err := vault.NewFSVault(vaultDir, vault.Options{
		Extensions: cfg.Vault.Extensions,
		Exclude:    cfg.Vault.Exclude,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DatabasePath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	provider, err := embedder.New(cfg.Embedding)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create embedding provider: %w", err)
	}

	m, err := manager.New(manager.Options{
		Config:   cfg.ManagerConfig(),
		Store:    store,
		Vault:    v,
		Provider: provider,
		Logger:   logger,
		Progress: progress,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	logger.Debug("semindex ready",
		zap.String("vault", vaultDir),
		zap.String("db", cfg.Storage.DatabasePath),
		zap.String("driver", storage.DriverName),
		zap.String("provider", provider.ID()),
		zap.String("model", provider.Model()))

	return &app{cfg: cfg, logger: logger, store: store, vault: v, manager: m}, nil
}

func (a *app) Close() {
	if err := a.manager.Close(); err != nil {
		a.logger.Warn("close manager", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// Package backend opens the entry store selected by configuration.
package backend

import (
	"context"
	"fmt"
	"time"

	"tracker/internal/config"
	"tracker/internal/log"
	"tracker/internal/services"
	"tracker/internal/storage"
	"tracker/internal/storage/memory"
)

// Store is everything the server and worker need from a backend.
type Store interface {
	services.EntryStore
	RecordChange(ctx context.Context, c storage.Change) (bool, error)
	ListChanges(ctx context.Context, limit int) ([]storage.Change, error)
	Ping(ctx context.Context) error
	Close() error
}

// Type names a storage backend.
type Type string

const (
	SQLite Type = "sqlite"
	Memory Type = "memory"
)

func (t Type) String() string { return string(t) }

// IsValid returns true if the backend type is known.
func (t Type) IsValid() bool {
	switch t {
	case SQLite, Memory:
		return true
	default:
		return false
	}
}

// Config holds what backend creation needs.
type Config struct {
	Type Type

	// SQLite specific
	SQLiteDBPath string

	// Memory backend seed directory
	DataDirectory string

	Location *time.Location
}

// FromAppConfig converts the application config to backend config.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}
	t := Type(appConfig.DataBackend)
	if !t.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}
	loc, err := appConfig.Location()
	if err != nil {
		return Config{}, err
	}
	return Config{
		Type:          t,
		SQLiteDBPath:  appConfig.SQLiteDBPath,
		DataDirectory: appConfig.DataDir,
		Location:      loc,
	}, nil
}

// Validate validates the backend configuration.
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.Type == SQLite && c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required for sqlite backend")
	}
	return nil
}

// Factory creates stores and logs what it opened.
type Factory struct {
	logger *log.Logger
}

// NewFactory creates a factory that logs as the storage component.
func NewFactory(logger *log.Logger) *Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Factory{logger: logger.WithComponent(log.ComponentStorage)}
}

// Open creates the configured store.
func (f *Factory) Open(cfg Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case Memory:
		dir := cfg.DataDirectory
		if dir == "" {
			dir = "data"
		}
		store, err := memory.NewFromFiles(dir, cfg.Location)
		if err != nil {
			return nil, err
		}
		f.logger.Info("Initialized memory backend", "data_directory", dir)
		return store, nil
	default:
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, cfg.Location)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", cfg.SQLiteDBPath)
		return repo, nil
	}
}

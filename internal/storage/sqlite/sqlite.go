// Package sqlitestorage implements the storage.Backend interface on a SQLite
// file by wrapping the GORM backend. The only SQLite-specific concerns are
// opening the file and taking point-in-time snapshots.
package sqlitestorage

import (
	"fmt"
	"log/slog"

	"github.com/orbitkit/autopilot/internal/config"
	"github.com/orbitkit/autopilot/internal/database"
	gormstorage "github.com/orbitkit/autopilot/internal/storage/gorm"
)

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	cfg config.SQLiteConfig
	log *slog.Logger
}

// New creates a SQLite backend. The file is opened by Init.
func New(cfg config.SQLiteConfig, log *slog.Logger) *Backend {
	if log == nil {
		log = slog.Default()
	}
	return &Backend{cfg: cfg, log: log}
}

// Init opens the database file and initializes the embedded GORM backend.
func (b *Backend) Init() error {
	db, err := database.OpenSQLite(b.cfg.Path)
	if err != nil {
		return err
	}
	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:            db,
		Logger:        b.log,
		WriteInterval: gormstorage.DefaultWriteInterval,
	})
	b.log.Info("Using SQLite storage", "path", b.cfg.Path)
	return b.Backend.Init()
}

// Close flushes telemetry and closes the file.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	if err := b.Backend.Close(); err != nil {
		return err
	}
	sqlDB, err := b.DB().DB()
	if err != nil {
		return fmt.Errorf("accessing sql interface: %w", err)
	}
	return sqlDB.Close()
}

// Snapshot flushes pending telemetry and copies the database to path.
func (b *Backend) Snapshot(path string) error {
	if err := b.Flush(); err != nil {
		return err
	}
	took, err := database.Snapshot(b.DB(), path)
	if err != nil {
		return err
	}
	b.log.Debug("Snapshot written", "path", path, "duration", took)
	return nil
}

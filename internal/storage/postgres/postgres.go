// Package postgres implements the storage.Backend interface on PostgreSQL by
// wrapping the GORM backend.
package postgres

import (
	"log/slog"

	"github.com/orbitkit/autopilot/internal/config"
	"github.com/orbitkit/autopilot/internal/database"
	gormstorage "github.com/orbitkit/autopilot/internal/storage/gorm"
)

const maxOpenConns = 10

// Backend wraps the GORM backend with a Postgres connection.
type Backend struct {
	*gormstorage.Backend
	cfg config.PostgresConfig
	log *slog.Logger
}

// New creates a Postgres backend. The connection is made by Init.
func New(cfg config.PostgresConfig, log *slog.Logger) *Backend {
	if log == nil {
		log = slog.Default()
	}
	return &Backend{cfg: cfg, log: log}
}

// Init connects, validates the connection and initializes the embedded GORM backend.
func (b *Backend) Init() error {
	b.log.Debug("Connecting to Postgres", "host", b.cfg.Host, "port", b.cfg.Port, "database", b.cfg.Database)

	db, err := database.OpenPostgres(b.cfg.DSN())
	if err != nil {
		return err
	}
	if err := database.Ping(db, maxOpenConns); err != nil {
		return err
	}

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:            db,
		Logger:        b.log,
		WriteInterval: gormstorage.DefaultWriteInterval,
	})
	b.log.Info("Connected to Postgres")
	return b.Backend.Init()
}

func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	return b.Backend.Close()
}

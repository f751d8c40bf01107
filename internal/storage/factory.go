// internal/storage/factory.go
package storage

import (
	"fmt"
	"log/slog"

	"github.com/orbitkit/autopilot/internal/config"
	"github.com/orbitkit/autopilot/internal/storage/memory"
	"github.com/orbitkit/autopilot/internal/storage/postgres"
	sqlitestorage "github.com/orbitkit/autopilot/internal/storage/sqlite"
)

// NewBackend creates a storage backend based on configuration. The backend
// still needs Init before use.
func NewBackend(cfg config.StorageConfig, log *slog.Logger) (Backend, error) {
	switch cfg.Type {
	case "postgres":
		return postgres.New(cfg.Postgres, log), nil
	case "sqlite":
		return sqlitestorage.New(cfg.SQLite, log), nil
	case "memory", "":
		return memory.New(cfg.Memory), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

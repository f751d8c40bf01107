// internal/storage/storage_test.go
package storage_test

import (
	"path/filepath"
	"testing"

	"github.com/orbitkit/autopilot/internal/config"
	"github.com/orbitkit/autopilot/internal/model"
	"github.com/orbitkit/autopilot/internal/storage"
	gormstorage "github.com/orbitkit/autopilot/internal/storage/gorm"
	"github.com/orbitkit/autopilot/internal/storage/memory"
	"github.com/orbitkit/autopilot/internal/storage/postgres"
	sqlitestorage "github.com/orbitkit/autopilot/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface checks
var (
	_ storage.Backend = (*memory.Backend)(nil)
	_ storage.Backend = (*gormstorage.Backend)(nil)
	_ storage.Backend = (*sqlitestorage.Backend)(nil)
	_ storage.Backend = (*postgres.Backend)(nil)

	_ storage.Snapshotter = (*sqlitestorage.Backend)(nil)
)

func TestNewBackend_Types(t *testing.T) {
	tests := []struct {
		typ  string
		want any
	}{
		{"memory", &memory.Backend{}},
		{"", &memory.Backend{}},
		{"sqlite", &sqlitestorage.Backend{}},
		{"postgres", &postgres.Backend{}},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			b, err := storage.NewBackend(config.StorageConfig{Type: tt.typ}, nil)
			require.NoError(t, err)
			assert.IsType(t, tt.want, b)
		})
	}
}

func TestNewBackend_Unknown(t *testing.T) {
	_, err := storage.NewBackend(config.StorageConfig{Type: "mongo"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage type: mongo")
}

func TestSQLiteBackend_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := config.StorageConfig{Type: "sqlite", SQLite: config.SQLiteConfig{Path: filepath.Join(dir, "autopilot.db")}}

	first, err := storage.NewBackend(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, first.Init())
	require.NoError(t, first.SaveResume(&model.ResumeRecord{VehicleName: "Miner", Token: "OneWayCruise|75|2", Target: "[10,0,0]"}))
	require.NoError(t, first.RecordTelemetry(&model.TelemetrySample{FlightID: "f-1", Tick: 60}))
	require.NoError(t, first.Close())

	second, err := storage.NewBackend(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, second.Init())
	t.Cleanup(func() { second.Close() })

	rec, ok, err := second.LoadResume("Miner")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "OneWayCruise|75|2", rec.Token)

	sb := second.(*sqlitestorage.Backend)
	var count int64
	require.NoError(t, sb.DB().Model(&model.TelemetrySample{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "Close should flush queued telemetry")

	snap := filepath.Join(dir, "snapshot.db")
	require.NoError(t, sb.Snapshot(snap))
	assert.FileExists(t, snap)
}

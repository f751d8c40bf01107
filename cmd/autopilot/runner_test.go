package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/orbitkit/autopilot/internal/config"
	"github.com/orbitkit/autopilot/internal/controllers"
	"github.com/orbitkit/autopilot/internal/dispatcher"
	"github.com/orbitkit/autopilot/internal/flight"
	"github.com/orbitkit/autopilot/internal/handlers"
	"github.com/orbitkit/autopilot/internal/model"
	"github.com/orbitkit/autopilot/internal/parser"
	"github.com/orbitkit/autopilot/internal/storage"
	"github.com/orbitkit/autopilot/internal/storage/memory"
	sqlitestorage "github.com/orbitkit/autopilot/internal/storage/sqlite"
	"github.com/orbitkit/autopilot/pkg/core"
	"github.com/orbitkit/autopilot/pkg/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestParseSteps(t *testing.T) {
	n, err := parseSteps(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = parseSteps([]string{`"600"`})
	require.NoError(t, err)
	assert.Equal(t, 600, n)

	for _, bad := range []string{"0", "-3", "ten"} {
		_, err = parseSteps([]string{bad})
		assert.ErrorIs(t, err, parser.ErrInvalidArgument, bad)
	}
}

func TestNewVehicle(t *testing.T) {
	v := newVehicle()
	groups := v.Groups()
	assert.Len(t, groups[core.Forward], 3)
	assert.Len(t, groups[core.Backward], 3)
	assert.Len(t, groups[core.Left], 2)
	assert.Len(t, v.Gyros(), 1)
	assert.True(t, v.Dampeners())
}

// setupRunner wires the runner globals around backend the way setup does.
func setupRunner(t *testing.T, backend storage.Backend) {
	t.Helper()
	Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	vehicle = newVehicle()
	beacon = newBeacon()
	tickRate = 60
	storageBackend = backend
	handlerService = handlers.NewService(handlers.Dependencies{
		Vehicle:     vehicle,
		VehicleName: "test",
		Thrusters:   vehicle.Groups(),
		Gyros:       vehicle.Gyros(),
		Builder: controllers.Factory{
			Cruise:  config.DefaultCruiseConfig(),
			Aim:     config.DefaultAimConfig(),
			Targets: beacon,
		},
		Backend: backend,
		Logger:  Logger,
	}, flight.NewContext())

	d, err := dispatcher.New(Logger)
	require.NoError(t, err)
	registerLifecycleHandlers(d)
	handlerService.Register(d)
	bridge = host.New(d, "test")
}

func newMemoryBackend(t *testing.T) *memory.Backend {
	t.Helper()
	b := memory.New(config.MemoryConfig{})
	require.NoError(t, b.Init())
	return b
}

func TestStep(t *testing.T) {
	setupRunner(t, newMemoryBackend(t))

	assert.True(t, step(10), "idle autopilot steps nothing")
	assert.Zero(t, vehicle.Ticks())

	_, err := handlerService.Start(controllers.Request{
		Kind:         core.KindRetroCruise,
		Target:       r3.Vec{X: 0, Y: 0, Z: -5000},
		DesiredSpeed: 50,
	})
	require.NoError(t, err)

	assert.False(t, step(120))
	assert.Equal(t, 120, vehicle.Ticks())
	assert.Less(t, vehicle.Position().Z, 0.0, "the vessel moves toward the target")
}

func TestMatchFollowsBeacon(t *testing.T) {
	setupRunner(t, newMemoryBackend(t))

	_, err := call(":MATCH:")
	require.NoError(t, err)
	require.True(t, handlerService.Active())

	start := beacon.Position()
	assert.False(t, step(1800))
	assert.NotEqual(t, start, beacon.Position(), "the beacon coasts while the runner steps")

	rel := r3.Sub(vehicle.Velocity(), beacon.Velocity())
	assert.Less(t, r3.Norm(rel), 1.0)
	assert.Contains(t, handlerService.Status(), "SpeedMatch: relative speed")
}

func TestResume_DiscardsInvalidRecord(t *testing.T) {
	b := newMemoryBackend(t)
	require.NoError(t, b.SaveResume(&model.ResumeRecord{VehicleName: "test", Token: "RetroCruise|100|6", Target: "0,0,-1000"}))
	setupRunner(t, b)

	require.NoError(t, resume(context.Background()))

	assert.False(t, handlerService.Active())
	_, ok, err := b.LoadResume("test")
	require.NoError(t, err)
	assert.False(t, ok, "unusable record is cleared")
}

func TestResume_NothingStored(t *testing.T) {
	setupRunner(t, newMemoryBackend(t))

	require.NoError(t, resume(context.Background()))
	assert.False(t, handlerService.Active())
}

func TestSave_SnapshotsSQLite(t *testing.T) {
	dir := t.TempDir()
	b := sqlitestorage.New(config.SQLiteConfig{Path: filepath.Join(dir, "autopilot.db")}, nil)
	require.NoError(t, b.Init())
	t.Cleanup(func() { b.Close() })
	setupRunner(t, b)
	require.NoError(t, b.SaveResume(&model.ResumeRecord{VehicleName: "test", Token: "RetroCruise|100|2", Target: "0,0,-1000"}))

	logs := filepath.Join(dir, "logs")
	path, err := save(logs)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(logs, "autopilot-snapshot.db"), path)
	assert.FileExists(t, path)
}

func TestSave_MemoryHasNoSnapshot(t *testing.T) {
	setupRunner(t, newMemoryBackend(t))

	path, err := save(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, path)
}

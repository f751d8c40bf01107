package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/orbitkit/autopilot/internal/config"
	"github.com/orbitkit/autopilot/internal/controllers"
	"github.com/orbitkit/autopilot/internal/cruise"
	"github.com/orbitkit/autopilot/internal/dispatcher"
	"github.com/orbitkit/autopilot/internal/flight"
	"github.com/orbitkit/autopilot/internal/model"
	"github.com/orbitkit/autopilot/internal/parser"
	"github.com/orbitkit/autopilot/internal/sim"
	"github.com/orbitkit/autopilot/internal/storage"
	"github.com/orbitkit/autopilot/internal/storage/memory"
	"github.com/orbitkit/autopilot/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	dt          = 1.0 / 60
	vehicleName = "Kestrel"
)

// mockBackend implements storage.Backend for testing
type mockBackend struct {
	*memory.Backend
	clears int
}

func (b *mockBackend) ClearResume(vehicleName string) error {
	b.clears++
	return b.Backend.ClearResume(vehicleName)
}

var _ storage.Backend = (*mockBackend)(nil)

// panicController blows up on every Run.
type panicController struct {
	aborts int
}

func (p *panicController) Name() string               { return "Orient" }
func (p *panicController) Kind() core.Kind            { return core.KindOrient }
func (p *panicController) Run()                       { panic("boom") }
func (p *panicController) Abort()                     { p.aborts++ }
func (p *panicController) Status(sb *strings.Builder) { sb.WriteString("Orient: broken\n") }
func (p *panicController) Done() bool                 { return false }

type fixedBuilder struct {
	ctrl core.Controller
}

func (b fixedBuilder) New(controllers.Request, cruise.Deps) (core.Controller, error) {
	return b.ctrl, nil
}

func (b fixedBuilder) Resume(string, string, cruise.Deps) (core.Controller, error) {
	return b.ctrl, nil
}

func newVehicle() *sim.Vehicle {
	v := sim.NewVehicle(sim.VehicleConfig{Mass: 10000, Dampeners: true})
	v.AddThrusters(core.Forward, 2, 10000)
	v.AddThrusters(core.Backward, 2, 10000)
	for _, dir := range []core.Direction{core.Left, core.Right, core.Up, core.Down} {
		v.AddThrusters(dir, 1, 5000)
	}
	v.AddGyro(core.IdentityOrientation())
	return v
}

func newBackend(t *testing.T) *mockBackend {
	t.Helper()
	b := &mockBackend{Backend: memory.New(config.MemoryConfig{})}
	require.NoError(t, b.Init())
	return b
}

func newTestService(t *testing.T, v *sim.Vehicle, b storage.Backend, builder Builder) *Service {
	t.Helper()
	if builder == nil {
		builder = controllers.Factory{Cruise: config.DefaultCruiseConfig(), Aim: config.DefaultAimConfig()}
	}
	return NewService(Dependencies{
		Vehicle:           v,
		VehicleName:       vehicleName,
		Thrusters:         v.Groups(),
		Gyros:             v.Gyros(),
		Builder:           builder,
		Backend:           b,
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		TelemetryInterval: 60,
	}, flight.NewContext())
}

// fly ticks the service and steps the vehicle until the autopilot goes idle.
func fly(s *Service, v *sim.Vehicle, maxTicks int) {
	for i := 0; i < maxTicks; i++ {
		if s.Tick() {
			return
		}
		v.Step(dt)
	}
}

func TestService_CruiseToCompletionRecordsFlight(t *testing.T) {
	v := newVehicle()
	b := newBackend(t)
	s := newTestService(t, v, b, nil)

	id, err := s.Start(controllers.Request{
		Kind:         core.KindRetroCruise,
		Target:       r3.Vec{X: 0, Y: 0, Z: -10000},
		DesiredSpeed: 100,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.True(t, s.FlightContext().Get().Active())

	rec, ok, err := b.LoadResume(vehicleName)
	require.NoError(t, err)
	require.True(t, ok, "token should be persisted on start")
	assert.Equal(t, "RetroCruise|100|0", rec.Token)
	assert.Equal(t, "0,0,-10000", rec.Target)

	fly(s, v, 40000)

	require.False(t, s.Active(), "flight did not finish")
	assert.False(t, s.FlightContext().Get().Active())

	_, ok, err = b.LoadResume(vehicleName)
	require.NoError(t, err)
	assert.False(t, ok, "resume state must be cleared when the flight ends")

	flights := b.Flights()
	require.Len(t, flights, 1)
	f := flights[0].Flight
	assert.Equal(t, id, f.FlightID)
	assert.Equal(t, vehicleName, f.VehicleName)
	assert.Equal(t, "RetroCruise", f.Kind)
	assert.Equal(t, core.ReasonDestinationReached, f.Reason)
	assert.Equal(t, int(core.StageComplete), f.FinalStage)
	assert.Positive(t, f.Ticks)

	var summary model.FlightSummary
	require.NoError(t, json.Unmarshal(f.Summary, &summary))
	assert.Equal(t, []string{"None", "OrientAndAccelerate", "OrientAndDecelerate", "Complete"}, summary.Stages)
	assert.Less(t, summary.FinalDistance, 10.0)
	assert.Positive(t, summary.PlannedETA)
	assert.Positive(t, summary.SamplesWritten)
	assert.Len(t, flights[0].Telemetry, summary.SamplesWritten)
	for _, smp := range flights[0].Telemetry {
		assert.Equal(t, id, smp.FlightID)
		assert.Zero(t, smp.Tick%60)
	}

	assert.Contains(t, s.Status(), "Autopilot: idle")
	assert.Contains(t, s.Status(), "Destination Reached")
}

func TestService_RestoreResumesStoredStage(t *testing.T) {
	v := newVehicle()
	b := newBackend(t)
	require.NoError(t, b.SaveResume(&model.ResumeRecord{
		VehicleName: vehicleName,
		Token:       "RetroCruise|100|2",
		Target:      "0,0,-10000",
	}))
	s := newTestService(t, v, b, nil)

	id, err := s.Restore()
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.True(t, s.Active())
	assert.True(t, strings.HasPrefix(s.Status(), "RetroCruise: OrientAndAccelerate"), s.Status())
	assert.Equal(t, core.KindRetroCruise, s.FlightContext().Get().Kind)
}

func TestService_RestoreWithoutStateIsIdle(t *testing.T) {
	s := newTestService(t, newVehicle(), newBackend(t), nil)

	id, err := s.Restore()
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.False(t, s.Active())
}

func TestService_RestoreClearsInvalidToken(t *testing.T) {
	b := newBackend(t)
	require.NoError(t, b.SaveResume(&model.ResumeRecord{
		VehicleName: vehicleName,
		Token:       "RetroCruise|100|6",
		Target:      "0,0,-10000",
	}))
	s := newTestService(t, newVehicle(), b, nil)

	_, err := s.Restore()
	require.Error(t, err)
	assert.ErrorIs(t, err, cruise.ErrInvalidResumeState)
	assert.ErrorIs(t, err, ErrResumeDiscarded)
	assert.Equal(t, 1, b.clears)

	_, ok, err := b.LoadResume(vehicleName)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, s.Active())
}

func TestService_PanicAbortsWithFault(t *testing.T) {
	v := newVehicle()
	b := newBackend(t)
	ctrl := &panicController{}
	s := newTestService(t, v, b, fixedBuilder{ctrl: ctrl})

	_, err := s.Start(controllers.Request{Kind: core.KindOrient, Target: r3.Vec{X: 0, Y: 0, Z: -100}})
	require.NoError(t, err)

	assert.True(t, s.Tick(), "a panicking controller must leave the autopilot idle")
	assert.Equal(t, 1, ctrl.aborts)
	assert.False(t, s.Active())

	flights := b.Flights()
	require.Len(t, flights, 1)
	assert.Equal(t, "Fault: boom", flights[0].Flight.Reason)
	assert.Equal(t, int(core.StageAborted), flights[0].Flight.FinalStage)

	// a second tick has nothing to run
	assert.True(t, s.Tick())
	assert.Equal(t, 1, ctrl.aborts)
}

func TestService_StartReplacesActiveController(t *testing.T) {
	v := newVehicle()
	b := newBackend(t)
	s := newTestService(t, v, b, nil)

	first, err := s.Start(controllers.Request{Kind: core.KindOrient, Target: r3.Vec{X: 100, Y: 0, Z: 0}})
	require.NoError(t, err)
	second, err := s.Start(controllers.Request{Kind: core.KindRetroCruise, Target: r3.Vec{X: 0, Y: 0, Z: -5000}, DesiredSpeed: 50})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	flights := b.Flights()
	require.Len(t, flights, 1)
	assert.Equal(t, first, flights[0].Flight.FlightID)
	assert.Equal(t, core.ReasonAborted, flights[0].Flight.Reason)
	assert.Equal(t, int(core.StageAborted), flights[0].Flight.FinalStage)

	// replacing must not lose the new cruise's token
	rec, ok, err := b.LoadResume(vehicleName)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "RetroCruise|50|0", rec.Token)
	assert.Equal(t, second, s.FlightContext().Get().ID)
}

func TestService_Commands(t *testing.T) {
	v := newVehicle()
	b := newBackend(t)
	s := newTestService(t, v, b, nil)

	d, err := dispatcher.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	s.Register(d)

	for _, cmd := range []string{":CRUISE:", ":ONEWAY:", ":ORIENT:", ":RETRO:", ":MATCH:", ":ABORT:", ":RESUME:", ":STATUS:", ":TICK:"} {
		assert.True(t, d.HasHandler(cmd), cmd)
	}

	result, err := d.Dispatch(dispatcher.Event{Command: ":STATUS:"})
	require.NoError(t, err)
	assert.Equal(t, "Autopilot: idle\n", result)

	_, err = d.Dispatch(dispatcher.Event{Command: ":ABORT:"})
	assert.True(t, errors.Is(err, ErrNoFlight))

	_, err = d.Dispatch(dispatcher.Event{Command: ":CRUISE:", Args: []string{`"0,0,-1000"`}})
	assert.True(t, errors.Is(err, parser.ErrMissingArgument))

	_, err = d.Dispatch(dispatcher.Event{Command: ":CRUISE:", Args: []string{`"0,0,-1000"`, `"fast"`}})
	assert.True(t, errors.Is(err, parser.ErrInvalidArgument))

	// no target provider configured
	_, err = d.Dispatch(dispatcher.Event{Command: ":MATCH:"})
	assert.True(t, errors.Is(err, controllers.ErrUnsupportedKind))

	result, err = d.Dispatch(dispatcher.Event{Command: ":ONEWAY:", Args: []string{`"0,0,-1000"`, `"25"`}})
	require.NoError(t, err)
	id, ok := result.(string)
	require.True(t, ok)

	result, err = d.Dispatch(dispatcher.Event{Command: ":TICK:"})
	require.NoError(t, err)
	assert.Equal(t, false, result)

	result, err = d.Dispatch(dispatcher.Event{Command: ":STATUS:"})
	require.NoError(t, err)
	assert.Contains(t, result, "OneWayCruise")
	assert.Contains(t, result, "Flight: "+id[:8])

	result, err = d.Dispatch(dispatcher.Event{Command: ":ABORT:"})
	require.NoError(t, err)
	assert.Equal(t, id, result)

	flights := b.Flights()
	require.Len(t, flights, 1)
	assert.Equal(t, core.ReasonAborted, flights[0].Flight.Reason)
	assert.Equal(t, uint(1), flights[0].Flight.Ticks)
}

func TestService_ResumeCommand(t *testing.T) {
	v := newVehicle()
	b := newBackend(t)
	s := newTestService(t, v, b, nil)

	d, err := dispatcher.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	s.Register(d)

	// nothing stored, nothing given
	result, err := d.Dispatch(dispatcher.Event{Command: ":RESUME:"})
	require.NoError(t, err)
	assert.Equal(t, "", result)

	_, err = d.Dispatch(dispatcher.Event{Command: ":RESUME:", Args: []string{"OneWayCruise|40|3"}})
	assert.True(t, errors.Is(err, parser.ErrMissingArgument))

	_, err = d.Dispatch(dispatcher.Event{Command: ":RESUME:", Args: []string{"OneWayCruise|40|3", "0,0,-800"}})
	require.NoError(t, err)
	assert.True(t, s.Active())
	assert.True(t, strings.HasPrefix(s.Status(), "OneWayCruise: OrientAndDecelerate"), s.Status())

	rec, ok, err := b.LoadResume(vehicleName)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "OneWayCruise|40|3", rec.Token)
}

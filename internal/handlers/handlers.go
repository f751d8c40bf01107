package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/orbitkit/autopilot/internal/controllers"
	"github.com/orbitkit/autopilot/internal/cruise"
	"github.com/orbitkit/autopilot/internal/dispatcher"
	"github.com/orbitkit/autopilot/internal/flight"
	"github.com/orbitkit/autopilot/internal/influx"
	"github.com/orbitkit/autopilot/internal/model"
	"github.com/orbitkit/autopilot/internal/parser"
	"github.com/orbitkit/autopilot/internal/storage"
	"github.com/orbitkit/autopilot/internal/thrust"
	"github.com/orbitkit/autopilot/internal/vector"
	"github.com/orbitkit/autopilot/pkg/core"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrNoFlight is returned by commands that need an active controller.
	ErrNoFlight = errors.New("no active flight")
	// ErrResumeDiscarded is returned by Restore after it cleared a stored
	// record that could not be resumed.
	ErrResumeDiscarded = errors.New("resume state discarded")
)

// Builder creates controllers. controllers.Factory is the production implementation.
type Builder interface {
	New(req controllers.Request, deps cruise.Deps) (core.Controller, error)
	Resume(token, target string, deps cruise.Deps) (core.Controller, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Vehicle     core.Vehicle
	VehicleName string
	Thrusters   thrust.Groups
	Gyros       []core.Gyro
	Builder     Builder
	Backend     storage.Backend
	// Influx is optional; nil disables time-series output.
	Influx *influx.Manager
	Logger *slog.Logger
	// TelemetryInterval is the number of ticks between samples. 0 disables sampling.
	TelemetryInterval int
	Now               func() time.Time
}

// run is one controller's lifetime as seen by the service.
type run struct {
	ctrl     core.Controller
	flightID string
	kind     core.Kind
	target   string
	speed    float64
	started  time.Time
	samples  int
	fault    string
	ended    bool
}

// Service owns the single active controller. Every entry point takes the
// service lock, so controller callbacks always run with it held.
type Service struct {
	deps   Dependencies
	flight *flight.Context
	parser *parser.Parser
	log    *slog.Logger

	mu     sync.Mutex
	active *run
	last   string
}

// NewService creates a new handler service
func NewService(deps Dependencies, fc *flight.Context) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if fc == nil {
		fc = flight.NewContext()
	}
	return &Service{
		deps:   deps,
		flight: fc,
		parser: parser.NewParser(deps.Logger),
		log:    deps.Logger,
	}
}

// FlightContext returns the flight context the service reports into.
func (s *Service) FlightContext() *flight.Context {
	return s.flight
}

// Register adds the autopilot commands to d.
func (s *Service) Register(d *dispatcher.Dispatcher) {
	cruiseCmd := func(kind core.Kind) dispatcher.HandlerFunc {
		return func(e dispatcher.Event) (any, error) {
			req, err := s.parser.ParseCruise(kind, e.Args)
			if err != nil {
				return nil, err
			}
			return s.Start(req)
		}
	}
	d.Register(":CRUISE:", cruiseCmd(core.KindRetroCruise), dispatcher.Logged(), dispatcher.Guarded())
	d.Register(":ONEWAY:", cruiseCmd(core.KindOneWayCruise), dispatcher.Logged(), dispatcher.Guarded())

	d.Register(":ORIENT:", func(e dispatcher.Event) (any, error) {
		req, err := s.parser.ParseOrient(e.Args)
		if err != nil {
			return nil, err
		}
		return s.Start(req)
	}, dispatcher.Logged(), dispatcher.Guarded())

	d.Register(":RETRO:", func(dispatcher.Event) (any, error) {
		return s.Start(controllers.Request{Kind: core.KindRetrograde})
	}, dispatcher.Logged(), dispatcher.Guarded())

	d.Register(":MATCH:", func(dispatcher.Event) (any, error) {
		return s.Start(controllers.Request{Kind: core.KindSpeedMatch})
	}, dispatcher.Logged(), dispatcher.Guarded())

	d.Register(":ABORT:", func(dispatcher.Event) (any, error) {
		return s.Abort()
	}, dispatcher.Logged())

	d.Register(":RESUME:", func(e dispatcher.Event) (any, error) {
		token, target, explicit, err := s.parser.ParseResume(e.Args)
		if err != nil {
			return nil, err
		}
		if !explicit {
			return s.Restore()
		}
		return s.Resume(token, target)
	}, dispatcher.Logged(), dispatcher.Guarded())

	d.Register(":STATUS:", func(dispatcher.Event) (any, error) {
		return s.Status(), nil
	})

	// :TICK: arrives every frame, so it is not logged.
	d.Register(":TICK:", func(dispatcher.Event) (any, error) {
		return s.Tick(), nil
	})
}

// Start replaces any active controller with a new one built from req and
// returns the new flight ID.
func (s *Service) Start(req controllers.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := &run{kind: req.Kind, speed: req.DesiredSpeed}
	if req.Kind != core.KindRetrograde && req.Kind != core.KindSpeedMatch {
		r.target = vector.Format(req.Target)
	}
	return s.launch(r, func(deps cruise.Deps) (core.Controller, error) {
		return s.deps.Builder.New(req, deps)
	})
}

// Resume rebuilds a cruise from an explicit token and target.
func (s *Service) Resume(token, target string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumeLocked(token, target)
}

// Restore resumes the flight persisted for this vehicle, if any. A record that
// cannot be resumed is cleared and its error returned.
func (s *Service) Restore() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok, err := s.deps.Backend.LoadResume(s.deps.VehicleName)
	if err != nil {
		return "", fmt.Errorf("loading resume state: %w", err)
	}
	if !ok {
		return "", nil
	}

	id, err := s.resumeLocked(rec.Token, rec.Target)
	if err != nil {
		if clearErr := s.deps.Backend.ClearResume(s.deps.VehicleName); clearErr != nil {
			s.log.Error("Failed to clear resume state", "vehicle", s.deps.VehicleName, "error", clearErr)
		}
		return "", fmt.Errorf("%w: %q: %w", ErrResumeDiscarded, rec.Token, err)
	}
	s.log.Info("Resumed flight", "token", rec.Token, "target", rec.Target, "flight_id", id)
	return id, nil
}

func (s *Service) resumeLocked(token, target string) (string, error) {
	st, err := cruise.ParseResumeToken(token, target)
	if err != nil {
		return "", err
	}
	r := &run{kind: st.Kind, speed: st.DesiredSpeed, target: vector.Format(st.Target)}
	return s.launch(r, func(deps cruise.Deps) (core.Controller, error) {
		return s.deps.Builder.Resume(token, target, deps)
	})
}

func (s *Service) launch(r *run, build func(cruise.Deps) (core.Controller, error)) (string, error) {
	if s.active != nil {
		s.log.Info("Replacing active controller", "kind", s.active.kind.String())
		s.abort(s.active)
	}

	ctrl, err := build(cruise.Deps{
		Vehicle:     s.deps.Vehicle,
		Thrusters:   s.deps.Thrusters,
		Gyros:       s.deps.Gyros,
		Logger:      s.log,
		OnTerminate: func(_, reason string) { s.end(r, reason) },
		OnResume:    s.saveResume,
	})
	if err != nil {
		return "", err
	}

	r.ctrl = ctrl
	r.started = s.deps.Now().UTC()
	r.flightID = s.flight.Start(s.deps.VehicleName, r.kind, r.target, r.speed)
	s.active = r
	s.log.Info("Flight started", "flight_id", r.flightID, "kind", r.kind.String(), "target", r.target, "speed", r.speed)
	return r.flightID, nil
}

// Abort stops the active controller.
func (s *Service) Abort() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return "", ErrNoFlight
	}
	r := s.active
	s.abort(r)
	return r.flightID, nil
}

// abort ends r even when the controller's own Abort panics.
func (s *Service) abort(r *run) {
	func() {
		defer func() {
			if v := recover(); v != nil {
				s.log.Error("Controller abort panicked", "kind", r.kind.String(), "panic", v)
			}
		}()
		r.ctrl.Abort()
	}()
	s.end(r, core.ReasonAborted)
}

// Tick runs the active controller once. It reports whether the autopilot is idle afterwards.
func (s *Service) Tick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.active
	if r == nil {
		return true
	}
	tick := s.flight.Advance()
	s.runGuarded(r)
	if r.ended {
		return true
	}
	s.sample(r, tick)
	return false
}

func (s *Service) runGuarded(r *run) {
	defer func() {
		if v := recover(); v != nil {
			s.log.Error("Controller panicked", "kind", r.kind.String(), "panic", v, "stack", string(debug.Stack()))
			r.fault = fmt.Sprintf("Fault: %v", v)
			s.abort(r)
		}
	}()
	r.ctrl.Run()
}

// end records a finished flight. Only the first call for a run has any effect.
func (s *Service) end(r *run, reason string) {
	if r.ended {
		return
	}
	r.ended = true
	if r.fault != "" {
		reason = r.fault
	}

	info := s.flight.End()
	if s.active == r {
		s.active = nil
	}
	if err := s.deps.Backend.ClearResume(s.deps.VehicleName); err != nil {
		s.log.Error("Failed to clear resume state", "vehicle", s.deps.VehicleName, "error", err)
	}

	f := s.flightRecord(r, info, reason)
	if err := s.deps.Backend.RecordFlight(f); err != nil {
		s.log.Error("Failed to record flight", "flight_id", r.flightID, "error", err)
	}
	if s.deps.Influx != nil {
		if err := s.deps.Influx.WriteFlight(*f); err != nil {
			s.log.Debug("Failed to write flight point", "error", err)
		}
	}

	s.last = fmt.Sprintf("%s: %s (%s)", r.kind, reason, core.Stage(f.FinalStage))
	s.log.Info("Flight ended", "flight_id", r.flightID, "kind", r.kind.String(), "reason", reason, "ticks", info.Tick)
}

func (s *Service) flightRecord(r *run, info flight.Info, reason string) *model.Flight {
	summary := model.FlightSummary{
		FinalSpeed:     r3.Norm(s.deps.Vehicle.Velocity()),
		SamplesWritten: r.samples,
	}
	stage := finalStage(r, reason)
	if c, ok := r.ctrl.(*cruise.Cruise); ok {
		for _, st := range c.History() {
			summary.Stages = append(summary.Stages, st.String())
		}
		summary.FinalDistance = r3.Norm(r3.Sub(c.Target(), s.deps.Vehicle.Position()))
		summary.PlannedETA = finite(c.Plan().ETA)
		summary.PlannedPeak = finite(c.Plan().PeakSpeed)
	} else {
		summary.Stages = []string{stage.String()}
	}

	raw, err := json.Marshal(summary)
	if err != nil {
		s.log.Error("Failed to encode flight summary", "error", err)
	}

	return &model.Flight{
		FlightID:     r.flightID,
		VehicleName:  s.deps.VehicleName,
		Kind:         r.kind.String(),
		Target:       r.target,
		DesiredSpeed: r.speed,
		StartTime:    r.started,
		EndTime:      s.deps.Now().UTC(),
		Ticks:        info.Tick,
		FinalStage:   int(stage),
		Reason:       reason,
		Summary:      raw,
	}
}

// finalStage is the cruise's own terminal stage, or one derived from the
// reason for controllers without stages.
func finalStage(r *run, reason string) core.Stage {
	if c, ok := r.ctrl.(*cruise.Cruise); ok && r.fault == "" {
		return c.Stage()
	}
	switch {
	case r.fault != "", reason == core.ReasonAborted, reason == core.ReasonNoGyros,
		reason == core.ReasonNoThrusters, reason == core.ReasonNoVehicle, reason == core.ReasonOvershoot,
		reason == core.ReasonTargetLost:
		return core.StageAborted
	}
	return core.StageComplete
}

// finite maps values JSON cannot carry to zero.
func finite(x float64) float64 {
	if math.IsInf(x, 0) || math.IsNaN(x) {
		return 0
	}
	return x
}

func (s *Service) saveResume(token, target string) {
	rec := &model.ResumeRecord{
		VehicleName: s.deps.VehicleName,
		Token:       token,
		Target:      target,
		UpdatedAt:   s.deps.Now().UTC(),
	}
	if err := s.deps.Backend.SaveResume(rec); err != nil {
		s.log.Error("Failed to save resume state", "token", token, "error", err)
	}
}

func (s *Service) sample(r *run, tick uint) {
	every := s.deps.TelemetryInterval
	if every <= 0 || tick%uint(every) != 0 {
		return
	}

	pos, vel := s.deps.Vehicle.Position(), s.deps.Vehicle.Velocity()
	smp := model.TelemetrySample{
		Time:     s.deps.Now().UTC(),
		FlightID: r.flightID,
		Tick:     tick,
		Stage:    int(core.StageNone),
		Position: model.Vec3{X: pos.X, Y: pos.Y, Z: pos.Z},
		Velocity: model.Vec3{X: vel.X, Y: vel.Y, Z: vel.Z},
		Speed:    r3.Norm(vel),
	}
	if c, ok := r.ctrl.(*cruise.Cruise); ok {
		k := c.Kinematics()
		smp.Stage = int(c.Stage())
		smp.DistanceToTarget = k.DistanceToTarget
		smp.ClosingSpeed = k.ClosingSpeed
		smp.PerpendicularSpeed = k.PerpendicularSpeed
		smp.ThrustRatio = k.ThrustRatio
		smp.AimError = k.AimError
	}

	if err := s.deps.Backend.RecordTelemetry(&smp); err != nil {
		s.log.Error("Failed to record telemetry", "flight_id", r.flightID, "error", err)
		return
	}
	r.samples++
	if s.deps.Influx != nil {
		if err := s.deps.Influx.WriteSample(smp, s.deps.VehicleName, r.kind.String()); err != nil {
			s.log.Debug("Failed to write telemetry point", "error", err)
		}
	}
}

// Active reports whether a controller is running.
func (s *Service) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// Status renders the active controller's status block, or the idle line with
// the result of the last flight.
func (s *Service) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sb strings.Builder
	if s.active == nil {
		sb.WriteString("Autopilot: idle\n")
		if s.last != "" {
			fmt.Fprintf(&sb, "Last: %s\n", s.last)
		}
		return sb.String()
	}
	s.active.ctrl.Status(&sb)
	f := s.flight.Get()
	fmt.Fprintf(&sb, "Flight: %s tick %d\n", shortID(f.ID), f.Tick)
	return sb.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

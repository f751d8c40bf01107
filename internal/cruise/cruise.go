// Package cruise implements the staged accelerate, cruise and decelerate flight to
// a fixed point. One Cruise value lives for exactly one flight: it is built when a
// cruise command arrives (or restored from a resume token), ticked by Run until it
// reaches Complete or Aborted, and then dropped by the caller.
package cruise

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/orbitkit/autopilot/internal/aim"
	"github.com/orbitkit/autopilot/internal/cache"
	"github.com/orbitkit/autopilot/internal/config"
	"github.com/orbitkit/autopilot/internal/gyro"
	"github.com/orbitkit/autopilot/internal/thrust"
	"github.com/orbitkit/autopilot/internal/util"
	"github.com/orbitkit/autopilot/internal/vector"
	"github.com/orbitkit/autopilot/pkg/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidFlight is returned by New for options no flight can be built from.
var ErrInvalidFlight = errors.New("invalid flight")

// Gain applied to the difference between the acceleration the last command should
// have produced and the acceleration actually observed.
const correctionGain = 6.0

// Lateral velocity gain used to bias the retro burn facing.
const lateralFacingGain = 2.0

// Options describe one flight.
type Options struct {
	Kind         core.Kind // KindRetroCruise or KindOneWayCruise
	Target       r3.Vec
	DesiredSpeed float64
	// Stage is the stage to start in. StageNone for a fresh flight, the persisted
	// stage when resuming.
	Stage  core.Stage
	Cruise config.CruiseConfig
	Aim    config.AimConfig
}

// Deps are the collaborators a flight commands and reports to.
type Deps struct {
	Vehicle     core.Vehicle
	Thrusters   thrust.Groups
	Gyros       []core.Gyro
	Logger      core.Logger
	OnTerminate core.TerminateFunc
	OnResume    core.ResumeFunc
}

// Kinematics are the per-tick derived values, kept for status output and telemetry.
type Kinematics struct {
	DistanceToTarget   float64 `json:"distanceToTarget"`
	Speed              float64 `json:"speed"`
	ClosingSpeed       float64 `json:"closingSpeed"`
	PerpendicularSpeed float64 `json:"perpendicularSpeed"`
	StopDistance       float64 `json:"stopDistance"`
	TimeToStartDecel   float64 `json:"timeToStartDecel"`
	ETA                float64 `json:"eta"`
	ThrustRatio        float64 `json:"thrustRatio"`
	AimError           float64 `json:"aimError"`
}

// snapshot is the vehicle state read once at the start of a tick.
type snapshot struct {
	pos, vel r3.Vec
	o        core.Orientation
	natural  r3.Vec
	mass     float64
	caps     map[core.Direction]float64

	dir     r3.Vec // unit vector toward the target
	dist    float64
	speed   float64
	closing float64 // velocity component toward the target
	perp    r3.Vec  // velocity perpendicular to the target line
	drift   r3.Vec  // velocity to cancel before accelerating
}

// Cruise is the cruise state machine for a single flight.
type Cruise struct {
	kind         core.Kind
	target       r3.Vec
	desiredSpeed float64
	cfg          config.CruiseConfig
	dt           float64

	vehicle     core.Vehicle
	thrust      *thrust.Allocator
	gyros       *gyro.Pool
	aim         *aim.Controller
	log         core.Logger
	onTerminate core.TerminateFunc
	onResume    core.ResumeFunc
	metrics     *instruments

	capacity *cache.Periodic[map[core.Direction]float64]
	mass     *cache.Periodic[float64]

	stage      core.Stage
	history    []core.Stage
	fault      string
	reason     string
	setupDone  bool
	terminated bool
	dampeners  bool // dampener state at setup, restored on termination
	tick       int

	k          Kinematics
	profile    Profile
	planned    bool
	lastFacing r3.Vec
	hasLast    bool
	lastDist   float64
	lastClose  float64
	lastRatio  float64
	closed     bool // closing on the target since the accelerate stage began
}

// New builds a flight. Invalid options return an error wrapping ErrInvalidFlight.
// A vehicle without thrusters or functional gyros is not an error here: the flight
// terminates with a descriptive reason on its first Run and never commands anything.
func New(opts Options, deps Deps) (*Cruise, error) {
	if opts.Kind != core.KindRetroCruise && opts.Kind != core.KindOneWayCruise {
		return nil, fmt.Errorf("%w: %s is not a cruise kind", ErrInvalidFlight, opts.Kind)
	}
	if !(opts.DesiredSpeed > 0) || math.IsInf(opts.DesiredSpeed, 0) {
		return nil, fmt.Errorf("%w: desired speed must be positive, got %v", ErrInvalidFlight, opts.DesiredSpeed)
	}
	if !vector.Finite(opts.Target) {
		return nil, fmt.Errorf("%w: target is not finite", ErrInvalidFlight)
	}
	if !opts.Stage.Valid() || opts.Stage.Terminal() {
		return nil, fmt.Errorf("%w: cannot start in stage %s", ErrInvalidFlight, opts.Stage)
	}
	if deps.Vehicle == nil {
		return nil, fmt.Errorf("%w: no vehicle", ErrInvalidFlight)
	}

	ins, err := newInstruments()
	if err != nil {
		return nil, err
	}

	tickRate := opts.Cruise.TickRate
	if tickRate <= 0 {
		tickRate = 60
	}

	c := &Cruise{
		kind:         opts.Kind,
		target:       opts.Target,
		desiredSpeed: opts.DesiredSpeed,
		cfg:          opts.Cruise,
		dt:           1 / tickRate,
		vehicle:      deps.Vehicle,
		aim:          aim.New(opts.Aim),
		log:          deps.Logger,
		onTerminate:  deps.OnTerminate,
		onResume:     deps.OnResume,
		metrics:      ins,
		stage:        opts.Stage,
		history:      []core.Stage{opts.Stage},
	}
	// a flight stored in the accelerate stage was closing when it was saved
	c.closed = opts.Stage == core.StageOrientAndAccelerate
	if c.log == nil {
		c.log = core.NopLogger{}
	}

	c.thrust, err = thrust.New(deps.Thrusters, opts.Cruise.MaxThrustRatio)
	if err != nil {
		c.fault = core.ReasonNoThrusters
	}
	c.gyros, err = gyro.NewPool(deps.Gyros)
	if err != nil && c.fault == "" {
		c.fault = core.ReasonNoGyros
	}

	c.capacity = cache.NewPeriodic(opts.Cruise.CapacityRefreshTicks, c.readCapacity)
	c.mass = cache.NewPeriodic(opts.Cruise.MassRefreshTicks, c.vehicle.Mass)

	c.persist()
	return c, nil
}

func (c *Cruise) Name() string           { return c.kind.String() }
func (c *Cruise) Kind() core.Kind        { return c.kind }
func (c *Cruise) Stage() core.Stage      { return c.stage }
func (c *Cruise) Done() bool             { return c.terminated }
func (c *Cruise) Target() r3.Vec         { return c.target }
func (c *Cruise) DesiredSpeed() float64  { return c.desiredSpeed }
func (c *Cruise) Kinematics() Kinematics { return c.k }
func (c *Cruise) Plan() Profile          { return c.profile }

// Reason returns the termination reason, empty while the flight is running.
func (c *Cruise) Reason() string { return c.reason }

// History returns every stage the flight has been in, in order.
func (c *Cruise) History() []core.Stage {
	return append([]core.Stage(nil), c.history...)
}

// ResumeState returns the state a restart needs to continue this flight.
func (c *Cruise) ResumeState() ResumeState {
	return ResumeState{Kind: c.kind, DesiredSpeed: c.desiredSpeed, Stage: c.stage, Target: c.target}
}

// Run executes one control tick.
func (c *Cruise) Run() {
	if c.terminated {
		return
	}
	if c.fault != "" {
		c.finish(core.StageAborted, c.fault)
		return
	}

	c.tick++
	c.metrics.ticks.Add(context.Background(), 1)

	s, ok := c.observe()
	if !ok {
		c.log.Warn("skipping tick with non-finite vehicle state", "tick", c.tick)
		return
	}

	if !c.setupDone {
		c.setup()
	}

	if c.overshot(s) {
		return
	}

	switch c.stage {
	case core.StageNone:
		c.runNone(s)
	case core.StageCancelPerpendicularVelocity:
		c.runCancelPerpendicular(s)
	case core.StageOrientAndAccelerate:
		c.runAccelerate(s)
	case core.StageOrientAndDecelerate:
		c.runDecelerate(s)
	case core.StageDecelerateNoOrient:
		c.runDecelerateNoOrient(s)
	}

	c.lastDist = s.dist
	c.lastClose = s.closing
	c.hasLast = true
	c.metrics.ratio.Record(context.Background(), c.lastRatio)
}

// Abort ends the flight immediately.
func (c *Cruise) Abort() {
	c.finish(core.StageAborted, core.ReasonAborted)
}

func (c *Cruise) readCapacity() map[core.Direction]float64 {
	caps := make(map[core.Direction]float64, len(core.Directions))
	if c.thrust == nil {
		return caps
	}
	for _, dir := range core.Directions {
		caps[dir] = c.thrust.Capacity(dir)
	}
	return caps
}

func (c *Cruise) observe() (snapshot, bool) {
	s := snapshot{
		pos:     c.vehicle.Position(),
		vel:     c.vehicle.Velocity(),
		o:       c.vehicle.Orientation(),
		natural: c.vehicle.NaturalAcceleration(),
		mass:    c.mass.Tick(),
		caps:    c.capacity.Tick(),
	}
	if !vector.Finite(s.pos) || !vector.Finite(s.vel) {
		return s, false
	}
	if !vector.Finite(s.natural) {
		s.natural = r3.Vec{}
	}

	toTarget := r3.Sub(c.target, s.pos)
	s.dist = r3.Norm(toTarget)
	s.dir = vector.SafeUnit(toTarget)
	s.speed = r3.Norm(s.vel)
	s.closing = r3.Dot(s.vel, s.dir)
	s.perp = vector.Reject(s.vel, s.dir)
	s.drift = s.perp
	if s.closing < 0 {
		// moving away: all of it has to go before accelerating toward the target
		s.drift = s.vel
	}

	c.k.DistanceToTarget = s.dist
	c.k.Speed = s.speed
	c.k.ClosingSpeed = s.closing
	c.k.PerpendicularSpeed = r3.Norm(s.perp)
	return s, true
}

// accel returns the main burn group's full acceleration, unscaled by MaxRatio.
func (c *Cruise) accel(s snapshot, dir core.Direction) float64 {
	if s.mass <= 0 {
		return 0
	}
	return s.caps[dir] / s.mass
}

// brakeGroup is the group that slows the vehicle in the decelerate stages.
func (c *Cruise) brakeGroup() core.Direction {
	if c.kind == core.KindOneWayCruise {
		return core.Backward
	}
	return core.Forward
}

// capability returns the planning acceleration and the pessimistic deceleration.
func (c *Cruise) capability(s snapshot) (a, d float64) {
	maxRatio := c.thrust.MaxRatio()
	a = c.accel(s, core.Forward) * maxRatio
	brake := c.accel(s, c.brakeGroup()) * maxRatio
	d = brake * (2 - c.cfg.StopTimeAndDistanceMulti)

	// natural acceleration along the target line helps one burn and hurts the other
	g := r3.Dot(s.natural, s.dir)
	a = math.Max(a+g, 0)
	d = math.Max(d-g, 0)
	return a, d
}

func (c *Cruise) perpThreshold() float64 {
	return c.cfg.MaxInitialPerpendicularVelocity * c.desiredSpeed / 100
}

func (c *Cruise) aligned(res aim.Result) bool {
	return res.Error <= c.cfg.AlignToleranceDeg*math.Pi/180
}

func (c *Cruise) setup() {
	c.thrust.EnableAll(true)
	if c.kind == core.KindRetroCruise && c.cfg.DeactivateReverseThrust {
		c.thrust.EnableGroup(core.Backward, false)
	}
	c.dampeners = c.vehicle.Dampeners()
	c.setDampeners(false)
	c.setupDone = true
	c.log.Debug("flight setup", "kind", c.kind.String(), "stage", c.stage.String(), "dampeners", c.dampeners)
}

// overshot aborts the flight when the distance grew while the vehicle was closing.
func (c *Cruise) overshot(s snapshot) bool {
	if c.stage != core.StageOrientAndAccelerate && c.stage != core.StageOrientAndDecelerate {
		return false
	}
	if !c.hasLast || c.lastClose <= 0 || s.dist <= c.lastDist+c.cfg.OvershootTolerance {
		return false
	}
	if c.cfg.OvershootPolicy == config.OvershootContinue {
		c.log.Warn("distance to target increased", "stage", c.stage.String(), "distance", s.dist, "last", c.lastDist)
		return false
	}
	c.log.Error("overshoot detected", "stage", c.stage.String(), "distance", s.dist, "last", c.lastDist)
	c.finish(core.StageAborted, core.ReasonOvershoot)
	return true
}

// orient points the vehicle at facing through the active gyro. It returns false
// when the gyro pool is exhausted, in which case the flight has been aborted.
func (c *Cruise) orient(s snapshot, facing r3.Vec) (aim.Result, bool) {
	g, err := c.gyros.Current()
	if err != nil {
		c.log.Error("orientation failed", "error", err)
		c.finish(core.StageAborted, core.ReasonNoGyros)
		return aim.Result{}, false
	}
	res := c.aim.Orient(facing, g, s.o)
	c.k.AimError = res.Error
	if !vector.IsZero(facing) {
		c.lastFacing = facing
	}
	return res, true
}

func (c *Cruise) runNone(s snapshot) {
	drift := r3.Norm(s.drift)
	if drift > c.perpThreshold() {
		c.log.Info("cancelling perpendicular velocity", "drift", drift, "threshold", c.perpThreshold())
		c.setStage(core.StageCancelPerpendicularVelocity)
		return
	}
	c.setStage(core.StageOrientAndAccelerate)
}

func (c *Cruise) runCancelPerpendicular(s snapshot) {
	drift := r3.Norm(s.drift)
	if drift <= c.perpThreshold() {
		c.setStage(core.StageOrientAndAccelerate)
		return
	}

	res, ok := c.orient(s, r3.Scale(-1, s.drift))
	if !ok {
		return
	}

	ratio := 0.0
	if fwd := c.accel(s, core.Forward); c.aligned(res) && fwd > 0 {
		ratio = util.Clamp(drift/fwd, 0, c.thrust.MaxRatio())
	}
	c.setBurn(core.Forward, ratio)
}

func (c *Cruise) runAccelerate(s snapshot) {
	a, d := c.capability(s)
	if !c.planned || c.tick%max(c.cfg.PlanRefreshTicks, 1) == 0 {
		c.replan(s, a, d)
	}

	tts := timeToStartDecel(s.dist, s.closing, d)
	c.k.TimeToStartDecel = tts
	c.k.StopDistance = stopDistance(math.Max(s.closing, 0), d)

	if s.closing > c.cfg.CompletionSpeed {
		c.closed = true
	} else if c.closed && c.hasLast && s.closing <= 0 && s.speed > c.cfg.CompletionSpeed {
		c.log.Info("no longer closing, dampening", "distance", s.dist, "speed", s.speed)
		c.setStage(core.StageDecelerateNoOrient)
		return
	}

	res, ok := c.orient(s, s.dir)
	if !ok {
		return
	}

	if tts <= c.cfg.DecelerationMargin && s.speed > c.perpThreshold() {
		c.log.Info("starting deceleration", "distance", s.dist, "closing", s.closing, "timeToStartDecel", tts)
		c.setStage(core.StageOrientAndDecelerate)
		return
	}

	ratio := 0.0
	if fwd := c.accel(s, core.Forward); fwd > 0 && c.aligned(res) {
		speedDelta := c.desiredSpeed - s.closing
		expected := c.lastRatio * fwd
		observed := expected
		if c.hasLast {
			observed = (s.closing - c.lastClose) / c.dt
		}
		desiredAccel := speedDelta + (expected-observed)*correctionGain
		ratio = util.Clamp(desiredAccel/fwd, 0, c.thrust.MaxRatio())
	}
	c.setBurn(core.Forward, ratio)
	c.correctLateral(s)
}

func (c *Cruise) replan(s snapshot, a, d float64) {
	c.profile = planProfile(math.Max(s.closing, 0), c.desiredSpeed, a, d, s.dist, c.cfg.DecelerationMargin)
	if c.cfg.IncludeLateralInPlan && a > 0 {
		extra := r3.Norm(s.perp) / a
		c.profile.AccelTime += extra
		c.profile.ETA += extra
	}
	c.k.ETA = c.profile.ETA
	c.planned = true
}

func (c *Cruise) runDecelerate(s snapshot) {
	if s.speed <= c.cfg.CompletionSpeed {
		c.complete(s)
		return
	}
	if s.closing <= 0 {
		c.log.Info("no longer closing, dampening", "distance", s.dist, "speed", s.speed)
		c.setStage(core.StageDecelerateNoOrient)
		return
	}

	_, d := c.capability(s)
	tts := timeToStartDecel(s.dist, s.closing, d)
	c.k.TimeToStartDecel = tts
	c.k.StopDistance = stopDistance(s.closing, d)
	if d > 0 {
		c.k.ETA = s.closing / d
	}

	if tts > 2*c.cfg.DecelerationMargin {
		c.log.Info("deceleration started early, accelerating again", "timeToStartDecel", tts)
		c.setStage(core.StageOrientAndAccelerate)
		return
	}

	facing := s.dir
	if c.kind == core.KindRetroCruise {
		gain := 0.0
		if c.cfg.LateralCorrection {
			gain = lateralFacingGain
		}
		facing = r3.Scale(-1, r3.Add(r3.Scale(s.closing, s.dir), r3.Scale(gain, s.perp)))
	}
	res, ok := c.orient(s, facing)
	if !ok {
		return
	}

	group := c.brakeGroup()
	ratio := util.Clamp(-tts+c.thrust.MaxRatio(), 0, c.thrust.MaxRatio())
	if b := c.accel(s, group); b > 0 {
		// never brake through zero closing speed within one tick
		ratio = math.Min(ratio, s.closing/(b*c.dt))
	}
	if !c.aligned(res) {
		ratio = 0
	}

	if ratio >= 1 && c.cfg.PreferDampeners {
		c.setBurn(group, 0)
		c.setDampeners(true)
		c.lastRatio = ratio
		c.k.ThrustRatio = ratio
	} else {
		c.setDampeners(false)
		c.setBurn(group, ratio)
	}
	c.correctLateral(s)
}

func (c *Cruise) runDecelerateNoOrient(s snapshot) {
	if s.speed <= c.cfg.CompletionSpeed {
		c.complete(s)
		return
	}
	c.setDampeners(true)
	c.k.TimeToStartDecel = math.Inf(1)
	facing := c.lastFacing
	if vector.IsZero(facing) {
		facing = r3.Scale(-1, s.vel)
	}
	c.orient(s, facing)
}

// correctLateral cancels velocity perpendicular to the target line with the side groups.
func (c *Cruise) correctLateral(s snapshot) {
	if !c.cfg.LateralCorrection || s.mass <= 0 {
		return
	}
	want := vector.ToLocal(r3.Scale(-1, s.perp), s.o)
	right, left := sideRatios(want.X, s.caps[core.Right], s.caps[core.Left], s.mass)
	up, down := sideRatios(want.Y, s.caps[core.Up], s.caps[core.Down], s.mass)
	c.thrust.SetLateral(left, right, up, down)
}

// sideRatios splits a wanted velocity change over one second between the group
// pushing positive and the group pushing negative along an axis.
func sideRatios(want, posCap, negCap, mass float64) (pos, neg float64) {
	switch {
	case want > 0 && posCap > 0:
		pos = want * mass / posCap
	case want < 0 && negCap > 0:
		neg = -want * mass / negCap
	}
	return pos, neg
}

func (c *Cruise) setBurn(dir core.Direction, ratio float64) {
	c.thrust.SetRatio(dir, ratio)
	c.lastRatio = util.Clamp(ratio, 0, c.thrust.MaxRatio())
	c.k.ThrustRatio = c.lastRatio
}

func (c *Cruise) setDampeners(on bool) {
	if c.vehicle.Dampeners() != on {
		c.vehicle.SetDampeners(on)
	}
}

func (c *Cruise) complete(s snapshot) {
	reason := core.ReasonTerminated
	if s.dist <= c.cfg.ArrivalDistance {
		reason = core.ReasonDestinationReached
	}
	c.finish(core.StageComplete, reason)
}

// setStage moves to a new stage and applies the side effects of the change.
func (c *Cruise) setStage(to core.Stage) {
	from := c.stage
	effects := transition(from, to)
	if len(effects) == 0 {
		return
	}
	c.stage = to
	c.history = append(c.history, to)
	if to == core.StageOrientAndAccelerate {
		c.closed = false
	}
	c.log.Debug("stage change", "from", from.String(), "to", to.String(), "tick", c.tick)

	for _, e := range effects {
		switch e {
		case effectResetOverrides:
			if c.thrust != nil {
				c.thrust.ResetAllOverrides()
			}
			c.lastRatio = 0
			c.k.ThrustRatio = 0
		case effectFlushAim:
			c.aim.Flush()
		case effectPersist:
			c.persist()
		case effectCount:
			c.metrics.transitions.Add(context.Background(), 1, metric.WithAttributes(
				attribute.String("from", from.String()),
				attribute.String("to", to.String()),
			))
		}
	}
}

func (c *Cruise) persist() {
	if c.onResume == nil || c.stage.Terminal() {
		return
	}
	c.onResume(FormatResumeToken(c.kind, c.desiredSpeed, c.stage), vector.Format(c.target))
}

// finish moves to a terminal stage, restores the vehicle and raises the termination
// callback. Only the first call has any effect.
func (c *Cruise) finish(stage core.Stage, reason string) {
	if c.terminated {
		return
	}
	c.setStage(stage)

	if c.setupDone {
		c.setDampeners(c.dampeners)
		c.thrust.ResetAllOverrides()
		c.thrust.EnableAll(true)
		c.gyros.Release()
	}
	c.lastRatio = 0
	c.k.ThrustRatio = 0

	c.terminated = true
	c.reason = reason
	c.log.Info("flight terminated", "kind", c.kind.String(), "stage", stage.String(), "reason", reason, "ticks", c.tick)
	if c.onTerminate != nil {
		c.onTerminate(c.Name(), reason)
	}
}

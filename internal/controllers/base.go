package controllers

import (
	"math"

	"github.com/orbitkit/autopilot/internal/aim"
	"github.com/orbitkit/autopilot/internal/config"
	"github.com/orbitkit/autopilot/internal/cruise"
	"github.com/orbitkit/autopilot/internal/gyro"
	"github.com/orbitkit/autopilot/internal/thrust"
	"github.com/orbitkit/autopilot/internal/util"
	"github.com/orbitkit/autopilot/pkg/core"
	"gonum.org/v1/gonum/spatial/r3"
)

// base carries what the single-stage controllers share: actuators, aim,
// the one-shot termination and vehicle restoration.
type base struct {
	kind        core.Kind
	cfg         config.CruiseConfig
	vehicle     core.Vehicle
	thrust      *thrust.Allocator // nil when the controller needs no thrust
	gyros       *gyro.Pool
	aim         *aim.Controller
	log         core.Logger
	onTerminate core.TerminateFunc
	needThrust  bool

	fault     string
	setupDone bool
	done      bool
	reason    string
	dampeners bool
	ticks     int
	aimError  float64
	ratio     float64
}

func newBase(kind core.Kind, f Factory, deps cruise.Deps, needThrust bool) *base {
	b := &base{
		kind:        kind,
		cfg:         f.Cruise,
		vehicle:     deps.Vehicle,
		aim:         aim.New(f.Aim),
		log:         deps.Logger,
		onTerminate: deps.OnTerminate,
		needThrust:  needThrust,
	}
	if b.log == nil {
		b.log = core.NopLogger{}
	}
	if b.vehicle == nil {
		b.fault = core.ReasonNoVehicle
		return b
	}

	var err error
	if b.thrust, err = thrust.New(deps.Thrusters, f.Cruise.MaxThrustRatio); err != nil && needThrust {
		b.fault = core.ReasonNoThrusters
	}
	if b.gyros, err = gyro.NewPool(deps.Gyros); err != nil && b.fault == "" {
		b.fault = core.ReasonNoGyros
	}
	return b
}

func (b *base) Name() string    { return b.kind.String() }
func (b *base) Kind() core.Kind { return b.kind }
func (b *base) Done() bool      { return b.done }
func (b *base) Reason() string  { return b.reason }

// Abort ends the controller immediately.
func (b *base) Abort() {
	b.finish(core.ReasonAborted)
}

// begin runs the per-tick preamble. It returns false when the tick must not command anything.
func (b *base) begin(setup func()) bool {
	if b.done {
		return false
	}
	if b.fault != "" {
		b.finish(b.fault)
		return false
	}
	b.ticks++
	if !b.setupDone {
		b.dampeners = b.vehicle.Dampeners()
		if b.needThrust {
			b.thrust.EnableAll(true)
		}
		if setup != nil {
			setup()
		}
		b.setupDone = true
	}
	return true
}

func (b *base) orient(facing r3.Vec) (aim.Result, bool) {
	g, err := b.gyros.Current()
	if err != nil {
		b.log.Error("orientation failed", "kind", b.kind.String(), "error", err)
		b.finish(core.ReasonNoGyros)
		return aim.Result{}, false
	}
	res := b.aim.Orient(facing, g, b.vehicle.Orientation())
	b.aimError = res.Error
	return res, true
}

// burn commands the forward group to remove speed m/s along the facing within a
// second. One tick therefore never removes more than speed.
func (b *base) burn(speed float64, aligned bool) {
	ratio := 0.0
	mass := b.vehicle.Mass()
	if fwd := b.thrust.Capacity(core.Forward); aligned && fwd > 0 && mass > 0 {
		ratio = util.Clamp(speed*mass/fwd, 0, b.thrust.MaxRatio())
	}
	b.thrust.SetForwardRatio(ratio)
	b.ratio = ratio
}

func (b *base) aligned(res aim.Result) bool {
	return res.Error <= b.cfg.AlignToleranceDeg*math.Pi/180
}

func (b *base) setDampeners(on bool) {
	if b.vehicle.Dampeners() != on {
		b.vehicle.SetDampeners(on)
	}
}

func (b *base) finish(reason string) {
	if b.done {
		return
	}
	if b.setupDone {
		b.setDampeners(b.dampeners)
		if b.needThrust {
			b.thrust.ResetAllOverrides()
			b.thrust.EnableAll(true)
		}
		b.gyros.Release()
	}
	b.done = true
	b.reason = reason
	b.ratio = 0
	b.log.Info("controller terminated", "kind", b.kind.String(), "reason", reason, "ticks", b.ticks)
	if b.onTerminate != nil {
		b.onTerminate(b.Name(), reason)
	}
}

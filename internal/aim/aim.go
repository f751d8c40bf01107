// Package aim converts a desired facing vector into gyro rate commands.
//
// There are no gain constants tied to the vehicle's mass or rotational inertia.
// Each axis keeps a tiny model of its own motion (last angle, last movement per
// tick, largest observed change in movement) and brakes once the estimated ticks
// needed to stop exceed the ticks left to reach the target.
package aim

import (
	"math"

	"github.com/orbitkit/autopilot/internal/config"
	"github.com/orbitkit/autopilot/internal/util"
	"github.com/orbitkit/autopilot/internal/vector"
	"github.com/orbitkit/autopilot/pkg/core"
	"gonum.org/v1/gonum/spatial/r3"
)

const degToRad = math.Pi / 180

// Result describes one Orient call.
type Result struct {
	// Error is the angle in radians between the vehicle's forward axis and the desired direction.
	Error float64
	// OnTarget is true when every axis is inside the error and velocity thresholds.
	OnTarget bool
	// Released is true when the gyro override was handed back this tick.
	Released bool
}

// axis tracks one rotation axis between ticks.
type axis struct {
	lastAngle    float64
	lastMovement float64
	maxDecel     float64
	braking      bool
	onTarget     bool
}

func (a *axis) reset(angle float64) {
	*a = axis{lastAngle: angle}
}

func (a *axis) update(angle float64, p params) {
	prev := a.lastAngle
	moved := math.Abs(prev - angle)
	closing := math.Abs(angle) < math.Abs(prev)

	a.braking = false
	a.onTarget = false

	if closing {
		decel := math.Abs(a.lastMovement - moved)
		if decel > a.maxDecel {
			a.maxDecel = decel
		}
		rate := decel
		if p.useMaxDecel {
			rate = a.maxDecel
		}

		ticksToTarget := math.Inf(1)
		if moved > 0 {
			ticksToTarget = math.Abs(angle) / moved
		}
		ticksToStop := 0.0
		if rate > 0 {
			ticksToStop = moved / rate
		}
		a.braking = ticksToStop > ticksToTarget
		a.lastMovement = moved
	} else {
		// Not closing: forget the deceleration model and treat the axis as at rest.
		a.maxDecel = 0
		a.lastMovement = 0
	}

	if math.Abs(angle) < p.errorThreshold {
		a.braking = true
		if moved < p.velocityThreshold {
			a.onTarget = true
		}
	}

	a.lastAngle = angle
}

// params is AimConfig converted to radians.
type params struct {
	maxRate           float64
	amplifyThreshold  float64
	errorThreshold    float64
	velocityThreshold float64
	onTargetTicks     int
	useMaxDecel       bool
}

func newParams(cfg config.AimConfig) params {
	rpm := cfg.GyroMaxRPM
	if cfg.SmallVehicle {
		rpm *= 2
	}
	return params{
		maxRate:           rpm * 2 * math.Pi / 60,
		amplifyThreshold:  cfg.AmplifyThresholdDeg * degToRad,
		errorThreshold:    cfg.ErrorThresholdDeg * degToRad,
		velocityThreshold: cfg.VelocityThresholdDeg * degToRad,
		onTargetTicks:     cfg.OnTargetTicks,
		useMaxDecel:       cfg.UseMaxObservedDecel,
	}
}

// Controller is the adaptive aim controller for a single flight.
type Controller struct {
	p             params
	axes          [3]axis // pitch, yaw, roll
	primed        bool
	onTargetCount int
	last          Result
}

// New creates an aim controller.
func New(cfg config.AimConfig) *Controller {
	return &Controller{p: newParams(cfg)}
}

// Flush discards the per-axis motion model. The next Orient call starts fresh.
func (c *Controller) Flush() {
	c.primed = false
	c.onTargetCount = 0
	c.last = Result{}
}

// Last returns the result of the most recent Orient call.
func (c *Controller) Last() Result {
	return c.last
}

// Orient commands gyro g so that ref's forward axis turns toward desired.
// A zero desired vector releases the gyro.
func (c *Controller) Orient(desired r3.Vec, g core.Gyro, ref core.Orientation) Result {
	if vector.IsZero(desired) {
		release(g)
		c.Flush()
		c.last = Result{Released: true}
		return c.last
	}

	pitch, yaw, roll := Decompose(vector.ToLocal(desired, ref))
	angles := [3]float64{pitch, yaw, roll}

	res := Result{Error: vector.AngleBetween(ref.Forward, desired)}

	if !c.primed {
		for i := range c.axes {
			c.axes[i].reset(angles[i])
		}
		c.primed = true
	}

	var impulse [3]float64
	allOnTarget := true
	for i := range c.axes {
		c.axes[i].update(angles[i], c.p)
		if !c.axes[i].onTarget {
			allOnTarget = false
		}
		if c.axes[i].braking {
			continue
		}
		impulse[i] = c.amplify(angles[i])
	}

	if allOnTarget {
		c.onTargetCount++
	} else {
		c.onTargetCount = 0
	}
	res.OnTarget = allOnTarget

	if c.onTargetCount > c.p.onTargetTicks {
		release(g)
		res.Released = true
		c.last = res
		return res
	}

	world := vector.ToWorld(r3.Vec{X: impulse[0], Y: impulse[1], Z: impulse[2]}, ref)
	local := vector.ToLocal(world, g.Orientation())
	g.SetOverride(true)
	g.SetRates(local.X, local.Y, local.Z)

	c.last = res
	return res
}

// amplify maps an axis angle to a rate command: proportional inside the amplify
// threshold, full authority outside it.
func (c *Controller) amplify(angle float64) float64 {
	if c.p.amplifyThreshold <= 0 {
		return math.Copysign(c.p.maxRate, angle)
	}
	power := util.Clamp(math.Abs(angle)/c.p.amplifyThreshold, 0, 1)
	return math.Copysign(c.p.maxRate*power, angle)
}

func release(g core.Gyro) {
	if g == nil {
		return
	}
	g.SetRates(0, 0, 0)
	g.SetOverride(false)
}

// Package sim is a small deterministic rigid-body vehicle used by the headless runner
// and the end-to-end tests. It implements core.Vehicle, core.Thruster and core.Gyro.
//
// The model is intentionally simple: linear motion from thrust, natural acceleration
// and dampeners; angular velocity that chases the active gyro's commanded rates with a
// bounded angular acceleration. There is no drag and no collision.
package sim

import (
	"math"

	"github.com/orbitkit/autopilot/internal/thrust"
	"github.com/orbitkit/autopilot/internal/vector"
	"github.com/orbitkit/autopilot/pkg/core"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultAngularAccel is the angular acceleration limit of a gyro in rad/s².
const DefaultAngularAccel = 10.0

// pushes maps each thrust direction to the local-frame vector it pushes the vehicle along.
var pushes = map[core.Direction]r3.Vec{
	core.Forward:  {X: 0, Y: 0, Z: -1},
	core.Backward: {X: 0, Y: 0, Z: 1},
	core.Left:     {X: -1, Y: 0, Z: 0},
	core.Right:    {X: 1, Y: 0, Z: 0},
	core.Up:       {X: 0, Y: 1, Z: 0},
	core.Down:     {X: 0, Y: -1, Z: 0},
}

// Push returns the local-frame unit vector a thruster group pushes along.
func Push(dir core.Direction) r3.Vec {
	return pushes[dir]
}

// Vehicle is a simulated vessel.
type Vehicle struct {
	pos, vel   r3.Vec
	orient     core.Orientation
	angVel     r3.Vec // world frame, rad/s
	mass       float64
	natural    r3.Vec
	dampeners  bool
	angAccel   float64
	thrusters  []*Thruster
	gyros      []*Gyro
	ticks      int
	dampToggle int
}

// VehicleConfig seeds a Vehicle.
type VehicleConfig struct {
	Position     r3.Vec
	Velocity     r3.Vec
	Orientation  core.Orientation
	Mass         float64
	Natural      r3.Vec
	Dampeners    bool
	AngularAccel float64
}

// NewVehicle builds a vehicle with no actuators.
func NewVehicle(cfg VehicleConfig) *Vehicle {
	o := cfg.Orientation
	if vector.IsZero(o.Forward) {
		o = core.IdentityOrientation()
	}
	alpha := cfg.AngularAccel
	if alpha <= 0 {
		alpha = DefaultAngularAccel
	}
	return &Vehicle{
		pos:       cfg.Position,
		vel:       cfg.Velocity,
		orient:    o,
		mass:      cfg.Mass,
		natural:   cfg.Natural,
		dampeners: cfg.Dampeners,
		angAccel:  alpha,
	}
}

// AddThrusters mounts n thrusters of maxEach newtons pushing in dir.
func (v *Vehicle) AddThrusters(dir core.Direction, n int, maxEach float64) []*Thruster {
	out := make([]*Thruster, 0, n)
	for i := 0; i < n; i++ {
		t := &Thruster{dir: dir, max: maxEach, working: true, enabled: true}
		v.thrusters = append(v.thrusters, t)
		out = append(out, t)
	}
	return out
}

// AddGyro mounts a gyro with the given orientation relative to the vehicle.
func (v *Vehicle) AddGyro(mount core.Orientation) *Gyro {
	g := &Gyro{vehicle: v, mount: mount, functional: true, enabled: true}
	v.gyros = append(v.gyros, g)
	return g
}

// Groups buckets the mounted thrusters by direction.
func (v *Vehicle) Groups() thrust.Groups {
	groups := make(thrust.Groups)
	for _, t := range v.thrusters {
		groups[t.dir] = append(groups[t.dir], t)
	}
	return groups
}

// Gyros returns the mounted gyros in mounting order.
func (v *Vehicle) Gyros() []core.Gyro {
	out := make([]core.Gyro, len(v.gyros))
	for i, g := range v.gyros {
		out[i] = g
	}
	return out
}

func (v *Vehicle) Position() r3.Vec              { return v.pos }
func (v *Vehicle) Velocity() r3.Vec              { return v.vel }
func (v *Vehicle) Orientation() core.Orientation { return v.orient }
func (v *Vehicle) Mass() float64                 { return v.mass }
func (v *Vehicle) NaturalAcceleration() r3.Vec   { return v.natural }
func (v *Vehicle) Dampeners() bool               { return v.dampeners }
func (v *Vehicle) AngularVelocity() r3.Vec       { return v.angVel }
func (v *Vehicle) Ticks() int                    { return v.ticks }

// DampenerToggles counts how often the dampener state actually changed.
func (v *Vehicle) DampenerToggles() int {
	return v.dampToggle
}

// Teleport moves the vehicle without touching its velocity.
func (v *Vehicle) Teleport(pos r3.Vec) {
	v.pos = pos
}

func (v *Vehicle) SetVelocity(vel r3.Vec) {
	v.vel = vel
}

func (v *Vehicle) SetNaturalAcceleration(a r3.Vec) {
	v.natural = a
}

func (v *Vehicle) SetDampeners(on bool) {
	if v.dampeners != on {
		v.dampToggle++
	}
	v.dampeners = on
}

// Step advances the simulation by dt seconds.
func (v *Vehicle) Step(dt float64) {
	v.ticks++
	v.stepRotation(dt)

	force := r3.Vec{}
	for _, t := range v.thrusters {
		if !t.active() {
			continue
		}
		force = r3.Add(force, r3.Scale(t.override, vector.ToWorld(pushes[t.dir], v.orient)))
	}

	accel := r3.Vec{}
	if v.mass > 0 {
		accel = r3.Scale(1/v.mass, force)
	}
	accel = r3.Add(accel, v.natural)
	v.vel = r3.Add(v.vel, r3.Scale(dt, accel))

	if v.dampeners {
		v.dampen(dt)
	}

	v.pos = r3.Add(v.pos, r3.Scale(dt, v.vel))
}

// dampen opposes each local velocity component with the idle thrusters able to push
// against it, never reversing the component.
func (v *Vehicle) dampen(dt float64) {
	if v.mass <= 0 {
		return
	}
	local := vector.ToLocal(v.vel, v.orient)
	comps := [3]*float64{&local.X, &local.Y, &local.Z}
	against := [3][2]core.Direction{
		{core.Left, core.Right},       // X>0 needs Left, X<0 needs Right
		{core.Down, core.Up},          // Y>0 needs Down
		{core.Forward, core.Backward}, // Z>0 (moving backward) needs Forward
	}
	for i, c := range comps {
		if *c == 0 {
			continue
		}
		dir := against[i][0]
		if *c < 0 {
			dir = against[i][1]
		}
		capacity := 0.0
		for _, t := range v.thrusters {
			if t.dir == dir && t.enabled && t.working && t.override == 0 {
				capacity += t.max
			}
		}
		dv := math.Min(capacity/v.mass*dt, math.Abs(*c))
		*c -= math.Copysign(dv, *c)
	}
	v.vel = vector.ToWorld(local, v.orient)
}

func (v *Vehicle) stepRotation(dt float64) {
	want := r3.Vec{}
	for _, g := range v.gyros {
		if g.functional && g.enabled && g.override {
			want = vector.ToWorld(g.rates, g.Orientation())
			break
		}
	}

	diff := r3.Sub(want, v.angVel)
	maxStep := v.angAccel * dt
	if n := r3.Norm(diff); n > maxStep {
		diff = r3.Scale(maxStep/n, diff)
	}
	v.angVel = r3.Add(v.angVel, diff)

	angle := r3.Norm(v.angVel) * dt
	if angle == 0 {
		return
	}
	fwd := vector.SafeUnit(vector.Rotate(v.orient.Forward, v.angVel, angle))
	up := vector.Rotate(v.orient.Up, v.angVel, angle)
	// re-orthonormalise so rounding never skews the basis
	right := vector.SafeUnit(r3.Cross(fwd, up))
	up = r3.Cross(right, fwd)
	v.orient = core.Orientation{Forward: fwd, Right: right, Up: up}
}

// Thruster is a simulated linear actuator.
type Thruster struct {
	dir      core.Direction
	max      float64
	working  bool
	enabled  bool
	override float64 // newtons
	commands int
}

func (t *Thruster) active() bool {
	return t.enabled && t.working && t.override > 0
}

func (t *Thruster) MaxEffectiveThrust() float64 {
	if !t.working {
		return 0
	}
	return t.max
}

func (t *Thruster) IsWorking() bool    { return t.working }
func (t *Thruster) SetEnabled(on bool) { t.enabled = on }
func (t *Thruster) Enabled() bool      { return t.enabled }
func (t *Thruster) Direction() core.Direction {
	return t.dir
}

// SetWorking damages or repairs the thruster.
func (t *Thruster) SetWorking(on bool) { t.working = on }

func (t *Thruster) SetOverrideRatio(ratio float64) {
	t.commands++
	t.override = math.Max(0, ratio) * t.max
}

func (t *Thruster) SetOverrideForce(newtons float64) {
	t.commands++
	t.override = math.Max(0, math.Min(newtons, t.max))
}

func (t *Thruster) OverrideRatio() float64 {
	if t.max <= 0 {
		return 0
	}
	return t.override / t.max
}

// Commands counts override commands received, zero or not.
func (t *Thruster) Commands() int { return t.commands }

// Gyro is a simulated torque actuator.
type Gyro struct {
	vehicle    *Vehicle
	mount      core.Orientation
	functional bool
	enabled    bool
	override   bool
	rates      r3.Vec
}

func (g *Gyro) IsFunctional() bool  { return g.functional }
func (g *Gyro) SetEnabled(on bool)  { g.enabled = on }
func (g *Gyro) SetOverride(on bool) { g.override = on }
func (g *Gyro) Override() bool      { return g.override }
func (g *Gyro) Rates() r3.Vec       { return g.rates }

// SetFunctional breaks or repairs the gyro.
func (g *Gyro) SetFunctional(on bool) { g.functional = on }

func (g *Gyro) SetRates(pitch, yaw, roll float64) {
	g.rates = r3.Vec{X: pitch, Y: yaw, Z: roll}
}

// Orientation returns the gyro's basis in world coordinates.
func (g *Gyro) Orientation() core.Orientation {
	o := g.vehicle.orient
	return core.Orientation{
		Forward: vector.ToWorld(g.mount.Forward, o),
		Right:   vector.ToWorld(g.mount.Right, o),
		Up:      vector.ToWorld(g.mount.Up, o),
	}
}

package core

import "gonum.org/v1/gonum/spatial/r3"

// Orientation is a right-handed orthonormal basis in world coordinates.
// Local frame convention: X = Right, Y = Up, Z = Backward, so Forward is local -Z.
type Orientation struct {
	Forward r3.Vec
	Right   r3.Vec
	Up      r3.Vec
}

// Backward returns the local +Z axis.
func (o Orientation) Backward() r3.Vec {
	return r3.Scale(-1, o.Forward)
}

// IdentityOrientation faces world -Z with world +Y up.
func IdentityOrientation() Orientation {
	return Orientation{
		Forward: r3.Vec{X: 0, Y: 0, Z: -1},
		Right:   r3.Vec{X: 1, Y: 0, Z: 0},
		Up:      r3.Vec{X: 0, Y: 1, Z: 0},
	}
}

// Vehicle is the telemetry snapshot provider for the controlled vessel.
// It is read once per tick; SetDampeners is the only mutation besides actuator commands.
type Vehicle interface {
	Position() r3.Vec
	Velocity() r3.Vec
	Orientation() Orientation
	Mass() float64
	// NaturalAcceleration is the external acceleration acting on the vessel (gravity).
	NaturalAcceleration() r3.Vec
	Dampeners() bool
	SetDampeners(on bool)
}

// Thruster is a single linear actuator referenced by the allocator.
type Thruster interface {
	// MaxEffectiveThrust is the force in newtons at ratio 1, accounting for health.
	MaxEffectiveThrust() float64
	IsWorking() bool
	SetEnabled(on bool)
	// SetOverrideRatio commands a fraction of maximum force; 0 releases the override.
	SetOverrideRatio(ratio float64)
	// SetOverrideForce commands an absolute force in newtons; 0 releases the override.
	SetOverrideForce(newtons float64)
	OverrideRatio() float64
}

// Gyro is a torque actuator accepting angular rate commands in its own local frame.
type Gyro interface {
	IsFunctional() bool
	SetEnabled(on bool)
	SetOverride(on bool)
	// SetRates commands angular velocity in rad/s about the gyro's Right (pitch),
	// Up (yaw) and Backward (roll) axes.
	SetRates(pitch, yaw, roll float64)
	Orientation() Orientation
}

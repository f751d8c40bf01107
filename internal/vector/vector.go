// Package vector holds the small amount of 3D maths the control loop needs on top of
// gonum's r3 package. Every helper here is NaN-safe: degenerate input produces a zero
// vector or a zero angle rather than propagating NaN into actuator commands.
package vector

import (
	"math"

	"github.com/orbitkit/autopilot/pkg/core"
	"gonum.org/v1/gonum/spatial/r3"
)

// epsilon below which a vector is treated as zero length.
const epsilon = 1e-12

// Finite reports whether every component of v is a finite number.
func Finite(v r3.Vec) bool {
	return !math.IsNaN(v.X) && !math.IsNaN(v.Y) && !math.IsNaN(v.Z) &&
		!math.IsInf(v.X, 0) && !math.IsInf(v.Y, 0) && !math.IsInf(v.Z, 0)
}

// IsZero reports whether v is zero length (or not finite).
func IsZero(v r3.Vec) bool {
	return !Finite(v) || r3.Norm2(v) < epsilon*epsilon
}

// SafeUnit returns v normalised, or the zero vector if v cannot be normalised.
func SafeUnit(v r3.Vec) r3.Vec {
	if IsZero(v) {
		return r3.Vec{}
	}
	return r3.Scale(1/r3.Norm(v), v)
}

// Project returns the component of v along unit.
func Project(v, unit r3.Vec) r3.Vec {
	return r3.Scale(r3.Dot(v, unit), unit)
}

// Reject returns the component of v perpendicular to unit.
func Reject(v, unit r3.Vec) r3.Vec {
	return r3.Sub(v, Project(v, unit))
}

// SafeAcos clamps x into [-1,1] before taking the arc cosine.
func SafeAcos(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	if x > 1 {
		x = 1
	} else if x < -1 {
		x = -1
	}
	return math.Acos(x)
}

// AngleBetween returns the angle in radians between a and b, or 0 if either is zero.
func AngleBetween(a, b r3.Vec) float64 {
	ua, ub := SafeUnit(a), SafeUnit(b)
	if IsZero(ua) || IsZero(ub) {
		return 0
	}
	return SafeAcos(r3.Dot(ua, ub))
}

// ToLocal expresses a world direction in the frame o (X=Right, Y=Up, Z=Backward).
func ToLocal(v r3.Vec, o core.Orientation) r3.Vec {
	return r3.Vec{
		X: r3.Dot(v, o.Right),
		Y: r3.Dot(v, o.Up),
		Z: r3.Dot(v, o.Backward()),
	}
}

// ToWorld converts a local direction in frame o back to world coordinates.
func ToWorld(local r3.Vec, o core.Orientation) r3.Vec {
	w := r3.Scale(local.X, o.Right)
	w = r3.Add(w, r3.Scale(local.Y, o.Up))
	return r3.Add(w, r3.Scale(local.Z, o.Backward()))
}

// Rotate rotates v by angle radians about axis using the right-hand rule.
// A zero axis leaves v unchanged.
func Rotate(v, axis r3.Vec, angle float64) r3.Vec {
	k := SafeUnit(axis)
	if IsZero(k) || angle == 0 {
		return v
	}
	cos, sin := math.Cos(angle), math.Sin(angle)
	out := r3.Scale(cos, v)
	out = r3.Add(out, r3.Scale(sin, r3.Cross(k, v)))
	return r3.Add(out, r3.Scale(r3.Dot(k, v)*(1-cos), k))
}

package aim

import (
	"github.com/orbitkit/autopilot/internal/vector"
	"gonum.org/v1/gonum/spatial/r3"
)

// localForward is the vehicle's forward axis in its own frame.
var localForward = r3.Vec{X: 0, Y: 0, Z: -1}

// Decompose turns a direction expressed in the vehicle frame into the rotation
// vector (pitch about Right, yaw about Up, roll about Backward) that carries the
// vehicle's forward axis onto it. When the direction lies on the local Z axis the
// rotation axis is undefined and the whole angle is assigned to yaw.
func Decompose(local r3.Vec) (pitch, yaw, roll float64) {
	t := vector.SafeUnit(local)
	if vector.IsZero(t) {
		return 0, 0, 0
	}

	angle := vector.SafeAcos(r3.Dot(localForward, t))
	axis := r3.Cross(localForward, t)
	if vector.IsZero(axis) {
		return 0, angle, 0
	}

	axis = r3.Scale(angle, vector.SafeUnit(axis))
	return axis.X, axis.Y, axis.Z
}

// Compose is the inverse of Decompose: it rotates the local forward axis by the
// given rotation vector and returns the resulting direction in the vehicle frame.
func Compose(pitch, yaw, roll float64) r3.Vec {
	w := r3.Vec{X: pitch, Y: yaw, Z: roll}
	return vector.Rotate(localForward, w, r3.Norm(w))
}

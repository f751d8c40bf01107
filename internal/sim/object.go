package sim

import "gonum.org/v1/gonum/spatial/r3"

// Object is a body coasting at constant velocity. It is what a speed match follows
// in the headless runner.
type Object struct {
	pos, vel r3.Vec
	lost     bool
}

func NewObject(pos, vel r3.Vec) *Object {
	return &Object{pos: pos, vel: vel}
}

func (o *Object) Position() r3.Vec { return o.pos }
func (o *Object) Velocity() r3.Vec { return o.vel }

// SetLost makes Track report the object as out of sensor range.
func (o *Object) SetLost(lost bool) {
	o.lost = lost
}

// Track returns the object's state; ok is false once it is lost.
func (o *Object) Track() (pos, vel r3.Vec, ok bool) {
	return o.pos, o.vel, !o.lost
}

// Step advances the object by dt seconds.
func (o *Object) Step(dt float64) {
	o.pos = r3.Add(o.pos, r3.Scale(dt, o.vel))
}

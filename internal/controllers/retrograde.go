package controllers

import (
	"fmt"
	"strings"

	"github.com/orbitkit/autopilot/internal/cruise"
	"github.com/orbitkit/autopilot/pkg/core"
	"gonum.org/v1/gonum/spatial/r3"
)

// Retrograde points the nose against the velocity and brakes with dampeners and the
// forward group until the vehicle is stopped.
type Retrograde struct {
	*base
	speed float64
}

func newRetrograde(f Factory, deps cruise.Deps) *Retrograde {
	return &Retrograde{base: newBase(core.KindRetrograde, f, deps, true)}
}

func (r *Retrograde) Run() {
	if !r.begin(func() { r.setDampeners(true) }) {
		return
	}
	vel := r.vehicle.Velocity()
	r.speed = r3.Norm(vel)
	if r.speed <= r.cfg.CompletionSpeed {
		r.finish(core.ReasonStopped)
		return
	}
	res, ok := r.orient(r3.Scale(-1, vel))
	if !ok {
		return
	}
	r.burn(r.speed, r.aligned(res))
}

func (r *Retrograde) Status(sb *strings.Builder) {
	fmt.Fprintf(sb, "%s: ", r.Name())
	if r.done {
		fmt.Fprintf(sb, "%s\n", r.reason)
		return
	}
	fmt.Fprintf(sb, "speed %.2f m/s, thrust %.0f%%\n", r.speed, r.ratio*100)
}

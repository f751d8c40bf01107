package controllers

import (
	"fmt"
	"math"
	"strings"

	"github.com/orbitkit/autopilot/internal/cruise"
	"github.com/orbitkit/autopilot/pkg/core"
	"gonum.org/v1/gonum/spatial/r3"
)

// Orient turns the vehicle to face a world point and stops once it holds the heading.
type Orient struct {
	*base
	target r3.Vec
}

func newOrient(f Factory, target r3.Vec, deps cruise.Deps) *Orient {
	return &Orient{base: newBase(core.KindOrient, f, deps, false), target: target}
}

func (o *Orient) Run() {
	if !o.begin(nil) {
		return
	}
	res, ok := o.orient(r3.Sub(o.target, o.vehicle.Position()))
	if !ok {
		return
	}
	if res.Released {
		o.finish(core.ReasonAligned)
	}
}

func (o *Orient) Status(sb *strings.Builder) {
	fmt.Fprintf(sb, "%s: ", o.Name())
	if o.done {
		fmt.Fprintf(sb, "%s\n", o.reason)
		return
	}
	fmt.Fprintf(sb, "aim error %.2f°\n", o.aimError*180/math.Pi)
}

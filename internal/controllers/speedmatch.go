package controllers

import (
	"fmt"
	"strings"

	"github.com/orbitkit/autopilot/internal/cruise"
	"github.com/orbitkit/autopilot/pkg/core"
	"gonum.org/v1/gonum/spatial/r3"
)

// SpeedMatch cancels the velocity relative to a tracked object. It runs until the
// object is lost or the controller is aborted.
type SpeedMatch struct {
	*base
	targets  TargetProvider
	relSpeed float64
}

func newSpeedMatch(f Factory, targets TargetProvider, deps cruise.Deps) *SpeedMatch {
	return &SpeedMatch{base: newBase(core.KindSpeedMatch, f, deps, true), targets: targets}
}

func (m *SpeedMatch) Run() {
	if !m.begin(func() { m.setDampeners(false) }) {
		return
	}
	_, tv, ok := m.targets.Track()
	if !ok {
		m.finish(core.ReasonTargetLost)
		return
	}

	rel := r3.Sub(m.vehicle.Velocity(), tv)
	m.relSpeed = r3.Norm(rel)
	if m.relSpeed <= m.cfg.CompletionSpeed {
		m.thrust.SetForwardRatio(0)
		m.ratio = 0
		m.orient(r3.Vec{})
		return
	}

	res, ok := m.orient(r3.Scale(-1, rel))
	if !ok {
		return
	}
	m.burn(m.relSpeed, m.aligned(res))
}

func (m *SpeedMatch) Status(sb *strings.Builder) {
	fmt.Fprintf(sb, "%s: ", m.Name())
	if m.done {
		fmt.Fprintf(sb, "%s\n", m.reason)
		return
	}
	fmt.Fprintf(sb, "relative speed %.2f m/s, thrust %.0f%%\n", m.relSpeed, m.ratio*100)
}

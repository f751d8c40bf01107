// Package thrust maps the six semantic thrust directions onto groups of actuators.
// The allocator holds no engineering state of its own apart from the ratio ceiling
// and the last command per group; every side effect lands on the actuators.
package thrust

import (
	"errors"

	"github.com/orbitkit/autopilot/internal/util"
	"github.com/orbitkit/autopilot/pkg/core"
)

// ErrNoThrusters is returned when no actuator was discovered in any group.
var ErrNoThrusters = errors.New("no thrusters discovered")

// Groups buckets thrusters by the direction they push the vehicle.
type Groups map[core.Direction][]core.Thruster

// Allocator owns the six thruster groups for one flight.
type Allocator struct {
	groups   Groups
	maxRatio float64
	// last ratio commanded per group, re-applied when the ceiling changes
	commanded map[core.Direction]float64
}

// New creates an allocator. maxRatio is clamped into [0,1].
func New(groups Groups, maxRatio float64) (*Allocator, error) {
	total := 0
	for _, g := range groups {
		total += len(g)
	}
	if total == 0 {
		return nil, ErrNoThrusters
	}

	a := &Allocator{
		groups:    make(Groups, len(core.Directions)),
		maxRatio:  util.Clamp(maxRatio, 0, 1),
		commanded: make(map[core.Direction]float64, len(core.Directions)),
	}
	for _, dir := range core.Directions {
		a.groups[dir] = groups[dir]
	}
	return a, nil
}

// MaxRatio returns the configured ratio ceiling.
func (a *Allocator) MaxRatio() float64 {
	return a.maxRatio
}

// SetMaxRatio changes the ceiling and re-applies every active ratio command under it.
func (a *Allocator) SetMaxRatio(r float64) {
	a.maxRatio = util.Clamp(r, 0, 1)
	for dir, ratio := range a.commanded {
		a.SetRatio(dir, ratio)
	}
}

// Count returns the number of thrusters in a group.
func (a *Allocator) Count(dir core.Direction) int {
	return len(a.groups[dir])
}

// Capacity sums the maximum effective thrust of the working thrusters in a group.
// This queries every actuator, so callers should cache the result.
func (a *Allocator) Capacity(dir core.Direction) float64 {
	total := 0.0
	for _, t := range a.groups[dir] {
		if t.IsWorking() {
			total += t.MaxEffectiveThrust()
		}
	}
	return total
}

// SetRatio commands every thruster in a group to the same fraction of its maximum.
// The ratio is clamped into [0, MaxRatio].
func (a *Allocator) SetRatio(dir core.Direction, ratio float64) {
	ratio = util.Clamp(ratio, 0, a.maxRatio)
	a.commanded[dir] = ratio
	for _, t := range a.groups[dir] {
		t.SetOverrideRatio(ratio)
	}
}

// SetForwardRatio is SetRatio on the Forward group.
func (a *Allocator) SetForwardRatio(ratio float64) {
	a.SetRatio(core.Forward, ratio)
}

// SetForce spreads an absolute force across the working thrusters of a group in
// proportion to their capacity. The force is capped at MaxRatio of the group capacity.
func (a *Allocator) SetForce(dir core.Direction, newtons float64) {
	capacity := a.Capacity(dir)
	if capacity <= 0 || newtons <= 0 {
		a.SetRatio(dir, 0)
		return
	}
	ratio := util.Clamp(newtons/capacity, 0, a.maxRatio)
	a.commanded[dir] = ratio
	for _, t := range a.groups[dir] {
		if !t.IsWorking() {
			t.SetOverrideForce(0)
			continue
		}
		t.SetOverrideForce(ratio * t.MaxEffectiveThrust())
	}
}

// SetLateral applies independent ratio commands to the four lateral groups.
func (a *Allocator) SetLateral(left, right, up, down float64) {
	a.SetRatio(core.Left, left)
	a.SetRatio(core.Right, right)
	a.SetRatio(core.Up, up)
	a.SetRatio(core.Down, down)
}

// EnableGroup toggles every thruster of a group. Overrides are zeroed first: a
// non-zero override combined with a disable can latch on the actuator.
func (a *Allocator) EnableGroup(dir core.Direction, on bool) {
	a.SetRatio(dir, 0)
	for _, t := range a.groups[dir] {
		t.SetEnabled(on)
	}
}

// EnableAll toggles every group.
func (a *Allocator) EnableAll(on bool) {
	for _, dir := range core.Directions {
		a.EnableGroup(dir, on)
	}
}

// ResetAllOverrides zeroes every group's command.
func (a *Allocator) ResetAllOverrides() {
	for _, dir := range core.Directions {
		a.SetRatio(dir, 0)
	}
}

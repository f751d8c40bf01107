// Package gyro manages failover across the torque actuators of a vehicle.
package gyro

import (
	"errors"

	"github.com/orbitkit/autopilot/pkg/core"
)

// ErrNoFunctionalGyros is returned once every gyro in the pool has failed.
var ErrNoFunctionalGyros = errors.New("no functional gyros left")

// Pool is an arena of gyros with a cursor on the active one. Gyros before the
// cursor have been found non-functional and are never revisited.
type Pool struct {
	gyros   []core.Gyro
	current int
}

// NewPool builds a pool and validates that at least one gyro is functional.
func NewPool(gyros []core.Gyro) (*Pool, error) {
	p := &Pool{gyros: append([]core.Gyro(nil), gyros...)}
	if _, err := p.Current(); err != nil {
		return nil, err
	}
	return p, nil
}

// Current returns the active gyro, advancing past failed ones. The newly selected
// gyro is enabled. Exhaustion is permanent.
func (p *Pool) Current() (core.Gyro, error) {
	for p.current < len(p.gyros) {
		g := p.gyros[p.current]
		if g != nil && g.IsFunctional() {
			return g, nil
		}
		p.current++
		if p.current < len(p.gyros) && p.gyros[p.current] != nil && p.gyros[p.current].IsFunctional() {
			p.gyros[p.current].SetEnabled(true)
		}
	}
	return nil, ErrNoFunctionalGyros
}

// Remaining returns how many gyros, including the active one, are still candidates.
func (p *Pool) Remaining() int {
	return len(p.gyros) - p.current
}

// Release hands the active gyro back to its default stabilisation.
func (p *Pool) Release() {
	if p.current < len(p.gyros) && p.gyros[p.current] != nil {
		p.gyros[p.current].SetRates(0, 0, 0)
		p.gyros[p.current].SetOverride(false)
	}
}

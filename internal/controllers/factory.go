// Package controllers builds the autopilot controller family behind core.Controller.
package controllers

import (
	"errors"
	"fmt"

	"github.com/orbitkit/autopilot/internal/config"
	"github.com/orbitkit/autopilot/internal/cruise"
	"github.com/orbitkit/autopilot/pkg/core"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrUnsupportedKind is returned for kinds this build cannot fly.
var ErrUnsupportedKind = errors.New("unsupported controller kind")

// TargetProvider looks up the object a SpeedMatch controller follows.
type TargetProvider interface {
	// Track returns the tracked object's position and velocity. ok is false once it is lost.
	Track() (pos, vel r3.Vec, ok bool)
}

// Request is a command to start a controller.
type Request struct {
	Kind         core.Kind
	Target       r3.Vec
	DesiredSpeed float64
	Stage        core.Stage
}

// Factory builds controllers with a shared configuration.
type Factory struct {
	Cruise  config.CruiseConfig
	Aim     config.AimConfig
	Targets TargetProvider
}

// New builds the controller for req.
func (f Factory) New(req Request, deps cruise.Deps) (core.Controller, error) {
	switch req.Kind {
	case core.KindRetroCruise, core.KindOneWayCruise:
		c, err := cruise.New(cruise.Options{
			Kind:         req.Kind,
			Target:       req.Target,
			DesiredSpeed: req.DesiredSpeed,
			Stage:        req.Stage,
			Cruise:       f.Cruise,
			Aim:          f.Aim,
		}, deps)
		if err != nil {
			return nil, err
		}
		return c, nil
	case core.KindOrient:
		return newOrient(f, req.Target, deps), nil
	case core.KindRetrograde:
		return newRetrograde(f, deps), nil
	case core.KindSpeedMatch:
		if f.Targets == nil {
			return nil, fmt.Errorf("%w: %s needs a target provider", ErrUnsupportedKind, req.Kind)
		}
		return newSpeedMatch(f, f.Targets, deps), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, req.Kind)
	}
}

// Resume rebuilds a controller from a persisted token. Only the cruise kinds persist
// state, so any other kind is rejected.
func (f Factory) Resume(token, target string, deps cruise.Deps) (core.Controller, error) {
	st, err := cruise.ParseResumeToken(token, target)
	if err != nil {
		return nil, err
	}
	if st.Kind != core.KindRetroCruise && st.Kind != core.KindOneWayCruise {
		return nil, fmt.Errorf("%w: %s cannot be resumed", ErrUnsupportedKind, st.Kind)
	}
	return f.New(Request{
		Kind:         st.Kind,
		Target:       st.Target,
		DesiredSpeed: st.DesiredSpeed,
		Stage:        st.Stage,
	}, deps)
}

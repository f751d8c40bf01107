package cruise

import (
	"testing"

	"github.com/orbitkit/autopilot/internal/config"
	"github.com/orbitkit/autopilot/internal/sim"
	"github.com/orbitkit/autopilot/pkg/core"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

const dt = 1.0 / 60

// newVehicle builds a 10 t vessel with 2 m/s² along each main axis and 0.5 m/s² on the sides.
func newVehicle(cfg sim.VehicleConfig) *sim.Vehicle {
	if cfg.Mass == 0 {
		cfg.Mass = 10000
	}
	v := sim.NewVehicle(cfg)
	v.AddThrusters(core.Forward, 2, 10000)
	v.AddThrusters(core.Backward, 2, 10000)
	for _, dir := range []core.Direction{core.Left, core.Right, core.Up, core.Down} {
		v.AddThrusters(dir, 1, 5000)
	}
	v.AddGyro(core.IdentityOrientation())
	return v
}

type terminations struct {
	calls   int
	name    string
	reason  string
	tokens  []string
	targets []string
}

func (r *terminations) terminate(name, reason string) {
	r.calls++
	r.name = name
	r.reason = reason
}

func (r *terminations) resume(token, target string) {
	r.tokens = append(r.tokens, token)
	r.targets = append(r.targets, target)
}

func newFlight(t *testing.T, v *sim.Vehicle, kind core.Kind, target r3.Vec, speed float64, mutate func(*Options)) (*Cruise, *terminations) {
	t.Helper()
	rec := &terminations{}
	opts := Options{
		Kind:         kind,
		Target:       target,
		DesiredSpeed: speed,
		Cruise:       config.DefaultCruiseConfig(),
		Aim:          config.DefaultAimConfig(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(opts, Deps{
		Vehicle:     v,
		Thrusters:   v.Groups(),
		Gyros:       v.Gyros(),
		OnTerminate: rec.terminate,
		OnResume:    rec.resume,
	})
	require.NoError(t, err)
	return c, rec
}

// fly ticks the flight and the vehicle until the flight ends or maxTicks pass.
func fly(c *Cruise, v *sim.Vehicle, maxTicks int) {
	for i := 0; i < maxTicks && !c.Done(); i++ {
		c.Run()
		if c.Done() {
			return
		}
		v.Step(dt)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/orbitkit/autopilot/internal/handlers"
	"github.com/orbitkit/autopilot/internal/parser"
	"github.com/orbitkit/autopilot/internal/sim"
	"github.com/orbitkit/autopilot/internal/storage"
	"github.com/orbitkit/autopilot/internal/util"
	"github.com/orbitkit/autopilot/pkg/core"
	"gonum.org/v1/gonum/spatial/r3"
)

// maxFlightSeconds bounds a headless flight in simulated time.
const maxFlightSeconds = 6 * 60 * 60

// statusEverySeconds is how often the headless runner prints the status block.
const statusEverySeconds = 10

// newVehicle builds the simulated 20 t vessel the headless runner flies.
func newVehicle() *sim.Vehicle {
	v := sim.NewVehicle(sim.VehicleConfig{Mass: 20000, Dampeners: true})
	v.AddThrusters(core.Forward, 3, 40000)
	v.AddThrusters(core.Backward, 3, 40000)
	for _, dir := range []core.Direction{core.Left, core.Right, core.Up, core.Down} {
		v.AddThrusters(dir, 2, 10000)
	}
	v.AddGyro(core.IdentityOrientation())
	return v
}

// newBeacon builds the coasting object :MATCH: follows.
func newBeacon() *sim.Object {
	return sim.NewObject(r3.Vec{X: 0, Y: 0, Z: -2000}, r3.Vec{X: 5, Y: 0, Z: -20})
}

// step ticks the autopilot and advances the simulation up to n times.
// It reports whether the autopilot is idle.
func step(n int) bool {
	dt := 1 / tickRate
	for i := 0; i < n; i++ {
		if handlerService.Tick() {
			return true
		}
		vehicle.Step(dt)
		beacon.Step(dt)
	}
	return !handlerService.Active()
}

func parseSteps(args []string) (int, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return 1, nil
	}
	s := strings.TrimSpace(util.TrimQuotes(args[0]))
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: steps %q", parser.ErrInvalidArgument, s)
	}
	return n, nil
}

// save flushes storage and, when the backend keeps a database file, copies it
// into dir. It returns the snapshot path, empty when no snapshot was taken.
func save(dir string) (string, error) {
	if err := storageBackend.Flush(); err != nil {
		return "", err
	}
	snap, ok := storageBackend.(storage.Snapshotter)
	if !ok {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating snapshot dir: %w", err)
	}
	path := filepath.Join(dir, AppName+"-snapshot.db")
	if err := snap.Snapshot(path); err != nil {
		return "", err
	}
	Logger.Info("Storage snapshot written", "path", path)
	return path, nil
}

func call(line string) (string, error) {
	reply := bridge.Call(line)
	Logger.Debug("Host call", "request", line, "reply", reply)
	if strings.HasPrefix(reply, `["error"`) {
		return reply, errors.New(reply)
	}
	return reply, nil
}

func fly(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: fly needs a target and a speed", parser.ErrMissingArgument)
	}
	command := ":CRUISE:"
	if len(args) > 2 && strings.EqualFold(args[2], "oneway") {
		command = ":ONEWAY:"
	}

	reply, err := call(command + "|" + args[0] + "|" + args[1])
	if err != nil {
		return err
	}
	fmt.Println(reply)
	return run(ctx)
}

func resume(ctx context.Context) error {
	reply, err := call(":RESUME:")
	if err != nil {
		if !strings.Contains(reply, handlers.ErrResumeDiscarded.Error()) {
			return err
		}
		// the stored record could not be used and is already cleared
		fmt.Println(reply)
		return nil
	}
	if !handlerService.Active() {
		fmt.Println("Nothing to resume.")
		return nil
	}
	fmt.Println(reply)
	return run(ctx)
}

// run steps the active flight to its end, printing the status periodically.
// An interrupt leaves the flight active so its resume state survives.
func run(ctx context.Context) error {
	chunk := int(tickRate * statusEverySeconds)
	limit := int(tickRate * maxFlightSeconds)

	for elapsed := 0; elapsed < limit; elapsed += chunk {
		if err := ctx.Err(); err != nil {
			Logger.Info("Interrupted, flight kept for resume")
			return err
		}
		if _, err := call(fmt.Sprintf(":STEP:|%d", chunk)); err != nil {
			return err
		}
		fmt.Print(handlerService.Status())
		if !handlerService.Active() {
			return nil
		}
	}

	if _, err := call(":ABORT:"); err != nil {
		return err
	}
	fmt.Print(handlerService.Status())
	return fmt.Errorf("flight did not finish within %d simulated seconds", maxFlightSeconds)
}

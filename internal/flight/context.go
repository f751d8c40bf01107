package flight

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orbitkit/autopilot/pkg/core"
)

// Info describes the flight currently being flown.
type Info struct {
	ID           string
	VehicleName  string
	Kind         core.Kind
	Target       string
	DesiredSpeed float64
	StartTime    time.Time
	Tick         uint
}

// Active reports whether a flight is in progress.
func (i Info) Active() bool {
	return i.ID != ""
}

// Context holds the active flight. It is read by the log handler and the
// status monitor from other goroutines.
type Context struct {
	mu     sync.RWMutex
	flight Info
	now    func() time.Time
}

// NewContext creates a Context with no active flight.
func NewContext() *Context {
	return &Context{now: time.Now}
}

// Start begins a new flight and returns its generated ID.
func (c *Context) Start(vehicleName string, kind core.Kind, target string, desiredSpeed float64) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flight = Info{
		ID:           uuid.NewString(),
		VehicleName:  vehicleName,
		Kind:         kind,
		Target:       target,
		DesiredSpeed: desiredSpeed,
		StartTime:    c.now().UTC(),
	}
	return c.flight.ID
}

// Advance counts one control tick and returns the new tick number.
func (c *Context) Advance() uint {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.flight.Active() {
		return 0
	}
	c.flight.Tick++
	return c.flight.Tick
}

// End clears the active flight and returns what it was.
func (c *Context) End() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	ended := c.flight
	c.flight = Info{}
	return ended
}

// Get returns a copy of the active flight.
func (c *Context) Get() Info {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.flight
}

// LogAttrs returns the flight attributes for logging.ContextHandler.
func (c *Context) LogAttrs(context.Context) []slog.Attr {
	f := c.Get()
	if !f.Active() {
		return nil
	}
	return []slog.Attr{
		slog.String("flight_id", f.ID),
		slog.String("kind", f.Kind.String()),
		slog.Uint64("tick", uint64(f.Tick)),
	}
}

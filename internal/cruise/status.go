package cruise

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/orbitkit/autopilot/internal/util"
	"github.com/orbitkit/autopilot/pkg/core"
)

// Status appends the flight's status block to sb.
func (c *Cruise) Status(sb *strings.Builder) {
	fmt.Fprintf(sb, "%s: %s\n", c.Name(), c.stage)
	if c.terminated {
		fmt.Fprintf(sb, "Result: %s\n", c.reason)
		return
	}
	fmt.Fprintf(sb, "Distance: %s\n", formatDistance(c.k.DistanceToTarget))
	fmt.Fprintf(sb, "Speed: %.1f / %.1f m/s\n", c.k.Speed, c.desiredSpeed)
	fmt.Fprintf(sb, "ETA: %s\n", util.FormatClock(c.k.ETA))
	if c.stage == core.StageOrientAndAccelerate {
		fmt.Fprintf(sb, "Decel in: %s\n", util.FormatClock(c.k.TimeToStartDecel-c.cfg.DecelerationMargin))
	}
	fmt.Fprintf(sb, "Stop distance: %s\n", formatDistance(c.k.StopDistance))
	fmt.Fprintf(sb, "Aim error: %.2f°\n", c.k.AimError*180/math.Pi)
	fmt.Fprintf(sb, "Thrust: %.0f%%\n", c.k.ThrustRatio*100)
}

func formatDistance(m float64) string {
	if math.IsInf(m, 0) || math.IsNaN(m) {
		return "-"
	}
	return humanize.SIWithDigits(m, 2, "m")
}

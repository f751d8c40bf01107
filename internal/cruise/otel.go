package cruise

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/orbitkit/autopilot/internal/cruise"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type instruments struct {
	transitions metric.Int64Counter
	ticks       metric.Int64Counter
	ratio       metric.Float64Histogram
}

// newInstruments uses the global OTel meter (no-op if not configured).
func newInstruments() (*instruments, error) {
	m := meter()
	ins := &instruments{}

	var err error
	ins.transitions, err = m.Int64Counter(
		"cruise.stage.transitions",
		metric.WithDescription("Stage changes by origin and destination stage"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating transitions counter: %w", err)
	}

	ins.ticks, err = m.Int64Counter(
		"cruise.ticks",
		metric.WithDescription("Control ticks executed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ticks counter: %w", err)
	}

	ins.ratio, err = m.Float64Histogram(
		"cruise.thrust.ratio",
		metric.WithDescription("Commanded thrust ratio of the main burn group"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating thrust ratio histogram: %w", err)
	}

	return ins, nil
}

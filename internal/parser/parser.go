package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/orbitkit/autopilot/internal/controllers"
	"github.com/orbitkit/autopilot/internal/util"
	"github.com/orbitkit/autopilot/internal/vector"
	"github.com/orbitkit/autopilot/pkg/core"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrMissingArgument is returned when a command has fewer arguments than it needs.
	ErrMissingArgument = errors.New("missing argument")
	// ErrInvalidArgument is returned when an argument cannot be converted.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Parser converts raw host arguments into controller requests.
// It has zero external dependencies beyond a logger.
type Parser struct {
	logger *slog.Logger
}

func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// clean strips host quoting from every argument without mutating the input.
func clean(args []string) []string {
	out := make([]string, len(args))
	for i, v := range args {
		out[i] = strings.TrimSpace(util.FixEscapeQuotes(util.TrimQuotes(v)))
	}
	return out
}

func need(args []string, n int, names ...string) error {
	if len(args) >= n {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMissingArgument, names[len(args)])
}

// ParseTarget reads a world position such as "[100,0,-2500]".
func (p *Parser) ParseTarget(s string) (r3.Vec, error) {
	v, err := vector.Parse(s)
	if err != nil {
		return r3.Vec{}, fmt.Errorf("%w: target %q: %w", ErrInvalidArgument, s, err)
	}
	return v, nil
}

// ParseSpeed reads a strictly positive, finite speed in m/s.
func (p *Parser) ParseSpeed(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, fmt.Errorf("%w: speed %q must be a positive number", ErrInvalidArgument, s)
	}
	return f, nil
}

// ParseCruise parses [target, speed] for a cruise of the given kind.
func (p *Parser) ParseCruise(kind core.Kind, args []string) (controllers.Request, error) {
	args = clean(args)
	if err := need(args, 2, "target", "speed"); err != nil {
		return controllers.Request{}, err
	}

	target, err := p.ParseTarget(args[0])
	if err != nil {
		return controllers.Request{}, err
	}
	speed, err := p.ParseSpeed(args[1])
	if err != nil {
		return controllers.Request{}, err
	}

	p.logger.Debug("Parsed cruise command", "kind", kind.String(), "target", vector.Format(target), "speed", speed)
	return controllers.Request{Kind: kind, Target: target, DesiredSpeed: speed, Stage: core.StageNone}, nil
}

// ParseOrient parses [target].
func (p *Parser) ParseOrient(args []string) (controllers.Request, error) {
	args = clean(args)
	if err := need(args, 1, "target"); err != nil {
		return controllers.Request{}, err
	}
	target, err := p.ParseTarget(args[0])
	if err != nil {
		return controllers.Request{}, err
	}
	return controllers.Request{Kind: core.KindOrient, Target: target}, nil
}

// ParseResume parses an optional [token, target] pair. Both empty means "use the
// stored state"; supplying only one of them is an error.
func (p *Parser) ParseResume(args []string) (token, target string, explicit bool, err error) {
	args = clean(args)
	switch {
	case len(args) == 0 || (len(args) == 1 && args[0] == ""):
		return "", "", false, nil
	case len(args) == 1:
		return "", "", false, fmt.Errorf("%w: target", ErrMissingArgument)
	}
	return args[0], args[1], true, nil
}

// ParseKind resolves a kind name case-insensitively.
func (p *Parser) ParseKind(s string) (core.Kind, error) {
	s = strings.TrimSpace(util.TrimQuotes(s))
	for _, k := range core.Kinds() {
		if strings.EqualFold(k.String(), s) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidArgument, s)
}

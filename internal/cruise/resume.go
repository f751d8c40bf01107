package cruise

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/orbitkit/autopilot/internal/vector"
	"github.com/orbitkit/autopilot/pkg/core"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidResumeState is wrapped by every resume token parse failure.
var ErrInvalidResumeState = errors.New("invalid resume state")

// ResumeState is everything needed to rebuild a controller after a restart.
type ResumeState struct {
	Kind         core.Kind
	DesiredSpeed float64
	Stage        core.Stage
	Target       r3.Vec
}

// FormatResumeToken renders "<Kind>|<DesiredSpeed>|<Stage>".
func FormatResumeToken(kind core.Kind, desiredSpeed float64, stage core.Stage) string {
	return fmt.Sprintf("%s|%s|%d", kind, strconv.FormatFloat(desiredSpeed, 'g', -1, 64), int(stage))
}

// Token returns the resume token for the state.
func (s ResumeState) Token() string {
	return FormatResumeToken(s.Kind, s.DesiredSpeed, s.Stage)
}

// ParseResumeToken parses a token and its target text. Terminal stages are rejected:
// there is nothing to resume.
func ParseResumeToken(token, target string) (ResumeState, error) {
	parts := strings.Split(strings.TrimSpace(token), "|")
	if len(parts) != 3 {
		return ResumeState{}, fmt.Errorf("%w: expected 3 fields, got %d", ErrInvalidResumeState, len(parts))
	}

	kind, err := core.ParseKind(parts[0])
	if err != nil {
		return ResumeState{}, fmt.Errorf("%w: %v", ErrInvalidResumeState, err)
	}

	speed, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || math.IsNaN(speed) || math.IsInf(speed, 0) || speed <= 0 {
		return ResumeState{}, fmt.Errorf("%w: bad desired speed %q", ErrInvalidResumeState, parts[1])
	}

	n, err := strconv.Atoi(parts[2])
	if err != nil {
		return ResumeState{}, fmt.Errorf("%w: bad stage %q", ErrInvalidResumeState, parts[2])
	}
	stage := core.Stage(n)
	if !stage.Valid() || stage.Terminal() {
		return ResumeState{}, fmt.Errorf("%w: stage %s cannot be resumed", ErrInvalidResumeState, stage)
	}

	pos, err := vector.Parse(target)
	if err != nil {
		return ResumeState{}, fmt.Errorf("%w: %v", ErrInvalidResumeState, err)
	}

	return ResumeState{Kind: kind, DesiredSpeed: speed, Stage: stage, Target: pos}, nil
}

package cruise

import "github.com/orbitkit/autopilot/pkg/core"

// effect is a side effect of a stage change.
type effect uint8

const (
	// effectResetOverrides zeroes every thrust group command.
	effectResetOverrides effect = iota
	// effectFlushAim discards the aim controller's per-axis model.
	effectFlushAim
	// effectPersist emits a fresh resume token.
	effectPersist
	// effectCount records the transition metric.
	effectCount
)

func (e effect) String() string {
	switch e {
	case effectResetOverrides:
		return "reset-overrides"
	case effectFlushAim:
		return "flush-aim"
	case effectPersist:
		return "persist"
	case effectCount:
		return "count"
	}
	return "unknown"
}

// commanding reports whether a stage issues actuator commands.
func commanding(s core.Stage) bool {
	return s >= core.StageCancelPerpendicularVelocity && s <= core.StageDecelerateNoOrient
}

// transition lists the side effects of moving from one stage to another.
// None issues no commands, so leaving it needs no reset.
func transition(from, to core.Stage) []effect {
	if from == to {
		return nil
	}
	effects := make([]effect, 0, 4)
	if commanding(from) {
		effects = append(effects, effectResetOverrides, effectFlushAim)
	}
	if !to.Terminal() {
		effects = append(effects, effectPersist)
	}
	return append(effects, effectCount)
}

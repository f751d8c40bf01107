package core

import "fmt"

// Direction names one of the six thruster groups.
type Direction uint8

const (
	Forward Direction = iota
	Backward
	Left
	Right
	Up
	Down
)

// Directions lists every Direction in declaration order.
var Directions = []Direction{Forward, Backward, Left, Right, Up, Down}

func (d Direction) String() string {
	switch d {
	case Forward:
		return "Forward"
	case Backward:
		return "Backward"
	case Left:
		return "Left"
	case Right:
		return "Right"
	case Up:
		return "Up"
	case Down:
		return "Down"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// Stage is a flight phase. Numeric order is significant for range checks,
// except for Aborted which is a terminal side branch.
type Stage int

const (
	StageNone                        Stage = 0
	StageCancelPerpendicularVelocity Stage = 1
	StageOrientAndAccelerate         Stage = 2
	StageOrientAndDecelerate         Stage = 3
	StageDecelerateNoOrient          Stage = 4
	StageComplete                    Stage = 6
	StageAborted                     Stage = 7
)

func (s Stage) String() string {
	switch s {
	case StageNone:
		return "None"
	case StageCancelPerpendicularVelocity:
		return "CancelPerpendicularVelocity"
	case StageOrientAndAccelerate:
		return "OrientAndAccelerate"
	case StageOrientAndDecelerate:
		return "OrientAndDecelerate"
	case StageDecelerateNoOrient:
		return "DecelerateNoOrient"
	case StageComplete:
		return "Complete"
	case StageAborted:
		return "Aborted"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Terminal reports whether the stage ends the flight.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageAborted
}

// Valid reports whether s is one of the declared stages.
func (s Stage) Valid() bool {
	switch s {
	case StageNone, StageCancelPerpendicularVelocity, StageOrientAndAccelerate,
		StageOrientAndDecelerate, StageDecelerateNoOrient, StageComplete, StageAborted:
		return true
	}
	return false
}

// Kind tags a controller variant.
type Kind uint8

const (
	KindRetroCruise Kind = iota
	KindOneWayCruise
	KindOrient
	KindRetrograde
	KindSpeedMatch
	KindCalibration
)

var kindNames = map[Kind]string{
	KindRetroCruise:  "RetroCruise",
	KindOneWayCruise: "OneWayCruise",
	KindOrient:       "Orient",
	KindRetrograde:   "Retrograde",
	KindSpeedMatch:   "SpeedMatch",
	KindCalibration:  "Calibration",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Kinds returns every kind in declaration order.
func Kinds() []Kind {
	return []Kind{KindRetroCruise, KindOneWayCruise, KindOrient, KindRetrograde, KindSpeedMatch, KindCalibration}
}

// ParseKind resolves a controller kind by its name.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown controller kind: %q", name)
}

// Termination reasons.
const (
	ReasonDestinationReached = "Destination Reached"
	ReasonTerminated         = "Terminated"
	ReasonAborted            = "Aborted"
	ReasonNoGyros            = "No functional torque actuators"
	ReasonNoThrusters        = "No thrusters available"
	ReasonOvershoot          = "Aborted: overshoot detected"
	ReasonAligned            = "Aligned"
	ReasonStopped            = "Stopped"
	ReasonTargetLost         = "Target Lost"
	ReasonNoVehicle          = "No vehicle"
)

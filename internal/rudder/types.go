package rudder

// ClutchState is the coupling between the hydraulic pump and the rudder.
type ClutchState int

const (
	ClutchDisengaged ClutchState = 0
	ClutchEngaged    ClutchState = 1
)

func (c ClutchState) String() string {
	switch c {
	case ClutchDisengaged:
		return "disengaged"
	case ClutchEngaged:
		return "engaged"
	default:
		return "unknown"
	}
}

// Direction is the raw motor direction code understood by the controller board.
type Direction int

const (
	DirectionStop      Direction = 0
	DirectionPort      Direction = 1
	DirectionStarboard Direction = 2
)

func (d Direction) String() string {
	switch d {
	case DirectionStop:
		return "stop"
	case DirectionPort:
		return "port"
	case DirectionStarboard:
		return "starboard"
	default:
		return "unknown"
	}
}

// Sign returns -1 for port, +1 for starboard and 0 otherwise.
func (d Direction) Sign() float64 {
	switch d {
	case DirectionPort:
		return -1
	case DirectionStarboard:
		return 1
	default:
		return 0
	}
}

// FaultState reports rudder overtravel as sensed by the controller board.
type FaultState int

const (
	FaultNone              FaultState = 0
	FaultPortOverflow      FaultState = 1
	FaultStarboardOverflow FaultState = 2
)

func (f FaultState) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultPortOverflow:
		return "port_overflow"
	case FaultStarboardOverflow:
		return "starboard_overflow"
	default:
		return "unknown"
	}
}

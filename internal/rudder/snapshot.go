package rudder

import "time"

var allReportKeys = []string{
	KeyMessage, KeyStarboardLimit, KeyPortLimit, KeyPosition, KeyFault,
	KeyMotor, KeyDirection, KeyClutch, KeyInterval, KeyEcho,
}

// Snapshot is the last-known hardware state as reported by the controller
// board. Fields only change when the board reports them.
type Snapshot struct {
	Message           string
	PortLimitRaw      int
	StarboardLimitRaw int
	PositionRaw       int
	Fault             FaultState
	MotorRaw          int
	Direction         Direction
	Clutch            ClutchState
	IntervalMs        int
	Echo              bool
	UpdatedAt         time.Time

	seen map[string]bool
}

// Has reports whether the board has reported key at least once.
func (s Snapshot) Has(key string) bool {
	return s.seen[key]
}

// Complete reports whether every status key except the free-text message
// has been reported.
func (s Snapshot) Complete() bool {
	for _, k := range allReportKeys {
		if k == KeyMessage {
			continue
		}
		if !s.seen[k] {
			return false
		}
	}
	return true
}

func (s Snapshot) RudderPosition() float64 { return RudderRawToNorm(s.PositionRaw) }
func (s Snapshot) PortLimit() float64      { return RudderRawToNorm(s.PortLimitRaw) }
func (s Snapshot) StarboardLimit() float64 { return RudderRawToNorm(s.StarboardLimitRaw) }

// Motor is the reported motor state in [-1, 1].
func (s Snapshot) Motor() float64 {
	return MotorRawToNorm(s.MotorRaw, s.Direction)
}

// DisplayMessage is the board message as shown to operators.
func (s Snapshot) DisplayMessage() string {
	if s.Message == BootMessage {
		return "Online"
	}
	return s.Message
}

func (s Snapshot) clone() Snapshot {
	seen := make(map[string]bool, len(s.seen))
	for k, v := range s.seen {
		seen[k] = v
	}
	s.seen = seen
	return s
}

func (s *Snapshot) apply(r Report, at time.Time) {
	switch r.Key {
	case KeyMessage:
		s.Message = r.Text
	case KeyStarboardLimit:
		s.StarboardLimitRaw = r.Value
	case KeyPortLimit:
		s.PortLimitRaw = r.Value
	case KeyPosition:
		s.PositionRaw = r.Value
	case KeyFault:
		s.Fault = FaultState(r.Value)
	case KeyMotor:
		s.MotorRaw = r.Value
	case KeyDirection:
		s.Direction = Direction(r.Value)
	case KeyClutch:
		s.Clutch = ClutchState(r.Value)
	case KeyInterval:
		s.IntervalMs = r.Value
	case KeyEcho:
		s.Echo = r.Value == 1
	default:
		return
	}

	if s.seen == nil {
		s.seen = make(map[string]bool, len(allReportKeys))
	}
	s.seen[r.Key] = true
	s.UpdatedAt = at
}

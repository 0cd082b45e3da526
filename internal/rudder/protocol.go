package rudder

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Outbound command opcodes.
const (
	OpClutch         byte = 'c'
	OpDirection      byte = 'd'
	OpMotor          byte = 's'
	OpPortLimit      byte = 'l'
	OpStarboardLimit byte = 'r'
	OpInterval       byte = 'i'
	OpEcho           byte = 'e'
	OpStatus         byte = '?'
)

// Inbound report keys.
const (
	KeyMessage        = "m"
	KeyStarboardLimit = "r"
	KeyPortLimit      = "l"
	KeyPosition       = "p"
	KeyFault          = "x"
	KeyMotor          = "s"
	KeyDirection      = "d"
	KeyClutch         = "c"
	KeyInterval       = "i"
	KeyEcho           = "e"
)

// BootMessage is sent by the controller board once it is ready for commands.
const BootMessage = "REBOOTED"

var (
	ErrMalformedLine = errors.New("malformed line")
	ErrUnknownKey    = errors.New("unknown key")
	ErrOutOfRange    = errors.New("value out of range")
)

// ProtocolError describes an inbound line that could not be applied.
type ProtocolError struct {
	Line string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: %v: %q", e.Err, e.Line)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Command is one outbound instruction. Encode renders the exact wire bytes
// without the line terminator.
type Command struct {
	Op    byte
	Value int
	Width int
}

func newCommand(op byte, value, limit, width int) (Command, error) {
	if value < 0 || value > limit {
		return Command{}, fmt.Errorf("%c%d: %w (0..%d)", op, value, ErrOutOfRange, limit)
	}
	return Command{Op: op, Value: value, Width: width}, nil
}

func ClutchCommand(c ClutchState) (Command, error) {
	return newCommand(OpClutch, int(c), 1, 1)
}

func DirectionCommand(d Direction) (Command, error) {
	return newCommand(OpDirection, int(d), 2, 1)
}

func MotorCommand(magnitude int) (Command, error) {
	return newCommand(OpMotor, magnitude, MotorRawMax, 3)
}

func PortLimitCommand(raw int) (Command, error) {
	return newCommand(OpPortLimit, raw, RudderRawMax, 4)
}

func StarboardLimitCommand(raw int) (Command, error) {
	return newCommand(OpStarboardLimit, raw, RudderRawMax, 4)
}

func IntervalCommand(ms int) (Command, error) {
	return newCommand(OpInterval, ms, IntervalMsMax, 4)
}

func EchoCommand(on bool) Command {
	c, _ := newCommand(OpEcho, boolToInt(on), 1, 1)
	return c
}

func StatusCommand() Command {
	return Command{Op: OpStatus}
}

// Encode renders the command payload, e.g. "s255" or "l0042".
func (c Command) Encode() string {
	if c.Op == OpStatus {
		return "?"
	}
	return fmt.Sprintf("%c%0*d", c.Op, c.Width, c.Value)
}

func (c Command) String() string { return c.Encode() }

// Report is one decoded inbound "key=value" line.
type Report struct {
	Key   string
	Value int
	Text  string
}

// ParseLine decodes a single inbound line. Surrounding whitespace is ignored.
func ParseLine(line string) (Report, error) {
	line = strings.TrimSpace(line)
	key, value, ok := strings.Cut(line, "=")
	if !ok || key == "" {
		return Report{}, &ProtocolError{Line: line, Err: ErrMalformedLine}
	}

	if key == KeyMessage {
		return Report{Key: key, Text: value}, nil
	}

	limit, known := reportRanges[key]
	if !known {
		return Report{}, &ProtocolError{Line: line, Err: ErrUnknownKey}
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return Report{}, &ProtocolError{Line: line, Err: fmt.Errorf("%w: %v", ErrMalformedLine, err)}
	}
	if n < 0 || n > limit {
		return Report{}, &ProtocolError{Line: line, Err: ErrOutOfRange}
	}

	return Report{Key: key, Value: n}, nil
}

var reportRanges = map[string]int{
	KeyStarboardLimit: RudderRawMax,
	KeyPortLimit:      RudderRawMax,
	KeyPosition:       RudderRawMax,
	KeyFault:          2,
	KeyMotor:          MotorRawMax,
	KeyDirection:      2,
	KeyClutch:         1,
	KeyInterval:       IntervalMsMax,
	KeyEcho:           1,
}

// lineFramer accumulates partial reads and yields complete lines.
type lineFramer struct {
	buf []byte
	max int
}

func (f *lineFramer) push(data []byte) []string {
	var lines []string
	for _, b := range data {
		switch b {
		case '\n':
			if s := strings.TrimSpace(string(f.buf)); s != "" {
				lines = append(lines, s)
			}
			f.buf = f.buf[:0]
		case '\r', 0:
		default:
			if f.max > 0 && len(f.buf) >= f.max {
				// runaway line without terminator; start over
				f.buf = f.buf[:0]
			}
			f.buf = append(f.buf, b)
		}
	}
	return lines
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package autopilot

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/KevinKickass/OpenHelm/internal/anglemath"
	"github.com/KevinKickass/OpenHelm/internal/pid"
	"github.com/google/uuid"
)

type State string

const (
	StateUninitialized State = "uninitialized"
	StateDisengaged    State = "disengaged"
	StateEngaged       State = "engaged"
	StateStopped       State = "stopped"
)

// Course is an optional compass heading. The zero value is NoCourse, which
// means the autopilot is disengaged.
type Course struct {
	heading float64
	set     bool
}

var NoCourse = Course{}

// CourseTo returns a course steering the normalized heading h.
func CourseTo(h float64) Course {
	return Course{heading: anglemath.Normalize(h), set: true}
}

func (c Course) Heading() (float64, bool) { return c.heading, c.set }
func (c Course) IsSet() bool              { return c.set }

func (c Course) String() string {
	if !c.set {
		return "none"
	}
	return strconv.FormatFloat(c.heading, 'f', 1, 64)
}

func (c Course) MarshalJSON() ([]byte, error) {
	if !c.set {
		return []byte("null"), nil
	}
	return json.Marshal(c.heading)
}

type EventType string

const (
	EventEngaged       EventType = "engaged"
	EventDisengaged    EventType = "disengaged"
	EventCourseChanged EventType = "course_changed"
	EventStopped       EventType = "stopped"
)

// Event describes one autopilot transition.
type Event struct {
	Type         EventType `json:"type"`
	EngagementID uuid.UUID `json:"engagement_id"`
	Course       Course    `json:"course"`
	Heading      float64   `json:"heading"`
	Reason       string    `json:"reason,omitempty"`
	At           time.Time `json:"at"`
}

type Status struct {
	State           State     `json:"state"`
	Course          Course    `json:"course"`
	ControlOutput   float64   `json:"control_output"`
	MotorCommand    float64   `json:"motor_command"`
	EngagementID    string    `json:"engagement_id,omitempty"`
	Profile         string    `json:"gain_profile"`
	Gains           pid.Gains `json:"gains"`
	DeadBand        float64   `json:"dead_band"`
	TickIntervalMs  int64     `json:"tick_interval_ms"`
	Ticks           uint64    `json:"ticks"`
	LastStateChange time.Time `json:"last_state_change"`
}

package storage

import (
	"time"

	"github.com/google/uuid"
)

type EntryKind string

const (
	KindEngaged       EntryKind = "engaged"
	KindDisengaged    EntryKind = "disengaged"
	KindCourseChanged EntryKind = "course_changed"
	KindStopped       EntryKind = "stopped"
	KindRudderFault   EntryKind = "rudder_fault"
	KindCalibration   EntryKind = "calibration"
)

// JournalEntry is one row of the autopilot journal.
type JournalEntry struct {
	ID           uuid.UUID  `json:"id"`
	EngagementID *uuid.UUID `json:"engagement_id,omitempty"`
	Kind         EntryKind  `json:"kind"`
	Course       *float64   `json:"course,omitempty"`
	Heading      float64    `json:"heading"`
	Detail       string     `json:"detail,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

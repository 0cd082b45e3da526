package interfaces

import (
	"context"

	"github.com/KevinKickass/OpenHelm/internal/autopilot"
	"github.com/KevinKickass/OpenHelm/internal/calibration"
	"github.com/KevinKickass/OpenHelm/internal/config"
	"github.com/KevinKickass/OpenHelm/internal/pid"
	"github.com/KevinKickass/OpenHelm/internal/rudder"
	"github.com/KevinKickass/OpenHelm/internal/sensor"
	"github.com/KevinKickass/OpenHelm/internal/storage"
	"github.com/KevinKickass/OpenHelm/internal/telemetry"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State          string `json:"state"`
	Error          string `json:"error,omitempty"`
	AutopilotState string `json:"autopilot_state"`
	RudderReady    bool   `json:"rudder_ready"`
	RudderFault    string `json:"rudder_fault"`
	SensorStale    bool   `json:"sensor_stale"`
	JournalEnabled bool   `json:"journal_enabled"`
	LiveClients    int    `json:"live_clients"`
}

// Autopilot is the course-keeping surface exposed to operators.
type Autopilot interface {
	Status() autopilot.Status
	SetCourse(ctx context.Context, course autopilot.Course) error
	AdjustCourse(ctx context.Context, delta float64) (autopilot.Course, error)
	EngageHere(ctx context.Context) (autopilot.Course, error)
	Disengage(ctx context.Context) error
	IsEngaged() bool
	IsOnCourse() bool
	// SetProfile persists the gain profile; it applies from the next engagement.
	SetProfile(profile pid.Profile) error
}

// Rudder is the calibration and diagnostics surface of the rudder link.
type Rudder interface {
	Snapshot() rudder.Snapshot
	SetPortLimit(raw int) error
	SetStarboardLimit(raw int) error
	CapturePortLimit() (int, error)
	CaptureStarboardLimit() (int, error)
	SetReportingInterval(ms int) error
	SetEcho(on bool) error
	RequestStatus() error
}

type CalibrationReader interface {
	Current() calibration.Calibration
}

// SensorFeed accepts readings pushed by the external IMU.
type SensorFeed interface {
	Update(r sensor.Reading) (sensor.Reading, error)
	Latest() (sensor.Reading, bool)
}

type TelemetrySource interface {
	Snapshot() telemetry.Snapshot
}

type JournalReader interface {
	RecentJournalEntries(ctx context.Context, limit int) ([]storage.JournalEntry, error)
}

type LifecycleManager interface {
	Config() *config.Config
	Autopilot() Autopilot
	Rudder() Rudder
	Calibration() CalibrationReader
	Sensor() SensorFeed
	Telemetry() TelemetrySource
	// Journal is nil when the database is disabled.
	Journal() JournalReader
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}

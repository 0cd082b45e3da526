package autopilot

import (
	"fmt"
	"math"
	"time"

	"github.com/KevinKickass/OpenHelm/internal/pid"
)

type Config struct {
	// Loop cadence is the faster of the sensor sampling and board reporting intervals
	SensorInterval    time.Duration
	ReportingInterval time.Duration

	// Time for the rudder to travel from centre to hard over
	RudderHardOverTime time.Duration

	MetricTolerance    float64
	CourseToleranceDeg float64
	MaxTurnRateDps     float64

	Profile pid.Profile
	Gains   pid.Gains

	ShutdownTimeout time.Duration
}

func (c Config) Validate() error {
	if c.SensorInterval <= 0 || c.ReportingInterval <= 0 {
		return fmt.Errorf("sensor and reporting intervals must be positive")
	}
	if c.RudderHardOverTime <= 0 {
		return fmt.Errorf("rudder hard-over time must be positive")
	}
	if c.MaxTurnRateDps <= 0 {
		return fmt.Errorf("max turn rate must be positive")
	}
	if c.MetricTolerance < 0 || c.CourseToleranceDeg < 0 {
		return fmt.Errorf("tolerances must not be negative")
	}
	return nil
}

// TickInterval is the control loop period.
func (c Config) TickInterval() time.Duration {
	return min(c.SensorInterval, c.ReportingInterval)
}

// DeadBand is the larger of the rudder travel achievable in one tick and the
// configured metric tolerance.
func (c Config) DeadBand() float64 {
	perTick := c.TickInterval().Seconds() / c.RudderHardOverTime.Seconds()
	return math.Max(perTick, c.MetricTolerance)
}

package autopilot

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/KevinKickass/OpenHelm/internal/pid"
	"github.com/KevinKickass/OpenHelm/internal/rudder"
	"go.uber.org/zap"
)

type fakeActuator struct {
	mu          sync.Mutex
	motor       float64
	clutch      rudder.ClutchState
	fault       rudder.FaultState
	motorCalls  []float64
	clutchCalls []rudder.ClutchState
	motorErr    error
	clutchErr   error
	clutchStuck bool
}

func (a *fakeActuator) SetMotor(ctx context.Context, v float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.motorCalls = append(a.motorCalls, v)
	if a.motorErr != nil {
		return a.motorErr
	}
	a.motor = v
	return nil
}

func (a *fakeActuator) SetClutch(ctx context.Context, c rudder.ClutchState) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.clutchCalls = append(a.clutchCalls, c)
	if a.clutchErr != nil && c == rudder.ClutchEngaged {
		return a.clutchErr
	}
	if !a.clutchStuck {
		a.clutch = c
	}
	return nil
}

func (a *fakeActuator) Snapshot() rudder.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := rudder.Snapshot{Clutch: a.clutch, Fault: a.fault}
	if a.motor != 0 {
		s.MotorRaw = rudder.MotorRawMax
		s.Direction = rudder.DirectionFromNorm(a.motor)
	}
	return s
}

func (a *fakeActuator) state() (float64, rudder.ClutchState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.motor, a.clutch
}

func (a *fakeActuator) motorCallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.motorCalls)
}

func (a *fakeActuator) set(fn func(a *fakeActuator)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a)
}

type fakeSensor struct {
	mu       sync.Mutex
	heading  float64
	turnRate float64
	heel     float64
	panics   bool
}

func (s *fakeSensor) CompassDeg() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.panics {
		panic("sensor bus error")
	}
	return s.heading
}

func (s *fakeSensor) TurnRateDps() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnRate
}

func (s *fakeSensor) HeelDeg() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heel
}

func (s *fakeSensor) set(heading, turnRate float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heading = heading
	s.turnRate = turnRate
}

func (s *fakeSensor) setPanics(p bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panics = p
}

// slowConfig keeps the background loop out of the way so tests can drive
// step() directly.
func slowConfig() Config {
	return Config{
		SensorInterval:     time.Hour,
		ReportingInterval:  time.Hour,
		RudderHardOverTime: 100 * time.Hour,
		MetricTolerance:    0.05,
		CourseToleranceDeg: 5,
		MaxTurnRateDps:     20,
		Profile:            pid.Calm,
		Gains:              pid.Gains{P: 0.04},
	}
}

func newTestController(t *testing.T, cfg Config, logger *zap.Logger) (*Controller, *fakeActuator, *fakeSensor) {
	t.Helper()

	act := &fakeActuator{}
	sens := &fakeSensor{}
	if logger == nil {
		logger = zap.NewNop()
	}

	c, err := NewController(act, sens, cfg, logger)
	if err != nil {
		t.Fatalf("NewController() err=%v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("Start() err=%v", err)
	}
	t.Cleanup(c.Stop)

	return c, act, sens
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

var errBoom = errors.New("boom")

package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/KevinKickass/OpenHelm/internal/autopilot"
	"github.com/KevinKickass/OpenHelm/internal/rudder"
	"go.uber.org/zap"
)

type stubRudder struct{ snap rudder.Snapshot }

func (s stubRudder) Snapshot() rudder.Snapshot { return s.snap }

type stubPilot struct {
	status   autopilot.Status
	onCourse bool
}

func (s stubPilot) Status() autopilot.Status { return s.status }
func (s stubPilot) IsOnCourse() bool         { return s.onCourse }

type stubSensor struct {
	heading, rate, heel float64
	stale               bool
}

func (s stubSensor) CompassDeg() float64  { return s.heading }
func (s stubSensor) TurnRateDps() float64 { return s.rate }
func (s stubSensor) HeelDeg() float64     { return s.heel }
func (s stubSensor) Stale() bool          { return s.stale }

func TestCollector_Snapshot(t *testing.T) {
	hw := rudder.Snapshot{
		Message:           rudder.BootMessage,
		PortLimitRaw:      0,
		StarboardLimitRaw: 1023,
		PositionRaw:       512,
		Fault:             rudder.FaultStarboardOverflow,
		MotorRaw:          255,
		Direction:         rudder.DirectionPort,
		Clutch:            rudder.ClutchEngaged,
	}
	pilot := stubPilot{
		status: autopilot.Status{
			State:         autopilot.StateEngaged,
			Course:        autopilot.CourseTo(95),
			ControlOutput: -0.3,
			EngagementID:  "abc",
		},
		onCourse: true,
	}
	sens := stubSensor{heading: 93, rate: -1.5, heel: -12, stale: true}

	s := NewCollector(stubRudder{hw}, pilot, sens).Snapshot()

	if s.Clutch != "engaged" || s.Messages != "Online" || s.Fault != "starboard_overflow" {
		t.Fatalf("hardware fields: %+v", s)
	}
	if s.RudderPosition != 0 || s.MotorState != -1 || s.StarboardLimitRaw != 1023 {
		t.Fatalf("rudder fields: %+v", s)
	}
	if h, _ := s.Course.Heading(); h != 95 || s.State != autopilot.StateEngaged || !s.OnCourse {
		t.Fatalf("pilot fields: %+v", s)
	}
	if s.Heading != 93 || s.TurnRate != -1.5 || s.HeelText != "012 PORT" || !s.SensorStale {
		t.Fatalf("sensor fields: %+v", s)
	}
}

func TestPublisher_PushesUntilStopped(t *testing.T) {
	collector := NewCollector(stubRudder{}, stubPilot{}, stubSensor{})

	var mu sync.Mutex
	count := 0
	p := NewPublisher(collector, func(Snapshot) {
		mu.Lock()
		count++
		mu.Unlock()
	}, time.Millisecond, zap.NewNop())

	p.Start()
	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := count
		mu.Unlock()
		if n >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("only %d snapshots published", n)
		}
		time.Sleep(time.Millisecond)
	}
	p.Stop()
	p.Stop()

	mu.Lock()
	after := count
	mu.Unlock()
	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != after {
		t.Fatal("publisher kept running after Stop")
	}
}

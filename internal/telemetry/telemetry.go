// Package telemetry assembles the operator-facing poll snapshot and pushes
// it out periodically.
package telemetry

import (
	"sync"
	"time"

	"github.com/KevinKickass/OpenHelm/internal/autopilot"
	"github.com/KevinKickass/OpenHelm/internal/rudder"
	"github.com/KevinKickass/OpenHelm/internal/sensor"
	"go.uber.org/zap"
)

type RudderSource interface {
	Snapshot() rudder.Snapshot
}

type PilotSource interface {
	Status() autopilot.Status
	IsOnCourse() bool
}

// StalenessReporter is implemented by sensors that know when their data is old.
type StalenessReporter interface {
	Stale() bool
}

type Snapshot struct {
	Clutch            string           `json:"clutch"`
	PortLimit         float64          `json:"port_limit"`
	StarboardLimit    float64          `json:"stbd_limit"`
	PortLimitRaw      int              `json:"port_limit_raw"`
	StarboardLimitRaw int              `json:"stbd_limit_raw"`
	RudderPosition    float64          `json:"rudder_position"`
	RudderPositionRaw int              `json:"rudder_position_raw"`
	MotorState        float64          `json:"motor_state"`
	ControlOutput     float64          `json:"control_output"`
	TurnRate          float64          `json:"turn_rate"`
	Heel              float64          `json:"heel"`
	HeelText          string           `json:"heel_text"`
	Heading           float64          `json:"heading"`
	Course            autopilot.Course `json:"course"`
	Messages          string           `json:"messages"`
	State             autopilot.State  `json:"state"`
	Fault             string           `json:"fault"`
	OnCourse          bool             `json:"on_course"`
	EngagementID      string           `json:"engagement_id,omitempty"`
	SensorStale       bool             `json:"sensor_stale"`
	Timestamp         time.Time        `json:"timestamp"`
}

type Collector struct {
	rudder RudderSource
	pilot  PilotSource
	sensor sensor.Sensor
}

func NewCollector(r RudderSource, p PilotSource, s sensor.Sensor) *Collector {
	return &Collector{rudder: r, pilot: p, sensor: s}
}

// Snapshot reads every source once.
func (c *Collector) Snapshot() Snapshot {
	hw := c.rudder.Snapshot()
	status := c.pilot.Status()
	heel := c.sensor.HeelDeg()

	s := Snapshot{
		Clutch:            hw.Clutch.String(),
		PortLimit:         hw.PortLimit(),
		StarboardLimit:    hw.StarboardLimit(),
		PortLimitRaw:      hw.PortLimitRaw,
		StarboardLimitRaw: hw.StarboardLimitRaw,
		RudderPosition:    hw.RudderPosition(),
		RudderPositionRaw: hw.PositionRaw,
		MotorState:        hw.Motor(),
		ControlOutput:     status.ControlOutput,
		TurnRate:          c.sensor.TurnRateDps(),
		Heel:              heel,
		HeelText:          sensor.HeelText(heel),
		Heading:           c.sensor.CompassDeg(),
		Course:            status.Course,
		Messages:          hw.DisplayMessage(),
		State:             status.State,
		Fault:             hw.Fault.String(),
		OnCourse:          c.pilot.IsOnCourse(),
		EngagementID:      status.EngagementID,
		Timestamp:         time.Now(),
	}

	if sr, ok := c.sensor.(StalenessReporter); ok {
		s.SensorStale = sr.Stale()
	}

	return s
}

// TelemetrySnapshot lets the collector greet websocket clients.
func (c *Collector) TelemetrySnapshot() any {
	return c.Snapshot()
}

// Sink receives every published snapshot.
type Sink func(Snapshot)

// Publisher pushes a snapshot to the sink at a fixed interval.
type Publisher struct {
	collector *Collector
	sink      Sink
	interval  time.Duration
	logger    *zap.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func NewPublisher(collector *Collector, sink Sink, interval time.Duration, logger *zap.Logger) *Publisher {
	return &Publisher{
		collector: collector,
		sink:      sink,
		interval:  interval,
		logger:    logger.Named("telemetry"),
		stopChan:  make(chan struct{}),
	}
}

func (p *Publisher) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	p.running = true
	p.wg.Add(1)
	go p.publishLoop()

	p.logger.Info("Telemetry publisher started", zap.Duration("interval", p.interval))
}

func (p *Publisher) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	close(p.stopChan)
	p.wg.Wait()

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.logger.Info("Telemetry publisher stopped")
}

func (p *Publisher) publishLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.publish()
		}
	}
}

func (p *Publisher) publish() {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Telemetry publish panicked", zap.Any("panic", r))
		}
	}()

	p.sink(p.collector.Snapshot())
}

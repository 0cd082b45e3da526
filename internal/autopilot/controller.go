// Package autopilot runs the heading-hold loop: it owns the engage/disengage
// state machine and turns PID output into bang-bang pump commands.
package autopilot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KevinKickass/OpenHelm/internal/anglemath"
	"github.com/KevinKickass/OpenHelm/internal/pid"
	"github.com/KevinKickass/OpenHelm/internal/rudder"
	"github.com/KevinKickass/OpenHelm/internal/sensor"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNotRunning     = errors.New("autopilot not running")
	ErrAlreadyStarted = errors.New("autopilot already started")
	ErrNotEngaged     = errors.New("autopilot not engaged")
	ErrInvalidCourse  = errors.New("invalid course")
)

// Actuator is the rudder hardware as seen by the autopilot.
type Actuator interface {
	SetMotor(ctx context.Context, v float64) error
	SetClutch(ctx context.Context, c rudder.ClutchState) error
	Snapshot() rudder.Snapshot
}

// Listener receives transition events. It is called with the controller
// lock held and must not call back into the controller.
type Listener func(Event)

type Controller struct {
	actuator Actuator
	sensor   sensor.Sensor
	cfg      Config
	logger   *zap.Logger

	tick     time.Duration
	deadBand float64

	// mu serializes transitions and ticks
	mu            sync.Mutex
	state         State
	course        Course
	controller    *pid.Controller
	lastMotor     float64
	engagementID  uuid.UUID
	lastChange    time.Time
	controlOutput float64

	statusMu sync.RWMutex
	status   Status

	listenersMu sync.RWMutex
	listeners   []Listener

	ticks atomic.Uint64

	runMu    sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	loopCtx  context.Context
	cancel   context.CancelFunc

	now func() time.Time
}

func NewController(actuator Actuator, s sensor.Sensor, cfg Config, logger *zap.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid autopilot config: %w", err)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 2 * time.Second
	}

	c := &Controller{
		actuator: actuator,
		sensor:   s,
		cfg:      cfg,
		logger:   logger.Named("autopilot"),
		tick:     cfg.TickInterval(),
		deadBand: cfg.DeadBand(),
		state:    StateUninitialized,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
	c.lastChange = c.now()
	c.publishLocked()

	return c, nil
}

// AddListener registers fn for transition events.
func (c *Controller) AddListener(fn Listener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Start launches the control loop and returns once it has completed its
// first iteration.
func (c *Controller) Start() error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	c.mu.Lock()
	if c.state != StateUninitialized {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrAlreadyStarted, state)
	}
	c.setStateLocked(StateDisengaged)
	c.mu.Unlock()

	c.loopCtx, c.cancel = context.WithCancel(context.Background())
	c.running = true

	ready := make(chan struct{})
	c.wg.Add(1)
	go c.loop(ready)
	<-ready

	c.logger.Info("Autopilot started",
		zap.Duration("tick_interval", c.tick),
		zap.Float64("dead_band", c.deadBand),
		zap.Stringer("gain_profile", c.cfg.Profile),
		zap.Float64("p", c.cfg.Gains.P),
		zap.Float64("i", c.cfg.Gains.I),
		zap.Float64("d", c.cfg.Gains.D))

	return nil
}

// Stop ends the control loop, waits for it to exit and disengages.
func (c *Controller) Stop() {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if !c.running {
		return
	}
	c.running = false

	close(c.stopChan)
	c.cancel()
	c.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ShutdownTimeout)
	defer cancel()

	c.mu.Lock()
	if c.state == StateEngaged {
		if err := c.disengageLocked(ctx, "shutdown"); err != nil {
			c.logger.Warn("Disengage on shutdown incomplete", zap.Error(err))
		}
	}
	c.setStateLocked(StateStopped)
	c.emitLocked(EventStopped, "shutdown")
	c.mu.Unlock()

	c.logger.Info("Autopilot stopped", zap.Uint64("ticks", c.ticks.Load()))
}

// SetGains switches the gain profile. An engagement in progress keeps its
// controller; the new gains apply from the next engagement.
func (c *Controller) SetGains(profile pid.Profile, gains pid.Gains) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cfg.Profile = profile
	c.cfg.Gains = gains

	c.logger.Info("Gain profile changed",
		zap.String("gain_profile", profile.String()),
		zap.Float64("p", gains.P),
		zap.Float64("i", gains.I),
		zap.Float64("d", gains.D),
		zap.Bool("engaged", c.state == StateEngaged))
	c.publishLocked()
}

// SetCourse engages on, changes, or (with NoCourse) clears the course.
func (c *Controller) SetCourse(ctx context.Context, course Course) error {
	if h, ok := course.Heading(); ok && (math.IsNaN(h) || math.IsInf(h, 0)) {
		return ErrInvalidCourse
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateUninitialized || c.state == StateStopped {
		return ErrNotRunning
	}

	heading, set := course.Heading()
	switch {
	case !set && c.state == StateDisengaged:
		c.logger.Debug("Autopilot is already disengaged")
		return nil

	case set && c.state == StateDisengaged:
		return c.engageLocked(ctx, heading)

	case set:
		c.course = course
		c.logger.Info("New course", zap.Float64("course", heading))
		c.emitLocked(EventCourseChanged, "")
		c.publishLocked()
		return nil

	default:
		return c.disengageLocked(ctx, "operator")
	}
}

// AdjustCourse turns the current course by delta degrees.
func (c *Controller) AdjustCourse(ctx context.Context, delta float64) (Course, error) {
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return NoCourse, ErrInvalidCourse
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateEngaged {
		return c.course, ErrNotEngaged
	}

	heading, _ := c.course.Heading()
	c.course = CourseTo(heading + delta)

	c.logger.Info("Course adjusted",
		zap.Float64("delta", delta),
		zap.Stringer("course", c.course))
	c.emitLocked(EventCourseChanged, fmt.Sprintf("adjust %+.0f", delta))
	c.publishLocked()

	return c.course, nil
}

// EngageHere holds the current compass heading.
func (c *Controller) EngageHere(ctx context.Context) (Course, error) {
	course := CourseTo(c.sensor.CompassDeg())
	if err := c.SetCourse(ctx, course); err != nil {
		return NoCourse, err
	}
	return course, nil
}

// Disengage clears the course.
func (c *Controller) Disengage(ctx context.Context) error {
	return c.SetCourse(ctx, NoCourse)
}

func (c *Controller) engageLocked(ctx context.Context, heading float64) error {
	c.controller = pid.New(c.cfg.Gains)
	c.course = CourseTo(heading)
	c.lastMotor = 0
	c.controlOutput = 0
	c.engagementID = uuid.New()

	if err := c.actuator.SetClutch(ctx, rudder.ClutchEngaged); err != nil {
		c.logger.Error("Clutch engage failed, staying disengaged", zap.Error(err))
		if rerr := c.actuator.SetClutch(ctx, rudder.ClutchDisengaged); rerr != nil {
			c.logger.Warn("Clutch release failed", zap.Error(rerr))
		}
		c.controller = nil
		c.course = NoCourse
		c.engagementID = uuid.Nil
		c.publishLocked()
		return fmt.Errorf("engage clutch: %w", err)
	}

	c.setStateLocked(StateEngaged)

	c.logger.Info("Autopilot engaged",
		zap.Stringer("course", c.course),
		zap.String("engagement_id", c.engagementID.String()))
	c.emitLocked(EventEngaged, "")

	return nil
}

func (c *Controller) disengageLocked(ctx context.Context, reason string) error {
	var errs []error

	if err := c.actuator.SetMotor(ctx, 0); err != nil {
		errs = append(errs, fmt.Errorf("stop motor: %w", err))
	}
	if err := c.actuator.SetClutch(ctx, rudder.ClutchDisengaged); err != nil {
		errs = append(errs, fmt.Errorf("release clutch: %w", err))
	}

	c.emitLocked(EventDisengaged, reason)

	c.controller = nil
	c.course = NoCourse
	c.lastMotor = 0
	c.controlOutput = 0
	c.setStateLocked(StateDisengaged)

	err := errors.Join(errs...)
	if err != nil {
		c.logger.Warn("Autopilot disengaged with errors", zap.String("reason", reason), zap.Error(err))
	} else {
		c.logger.Info("Autopilot disengaged", zap.String("reason", reason))
	}
	c.engagementID = uuid.Nil
	c.publishLocked()

	return err
}

func (c *Controller) setStateLocked(state State) {
	if c.state != state {
		c.logger.Info("Autopilot state changed",
			zap.String("from", string(c.state)),
			zap.String("to", string(state)))
		c.lastChange = c.now()
	}
	c.state = state
	c.publishLocked()
}

func (c *Controller) emitLocked(t EventType, reason string) {
	ev := Event{
		Type:         t,
		EngagementID: c.engagementID,
		Course:       c.course,
		Heading:      c.sensor.CompassDeg(),
		Reason:       reason,
		At:           c.now(),
	}

	c.listenersMu.RLock()
	defer c.listenersMu.RUnlock()
	for _, fn := range c.listeners {
		fn(ev)
	}
}

func (c *Controller) publishLocked() {
	s := Status{
		State:           c.state,
		Course:          c.course,
		ControlOutput:   c.controlOutput,
		MotorCommand:    c.lastMotor,
		Profile:         c.cfg.Profile.String(),
		Gains:           c.cfg.Gains,
		DeadBand:        c.deadBand,
		TickIntervalMs:  c.tick.Milliseconds(),
		Ticks:           c.ticks.Load(),
		LastStateChange: c.lastChange,
	}
	if c.engagementID != uuid.Nil {
		s.EngagementID = c.engagementID.String()
	}

	c.statusMu.Lock()
	c.status = s
	c.statusMu.Unlock()
}

// Status returns the last published state without waiting on a tick.
func (c *Controller) Status() Status {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.status
}

func (c *Controller) State() State { return c.Status().State }

func (c *Controller) Course() Course { return c.Status().Course }

// ControlOutput is the last PID output.
func (c *Controller) ControlOutput() float64 { return c.Status().ControlOutput }

// IsEngaged requires both the local state and the board's clutch report.
func (c *Controller) IsEngaged() bool {
	return c.State() == StateEngaged && c.actuator.Snapshot().Clutch == rudder.ClutchEngaged
}

// IsOnCourse reports whether the heading is within tolerance of the course.
// Always true while disengaged.
func (c *Controller) IsOnCourse() bool {
	heading, ok := c.Course().Heading()
	if !ok {
		return true
	}
	return anglemath.IsOnCourse(heading, c.sensor.CompassDeg(), c.cfg.CourseToleranceDeg)
}

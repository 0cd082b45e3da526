package rudder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KevinKickass/OpenHelm/internal/calibration"
	"go.uber.org/zap"
)

var (
	ErrClosed              = errors.New("rudder link closed")
	ErrBootTimeout         = errors.New("controller board did not report boot")
	ErrConfirmationTimeout = errors.New("command not confirmed by controller board")
	ErrNoPosition          = errors.New("rudder position not reported yet")
	ErrNotApplied          = errors.New("calibration saved but not applied by controller board")
	ErrInvalidLimits       = calibration.ErrInvalidLimits
)

const maxReadsPerPoll = 64

type Config struct {
	PollInterval   time.Duration
	BootTimeout    time.Duration
	ConfirmTimeout time.Duration
	ConfirmPoll    time.Duration
	StatusTimeout  time.Duration
	MaxLineLength  int
}

func DefaultConfig() Config {
	return Config{
		PollInterval:   20 * time.Millisecond,
		BootTimeout:    10 * time.Second,
		ConfirmTimeout: 500 * time.Millisecond,
		ConfirmPoll:    10 * time.Millisecond,
		StatusTimeout:  time.Second,
		MaxLineLength:  128,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.BootTimeout <= 0 {
		c.BootTimeout = d.BootTimeout
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = d.ConfirmTimeout
	}
	if c.ConfirmPoll <= 0 {
		c.ConfirmPoll = d.ConfirmPoll
	}
	if c.StatusTimeout <= 0 {
		c.StatusTimeout = d.StatusTimeout
	}
	if c.MaxLineLength <= 0 {
		c.MaxLineLength = d.MaxLineLength
	}
	return c
}

// CalibrationStore persists the values the link pushes to the board on boot.
type CalibrationStore interface {
	Current() calibration.Calibration
	Update(fn func(*calibration.Calibration) error) (calibration.Calibration, error)
}

// FaultListener is called from the reader goroutine on every fault transition.
type FaultListener func(previous, current FaultState)

// Link is the session with the rudder controller board. A background reader
// applies inbound reports to the snapshot; command methods write directly to
// the port and may be called from any goroutine.
type Link struct {
	port   Port
	cfg    Config
	store  CalibrationStore
	logger *zap.Logger

	writeMu sync.Mutex
	closed  bool

	snapMu sync.RWMutex
	snap   Snapshot

	booted   chan struct{}
	bootOnce sync.Once
	ready    atomic.Bool

	listenersMu sync.RWMutex
	listeners   []FaultListener

	stopChan  chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool
	closeOnce sync.Once

	framer      lineFramer
	readBuf     []byte
	readFailing bool

	now func() time.Time
}

func New(port Port, cfg Config, store CalibrationStore, logger *zap.Logger) *Link {
	cfg = cfg.withDefaults()
	return &Link{
		port:     port,
		cfg:      cfg,
		store:    store,
		logger:   logger.Named("rudder"),
		booted:   make(chan struct{}),
		stopChan: make(chan struct{}),
		framer:   lineFramer{max: cfg.MaxLineLength},
		readBuf:  make([]byte, 256),
		now:      time.Now,
	}
}

// Open starts the reader and runs the startup handshake: wait for the boot
// message, push stored calibration, zero motor and clutch, then pull a full
// status report.
func (l *Link) Open(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = true
	l.wg.Add(1)
	go l.readLoop()
	l.mu.Unlock()

	l.logger.Info("Waiting for controller board", zap.Duration("boot_timeout", l.cfg.BootTimeout))

	if err := l.waitBoot(ctx); err != nil {
		return err
	}

	if err := l.pushCalibration(); err != nil {
		return fmt.Errorf("failed to push calibration: %w", err)
	}

	if err := l.SetMotor(ctx, 0); err != nil {
		l.logger.Warn("Motor stop not confirmed during startup", zap.Error(err))
	}
	if err := l.SetClutch(ctx, ClutchDisengaged); err != nil {
		l.logger.Warn("Clutch release not confirmed during startup", zap.Error(err))
	}

	if err := l.RequestStatus(); err != nil {
		return fmt.Errorf("failed to request status: %w", err)
	}
	if err := l.await(ctx, l.cfg.StatusTimeout, "status", func(s *Snapshot) bool {
		return s.Complete()
	}); err != nil {
		l.logger.Warn("Snapshot incomplete after status request", zap.Error(err))
	}

	l.ready.Store(true)

	snap := l.Snapshot()
	l.logger.Info("Rudder link ready",
		zap.Int("port_limit", snap.PortLimitRaw),
		zap.Int("starboard_limit", snap.StarboardLimitRaw),
		zap.Int("position", snap.PositionRaw),
		zap.Stringer("fault", snap.Fault))

	return nil
}

// Ready reports whether the startup handshake completed.
func (l *Link) Ready() bool {
	return l.ready.Load()
}

func (l *Link) waitBoot(ctx context.Context) error {
	timer := time.NewTimer(l.cfg.BootTimeout)
	defer timer.Stop()

	select {
	case <-l.booted:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w within %s", ErrBootTimeout, l.cfg.BootTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Link) pushCalibration() error {
	cal := l.store.Current()

	interval, err := IntervalCommand(cal.ReportingIntervalMs)
	if err != nil {
		return err
	}
	port, err := PortLimitCommand(cal.PortLimit)
	if err != nil {
		return err
	}
	stbd, err := StarboardLimitCommand(cal.StarboardLimit)
	if err != nil {
		return err
	}

	for _, cmd := range []Command{EchoCommand(cal.Echo), port, stbd, interval} {
		if err := l.send(cmd); err != nil {
			return err
		}
	}

	l.logger.Info("Calibration pushed",
		zap.Bool("echo", cal.Echo),
		zap.Int("port_limit", cal.PortLimit),
		zap.Int("starboard_limit", cal.StarboardLimit),
		zap.Int("reporting_interval_ms", cal.ReportingIntervalMs))

	return nil
}

// SetMotor drives the pump. v is a normalized demand in [-1, 1]; the sign
// picks the direction and the magnitude is bang-bang. It blocks until the
// board echoes the new state or the confirmation timeout elapses.
func (l *Link) SetMotor(ctx context.Context, v float64) error {
	dir := DirectionFromNorm(v)
	magnitude := MotorMagnitudeToRaw(v)

	dirCmd, err := DirectionCommand(dir)
	if err != nil {
		return err
	}
	motorCmd, err := MotorCommand(magnitude)
	if err != nil {
		return err
	}

	if err := l.send(dirCmd); err != nil {
		return err
	}
	if err := l.send(motorCmd); err != nil {
		return err
	}

	return l.confirm(ctx, "motor", func(s *Snapshot) bool {
		if !s.Has(KeyMotor) || s.MotorRaw != magnitude {
			return false
		}
		return magnitude == 0 || (s.Has(KeyDirection) && s.Direction == dir)
	})
}

// SetClutch engages or releases the clutch and waits for confirmation.
func (l *Link) SetClutch(ctx context.Context, c ClutchState) error {
	cmd, err := ClutchCommand(c)
	if err != nil {
		return err
	}
	if err := l.send(cmd); err != nil {
		return err
	}

	return l.confirm(ctx, "clutch", func(s *Snapshot) bool {
		return s.Has(KeyClutch) && s.Clutch == c
	})
}

// SetPortLimit stores and pushes an explicit raw port limit.
func (l *Link) SetPortLimit(raw int) error {
	return l.setLimit(raw, true)
}

// SetStarboardLimit stores and pushes an explicit raw starboard limit.
func (l *Link) SetStarboardLimit(raw int) error {
	return l.setLimit(raw, false)
}

// CapturePortLimit uses the current rudder position as the port limit.
func (l *Link) CapturePortLimit() (int, error) {
	raw, err := l.currentPosition()
	if err != nil {
		return 0, err
	}
	return raw, l.setLimit(raw, true)
}

// CaptureStarboardLimit uses the current rudder position as the starboard limit.
func (l *Link) CaptureStarboardLimit() (int, error) {
	raw, err := l.currentPosition()
	if err != nil {
		return 0, err
	}
	return raw, l.setLimit(raw, false)
}

func (l *Link) currentPosition() (int, error) {
	l.snapMu.RLock()
	defer l.snapMu.RUnlock()

	if !l.snap.Has(KeyPosition) {
		return 0, ErrNoPosition
	}
	return l.snap.PositionRaw, nil
}

func (l *Link) setLimit(raw int, port bool) error {
	var (
		cmd  Command
		err  error
		side = "starboard"
	)
	if port {
		side = "port"
		cmd, err = PortLimitCommand(raw)
	} else {
		cmd, err = StarboardLimitCommand(raw)
	}
	if err != nil {
		return err
	}

	cal, err := l.store.Update(func(c *calibration.Calibration) error {
		if port {
			c.PortLimit = raw
		} else {
			c.StarboardLimit = raw
		}
		if c.PortLimit >= c.StarboardLimit {
			return fmt.Errorf("%w: port=%d starboard=%d", ErrInvalidLimits, c.PortLimit, c.StarboardLimit)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := l.apply(cmd); err != nil {
		return err
	}

	l.logger.Info("Rudder limit set",
		zap.String("side", side),
		zap.Int("raw", raw),
		zap.Int("port_limit", cal.PortLimit),
		zap.Int("starboard_limit", cal.StarboardLimit))

	return nil
}

// SetReportingInterval changes how often the board reports its status.
func (l *Link) SetReportingInterval(ms int) error {
	if ms <= 0 {
		return fmt.Errorf("reporting interval %dms: %w", ms, ErrOutOfRange)
	}
	cmd, err := IntervalCommand(ms)
	if err != nil {
		return err
	}

	if _, err := l.store.Update(func(c *calibration.Calibration) error {
		c.ReportingIntervalMs = ms
		return nil
	}); err != nil {
		return err
	}
	if err := l.apply(cmd); err != nil {
		return err
	}

	l.logger.Info("Reporting interval set", zap.Int("interval_ms", ms))
	return nil
}

// SetEcho toggles command echo on the board. With echo off, motor and clutch
// commands are not confirmed.
func (l *Link) SetEcho(on bool) error {
	if _, err := l.store.Update(func(c *calibration.Calibration) error {
		c.Echo = on
		return nil
	}); err != nil {
		return err
	}
	if err := l.apply(EchoCommand(on)); err != nil {
		return err
	}

	l.logger.Info("Echo set", zap.Bool("echo", on))
	return nil
}

// apply sends a calibration command that is already persisted. A failure
// leaves the stored value in place; the board picks it up on the next boot.
func (l *Link) apply(cmd Command) error {
	if err := l.send(cmd); err != nil {
		l.logger.Warn("Calibration saved but not sent",
			zap.Stringer("command", cmd),
			zap.Error(err))
		return fmt.Errorf("%w (%s): %w", ErrNotApplied, cmd, err)
	}
	return nil
}

// RequestStatus asks the board to report every status key.
func (l *Link) RequestStatus() error {
	return l.send(StatusCommand())
}

// Snapshot returns a copy of the last-known hardware state.
func (l *Link) Snapshot() Snapshot {
	l.snapMu.RLock()
	defer l.snapMu.RUnlock()
	return l.snap.clone()
}

// AddFaultListener registers fn for fault transitions.
func (l *Link) AddFaultListener(fn FaultListener) {
	l.listenersMu.Lock()
	defer l.listenersMu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Close stops the motor, releases the clutch, stops the reader and closes the
// port. Safe to call more than once.
func (l *Link) Close() error {
	var err error

	l.closeOnce.Do(func() {
		l.logger.Info("Closing rudder link")

		if l.isRunning() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*l.cfg.ConfirmTimeout)
			if err := l.SetMotor(ctx, 0); err != nil {
				l.logger.Warn("Motor stop not confirmed on close", zap.Error(err))
			}
			if err := l.SetClutch(ctx, ClutchDisengaged); err != nil {
				l.logger.Warn("Clutch release not confirmed on close", zap.Error(err))
			}
			cancel()
			l.stopReader()
		} else {
			dirCmd, _ := DirectionCommand(DirectionStop)
			motorCmd, _ := MotorCommand(0)
			clutchCmd, _ := ClutchCommand(ClutchDisengaged)
			for _, cmd := range []Command{dirCmd, motorCmd, clutchCmd} {
				if err := l.send(cmd); err != nil {
					l.logger.Warn("Failed to send shutdown command", zap.Stringer("command", cmd), zap.Error(err))
				}
			}
		}

		l.writeMu.Lock()
		l.closed = true
		err = l.port.Close()
		l.writeMu.Unlock()

		l.ready.Store(false)
		l.logger.Info("Rudder link closed")
	})

	return err
}

func (l *Link) isRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Link) stopReader() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	close(l.stopChan)
	l.wg.Wait()

	l.mu.Lock()
	l.running = false
	l.mu.Unlock()
}

func (l *Link) send(cmd Command) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if l.closed {
		return ErrClosed
	}

	if _, err := l.port.Write([]byte(cmd.Encode() + "\n")); err != nil {
		return fmt.Errorf("write %s: %w", cmd, err)
	}

	l.logger.Debug("Command sent", zap.Stringer("command", cmd))
	return nil
}

func (l *Link) confirm(ctx context.Context, what string, ok func(*Snapshot) bool) error {
	if !l.store.Current().Echo {
		return nil
	}
	return l.await(ctx, l.cfg.ConfirmTimeout, what, ok)
}

func (l *Link) await(ctx context.Context, timeout time.Duration, what string, ok func(*Snapshot) bool) error {
	if l.check(ok) {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ticker := time.NewTicker(l.cfg.ConfirmPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if l.check(ok) {
				return nil
			}
			return fmt.Errorf("%s after %s: %w", what, timeout, ErrConfirmationTimeout)
		case <-ticker.C:
			if l.check(ok) {
				return nil
			}
		}
	}
}

func (l *Link) check(ok func(*Snapshot) bool) bool {
	l.snapMu.RLock()
	defer l.snapMu.RUnlock()
	return ok(&l.snap)
}

func (l *Link) readLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.drain()
		}
	}
}

// drain reads until the port has nothing pending.
func (l *Link) drain() {
	for i := 0; i < maxReadsPerPoll; i++ {
		n, err := l.port.Read(l.readBuf)
		if n > 0 {
			for _, line := range l.framer.push(l.readBuf[:n]) {
				l.handleLine(line)
			}
		}

		if err != nil {
			if !l.readFailing {
				l.logger.Warn("Read from controller board failed", zap.Error(err))
			}
			l.readFailing = true
			return
		}
		if l.readFailing {
			l.logger.Info("Read from controller board recovered")
			l.readFailing = false
		}

		if n == 0 {
			return
		}
	}
}

func (l *Link) handleLine(line string) {
	report, err := ParseLine(line)
	if err != nil {
		l.logger.Warn("Dropping line from controller board", zap.Error(err))
		return
	}

	l.snapMu.Lock()
	previous := l.snap.Fault
	l.snap.apply(report, l.now())
	current := l.snap.Fault
	l.snapMu.Unlock()

	switch {
	case report.Key == KeyMessage:
		l.logger.Info("Controller board message", zap.String("message", report.Text))
		if report.Text == BootMessage {
			l.onBoot()
		}
	case report.Key == KeyFault && previous != current:
		l.logger.Warn("Rudder fault changed",
			zap.Stringer("from", previous),
			zap.Stringer("to", current))
		l.notifyFault(previous, current)
	}
}

func (l *Link) onBoot() {
	first := false
	l.bootOnce.Do(func() {
		first = true
		close(l.booted)
	})
	if first || !l.ready.Load() {
		return
	}

	// Board reset mid-session: it came back with its own defaults
	l.logger.Warn("Controller board rebooted, restoring calibration")
	if err := l.pushCalibration(); err != nil {
		l.logger.Error("Failed to restore calibration", zap.Error(err))
	}
}

func (l *Link) notifyFault(previous, current FaultState) {
	l.listenersMu.RLock()
	defer l.listenersMu.RUnlock()
	for _, fn := range l.listeners {
		fn(previous, current)
	}
}

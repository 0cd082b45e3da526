package system

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/OpenHelm/internal/api/rest"
	"github.com/KevinKickass/OpenHelm/internal/api/websocket"
	"github.com/KevinKickass/OpenHelm/internal/autopilot"
	"github.com/KevinKickass/OpenHelm/internal/calibration"
	"github.com/KevinKickass/OpenHelm/internal/config"
	"github.com/KevinKickass/OpenHelm/internal/interfaces"
	"github.com/KevinKickass/OpenHelm/internal/pid"
	"github.com/KevinKickass/OpenHelm/internal/rudder"
	"github.com/KevinKickass/OpenHelm/internal/sensor"
	"github.com/KevinKickass/OpenHelm/internal/storage"
	"github.com/KevinKickass/OpenHelm/internal/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type LifecycleManager struct {
	config *config.Config
	logger *zap.Logger

	port        rudder.Port
	calibration *calibration.Store
	link        *rudder.Link
	rudder      journaledRudder
	feed        *sensor.Feed
	pilot       *autopilot.Controller
	helm        profiledPilot
	collector   *telemetry.Collector
	publisher   *telemetry.Publisher
	storage     *storage.PostgresClient
	journal     *storage.Journal

	wsHub     *websocket.Hub
	hubCancel context.CancelFunc

	restServer *rest.Server

	stateMu      sync.RWMutex
	currentState SystemState
	lastError    string

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

type Option func(*LifecycleManager)

// WithPort uses an already open port instead of opening the configured
// serial device.
func WithPort(port rudder.Port) Option {
	return func(lm *LifecycleManager) {
		lm.port = port
	}
}

func NewLifecycleManager(cfg *config.Config, logger *zap.Logger, opts ...Option) *LifecycleManager {
	lm := &LifecycleManager{
		config:       cfg,
		logger:       logger,
		currentState: StateInitializing,
		shutdownChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(lm)
	}
	return lm
}

// Start brings the system up: calibration, rudder link, autopilot, optional
// journal, live hub, telemetry and REST. On failure everything already
// started is torn down again.
func (lm *LifecycleManager) Start(ctx context.Context) error {
	lm.logger.Info("Starting OpenHelm autopilot")

	if err := lm.start(ctx); err != nil {
		lm.setError(err)

		teardownCtx, cancel := context.WithTimeout(context.Background(), lm.config.Server.ShutdownTimeout)
		defer cancel()
		if terr := lm.teardown(teardownCtx); terr != nil {
			lm.logger.Warn("Teardown after failed start incomplete", zap.Error(terr))
		}
		return err
	}

	lm.setState(StateRunning)
	lm.broadcastStatus("")

	lm.logger.Info("System started successfully",
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.String("serial_device", lm.config.Serial.Device),
		zap.Bool("journal_enabled", lm.journal != nil))

	return nil
}

func (lm *LifecycleManager) start(ctx context.Context) error {
	store, err := calibration.NewStore(lm.config.Calibration.File, lm.config.Calibration.Defaults(), lm.logger)
	if err != nil {
		return fmt.Errorf("failed to load calibration: %w", err)
	}
	lm.calibration = store

	if lm.port == nil {
		port, err := rudder.OpenSerial(lm.config.Serial.PortConfig())
		if err != nil {
			if ports, lerr := rudder.ListSerialPorts(); lerr == nil {
				lm.logger.Error("Serial device unavailable",
					zap.String("device", lm.config.Serial.Device),
					zap.Strings("available", ports))
			}
			return fmt.Errorf("failed to open rudder link: %w", err)
		}
		lm.port = port
	}

	lm.link = rudder.New(lm.port, lm.config.Rudder.LinkConfig(), store, lm.logger)
	lm.rudder = journaledRudder{Link: lm.link, record: lm.recordCalibration}
	if err := lm.link.Open(ctx); err != nil {
		return fmt.Errorf("failed to start rudder link: %w", err)
	}

	lm.feed = sensor.NewFeed(lm.config.Sensor.StaleAfter)

	table, err := lm.config.PID.Table()
	if err != nil {
		return err
	}
	pilotCfg, err := lm.autopilotConfig(store.Current(), table)
	if err != nil {
		return err
	}
	pilot, err := autopilot.NewController(lm.link, lm.feed, pilotCfg, lm.logger)
	if err != nil {
		return err
	}
	lm.pilot = pilot
	lm.helm = profiledPilot{Controller: pilot, store: store, table: table, record: lm.recordCalibration}

	if lm.config.Database.Enabled {
		if err := lm.startJournal(ctx); err != nil {
			return err
		}
	}

	lm.collector = telemetry.NewCollector(lm.link, lm.pilot, lm.feed)

	lm.wsHub = websocket.NewHub(lm.logger)
	lm.wsHub.SetSnapshotProvider(lm.collector)
	hubCtx, cancel := context.WithCancel(context.Background())
	lm.hubCancel = cancel
	go lm.wsHub.Run(hubCtx)

	lm.pilot.AddListener(lm.onAutopilotEvent)
	lm.link.AddFaultListener(lm.onRudderFault)

	if err := lm.pilot.Start(); err != nil {
		return fmt.Errorf("failed to start autopilot: %w", err)
	}

	lm.publisher = telemetry.NewPublisher(lm.collector, func(s telemetry.Snapshot) {
		lm.wsHub.Broadcast(websocket.NewTelemetryMessage(s))
	}, lm.config.Telemetry.Interval, lm.logger)
	lm.publisher.Start()

	lm.restServer = rest.NewServer(lm.config, lm, lm.logger, lm.wsHub)
	if err := lm.restServer.Start(); err != nil {
		return fmt.Errorf("failed to start REST API: %w", err)
	}

	return nil
}

func (lm *LifecycleManager) autopilotConfig(cal calibration.Calibration, table pid.Table) (autopilot.Config, error) {
	profile, err := pid.ParseProfile(cal.GainProfile)
	if err != nil {
		return autopilot.Config{}, fmt.Errorf("calibration gain_profile: %w", err)
	}

	ap := lm.config.Autopilot
	return autopilot.Config{
		SensorInterval:     ap.SensorInterval,
		ReportingInterval:  time.Duration(cal.ReportingIntervalMs) * time.Millisecond,
		RudderHardOverTime: ap.RudderHardOverTime,
		MetricTolerance:    ap.MetricTolerance,
		CourseToleranceDeg: ap.CourseToleranceDeg,
		MaxTurnRateDps:     ap.MaxTurnRateDps,
		Profile:            profile,
		Gains:              table.Lookup(profile),
	}, nil
}

func (lm *LifecycleManager) startJournal(ctx context.Context) error {
	db, err := storage.NewPostgresClient(ctx, lm.config.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	lm.storage = db

	if err := db.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to create journal schema: %w", err)
	}

	lm.journal = storage.NewJournal(db, lm.config.Database.JournalBuffer, lm.logger)
	lm.journal.Start()

	lm.logger.Info("Database connected successfully",
		zap.String("host", lm.config.Database.Host),
		zap.String("database", lm.config.Database.Database))
	return nil
}

// onAutopilotEvent runs under the controller lock; everything here must
// only queue work.
func (lm *LifecycleManager) onAutopilotEvent(ev autopilot.Event) {
	lm.wsHub.Broadcast(websocket.NewAutopilotEventMessage(ev))

	if lm.journal == nil {
		return
	}
	entry := storage.JournalEntry{
		Kind:      storage.EntryKind(ev.Type),
		Heading:   ev.Heading,
		Detail:    ev.Reason,
		CreatedAt: ev.At,
	}
	if ev.EngagementID != uuid.Nil {
		id := ev.EngagementID
		entry.EngagementID = &id
	}
	if h, ok := ev.Course.Heading(); ok {
		entry.Course = &h
	}
	lm.journal.Record(entry)
}

func (lm *LifecycleManager) onRudderFault(previous, current rudder.FaultState) {
	lm.logger.Warn("Rudder fault changed",
		zap.Stringer("previous", previous),
		zap.Stringer("fault", current))

	lm.wsHub.Broadcast(websocket.NewRudderFaultMessage(current.String(), previous.String()))

	if lm.journal == nil {
		return
	}
	lm.journal.Record(storage.JournalEntry{
		Kind:    storage.KindRudderFault,
		Heading: lm.feed.CompassDeg(),
		Detail:  fmt.Sprintf("%s -> %s", previous, current),
	})
}

func (lm *LifecycleManager) recordCalibration(detail string) {
	lm.logger.Info("Calibration changed", zap.String("change", detail))

	if lm.journal == nil {
		return
	}
	lm.journal.Record(storage.JournalEntry{
		Kind:    storage.KindCalibration,
		Heading: lm.feed.CompassDeg(),
		Detail:  detail,
	})
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")

		lm.setState(StateStopping)
		lm.broadcastStatus("")

		shutdownErr = lm.teardown(ctx)

		lm.setState(StateStopped)
		close(lm.shutdownChan)
	})

	return shutdownErr
}

// Done is closed once Shutdown has completed.
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.shutdownChan
}

// teardown stops in reverse start order. Every step tolerates components
// that were never started.
func (lm *LifecycleManager) teardown(ctx context.Context) error {
	done := make(chan error, 1)

	go func() {
		var errs []error

		if lm.restServer != nil {
			if err := lm.restServer.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("rest api shutdown failed: %w", err))
			}
		}
		if lm.publisher != nil {
			lm.publisher.Stop()
		}
		// Stopping the autopilot disengages while the link can still talk.
		if lm.pilot != nil {
			lm.pilot.Stop()
		}
		if lm.link != nil {
			if err := lm.link.Close(); err != nil {
				errs = append(errs, fmt.Errorf("rudder link close failed: %w", err))
			}
		} else if lm.port != nil {
			if err := lm.port.Close(); err != nil {
				errs = append(errs, fmt.Errorf("serial port close failed: %w", err))
			}
		}
		if lm.hubCancel != nil {
			lm.hubCancel()
			<-lm.wsHub.Done()
		}
		if lm.journal != nil {
			lm.journal.Stop()
		}
		if lm.storage != nil {
			lm.storage.Close()
		}

		done <- errors.Join(errs...)
	}()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
		lm.logger.Info("Graceful shutdown completed")
		return nil
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		return fmt.Errorf("shutdown timeout exceeded: %w", ctx.Err())
	}
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()

	if err := ValidateTransition(lm.currentState, state); err != nil && lm.currentState != state {
		lm.logger.Warn("Unexpected system state change", zap.Error(err))
	}
	lm.currentState = state
}

func (lm *LifecycleManager) setError(err error) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	lm.currentState = StateError
	lm.lastError = err.Error()
}

func (lm *LifecycleManager) broadcastStatus(message string) {
	if lm.wsHub == nil {
		return
	}
	lm.stateMu.RLock()
	state := lm.currentState
	lm.stateMu.RUnlock()

	lm.wsHub.Broadcast(websocket.NewSystemStatusMessage(state.String(), message))
}

// State returns the current lifecycle state.
func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	status := interfaces.SystemStatus{
		State: lm.currentState.String(),
		Error: lm.lastError,
	}
	lm.stateMu.RUnlock()

	if lm.pilot != nil {
		status.AutopilotState = string(lm.pilot.State())
	}
	if lm.link != nil {
		status.RudderReady = lm.link.Ready()
		status.RudderFault = lm.link.Snapshot().Fault.String()
	}
	if lm.feed != nil {
		status.SensorStale = lm.feed.Stale()
	}
	if lm.wsHub != nil {
		status.LiveClients = lm.wsHub.GetClientCount()
	}
	status.JournalEnabled = lm.journal != nil

	return status
}

// Config returns the configuration
func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}

func (lm *LifecycleManager) Autopilot() interfaces.Autopilot {
	return lm.helm
}

func (lm *LifecycleManager) Rudder() interfaces.Rudder {
	return lm.rudder
}

func (lm *LifecycleManager) Calibration() interfaces.CalibrationReader {
	return lm.calibration
}

func (lm *LifecycleManager) Sensor() interfaces.SensorFeed {
	return lm.feed
}

func (lm *LifecycleManager) Telemetry() interfaces.TelemetrySource {
	return lm.collector
}

// Journal returns nil when the database is disabled.
func (lm *LifecycleManager) Journal() interfaces.JournalReader {
	if lm.storage == nil {
		return nil
	}
	return lm.storage
}

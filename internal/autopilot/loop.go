package autopilot

import (
	"math"
	"time"

	"github.com/KevinKickass/OpenHelm/internal/rudder"
	"go.uber.org/zap"
)

// BangBang picks a motor command in {-1, 0, 1}: 0 while desired is within
// deadBand of measured, otherwise the sign of the shortfall.
func BangBang(desired, measured, deadBand float64) float64 {
	switch {
	case math.Abs(desired-measured) <= deadBand:
		return 0
	case desired > measured:
		return 1
	default:
		return -1
	}
}

// inhibitForFault drops commands that would drive further into an overtravel.
func inhibitForFault(command float64, fault rudder.FaultState) float64 {
	switch {
	case fault == rudder.FaultPortOverflow && command < 0:
		return 0
	case fault == rudder.FaultStarboardOverflow && command > 0:
		return 0
	default:
		return command
	}
}

func (c *Controller) loop(ready chan<- struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	c.step()
	close(ready)

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.step()
		}
	}
}

// step runs one control iteration. Nothing in here may take the loop down.
// consistentLocked reports whether a course and a PID controller are held
// exactly when the autopilot is engaged.
func (c *Controller) consistentLocked() bool {
	engaged := c.state == StateEngaged
	return engaged == c.course.IsSet() && engaged == (c.controller != nil)
}

func (c *Controller) step() {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Control tick panicked", zap.Any("panic", r))
		}
	}()
	c.ticks.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.publishLocked()

	if !c.consistentLocked() {
		c.logger.Error("Course and controller out of step with state",
			zap.String("state", string(c.state)),
			zap.Stringer("course", c.course),
			zap.Bool("controller", c.controller != nil))
		return
	}
	if c.state != StateEngaged {
		return
	}

	course, _ := c.course.Heading()

	snap := c.actuator.Snapshot()
	if snap.Clutch != rudder.ClutchEngaged {
		c.logger.Debug("Waiting for clutch confirmation")
		return
	}

	heading := c.sensor.CompassDeg()
	desired, err := c.controller.Compute(course, heading)
	if err != nil {
		c.logger.Warn("Control computation failed", zap.Error(err))
		return
	}
	c.controlOutput = desired

	measured := math.Max(-1, math.Min(1, c.sensor.TurnRateDps()/c.cfg.MaxTurnRateDps))
	command := BangBang(desired, measured, c.deadBand)

	if inhibited := inhibitForFault(command, snap.Fault); inhibited != command {
		c.logger.Warn("Motor command inhibited by rudder fault",
			zap.Float64("command", command),
			zap.Stringer("fault", snap.Fault))
		command = inhibited
	}

	c.logger.Debug("Control tick",
		zap.Float64("course", course),
		zap.Float64("heading", heading),
		zap.Float64("desired", desired),
		zap.Float64("measured", measured),
		zap.Float64("command", command))

	if command == c.lastMotor {
		return
	}

	if err := c.actuator.SetMotor(c.loopCtx, command); err != nil {
		c.logger.Warn("Motor command failed",
			zap.Float64("command", command),
			zap.Error(err))
		return
	}
	c.lastMotor = command
}

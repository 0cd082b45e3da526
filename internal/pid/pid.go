// Package pid implements the heading-hold control law. The error term is the
// signed shortest angle from the measured heading to the target, in degrees.
package pid

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/KevinKickass/OpenHelm/internal/anglemath"
)

var ErrInvalidSample = errors.New("invalid sample")

// Controller is a PID controller over compass headings. State is reset only
// by constructing a new Controller. Not safe for concurrent use.
type Controller struct {
	gains Gains

	integral  float64
	prevError float64
	prevAt    time.Time
	output    float64

	now func() time.Time
}

func New(gains Gains) *Controller {
	return newWithClock(gains, time.Now)
}

func newWithClock(gains Gains, now func() time.Time) *Controller {
	return &Controller{
		gains:  gains,
		prevAt: now(),
		now:    now,
	}
}

// Compute returns the control output in [-1, 1] for the given target and
// measured headings. Positive output steers to starboard.
func (c *Controller) Compute(target, measured float64) (float64, error) {
	if !finite(target) || !finite(measured) {
		return c.output, fmt.Errorf("%w: target=%v measured=%v", ErrInvalidSample, target, measured)
	}

	now := c.now()
	dt := now.Sub(c.prevAt).Seconds()
	err := anglemath.Difference(measured, target)

	var derivative float64
	if dt > 0 {
		c.integral += err * dt
		derivative = (err - c.prevError) / dt
	}

	out := c.gains.P*err + c.gains.I*c.integral + c.gains.D*derivative
	c.output = math.Max(-1, math.Min(1, out))

	c.prevError = err
	c.prevAt = now

	return c.output, nil
}

// Output is the last computed output.
func (c *Controller) Output() float64 { return c.output }

func (c *Controller) Gains() Gains { return c.gains }

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

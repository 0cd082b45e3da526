// Package sensor holds the attitude readings the autopilot steers by. The
// IMU driver lives outside this process and pushes readings in.
package sensor

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/KevinKickass/OpenHelm/internal/anglemath"
)

var ErrInvalidReading = errors.New("invalid sensor reading")

// Sensor is polled by the autopilot on every tick.
type Sensor interface {
	CompassDeg() float64
	TurnRateDps() float64
	HeelDeg() float64
}

type Reading struct {
	HeadingDeg  float64   `json:"heading_deg"`
	TurnRateDps float64   `json:"turn_rate_dps"`
	HeelDeg     float64   `json:"heel_deg"`
	At          time.Time `json:"at"`
}

// Feed keeps the latest pushed reading.
type Feed struct {
	mu         sync.RWMutex
	last       Reading
	received   bool
	staleAfter time.Duration
	now        func() time.Time
}

func NewFeed(staleAfter time.Duration) *Feed {
	return &Feed{
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Update stores r as the latest reading. The heading is normalized; a zero
// timestamp is replaced with the receive time.
func (f *Feed) Update(r Reading) (Reading, error) {
	for _, v := range []float64{r.HeadingDeg, r.TurnRateDps, r.HeelDeg} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Reading{}, fmt.Errorf("%w: %+v", ErrInvalidReading, r)
		}
	}

	r.HeadingDeg = anglemath.Normalize(r.HeadingDeg)

	f.mu.Lock()
	defer f.mu.Unlock()

	if r.At.IsZero() {
		r.At = f.now()
	}
	f.last = r
	f.received = true

	return r, nil
}

// Latest returns the last reading and whether one was ever received.
func (f *Feed) Latest() (Reading, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.last, f.received
}

// Stale reports whether no reading arrived within the stale window.
func (f *Feed) Stale() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.received {
		return true
	}
	return f.staleAfter > 0 && f.now().Sub(f.last.At) > f.staleAfter
}

func (f *Feed) CompassDeg() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.last.HeadingDeg
}

func (f *Feed) TurnRateDps() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.last.TurnRateDps
}

func (f *Feed) HeelDeg() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.last.HeelDeg
}

// HeelText renders heel for display: "LEVEL" within 1.5 degrees, otherwise
// e.g. "012 STBD" or "007 PORT".
func HeelText(heel float64) string {
	switch {
	case heel >= 1.5:
		return fmt.Sprintf("%03.0f STBD", heel)
	case heel <= -1.5:
		return fmt.Sprintf("%03.0f PORT", -heel)
	default:
		return "LEVEL"
	}
}

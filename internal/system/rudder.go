package system

import (
	"errors"
	"fmt"

	"github.com/KevinKickass/OpenHelm/internal/rudder"
)

// journaledRudder records every persisted calibration change, including those
// the board has not applied yet.
type journaledRudder struct {
	*rudder.Link
	record func(detail string)
}

func (r journaledRudder) journal(err error, detail string) error {
	switch {
	case err == nil:
		r.record(detail)
	case errors.Is(err, rudder.ErrNotApplied):
		r.record(detail + " not applied")
	}
	return err
}

func (r journaledRudder) SetPortLimit(raw int) error {
	return r.journal(r.Link.SetPortLimit(raw), fmt.Sprintf("port_limit=%d", raw))
}

func (r journaledRudder) SetStarboardLimit(raw int) error {
	return r.journal(r.Link.SetStarboardLimit(raw), fmt.Sprintf("starboard_limit=%d", raw))
}

func (r journaledRudder) CapturePortLimit() (int, error) {
	raw, err := r.Link.CapturePortLimit()
	return raw, r.journal(err, fmt.Sprintf("port_limit=%d captured", raw))
}

func (r journaledRudder) CaptureStarboardLimit() (int, error) {
	raw, err := r.Link.CaptureStarboardLimit()
	return raw, r.journal(err, fmt.Sprintf("starboard_limit=%d captured", raw))
}

func (r journaledRudder) SetReportingInterval(ms int) error {
	return r.journal(r.Link.SetReportingInterval(ms), fmt.Sprintf("reporting_interval_ms=%d", ms))
}

func (r journaledRudder) SetEcho(on bool) error {
	return r.journal(r.Link.SetEcho(on), fmt.Sprintf("echo=%t", on))
}

package system

import (
	"github.com/KevinKickass/OpenHelm/internal/autopilot"
	"github.com/KevinKickass/OpenHelm/internal/calibration"
	"github.com/KevinKickass/OpenHelm/internal/pid"
)

// profiledPilot persists gain profile changes before the controller sees them.
type profiledPilot struct {
	*autopilot.Controller
	store  *calibration.Store
	table  pid.Table
	record func(detail string)
}

func (p profiledPilot) SetProfile(profile pid.Profile) error {
	if _, err := p.store.Update(func(c *calibration.Calibration) error {
		c.GainProfile = profile.String()
		return nil
	}); err != nil {
		return err
	}

	p.Controller.SetGains(profile, p.table.Lookup(profile))
	p.record("gain_profile=" + profile.String())
	return nil
}

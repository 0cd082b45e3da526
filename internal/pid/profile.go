package pid

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownProfile = errors.New("unknown gain profile")

// Profile names a sea-state tuning.
type Profile int

const (
	Calm Profile = iota
	Moderate
	Rough
)

var profileNames = map[Profile]string{
	Calm:     "calm",
	Moderate: "moderate",
	Rough:    "rough",
}

func (p Profile) String() string {
	if name, ok := profileNames[p]; ok {
		return name
	}
	return fmt.Sprintf("profile(%d)", int(p))
}

// ParseProfile resolves a profile name, case-insensitively.
func ParseProfile(s string) (Profile, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for p, n := range profileNames {
		if n == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownProfile, s)
}

type Gains struct {
	P float64 `json:"p"`
	I float64 `json:"i"`
	D float64 `json:"d"`
}

// DefaultGains is tuned for an error in degrees and an output in [-1, 1].
var DefaultGains = map[Profile]Gains{
	Calm:     {P: 0.04, I: 0.0008, D: 0.02},
	Moderate: {P: 0.06, I: 0.001, D: 0.03},
	Rough:    {P: 0.08, I: 0.0005, D: 0.05},
}

// Table maps profiles to gains. Profiles missing from the table fall back to
// DefaultGains.
type Table map[Profile]Gains

func (t Table) Lookup(p Profile) Gains {
	if g, ok := t[p]; ok {
		return g
	}
	return DefaultGains[p]
}

// Package calibration persists operator calibration (rudder limits, device
// reporting settings, gain profile) as a YAML overrides file merged over the
// configured defaults.
package calibration

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var ErrInvalidLimits = errors.New("port limit must be less than starboard limit")

type Calibration struct {
	PortLimit           int    `yaml:"port_limit" json:"port_limit"`
	StarboardLimit      int    `yaml:"starboard_limit" json:"starboard_limit"`
	ReportingIntervalMs int    `yaml:"reporting_interval_ms" json:"reporting_interval_ms"`
	Echo                bool   `yaml:"echo" json:"echo"`
	GainProfile         string `yaml:"gain_profile" json:"gain_profile"`
}

func (c Calibration) Validate() error {
	if c.PortLimit < 0 || c.StarboardLimit > 1023 {
		return fmt.Errorf("rudder limits out of range: port=%d starboard=%d", c.PortLimit, c.StarboardLimit)
	}
	if c.PortLimit >= c.StarboardLimit {
		return fmt.Errorf("%w: port=%d starboard=%d", ErrInvalidLimits, c.PortLimit, c.StarboardLimit)
	}
	if c.ReportingIntervalMs <= 0 || c.ReportingIntervalMs > 9999 {
		return fmt.Errorf("reporting interval out of range: %d", c.ReportingIntervalMs)
	}
	return nil
}

// Store owns the persisted calibration. With an empty path nothing is written
// to disk.
type Store struct {
	path      string
	validator *Validator
	logger    *zap.Logger

	mu      sync.Mutex
	current Calibration
}

// NewStore loads overrides from path (if present) on top of defaults.
func NewStore(path string, defaults Calibration, logger *zap.Logger) (*Store, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	s := &Store{
		path:      path,
		validator: validator,
		logger:    logger,
		current:   defaults,
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) load() error {
	if s.path == "" {
		return s.current.Validate()
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Info("No calibration overrides found, using defaults",
			zap.String("path", s.path))
		return s.current.Validate()
	}
	if err != nil {
		return fmt.Errorf("failed to read calibration %s: %w", s.path, err)
	}

	if err := s.validator.ValidateYAML(data); err != nil {
		return fmt.Errorf("validation failed for %s: %w", s.path, err)
	}

	merged := s.current
	if err := yaml.Unmarshal(data, &merged); err != nil {
		return fmt.Errorf("failed to unmarshal calibration: %w", err)
	}
	if err := merged.Validate(); err != nil {
		return fmt.Errorf("invalid calibration in %s: %w", s.path, err)
	}

	s.current = merged
	s.logger.Info("Calibration overrides loaded",
		zap.String("path", s.path),
		zap.Int("port_limit", merged.PortLimit),
		zap.Int("starboard_limit", merged.StarboardLimit),
		zap.Int("reporting_interval_ms", merged.ReportingIntervalMs),
		zap.Bool("echo", merged.Echo),
		zap.String("gain_profile", merged.GainProfile))

	return nil
}

// Current returns a copy of the active calibration.
func (s *Store) Current() Calibration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Update applies fn to a copy of the calibration, validates the result and
// persists it. If fn returns an error nothing changes.
func (s *Store) Update(fn func(*Calibration) error) (Calibration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	if err := fn(&next); err != nil {
		return s.current, err
	}
	if err := next.Validate(); err != nil {
		return s.current, err
	}

	if err := s.save(next); err != nil {
		return s.current, err
	}

	s.current = next
	return next, nil
}

func (s *Store) save(c Calibration) error {
	if s.path == "" {
		return nil
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal calibration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create calibration dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write calibration: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace calibration: %w", err)
	}

	s.logger.Info("Calibration saved", zap.String("path", s.path))
	return nil
}

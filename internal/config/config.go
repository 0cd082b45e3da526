package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/KevinKickass/OpenHelm/internal/calibration"
	"github.com/KevinKickass/OpenHelm/internal/pid"
	"github.com/KevinKickass/OpenHelm/internal/rudder"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	Serial      SerialConfig      `mapstructure:"serial"`
	Rudder      RudderConfig      `mapstructure:"rudder"`
	Calibration CalibrationConfig `mapstructure:"calibration"`
	Autopilot   AutopilotConfig   `mapstructure:"autopilot"`
	PID         PIDConfig         `mapstructure:"pid"`
	Sensor      SensorConfig      `mapstructure:"sensor"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Database    DatabaseConfig    `mapstructure:"database"`
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

type SerialConfig struct {
	Device      string        `mapstructure:"device"`
	BaudRate    int           `mapstructure:"baud_rate"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

type RudderConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	BootTimeout    time.Duration `mapstructure:"boot_timeout"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
	ConfirmPoll    time.Duration `mapstructure:"confirm_poll"`
	StatusTimeout  time.Duration `mapstructure:"status_timeout"`
	MaxLineLength  int           `mapstructure:"max_line_length"`
}

// CalibrationConfig holds the factory calibration. Operator changes are
// saved to File and override these values on the next start.
type CalibrationConfig struct {
	File                string `mapstructure:"file"`
	PortLimit           int    `mapstructure:"port_limit"`
	StarboardLimit      int    `mapstructure:"starboard_limit"`
	ReportingIntervalMs int    `mapstructure:"reporting_interval_ms"`
	Echo                bool   `mapstructure:"echo"`
	GainProfile         string `mapstructure:"gain_profile"`
}

type AutopilotConfig struct {
	SensorInterval     time.Duration `mapstructure:"sensor_interval"`
	RudderHardOverTime time.Duration `mapstructure:"rudder_hard_over_time"`
	MetricTolerance    float64       `mapstructure:"metric_tolerance"`
	CourseToleranceDeg float64       `mapstructure:"course_tolerance_deg"`
	MaxTurnRateDps     float64       `mapstructure:"max_turn_rate_dps"`
}

type PIDConfig struct {
	Profiles map[string]GainsConfig `mapstructure:"profiles"`
}

type GainsConfig struct {
	P float64 `mapstructure:"p"`
	I float64 `mapstructure:"i"`
	D float64 `mapstructure:"d"`
}

type SensorConfig struct {
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

type TelemetryConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	JournalBuffer  int    `mapstructure:"journal_buffer"`
}

// Load reads the YAML file at path (optional when empty) and applies
// defaults and HELM_* environment overrides, e.g. HELM_SERIAL_DEVICE.
func Load(path string) (*Config, error) {
	return load(path, nil)
}

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"serial-device":   "serial.device",
	"http-port":       "server.http_port",
	"log-level":       "log.level",
	"log-development": "log.development",
}

// NewFlagSet defines the command line. Flags that are set win over the file
// and the environment.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringP("config", "c", "configs/config.yaml", "path to the YAML config file, empty for defaults only")
	fs.String("serial-device", "/dev/ttyUSB0", "serial device of the rudder controller")
	fs.Int("http-port", 8080, "port for the REST API and live feed")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.Bool("log-development", false, "human readable console logging")
	return fs
}

// LoadFlags loads the file named by --config and binds the remaining flags
// on top of it.
func LoadFlags(fs *pflag.FlagSet) (*Config, error) {
	path, err := fs.GetString("config")
	if err != nil {
		return nil, err
	}

	return load(path, func(v *viper.Viper) error {
		for name, key := range flagKeys {
			if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
				return fmt.Errorf("failed to bind --%s: %w", name, err)
			}
		}
		return nil
	})
}

func load(path string, bind func(v *viper.Viper) error) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix("HELM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if bind != nil {
		if err := bind(v); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("log.development", false)
	v.SetDefault("log.level", "info")

	v.SetDefault("serial.device", "/dev/ttyUSB0")
	v.SetDefault("serial.baud_rate", 115200)
	v.SetDefault("serial.read_timeout", "20ms")

	v.SetDefault("rudder.poll_interval", "20ms")
	v.SetDefault("rudder.boot_timeout", "10s")
	v.SetDefault("rudder.confirm_timeout", "500ms")
	v.SetDefault("rudder.confirm_poll", "10ms")
	v.SetDefault("rudder.status_timeout", "1s")
	v.SetDefault("rudder.max_line_length", 128)

	v.SetDefault("calibration.file", "calibration.yaml")
	v.SetDefault("calibration.port_limit", 0)
	v.SetDefault("calibration.starboard_limit", 1023)
	v.SetDefault("calibration.reporting_interval_ms", 250)
	v.SetDefault("calibration.echo", true)
	v.SetDefault("calibration.gain_profile", pid.Calm.String())

	v.SetDefault("autopilot.sensor_interval", "100ms")
	v.SetDefault("autopilot.rudder_hard_over_time", "5s")
	v.SetDefault("autopilot.metric_tolerance", 0.05)
	v.SetDefault("autopilot.course_tolerance_deg", 5.0)
	v.SetDefault("autopilot.max_turn_rate_dps", 10.0)

	for profile, g := range pid.DefaultGains {
		prefix := "pid.profiles." + profile.String()
		v.SetDefault(prefix+".p", g.P)
		v.SetDefault(prefix+".i", g.I)
		v.SetDefault(prefix+".d", g.D)
	}

	v.SetDefault("sensor.stale_after", "2s")
	v.SetDefault("telemetry.interval", "1s")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "openhelm")
	v.SetDefault("database.user", "openhelm")
	v.SetDefault("database.max_connections", 4)
	v.SetDefault("database.journal_buffer", 256)
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("server.http_port %d out of range", c.Server.HTTPPort))
	}
	if c.Serial.Device == "" {
		errs = append(errs, errors.New("serial.device required"))
	}
	if c.Serial.BaudRate <= 0 {
		errs = append(errs, fmt.Errorf("serial.baud_rate %d must be positive", c.Serial.BaudRate))
	}

	if err := c.Calibration.Defaults().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("calibration: %w", err))
	}
	if _, err := pid.ParseProfile(c.Calibration.GainProfile); err != nil {
		errs = append(errs, fmt.Errorf("calibration.gain_profile: %w", err))
	}

	if c.Autopilot.SensorInterval <= 0 {
		errs = append(errs, errors.New("autopilot.sensor_interval must be positive"))
	}
	if c.Autopilot.RudderHardOverTime <= 0 {
		errs = append(errs, errors.New("autopilot.rudder_hard_over_time must be positive"))
	}
	if c.Autopilot.MaxTurnRateDps <= 0 {
		errs = append(errs, errors.New("autopilot.max_turn_rate_dps must be positive"))
	}

	if _, err := c.PID.Table(); err != nil {
		errs = append(errs, err)
	}

	if c.Telemetry.Interval <= 0 {
		errs = append(errs, errors.New("telemetry.interval must be positive"))
	}

	if c.Database.Enabled && c.Database.Host == "" {
		errs = append(errs, errors.New("database.host required when database is enabled"))
	}

	return errors.Join(errs...)
}

func (c *SerialConfig) PortConfig() rudder.SerialConfig {
	return rudder.SerialConfig{
		Device:      c.Device,
		BaudRate:    c.BaudRate,
		ReadTimeout: c.ReadTimeout,
	}
}

func (c *RudderConfig) LinkConfig() rudder.Config {
	return rudder.Config{
		PollInterval:   c.PollInterval,
		BootTimeout:    c.BootTimeout,
		ConfirmTimeout: c.ConfirmTimeout,
		ConfirmPoll:    c.ConfirmPoll,
		StatusTimeout:  c.StatusTimeout,
		MaxLineLength:  c.MaxLineLength,
	}
}

func (c *CalibrationConfig) Defaults() calibration.Calibration {
	return calibration.Calibration{
		PortLimit:           c.PortLimit,
		StarboardLimit:      c.StarboardLimit,
		ReportingIntervalMs: c.ReportingIntervalMs,
		Echo:                c.Echo,
		GainProfile:         c.GainProfile,
	}
}

// Table resolves the configured gain profiles.
func (c *PIDConfig) Table() (pid.Table, error) {
	table := make(pid.Table, len(c.Profiles))
	for name, g := range c.Profiles {
		profile, err := pid.ParseProfile(name)
		if err != nil {
			return nil, fmt.Errorf("pid.profiles: %w", err)
		}
		table[profile] = pid.Gains{P: g.P, I: g.I, D: g.D}
	}
	return table, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/crawlerctl/internal/actuation"
	"github.com/san-kum/crawlerctl/internal/calibration"
	"github.com/san-kum/crawlerctl/internal/control"
	"github.com/san-kum/crawlerctl/internal/hardware"
	"github.com/san-kum/crawlerctl/internal/logging"
	"github.com/san-kum/crawlerctl/internal/safety"
	"github.com/san-kum/crawlerctl/internal/transport"
	"github.com/san-kum/crawlerctl/internal/vehicle"
)

var ErrInvalidConfig = errors.New("config: invalid")

const (
	DefaultListen          = ":81"
	DefaultCalibrationPath = "crawler-trims.yaml"
	DefaultRunsDir         = "runs"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = logging.FormatText
)

type Config struct {
	LogLevel    string            `yaml:"log_level"`
	LogFormat   string            `yaml:"log_format"`
	Control     ControlConfig     `yaml:"control"`
	Safety      SafetyConfig      `yaml:"safety"`
	Actuation   ActuationConfig   `yaml:"actuation"`
	Server      ServerConfig      `yaml:"server"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Hardware    hardware.Config   `yaml:"hardware"`
	Storage     StorageConfig     `yaml:"storage"`
}

type ControlConfig struct {
	Interval         time.Duration `yaml:"interval"`
	Watchdog         time.Duration `yaml:"watchdog"`
	EscStabilization time.Duration `yaml:"esc_stabilization"`
	HardTimeout      time.Duration `yaml:"hard_timeout"`
	NeutralDwell     time.Duration `yaml:"neutral_dwell"`
}

// SafetyConfig also carries the deadband the state machine uses to read
// intent, so both always agree.
type SafetyConfig struct {
	Alpha    float64 `yaml:"alpha"`
	Deadband float64 `yaml:"deadband"`
	SlewStep float64 `yaml:"slew_step"`
}

type ActuationConfig struct {
	DutyMin     uint32  `yaml:"duty_min"`
	DutyNeutral uint32  `yaml:"duty_neutral"`
	DutyMax     uint32  `yaml:"duty_max"`
	Expo        float64 `yaml:"expo"`
	Frequency   uint32  `yaml:"frequency"`
	Resolution  uint32  `yaml:"resolution"`
}

type ServerConfig struct {
	Listen     string `yaml:"listen"`
	Path       string `yaml:"path"`
	StatusPath string `yaml:"status_path"`
}

type CalibrationConfig struct {
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

type StorageConfig struct {
	Dir string `yaml:"dir"`
}

func DefaultConfig() *Config {
	ctl := control.DefaultConfig()
	sf := safety.DefaultConfig()
	act := actuation.DefaultConfig()
	return &Config{
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
		Control: ControlConfig{
			Interval:         ctl.Interval,
			Watchdog:         ctl.Watchdog,
			EscStabilization: ctl.EscStabilization,
			HardTimeout:      ctl.HardTimeout,
			NeutralDwell:     ctl.NeutralDwell,
		},
		Safety: SafetyConfig{
			Alpha:    sf.Alpha,
			Deadband: sf.Deadband,
			SlewStep: sf.SlewStep,
		},
		Actuation: ActuationConfig{
			DutyMin:     act.DutyMin,
			DutyNeutral: act.DutyNeutral,
			DutyMax:     act.DutyMax,
			Expo:        act.Expo,
			Frequency:   act.Frequency,
			Resolution:  act.Resolution,
		},
		Server: ServerConfig{
			Listen:     DefaultListen,
			Path:       transport.DefaultPath,
			StatusPath: transport.DefaultStatusPath,
		},
		Calibration: CalibrationConfig{
			Path:      DefaultCalibrationPath,
			Namespace: calibration.DefaultNamespace,
		},
		Hardware: hardware.DefaultConfig(),
		Storage:  StorageConfig{Dir: DefaultRunsDir},
	}
}

// Load overlays the file at path on the defaults.
func Load(path string) (*Config, error) {
	return LoadOver(path, DefaultConfig())
}

// LoadOver overlays the file at path on base, which is modified in place.
func LoadOver(path string, base *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, base); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := base.Validate(); err != nil {
		return nil, err
	}
	return base, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Write encodes cfg as yaml to w.
func Write(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

// Validate rejects values the control core cannot run with.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	check(c.Control.Interval > 0, "control.interval must be positive")
	check(c.Control.Watchdog > c.Control.Interval, "control.watchdog must exceed control.interval")
	check(c.Control.HardTimeout >= 0, "control.hard_timeout must not be negative")
	check(c.Control.NeutralDwell >= 0, "control.neutral_dwell must not be negative")
	check(c.Control.EscStabilization >= 0, "control.esc_stabilization must not be negative")

	check(c.Safety.Alpha > 0 && c.Safety.Alpha <= 1, "safety.alpha must be in (0, 1]")
	check(c.Safety.Deadband >= 0 && c.Safety.Deadband < vehicle.AxisLimit, "safety.deadband must be in [0, 100)")
	check(c.Safety.SlewStep > 0, "safety.slew_step must be positive")

	a := c.Actuation
	check(a.DutyMin < a.DutyNeutral && a.DutyNeutral < a.DutyMax, "actuation duties must satisfy min < neutral < max")
	check(a.Resolution > 0 && a.Resolution <= 16, "actuation.resolution must be in [1, 16]")
	check(a.DutyMax < uint32(1)<<a.Resolution, "actuation.duty_max exceeds the resolution")
	check(a.Frequency > 0, "actuation.frequency must be positive")
	check(a.Expo > 0, "actuation.expo must be positive")

	check(strings.HasPrefix(c.Server.Path, "/"), "server.path must start with /")
	check(strings.HasPrefix(c.Server.StatusPath, "/"), "server.status_path must start with /")
	check(c.Server.Path != c.Server.StatusPath, "server.path and server.status_path must differ")

	if _, err := ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}
	check(c.LogFormat == logging.FormatText || c.LogFormat == logging.FormatJSON, "log_format must be text or json")

	if len(problems) > 0 {
		return fmt.Errorf("%w: %w: %s", ErrInvalidConfig, vehicle.ErrOutOfRange, strings.Join(problems, "; "))
	}
	return nil
}

// ParseLevel maps a level name onto slog.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("log_level %q: %w", name, err)
	}
	return level, nil
}

func (c *Config) ControlConfig() control.Config {
	return control.Config{
		Interval:         c.Control.Interval,
		Watchdog:         c.Control.Watchdog,
		EscStabilization: c.Control.EscStabilization,
		HardTimeout:      c.Control.HardTimeout,
		NeutralDwell:     c.Control.NeutralDwell,
		Deadband:         c.Safety.Deadband,
	}
}

func (c *Config) SafetyConfig() safety.Config {
	return safety.Config{
		Alpha:    c.Safety.Alpha,
		Deadband: c.Safety.Deadband,
		SlewStep: c.Safety.SlewStep,
	}
}

func (c *Config) ActuationConfig() actuation.Config {
	a := c.Actuation
	return actuation.Config{
		DutyMin:     a.DutyMin,
		DutyNeutral: a.DutyNeutral,
		DutyMax:     a.DutyMax,
		Expo:        a.Expo,
		Frequency:   a.Frequency,
		Resolution:  a.Resolution,
	}
}

func (c *Config) TransportConfig() transport.Config {
	return transport.Config{Path: c.Server.Path, StatusPath: c.Server.StatusPath}
}

func (c *Config) HardwareTiming() hardware.Timing {
	return hardware.Timing{Frequency: c.Actuation.Frequency, Resolution: c.Actuation.Resolution}
}

func (c *Config) CalibrationStore() *calibration.FileStore {
	return calibration.NewFileStore(c.Calibration.Path, c.Calibration.Namespace)
}

package hardware

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/san-kum/crawlerctl/internal/vehicle"
)

var ErrUnknownBackend = errors.New("hardware: unknown backend")

const (
	BackendLog      = "log"
	BackendRecorder = "recorder"
	BackendMaestro  = "maestro"
	BackendRPi      = "rpi"
)

type Config struct {
	Backend string        `yaml:"backend"`
	Maestro MaestroConfig `yaml:"maestro"`
	RPi     RPiConfig     `yaml:"rpi"`
}

func DefaultConfig() Config {
	return Config{
		Backend: BackendLog,
		Maestro: DefaultMaestroConfig(),
		RPi:     DefaultRPiConfig(),
	}
}

// Device is an actuator that owns a resource to release on shutdown.
type Device interface {
	vehicle.Actuator
	io.Closer
}

// Open builds the backend named in cfg.
func Open(cfg Config, timing Timing, logger *slog.Logger) (Device, error) {
	switch cfg.Backend {
	case BackendLog, "":
		return NewLogging(logger), nil
	case BackendRecorder:
		return NewRecorder(), nil
	case BackendMaestro:
		return OpenMaestro(cfg.Maestro, timing)
	case BackendRPi:
		return OpenRPi(cfg.RPi, timing)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// Logging is a dry-run backend.
type Logging struct {
	logger *slog.Logger
}

func NewLogging(logger *slog.Logger) *Logging {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logging{logger: logger.With("backend", BackendLog)}
}

func (l *Logging) WriteEscDuty(duty uint32) error {
	l.logger.Info("esc", "duty", duty)
	return nil
}

func (l *Logging) WriteServoDuty(duty uint32) error {
	l.logger.Info("servo", "duty", duty)
	return nil
}

func (l *Logging) WriteLights(on bool) error {
	l.logger.Info("lights", "on", on)
	return nil
}

func (l *Logging) WriteHorn(on bool) error {
	l.logger.Info("horn", "on", on)
	return nil
}

func (l *Logging) Close() error { return nil }

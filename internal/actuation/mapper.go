// Package actuation converts normalized commands into hardware duty values
// and writes them only when they change.
package actuation

import (
	"log/slog"
	"math"

	"github.com/san-kum/crawlerctl/internal/vehicle"
)

// 14-bit duty at 50 Hz: (pulse_us / 20000) * 16384.
const (
	DutyMin     uint32 = 819  // 1000 us
	DutyNeutral uint32 = 1229 // 1500 us
	DutyMax     uint32 = 1638 // 2000 us

	DefaultExpo       = 0.8
	DefaultFrequency  = 50
	DefaultResolution = 14

	// neutralGate is the magnitude below which a channel is driven to exact neutral.
	neutralGate = 0.01
)

type Config struct {
	DutyMin     uint32
	DutyNeutral uint32
	DutyMax     uint32
	// Expo is the power applied to forward throttle; below 1 it amplifies
	// the low end.
	Expo       float64
	Frequency  uint32
	Resolution uint32
}

func DefaultConfig() Config {
	return Config{
		DutyMin:     DutyMin,
		DutyNeutral: DutyNeutral,
		DutyMax:     DutyMax,
		Expo:        DefaultExpo,
		Frequency:   DefaultFrequency,
		Resolution:  DefaultResolution,
	}
}

// PeriodMicros is the PWM period in microseconds.
func (c Config) PeriodMicros() float64 {
	return 1e6 / float64(c.Frequency)
}

// DutyToMicros converts a duty register value to a pulse width.
func (c Config) DutyToMicros(duty uint32) float64 {
	return float64(duty) * c.PeriodMicros() / float64(uint32(1)<<c.Resolution)
}

// PercentToDuty maps [-100,100] onto the min/neutral/max calibration points,
// using each half-range separately. trim is added after the neutral gate, so
// a zero command always lands on exact neutral.
func (c Config) PercentToDuty(percent, trim float64) uint32 {
	if math.Abs(percent) < neutralGate {
		return c.DutyNeutral
	}

	adjusted := vehicle.Clamp(vehicle.Clamp(percent, -vehicle.AxisLimit, vehicle.AxisLimit)+trim, -vehicle.AxisLimit, vehicle.AxisLimit)

	if adjusted >= 0 {
		span := float64(c.DutyMax - c.DutyNeutral)
		return c.DutyNeutral + uint32(adjusted/vehicle.AxisLimit*span)
	}
	span := float64(c.DutyNeutral - c.DutyMin)
	return c.DutyNeutral - uint32(-adjusted/vehicle.AxisLimit*span)
}

// Expo applies a sign-preserving power curve to a percentage.
func Expo(percent, factor float64) float64 {
	norm := math.Abs(percent) / vehicle.AxisLimit
	return math.Copysign(math.Pow(norm, factor)*vehicle.AxisLimit, percent)
}

// Mapper owns the last written value of every output channel.
type Mapper struct {
	cfg    Config
	trims  vehicle.TrimSource
	out    vehicle.Actuator
	logger *slog.Logger

	lastEsc     uint32
	lastServo   uint32
	lights      bool
	horn        bool
	lightsKnown bool
	hornKnown   bool
}

func New(cfg Config, trims vehicle.TrimSource, out vehicle.Actuator, logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapper{
		cfg:    cfg,
		trims:  trims,
		out:    out,
		logger: logger,
	}
}

func (m *Mapper) Config() Config { return m.cfg }

// Duties computes the duty pair for a throttle and an already-trimmed
// steering percentage. Only forward throttle goes through the expo curve;
// braking and reverse stay linear.
func (m *Mapper) Duties(throttle, steering float64) (esc, servo uint32) {
	out := throttle
	if throttle > 0 {
		out = Expo(throttle, m.cfg.Expo)
	}
	var throttleTrim float64
	if m.trims != nil {
		throttleTrim = m.trims.Trims().Throttle
	}
	return m.cfg.PercentToDuty(out, throttleTrim), m.cfg.PercentToDuty(steering, 0)
}

// Map computes both duties and writes the ones that changed.
func (m *Mapper) Map(throttle, steering float64) (esc, servo uint32) {
	esc, servo = m.Duties(throttle, steering)
	m.writeEsc(esc)
	m.writeServo(servo)
	return esc, servo
}

// ForceNeutral drives both channels to neutral.
func (m *Mapper) ForceNeutral() (esc, servo uint32) {
	m.writeEsc(m.cfg.DutyNeutral)
	m.writeServo(m.cfg.DutyNeutral)
	return m.cfg.DutyNeutral, m.cfg.DutyNeutral
}

// DisableEsc parks the ESC channel at neutral, which the ESC reads as
// output disabled.
func (m *Mapper) DisableEsc() {
	m.writeEsc(m.cfg.DutyNeutral)
}

// SetAuxiliary mirrors lights and horn verbatim; they bypass the filter.
func (m *Mapper) SetAuxiliary(lights, horn bool) {
	if !m.lightsKnown || lights != m.lights {
		if err := m.out.WriteLights(lights); err != nil {
			m.logger.Warn("lights write failed", "on", lights, "err", err)
		} else {
			m.lights, m.lightsKnown = lights, true
		}
	}
	if !m.hornKnown || horn != m.horn {
		if err := m.out.WriteHorn(horn); err != nil {
			m.logger.Warn("horn write failed", "on", horn, "err", err)
		} else {
			m.horn, m.hornKnown = horn, true
		}
	}
}

// LastDuties reports the most recently written duty pair.
func (m *Mapper) LastDuties() (esc, servo uint32) { return m.lastEsc, m.lastServo }

func (m *Mapper) Auxiliary() (lights, horn bool) { return m.lights, m.horn }

func (m *Mapper) writeEsc(duty uint32) {
	if duty == m.lastEsc {
		return
	}
	if err := m.out.WriteEscDuty(duty); err != nil {
		m.logger.Warn("esc write failed", "duty", duty, "err", err)
		return
	}
	m.lastEsc = duty
}

func (m *Mapper) writeServo(duty uint32) {
	if duty == m.lastServo {
		return
	}
	if err := m.out.WriteServoDuty(duty); err != nil {
		m.logger.Warn("servo write failed", "duty", duty, "err", err)
		return
	}
	m.lastServo = duty
}

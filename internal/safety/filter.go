// Package safety turns raw control samples into safe ones: throttle
// low-pass, deadband on both axes and an asymmetric slew limit on throttle.
package safety

import (
	"math"

	"github.com/san-kum/crawlerctl/internal/vehicle"
)

const (
	DefaultAlpha    = 0.3
	DefaultDeadband = 10.0
	DefaultSlewStep = 5.0

	// zeroSnap is the magnitude below which throttle is forced to exactly 0.
	zeroSnap = 0.01
)

type Config struct {
	Alpha    float64
	Deadband float64
	// SlewStep is the largest forward-bound throttle change per tick.
	SlewStep float64
}

func DefaultConfig() Config {
	return Config{
		Alpha:    DefaultAlpha,
		Deadband: DefaultDeadband,
		SlewStep: DefaultSlewStep,
	}
}

// Filter holds the state carried across ticks. It is owned by the state
// machine and must not be shared.
type Filter struct {
	cfg              Config
	filteredThrottle float64
	currentThrottle  float64
	currentSteering  float64
}

func New(cfg Config) *Filter {
	return &Filter{cfg: cfg}
}

// Process runs one raw sample through the pipeline. Auxiliary outputs and
// the timestamp pass through untouched.
func (f *Filter) Process(raw vehicle.Input) vehicle.Input {
	f.filteredThrottle = LowPass(raw.Throttle, f.filteredThrottle, f.cfg.Alpha)

	targetThrottle := Deadband(f.filteredThrottle, f.cfg.Deadband)
	targetSteering := Deadband(raw.Steering, f.cfg.Deadband)

	if targetThrottle >= 0 {
		f.currentThrottle = SlewRate(targetThrottle, f.currentThrottle, f.cfg.SlewStep)
	} else {
		// Reverse lands at once: the ESC drag-brake needs the abrupt drop.
		f.currentThrottle = targetThrottle
	}
	f.currentSteering = targetSteering

	if math.Abs(f.currentThrottle) < zeroSnap {
		f.currentThrottle = 0
	}

	return vehicle.Input{
		Throttle:  f.currentThrottle,
		Steering:  f.currentSteering,
		Lights:    raw.Lights,
		Horn:      raw.Horn,
		Timestamp: raw.Timestamp,
	}
}

// Reset zeroes the accumulator and both held outputs.
func (f *Filter) Reset() {
	f.filteredThrottle = 0
	f.currentThrottle = 0
	f.currentSteering = 0
}

func (f *Filter) Throttle() float64 { return f.currentThrottle }
func (f *Filter) Steering() float64 { return f.currentSteering }
func (f *Filter) Filtered() float64 { return f.filteredThrottle }

// LowPass moves filtered toward raw by the fraction alpha.
func LowPass(raw, filtered, alpha float64) float64 {
	return filtered + alpha*(raw-filtered)
}

// Deadband collapses |v| < deadband to zero and rescales the rest so the
// output still reaches 100 at full deflection.
func Deadband(v, deadband float64) float64 {
	if math.Abs(v) < deadband {
		return 0
	}
	scale := vehicle.AxisLimit / (vehicle.AxisLimit - deadband)
	if v > 0 {
		return (v - deadband) * scale
	}
	return (v + deadband) * scale
}

// SlewRate moves current toward target by at most maxStep.
func SlewRate(target, current, maxStep float64) float64 {
	delta := target - current
	if math.Abs(delta) > maxStep {
		if delta > 0 {
			return current + maxStep
		}
		return current - maxStep
	}
	return target
}

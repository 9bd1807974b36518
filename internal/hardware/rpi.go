package hardware

import (
	"fmt"

	"github.com/stianeikeland/go-rpio/v4"
)

// RPiConfig holds BCM pin numbers. ESC and servo must sit on hardware PWM
// capable pins (12, 13, 18, 19) on different PWM channels.
type RPiConfig struct {
	EscPin   uint8 `yaml:"esc_pin"`
	ServoPin uint8 `yaml:"servo_pin"`
	LightPin uint8 `yaml:"light_pin"`
	HornPin  uint8 `yaml:"horn_pin"`
}

func DefaultRPiConfig() RPiConfig {
	return RPiConfig{
		EscPin:   18,
		ServoPin: 19,
		LightPin: 23,
		HornPin:  24,
	}
}

// RPi drives the outputs straight from the Raspberry Pi peripherals. The
// duty value is used as the PWM data register against a cycle of
// 1<<Resolution, so the duty contract maps one to one.
type RPi struct {
	esc, servo, light, horn rpio.Pin
	cycle                   uint32
}

func OpenRPi(cfg RPiConfig, timing Timing) (*RPi, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio: %w", err)
	}
	r := &RPi{
		esc:   rpio.Pin(cfg.EscPin),
		servo: rpio.Pin(cfg.ServoPin),
		light: rpio.Pin(cfg.LightPin),
		horn:  rpio.Pin(cfg.HornPin),
		cycle: uint32(1) << timing.Resolution,
	}

	// PWM output frequency is the clock divided by the cycle length.
	clock := int(timing.Frequency * r.cycle)
	for _, pin := range []rpio.Pin{r.esc, r.servo} {
		pin.Mode(rpio.Pwm)
		pin.Freq(clock)
	}
	r.light.Output()
	r.horn.Output()
	r.light.Low()
	r.horn.Low()
	return r, nil
}

func (r *RPi) WriteEscDuty(duty uint32) error {
	r.esc.DutyCycle(duty, r.cycle)
	return nil
}

func (r *RPi) WriteServoDuty(duty uint32) error {
	r.servo.DutyCycle(duty, r.cycle)
	return nil
}

func (r *RPi) WriteLights(on bool) error {
	writePin(r.light, on)
	return nil
}

func (r *RPi) WriteHorn(on bool) error {
	writePin(r.horn, on)
	return nil
}

func (r *RPi) Close() error {
	r.light.Low()
	r.horn.Low()
	return rpio.Close()
}

func writePin(pin rpio.Pin, on bool) {
	if on {
		pin.High()
		return
	}
	pin.Low()
}

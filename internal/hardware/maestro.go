package hardware

import (
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"

	"github.com/san-kum/crawlerctl/internal/vehicle"
)

const (
	cmdSetTarget = 0x84
	cmdGoHome    = 0xa2

	// Digital output channels read targets at or above 1500 us as high.
	maestroHigh uint16 = 1500 * 4
	maestroLow  uint16 = 0
)

// MaestroConfig selects the serial port and the channel of every output.
type MaestroConfig struct {
	Device       string `yaml:"device"`
	Baud         int    `yaml:"baud"`
	DeviceNumber uint8  `yaml:"device_number"`
	// Compact uses the single-device protocol without the 0xAA preamble.
	Compact      bool  `yaml:"compact"`
	EscChannel   uint8 `yaml:"esc_channel"`
	ServoChannel uint8 `yaml:"servo_channel"`
	LightChannel uint8 `yaml:"light_channel"`
	HornChannel  uint8 `yaml:"horn_channel"`
}

func DefaultMaestroConfig() MaestroConfig {
	return MaestroConfig{
		Device:       "/dev/ttyACM0",
		Baud:         115200,
		DeviceNumber: 12,
		Compact:      true,
		EscChannel:   0,
		ServoChannel: 1,
		LightChannel: 2,
		HornChannel:  3,
	}
}

// Maestro drives a Pololu Maestro. Duty values are converted to pulse
// widths in quarter microseconds, the unit of the Set Target command.
type Maestro struct {
	port   io.ReadWriteCloser
	cfg    MaestroConfig
	timing Timing
}

// Timing describes the PWM frame the duty values are expressed in.
type Timing struct {
	Frequency  uint32
	Resolution uint32
}

func (t Timing) quarterMicros(duty uint32) uint16 {
	us := float64(duty) * 1e6 / float64(t.Frequency) / float64(uint32(1)<<t.Resolution)
	return uint16(us*4 + 0.5)
}

// OpenMaestro opens the serial port described by cfg.
func OpenMaestro(cfg MaestroConfig, timing Timing) (*Maestro, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: 100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open maestro on %s: %w", cfg.Device, err)
	}
	return NewMaestro(port, cfg, timing), nil
}

// NewMaestro wraps an already open port.
func NewMaestro(port io.ReadWriteCloser, cfg MaestroConfig, timing Timing) *Maestro {
	return &Maestro{port: port, cfg: cfg, timing: timing}
}

func (m *Maestro) preamble(command byte) []byte {
	if m.cfg.Compact {
		return []byte{command}
	}
	return []byte{0xaa, m.cfg.DeviceNumber, command & 0x7f}
}

func (m *Maestro) setTarget(name string, channel uint8, target uint16, value any) error {
	cmd := m.preamble(cmdSetTarget)
	cmd = append(cmd, channel, byte(target&0x7f), byte((target>>7)&0x7f))
	if _, err := m.port.Write(cmd); err != nil {
		return &vehicle.WriteError{Channel: name, Value: value, Wrapped: err}
	}
	return nil
}

func (m *Maestro) WriteEscDuty(duty uint32) error {
	return m.setTarget("esc", m.cfg.EscChannel, m.timing.quarterMicros(duty), duty)
}

func (m *Maestro) WriteServoDuty(duty uint32) error {
	return m.setTarget("servo", m.cfg.ServoChannel, m.timing.quarterMicros(duty), duty)
}

func (m *Maestro) WriteLights(on bool) error {
	return m.setTarget("lights", m.cfg.LightChannel, digital(on), on)
}

func (m *Maestro) WriteHorn(on bool) error {
	return m.setTarget("horn", m.cfg.HornChannel, digital(on), on)
}

// GoHome sends every channel to its configured home position.
func (m *Maestro) GoHome() error {
	_, err := m.port.Write(m.preamble(cmdGoHome))
	return err
}

func (m *Maestro) Close() error {
	return m.port.Close()
}

func digital(on bool) uint16 {
	if on {
		return maestroHigh
	}
	return maestroLow
}

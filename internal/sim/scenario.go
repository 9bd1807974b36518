package sim

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPacketIntervalMs = 50

// Scenario scripts what the operator does over time.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// PacketIntervalMs is how often the operator sends a frame.
	PacketIntervalMs int    `yaml:"packet_interval_ms,omitempty"`
	Steps            []Step `yaml:"steps"`
}

// Step holds one operator input for a fixed duration.
type Step struct {
	DurationMs int     `yaml:"duration_ms"`
	Throttle   float64 `yaml:"throttle"`
	Steering   float64 `yaml:"steering"`
	Lights     bool    `yaml:"lights,omitempty"`
	Horn       bool    `yaml:"horn,omitempty"`
	// Connected defaults to true.
	Connected *bool `yaml:"connected,omitempty"`
	// Stale keeps the operator connected but silent.
	Stale            bool     `yaml:"stale,omitempty"`
	TrimLive         *float64 `yaml:"trim_live,omitempty"`
	ThrottleTrimLive *float64 `yaml:"throttle_trim_live,omitempty"`
}

func (s Step) Duration() time.Duration { return time.Duration(s.DurationMs) * time.Millisecond }

func (s Step) IsConnected() bool { return s.Connected == nil || *s.Connected }

func (sc *Scenario) PacketInterval() time.Duration {
	if sc.PacketIntervalMs <= 0 {
		return DefaultPacketIntervalMs * time.Millisecond
	}
	return time.Duration(sc.PacketIntervalMs) * time.Millisecond
}

func (sc *Scenario) Duration() time.Duration {
	var total time.Duration
	for _, s := range sc.Steps {
		total += s.Duration()
	}
	return total
}

func (sc *Scenario) Validate() error {
	if len(sc.Steps) == 0 {
		return SimError{Scenario: sc.Name, Message: "no steps"}
	}
	for i, s := range sc.Steps {
		if s.DurationMs <= 0 {
			return SimError{Scenario: sc.Name, Step: i + 1, Message: "duration_ms must be positive"}
		}
	}
	return nil
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := scenario.Validate(); err != nil {
		return nil, err
	}
	return &scenario, nil
}

func SaveScenario(path string, sc *Scenario) error {
	data, err := yaml.Marshal(sc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

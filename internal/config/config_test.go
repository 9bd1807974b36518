package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/san-kum/crawlerctl/internal/actuation"
	"github.com/san-kum/crawlerctl/internal/hardware"
	"github.com/san-kum/crawlerctl/internal/vehicle"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Control.Interval != 10*time.Millisecond {
		t.Errorf("expected 10ms interval, got %v", cfg.Control.Interval)
	}
	if cfg.Control.Watchdog != 100*time.Millisecond {
		t.Errorf("expected 100ms watchdog, got %v", cfg.Control.Watchdog)
	}
	if cfg.Actuation.DutyNeutral != actuation.DutyNeutral {
		t.Errorf("expected neutral %d, got %d", actuation.DutyNeutral, cfg.Actuation.DutyNeutral)
	}
	if cfg.Server.Listen != ":81" {
		t.Errorf("expected listen :81, got %s", cfg.Server.Listen)
	}
	if cfg.Calibration.Namespace != "rc-crawler" {
		t.Errorf("expected namespace rc-crawler, got %s", cfg.Calibration.Namespace)
	}
	if cfg.Hardware.Backend != hardware.BackendLog {
		t.Errorf("expected log backend, got %s", cfg.Hardware.Backend)
	}
}

func TestControlConfigSharesDeadband(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Safety.Deadband = 7

	if got := cfg.ControlConfig().Deadband; got != 7 {
		t.Errorf("control deadband = %v, want 7", got)
	}
	if got := cfg.SafetyConfig().Deadband; got != 7 {
		t.Errorf("safety deadband = %v, want 7", got)
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawler.yaml")

	cfg := DefaultConfig()
	cfg.Control.NeutralDwell = 750 * time.Millisecond
	cfg.Hardware.Backend = hardware.BackendMaestro
	cfg.Hardware.Maestro.Device = "/dev/ttyUSB3"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Control.NeutralDwell != 750*time.Millisecond {
		t.Errorf("neutral dwell = %v", got.Control.NeutralDwell)
	}
	if got.Hardware.Maestro.Device != "/dev/ttyUSB3" {
		t.Errorf("maestro device = %s", got.Hardware.Maestro.Device)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	data := []byte("control:\n  watchdog: 150ms\nsafety:\n  slew_step: 3\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Control.Watchdog != 150*time.Millisecond {
		t.Errorf("watchdog = %v, want 150ms", cfg.Control.Watchdog)
	}
	if cfg.Safety.SlewStep != 3 {
		t.Errorf("slew = %v, want 3", cfg.Safety.SlewStep)
	}
	if cfg.Safety.Alpha != 0.3 {
		t.Errorf("alpha should keep its default, got %v", cfg.Safety.Alpha)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero interval", func(c *Config) { c.Control.Interval = 0 }},
		{"watchdog below interval", func(c *Config) { c.Control.Watchdog = 5 * time.Millisecond }},
		{"alpha above one", func(c *Config) { c.Safety.Alpha = 1.5 }},
		{"negative deadband", func(c *Config) { c.Safety.Deadband = -1 }},
		{"zero slew", func(c *Config) { c.Safety.SlewStep = 0 }},
		{"inverted duties", func(c *Config) { c.Actuation.DutyMin = 1300 }},
		{"duty beyond resolution", func(c *Config) { c.Actuation.Resolution = 10 }},
		{"relative ws path", func(c *Config) { c.Server.Path = "ws" }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
			if !errors.Is(err, vehicle.ErrOutOfRange) {
				t.Errorf("expected ErrOutOfRange in chain, got %v", err)
			}
		})
	}
}

func TestGetProfile(t *testing.T) {
	cfg := GetProfile("bench")
	if cfg == nil {
		t.Fatal("expected profile, got nil")
	}
	if cfg.Control.EscStabilization != 0 {
		t.Errorf("bench should skip ESC stabilisation, got %v", cfg.Control.EscStabilization)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("bench profile invalid: %v", err)
	}
}

func TestGetProfile_NotFound(t *testing.T) {
	if cfg := GetProfile("race"); cfg != nil {
		t.Error("expected nil for unknown profile")
	}
}

func TestProfilesValidate(t *testing.T) {
	for _, name := range ListProfiles() {
		if err := GetProfile(name).Validate(); err != nil {
			t.Errorf("profile %s: %v", name, err)
		}
	}
}

func TestParseLevel(t *testing.T) {
	for _, name := range []string{"debug", "INFO", "warn", "error"} {
		if _, err := ParseLevel(name); err != nil {
			t.Errorf("ParseLevel(%q): %v", name, err)
		}
	}
}

func TestLoadOverProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "over.yaml")
	if err := os.WriteFile(path, []byte("server:\n  listen: \":9000\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadOver(path, GetProfile("trail"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Listen != ":9000" {
		t.Errorf("listen = %q", cfg.Server.Listen)
	}
	if cfg.Control.Watchdog != 200*time.Millisecond {
		t.Errorf("profile watchdog lost: %v", cfg.Control.Watchdog)
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, DefaultConfig()); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"watchdog: 100ms", "listen:", "backend: log"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

package config

import (
	"sort"
	"time"

	"github.com/san-kum/crawlerctl/internal/hardware"
)

// Profiles are named starting points for `config init`. Each one is applied
// on top of DefaultConfig.
var Profiles = map[string]func(*Config){
	"default": func(*Config) {},
	// bench runs without a real ESC attached, so there is nothing to wait for.
	"bench": func(c *Config) {
		c.LogLevel = "debug"
		c.Control.EscStabilization = 0
		c.Hardware.Backend = hardware.BackendLog
	},
	"maestro": func(c *Config) {
		c.Hardware.Backend = hardware.BackendMaestro
	},
	"rpi": func(c *Config) {
		c.Hardware.Backend = hardware.BackendRPi
	},
	// gentle suits first drives: softer low end and slower forward ramps.
	"gentle": func(c *Config) {
		c.Actuation.Expo = 1.2
		c.Safety.SlewStep = 2
		c.Safety.Alpha = 0.2
	},
	// trail tolerates a patchier link before failsafe.
	"trail": func(c *Config) {
		c.Control.Watchdog = 200 * time.Millisecond
		c.Control.HardTimeout = time.Second
	},
}

// GetProfile returns a fresh config for the named profile, or nil.
func GetProfile(name string) *Config {
	apply, ok := Profiles[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	apply(cfg)
	return cfg
}

func ListProfiles() []string {
	names := make([]string, 0, len(Profiles))
	for name := range Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

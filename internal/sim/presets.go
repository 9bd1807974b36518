package sim

import "sort"

// bootMs covers ESC stabilisation plus the connect handshake.
const bootMs = 2200

func boot() Step { return Step{DurationMs: bootMs} }

func hold(ms int, throttle, steering float64) Step {
	return Step{DurationMs: ms, Throttle: throttle, Steering: steering}
}

func ptr[T any](v T) *T { return &v }

var Presets = map[string]*Scenario{
	"drive": {
		Name:        "drive",
		Description: "forward driving with steering and lights",
		Steps: []Step{
			boot(),
			{DurationMs: 1500, Throttle: 60, Steering: 30, Lights: true},
			{DurationMs: 500, Lights: true},
			{DurationMs: 1000, Throttle: 100, Steering: -40, Lights: true, Horn: true},
			hold(500, 0, 0),
		},
	},
	"reverse-lockout": {
		Name:        "reverse-lockout",
		Description: "reverse straight after forward brakes and waits for the neutral dwell",
		Steps: []Step{
			boot(),
			hold(1000, 50, 0),
			hold(1000, -50, 0),
			hold(300, 0, 0),
			hold(1000, -50, 0),
			hold(300, 0, 0),
		},
	},
	"neutral-dwell": {
		Name:        "neutral-dwell",
		Description: "a full neutral dwell arms reverse",
		Steps: []Step{
			boot(),
			hold(800, 40, 0),
			hold(400, -40, 0),
			hold(800, 0, 0),
			hold(1000, -60, 10),
			hold(300, 0, 0),
		},
	},
	"watchdog": {
		Name:        "watchdog",
		Description: "short and long packet loss while driving",
		Steps: []Step{
			boot(),
			hold(1000, 50, 0),
			{DurationMs: 300, Throttle: 50, Stale: true},
			hold(500, 50, 0),
			{DurationMs: 800, Throttle: 50, Stale: true},
			hold(500, 50, 0),
			hold(500, 0, 0),
			hold(500, 30, 0),
		},
	},
	"disconnect": {
		Name:        "disconnect",
		Description: "operator drops and reconnects",
		Steps: []Step{
			boot(),
			hold(1000, 40, 20),
			{DurationMs: 500, Connected: ptr(false)},
			hold(500, 0, 0),
			hold(500, 40, 0),
		},
	},
	"trim": {
		Name:        "trim",
		Description: "live steering and throttle trim while parked and driving",
		Steps: []Step{
			boot(),
			{DurationMs: 500, TrimLive: ptr(8.0)},
			{DurationMs: 1000, Throttle: 30, ThrottleTrimLive: ptr(2.0)},
			{DurationMs: 500, TrimLive: ptr(0.0), ThrottleTrimLive: ptr(0.0)},
		},
	},
}

// GetPreset returns a copy of the named scenario, or nil.
func GetPreset(name string) *Scenario {
	sc, ok := Presets[name]
	if !ok {
		return nil
	}
	cp := *sc
	cp.Steps = append([]Step(nil), sc.Steps...)
	return &cp
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package sim

import (
	"fmt"
	"time"
)

// Sample is the record of one executed control tick.
type Sample struct {
	Time         time.Duration
	State        string
	ReverseArmed bool
	// RawThrottle and RawSteering are what the scripted operator sent.
	RawThrottle float64
	RawSteering float64
	Throttle    float64
	Steering    float64
	EscDuty     uint32
	ServoDuty   uint32
	Lights      bool
	Horn        bool
}

type Metric interface {
	Name() string
	Observe(s Sample)
	Value() float64
	Reset()
}

type Observer interface {
	OnSample(s Sample)
}

type ObserverFunc func(s Sample)

func (f ObserverFunc) OnSample(s Sample) { f(s) }

type Result struct {
	Scenario string
	Samples  []Sample
	Metrics  map[string]float64
	Duration time.Duration
}

// Final returns the last recorded sample.
func (r *Result) Final() (Sample, bool) {
	if len(r.Samples) == 0 {
		return Sample{}, false
	}
	return r.Samples[len(r.Samples)-1], true
}

// States lists the distinct states in the order they were first visited.
func (r *Result) States() []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range r.Samples {
		if !seen[s.State] {
			seen[s.State] = true
			out = append(out, s.State)
		}
	}
	return out
}

type SimError struct {
	Scenario string
	Step     int
	Message  string
}

func (e SimError) Error() string {
	return fmt.Sprintf("scenario %s step %d: %s", e.Scenario, e.Step, e.Message)
}

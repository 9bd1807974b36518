package analysis

import (
	"time"

	"github.com/san-kum/crawlerctl/internal/control"
	"github.com/san-kum/crawlerctl/internal/sim"
)

var active = control.ActiveControl.String()

// Segment is one uninterrupted stay in a state.
type Segment struct {
	State string
	Start time.Duration
	End   time.Duration
}

func (s Segment) Duration() time.Duration { return s.End - s.Start }

// Timeline folds a trace into state segments. A segment ends where the
// next one starts; the last ends at the final sample.
func Timeline(samples []sim.Sample) []Segment {
	var out []Segment
	for _, s := range samples {
		if n := len(out); n > 0 && out[n-1].State == s.State {
			out[n-1].End = s.Time
			continue
		}
		if n := len(out); n > 0 {
			out[n-1].End = s.Time
		}
		out = append(out, Segment{State: s.State, Start: s.Time, End: s.Time})
	}
	return out
}

// ResponseLatency measures, for each rise of the raw throttle above
// deadband while active, how long it took the ESC duty to leave neutral.
// Rises that never produce output are left out.
func ResponseLatency(samples []sim.Sample, deadband float64, neutral uint32) []time.Duration {
	var out []time.Duration
	pending := false
	var since time.Duration
	above := false

	for _, s := range samples {
		nowAbove := s.RawThrottle > deadband
		if nowAbove && !above && s.State == active {
			pending = true
			since = s.Time
		}
		above = nowAbove
		if !nowAbove || s.State != active {
			pending = false
		}
		if pending && s.EscDuty > neutral {
			out = append(out, s.Time-since)
			pending = false
		}
	}
	return out
}

package metrics

import (
	"time"

	"github.com/san-kum/crawlerctl/internal/sim"
)

// StateEntries counts transitions into one state.
type StateEntries struct {
	name  string
	state string
	prev  string
	count int
}

func NewStateEntries(state string) *StateEntries {
	return &StateEntries{name: state + "_entries", state: state}
}

func (e *StateEntries) Name() string { return e.name }

func (e *StateEntries) Observe(s sim.Sample) {
	if s.State == e.state && e.prev != e.state {
		e.count++
	}
	e.prev = s.State
}

func (e *StateEntries) Value() float64 { return float64(e.count) }

func (e *StateEntries) Reset() {
	e.prev = ""
	e.count = 0
}

// TimeIn accumulates milliseconds spent in one state, one tick per sample.
type TimeIn struct {
	name  string
	state string
	tick  time.Duration
	total time.Duration
}

func NewTimeIn(state string, tick time.Duration) *TimeIn {
	return &TimeIn{name: state + "_ms", state: state, tick: tick}
}

func (t *TimeIn) Name() string { return t.name }

func (t *TimeIn) Observe(s sim.Sample) {
	if s.State == t.state {
		t.total += t.tick
	}
}

func (t *TimeIn) Value() float64 { return float64(t.total.Milliseconds()) }

func (t *TimeIn) Reset() { t.total = 0 }

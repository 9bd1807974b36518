package metrics

import (
	"math"

	"github.com/san-kum/crawlerctl/internal/sim"
)

// MaxForwardStep is the largest tick-to-tick increase of the safe throttle.
// It should never exceed the slew step.
type MaxForwardStep struct {
	prev    float64
	started bool
	max     float64
}

func NewMaxForwardStep() *MaxForwardStep { return &MaxForwardStep{} }

func (m *MaxForwardStep) Name() string { return "max_forward_step" }

func (m *MaxForwardStep) Observe(s sim.Sample) {
	if m.started {
		m.max = math.Max(m.max, s.Throttle-m.prev)
	}
	m.prev = s.Throttle
	m.started = true
}

func (m *MaxForwardStep) Value() float64 { return m.max }

func (m *MaxForwardStep) Reset() {
	m.prev, m.max, m.started = 0, 0, false
}

// ReverseViolations counts samples that drove the ESC below neutral while
// reverse was disarmed outside of braking.
type ReverseViolations struct {
	neutral uint32
	count   int
}

func NewReverseViolations(neutral uint32) *ReverseViolations {
	return &ReverseViolations{neutral: neutral}
}

func (r *ReverseViolations) Name() string { return "reverse_violations" }

func (r *ReverseViolations) Observe(s sim.Sample) {
	if s.EscDuty < r.neutral && !s.ReverseArmed && s.State != "braking" {
		r.count++
	}
}

func (r *ReverseViolations) Value() float64 { return float64(r.count) }

func (r *ReverseViolations) Reset() { r.count = 0 }

// ThrottleEffort is the mean absolute safe throttle.
type ThrottleEffort struct {
	sum     float64
	samples int
}

func NewThrottleEffort() *ThrottleEffort { return &ThrottleEffort{} }

func (c *ThrottleEffort) Name() string { return "throttle_effort" }

func (c *ThrottleEffort) Observe(s sim.Sample) {
	c.sum += math.Abs(s.Throttle)
	c.samples++
}

func (c *ThrottleEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ThrottleEffort) Reset() {
	c.sum = 0
	c.samples = 0
}

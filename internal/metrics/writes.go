package metrics

import "github.com/san-kum/crawlerctl/internal/sim"

// DutyChanges counts how often a channel's duty changed, which is the
// number of hardware writes the mapper issued for it.
type DutyChanges struct {
	name    string
	servo   bool
	last    uint32
	started bool
	count   int
}

func NewEscWrites() *DutyChanges   { return &DutyChanges{name: "esc_writes"} }
func NewServoWrites() *DutyChanges { return &DutyChanges{name: "servo_writes", servo: true} }

func (d *DutyChanges) Name() string { return d.name }

func (d *DutyChanges) Observe(s sim.Sample) {
	duty := s.EscDuty
	if d.servo {
		duty = s.ServoDuty
	}
	if d.started && duty != d.last {
		d.count++
	}
	d.last = duty
	d.started = true
}

func (d *DutyChanges) Value() float64 { return float64(d.count) }

func (d *DutyChanges) Reset() {
	d.count = 0
	d.started = false
	d.last = 0
}

package vehicle

import "time"

const (
	// AxisLimit bounds both throttle and steering percentages.
	AxisLimit = 100.0

	// SteeringTrimLimit and ThrottleTrimLimit bound the calibration offsets.
	SteeringTrimLimit = 20.0
	ThrottleTrimLimit = 10.0
)

// Input is one control sample, either raw from the transport or the safe
// output of the filter.
type Input struct {
	Throttle float64 `json:"throttle"`
	Steering float64 `json:"steering"`
	Lights   bool    `json:"lights"`
	Horn     bool    `json:"horn"`
	// Timestamp is the sender's millisecond tag. It is only echoed back for
	// latency measurement and never used for staleness.
	Timestamp uint32 `json:"timestamp"`
}

// Clamped returns a copy with both axes limited to [-AxisLimit, AxisLimit].
func (in Input) Clamped() Input {
	in.Throttle = Clamp(in.Throttle, -AxisLimit, AxisLimit)
	in.Steering = Clamp(in.Steering, -AxisLimit, AxisLimit)
	return in
}

// Trims holds the calibration offsets applied on top of the commanded
// percentages.
type Trims struct {
	Steering float64 `json:"trim" yaml:"trim"`
	Throttle float64 `json:"th_trim" yaml:"ttrim"`
}

func (t Trims) Clamped() Trims {
	return Trims{
		Steering: Clamp(t.Steering, -SteeringTrimLimit, SteeringTrimLimit),
		Throttle: Clamp(t.Throttle, -ThrottleTrimLimit, ThrottleTrimLimit),
	}
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Status is the diagnostic snapshot published after every executed tick.
type Status struct {
	State        string        `json:"state"`
	ReverseArmed bool          `json:"reverse_armed"`
	TimeInState  time.Duration `json:"time_in_state"`
	Throttle     float64       `json:"throttle"`
	Steering     float64       `json:"steering"`
	EscDuty      uint32        `json:"esc_duty"`
	ServoDuty    uint32        `json:"servo_duty"`
	Lights       bool          `json:"lights"`
	Horn         bool          `json:"horn"`
	NewSample    bool          `json:"new_sample"`
	Ticks        uint64        `json:"ticks"`
}

// Link is the connectivity collaborator consumed by the state machine.
type Link interface {
	HasClient() bool
	TimeSinceLastPacket() time.Duration
	// TakeLatestInput returns the most recent sample and whether it arrived
	// since the previous call.
	TakeLatestInput() (Input, bool)
}

// Actuator writes hardware outputs. Callers only invoke it when a value
// actually changes.
type Actuator interface {
	WriteEscDuty(duty uint32) error
	WriteServoDuty(duty uint32) error
	WriteLights(on bool) error
	WriteHorn(on bool) error
}

// TrimSource provides the current in-memory trims without torn reads.
type TrimSource interface {
	Trims() Trims
}

// Observer is notified after every executed control tick.
type Observer interface {
	OnTick(s Status)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(s Status)

func (f ObserverFunc) OnTick(s Status) { f(s) }

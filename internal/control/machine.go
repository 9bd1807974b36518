package control

import (
	"log/slog"
	"math"
	"time"

	"github.com/san-kum/crawlerctl/internal/actuation"
	"github.com/san-kum/crawlerctl/internal/safety"
	"github.com/san-kum/crawlerctl/internal/vehicle"
)

const (
	DefaultInterval         = 10 * time.Millisecond
	DefaultWatchdog         = 100 * time.Millisecond
	DefaultEscStabilization = 2000 * time.Millisecond
	DefaultHardTimeout      = 500 * time.Millisecond
	DefaultNeutralDwell     = 500 * time.Millisecond
)

type Config struct {
	Interval         time.Duration
	Watchdog         time.Duration
	EscStabilization time.Duration
	HardTimeout      time.Duration
	NeutralDwell     time.Duration
	// Deadband decides forward, neutral and reverse intent on the raw
	// throttle.
	Deadband float64
}

func DefaultConfig() Config {
	return Config{
		Interval:         DefaultInterval,
		Watchdog:         DefaultWatchdog,
		EscStabilization: DefaultEscStabilization,
		HardTimeout:      DefaultHardTimeout,
		NeutralDwell:     DefaultNeutralDwell,
		Deadband:         safety.DefaultDeadband,
	}
}

// Machine is the control core. It exclusively owns its filter and mapper
// and must only be ticked from one goroutine.
type Machine struct {
	cfg       Config
	link      vehicle.Link
	filter    *safety.Filter
	mapper    *actuation.Mapper
	trims     vehicle.TrimSource
	logger    *slog.Logger
	observers []vehicle.Observer

	state        State
	entered      time.Time
	lastTick     time.Time
	started      bool
	reverseArmed bool
	ticks        uint64
	safe         vehicle.Input
	newSample    bool
}

func New(cfg Config, link vehicle.Link, filter *safety.Filter, mapper *actuation.Mapper, trims vehicle.TrimSource, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		cfg:    cfg,
		link:   link,
		filter: filter,
		mapper: mapper,
		trims:  trims,
		logger: logger,
		state:  Boot,
	}
}

func (m *Machine) AddObserver(o vehicle.Observer) { m.observers = append(m.observers, o) }

func (m *Machine) State() State       { return m.state }
func (m *Machine) ReverseArmed() bool { return m.reverseArmed }
func (m *Machine) Ticks() uint64      { return m.ticks }
func (m *Machine) Config() Config     { return m.cfg }

// Tick advances the machine by one step unless the previous step was less
// than one interval ago. It reports whether a step ran.
func (m *Machine) Tick(now time.Time) bool {
	if m.started && now.Sub(m.lastTick) < m.cfg.Interval {
		return false
	}
	if !m.started {
		m.started = true
		m.entered = now
	}
	m.lastTick = now
	m.ticks++
	m.newSample = false

	m.step(now)

	status := m.Status(now)
	for _, o := range m.observers {
		o.OnTick(status)
	}
	return true
}

// Status builds the diagnostic snapshot for the current state.
func (m *Machine) Status(now time.Time) vehicle.Status {
	esc, servo := m.mapper.LastDuties()
	lights, horn := m.mapper.Auxiliary()
	return vehicle.Status{
		State:        m.state.String(),
		ReverseArmed: m.reverseArmed,
		TimeInState:  now.Sub(m.entered),
		Throttle:     m.safe.Throttle,
		Steering:     m.safe.Steering,
		EscDuty:      esc,
		ServoDuty:    servo,
		Lights:       lights,
		Horn:         horn,
		NewSample:    m.newSample,
		Ticks:        m.ticks,
	}
}

func (m *Machine) step(now time.Time) {
	inState := now.Sub(m.entered)

	switch m.state {
	case Boot:
		m.transition(InitEsc, now)

	case InitEsc:
		if inState >= m.cfg.EscStabilization {
			m.transition(IdleNoClient, now)
		}

	case IdleNoClient:
		if m.link.HasClient() {
			m.transition(ClientConnected, now)
		}

	case ClientConnected:
		if !m.link.HasClient() {
			m.transition(IdleNoClient, now)
		} else if m.fresh() {
			raw := m.sample()
			if math.Abs(raw.Throttle) <= m.cfg.Deadband {
				m.reverseArmed = true
				m.transition(ActiveControl, now)
			}
		}

	case ActiveControl:
		if !m.link.HasClient() {
			m.transition(IdleNoClient, now)
			return
		}
		if !m.fresh() {
			m.transition(Failsafe, now)
			return
		}
		raw := m.sample()
		switch {
		case raw.Throttle > m.cfg.Deadband:
			m.reverseArmed = false
			m.apply(raw)
		case raw.Throttle < -m.cfg.Deadband:
			if m.reverseArmed {
				m.apply(raw)
			} else {
				m.transition(Braking, now)
			}
		default:
			m.apply(zeroThrottle(raw))
		}

	case Braking:
		if !m.link.HasClient() {
			m.transition(IdleNoClient, now)
			return
		}
		if !m.fresh() {
			m.transition(Failsafe, now)
			return
		}
		raw := m.sample()
		switch {
		case raw.Throttle < -m.cfg.Deadband:
			// Reverse duty while disarmed engages the ESC drag brake.
			m.apply(raw)
		case raw.Throttle <= m.cfg.Deadband:
			m.apply(zeroThrottle(raw))
			m.transition(WaitForNeutralDwell, now)
		default:
			m.transition(ActiveControl, now)
		}

	case WaitForNeutralDwell:
		if !m.link.HasClient() {
			m.transition(IdleNoClient, now)
			return
		}
		if !m.fresh() {
			m.transition(Failsafe, now)
			return
		}
		raw := m.sample()
		switch {
		case raw.Throttle > m.cfg.Deadband:
			m.transition(ActiveControl, now)
		case inState >= m.cfg.NeutralDwell:
			m.reverseArmed = true
			m.transition(ActiveControl, now)
		default:
			m.apply(zeroThrottle(raw))
		}

	case Failsafe:
		if !m.link.HasClient() {
			m.transition(IdleNoClient, now)
			return
		}
		m.filter.Reset()
		m.mapper.ForceNeutral()
		m.safe = vehicle.Input{}

		if inState >= m.cfg.HardTimeout {
			m.mapper.DisableEsc()
			if m.fresh() {
				m.transition(ClientConnected, now)
			}
		} else if m.fresh() {
			m.transition(ActiveControl, now)
		}
	}
}

func (m *Machine) fresh() bool {
	return m.link.TimeSinceLastPacket() < m.cfg.Watchdog
}

func (m *Machine) sample() vehicle.Input {
	raw, isNew := m.link.TakeLatestInput()
	m.newSample = isNew
	return raw.Clamped()
}

// apply runs the raw sample through the filter and the mapper. Steering trim
// is added here; throttle trim is applied inside the mapper. Lights and horn
// are mirrored from the raw sample.
func (m *Machine) apply(raw vehicle.Input) {
	safe := m.filter.Process(raw)

	steering := safe.Steering
	if m.trims != nil {
		steering = vehicle.Clamp(steering+m.trims.Trims().Steering, -vehicle.AxisLimit, vehicle.AxisLimit)
	}
	m.mapper.Map(safe.Throttle, steering)
	m.mapper.SetAuxiliary(raw.Lights, raw.Horn)
	m.safe = safe
}

func (m *Machine) transition(next State, now time.Time) {
	prev := m.state
	m.onExit(prev, next)
	m.state = next
	m.entered = now
	m.onEnter(next)
	m.logger.Info("state change", "from", prev.String(), "to", next.String(), "reverse_armed", m.reverseArmed)
}

func (m *Machine) onExit(from, to State) {
	switch from {
	case Failsafe:
		m.logger.Info("failsafe cleared", "to", to.String())
	case InitEsc:
		m.logger.Debug("esc stabilised")
	case Boot, IdleNoClient, ClientConnected, ActiveControl, Braking, WaitForNeutralDwell:
	}
}

func (m *Machine) onEnter(s State) {
	switch s {
	case InitEsc:
		m.mapper.ForceNeutral()
	case IdleNoClient:
		m.mapper.ForceNeutral()
		m.filter.Reset()
		m.silenceHorn()
	case Failsafe:
		m.filter.Reset()
		m.mapper.ForceNeutral()
		m.silenceHorn()
		m.logger.Warn("failsafe", "since_last_packet", m.link.TimeSinceLastPacket())
	case WaitForNeutralDwell:
		m.filter.Reset()
		m.mapper.ForceNeutral()
	case Boot, ClientConnected, ActiveControl, Braking:
	}
	if !s.Driving() {
		m.safe = vehicle.Input{}
	}
}

func (m *Machine) silenceHorn() {
	lights, _ := m.mapper.Auxiliary()
	m.mapper.SetAuxiliary(lights, false)
}

func zeroThrottle(in vehicle.Input) vehicle.Input {
	in.Throttle = 0
	return in
}

// Package tui is a terminal dashboard that drives the control core from the
// keyboard, standing in for the browser operator.
package tui

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/crawlerctl/internal/actuation"
	"github.com/san-kum/crawlerctl/internal/calibration"
	"github.com/san-kum/crawlerctl/internal/control"
	"github.com/san-kum/crawlerctl/internal/hardware"
	"github.com/san-kum/crawlerctl/internal/logging"
	"github.com/san-kum/crawlerctl/internal/safety"
	"github.com/san-kum/crawlerctl/internal/transport"
	"github.com/san-kum/crawlerctl/internal/vehicle"
)

const (
	historyCapacity       = 300
	axisStep              = 10.0
	trimStep              = 1.0
	throttleTrimStep      = 0.5
	DefaultPacketInterval = 50 * time.Millisecond
)

type TickMsg time.Time

type Options struct {
	Control   control.Config
	Safety    safety.Config
	Actuation actuation.Config
	// PacketInterval is how often the keyboard operator sends a frame.
	PacketInterval time.Duration
	// Actuator defaults to an in-memory recorder.
	Actuator vehicle.Actuator
	// Store defaults to memory; commits then only last for the session.
	Store  calibration.Store
	Logger *slog.Logger
}

// rig is the vehicle behind the dashboard. It is shared by every copy of
// Model.
type rig struct {
	clock   time.Time
	link    *transport.Link
	calib   *calibration.Calibration
	mapper  *actuation.Mapper
	machine *control.Machine
	status  vehicle.Status
	history []float64
}

type Model struct {
	rig       *rig
	opts      Options
	input     vehicle.Input
	connected bool
	sending   bool
	lastSent  time.Time
	sent      bool
	message   string
	showHelp  bool
}

func NewModel(opts Options) Model {
	if opts.PacketInterval <= 0 {
		opts.PacketInterval = DefaultPacketInterval
	}
	if opts.Actuator == nil {
		opts.Actuator = hardware.NewRecorder()
	}
	if opts.Store == nil {
		opts.Store = calibration.NewMemoryStore(vehicle.Trims{})
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	r := &rig{history: make([]float64, 0, historyCapacity)}
	r.link = transport.NewLink(func() time.Time { return r.clock })
	r.calib = calibration.New(opts.Store, opts.Logger)
	if err := r.calib.Load(); err != nil {
		opts.Logger.Warn("starting with zero trims", "err", err)
	}
	r.mapper = actuation.New(opts.Actuation, r.calib, opts.Actuator, opts.Logger)
	r.machine = control.New(opts.Control, r.link, safety.New(opts.Safety), r.mapper, r.calib, opts.Logger)
	r.machine.AddObserver(vehicle.ObserverFunc(func(s vehicle.Status) {
		r.status = s
		if len(r.history) == historyCapacity {
			r.history = r.history[1:]
		}
		r.history = append(r.history, s.Throttle)
	}))

	return Model{
		rig:       r,
		opts:      opts,
		connected: true,
		sending:   true,
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.opts.Control.Interval, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return m.tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.rig.mapper.ForceNeutral()
			m.rig.mapper.SetAuxiliary(false, false)
			return m, tea.Quit
		case "up", "w":
			m.input.Throttle = vehicle.Clamp(m.input.Throttle+axisStep, -vehicle.AxisLimit, vehicle.AxisLimit)
		case "down", "s":
			m.input.Throttle = vehicle.Clamp(m.input.Throttle-axisStep, -vehicle.AxisLimit, vehicle.AxisLimit)
		case "left", "a":
			m.input.Steering = vehicle.Clamp(m.input.Steering-axisStep, -vehicle.AxisLimit, vehicle.AxisLimit)
		case "right", "d":
			m.input.Steering = vehicle.Clamp(m.input.Steering+axisStep, -vehicle.AxisLimit, vehicle.AxisLimit)
		case " ":
			m.input.Throttle, m.input.Steering = 0, 0
		case "l":
			m.input.Lights = !m.input.Lights
		case "h":
			m.input.Horn = !m.input.Horn
		case "c":
			m.connected = !m.connected
		case "p":
			m.sending = !m.sending
		case "[":
			m.rig.calib.ApplyTrimLive(m.rig.calib.Trims().Steering - trimStep)
		case "]":
			m.rig.calib.ApplyTrimLive(m.rig.calib.Trims().Steering + trimStep)
		case "{":
			m.rig.calib.ApplyThrottleTrimLive(m.rig.calib.Trims().Throttle - throttleTrimStep)
		case "}":
			m.rig.calib.ApplyThrottleTrimLive(m.rig.calib.Trims().Throttle + throttleTrimStep)
		case "enter":
			m.message = m.commitTrims()
		case "t":
			NextTheme()
		case "?":
			m.showHelp = !m.showHelp
		}
	case TickMsg:
		m.step(time.Time(msg))
		return m, m.tick()
	}
	return m, nil
}

// step sends the operator frame when one is due and offers the machine a
// tick.
func (m *Model) step(now time.Time) {
	r := m.rig
	r.clock = now
	r.link.SetConnected(m.connected)

	if m.connected && m.sending && (!m.sent || now.Sub(m.lastSent) >= m.opts.PacketInterval) {
		in := m.input
		in.Timestamp = uint32(now.UnixMilli())
		r.link.Publish(in)
		m.lastSent = now
		m.sent = true
	}
	r.machine.Tick(now)
}

func (m Model) commitTrims() string {
	t := m.rig.calib.Trims()
	if err := m.rig.calib.ApplyTrimCommit(t.Steering); err != nil {
		return "save failed: " + err.Error()
	}
	if err := m.rig.calib.ApplyThrottleTrimCommit(t.Throttle); err != nil {
		return "save failed: " + err.Error()
	}
	return fmt.Sprintf("saved trims %.1f / %.1f", t.Steering, t.Throttle)
}

// Status is the most recent control tick.
func (m Model) Status() vehicle.Status { return m.rig.status }

func (m Model) Input() vehicle.Input { return m.input }

func (m Model) Trims() vehicle.Trims { return m.rig.calib.Trims() }

func (m Model) View() string {
	r := m.rig
	st := r.status
	trims := r.calib.Trims()
	cfg := m.opts.Actuation

	header := title("crawlerctl live") + "  " + StateBadge(st.State)

	var b strings.Builder
	row := func(k, v string) { b.WriteString(label(k) + value(v) + "\n") }
	row("Operator", fmt.Sprintf("%s %s", linkState(m.connected, m.sending), hint(fmt.Sprintf("age %s", formatAge(r.link.TimeSinceLastPacket())))))
	row("Command", fmt.Sprintf("thr %+6.1f  str %+6.1f", m.input.Throttle, m.input.Steering))
	row("Safe", fmt.Sprintf("thr %+6.1f  str %+6.1f", st.Throttle, st.Steering))
	row("Throttle", Gauge(st.Throttle, 30))
	row("Steering", Gauge(st.Steering, 30))
	row("ESC", fmt.Sprintf("%4d  %6.0fus", st.EscDuty, cfg.DutyToMicros(st.EscDuty)))
	row("Servo", fmt.Sprintf("%4d  %6.0fus", st.ServoDuty, cfg.DutyToMicros(st.ServoDuty)))
	row("Reverse", armed(st.ReverseArmed))
	row("In state", st.TimeInState.Truncate(time.Millisecond).String())
	row("Lights/Horn", onOff(st.Lights)+" / "+onOff(st.Horn))
	row("Trim", fmt.Sprintf("str %+5.1f  thr %+5.1f", trims.Steering, trims.Throttle))
	stats := panel().Render(strings.TrimRight(b.String(), "\n"))

	chart := ""
	if len(r.history) > 0 {
		chart = asciigraph.Plot(r.history,
			asciigraph.Height(10),
			asciigraph.Width(60),
			asciigraph.LowerBound(-vehicle.AxisLimit),
			asciigraph.UpperBound(vehicle.AxisLimit),
			asciigraph.Caption("safe throttle %"))
	}
	graph := panel().Render(chart)

	body := lipgloss.JoinHorizontal(lipgloss.Top, stats, graph)

	footer := hint("w/s throttle  a/d steer  space neutral  l lights  h horn  c link  p packets  ? help  q quit")
	if m.showHelp {
		footer = hint("[ ] steering trim   { } throttle trim   enter save trims   t theme")
	}
	if m.message != "" {
		footer += "\n" + value(m.message)
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func linkState(connected, sending bool) string {
	switch {
	case !connected:
		return "disconnected"
	case !sending:
		return "connected, silent"
	default:
		return "connected"
	}
}

func armed(b bool) string {
	if b {
		return "armed"
	}
	return "locked"
}

func formatAge(d time.Duration) string {
	if d > time.Hour {
		return "never"
	}
	return d.Truncate(time.Millisecond).String()
}

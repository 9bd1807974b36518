package sim

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/san-kum/crawlerctl/internal/actuation"
	"github.com/san-kum/crawlerctl/internal/calibration"
	"github.com/san-kum/crawlerctl/internal/control"
	"github.com/san-kum/crawlerctl/internal/hardware"
	"github.com/san-kum/crawlerctl/internal/safety"
	"github.com/san-kum/crawlerctl/internal/transport"
	"github.com/san-kum/crawlerctl/internal/vehicle"
)

const DefaultResolution = time.Millisecond

type Config struct {
	Control   control.Config
	Safety    safety.Config
	Actuation actuation.Config
	// Resolution is the simulated clock step. The machine still only
	// executes once per control interval.
	Resolution time.Duration
}

func DefaultConfig() Config {
	return Config{
		Control:    control.DefaultConfig(),
		Safety:     safety.DefaultConfig(),
		Actuation:  actuation.DefaultConfig(),
		Resolution: DefaultResolution,
	}
}

// Simulator runs scenarios against the real control core on a simulated
// clock. Each Run builds a fresh vehicle.
type Simulator struct {
	cfg       Config
	logger    *slog.Logger
	metrics   []Metric
	observers []Observer
}

func New(cfg Config, logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{
		cfg:       cfg,
		logger:    logger,
		metrics:   make([]Metric, 0),
		observers: make([]Observer, 0),
	}
}

func (s *Simulator) AddMetric(m Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }

func (s *Simulator) Run(ctx context.Context, sc *Scenario) (*Result, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	if s.cfg.Resolution <= 0 {
		return nil, fmt.Errorf("resolution must be positive, got %v", s.cfg.Resolution)
	}
	if s.cfg.Control.Interval <= 0 {
		return nil, fmt.Errorf("control interval must be positive, got %v", s.cfg.Control.Interval)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := start

	link := transport.NewLink(func() time.Time { return clock })
	rec := hardware.NewRecorder()
	calib := calibration.New(nil, s.logger)
	mapper := actuation.New(s.cfg.Actuation, calib, rec, s.logger)
	machine := control.New(s.cfg.Control, link, safety.New(s.cfg.Safety), mapper, calib, s.logger)

	for _, m := range s.metrics {
		m.Reset()
	}

	result := &Result{
		Scenario: sc.Name,
		Samples:  make([]Sample, 0, int(sc.Duration()/s.cfg.Control.Interval)+1),
		Metrics:  make(map[string]float64),
	}

	var current Step
	machine.AddObserver(vehicle.ObserverFunc(func(st vehicle.Status) {
		raw := vehicle.Input{Throttle: current.Throttle, Steering: current.Steering}.Clamped()
		sample := Sample{
			Time:         clock.Sub(start),
			State:        st.State,
			ReverseArmed: st.ReverseArmed,
			RawThrottle:  raw.Throttle,
			RawSteering:  raw.Steering,
			Throttle:     st.Throttle,
			Steering:     st.Steering,
			EscDuty:      st.EscDuty,
			ServoDuty:    st.ServoDuty,
			Lights:       st.Lights,
			Horn:         st.Horn,
		}
		for _, m := range s.metrics {
			m.Observe(sample)
		}
		for _, o := range s.observers {
			o.OnSample(sample)
		}
		result.Samples = append(result.Samples, sample)
	}))

	interval := sc.PacketInterval()
	var lastSent time.Time
	sent := false

	for i, step := range sc.Steps {
		current = step
		if step.TrimLive != nil {
			calib.ApplyTrimLive(*step.TrimLive)
		}
		if step.ThrottleTrimLive != nil {
			calib.ApplyThrottleTrimLive(*step.ThrottleTrimLive)
		}
		link.SetConnected(step.IsConnected())
		s.logger.Debug("scenario step", "scenario", sc.Name, "step", i+1, "at", clock.Sub(start))

		end := clock.Add(step.Duration())
		for clock.Before(end) {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			default:
			}

			if step.IsConnected() && !step.Stale && (!sent || clock.Sub(lastSent) >= interval) {
				link.Publish(vehicle.Input{
					Throttle:  step.Throttle,
					Steering:  step.Steering,
					Lights:    step.Lights,
					Horn:      step.Horn,
					Timestamp: uint32(clock.Sub(start) / time.Millisecond),
				})
				lastSent = clock
				sent = true
			}

			machine.Tick(clock)
			clock = clock.Add(s.cfg.Resolution)
		}
	}

	result.Duration = clock.Sub(start)
	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	return result, nil
}

// Package optim tunes control parameters by simulating scripted scenarios
// over a grid of candidate values.
package optim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/san-kum/crawlerctl/internal/sim"
)

var ErrUnknownParam = errors.New("optim: unknown parameter")

// Setter writes one tunable value into a simulator config.
type Setter func(cfg *sim.Config, v float64)

// Params are the tunables a grid may sweep.
var Params = map[string]Setter{
	"alpha":     func(c *sim.Config, v float64) { c.Safety.Alpha = v },
	"deadband":  func(c *sim.Config, v float64) { c.Safety.Deadband = v; c.Control.Deadband = v },
	"slew_step": func(c *sim.Config, v float64) { c.Safety.SlewStep = v },
	"expo":      func(c *sim.Config, v float64) { c.Actuation.Expo = v },
}

func ParamNames() []string {
	names := make([]string, 0, len(Params))
	for n := range Params {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Objective scores a finished run. Lower is better.
type Objective func(*sim.Result) float64

// Minimize scores a run by one of its metrics. Runs missing the metric
// score +Inf.
func Minimize(metric string) Objective {
	return func(r *sim.Result) float64 {
		v, ok := r.Metrics[metric]
		if !ok {
			return math.Inf(1)
		}
		return v
	}
}

type Trial struct {
	Params map[string]float64
	Score  float64
}

type GridSearch struct {
	base       sim.Config
	paramNames []string
	ranges     [][]float64
	metrics    func() []sim.Metric
	logger     *slog.Logger
}

func NewGridSearch(base sim.Config, params []string, ranges [][]float64, metrics func() []sim.Metric, logger *slog.Logger) (*GridSearch, error) {
	if len(params) != len(ranges) {
		return nil, fmt.Errorf("optim: %d params but %d ranges", len(params), len(ranges))
	}
	for i, p := range params {
		if _, ok := Params[p]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownParam, p)
		}
		if len(ranges[i]) == 0 {
			return nil, fmt.Errorf("optim: empty range for %s", p)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GridSearch{base: base, paramNames: params, ranges: ranges, metrics: metrics, logger: logger}, nil
}

// Search runs every scenario for each grid point and sums the objective
// across them. Trials come back best first. Points whose simulation fails
// are skipped.
func (g *GridSearch) Search(ctx context.Context, scenarios []*sim.Scenario, objective Objective) ([]Trial, error) {
	var trials []Trial
	err := g.searchRecursive(ctx, 0, map[string]float64{}, func(params map[string]float64) error {
		score, err := g.evaluate(ctx, params, scenarios, objective)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			g.logger.Warn("trial failed", "params", params, "err", err)
			return nil
		}
		trials = append(trials, Trial{Params: params, Score: score})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(trials, func(i, j int) bool { return trials[i].Score < trials[j].Score })
	return trials, nil
}

func (g *GridSearch) evaluate(ctx context.Context, params map[string]float64, scenarios []*sim.Scenario, objective Objective) (float64, error) {
	cfg := g.base
	for name, v := range params {
		Params[name](&cfg, v)
	}

	total := 0.0
	for _, sc := range scenarios {
		s := sim.New(cfg, g.logger)
		if g.metrics != nil {
			for _, m := range g.metrics() {
				s.AddMetric(m)
			}
		}
		res, err := s.Run(ctx, sc)
		if err != nil {
			return 0, err
		}
		total += objective(res)
	}
	return total, nil
}

func (g *GridSearch) searchRecursive(ctx context.Context, depth int, current map[string]float64, visit func(map[string]float64) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth == len(g.paramNames) {
		return visit(current)
	}

	name := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		next := make(map[string]float64, len(current)+1)
		for k, v := range current {
			next[k] = v
		}
		next[name] = val
		if err := g.searchRecursive(ctx, depth+1, next, visit); err != nil {
			return err
		}
	}
	return nil
}

// Range returns n evenly spaced values from lo to hi inclusive.
func Range(lo, hi float64, n int) []float64 {
	if n <= 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + step*float64(i)
	}
	return out
}

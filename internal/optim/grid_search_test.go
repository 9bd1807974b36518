package optim

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/san-kum/crawlerctl/internal/metrics"
	"github.com/san-kum/crawlerctl/internal/sim"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestGridSearchPrefersGentleSlew(t *testing.T) {
	base := sim.DefaultConfig()
	factory := func() []sim.Metric {
		return metrics.Default(base.Actuation.DutyNeutral, base.Control.Interval)
	}
	g, err := NewGridSearch(base, []string{"slew_step"}, [][]float64{{20, 5, 1}}, factory, quiet())
	if err != nil {
		t.Fatal(err)
	}

	trials, err := g.Search(context.Background(), []*sim.Scenario{sim.GetPreset("drive")}, Minimize("max_forward_step"))
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(trials) != 3 {
		t.Fatalf("trials = %d, want 3", len(trials))
	}
	if trials[0].Params["slew_step"] != 1 {
		t.Errorf("best slew = %v, want 1", trials[0].Params["slew_step"])
	}
	if trials[0].Score > 1+1e-9 {
		t.Errorf("best score %v exceeds its slew step", trials[0].Score)
	}
	for i := 1; i < len(trials); i++ {
		if trials[i].Score < trials[i-1].Score {
			t.Errorf("trials not sorted: %v", trials)
		}
	}
}

func TestGridSearchCartesian(t *testing.T) {
	g, err := NewGridSearch(sim.DefaultConfig(), []string{"alpha", "expo"}, [][]float64{{0.2, 0.5}, {0.8, 1, 1.5}}, nil, quiet())
	if err != nil {
		t.Fatal(err)
	}
	calls := 0
	count := func(*sim.Result) float64 { calls++; return 0 }

	sc := &sim.Scenario{Name: "short", Steps: []sim.Step{{DurationMs: 50}}}
	trials, err := g.Search(context.Background(), []*sim.Scenario{sc}, count)
	if err != nil {
		t.Fatal(err)
	}
	if len(trials) != 6 || calls != 6 {
		t.Errorf("trials = %d calls = %d, want 6", len(trials), calls)
	}
}

func TestGridSearchCancelled(t *testing.T) {
	g, err := NewGridSearch(sim.DefaultConfig(), []string{"alpha"}, [][]float64{{0.3}}, nil, quiet())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Search(ctx, []*sim.Scenario{sim.GetPreset("drive")}, Minimize("x")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancellation, got %v", err)
	}
}

func TestNewGridSearchRejects(t *testing.T) {
	if _, err := NewGridSearch(sim.DefaultConfig(), []string{"gain"}, [][]float64{{1}}, nil, nil); !errors.Is(err, ErrUnknownParam) {
		t.Errorf("expected ErrUnknownParam, got %v", err)
	}
	if _, err := NewGridSearch(sim.DefaultConfig(), []string{"alpha"}, nil, nil, nil); err == nil {
		t.Error("expected length mismatch error")
	}
	if _, err := NewGridSearch(sim.DefaultConfig(), []string{"alpha"}, [][]float64{{}}, nil, nil); err == nil {
		t.Error("expected empty range error")
	}
}

func TestMinimizeMissingMetric(t *testing.T) {
	r := &sim.Result{Metrics: map[string]float64{"a": 2}}
	if v := Minimize("a")(r); v != 2 {
		t.Errorf("a = %v", v)
	}
	if v := Minimize("b")(r); v < 1e300 {
		t.Errorf("missing metric should score +Inf, got %v", v)
	}
}

func TestRange(t *testing.T) {
	got := Range(1, 5, 5)
	want := []float64{1, 2, 3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Range = %v, want %v", got, want)
		}
	}
	if r := Range(3, 9, 1); len(r) != 1 || r[0] != 3 {
		t.Errorf("single point = %v", r)
	}
}

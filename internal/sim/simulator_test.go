package sim

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/san-kum/crawlerctl/internal/actuation"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func runPreset(t *testing.T, name string) *Result {
	t.Helper()
	sc := GetPreset(name)
	if sc == nil {
		t.Fatalf("missing preset %s", name)
	}
	r, err := New(DefaultConfig(), quiet()).Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("run %s: %v", name, err)
	}
	return r
}

func contains(states []string, want string) bool {
	for _, s := range states {
		if s == want {
			return true
		}
	}
	return false
}

func TestRunSamplesEveryInterval(t *testing.T) {
	r := runPreset(t, "drive")

	want := int(GetPreset("drive").Duration() / (10 * time.Millisecond))
	if len(r.Samples) != want {
		t.Errorf("expected %d samples, got %d", want, len(r.Samples))
	}
	for i := 1; i < len(r.Samples); i++ {
		if d := r.Samples[i].Time - r.Samples[i-1].Time; d != 10*time.Millisecond {
			t.Fatalf("sample %d spaced %v apart", i, d)
		}
	}
}

func TestDrivePreset(t *testing.T) {
	r := runPreset(t, "drive")

	final, ok := r.Final()
	if !ok || final.State != "active_control" {
		t.Fatalf("expected to finish in active_control, got %+v", final)
	}
	if contains(r.States(), "failsafe") {
		t.Error("drive should never trip the watchdog")
	}

	var peak uint32
	maxStep := 0.0
	for i, s := range r.Samples {
		if s.EscDuty > peak {
			peak = s.EscDuty
		}
		if i > 0 && s.Throttle-r.Samples[i-1].Throttle > maxStep {
			maxStep = s.Throttle - r.Samples[i-1].Throttle
		}
	}
	if peak <= actuation.DutyNeutral {
		t.Error("expected forward ESC duty")
	}
	if maxStep > 5+1e-9 {
		t.Errorf("forward slew exceeded: %v", maxStep)
	}
}

func TestReverseLockoutPreset(t *testing.T) {
	r := runPreset(t, "reverse-lockout")

	states := r.States()
	for _, want := range []string{"init_esc", "idle_no_client", "client_connected", "active_control", "braking", "wait_for_neutral_dwell"} {
		if !contains(states, want) {
			t.Errorf("expected to visit %s, got %v", want, states)
		}
	}

	for _, s := range r.Samples {
		if s.EscDuty < actuation.DutyNeutral && !s.ReverseArmed && s.State != "braking" {
			t.Fatalf("reverse duty without arming at %v: %+v", s.Time, s)
		}
	}
}

func TestNeutralDwellArmsReverse(t *testing.T) {
	r := runPreset(t, "neutral-dwell")

	reversed := false
	for _, s := range r.Samples {
		if s.State == "active_control" && s.ReverseArmed && s.EscDuty < actuation.DutyNeutral {
			reversed = true
		}
	}
	if !reversed {
		t.Error("expected armed reverse after the dwell")
	}
}

func TestWatchdogPreset(t *testing.T) {
	r := runPreset(t, "watchdog")

	states := r.States()
	if !contains(states, "failsafe") {
		t.Fatalf("expected failsafe, got %v", states)
	}

	failsafeEntries := 0
	prev := ""
	for _, s := range r.Samples {
		if s.State == "failsafe" {
			if s.EscDuty != actuation.DutyNeutral || s.ServoDuty != actuation.DutyNeutral {
				t.Fatalf("failsafe output not neutral at %v: %+v", s.Time, s)
			}
			if prev != "failsafe" {
				failsafeEntries++
			}
		}
		prev = s.State
	}
	if failsafeEntries != 2 {
		t.Errorf("expected 2 failsafe entries, got %d", failsafeEntries)
	}

	// The long outage exceeds the hard timeout, so recovery goes through
	// the connect handshake again.
	sawHandshake := false
	for i := 1; i < len(r.Samples); i++ {
		if r.Samples[i-1].State == "failsafe" && r.Samples[i].State == "client_connected" {
			sawHandshake = true
		}
	}
	if !sawHandshake {
		t.Error("expected failsafe -> client_connected after the hard timeout")
	}

	if final, _ := r.Final(); final.State != "active_control" {
		t.Errorf("expected to finish in active_control, got %s", final.State)
	}
}

func TestDisconnectPreset(t *testing.T) {
	r := runPreset(t, "disconnect")

	idleAfterDrive := false
	drove := false
	for _, s := range r.Samples {
		if s.EscDuty > actuation.DutyNeutral {
			drove = true
		}
		if drove && s.State == "idle_no_client" {
			idleAfterDrive = true
			if s.EscDuty != actuation.DutyNeutral {
				t.Fatalf("idle output not neutral: %+v", s)
			}
		}
	}
	if !idleAfterDrive {
		t.Error("expected idle_no_client after the drop")
	}
	if final, _ := r.Final(); final.State != "active_control" {
		t.Errorf("expected to reconnect, got %s", final.State)
	}
}

func TestTrimPreset(t *testing.T) {
	r := runPreset(t, "trim")

	trimmed := false
	for _, s := range r.Samples {
		if s.Time >= 2300*time.Millisecond && s.Time < 2700*time.Millisecond && s.ServoDuty > actuation.DutyNeutral {
			trimmed = true
		}
	}
	if !trimmed {
		t.Error("expected live steering trim to move the servo")
	}

	final, _ := r.Final()
	if final.ServoDuty != actuation.DutyNeutral {
		t.Errorf("expected centred servo after clearing trim, got %d", final.ServoDuty)
	}
}

type countMetric struct{ n int }

func (c *countMetric) Name() string   { return "count" }
func (c *countMetric) Observe(Sample) { c.n++ }
func (c *countMetric) Value() float64 { return float64(c.n) }
func (c *countMetric) Reset()         { c.n = 0 }

func TestMetricsAndObservers(t *testing.T) {
	s := New(DefaultConfig(), quiet())
	s.AddMetric(&countMetric{})
	seen := 0
	s.AddObserver(ObserverFunc(func(Sample) { seen++ }))

	r, err := s.Run(context.Background(), GetPreset("drive"))
	if err != nil {
		t.Fatal(err)
	}
	if r.Metrics["count"] != float64(len(r.Samples)) {
		t.Errorf("metric saw %v samples, result has %d", r.Metrics["count"], len(r.Samples))
	}
	if seen != len(r.Samples) {
		t.Errorf("observer saw %d samples, result has %d", seen, len(r.Samples))
	}

	// Metrics are reset between runs.
	r2, err := s.Run(context.Background(), GetPreset("drive"))
	if err != nil {
		t.Fatal(err)
	}
	if r2.Metrics["count"] != r.Metrics["count"] {
		t.Errorf("metric not reset: %v vs %v", r2.Metrics["count"], r.Metrics["count"])
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(DefaultConfig(), quiet()).Run(ctx, GetPreset("drive")); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRunRejectsZeroInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Control.Interval = 0
	if _, err := New(cfg, quiet()).Run(context.Background(), GetPreset("drive")); err == nil {
		t.Error("expected error for zero control interval")
	}
}

func TestScenarioValidate(t *testing.T) {
	tests := []struct {
		name string
		sc   Scenario
	}{
		{"no steps", Scenario{Name: "empty"}},
		{"zero duration", Scenario{Name: "zero", Steps: []Step{{DurationMs: 0}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.sc.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "park.yaml")
	data := `name: park
packet_interval_ms: 20
steps:
  - duration_ms: 2200
  - duration_ms: 300
    throttle: 25
    trim_live: -3
  - duration_ms: 200
    connected: false
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	sc, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sc.PacketInterval() != 20*time.Millisecond {
		t.Errorf("packet interval = %v", sc.PacketInterval())
	}
	if !sc.Steps[0].IsConnected() || sc.Steps[2].IsConnected() {
		t.Error("connected flag not decoded")
	}
	if sc.Steps[1].TrimLive == nil || *sc.Steps[1].TrimLive != -3 {
		t.Error("trim_live not decoded")
	}
	if sc.Duration() != 2700*time.Millisecond {
		t.Errorf("duration = %v", sc.Duration())
	}

	r, err := New(DefaultConfig(), quiet()).Run(context.Background(), sc)
	if err != nil {
		t.Fatal(err)
	}
	if final, _ := r.Final(); final.State != "idle_no_client" {
		t.Errorf("expected idle after disconnect, got %s", final.State)
	}
}

func TestSaveScenarioRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchdog.yaml")
	if err := SaveScenario(path, GetPreset("watchdog")); err != nil {
		t.Fatal(err)
	}
	sc, err := LoadScenario(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(sc.Steps) != len(Presets["watchdog"].Steps) {
		t.Errorf("expected %d steps, got %d", len(Presets["watchdog"].Steps), len(sc.Steps))
	}
}

func TestGetPresetReturnsCopy(t *testing.T) {
	sc := GetPreset("drive")
	sc.Steps[0].DurationMs = 1
	if Presets["drive"].Steps[0].DurationMs == 1 {
		t.Error("preset mutated through copy")
	}
	if GetPreset("nonexistent") != nil {
		t.Error("expected nil for unknown preset")
	}
}

func TestBatchRunsInOrder(t *testing.T) {
	names := ListPresets()
	scenarios := make([]*Scenario, len(names))
	for i, n := range names {
		scenarios[i] = GetPreset(n)
	}

	b := NewBatch(DefaultConfig(), func() []Metric { return []Metric{&countMetric{}} }, quiet())
	results, err := b.Run(context.Background(), scenarios)
	if err != nil {
		t.Fatal(err)
	}
	for i, r := range results {
		if r.Scenario != names[i] {
			t.Errorf("result %d is %s, want %s", i, r.Scenario, names[i])
		}
		if r.Metrics["count"] != float64(len(r.Samples)) {
			t.Errorf("%s: metrics shared across runs", r.Scenario)
		}
	}
}

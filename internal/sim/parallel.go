package sim

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Batch runs several scenarios concurrently, each on its own simulator.
type Batch struct {
	cfg     Config
	metrics func() []Metric
	logger  *slog.Logger
}

// NewBatch takes a metrics factory because metrics carry per-run state.
func NewBatch(cfg Config, metrics func() []Metric, logger *slog.Logger) *Batch {
	return &Batch{cfg: cfg, metrics: metrics, logger: logger}
}

// Run returns results in scenario order. The first failure cancels the rest.
func (b *Batch) Run(ctx context.Context, scenarios []*Scenario) ([]*Result, error) {
	results := make([]*Result, len(scenarios))

	g, ctx := errgroup.WithContext(ctx)
	for i, sc := range scenarios {
		g.Go(func() error {
			s := New(b.cfg, b.logger)
			if b.metrics != nil {
				for _, m := range b.metrics() {
					s.AddMetric(m)
				}
			}
			r, err := s.Run(ctx, sc)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

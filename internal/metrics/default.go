// Package metrics summarises simulated runs.
package metrics

import (
	"time"

	"github.com/san-kum/crawlerctl/internal/sim"
)

// Default is the metric set recorded for every stored run.
func Default(neutral uint32, tick time.Duration) []sim.Metric {
	return []sim.Metric{
		NewEscWrites(),
		NewServoWrites(),
		NewStateEntries("failsafe"),
		NewStateEntries("braking"),
		NewTimeIn("failsafe", tick),
		NewMaxForwardStep(),
		NewReverseViolations(neutral),
		NewThrottleEffort(),
	}
}

// Package calibration holds the steering and throttle trims. Live setters
// only touch memory; commit setters persist first and then apply.
package calibration

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/san-kum/crawlerctl/internal/vehicle"
)

// Store persists trims.
type Store interface {
	Load() (vehicle.Trims, error)
	Save(t vehicle.Trims) error
}

// Calibration is shared between the message handler, which writes it, and
// the control tick, which reads a whole snapshot through Trims.
type Calibration struct {
	mu       sync.RWMutex
	commitMu sync.Mutex
	trims    vehicle.Trims
	// persisted mirrors what the store holds. Guarded by commitMu; live
	// previews never reach it.
	persisted vehicle.Trims
	store     Store
	logger    *slog.Logger
}

func New(store Store, logger *slog.Logger) *Calibration {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calibration{store: store, logger: logger}
}

// Load reads the persisted trims into memory.
func (c *Calibration) Load() error {
	if c.store == nil {
		return nil
	}
	c.commitMu.Lock()
	defer c.commitMu.Unlock()

	t, err := c.store.Load()
	if err != nil {
		return fmt.Errorf("load trims: %w", err)
	}
	t = t.Clamped()
	c.persisted = t
	c.mu.Lock()
	c.trims = t
	c.mu.Unlock()
	c.logger.Info("loaded trims", "steering", t.Steering, "throttle", t.Throttle)
	return nil
}

func (c *Calibration) Trims() vehicle.Trims {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.trims
}

func (c *Calibration) ApplyTrimLive(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trims.Steering = vehicle.Clamp(v, -vehicle.SteeringTrimLimit, vehicle.SteeringTrimLimit)
}

func (c *Calibration) ApplyThrottleTrimLive(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trims.Throttle = vehicle.Clamp(v, -vehicle.ThrottleTrimLimit, vehicle.ThrottleTrimLimit)
}

// ApplyTrimCommit persists the steering trim and applies it. The value is
// applied even when persisting fails; the error reports that it will not
// survive a restart.
func (c *Calibration) ApplyTrimCommit(v float64) error {
	return c.commit(func(t *vehicle.Trims) {
		t.Steering = vehicle.Clamp(v, -vehicle.SteeringTrimLimit, vehicle.SteeringTrimLimit)
	})
}

func (c *Calibration) ApplyThrottleTrimCommit(v float64) error {
	return c.commit(func(t *vehicle.Trims) {
		t.Throttle = vehicle.Clamp(v, -vehicle.ThrottleTrimLimit, vehicle.ThrottleTrimLimit)
	})
}

func (c *Calibration) commit(update func(*vehicle.Trims)) error {
	// commitMu orders commits; the store write happens outside mu so
	// readers on the control loop never wait on I/O.
	c.commitMu.Lock()
	defer c.commitMu.Unlock()

	next := c.persisted
	update(&next)

	var err error
	if c.store != nil {
		if err = c.store.Save(next); err != nil {
			err = fmt.Errorf("save trims: %w", err)
		} else {
			c.persisted = next
		}
	}

	c.mu.Lock()
	update(&c.trims)
	c.mu.Unlock()

	if err == nil {
		c.logger.Info("saved trims", "steering", next.Steering, "throttle", next.Throttle)
	}
	return err
}

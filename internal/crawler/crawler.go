// Package crawler assembles the vehicle from configuration and runs the
// control loop next to the operator server.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/crawlerctl/internal/actuation"
	"github.com/san-kum/crawlerctl/internal/calibration"
	"github.com/san-kum/crawlerctl/internal/config"
	"github.com/san-kum/crawlerctl/internal/control"
	"github.com/san-kum/crawlerctl/internal/safety"
	"github.com/san-kum/crawlerctl/internal/transport"
	"github.com/san-kum/crawlerctl/internal/vehicle"
)

const (
	// pollInterval is how often the loop offers a tick; the machine itself
	// enforces the control interval.
	pollInterval    = time.Millisecond
	shutdownTimeout = 2 * time.Second
)

type Crawler struct {
	cfg         *config.Config
	logger      *slog.Logger
	actuator    vehicle.Actuator
	calibration *calibration.Calibration
	link        *transport.Link
	mapper      *actuation.Mapper
	machine     *control.Machine
	server      *transport.Server
}

// New builds every component. A calibration store that cannot be read is
// logged and the vehicle starts with zero trims.
func New(cfg *config.Config, actuator vehicle.Actuator, store calibration.Store, logger *slog.Logger) *Crawler {
	if logger == nil {
		logger = slog.Default()
	}

	calib := calibration.New(store, logger.With("component", "calibration"))
	if err := calib.Load(); err != nil {
		logger.Warn("starting with zero trims", "err", err)
	}

	link := transport.NewLink(nil)
	mapper := actuation.New(cfg.ActuationConfig(), calib, actuator, logger.With("component", "actuation"))
	mapper.ForceNeutral()
	mapper.SetAuxiliary(false, false)

	filter := safety.New(cfg.SafetyConfig())
	machine := control.New(cfg.ControlConfig(), link, filter, mapper, calib, logger.With("component", "control"))
	server := transport.NewServer(cfg.TransportConfig(), link, calib, logger.With("component", "transport"))
	machine.AddObserver(server)

	return &Crawler{
		cfg:         cfg,
		logger:      logger,
		actuator:    actuator,
		calibration: calib,
		link:        link,
		mapper:      mapper,
		machine:     machine,
		server:      server,
	}
}

func (c *Crawler) Machine() *control.Machine             { return c.machine }
func (c *Crawler) Server() *transport.Server             { return c.server }
func (c *Crawler) Calibration() *calibration.Calibration { return c.calibration }

// Run serves operators on the configured address and runs the control loop
// until ctx is cancelled or either side fails.
func (c *Crawler) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", c.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", c.cfg.Server.Listen, err)
	}
	return c.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (c *Crawler) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           c.server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		c.logger.Info("operator server listening", "addr", ln.Addr().String(), "path", c.cfg.Server.Path)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return c.loop(ctx)
	})

	err := g.Wait()
	c.Stop()
	return err
}

func (c *Crawler) loop(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			c.machine.Tick(now)
		}
	}
}

// Stop parks every output. It is safe to call after Run returned.
func (c *Crawler) Stop() {
	c.mapper.ForceNeutral()
	c.mapper.SetAuxiliary(false, false)
	c.logger.Info("outputs parked at neutral")
}

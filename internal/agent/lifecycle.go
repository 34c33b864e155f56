package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"aurora-vcpu-balancer/internal/balancer"
	"aurora-vcpu-balancer/internal/metrics"
)

func (a *Agent) run(ctx context.Context) error {
	if err := a.conn.Connect(ctx); err != nil {
		return fmt.Errorf("initial libvirt connect: %w", err)
	}
	a.health.SetLibvirtConnected(true)

	session, err := balancer.OpenSession(ctx, a.hv, a.logger)
	if err != nil {
		a.health.SetLibvirtConnected(false)
		return fmt.Errorf("open host session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			a.logger.Warn("host session close failed", "error", err)
		}
		a.health.SetLibvirtConnected(false)
	}()

	engine, err := balancer.NewEngine(session, balancer.Options{
		NodeID:   a.cfg.NodeID,
		Interval: a.cfg.SampleInterval,
		Policy: balancer.Policy{
			Strikes:    a.cfg.ImbalanceStrikes,
			NoiseFloor: a.cfg.NoiseFloorPct,
		},
		Observers: a.observers,
	}, a.logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := engine.Run(gctx); err != nil {
			return fmt.Errorf("balancing loop: %w", err)
		}
		// The loop only returns nil once gctx is done; nothing else
		// should keep running either.
		return context.Canceled
	})
	g.Go(func() error {
		return a.runHealthLoop(gctx)
	})
	if a.cfg.ProbeListenAddr != "" {
		g.Go(func() error {
			return a.runProbeListener(gctx)
		})
	}
	if a.cfg.MetricsAddr != "" {
		g.Go(func() error {
			return metrics.Serve(gctx, a.cfg.MetricsAddr, a.registry, a.logger)
		})
	}
	if a.publisher != nil {
		g.Go(func() error {
			return a.publisher.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runHealthLoop records whether the libvirt connection still answers. It
// never reconnects: a dead connection fails the next cycle instead.
func (a *Agent) runHealthLoop(ctx context.Context) error {
	t := time.NewTicker(a.cfg.HealthInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := a.conn.Healthy(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				a.logger.Warn("libvirt health check failed", "error", err)
				a.health.SetLibvirtConnected(false)
				continue
			}
			a.health.SetLibvirtConnected(true)
			a.logHealth("ok")
		}
	}
}

func (a *Agent) logHealth(status string) {
	a.logger.Log(context.Background(), slog.LevelDebug, "agent health", "status", status, "snapshot", a.health.Snapshot())
}

func (a *Agent) shutdown(ctx context.Context) {
	if a.publisher != nil {
		if err := a.publisher.Close(ctx); err != nil {
			a.logger.Warn("report sink close failed", "error", err)
		}
		a.health.SetStreamConnected(false)
	}
	// Closing the connection also unblocks a libvirt call still in flight.
	if err := a.conn.Close(); err != nil {
		a.logger.Warn("libvirt close failed", "error", err)
	}
	a.health.SetLibvirtConnected(false)
}

package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

const probeName = "aurora-vcpu-balancer"

func (a *Agent) runProbeListener(ctx context.Context) error {
	addr := strings.TrimSpace(a.cfg.ProbeListenAddr)
	if addr == "" {
		return fmt.Errorf("empty probe listen address")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen probe endpoint %s: %w", addr, err)
	}
	a.logger.Info("probe endpoint listening", "addr", addr)
	return a.serveProbe(ctx, ln)
}

func (a *Agent) serveProbe(ctx context.Context, ln net.Listener) error {
	defer func() { _ = ln.Close() }()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, acceptErr := ln.Accept()
		if acceptErr != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(acceptErr, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(acceptErr, &ne) && ne.Timeout() {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return fmt.Errorf("accept probe endpoint %s: %w", ln.Addr(), acceptErr)
		}

		_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
		_, _ = conn.Write([]byte(a.probeLine(time.Now())))
		_ = conn.Close()
	}
}

func (a *Agent) probeLine(now time.Time) string {
	if a.health.Healthy(now, a.staleAfter()) {
		return probeName + ":ok\n"
	}
	return probeName + ":degraded\n"
}

// staleAfter allows three missed cycles plus the health interval before the
// probe reports degraded.
func (a *Agent) staleAfter() time.Duration {
	return 3*a.cfg.SampleInterval + a.cfg.HealthInterval
}

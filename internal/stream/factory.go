package stream

import (
	"context"
	"crypto/tls"
	"log/slog"

	"aurora-vcpu-balancer/internal/config"
	"aurora-vcpu-balancer/internal/model"
)

// NewSinkFromConfig returns the gRPC report sink, or a no-op sink when no
// backend address is configured.
func NewSinkFromConfig(cfg config.Config, tlsCfg *tls.Config, logger *slog.Logger) Sink {
	if !cfg.StreamingEnabled() {
		return nopSink{}
	}
	return NewGRPCClient(
		cfg.BackendGRPCAddr,
		tlsCfg,
		cfg.BackendToken,
		cfg.GRPCReportMethod,
		cfg.AgentVersion,
		logger,
	)
}

type nopSink struct{}

func (nopSink) SendCycleReport(context.Context, model.CycleReport) error { return nil }

func (nopSink) Close(context.Context) error { return nil }

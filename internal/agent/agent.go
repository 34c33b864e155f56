package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"aurora-vcpu-balancer/internal/agent/version"
	"aurora-vcpu-balancer/internal/balancer"
	"aurora-vcpu-balancer/internal/config"
	"aurora-vcpu-balancer/internal/console"
	"aurora-vcpu-balancer/internal/libvirt"
	"aurora-vcpu-balancer/internal/metrics"
	"aurora-vcpu-balancer/internal/stream"
)

type Agent struct {
	cfg       config.Config
	logger    *slog.Logger
	conn      *libvirt.ConnManager
	hv        balancer.Hypervisor
	publisher *stream.Publisher
	registry  *prometheus.Registry
	observers []balancer.Observer
	health    *HealthStatus
}

// SignalError reports that the agent stopped because of a signal. The
// process should exit with the signal number.
type SignalError struct {
	Signal os.Signal
}

func (e *SignalError) Error() string {
	return "stopped by signal " + e.Signal.String()
}

func (e *SignalError) ExitCode() int {
	if s, ok := e.Signal.(syscall.Signal); ok {
		return int(s)
	}
	return 1
}

func New(cfg config.Config, logger *slog.Logger) (*Agent, error) {
	tlsCfg, err := cfg.TLSConfig()
	if err != nil {
		return nil, fmt.Errorf("tls config: %w", err)
	}

	health := NewHealthStatus()
	conn := libvirt.NewConnManager(cfg.LibvirtURI, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector, err := metrics.NewCollector(registry, cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("metrics collector: %w", err)
	}

	observers := []balancer.Observer{health, collector}
	if cfg.Console {
		observers = append(observers, console.NewPrinter(os.Stdout, logger))
	}

	var publisher *stream.Publisher
	if cfg.StreamingEnabled() {
		sink := stream.NewSinkFromConfig(cfg, tlsCfg, logger)
		publisher = stream.NewPublisher(sink, cfg.StreamBufferSize, logger)
		publisher.OnResult(func(err error) { health.SetStreamConnected(err == nil) })
		observers = append(observers, publisher)
	}

	return &Agent{
		cfg:       cfg,
		logger:    logger,
		conn:      conn,
		hv:        libvirt.NewHypervisor(conn, logger),
		publisher: publisher,
		registry:  registry,
		observers: observers,
		health:    health,
	}, nil
}

// Run starts the balancer and blocks until it fails, ctx is canceled, or a
// SIGINT/SIGTERM arrives. After a signal it returns a *SignalError.
func (a *Agent) Run(ctx context.Context) error {
	v := version.Get(a.cfg)
	a.logger.Info("starting aurora-vcpu-balancer",
		"node_id", a.cfg.NodeID,
		"libvirt_uri", a.cfg.LibvirtURI,
		"interval", a.cfg.SampleInterval,
		"version", v.AgentVersion,
		"go_version", v.GoVersion,
	)
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- a.run(runCtx)
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case runErr = <-runErrCh:
	case sig := <-sigCh:
		a.logger.Info("shutdown signal received, starting graceful shutdown", "signal", sig.String(), "timeout", a.cfg.ShutdownTimeout)
		cancelRun()
		runErr = &SignalError{Signal: sig}

		graceTimer := time.NewTimer(a.cfg.ShutdownTimeout)
		defer graceTimer.Stop()

		select {
		case err := <-runErrCh:
			if err != nil {
				a.logger.Warn("balancer stopped with error during shutdown", "error", err)
			}
		case sig2 := <-sigCh:
			a.logger.Warn("second signal received, forcing immediate shutdown", "signal", sig2.String())
		case <-graceTimer.C:
			a.logger.Warn("graceful shutdown timeout reached, forcing shutdown", "timeout", a.cfg.ShutdownTimeout)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancelShutdown()
	a.shutdown(shutdownCtx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	a.logger.Info("aurora-vcpu-balancer stopped")
	return nil
}

func BuildLogger(cfg config.Config) *slog.Logger {
	return buildLogger(cfg, os.Stdout)
}

func buildLogger(cfg config.Config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	hOpts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(w, hOpts)
	if cfg.LogJSON {
		h = slog.NewJSONHandler(w, hOpts)
	}
	return slog.New(h).With("node_id", cfg.NodeID)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"aurora-vcpu-balancer/internal/agent"
	"aurora-vcpu-balancer/internal/config"
)

// runFunc starts the balancer with the given sampling interval.
type runFunc func(ctx context.Context, interval time.Duration) error

func newRootCmd(run runFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "aurora-vcpu-balancer <interval-seconds>",
		Short: "Balance VCPU pinning across host PCPUs",
		Long: "Samples per-domain CPU time every <interval-seconds>, reports per-core " +
			"utilization and re-pins VCPU 0 of every active domain when the load " +
			"stays unbalanced or a VCPU is not pinned to exactly one PCPU.",
		// The only argument is a number; "-5" must reach parseInterval as a value.
		DisableFlagParsing: true,
		SilenceErrors:      true,
		SilenceUsage:       true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one argument <interval-seconds>, got %d", len(args))
			}
			interval, err := parseInterval(args[0])
			if err != nil {
				return err
			}
			return run(cmd.Context(), interval)
		},
	}
}

func parseInterval(raw string) (time.Duration, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("interval %q is not an integer number of seconds", raw)
	}
	if n <= 0 {
		return 0, fmt.Errorf("interval must be a positive number of seconds, got %d", n)
	}
	if n > math.MaxInt64/int64(time.Second) {
		return 0, fmt.Errorf("interval %d seconds is out of range", n)
	}
	return time.Duration(n) * time.Second, nil
}

func runAgent(ctx context.Context, interval time.Duration) error {
	cfg, err := config.Load(interval)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := agent.BuildLogger(cfg)
	if cfg.EnvFile != "" {
		logger.Debug("env file loaded", "path", cfg.EnvFile)
	}

	a, err := agent.New(cfg, logger)
	if err != nil {
		logger.Error("agent initialization failed", "error", err)
		return err
	}
	if err := a.Run(ctx); err != nil {
		var sigErr *agent.SignalError
		if !errors.As(err, &sigErr) {
			logger.Error("agent runtime failed", "error", err)
		}
		return err
	}
	return nil
}

// execute runs the command and maps its outcome to a process exit status.
func execute(ctx context.Context, args []string, stderr io.Writer, run runFunc) int {
	cmd := newRootCmd(run)
	if args == nil {
		// cobra falls back to os.Args when given nil.
		args = []string{}
	}
	cmd.SetArgs(args)
	cmd.SetErr(stderr)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var sigErr *agent.SignalError
	if errors.As(err, &sigErr) {
		return sigErr.ExitCode()
	}
	fmt.Fprintf(stderr, "ERROR: %v\n", err)
	return 1
}

package balancer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"aurora-vcpu-balancer/internal/model"
)

// Observer receives the report of every completed cycle. Implementations
// must not block the loop for long and handle their own failures.
type Observer interface {
	ObserveCycle(ctx context.Context, r model.CycleReport)
}

type ObserverFunc func(ctx context.Context, r model.CycleReport)

func (f ObserverFunc) ObserveCycle(ctx context.Context, r model.CycleReport) {
	f(ctx, r)
}

type Options struct {
	NodeID    string
	Interval  time.Duration
	Policy    Policy
	Observers []Observer
}

// Engine is the control loop: sample, sleep, sample, compute, evaluate and
// rebalance when needed. It runs one cycle at a time.
type Engine struct {
	session   *Session
	hv        Hypervisor
	state     *HostState
	sampler   *Sampler
	evaluator Evaluator
	interval  time.Duration
	nodeID    string
	observers []Observer
	logger    *slog.Logger

	cycle uint64
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewEngine(session *Session, opts Options, logger *slog.Logger) (*Engine, error) {
	if opts.Interval <= 0 {
		return nil, errors.New("sampling interval must be > 0")
	}
	state, err := NewHostState(session.Cores())
	if err != nil {
		return nil, err
	}
	logger = logger.With("component", "balancer")
	hv := session.Hypervisor()
	return &Engine{
		session:   session,
		hv:        hv,
		state:     state,
		sampler:   NewSampler(hv, state, logger),
		evaluator: NewEvaluator(opts.Policy),
		interval:  opts.Interval,
		nodeID:    opts.NodeID,
		observers: slices.Clone(opts.Observers),
		logger:    logger,
		now:       time.Now,
		sleep:     sleepWithContext,
	}, nil
}

func (e *Engine) State() *HostState {
	return e.state
}

// Run executes cycles until ctx is canceled or a cycle fails. Cancellation
// is observed during the interval sleep and between cycles; it is not an
// error.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("balancing loop started", "interval", e.interval, "cores", e.state.Cores())
	for {
		if ctx.Err() != nil {
			e.logger.Info("balancing loop stopped")
			return nil
		}
		if _, err := e.RunCycle(ctx); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				e.logger.Info("balancing loop stopped")
				return nil
			}
			return err
		}
	}
}

// RunCycle performs one full sampling cycle and returns its report.
func (e *Engine) RunCycle(ctx context.Context) (model.CycleReport, error) {
	pairs, err := e.session.Pairs()
	if err != nil {
		return model.CycleReport{}, err
	}

	for _, p := range pairs {
		if err := e.sampler.Sample(ctx, p, PhaseBefore); err != nil {
			return model.CycleReport{}, fmt.Errorf("sample before: %w", err)
		}
	}

	if err := e.sleep(ctx, e.interval); err != nil {
		return model.CycleReport{}, err
	}

	for _, p := range pairs {
		if err := e.sampler.Sample(ctx, p, PhaseAfter); err != nil {
			return model.CycleReport{}, fmt.Errorf("sample after: %w", err)
		}
	}

	e.state.ResetUsage()
	for _, p := range pairs {
		if err := p.Compute(); err != nil {
			return model.CycleReport{}, err
		}
		if err := e.state.Accumulate(p.Percent); err != nil {
			return model.CycleReport{}, fmt.Errorf("accumulate %s: %w", p.Domain.Name, err)
		}
	}

	decision := e.evaluator.Evaluate(e.state)
	e.cycle++

	var applied []Assignment
	if decision.Rebalance() {
		applied, err = e.rebalance(ctx, pairs, decision)
		if err != nil {
			return model.CycleReport{}, err
		}
	}

	report := e.buildReport(pairs, decision, applied)
	e.logger.Debug("cycle complete",
		"cycle", report.Cycle,
		"verdict", report.Verdict,
		"max_usage_pct", report.MaxUsagePercent,
		"streak", report.ImbalanceStreak,
	)
	for _, o := range e.observers {
		o.ObserveCycle(ctx, report)
	}
	return report, nil
}

func (e *Engine) rebalance(ctx context.Context, pairs []*SamplePair, d Decision) ([]Assignment, error) {
	loads := make([]DomainLoad, 0, len(pairs))
	for _, p := range pairs {
		loads = append(loads, DomainLoad{Domain: p.Domain, Total: p.Total})
	}
	assignments, err := Rebalance(loads, e.state.Cores())
	if err != nil {
		return nil, fmt.Errorf("rebalance: %w", err)
	}
	e.logger.Info("rebalancing vcpu pinning",
		"reason", string(d.Verdict),
		"domains", len(assignments),
		"max_usage_pct", d.Max,
	)
	// Apply runs to completion even after cancellation.
	if err := Apply(context.WithoutCancel(ctx), e.hv, assignments); err != nil {
		return nil, fmt.Errorf("apply rebalance: %w", err)
	}
	return assignments, nil
}

func (e *Engine) buildReport(pairs []*SamplePair, d Decision, applied []Assignment) model.CycleReport {
	usage := e.state.Usage()
	summary := Summarize(usage)
	r := model.CycleReport{
		NodeID:           e.nodeID,
		Cycle:            e.cycle,
		TimestampUnix:    e.now().UTC().Unix(),
		IntervalSeconds:  e.interval.Seconds(),
		Cores:            len(usage),
		Domains:          make([]model.DomainUsage, 0, len(pairs)),
		CoreUsagePercent: usage,
		MaxUsagePercent:  d.Max,
		MeanUsagePercent: summary.Mean,
		StdDevPercent:    summary.StdDev,
		Verdict:          string(d.Verdict),
		FairnessViolated: d.FairnessViolated,
		ImbalanceStreak:  d.Streak,
		Rebalanced:       d.Rebalance(),
	}
	for _, p := range pairs {
		r.Domains = append(r.Domains, model.DomainUsage{
			DomainID:     p.Domain.ID,
			DomainName:   p.Domain.Name,
			PinMask:      p.Pinning.Mask.String(),
			PinnedCPUs:   p.Pinning.Mask.Count(),
			VCPUCount:    p.Pinning.VCPUCount,
			CorePercent:  slices.Clone(p.Percent),
			TotalPercent: p.Total,
		})
	}
	for _, a := range applied {
		r.Assignments = append(r.Assignments, model.CoreAssignment{
			DomainID:   a.Domain.ID,
			DomainName: a.Domain.Name,
			Core:       a.Core,
			Mask:       a.Mask.String(),
		})
	}
	return r
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

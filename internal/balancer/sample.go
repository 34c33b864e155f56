package balancer

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type Phase int

const (
	PhaseBefore Phase = iota
	PhaseAfter
)

func (p Phase) String() string {
	switch p {
	case PhaseBefore:
		return "before"
	case PhaseAfter:
		return "after"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// SamplePair holds one domain's two snapshots for the current cycle together
// with the utilization derived from them. Buffers are sized once, at session
// open, and overwritten every cycle.
type SamplePair struct {
	Domain Domain
	Layout CPUStatsLayout

	Before        time.Time
	After         time.Time
	CPUTimeBefore []uint64
	CPUTimeAfter  []uint64
	Pinning       VcpuPinning

	Percent []float64
	Total   float64
}

func NewSamplePair(d Domain, layout CPUStatsLayout, cores int) *SamplePair {
	return &SamplePair{
		Domain:        d,
		Layout:        layout,
		CPUTimeBefore: make([]uint64, cores),
		CPUTimeAfter:  make([]uint64, cores),
		Percent:       make([]float64, cores),
	}
}

// Elapsed is the monotonic time between the two snapshots.
func (p *SamplePair) Elapsed() time.Duration {
	return p.After.Sub(p.Before)
}

// Sampler takes the before/after snapshots of a domain.
type Sampler struct {
	hv     Hypervisor
	state  *HostState
	logger *slog.Logger
	now    func() time.Time
}

func NewSampler(hv Hypervisor, state *HostState, logger *slog.Logger) *Sampler {
	return &Sampler{hv: hv, state: state, logger: logger, now: time.Now}
}

// Sample records a timestamp and the domain's cpu time counters for phase.
// The after phase also re-reads the VCPU pinning and raises the host override
// flag unless the VCPU is pinned to exactly one PCPU.
func (s *Sampler) Sample(ctx context.Context, p *SamplePair, phase Phase) error {
	switch phase {
	case PhaseBefore:
		p.Before = s.now()
		if err := s.hv.ReadCPUTime(ctx, p.Domain, p.Layout, p.CPUTimeBefore); err != nil {
			return fmt.Errorf("read cpu time of %s: %w", p.Domain.Name, err)
		}
		return nil
	case PhaseAfter:
		p.After = s.now()
		if err := s.hv.ReadCPUTime(ctx, p.Domain, p.Layout, p.CPUTimeAfter); err != nil {
			return fmt.Errorf("read cpu time of %s: %w", p.Domain.Name, err)
		}
		pin, err := s.hv.VcpuPinning(ctx, p.Domain)
		if err != nil {
			return fmt.Errorf("read vcpu pinning of %s: %w", p.Domain.Name, err)
		}
		p.Pinning = pin
		if pin.VCPUCount > 1 {
			s.logger.Warn("domain has more than one vcpu, only vcpu 0 is balanced",
				"domain", p.Domain.Name, "vcpus", pin.VCPUCount)
		}
		if !OnlyOneBitSet(pin.Mask) {
			s.logger.Info("vcpu not pinned to exactly one pcpu, forcing rebalance",
				"domain", p.Domain.Name, "mask", pin.Mask.String())
			s.state.RaiseOverride()
		}
		return nil
	default:
		return fmt.Errorf("unknown sample phase %s", phase)
	}
}

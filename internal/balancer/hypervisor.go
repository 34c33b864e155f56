package balancer

import "context"

// Domain identifies an active guest. ID is stable for the process lifetime.
type Domain struct {
	ID   string
	Name string
}

// CPUStatsLayout is what a probe-mode cpu stats call reports for a domain:
// the number of per-PCPU stat slots and the number of typed params in each slot.
type CPUStatsLayout struct {
	CPUs         int
	ParamsPerCPU int
}

// VcpuPinning is the affinity of VCPU 0 plus how many VCPUs the domain reported.
type VcpuPinning struct {
	VCPUCount int
	Mask      CPUMask
}

// Hypervisor is the control-plane collaborator the engine samples from and
// pins through. Calls carry no per-call timeout; a hung call blocks the cycle.
type Hypervisor interface {
	ListActiveDomains(ctx context.Context) ([]Domain, error)
	CoreCount(ctx context.Context) (int, error)
	ProbeCPUStats(ctx context.Context, d Domain) (CPUStatsLayout, error)
	// ReadCPUTime fills dst[core] with the cumulative cpu time (ns) the
	// domain consumed on that core. len(dst) is the host core count.
	ReadCPUTime(ctx context.Context, d Domain, layout CPUStatsLayout, dst []uint64) error
	VcpuPinning(ctx context.Context, d Domain) (VcpuPinning, error)
	PinVcpu(ctx context.Context, d Domain, core int) error
	Close() error
}

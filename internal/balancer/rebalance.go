package balancer

import (
	"context"
	"fmt"
	"sort"
)

// DomainLoad is a domain's aggregate utilization for the cycle.
type DomainLoad struct {
	Domain Domain
	Total  float64
}

// Assignment pins a domain's VCPU to a single core.
type Assignment struct {
	Domain Domain
	Core   int
	Mask   CPUMask
}

// Rebalance spreads domains across cores round-robin in descending order of
// load: the busiest domain goes to core 0, the next to core 1, and so on.
// Ties keep enumeration order. This is a greedy spread, not a bin packing.
func Rebalance(loads []DomainLoad, cores int) ([]Assignment, error) {
	if err := validateCores(cores); err != nil {
		return nil, err
	}
	sorted := make([]DomainLoad, len(loads))
	copy(sorted, loads)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Total > sorted[j].Total
	})

	out := make([]Assignment, 0, len(sorted))
	for i, l := range sorted {
		core := i % cores
		out = append(out, Assignment{Domain: l.Domain, Core: core, Mask: MaskForCore(core)})
	}
	return out, nil
}

// Apply hands each assignment to the hypervisor in order. The first failure
// aborts; assignments already applied are left in place.
func Apply(ctx context.Context, hv Hypervisor, assignments []Assignment) error {
	for _, a := range assignments {
		if err := hv.PinVcpu(ctx, a.Domain, a.Core); err != nil {
			return fmt.Errorf("pin %s to core %d: %w", a.Domain.Name, a.Core, err)
		}
	}
	return nil
}

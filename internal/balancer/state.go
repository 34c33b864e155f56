package balancer

import (
	"fmt"
	"slices"
)

// HostState is the process-wide balancing state. It is owned by the control
// loop; nothing else mutates it.
type HostState struct {
	usage    []float64
	streak   int
	override bool
}

func NewHostState(cores int) (*HostState, error) {
	if err := validateCores(cores); err != nil {
		return nil, err
	}
	return &HostState{usage: make([]float64, cores)}, nil
}

func validateCores(cores int) error {
	if cores <= 0 {
		return ErrNoCores
	}
	if cores > MaxCores {
		return fmt.Errorf("%w: %d > %d", ErrTooManyCores, cores, MaxCores)
	}
	return nil
}

func (h *HostState) Cores() int {
	return len(h.usage)
}

// ResetUsage zeroes the host usage at the start of a cycle.
func (h *HostState) ResetUsage() {
	clear(h.usage)
}

// Accumulate adds one domain's per-core percentages into the host usage.
func (h *HostState) Accumulate(percent []float64) error {
	if len(percent) != len(h.usage) {
		return fmt.Errorf("%w: got %d want %d", ErrCounterLength, len(percent), len(h.usage))
	}
	for c, v := range percent {
		h.usage[c] += v
	}
	return nil
}

// Usage returns a copy of the host-wide per-core totals.
func (h *HostState) Usage() []float64 {
	return slices.Clone(h.usage)
}

func (h *HostState) RaiseOverride() {
	h.override = true
}

func (h *HostState) Override() bool {
	return h.override
}

// Streak is the number of consecutive imbalanced cycles seen so far.
func (h *HostState) Streak() int {
	return h.streak
}

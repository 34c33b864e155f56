package balancer

import (
	"fmt"
	"time"
)

// ComputePercent converts a pair of cumulative cpu time vectors into a
// per-core utilization percentage, written into out, and returns the sum.
//
//	percent[c] = (after[c] - before[c]) / elapsed_ns * 100
func ComputePercent(before, after []uint64, elapsed time.Duration, out []float64) (float64, error) {
	if elapsed <= 0 {
		return 0, ErrZeroElapsed
	}
	if len(before) != len(after) || len(out) != len(after) {
		return 0, fmt.Errorf("%w: before=%d after=%d out=%d", ErrCounterLength, len(before), len(after), len(out))
	}
	ns := float64(elapsed.Nanoseconds())
	var total float64
	for c := range after {
		if after[c] < before[c] {
			return 0, fmt.Errorf("%w: core %d before=%d after=%d", ErrCounterRegression, c, before[c], after[c])
		}
		delta := float64(after[c] - before[c])
		out[c] = (delta / ns) * 100
		total += out[c]
	}
	return total, nil
}

// Compute fills p.Percent and p.Total from the pair's snapshots.
func (p *SamplePair) Compute() error {
	total, err := ComputePercent(p.CPUTimeBefore, p.CPUTimeAfter, p.Elapsed(), p.Percent)
	if err != nil {
		return fmt.Errorf("compute utilization of %s: %w", p.Domain.Name, err)
	}
	p.Total = total
	return nil
}

package balancer

import (
	"github.com/montanaflynn/stats"
)

type Verdict string

const (
	VerdictBalanced      Verdict = "balanced"
	VerdictImbalanced    Verdict = "imbalanced"
	VerdictOverride      Verdict = "override_triggered"
	VerdictNotApplicable Verdict = "not_applicable"
)

const (
	DefaultStrikes    = 3
	DefaultNoiseFloor = 2.0
)

// Policy tunes the balance evaluator.
type Policy struct {
	// Strikes is how many consecutive imbalanced cycles trigger a rebalance.
	Strikes int
	// NoiseFloor is the max core usage (percent) below which imbalance is ignored.
	NoiseFloor float64
}

func DefaultPolicy() Policy {
	return Policy{Strikes: DefaultStrikes, NoiseFloor: DefaultNoiseFloor}
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Verdict Verdict
	Max     float64
	// Streak is the hysteresis counter as observed this cycle, before any reset.
	Streak int
	// FairnessViolated is set when some core was below half the busiest core,
	// including cycles where the imbalance is still being tolerated.
	FairnessViolated bool
}

func (d Decision) Rebalance() bool {
	return d.Verdict == VerdictImbalanced || d.Verdict == VerdictOverride
}

type Evaluator struct {
	policy Policy
}

func NewEvaluator(p Policy) Evaluator {
	if p.Strikes <= 0 {
		p.Strikes = DefaultStrikes
	}
	if p.NoiseFloor < 0 {
		p.NoiseFloor = DefaultNoiseFloor
	}
	return Evaluator{policy: p}
}

// Evaluate decides whether the host is balanced. Precedence: a pending
// override always wins, then the max/2 fairness bound, then the hysteresis
// counter above the noise floor.
func (e Evaluator) Evaluate(h *HostState) Decision {
	peak := MaxUsage(h.usage)

	if h.override {
		h.override = false
		h.streak = 0
		return Decision{Verdict: VerdictOverride, Max: peak}
	}

	if WithinHalfOfMax(h.usage, peak) {
		h.streak = 0
		return Decision{Verdict: VerdictBalanced, Max: peak}
	}

	if peak > e.policy.NoiseFloor {
		h.streak++
		d := Decision{Verdict: VerdictBalanced, Max: peak, Streak: h.streak, FairnessViolated: true}
		if h.streak >= e.policy.Strikes {
			h.streak = 0
			d.Verdict = VerdictImbalanced
		}
		return d
	}

	h.streak = 0
	return Decision{Verdict: VerdictNotApplicable, Max: peak, FairnessViolated: true}
}

// MaxUsage is the busiest core's usage, floored at zero.
func MaxUsage(usage []float64) float64 {
	m, err := stats.Max(usage)
	if err != nil || m < 0 {
		return 0
	}
	return m
}

// WithinHalfOfMax reports whether no core is less than half as busy as max.
func WithinHalfOfMax(usage []float64, peak float64) bool {
	for _, v := range usage {
		if peak/2.0 > v {
			return false
		}
	}
	return true
}

// UsageSummary describes the spread of host-wide per-core usage.
type UsageSummary struct {
	Max    float64
	Mean   float64
	StdDev float64
}

func Summarize(usage []float64) UsageSummary {
	s := UsageSummary{Max: MaxUsage(usage)}
	if mean, err := stats.Mean(usage); err == nil {
		s.Mean = mean
	}
	if sd, err := stats.StandardDeviation(usage); err == nil {
		s.StdDev = sd
	}
	return s
}

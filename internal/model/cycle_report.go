package model

// DomainUsage is one domain's row of a balancing cycle.
type DomainUsage struct {
	DomainID     string    `json:"domain_id"`
	DomainName   string    `json:"domain_name"`
	PinMask      string    `json:"pin_mask"`
	PinnedCPUs   int       `json:"pinned_cpus"`
	VCPUCount    int       `json:"vcpu_count"`
	CorePercent  []float64 `json:"core_percent"`
	TotalPercent float64   `json:"total_percent"`
}

type CoreAssignment struct {
	DomainID   string `json:"domain_id"`
	DomainName string `json:"domain_name"`
	Core       int    `json:"core"`
	Mask       string `json:"mask"`
}

// CycleReport is everything a balancing cycle observed and decided.
type CycleReport struct {
	NodeID           string           `json:"node_id"`
	Cycle            uint64           `json:"cycle"`
	TimestampUnix    int64            `json:"timestamp_unix"`
	IntervalSeconds  float64          `json:"interval_seconds"`
	Cores            int              `json:"cores"`
	Domains          []DomainUsage    `json:"domains"`
	CoreUsagePercent []float64        `json:"core_usage_percent"`
	MaxUsagePercent  float64          `json:"max_usage_percent"`
	MeanUsagePercent float64          `json:"mean_usage_percent"`
	StdDevPercent    float64          `json:"stddev_percent"`
	Verdict          string           `json:"verdict"`
	FairnessViolated bool             `json:"fairness_violated"`
	ImbalanceStreak  int              `json:"imbalance_streak"`
	Rebalanced       bool             `json:"rebalanced"`
	Assignments      []CoreAssignment `json:"assignments,omitempty"`
}

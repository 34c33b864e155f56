package metrics

import (
	"context"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"aurora-vcpu-balancer/internal/model"
)

const namespace = "aurora_vcpu"

// Collector mirrors the latest cycle report into Prometheus series.
type Collector struct {
	mu sync.Mutex

	coreUsage     *prometheus.GaugeVec
	domainUsage   *prometheus.GaugeVec
	domainTotal   *prometheus.GaugeVec
	domainPinned  *prometheus.GaugeVec
	maxUsage      prometheus.Gauge
	meanUsage     prometheus.Gauge
	stddevUsage   prometheus.Gauge
	streak        prometheus.Gauge
	cycles        *prometheus.CounterVec
	rebalances    *prometheus.CounterVec
	pins          prometheus.Counter
	lastCycleUnix prometheus.Gauge
}

func NewCollector(reg prometheus.Registerer, nodeID string) (*Collector, error) {
	constLabels := prometheus.Labels{"node_id": nodeID}
	c := &Collector{
		coreUsage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "core_usage_percent",
			Help:        "Host-wide utilization of each PCPU over the last cycle.",
			ConstLabels: constLabels,
		}, []string{"core"}),
		domainUsage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "domain_core_usage_percent",
			Help:        "Utilization a domain put on each PCPU over the last cycle.",
			ConstLabels: constLabels,
		}, []string{"domain", "domain_id", "core"}),
		domainTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "domain_usage_percent",
			Help:        "Sum of a domain's per-core utilization over the last cycle.",
			ConstLabels: constLabels,
		}, []string{"domain", "domain_id"}),
		domainPinned: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "domain_pinned_cpus",
			Help:        "Number of PCPUs VCPU 0 of the domain may run on.",
			ConstLabels: constLabels,
		}, []string{"domain", "domain_id"}),
		maxUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "max_core_usage_percent",
			Help: "Busiest PCPU utilization over the last cycle.", ConstLabels: constLabels,
		}),
		meanUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "mean_core_usage_percent",
			Help: "Mean PCPU utilization over the last cycle.", ConstLabels: constLabels,
		}),
		stddevUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "core_usage_stddev_percent",
			Help: "Standard deviation of PCPU utilization over the last cycle.", ConstLabels: constLabels,
		}),
		streak: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "imbalance_streak",
			Help: "Consecutive imbalanced cycles observed.", ConstLabels: constLabels,
		}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cycles_total",
			Help: "Balancing cycles by verdict.", ConstLabels: constLabels,
		}, []string{"verdict"}),
		rebalances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rebalances_total",
			Help: "Rebalances applied, by trigger.", ConstLabels: constLabels,
		}, []string{"reason"}),
		pins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "vcpu_pins_total",
			Help: "VCPU pin operations applied.", ConstLabels: constLabels,
		}),
		lastCycleUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_cycle_timestamp_seconds",
			Help: "Unix time of the last completed cycle.", ConstLabels: constLabels,
		}),
	}

	for _, col := range []prometheus.Collector{
		c.coreUsage, c.domainUsage, c.domainTotal, c.domainPinned,
		c.maxUsage, c.meanUsage, c.stddevUsage, c.streak,
		c.cycles, c.rebalances, c.pins, c.lastCycleUnix,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) ObserveCycle(_ context.Context, r model.CycleReport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.coreUsage.Reset()
	for core, v := range r.CoreUsagePercent {
		c.coreUsage.WithLabelValues(strconv.Itoa(core)).Set(v)
	}

	// Domains come and go; only the ones seen this cycle are exported.
	c.domainUsage.Reset()
	c.domainTotal.Reset()
	c.domainPinned.Reset()
	for _, d := range r.Domains {
		for core, v := range d.CorePercent {
			c.domainUsage.WithLabelValues(d.DomainName, d.DomainID, strconv.Itoa(core)).Set(v)
		}
		c.domainTotal.WithLabelValues(d.DomainName, d.DomainID).Set(d.TotalPercent)
		c.domainPinned.WithLabelValues(d.DomainName, d.DomainID).Set(float64(d.PinnedCPUs))
	}

	c.maxUsage.Set(r.MaxUsagePercent)
	c.meanUsage.Set(r.MeanUsagePercent)
	c.stddevUsage.Set(r.StdDevPercent)
	c.streak.Set(float64(r.ImbalanceStreak))
	c.cycles.WithLabelValues(r.Verdict).Inc()
	if r.Rebalanced {
		c.rebalances.WithLabelValues(r.Verdict).Inc()
		c.pins.Add(float64(len(r.Assignments)))
	}
	c.lastCycleUnix.Set(float64(r.TimestampUnix))
}

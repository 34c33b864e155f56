package metrics

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aurora-vcpu-balancer/internal/model"
)

func report(cycle uint64, verdict string, rebalanced bool) model.CycleReport {
	r := model.CycleReport{
		NodeID:           "n1",
		Cycle:            cycle,
		TimestampUnix:    1_700_000_000 + int64(cycle),
		Cores:            2,
		CoreUsagePercent: []float64{60, 0},
		MaxUsagePercent:  60,
		MeanUsagePercent: 30,
		StdDevPercent:    30,
		Verdict:          verdict,
		ImbalanceStreak:  int(cycle),
		Rebalanced:       rebalanced,
		Domains: []model.DomainUsage{
			{DomainID: "uuid-a", DomainName: "a", PinnedCPUs: 1, CorePercent: []float64{50, 0}, TotalPercent: 50},
			{DomainID: "uuid-b", DomainName: "b", PinnedCPUs: 1, CorePercent: []float64{10, 0}, TotalPercent: 10},
		},
	}
	if rebalanced {
		r.Assignments = []model.CoreAssignment{
			{DomainID: "uuid-a", DomainName: "a", Core: 0, Mask: "0x1"},
			{DomainID: "uuid-b", DomainName: "b", Core: 1, Mask: "0x2"},
		}
	}
	return r
}

func TestCollector_ObserveCycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg, "n1")
	require.NoError(t, err)

	c.ObserveCycle(context.Background(), report(1, "balanced", false))
	c.ObserveCycle(context.Background(), report(2, "imbalanced", true))

	assert.Equal(t, 60.0, testutil.ToFloat64(c.coreUsage.WithLabelValues("0")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.coreUsage.WithLabelValues("1")))
	assert.Equal(t, 50.0, testutil.ToFloat64(c.domainTotal.WithLabelValues("a", "uuid-a")))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.domainUsage.WithLabelValues("b", "uuid-b", "0")))
	assert.Equal(t, 60.0, testutil.ToFloat64(c.maxUsage))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.streak))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cycles.WithLabelValues("balanced")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cycles.WithLabelValues("imbalanced")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rebalances.WithLabelValues("imbalanced")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.pins))
}

func TestCollector_DropsVanishedDomains(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg, "n1")
	require.NoError(t, err)

	c.ObserveCycle(context.Background(), report(1, "balanced", false))
	assert.Equal(t, 2, testutil.CollectAndCount(c.domainTotal))

	r := report(2, "balanced", false)
	r.Domains = r.Domains[:1]
	c.ObserveCycle(context.Background(), r)
	assert.Equal(t, 1, testutil.CollectAndCount(c.domainTotal))
}

func TestCollector_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewCollector(reg, "n1")
	require.NoError(t, err)
	_, err = NewCollector(reg, "n1")
	assert.Error(t, err)
}

func TestServe(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg, "n1")
	require.NoError(t, err)
	c.ObserveCycle(context.Background(), report(1, "balanced", false))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, ln, reg, slog.New(slog.NewTextHandler(io.Discard, nil))) }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	assert.True(t, strings.Contains(body, "aurora_vcpu_max_core_usage_percent"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(6 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}

package console

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"aurora-vcpu-balancer/internal/model"
)

func TestPrinter_Table(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, slog.New(slog.NewTextHandler(io.Discard, nil)))

	p.ObserveCycle(context.Background(), model.CycleReport{
		Cycle:           3,
		Cores:           2,
		IntervalSeconds: 1,
		Domains: []model.DomainUsage{
			{DomainName: "web-1", PinMask: "0x1", CorePercent: []float64{50, 0}, TotalPercent: 50},
			{DomainName: "db-1", PinMask: "0x1", CorePercent: []float64{10, 0}, TotalPercent: 10},
		},
		CoreUsagePercent: []float64{60, 0},
		MaxUsagePercent:  60,
		Verdict:          "imbalanced",
		Rebalanced:       true,
		Assignments: []model.CoreAssignment{
			{DomainName: "web-1", Core: 0},
			{DomainName: "db-1", Core: 1},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "cycle 3")
	assert.Contains(t, out, "CPU0")
	assert.Contains(t, out, "CPU1")
	assert.Contains(t, out, "web-1")
	assert.Contains(t, out, "50.00%")
	assert.Contains(t, out, "60.00%")
	assert.Contains(t, out, "balanced: NO")
	assert.Contains(t, out, "rebalancing (imbalanced): web-1->cpu0 db-1->cpu1")
}

func TestBalancedLabel(t *testing.T) {
	assert.Equal(t, "YES", balancedLabel(model.CycleReport{Verdict: "balanced"}))
	assert.Equal(t, "NO", balancedLabel(model.CycleReport{Verdict: "balanced", FairnessViolated: true}))
	assert.Equal(t, "NO", balancedLabel(model.CycleReport{Verdict: "imbalanced"}))
	assert.Equal(t, "NO", balancedLabel(model.CycleReport{Verdict: "override_triggered"}))
	assert.Equal(t, "N/A", balancedLabel(model.CycleReport{Verdict: "not_applicable"}))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestPrinter_WriteFailureIsLogged(t *testing.T) {
	var logs bytes.Buffer
	p := NewPrinter(failingWriter{}, slog.New(slog.NewTextHandler(&logs, nil)))
	p.ObserveCycle(context.Background(), model.CycleReport{Verdict: "balanced"})
	assert.Contains(t, logs.String(), "console write failed")
}

func TestPrinter_ToleratedImbalancePrintsNo(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, slog.New(slog.NewTextHandler(io.Discard, nil)))

	p.ObserveCycle(context.Background(), model.CycleReport{
		Cycle:            1,
		Cores:            3,
		CoreUsagePercent: []float64{10, 1, 10},
		MaxUsagePercent:  10,
		Verdict:          "balanced",
		FairnessViolated: true,
		ImbalanceStreak:  1,
	})

	out := buf.String()
	assert.Contains(t, out, "balanced: NO")
	assert.NotContains(t, out, "balanced: YES")
	assert.NotContains(t, out, "rebalancing")
}

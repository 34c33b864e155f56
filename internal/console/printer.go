package console

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"text/tabwriter"

	"aurora-vcpu-balancer/internal/model"
)

// Printer writes a per-cycle utilization table: one row per domain with
// its per-core percentages, pin mask and total, then the host totals.
type Printer struct {
	mu     sync.Mutex
	out    io.Writer
	logger *slog.Logger
}

func NewPrinter(out io.Writer, logger *slog.Logger) *Printer {
	return &Printer{out: out, logger: logger}
}

func (p *Printer) ObserveCycle(_ context.Context, r model.CycleReport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.write(r); err != nil {
		p.logger.Warn("console write failed", "error", err)
	}
}

func (p *Printer) write(r model.CycleReport) error {
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', tabwriter.AlignRight)

	fmt.Fprintf(&b, "cycle %d  cores %d  interval %gs\n", r.Cycle, r.Cores, r.IntervalSeconds)
	header := []string{"DOMAIN"}
	for c := 0; c < r.Cores; c++ {
		header = append(header, fmt.Sprintf("CPU%d", c))
	}
	header = append(header, "MASK", "TOTAL")
	fmt.Fprintln(tw, strings.Join(header, "\t")+"\t")

	for _, d := range r.Domains {
		row := []string{d.DomainName}
		row = append(row, percents(d.CorePercent)...)
		row = append(row, d.PinMask, pct(d.TotalPercent))
		fmt.Fprintln(tw, strings.Join(row, "\t")+"\t")
	}
	row := []string{"TOTAL"}
	row = append(row, percents(r.CoreUsagePercent)...)
	row = append(row, "", "")
	fmt.Fprintln(tw, strings.Join(row, "\t")+"\t")
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(&b, "max %s  mean %s  stddev %s  balanced: %s\n",
		pct(r.MaxUsagePercent), pct(r.MeanUsagePercent), pct(r.StdDevPercent), balancedLabel(r))
	if r.Rebalanced {
		fmt.Fprintf(&b, "rebalancing (%s):", strings.ReplaceAll(r.Verdict, "_", " "))
		for _, a := range r.Assignments {
			fmt.Fprintf(&b, " %s->cpu%d", a.DomainName, a.Core)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	_, err := io.WriteString(p.out, b.String())
	return err
}

// balancedLabel answers "is the host balanced": YES, NO, or N/A when load
// is under the noise floor. Imbalance still within its strike budget is NO.
func balancedLabel(r model.CycleReport) string {
	switch r.Verdict {
	case "balanced":
		if r.FairnessViolated {
			return "NO"
		}
		return "YES"
	case "not_applicable":
		return "N/A"
	default:
		return "NO"
	}
}

func percents(vs []float64) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = pct(v)
	}
	return out
}

func pct(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}

package agent

import (
	"context"
	"sync/atomic"
	"time"

	"aurora-vcpu-balancer/internal/model"
)

type HealthStatus struct {
	libvirtConnected atomic.Bool
	streamConnected  atomic.Bool
	lastCycleAt      atomic.Int64
	lastCycle        atomic.Uint64
	lastVerdict      atomic.Value
	rebalances       atomic.Uint64
}

func NewHealthStatus() *HealthStatus {
	h := &HealthStatus{}
	h.lastVerdict.Store("")
	return h
}

func (h *HealthStatus) SetLibvirtConnected(ok bool) {
	h.libvirtConnected.Store(ok)
}

func (h *HealthStatus) SetStreamConnected(ok bool) {
	h.streamConnected.Store(ok)
}

func (h *HealthStatus) LibvirtConnected() bool {
	return h.libvirtConnected.Load()
}

// ObserveCycle records the outcome of a completed balancing cycle.
func (h *HealthStatus) ObserveCycle(_ context.Context, r model.CycleReport) {
	h.lastCycleAt.Store(time.Unix(r.TimestampUnix, 0).UnixNano())
	h.lastCycle.Store(r.Cycle)
	h.lastVerdict.Store(r.Verdict)
	if r.Rebalanced {
		h.rebalances.Add(1)
	}
}

// Healthy is false when libvirt is unreachable or no cycle has completed
// within staleAfter of now. Before the first cycle only the connection
// counts.
func (h *HealthStatus) Healthy(now time.Time, staleAfter time.Duration) bool {
	if !h.libvirtConnected.Load() {
		return false
	}
	last := h.lastCycleAt.Load()
	if last == 0 {
		return true
	}
	return now.Sub(time.Unix(0, last)) <= staleAfter
}

func (h *HealthStatus) Snapshot() map[string]any {
	out := map[string]any{
		"libvirt_connected": h.libvirtConnected.Load(),
		"stream_connected":  h.streamConnected.Load(),
		"cycles":            h.lastCycle.Load(),
		"rebalances":        h.rebalances.Load(),
	}
	if v := h.lastCycleAt.Load(); v > 0 {
		out["last_cycle_at"] = time.Unix(0, v).UTC()
		out["last_verdict"] = h.lastVerdict.Load()
	}
	return out
}

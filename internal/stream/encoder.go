package stream

import (
	"context"

	"aurora-vcpu-balancer/internal/model"
)

// Sink delivers cycle reports to a backend.
type Sink interface {
	SendCycleReport(ctx context.Context, r model.CycleReport) error
	Close(ctx context.Context) error
}

type CycleReportFrame struct {
	NodeID        string            `json:"node_id"`
	AgentVersion  string            `json:"agent_version"`
	Cycle         uint64            `json:"cycle"`
	TimestampUnix int64             `json:"timestamp_unix"`
	Report        model.CycleReport `json:"report"`
}

func NewCycleReportFrame(r model.CycleReport, agentVersion string) CycleReportFrame {
	return CycleReportFrame{
		NodeID:        r.NodeID,
		AgentVersion:  agentVersion,
		Cycle:         r.Cycle,
		TimestampUnix: r.TimestampUnix,
		Report:        r,
	}
}

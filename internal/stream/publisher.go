package stream

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"aurora-vcpu-balancer/internal/model"
)

// Publisher decouples the balancing loop from a slow or unreachable sink.
// ObserveCycle never blocks: when the buffer is full the report is dropped.
type Publisher struct {
	sink   Sink
	logger *slog.Logger
	queue  chan model.CycleReport

	sendTimeout time.Duration
	onResult    func(err error)

	dropped atomic.Uint64
	sent    atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
}

func NewPublisher(sink Sink, buffer int, logger *slog.Logger) *Publisher {
	if buffer <= 0 {
		buffer = 1
	}
	return &Publisher{
		sink:        sink,
		logger:      logger.With("component", "publisher"),
		queue:       make(chan model.CycleReport, buffer),
		sendTimeout: 10 * time.Second,
		done:        make(chan struct{}),
	}
}

// OnResult registers a callback invoked after every send attempt. It must be
// set before Run.
func (p *Publisher) OnResult(fn func(err error)) {
	p.onResult = fn
}

func (p *Publisher) ObserveCycle(_ context.Context, r model.CycleReport) {
	select {
	case <-p.done:
		return
	default:
	}
	select {
	case p.queue <- r:
	default:
		n := p.dropped.Add(1)
		p.logger.Warn("report buffer full, dropping cycle report", "cycle", r.Cycle, "dropped_total", n)
	}
}

// Run drains the buffer into the sink until ctx is canceled. Send failures
// are logged and never stop the pump.
func (p *Publisher) Run(ctx context.Context) error {
	defer p.closeOnce.Do(func() { close(p.done) })
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-p.queue:
			sendCtx, cancel := context.WithTimeout(ctx, p.sendTimeout)
			err := p.sink.SendCycleReport(sendCtx, r)
			cancel()
			if err != nil {
				p.logger.Warn("cycle report send failed", "cycle", r.Cycle, "error", err)
			} else {
				p.sent.Add(1)
			}
			if p.onResult != nil {
				p.onResult(err)
			}
		}
	}
}

func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

func (p *Publisher) Sent() uint64 {
	return p.sent.Load()
}

func (p *Publisher) Close(ctx context.Context) error {
	p.closeOnce.Do(func() { close(p.done) })
	return p.sink.Close(ctx)
}

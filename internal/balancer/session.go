package balancer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Session owns the hypervisor handle and every active domain's sample
// buffers. Close releases all of it exactly once.
type Session struct {
	hv     Hypervisor
	logger *slog.Logger
	cores  int

	mu     sync.Mutex
	pairs  []*SamplePair
	closed bool

	closeOnce sync.Once
	closeErr  error
}

// OpenSession reads the host topology, enumerates the active domains and
// probes each one's cpu stats layout. It takes ownership of hv: on failure hv
// is closed before returning.
func OpenSession(ctx context.Context, hv Hypervisor, logger *slog.Logger) (*Session, error) {
	s := &Session{hv: hv, logger: logger}
	if err := s.open(ctx); err != nil {
		if closeErr := s.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close hypervisor: %w", closeErr))
		}
		return nil, err
	}
	return s, nil
}

func (s *Session) open(ctx context.Context) error {
	cores, err := s.hv.CoreCount(ctx)
	if err != nil {
		return fmt.Errorf("read host topology: %w", err)
	}
	if err := validateCores(cores); err != nil {
		return err
	}
	s.cores = cores

	domains, err := s.hv.ListActiveDomains(ctx)
	if err != nil {
		return fmt.Errorf("list active domains: %w", err)
	}

	pairs := make([]*SamplePair, 0, len(domains))
	for _, d := range domains {
		layout, err := s.hv.ProbeCPUStats(ctx, d)
		if err != nil {
			return fmt.Errorf("probe cpu stats of %s: %w", d.Name, err)
		}
		if layout.CPUs < cores {
			return fmt.Errorf("probe cpu stats of %s: %d cpu slots for %d cores", d.Name, layout.CPUs, cores)
		}
		if layout.ParamsPerCPU <= 0 {
			return fmt.Errorf("probe cpu stats of %s: no stats per cpu", d.Name)
		}
		pairs = append(pairs, NewSamplePair(d, layout, cores))
	}

	s.mu.Lock()
	s.pairs = pairs
	s.mu.Unlock()
	s.logger.Info("host session opened", "cores", cores, "domains", len(pairs))
	return nil
}

func (s *Session) Cores() int {
	return s.cores
}

func (s *Session) Hypervisor() Hypervisor {
	return s.hv
}

// Pairs returns the live sample pairs in enumeration order.
func (s *Session) Pairs() ([]*SamplePair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	return s.pairs, nil
}

// Close drops every sample buffer and closes the hypervisor connection.
// Safe to call from any exit path; only the first call does work.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.pairs = nil
		s.closed = true
		s.mu.Unlock()
		s.closeErr = s.hv.Close()
	})
	return s.closeErr
}

package balancer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

type pinCall struct {
	domain string
	core   int
}

type fakeHypervisor struct {
	mu sync.Mutex

	cores   int
	domains []Domain
	layouts map[string]CPUStatsLayout
	step    map[string][]uint64
	cum     map[string][]uint64
	pinning map[string]VcpuPinning

	pins []pinCall

	failCores bool
	failList  bool
	failProbe bool
	failRead  bool
	failPinOn map[string]bool
	closed    int
}

func newFakeHypervisor(cores int) *fakeHypervisor {
	return &fakeHypervisor{
		cores:     cores,
		layouts:   map[string]CPUStatsLayout{},
		step:      map[string][]uint64{},
		cum:       map[string][]uint64{},
		pinning:   map[string]VcpuPinning{},
		failPinOn: map[string]bool{},
	}
}

// addDomain registers a domain that consumes step[core] ns of cpu time on
// every counter read and whose VCPU 0 currently has mask.
func (f *fakeHypervisor) addDomain(name string, mask CPUMask, step ...uint64) Domain {
	d := Domain{ID: "uuid-" + name, Name: name}
	f.domains = append(f.domains, d)
	f.layouts[d.ID] = CPUStatsLayout{CPUs: f.cores, ParamsPerCPU: 2}
	f.step[d.ID] = step
	f.cum[d.ID] = make([]uint64, f.cores)
	f.pinning[d.ID] = VcpuPinning{VCPUCount: 1, Mask: mask}
	return d
}

func (f *fakeHypervisor) ListActiveDomains(context.Context) ([]Domain, error) {
	if f.failList {
		return nil, errors.New("list failed")
	}
	return append([]Domain(nil), f.domains...), nil
}

func (f *fakeHypervisor) CoreCount(context.Context) (int, error) {
	if f.failCores {
		return 0, errors.New("node info failed")
	}
	return f.cores, nil
}

func (f *fakeHypervisor) ProbeCPUStats(_ context.Context, d Domain) (CPUStatsLayout, error) {
	if f.failProbe {
		return CPUStatsLayout{}, errors.New("probe failed")
	}
	return f.layouts[d.ID], nil
}

func (f *fakeHypervisor) ReadCPUTime(_ context.Context, d Domain, _ CPUStatsLayout, dst []uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRead {
		return errors.New("read failed")
	}
	cum := f.cum[d.ID]
	if len(dst) != len(cum) {
		return fmt.Errorf("dst has %d slots, want %d", len(dst), len(cum))
	}
	for c := range cum {
		if c < len(f.step[d.ID]) {
			cum[c] += f.step[d.ID][c]
		}
	}
	copy(dst, cum)
	return nil
}

func (f *fakeHypervisor) VcpuPinning(_ context.Context, d Domain) (VcpuPinning, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pinning[d.ID], nil
}

func (f *fakeHypervisor) PinVcpu(_ context.Context, d Domain, core int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPinOn[d.Name] {
		return errors.New("pin failed")
	}
	f.pins = append(f.pins, pinCall{domain: d.Name, core: core})
	p := f.pinning[d.ID]
	p.Mask = MaskForCore(core)
	f.pinning[d.ID] = p
	return nil
}

func (f *fakeHypervisor) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeHypervisor) pinCalls() []pinCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pinCall(nil), f.pins...)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

package libvirt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	golibvirt "github.com/digitalocean/go-libvirt"

	"aurora-vcpu-balancer/internal/balancer"
)

// Hypervisor implements balancer.Hypervisor over a libvirt RPC connection.
// Calls carry no per-call timeout: go-libvirt blocks until the daemon
// replies or the connection is closed.
type Hypervisor struct {
	conn   *ConnManager
	client func(ctx context.Context) (rpc, error)
	logger *slog.Logger

	mu      sync.Mutex
	domains map[string]golibvirt.Domain
	cores   int
}

var _ balancer.Hypervisor = (*Hypervisor)(nil)

func NewHypervisor(conn *ConnManager, logger *slog.Logger) *Hypervisor {
	return &Hypervisor{
		conn: conn,
		client: func(ctx context.Context) (rpc, error) {
			c, err := conn.Client(ctx)
			if err != nil {
				return nil, err
			}
			return clientRPC{c: c}, nil
		},
		logger:  logger.With("component", "libvirt"),
		domains: map[string]golibvirt.Domain{},
	}
}

func (h *Hypervisor) ListActiveDomains(ctx context.Context) ([]balancer.Domain, error) {
	client, err := h.client(ctx)
	if err != nil {
		return nil, err
	}
	doms, err := client.listActiveDomains()
	if err != nil {
		return nil, fmt.Errorf("ConnectListAllDomains: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]balancer.Domain, 0, len(doms))
	for _, d := range doms {
		id := uuidToString(d.UUID)
		h.domains[id] = d
		out = append(out, balancer.Domain{ID: id, Name: d.Name})
	}
	h.logger.Debug("active domains listed", "count", len(out))
	return out, nil
}

func (h *Hypervisor) CoreCount(ctx context.Context) (int, error) {
	client, err := h.client(ctx)
	if err != nil {
		return 0, err
	}
	cpus, err := client.nodeCPUs()
	if err != nil {
		return 0, fmt.Errorf("NodeGetInfo: %w", err)
	}
	h.mu.Lock()
	h.cores = int(cpus)
	h.mu.Unlock()
	return int(cpus), nil
}

// ProbeCPUStats asks libvirt how many per-CPU slots the domain reports and
// how many typed parameters each slot carries.
func (h *Hypervisor) ProbeCPUStats(ctx context.Context, d balancer.Domain) (balancer.CPUStatsLayout, error) {
	client, dom, err := h.lookup(ctx, d)
	if err != nil {
		return balancer.CPUStatsLayout{}, err
	}
	_, ncpus, err := client.cpuStats(dom, 0, 0, 0)
	if err != nil {
		return balancer.CPUStatsLayout{}, fmt.Errorf("DomainGetCPUStats cpu count: %w", err)
	}
	_, nparams, err := client.cpuStats(dom, 0, 0, 1)
	if err != nil {
		return balancer.CPUStatsLayout{}, fmt.Errorf("DomainGetCPUStats param count: %w", err)
	}
	return balancer.CPUStatsLayout{CPUs: int(ncpus), ParamsPerCPU: int(nparams)}, nil
}

func (h *Hypervisor) ReadCPUTime(ctx context.Context, d balancer.Domain, layout balancer.CPUStatsLayout, dst []uint64) error {
	client, dom, err := h.lookup(ctx, d)
	if err != nil {
		return err
	}
	if len(dst) > layout.CPUs {
		return fmt.Errorf("read %d cpus from a %d cpu layout", len(dst), layout.CPUs)
	}
	params, _, err := client.cpuStats(dom, uint32(layout.ParamsPerCPU), 0, uint32(len(dst)))
	if err != nil {
		return fmt.Errorf("DomainGetCPUStats: %w", err)
	}
	return cpuTimesFromParams(params, dst)
}

// VcpuPinning reports the domain's VCPU count and the affinity of VCPU 0.
func (h *Hypervisor) VcpuPinning(ctx context.Context, d balancer.Domain) (balancer.VcpuPinning, error) {
	client, dom, err := h.lookup(ctx, d)
	if err != nil {
		return balancer.VcpuPinning{}, err
	}
	cores := h.coreCount()
	maplen := cpuMapLen(cores)
	info, cpumaps, err := client.vcpus(dom, int32(cores), int32(maplen))
	if err != nil {
		return balancer.VcpuPinning{}, fmt.Errorf("DomainGetVcpus: %w", err)
	}
	if len(info) == 0 || len(cpumaps) < maplen {
		return balancer.VcpuPinning{}, fmt.Errorf("DomainGetVcpus: no cpumap for vcpu 0")
	}
	return balancer.VcpuPinning{
		VCPUCount: len(info),
		Mask:      maskFromCPUMap(cpumaps[:maplen], cores),
	}, nil
}

func (h *Hypervisor) PinVcpu(ctx context.Context, d balancer.Domain, core int) error {
	client, dom, err := h.lookup(ctx, d)
	if err != nil {
		return err
	}
	cores := h.coreCount()
	if core < 0 || core >= cores {
		return fmt.Errorf("core %d outside 0..%d", core, cores-1)
	}
	cpumap := cpuMapFromMask(balancer.MaskForCore(core), cpuMapLen(cores))
	if err := client.pinVcpu(dom, 0, cpumap); err != nil {
		return fmt.Errorf("DomainPinVcpuFlags: %w", err)
	}
	h.logger.Debug("vcpu pinned", "domain", d.Name, "core", core)
	return nil
}

func (h *Hypervisor) Close() error {
	h.mu.Lock()
	clear(h.domains)
	h.mu.Unlock()
	return h.conn.Close()
}

func (h *Hypervisor) lookup(ctx context.Context, d balancer.Domain) (rpc, golibvirt.Domain, error) {
	client, err := h.client(ctx)
	if err != nil {
		return nil, golibvirt.Domain{}, err
	}
	h.mu.Lock()
	dom, ok := h.domains[d.ID]
	h.mu.Unlock()
	if !ok {
		return nil, golibvirt.Domain{}, fmt.Errorf("unknown domain %s (%s)", d.Name, d.ID)
	}
	return client, dom, nil
}

func (h *Hypervisor) coreCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cores
}

package libvirt

import (
	golibvirt "github.com/digitalocean/go-libvirt"
)

// rpc is the set of libvirt procedures the balancer issues.
type rpc interface {
	listActiveDomains() ([]golibvirt.Domain, error)
	nodeCPUs() (int32, error)
	cpuStats(dom golibvirt.Domain, nparams uint32, startCPU int32, ncpus uint32) ([]golibvirt.TypedParam, int32, error)
	vcpus(dom golibvirt.Domain, maxinfo, maplen int32) ([]golibvirt.VcpuInfo, []byte, error)
	pinVcpu(dom golibvirt.Domain, vcpu uint32, cpumap []byte) error
}

type clientRPC struct {
	c *golibvirt.Libvirt
}

func (r clientRPC) listActiveDomains() ([]golibvirt.Domain, error) {
	doms, _, err := r.c.ConnectListAllDomains(1, golibvirt.ConnectListDomainsActive)
	return doms, err
}

func (r clientRPC) nodeCPUs() (int32, error) {
	_, _, cpus, _, _, _, _, _, err := r.c.NodeGetInfo()
	return cpus, err
}

func (r clientRPC) cpuStats(dom golibvirt.Domain, nparams uint32, startCPU int32, ncpus uint32) ([]golibvirt.TypedParam, int32, error) {
	return r.c.DomainGetCPUStats(dom, nparams, startCPU, ncpus, 0)
}

func (r clientRPC) vcpus(dom golibvirt.Domain, maxinfo, maplen int32) ([]golibvirt.VcpuInfo, []byte, error) {
	return r.c.DomainGetVcpus(dom, maxinfo, maplen)
}

func (r clientRPC) pinVcpu(dom golibvirt.Domain, vcpu uint32, cpumap []byte) error {
	return r.c.DomainPinVcpuFlags(dom, vcpu, cpumap, 0)
}

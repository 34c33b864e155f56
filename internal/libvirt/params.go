package libvirt

import (
	"errors"
	"fmt"

	golibvirt "github.com/digitalocean/go-libvirt"

	"aurora-vcpu-balancer/internal/balancer"
)

// paramCPUTime is the per-CPU typed parameter holding cumulative guest time
// in nanoseconds.
const paramCPUTime = "cpu_time"

var ErrMissingCPUTime = errors.New("libvirt: cpu_time missing from per-cpu stats")

// cpuTimesFromParams copies the k-th cpu_time value into dst[k]. The per-CPU
// stats reply is laid out slot by slot, so the k-th occurrence belongs to
// physical CPU k.
func cpuTimesFromParams(params []golibvirt.TypedParam, dst []uint64) error {
	k := 0
	for _, p := range params {
		if k == len(dst) {
			break
		}
		if p.Field != paramCPUTime {
			continue
		}
		dst[k] = asUint64(p.Value.I)
		k++
	}
	if k < len(dst) {
		return fmt.Errorf("%w: got %d of %d cpus", ErrMissingCPUTime, k, len(dst))
	}
	return nil
}

// cpuMapLen is the byte length of a libvirt cpumap covering cores CPUs.
func cpuMapLen(cores int) int {
	return (cores + 7) / 8
}

// maskFromCPUMap decodes a libvirt cpumap (bit n of byte n/8 = CPU n),
// ignoring CPUs at or above cores.
func maskFromCPUMap(cpumap []byte, cores int) balancer.CPUMask {
	var m balancer.CPUMask
	for cpu := 0; cpu < cores && cpu < balancer.MaxCores; cpu++ {
		b := cpu / 8
		if b >= len(cpumap) {
			break
		}
		if cpumap[b]&(1<<(cpu%8)) != 0 {
			m |= balancer.MaskForCore(cpu)
		}
	}
	return m
}

// cpuMapFromMask encodes m as a libvirt cpumap of maplen bytes.
func cpuMapFromMask(m balancer.CPUMask, maplen int) []byte {
	out := make([]byte, maplen)
	for b := range out {
		if b >= 8 {
			break
		}
		out[b] = byte(uint64(m) >> (8 * b))
	}
	return out
}

func asUint64(v any) uint64 {
	switch t := v.(type) {
	case uint64:
		return t
	case uint32:
		return uint64(t)
	case int64:
		if t < 0 {
			return 0
		}
		return uint64(t)
	case int32:
		if t < 0 {
			return 0
		}
		return uint64(t)
	case int:
		if t < 0 {
			return 0
		}
		return uint64(t)
	default:
		return 0
	}
}

func uuidToString(u golibvirt.UUID) string {
	if len(u) != 16 {
		return ""
	}
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		uint32(u[0])<<24|uint32(u[1])<<16|uint32(u[2])<<8|uint32(u[3]),
		uint16(u[4])<<8|uint16(u[5]),
		uint16(u[6])<<8|uint16(u[7]),
		uint16(u[8])<<8|uint16(u[9]),
		uint64(u[10])<<40|uint64(u[11])<<32|uint64(u[12])<<24|uint64(u[13])<<16|uint64(u[14])<<8|uint64(u[15]),
	)
}

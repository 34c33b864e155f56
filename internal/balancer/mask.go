package balancer

import (
	"fmt"
	"math/bits"
)

// MaxCores is the widest host the uint64 affinity mask can describe.
const MaxCores = 64

// CPUMask is a PCPU affinity bitmap: bit n set means the VCPU may run on PCPU n.
type CPUMask uint64

// MaskForCore returns the single-core mask for core.
func MaskForCore(core int) CPUMask {
	if core < 0 || core >= MaxCores {
		return 0
	}
	return CPUMask(1) << uint(core)
}

// OnlyOneBitSet reports whether m names exactly one PCPU.
func OnlyOneBitSet(m CPUMask) bool {
	return m != 0 && m&(m-1) == 0
}

func (m CPUMask) Count() int {
	return bits.OnesCount64(uint64(m))
}

func (m CPUMask) String() string {
	return fmt.Sprintf("0x%x", uint64(m))
}

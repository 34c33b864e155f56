package libvirt

import (
	"testing"

	golibvirt "github.com/digitalocean/go-libvirt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aurora-vcpu-balancer/internal/balancer"
)

func typed(field string, v any) golibvirt.TypedParam {
	return golibvirt.TypedParam{Field: field, Value: golibvirt.TypedParamValue{I: v}}
}

func TestCPUTimesFromParams(t *testing.T) {
	params := []golibvirt.TypedParam{
		typed("cpu_time", uint64(100)),
		typed("vcpu_time", uint64(7)),
		typed("cpu_time", uint64(250)),
		typed("vcpu_time", uint64(9)),
		typed("cpu_time", uint64(999)),
	}
	dst := make([]uint64, 2)
	require.NoError(t, cpuTimesFromParams(params, dst))
	assert.Equal(t, []uint64{100, 250}, dst)
}

func TestCPUTimesFromParams_Missing(t *testing.T) {
	params := []golibvirt.TypedParam{
		typed("cpu_time", uint64(100)),
		typed("vcpu_time", uint64(7)),
	}
	err := cpuTimesFromParams(params, make([]uint64, 2))
	assert.ErrorIs(t, err, ErrMissingCPUTime)
}

func TestCPUMapRoundTrip(t *testing.T) {
	assert.Equal(t, 1, cpuMapLen(1))
	assert.Equal(t, 1, cpuMapLen(8))
	assert.Equal(t, 2, cpuMapLen(9))
	assert.Equal(t, 8, cpuMapLen(64))

	m := balancer.MaskForCore(9)
	cpumap := cpuMapFromMask(m, cpuMapLen(12))
	assert.Equal(t, []byte{0x00, 0x02}, cpumap)
	assert.Equal(t, m, maskFromCPUMap(cpumap, 12))
}

func TestMaskFromCPUMap_IgnoresCPUsBeyondHost(t *testing.T) {
	assert.Equal(t, balancer.CPUMask(0x3), maskFromCPUMap([]byte{0xff}, 2))
	assert.Equal(t, balancer.CPUMask(0), maskFromCPUMap(nil, 4))
	assert.Equal(t, balancer.CPUMask(0x101), maskFromCPUMap([]byte{0x01, 0x01}, 16))
}

func TestAsUint64(t *testing.T) {
	assert.Equal(t, uint64(5), asUint64(int32(5)))
	assert.Equal(t, uint64(0), asUint64(int64(-3)))
	assert.Equal(t, uint64(42), asUint64(uint32(42)))
	assert.Equal(t, uint64(0), asUint64("nope"))
}

func TestUUIDToString(t *testing.T) {
	u := golibvirt.UUID{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0, 0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}
	assert.Equal(t, "12345678-9abc-def0-0123-456789abcdef", uuidToString(u))
}

package balancer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOnlyOneBitSet(t *testing.T) {
	tests := []struct {
		name string
		mask CPUMask
		want bool
	}{
		{name: "empty", mask: 0, want: false},
		{name: "one bit", mask: 0x1, want: true},
		{name: "one high bit", mask: 0x80, want: true},
		{name: "top bit", mask: CPUMask(1) << 63, want: true},
		{name: "two bits", mask: 0x3, want: false},
		{name: "two distant bits", mask: 0x81, want: false},
		{name: "all bits", mask: ^CPUMask(0), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OnlyOneBitSet(tt.mask))
		})
	}
}

func TestMaskForCore(t *testing.T) {
	assert.Equal(t, CPUMask(0x1), MaskForCore(0))
	assert.Equal(t, CPUMask(0x20), MaskForCore(5))
	assert.Equal(t, CPUMask(1)<<63, MaskForCore(63))
	assert.Equal(t, CPUMask(0), MaskForCore(64))
	assert.Equal(t, CPUMask(0), MaskForCore(-1))

	for core := 0; core < MaxCores; core++ {
		assert.True(t, OnlyOneBitSet(MaskForCore(core)), "core %d", core)
	}
}

func TestCPUMaskCountAndString(t *testing.T) {
	assert.Equal(t, 0, CPUMask(0).Count())
	assert.Equal(t, 2, CPUMask(0x5).Count())
	assert.Equal(t, 64, (^CPUMask(0)).Count())
	assert.Equal(t, "0x3", CPUMask(0x3).String())
	assert.Equal(t, "0x0", CPUMask(0).String())
}

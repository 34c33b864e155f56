package balancer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSession(t *testing.T) {
	hv := newFakeHypervisor(4)
	hv.addDomain("a", 0x1)
	hv.addDomain("b", 0x2)

	s, err := OpenSession(context.Background(), hv, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 4, s.Cores())

	pairs, err := s.Pairs()
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, "a", pairs[0].Domain.Name)
	assert.Equal(t, "b", pairs[1].Domain.Name)
	for _, p := range pairs {
		assert.Len(t, p.CPUTimeBefore, 4)
		assert.Len(t, p.CPUTimeAfter, 4)
		assert.Len(t, p.Percent, 4)
		assert.Equal(t, CPUStatsLayout{CPUs: 4, ParamsPerCPU: 2}, p.Layout)
	}
}

func TestOpenSession_NoDomains(t *testing.T) {
	s, err := OpenSession(context.Background(), newFakeHypervisor(2), discardLogger())
	require.NoError(t, err)
	pairs, err := s.Pairs()
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func TestOpenSession_SetupFailuresCloseHypervisor(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(hv *fakeHypervisor)
		wantErr error
		wantMsg string
	}{
		{name: "no cores", setup: func(hv *fakeHypervisor) { hv.cores = 0 }, wantErr: ErrNoCores},
		{name: "too many cores", setup: func(hv *fakeHypervisor) { hv.cores = 65 }, wantErr: ErrTooManyCores},
		{name: "topology", setup: func(hv *fakeHypervisor) { hv.failCores = true }, wantMsg: "read host topology"},
		{name: "list", setup: func(hv *fakeHypervisor) { hv.failList = true }, wantMsg: "list active domains"},
		{name: "probe", setup: func(hv *fakeHypervisor) { hv.failProbe = true }, wantMsg: "probe cpu stats of a"},
		{
			name: "short layout",
			setup: func(hv *fakeHypervisor) {
				hv.layouts["uuid-a"] = CPUStatsLayout{CPUs: 1, ParamsPerCPU: 2}
			},
			wantMsg: "1 cpu slots for 2 cores",
		},
		{
			name: "empty layout",
			setup: func(hv *fakeHypervisor) {
				hv.layouts["uuid-a"] = CPUStatsLayout{CPUs: 2}
			},
			wantMsg: "no stats per cpu",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hv := newFakeHypervisor(2)
			hv.addDomain("a", 0x1)
			tt.setup(hv)

			s, err := OpenSession(context.Background(), hv, discardLogger())
			require.Error(t, err)
			assert.Nil(t, s)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
			assert.Equal(t, 1, hv.closed)
		})
	}
}

func TestSessionClose_ReleasesOnce(t *testing.T) {
	hv := newFakeHypervisor(2)
	hv.addDomain("a", 0x1)
	s, err := OpenSession(context.Background(), hv, discardLogger())
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, hv.closed)

	_, err = s.Pairs()
	assert.ErrorIs(t, err, ErrSessionClosed)
}

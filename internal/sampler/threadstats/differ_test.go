package threadstats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/srodi/felix/internal/fex/types"
)

func TestFirstSampleYieldsZeroDeltas(t *testing.T) {
	d := New(10 * time.Second)
	now := time.Unix(0, 0)

	res := d.Sample([]types.ThreadStats{{TID: 7, JITTime: 1000}}, now)

	require.Equal(t, 1, res.ThreadsSampled)
	require.Len(t, res.PerThreadDelta, 1)
	require.Equal(t, types.ThreadDelta{TID: 7}, res.PerThreadDelta[0])
}

func TestSecondSampleYieldsCorrectDeltas(t *testing.T) {
	d := New(10 * time.Second)
	t0 := time.Unix(0, 0)
	t1 := t0.Add(time.Second)

	d.Sample([]types.ThreadStats{{TID: 7, JITTime: 1000, JITCount: 1}}, t0)
	res := d.Sample([]types.ThreadStats{{TID: 7, JITTime: 1500, JITCount: 3}}, t1)

	require.Equal(t, uint64(500), res.PerThreadDelta[0].JITTime)
	require.Equal(t, uint64(2), res.PerThreadDelta[0].JITCount)
}

func TestCounterRegressionClampsToZero(t *testing.T) {
	d := New(10 * time.Second)
	t0 := time.Unix(0, 0)
	t1 := t0.Add(time.Second)

	d.Sample([]types.ThreadStats{{TID: 7, JITTime: 1000, SigbusCount: 50}}, t0)
	res := d.Sample([]types.ThreadStats{{TID: 7, JITTime: 500, SigbusCount: 60}}, t1)

	require.Equal(t, uint64(0), res.PerThreadDelta[0].JITTime)
	require.Equal(t, uint64(10), res.PerThreadDelta[0].SigbusCount)
}

func TestStaleThreadsAreEvicted(t *testing.T) {
	d := New(10 * time.Second)
	t0 := time.Unix(0, 0)

	d.Sample([]types.ThreadStats{{TID: 1}}, t0)
	d.Sample([]types.ThreadStats{{TID: 2}}, t0.Add(time.Second))

	require.Len(t, d.threads, 2)

	d.Sample(nil, t0.Add(11*time.Second))

	require.Len(t, d.threads, 1)
	_, ok := d.threads[2]
	require.True(t, ok)
	_, ok = d.threads[1]
	require.False(t, ok)
}

func TestMultipleThreadsDeltas(t *testing.T) {
	d := New(10 * time.Second)
	t0 := time.Unix(0, 0)
	t1 := t0.Add(time.Second)

	d.Sample([]types.ThreadStats{{TID: 1, JITTime: 100}, {TID: 2, JITTime: 200}}, t0)
	res := d.Sample([]types.ThreadStats{{TID: 1, JITTime: 150}, {TID: 2, JITTime: 250}}, t1)

	require.Equal(t, 2, res.ThreadsSampled)
	require.Equal(t, uint64(50), res.PerThreadDelta[0].JITTime)
	require.Equal(t, uint64(50), res.PerThreadDelta[1].JITTime)
}

func TestDefaultStaleTimeoutUsedForZero(t *testing.T) {
	d := New(0)
	require.Equal(t, DefaultStaleTimeout, d.staleTimeout)
}

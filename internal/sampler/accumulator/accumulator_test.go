package accumulator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/srodi/felix/internal/fex/types"
	"github.com/srodi/felix/internal/sampler/threadstats"
)

func TestFirstPassProducesZeroFrameNoHistogram(t *testing.T) {
	a := New(1_000_000_000, 4)
	now := time.Unix(0, 0)

	frame := a.Compute(threadstats.Result{ThreadsSampled: 1, PerThreadDelta: []types.ThreadDelta{{TID: 7}}}, types.MemSnapshot{}, now)

	require.Equal(t, 0.0, frame.FEXLoadPercent)
	require.Empty(t, a.Histogram())
	require.Nil(t, frame.ThreadLoads)
}

func TestSingleThreadSteadyState(t *testing.T) {
	a := New(1_000_000_000, 4)
	t0 := time.Unix(0, 0)
	t1 := t0.Add(1 * time.Second)

	a.Compute(threadstats.Result{ThreadsSampled: 1, PerThreadDelta: []types.ThreadDelta{{TID: 7}}}, types.MemSnapshot{}, t0)
	frame := a.Compute(threadstats.Result{ThreadsSampled: 1, PerThreadDelta: []types.ThreadDelta{{TID: 7, JITTime: 500_000_000}}}, types.MemSnapshot{}, t1)

	require.InDelta(t, 50.0, frame.FEXLoadPercent, 1e-9)
	require.Len(t, frame.ThreadLoads, 1)
	require.Equal(t, uint32(7), frame.ThreadLoads[0].TID)
	require.InDelta(t, 50.0, frame.ThreadLoads[0].LoadPercent, 1e-6)
	require.Equal(t, uint64(500_000_000), frame.ThreadLoads[0].TotalCycles)

	hist := a.Histogram()
	require.Len(t, hist, 1)
	require.InDelta(t, 50.0, hist[0].LoadPercent, 1e-6)
	require.False(t, hist[0].HighJITLoad)
}

func TestOverOneCoreSetsHighJITLoad(t *testing.T) {
	a := New(1_000_000_000, 4)
	t0 := time.Unix(0, 0)
	t1 := t0.Add(1 * time.Second)

	a.Compute(threadstats.Result{ThreadsSampled: 1, PerThreadDelta: []types.ThreadDelta{{TID: 7}}}, types.MemSnapshot{}, t0)
	frame := a.Compute(threadstats.Result{ThreadsSampled: 1, PerThreadDelta: []types.ThreadDelta{{TID: 7, JITTime: 1_500_000_000}}}, types.MemSnapshot{}, t1)

	require.InDelta(t, 150.0, frame.FEXLoadPercent, 1e-6)
	hist := a.Histogram()
	require.True(t, hist[len(hist)-1].HighJITLoad)
}

func TestHistogramThresholds(t *testing.T) {
	a := New(1_000_000_000, 4)
	t0 := time.Unix(0, 0)
	t1 := t0.Add(1 * time.Second)

	a.Compute(threadstats.Result{ThreadsSampled: 1, PerThreadDelta: []types.ThreadDelta{{TID: 1}}}, types.MemSnapshot{}, t0)
	frame := a.Compute(threadstats.Result{ThreadsSampled: 1, PerThreadDelta: []types.ThreadDelta{
		{TID: 1, SMCCount: 500, SigbusCount: 5000, FloatFallbackCount: 1_000_000},
	}}, types.MemSnapshot{}, t1)

	_ = frame
	hist := a.Histogram()
	last := hist[len(hist)-1]
	require.True(t, last.HighInvalidation)
	require.True(t, last.HighSigbus)
	require.True(t, last.HighSoftfloat)
}

func TestThreadLoadsCappedAtHardwareConcurrency(t *testing.T) {
	a := New(1_000_000_000, 2)
	t0 := time.Unix(0, 0)
	t1 := t0.Add(1 * time.Second)

	a.Compute(threadstats.Result{ThreadsSampled: 3, PerThreadDelta: []types.ThreadDelta{{TID: 1}, {TID: 2}, {TID: 3}}}, types.MemSnapshot{}, t0)
	frame := a.Compute(threadstats.Result{ThreadsSampled: 3, PerThreadDelta: []types.ThreadDelta{
		{TID: 1, JITTime: 100},
		{TID: 2, JITTime: 300},
		{TID: 3, JITTime: 200},
	}}, types.MemSnapshot{}, t1)

	require.Len(t, frame.ThreadLoads, 2)
	require.Equal(t, uint32(2), frame.ThreadLoads[0].TID)
	require.Equal(t, uint32(3), frame.ThreadLoads[1].TID)
}

func TestTotalsAreSummedAcrossThreads(t *testing.T) {
	a := New(1_000_000_000, 4)
	t0 := time.Unix(0, 0)
	t1 := t0.Add(1 * time.Second)

	a.Compute(threadstats.Result{ThreadsSampled: 2, PerThreadDelta: []types.ThreadDelta{{TID: 1}, {TID: 2}}}, types.MemSnapshot{}, t0)
	frame := a.Compute(threadstats.Result{ThreadsSampled: 2, PerThreadDelta: []types.ThreadDelta{
		{TID: 1, JITTime: 100, JITCount: 2},
		{TID: 2, JITTime: 200, JITCount: 3},
	}}, types.MemSnapshot{}, t1)

	require.Equal(t, uint64(300), frame.TotalJITTime)
	require.Equal(t, uint64(5), frame.TotalJITCount)
	require.Equal(t, uint64(5), frame.TotalJITInvocations)
}

func TestHistogramRingEvictsOldest(t *testing.T) {
	a := New(1_000_000_000, 4)
	now := time.Unix(0, 0)
	a.Compute(threadstats.Result{ThreadsSampled: 1, PerThreadDelta: []types.ThreadDelta{{TID: 1}}}, types.MemSnapshot{}, now)

	for i := 0; i < HistogramCapacity+50; i++ {
		now = now.Add(time.Second)
		a.Compute(threadstats.Result{ThreadsSampled: 1, PerThreadDelta: []types.ThreadDelta{{TID: 1, JITTime: uint64(i)}}}, types.MemSnapshot{}, now)
	}

	require.Len(t, a.Histogram(), HistogramCapacity)
}

func TestZeroHardwareConcurrencyYieldsZeroLoad(t *testing.T) {
	a := New(1_000_000_000, 0)
	t0 := time.Unix(0, 0)
	t1 := t0.Add(1 * time.Second)

	a.Compute(threadstats.Result{ThreadsSampled: 1, PerThreadDelta: []types.ThreadDelta{{TID: 1}}}, types.MemSnapshot{}, t0)
	frame := a.Compute(threadstats.Result{ThreadsSampled: 1, PerThreadDelta: []types.ThreadDelta{{TID: 1, JITTime: 100}}}, types.MemSnapshot{}, t1)

	require.Equal(t, 0.0, frame.FEXLoadPercent)
}

// Package accumulator implements the load accumulator (C5): it converts a
// differ pass plus elapsed time into scalar load, per-thread load, and a
// histogram of recent load classifications.
package accumulator

import (
	"sort"
	"time"

	"github.com/srodi/felix/internal/fex/types"
	"github.com/srodi/felix/internal/sampler/threadstats"
)

// HistogramCapacity is the fixed ring size; the oldest entry is evicted
// once a new one would exceed it.
const HistogramCapacity = 200

// MaxThreadLoads caps the per-thread load list independent of hardware
// concurrency, so a pathologically thread-heavy guest never produces an
// unbounded frame.
const MaxThreadLoads = 32

const (
	invalidationThreshold = 500
	sigbusThreshold       = 5000
	softfloatThreshold    = 1_000_000
)

// Accumulator holds the state that persists across sampling passes: the
// previous wall-clock timestamp (to derive the sample period) and the
// histogram ring.
type Accumulator struct {
	cycleFreqHz         uint64
	hardwareConcurrency int

	havePrev  time.Time
	histogram []types.HistogramEntry
}

// New returns an Accumulator for a session with the given cycle-counter
// frequency and hardware concurrency; both are fixed for the session's
// lifetime.
func New(cycleFreqHz uint64, hardwareConcurrency int) *Accumulator {
	return &Accumulator{
		cycleFreqHz:         cycleFreqHz,
		hardwareConcurrency: hardwareConcurrency,
		histogram:           make([]types.HistogramEntry, 0, HistogramCapacity),
	}
}

// Histogram returns the current ring contents, oldest first. Callers must
// not mutate the returned slice.
func (a *Accumulator) Histogram() []types.HistogramEntry {
	return a.histogram
}

// Compute folds one differ result and the latest memory snapshot into a
// ComputedFrame. The first call (no prior timestamp) returns a frame with
// every derived field zero and does not append a histogram entry.
func (a *Accumulator) Compute(diff threadstats.Result, mem types.MemSnapshot, now time.Time) types.ComputedFrame {
	frame := types.ComputedFrame{
		WallClockUnixNano: now.UnixNano(),
		MonotonicNano:     now.UnixNano(),
		ThreadsSampled:    diff.ThreadsSampled,
		Mem:               mem,
		PerThreadDeltas:   diff.PerThreadDelta,
	}

	for _, d := range diff.PerThreadDelta {
		frame.TotalJITTime += d.JITTime
		frame.TotalSignalTime += d.SignalTime
		frame.TotalSigbusCount += d.SigbusCount
		frame.TotalSMCCount += d.SMCCount
		frame.TotalFloatFallbackCount += d.FloatFallbackCount
		frame.TotalCacheMissCount += d.CacheMissCount
		frame.TotalCacheReadLockTime += d.CacheReadLockTime
		frame.TotalCacheWriteLockTime += d.CacheWriteLockTime
		frame.TotalJITCount += d.JITCount
		frame.TotalJITInvocations += d.JITCount
	}

	if !a.havePrev.IsZero() {
		periodNs := now.Sub(a.havePrev).Nanoseconds()
		frame.SamplePeriodNano = periodNs

		maxCycles := float64(a.cycleFreqHz) * (float64(periodNs) / 1e9)
		activeCores := min(a.hardwareConcurrency, diff.ThreadsSampled)

		if maxCycles > 0 && activeCores > 0 {
			frame.FEXLoadPercent = (float64(frame.TotalJITTime) / (maxCycles * float64(activeCores))) * 100
		}

		frame.ThreadLoads = threadLoads(diff.PerThreadDelta, maxCycles, a.hardwareConcurrency)

		a.pushHistogram(ClassifyFrame(frame, a.cycleFreqHz))
	}

	a.havePrev = now
	return frame
}

// ClassifyFrame recomputes the histogram entry a frame would have produced
// live, purely from the frame's own totals and the session's cycle-counter
// frequency. Replay uses this to rebuild the histogram ring when seeking,
// without needing the original per-thread deltas.
func ClassifyFrame(frame types.ComputedFrame, cycleFreqHz uint64) types.HistogramEntry {
	maxCycles := float64(cycleFreqHz) * (float64(frame.SamplePeriodNano) / 1e9)
	return types.HistogramEntry{
		LoadPercent:      float32(frame.FEXLoadPercent),
		HighJITLoad:      maxCycles > 0 && float64(frame.TotalJITTime) >= maxCycles,
		HighInvalidation: frame.TotalSMCCount >= invalidationThreshold,
		HighSigbus:       frame.TotalSigbusCount >= sigbusThreshold,
		HighSoftfloat:    frame.TotalFloatFallbackCount >= softfloatThreshold,
	}
}

// pushHistogram appends entry, evicting the oldest if the ring is full.
func (a *Accumulator) pushHistogram(entry types.HistogramEntry) {
	if len(a.histogram) >= HistogramCapacity {
		a.histogram = append(a.histogram[1:], entry)
		return
	}
	a.histogram = append(a.histogram, entry)
}

// threadLoads converts per-thread deltas into the sorted, capped load list
// a ComputedFrame exposes.
func threadLoads(deltas []types.ThreadDelta, maxCycles float64, hardwareConcurrency int) []types.ThreadLoad {
	loads := make([]types.ThreadLoad, len(deltas))
	for i, d := range deltas {
		totalCycles := d.JITTime + d.SignalTime
		var loadPercent float32
		if maxCycles > 0 {
			loadPercent = float32((float64(d.JITTime) / maxCycles) * 100)
		}
		loads[i] = types.ThreadLoad{TID: d.TID, LoadPercent: loadPercent, TotalCycles: totalCycles}
	}

	sort.SliceStable(loads, func(i, j int) bool {
		return loads[i].TotalCycles > loads[j].TotalCycles
	})

	limit := min(hardwareConcurrency, MaxThreadLoads)
	if limit < 0 {
		limit = 0
	}
	if len(loads) > limit {
		loads = loads[:limit]
	}
	return loads
}

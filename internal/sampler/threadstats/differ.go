// Package threadstats implements the thread-stats differ (C4): it keeps
// each thread's previous counter snapshot and turns a fresh raw sample
// into a set of per-thread deltas, evicting threads that have gone quiet.
package threadstats

import (
	"time"

	"github.com/srodi/felix/internal/fex/types"
)

// DefaultStaleTimeout is how long a thread id may go unseen before the
// differ forgets it, matching the producer's own thread-exit latency.
const DefaultStaleTimeout = 10 * time.Second

type entry struct {
	previous types.ThreadStats
	lastSeen time.Time
}

// Differ maintains per-thread previous counters across sampling passes.
// It is not safe for concurrent use; callers invoke Sample from a single
// sampling flow.
type Differ struct {
	staleTimeout time.Duration
	threads      map[uint32]entry
}

// New returns a Differ with the given stale eviction timeout. A zero
// timeout selects DefaultStaleTimeout.
func New(staleTimeout time.Duration) *Differ {
	if staleTimeout <= 0 {
		staleTimeout = DefaultStaleTimeout
	}
	return &Differ{staleTimeout: staleTimeout, threads: make(map[uint32]entry)}
}

// Result is the differ's output for a single sampling pass.
type Result struct {
	Timestamp      time.Time
	PerThreadDelta []types.ThreadDelta
	ThreadsSampled int
}

// Sample folds a fresh raw sample into the differ's state and returns the
// per-thread deltas for this pass. A thread id seen for the first time
// emits a zero delta rather than being skipped, so its first appearance is
// still counted in ThreadsSampled.
func (d *Differ) Sample(raw []types.ThreadStats, now time.Time) Result {
	deltas := make([]types.ThreadDelta, 0, len(raw))

	for _, rec := range raw {
		prev, seen := d.threads[rec.TID]
		if !seen {
			deltas = append(deltas, types.ThreadDelta{TID: rec.TID})
		} else {
			deltas = append(deltas, diff(rec, prev.previous))
		}
		d.threads[rec.TID] = entry{previous: rec, lastSeen: now}
	}

	for tid, e := range d.threads {
		if now.Sub(e.lastSeen) > d.staleTimeout {
			delete(d.threads, tid)
		}
	}

	return Result{
		Timestamp:      now,
		PerThreadDelta: deltas,
		ThreadsSampled: len(raw),
	}
}

// diff computes cur - prev field by field, clamping each to zero instead of
// wrapping when a counter appears to have gone backwards (e.g. the
// producer's counters were reset without this differ noticing a TID
// change).
func diff(cur, prev types.ThreadStats) types.ThreadDelta {
	return types.ThreadDelta{
		TID:                cur.TID,
		JITTime:            clampSub(cur.JITTime, prev.JITTime),
		SignalTime:         clampSub(cur.SignalTime, prev.SignalTime),
		SigbusCount:        clampSub(cur.SigbusCount, prev.SigbusCount),
		SMCCount:           clampSub(cur.SMCCount, prev.SMCCount),
		FloatFallbackCount: clampSub(cur.FloatFallbackCount, prev.FloatFallbackCount),
		CacheMissCount:     clampSub(cur.CacheMissCount, prev.CacheMissCount),
		CacheReadLockTime:  clampSub(cur.CacheReadLockTime, prev.CacheReadLockTime),
		CacheWriteLockTime: clampSub(cur.CacheWriteLockTime, prev.CacheWriteLockTime),
		JITCount:           clampSub(cur.JITCount, prev.JITCount),
	}
}

func clampSub(cur, prev uint64) uint64 {
	if cur < prev {
		return 0
	}
	return cur - prev
}

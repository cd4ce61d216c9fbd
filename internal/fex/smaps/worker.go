package smaps

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/srodi/felix/internal/fex/types"
)

// Worker runs the smaps sampler on its own cadence and publishes the latest
// good snapshot through a single atomic pointer swap, so the accumulator
// never blocks on or tears a snapshot it is reading concurrently.
type Worker struct {
	sampler *Sampler
	period  time.Duration
	latest  atomic.Pointer[types.MemSnapshot]
}

// NewWorker wraps an already-open Sampler with a publish cadence.
func NewWorker(sampler *Sampler, period time.Duration) *Worker {
	return &Worker{sampler: sampler, period: period}
}

// Latest returns the most recently published snapshot. Before the first
// successful pass it returns a zero-value snapshot with Sampled == false.
func (w *Worker) Latest() types.MemSnapshot {
	p := w.latest.Load()
	if p == nil {
		return types.MemSnapshot{}
	}
	return *p
}

// Run samples on every tick of period until ctx is cancelled. A pass that
// fails or yields zero total bytes is skipped without logging, and the last
// good snapshot stays published; Run itself only returns when ctx is done,
// so callers typically run it inside an errgroup.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			snap, ok, err := w.sampler.Sample()
			if err != nil || !ok {
				continue
			}
			w.latest.Store(&snap)
		}
	}
}

package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/srodi/felix/internal/fex/liveness"
	"github.com/srodi/felix/internal/fex/platform"
	"github.com/srodi/felix/internal/fex/shm"
	"github.com/srodi/felix/internal/fex/smaps"
	"github.com/srodi/felix/internal/fex/types"
	"github.com/srodi/felix/internal/sampler/accumulator"
	"github.com/srodi/felix/internal/sampler/threadstats"
)

// State is the live source's lifecycle state.
type State int

const (
	StateRunning State = iota
	StateTargetExited
	StateError
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateTargetExited:
		return "TargetExited"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// DefaultSamplePeriod is used when Config.SamplePeriod is zero.
const DefaultSamplePeriod = 1000 * time.Millisecond

// MinSamplePeriod and MaxSamplePeriod bound Config.SamplePeriod.
const (
	MinSamplePeriod = 10 * time.Millisecond
	MaxSamplePeriod = 1000 * time.Millisecond
)

// FrameWriter is the sink capability a LiveSource optionally feeds; it is
// satisfied by *recording.Writer without this package importing recording,
// avoiding an import cycle (recording's replay side implements Source).
type FrameWriter interface {
	WriteFrame(frame types.ComputedFrame) error
}

// Config configures a LiveSource.
type Config struct {
	SamplePeriod    time.Duration
	StaleTimeout    time.Duration
	MemSamplePeriod time.Duration
	Sink            FrameWriter
	Logger          *slog.Logger
}

func (c Config) samplePeriod() time.Duration {
	p := c.SamplePeriod
	if p <= 0 {
		p = DefaultSamplePeriod
	}
	if p < MinSamplePeriod {
		p = MinSamplePeriod
	}
	if p > MaxSamplePeriod {
		p = MaxSamplePeriod
	}
	return p
}

func (c Config) memSamplePeriod() time.Duration {
	if c.MemSamplePeriod <= 0 {
		return c.samplePeriod()
	}
	return c.MemSamplePeriod
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// LiveSource drives C1/C3/C4/C5 on a cadence, plus the C2 background
// worker, and optionally feeds a recording sink. It satisfies Source.
type LiveSource struct {
	pid int32

	shmReader *shm.Reader
	watcher   *liveness.Watcher
	memOpen   *smaps.Sampler
	memWorker *smaps.Worker
	differ    *threadstats.Differ
	accum     *accumulator.Accumulator

	samplePeriod time.Duration
	sink         FrameWriter
	logger       *slog.Logger

	metadata     types.SessionMetadata
	state        State
	lastSampleAt time.Time

	cancel context.CancelFunc
	group  *errgroup.Group
}

// Open attaches to pid's shared-memory region, validates its layout
// version, starts the memory-sampling worker, and returns a ready
// LiveSource in state Running.
func Open(pid int32, cfg Config) (*LiveSource, error) {
	reader, err := shm.Open(pid)
	if err != nil {
		return nil, fmt.Errorf("source: open shm: %w", err)
	}

	header := reader.ReadHeader()
	if err := shm.ValidateVersion(header); err != nil {
		reader.Close()
		return nil, fmt.Errorf("source: %w", err)
	}

	memSampler, err := smaps.Open(pid)
	if err != nil {
		reader.Close()
		return nil, fmt.Errorf("source: open smaps: %w", err)
	}

	watcher := liveness.New(pid, liveness.DefaultSHMPath(pid))

	metadata := types.SessionMetadata{
		SessionID:               uuid.NewString(),
		PID:                     pid,
		FEXVersion:              header.FEXVersion,
		AppType:                 header.AppType,
		StatsVersion:            header.Version,
		CycleCounterFrequencyHz: platform.CycleCounterFrequency(),
		HardwareConcurrency:     platform.HardwareConcurrency(),
		RecordingStartUnixNano:  time.Now().UnixNano(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	memWorker := smaps.NewWorker(memSampler, cfg.memSamplePeriod())
	group.Go(func() error {
		return memWorker.Run(gctx)
	})

	ls := &LiveSource{
		pid:          pid,
		shmReader:    reader,
		watcher:      watcher,
		memOpen:      memSampler,
		memWorker:    memWorker,
		differ:       threadstats.New(cfg.StaleTimeout),
		accum:        accumulator.New(metadata.CycleCounterFrequencyHz, metadata.HardwareConcurrency),
		samplePeriod: cfg.samplePeriod(),
		sink:         cfg.Sink,
		logger:       cfg.logger(),
		metadata:     metadata,
		state:        StateRunning,
		cancel:       cancel,
		group:        group,
	}
	return ls, nil
}

// Metadata returns the session metadata captured at Open.
func (l *LiveSource) Metadata() types.SessionMetadata { return l.metadata }

// SetSink attaches (or replaces) the recording sink after Open. Metadata is
// only known once Open has read the producer's header, so a caller that
// wants to record needs the session id and other metadata before it can
// construct the sink (e.g. a *recording.Writer, which takes
// SessionMetadata at creation); SetSink lets it wire the sink in afterward.
func (l *LiveSource) SetSink(sink FrameWriter) { l.sink = sink }

// IsLive always returns true for a LiveSource.
func (l *LiveSource) IsLive() bool { return true }

// State returns the current lifecycle state.
func (l *LiveSource) State() State { return l.state }

// Histogram returns the load-classification ring accumulated so far.
func (l *LiveSource) Histogram() []types.HistogramEntry { return l.accum.Histogram() }

// NextFrame executes one loop iteration if the sample period has elapsed
// since the last one, per the C6 loop: poll liveness, barrier, resize
// check, walk, diff, read the latest memory snapshot, accumulate, and
// optionally record. It returns ok=false if not yet due, on an I/O error,
// or once the target has exited.
func (l *LiveSource) NextFrame() (types.ComputedFrame, bool) {
	if l.state != StateRunning {
		return types.ComputedFrame{}, false
	}

	if l.watcher.HasExited() {
		l.logger.Info("target process exited", "pid", l.pid)
		l.state = StateTargetExited
		return types.ComputedFrame{}, false
	}

	now := time.Now()
	if !l.lastSampleAt.IsZero() && now.Sub(l.lastSampleAt) < l.samplePeriod {
		return types.ComputedFrame{}, false
	}

	platform.StoreMemoryBarrier()

	if err := l.shmReader.CheckResize(); err != nil {
		l.logger.Error("shm resize failed", "pid", l.pid, "error", err)
		l.state = StateError
		return types.ComputedFrame{}, false
	}

	raw, err := l.shmReader.ReadThreadStats()
	if err != nil {
		var trunc *shm.Truncated
		if errors.As(err, &trunc) {
			l.logger.Warn("thread list truncated", "pid", l.pid, "offset", trunc.AtOffset)
		} else {
			l.logger.Error("shm walk failed", "pid", l.pid, "error", err)
			l.state = StateError
			return types.ComputedFrame{}, false
		}
	}

	diff := l.differ.Sample(raw, now)
	mem := l.memWorker.Latest()
	frame := l.accum.Compute(diff, mem, now)

	if l.sink != nil {
		if err := l.sink.WriteFrame(frame); err != nil {
			l.logger.Error("recording write failed, disabling recording", "pid", l.pid, "error", err)
			l.sink = nil
		}
	}

	l.lastSampleAt = now
	return frame, true
}

// Close stops the memory-sampling worker and releases every resource
// LiveSource owns. It is safe to call once, after the caller is done
// driving NextFrame.
func (l *LiveSource) Close() error {
	l.cancel()
	_ = l.group.Wait()

	var firstErr error
	if err := l.shmReader.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := l.memOpen.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := l.watcher.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Package types defines the wire-level and derived data model shared by the
// shared-memory reader, the accumulator, and the recording format.
package types

import "fmt"

// StatsVersion is the producer-side stats layout version this build expects.
// A mismatch against the header's Version field is a fatal setup error,
// reported as *shm.ErrVersionMismatch by shm.ValidateVersion.
const StatsVersion uint8 = 2

// HeaderSize is the fixed byte size of the producer's StatsHeader layout.
const HeaderSize = 64

// ThreadStatsSize is the size in bytes of a single ThreadStats record as
// this build understands the layout. The header's own ThreadStatsSize
// field carries the producer's declared record size; the shared-memory
// reader copies the smaller of the two per record, zero-filling the rest.
const ThreadStatsSize = 80

// AppType identifies the guest application flavor the emulator is running.
type AppType uint8

const (
	AppTypeLinux32    AppType = 0
	AppTypeLinux64    AppType = 1
	AppTypeWinArm64EC AppType = 2
	AppTypeWinWow64   AppType = 3
)

// String renders the app type the way the UI and CSV export want it; unknown
// values render as "Unknown" rather than panicking.
func (a AppType) String() string {
	switch a {
	case AppTypeLinux32:
		return "Linux32"
	case AppTypeLinux64:
		return "Linux64"
	case AppTypeWinArm64EC:
		return "WinArm64ec"
	case AppTypeWinWow64:
		return "WinWow64"
	default:
		return "Unknown"
	}
}

// AppTypeFromU8 converts a raw byte into an AppType. Unknown values are
// preserved rather than rejected; String() renders them as "Unknown".
func AppTypeFromU8(v uint8) AppType {
	return AppType(v)
}

// Header mirrors the fixed 64-byte layout at the start of the mapped
// shared-memory region. It is an owned copy; no field here aliases the
// mapping.
type Header struct {
	Version         uint8
	AppType         AppType
	ThreadStatsSize uint16
	FEXVersion      string
	Head            uint32
	Size            uint32
}

// ThreadStats is one producer record: nine monotonically-increasing
// counters plus a linked-list offset and thread id. The in-memory layout is
// 16-byte aligned and a multiple of 16 bytes, matching the producer's
// repr(C, align(16)) record.
type ThreadStats struct {
	Next               uint32
	TID                uint32
	JITTime            uint64
	SignalTime         uint64
	SigbusCount        uint64
	SMCCount           uint64
	FloatFallbackCount uint64
	CacheMissCount     uint64
	CacheReadLockTime  uint64
	CacheWriteLockTime uint64
	JITCount           uint64
}

// ThreadDelta is the per-sample, per-thread difference of every counter in
// ThreadStats against the previous sample. Values are never negative: a
// regression (current < previous) is clamped to zero by the differ.
type ThreadDelta struct {
	TID                uint32
	JITTime            uint64
	SignalTime         uint64
	SigbusCount        uint64
	SMCCount           uint64
	FloatFallbackCount uint64
	CacheMissCount     uint64
	CacheReadLockTime  uint64
	CacheWriteLockTime uint64
	JITCount           uint64
}

// LargestAnon identifies the single largest allocator-tagged anonymous
// mapping observed in the current resident-memory snapshot.
type LargestAnon struct {
	Begin uint64
	End   uint64
	Size  uint64
}

// MemSnapshot is a categorised resident-set snapshot of the observed
// process's memory map. A freshly constructed, never-sampled MemSnapshot is
// the "uninitialised" sentinel distinguished from an all-zero sample by the
// Sampled flag.
type MemSnapshot struct {
	Sampled      bool
	Total        uint64
	JITCode      uint64
	OpDispatcher uint64
	Frontend     uint64
	CPUBackend   uint64
	Lookup       uint64
	LookupL1     uint64
	ThreadStates uint64
	BlockLinks   uint64
	Misc         uint64
	Allocator    uint64
	Unaccounted  uint64
	LargestAnon  LargestAnon
}

// HistogramEntry is one ring-buffer entry summarizing a single frame's load
// for the scrolling bar chart / replay histogram reconstruction.
type HistogramEntry struct {
	LoadPercent      float32
	HighJITLoad      bool
	HighInvalidation bool
	HighSigbus       bool
	HighSoftfloat    bool
}

// ThreadLoad is one entry of a frame's capped, descending-by-cycles
// per-thread load list.
type ThreadLoad struct {
	TID         uint32
	LoadPercent float32
	TotalCycles uint64
}

// ComputedFrame is the unit of observable state produced once per sample by
// the accumulator (C5) and consumed by the UI, the recorder, and CSV/metrics
// export.
type ComputedFrame struct {
	WallClockUnixNano int64
	MonotonicNano     int64
	SamplePeriodNano  int64
	ThreadsSampled    int

	TotalJITTime            uint64
	TotalSignalTime         uint64
	TotalSigbusCount        uint64
	TotalSMCCount           uint64
	TotalFloatFallbackCount uint64
	TotalCacheMissCount     uint64
	TotalCacheReadLockTime  uint64
	TotalCacheWriteLockTime uint64
	TotalJITCount           uint64
	TotalJITInvocations     uint64

	FEXLoadPercent float64
	ThreadLoads    []ThreadLoad
	Mem            MemSnapshot

	PerThreadDeltas []ThreadDelta
}

// SessionMetadata describes the session-wide, unchanging facts recorded in
// a session's header and shown by the UI/CSV/metrics consumers.
type SessionMetadata struct {
	SessionID               string
	PID                     int32
	FEXVersion              string
	AppType                 AppType
	StatsVersion            uint8
	CycleCounterFrequencyHz uint64
	HardwareConcurrency     int
	RecordingStartUnixNano  int64
}

func (s SessionMetadata) String() string {
	return fmt.Sprintf("pid=%d fex=%s app=%s stats_v%d hz=%d cores=%d",
		s.PID, s.FEXVersion, s.AppType, s.StatsVersion, s.CycleCounterFrequencyHz, s.HardwareConcurrency)
}

// Package csvexport renders a stream of frames to the CSV schema pinned in
// spec §6: one row per frame, with the top-N per-thread loads flattened into
// thread_i_load/thread_i_cycles column pairs.
package csvexport

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/srodi/felix/internal/fex/types"
)

// fixedColumns is every column preceding the flattened per-thread columns,
// in the exact order spec §6 pins.
var fixedColumns = []string{
	"timestamp_ms", "sample_period_ms", "threads_sampled", "fex_load_percent",
	"total_jit_time", "total_signal_time", "total_sigbus_count", "total_smc_count",
	"total_float_fallback_count", "total_cache_miss_count",
	"total_cache_read_lock_time", "total_cache_write_lock_time",
	"total_jit_count", "total_jit_invocations",
	"mem_total_anon", "mem_jit_code", "mem_op_dispatcher", "mem_frontend",
	"mem_cpu_backend", "mem_lookup", "mem_lookup_l1", "mem_thread_states",
	"mem_block_links", "mem_misc", "mem_allocator", "mem_unaccounted",
}

// Writer writes frames as CSV rows. TopN fixes the width of the flattened
// per-thread columns across every row; frames with fewer thread loads than
// TopN leave the trailing columns empty rather than shifting later rows.
type Writer struct {
	w    *csv.Writer
	topN int
}

// New returns a Writer that emits topN thread_i_load/thread_i_cycles column
// pairs and writes the header row immediately.
func New(w io.Writer, topN int) (*Writer, error) {
	if topN < 0 {
		topN = 0
	}
	cw := csv.NewWriter(w)
	writer := &Writer{w: cw, topN: topN}
	if err := cw.Write(writer.header()); err != nil {
		return nil, fmt.Errorf("csvexport: write header: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("csvexport: write header: %w", err)
	}
	return writer, nil
}

func (w *Writer) header() []string {
	header := make([]string, 0, len(fixedColumns)+2*w.topN)
	header = append(header, fixedColumns...)
	for i := 0; i < w.topN; i++ {
		header = append(header,
			fmt.Sprintf("thread_%d_load", i),
			fmt.Sprintf("thread_%d_cycles", i),
		)
	}
	return header
}

// WriteFrame appends one row for frame. It satisfies source.FrameWriter.
func (w *Writer) WriteFrame(frame types.ComputedFrame) error {
	row := make([]string, 0, len(fixedColumns)+2*w.topN)
	row = append(row,
		strconv.FormatInt(frame.WallClockUnixNano/1_000_000, 10),
		strconv.FormatInt(frame.SamplePeriodNano/1_000_000, 10),
		strconv.Itoa(frame.ThreadsSampled),
		strconv.FormatFloat(frame.FEXLoadPercent, 'f', -1, 64),
		strconv.FormatUint(frame.TotalJITTime, 10),
		strconv.FormatUint(frame.TotalSignalTime, 10),
		strconv.FormatUint(frame.TotalSigbusCount, 10),
		strconv.FormatUint(frame.TotalSMCCount, 10),
		strconv.FormatUint(frame.TotalFloatFallbackCount, 10),
		strconv.FormatUint(frame.TotalCacheMissCount, 10),
		strconv.FormatUint(frame.TotalCacheReadLockTime, 10),
		strconv.FormatUint(frame.TotalCacheWriteLockTime, 10),
		strconv.FormatUint(frame.TotalJITCount, 10),
		strconv.FormatUint(frame.TotalJITInvocations, 10),
		strconv.FormatUint(frame.Mem.Total, 10),
		strconv.FormatUint(frame.Mem.JITCode, 10),
		strconv.FormatUint(frame.Mem.OpDispatcher, 10),
		strconv.FormatUint(frame.Mem.Frontend, 10),
		strconv.FormatUint(frame.Mem.CPUBackend, 10),
		strconv.FormatUint(frame.Mem.Lookup, 10),
		strconv.FormatUint(frame.Mem.LookupL1, 10),
		strconv.FormatUint(frame.Mem.ThreadStates, 10),
		strconv.FormatUint(frame.Mem.BlockLinks, 10),
		strconv.FormatUint(frame.Mem.Misc, 10),
		strconv.FormatUint(frame.Mem.Allocator, 10),
		strconv.FormatUint(frame.Mem.Unaccounted, 10),
	)

	for i := 0; i < w.topN; i++ {
		if i < len(frame.ThreadLoads) {
			tl := frame.ThreadLoads[i]
			row = append(row,
				strconv.FormatFloat(float64(tl.LoadPercent), 'f', -1, 32),
				strconv.FormatUint(tl.TotalCycles, 10),
			)
		} else {
			row = append(row, "", "")
		}
	}

	if err := w.w.Write(row); err != nil {
		return fmt.Errorf("csvexport: write row: %w", err)
	}
	return nil
}

// Flush flushes any buffered output and returns the first write error
// encountered, if any.
func (w *Writer) Flush() error {
	w.w.Flush()
	return w.w.Error()
}

//go:build linux

package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/srodi/felix/internal/fex/types"
	"github.com/srodi/felix/pkg/ui"
)

// renderFrame writes one summary screen for frame, in the teacher's own
// snapshotAndPrint/tabwriter style (cmd/hotspot/main.go), themed for a
// single attached emulator process instead of a host-wide process table.
func renderFrame(w io.Writer, meta types.SessionMetadata, frame types.ComputedFrame, histogram []types.HistogramEntry) {
	fmt.Fprint(w, ui.Banner())
	fmt.Fprintf(w, "felix live (press Ctrl+C to exit)\n")
	fmt.Fprintf(w, "Updated: %s | %s\n\n", time.Now().Format(time.RFC3339), meta)

	fmt.Fprintf(w, "[Load]\n")
	fmt.Fprintf(w, "  threads_sampled=%d  fex_load_percent=%.1f%%  sample_period=%s\n\n",
		frame.ThreadsSampled, frame.FEXLoadPercent, time.Duration(frame.SamplePeriodNano))

	fmt.Fprintf(w, "[Per-thread load]\n")
	if len(frame.ThreadLoads) == 0 {
		fmt.Fprintln(w, "  no threads observed")
	} else {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  TID\tLOAD%\tCYCLES")
		for _, tl := range frame.ThreadLoads {
			fmt.Fprintf(tw, "  %d\t%.1f\t%d\n", tl.TID, tl.LoadPercent, tl.TotalCycles)
		}
		tw.Flush()
	}

	fmt.Fprintf(w, "\n[Counters]\n")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  jit_time\t%d\n", frame.TotalJITTime)
	fmt.Fprintf(tw, "  signal_time\t%d\n", frame.TotalSignalTime)
	fmt.Fprintf(tw, "  sigbus_count\t%d\n", frame.TotalSigbusCount)
	fmt.Fprintf(tw, "  smc_count\t%d\n", frame.TotalSMCCount)
	fmt.Fprintf(tw, "  float_fallback_count\t%d\n", frame.TotalFloatFallbackCount)
	fmt.Fprintf(tw, "  cache_miss_count\t%d\n", frame.TotalCacheMissCount)
	fmt.Fprintf(tw, "  jit_count\t%d\n", frame.TotalJITCount)
	tw.Flush()

	fmt.Fprintf(w, "\n[Memory]\n")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  total\t%d\n", frame.Mem.Total)
	fmt.Fprintf(tw, "  jit_code\t%d\n", frame.Mem.JITCode)
	fmt.Fprintf(tw, "  op_dispatcher\t%d\n", frame.Mem.OpDispatcher)
	fmt.Fprintf(tw, "  frontend\t%d\n", frame.Mem.Frontend)
	fmt.Fprintf(tw, "  cpu_backend\t%d\n", frame.Mem.CPUBackend)
	fmt.Fprintf(tw, "  allocator\t%d\n", frame.Mem.Allocator)
	fmt.Fprintf(tw, "  unaccounted\t%d\n", frame.Mem.Unaccounted)
	tw.Flush()

	if n := len(histogram); n > 0 {
		last := histogram[n-1]
		fmt.Fprintf(w, "\n[Histogram] %d entries | last: load=%.1f%% high_jit=%t high_inval=%t high_sigbus=%t high_softfloat=%t\n",
			n, last.LoadPercent, last.HighJITLoad, last.HighInvalidation, last.HighSigbus, last.HighSoftfloat)
	}
}

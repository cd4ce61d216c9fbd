// Package promexport mirrors the CSV schema (spec §6) as Prometheus gauges,
// for operators who want to scrape a running session instead of reading a
// terminal or a CSV file.
package promexport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/srodi/felix/internal/fex/types"
)

// Metrics is the set of gauges updated once per frame. Labels are kept to a
// minimum (just "tid" on the per-thread gauges) since a felix process
// observes exactly one target pid for its whole lifetime.
type Metrics struct {
	registry *prometheus.Registry

	threadsSampled          prometheus.Gauge
	fexLoadPercent          prometheus.Gauge
	totalJITTime            prometheus.Gauge
	totalSignalTime         prometheus.Gauge
	totalSigbusCount        prometheus.Gauge
	totalSMCCount           prometheus.Gauge
	totalFloatFallbackCount prometheus.Gauge
	totalCacheMissCount     prometheus.Gauge
	totalCacheReadLockTime  prometheus.Gauge
	totalCacheWriteLockTime prometheus.Gauge
	totalJITCount           prometheus.Gauge
	totalJITInvocations     prometheus.Gauge

	memTotal        prometheus.Gauge
	memJITCode      prometheus.Gauge
	memOpDispatcher prometheus.Gauge
	memFrontend     prometheus.Gauge
	memCPUBackend   prometheus.Gauge
	memLookup       prometheus.Gauge
	memLookupL1     prometheus.Gauge
	memThreadStates prometheus.Gauge
	memBlockLinks   prometheus.Gauge
	memMisc         prometheus.Gauge
	memAllocator    prometheus.Gauge
	memUnaccounted  prometheus.Gauge

	threadLoad   *prometheus.GaugeVec
	threadCycles *prometheus.GaugeVec
}

// New builds the gauge set under the "felix" namespace and registers them
// with a fresh, private registry (not the global default).
func New() *Metrics {
	registry := prometheus.NewRegistry()

	gauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "felix", Name: name, Help: help})
		registry.MustRegister(g)
		return g
	}

	m := &Metrics{
		registry:                registry,
		threadsSampled:          gauge("threads_sampled", "Number of threads observed in the last sample pass"),
		fexLoadPercent:          gauge("fex_load_percent", "Aggregate JIT load across active cores, percent"),
		totalJITTime:            gauge("total_jit_time_cycles", "Summed per-thread JIT cycles in the last pass"),
		totalSignalTime:         gauge("total_signal_time_cycles", "Summed per-thread signal-handling cycles in the last pass"),
		totalSigbusCount:        gauge("total_sigbus_count", "Summed per-thread SIGBUS counter in the last pass"),
		totalSMCCount:           gauge("total_smc_count", "Summed per-thread self-modifying-code invalidation counter"),
		totalFloatFallbackCount: gauge("total_float_fallback_count", "Summed per-thread softfloat fallback counter"),
		totalCacheMissCount:     gauge("total_cache_miss_count", "Summed per-thread JIT cache miss counter"),
		totalCacheReadLockTime:  gauge("total_cache_read_lock_time_cycles", "Summed per-thread cache read-lock wait cycles"),
		totalCacheWriteLockTime: gauge("total_cache_write_lock_time_cycles", "Summed per-thread cache write-lock wait cycles"),
		totalJITCount:           gauge("total_jit_count", "Summed per-thread JIT block count"),
		totalJITInvocations:     gauge("total_jit_invocations", "Summed per-thread JIT invocation count"),

		memTotal:        gauge("mem_total_anon_bytes", "Resident anonymous memory, total"),
		memJITCode:      gauge("mem_jit_code_bytes", "Resident memory tagged as JIT code"),
		memOpDispatcher: gauge("mem_op_dispatcher_bytes", "Resident memory tagged as op dispatcher"),
		memFrontend:     gauge("mem_frontend_bytes", "Resident memory tagged as frontend"),
		memCPUBackend:   gauge("mem_cpu_backend_bytes", "Resident memory tagged as CPU backend"),
		memLookup:       gauge("mem_lookup_bytes", "Resident memory tagged as lookup table"),
		memLookupL1:     gauge("mem_lookup_l1_bytes", "Resident memory tagged as L1 lookup table"),
		memThreadStates: gauge("mem_thread_states_bytes", "Resident memory tagged as thread state"),
		memBlockLinks:   gauge("mem_block_links_bytes", "Resident memory tagged as block links"),
		memMisc:         gauge("mem_misc_bytes", "Resident memory tagged as miscellaneous"),
		memAllocator:    gauge("mem_allocator_bytes", "Resident memory tagged as allocator-owned"),
		memUnaccounted:  gauge("mem_unaccounted_bytes", "Resident memory not matched to any known tag"),

		threadLoad: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "felix", Name: "thread_load_percent", Help: "Per-thread JIT load, percent",
		}, []string{"tid"}),
		threadCycles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "felix", Name: "thread_total_cycles", Help: "Per-thread total cycles (jit+signal)",
		}, []string{"tid"}),
	}
	registry.MustRegister(m.threadLoad, m.threadCycles)

	return m
}

// Observe updates every gauge from frame. Per-thread gauges for tids no
// longer present in frame.ThreadLoads are left at their last value rather
// than deleted, matching the "stale reading until overwritten" behaviour a
// scrape-based exporter naturally has.
func (m *Metrics) Observe(frame types.ComputedFrame) {
	m.threadsSampled.Set(float64(frame.ThreadsSampled))
	m.fexLoadPercent.Set(frame.FEXLoadPercent)
	m.totalJITTime.Set(float64(frame.TotalJITTime))
	m.totalSignalTime.Set(float64(frame.TotalSignalTime))
	m.totalSigbusCount.Set(float64(frame.TotalSigbusCount))
	m.totalSMCCount.Set(float64(frame.TotalSMCCount))
	m.totalFloatFallbackCount.Set(float64(frame.TotalFloatFallbackCount))
	m.totalCacheMissCount.Set(float64(frame.TotalCacheMissCount))
	m.totalCacheReadLockTime.Set(float64(frame.TotalCacheReadLockTime))
	m.totalCacheWriteLockTime.Set(float64(frame.TotalCacheWriteLockTime))
	m.totalJITCount.Set(float64(frame.TotalJITCount))
	m.totalJITInvocations.Set(float64(frame.TotalJITInvocations))

	m.memTotal.Set(float64(frame.Mem.Total))
	m.memJITCode.Set(float64(frame.Mem.JITCode))
	m.memOpDispatcher.Set(float64(frame.Mem.OpDispatcher))
	m.memFrontend.Set(float64(frame.Mem.Frontend))
	m.memCPUBackend.Set(float64(frame.Mem.CPUBackend))
	m.memLookup.Set(float64(frame.Mem.Lookup))
	m.memLookupL1.Set(float64(frame.Mem.LookupL1))
	m.memThreadStates.Set(float64(frame.Mem.ThreadStates))
	m.memBlockLinks.Set(float64(frame.Mem.BlockLinks))
	m.memMisc.Set(float64(frame.Mem.Misc))
	m.memAllocator.Set(float64(frame.Mem.Allocator))
	m.memUnaccounted.Set(float64(frame.Mem.Unaccounted))

	for _, tl := range frame.ThreadLoads {
		tid := fmt.Sprintf("%d", tl.TID)
		m.threadLoad.WithLabelValues(tid).Set(float64(tl.LoadPercent))
		m.threadCycles.WithLabelValues(tid).Set(float64(tl.TotalCycles))
	}
}

// Serve starts an HTTP server exposing /metrics on listenAddr and blocks
// until ctx is cancelled, then shuts the server down gracefully.
func (m *Metrics) Serve(ctx context.Context, listenAddr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("promexport: listen on %s: %w", listenAddr, err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(listener) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("promexport: serve: %w", err)
		}
		return nil
	}
}

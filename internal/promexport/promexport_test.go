package promexport

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/srodi/felix/internal/fex/types"
)

func TestObserveSetsScalarGauges(t *testing.T) {
	m := New()
	m.Observe(types.ComputedFrame{
		ThreadsSampled: 3,
		FEXLoadPercent: 42.5,
		TotalJITTime:   1000,
		Mem:            types.MemSnapshot{Total: 4096, JITCode: 2048},
	})

	if got := testutil.ToFloat64(m.threadsSampled); got != 3 {
		t.Errorf("threads_sampled = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.fexLoadPercent); got != 42.5 {
		t.Errorf("fex_load_percent = %v, want 42.5", got)
	}
	if got := testutil.ToFloat64(m.memTotal); got != 4096 {
		t.Errorf("mem_total_anon_bytes = %v, want 4096", got)
	}
}

func TestObserveSetsPerThreadGauges(t *testing.T) {
	m := New()
	m.Observe(types.ComputedFrame{
		ThreadLoads: []types.ThreadLoad{
			{TID: 7, LoadPercent: 50, TotalCycles: 500},
			{TID: 9, LoadPercent: 10, TotalCycles: 100},
		},
	})

	if got := testutil.ToFloat64(m.threadLoad.WithLabelValues("7")); got != 50 {
		t.Errorf("thread_load_percent{tid=7} = %v, want 50", got)
	}
	if got := testutil.ToFloat64(m.threadCycles.WithLabelValues("9")); got != 100 {
		t.Errorf("thread_total_cycles{tid=9} = %v, want 100", got)
	}
}

func TestRegistryGatherIncludesFelixNamespace(t *testing.T) {
	m := New()
	m.Observe(types.ComputedFrame{TotalJITCount: 5})

	families, err := m.registry.Gather()
	if err != nil {
		t.Fatal(err)
	}

	var found bool
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "felix_total_jit_count") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a felix_total_jit_count metric family in the registry")
	}
}

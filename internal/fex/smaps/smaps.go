// Package smaps implements the resident-memory sampler (C2): it parses the
// observed process's /proc/<pid>/smaps map into a categorised MemSnapshot.
package smaps

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/srodi/felix/internal/fex/types"
)

// region identifies which MemSnapshot category is accumulating RSS for the
// mapping block currently being scanned.
type region int

const (
	regionNone region = iota
	regionJITCode
	regionOpDispatcher
	regionFrontend
	regionCPUBackend
	regionLookup
	regionLookupL1
	regionThreadStates
	regionBlockLinks
	regionMisc
	regionAllocator
	regionUnaccounted
)

// Sampler keeps /proc/<pid>/smaps open and re-reads it from the start on
// every Sample call, the same file-handle reuse the teacher's proc readers
// use to avoid a fresh open(2) per pass.
type Sampler struct {
	file *os.File
}

// procSmapsPath returns the path to pid's memory map. Tests override this
// to point at a throwaway file instead of a real /proc entry.
var procSmapsPath = func(pid int32) string {
	return fmt.Sprintf("/proc/%d/smaps", pid)
}

// Open opens /proc/<pid>/smaps for repeated sampling.
func Open(pid int32) (*Sampler, error) {
	path := procSmapsPath(pid)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("smaps: open %s: %w", path, err)
	}
	return &Sampler{file: f}, nil
}

// Close releases the underlying file handle.
func (s *Sampler) Close() error {
	return s.file.Close()
}

// Sample rewinds and re-reads the full map, returning a fresh categorised
// snapshot. It returns ok=false if the pass yielded zero total bytes,
// signalling the caller to keep the last good snapshot instead.
func (s *Sampler) Sample() (types.MemSnapshot, bool, error) {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return types.MemSnapshot{}, false, fmt.Errorf("smaps: seek: %w", err)
	}

	snap, err := parse(s.file)
	if err != nil {
		return types.MemSnapshot{}, false, fmt.Errorf("smaps: read: %w", err)
	}
	if snap.Total == 0 {
		return types.MemSnapshot{}, false, nil
	}
	snap.Sampled = true
	return snap, true, nil
}

// parse scans one full smaps listing and categorises every Rss: line by
// the name of the mapping block it falls under. Order of the name checks
// matters: more specific emulator tags must be tested before the generic
// "any other FEXMem" fallback.
func parse(r io.Reader) (types.MemSnapshot, error) {
	var snap types.MemSnapshot
	active := regionNone
	var begin, end uint64

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.Contains(line, "FEXMem"):
			if b, e, ok := parseAddressRange(line); ok {
				begin, end = b, e
			}
			active = classifyFEXMem(line)
			continue

		case strings.Contains(line, "JEMalloc") || strings.Contains(line, "FEXAllocator"):
			if b, e, ok := parseAddressRange(line); ok {
				begin, end = b, e
			}
			active = regionAllocator
			continue

		case strings.Contains(line, "VmFlags"):
			active = regionNone
			continue
		}

		if active == regionNone {
			continue
		}

		rss, ok := parseRSSLine(line)
		if !ok {
			continue
		}

		snap.Total += rss
		addTo(&snap, active, rss)

		if active == regionAllocator && rss > snap.LargestAnon.Size {
			snap.LargestAnon = types.LargestAnon{Begin: begin, End: end, Size: rss}
		}
	}
	if err := scanner.Err(); err != nil {
		return types.MemSnapshot{}, err
	}

	return snap, nil
}

func classifyFEXMem(line string) region {
	switch {
	case strings.Contains(line, "FEXMemJIT"):
		return regionJITCode
	case strings.Contains(line, "FEXMem_OpDispatcher"):
		return regionOpDispatcher
	case strings.Contains(line, "FEXMem_Frontend"):
		return regionFrontend
	case strings.Contains(line, "FEXMem_CPUBackend"):
		return regionCPUBackend
	case strings.Contains(line, "FEXMem_Lookup_L1"):
		return regionLookupL1
	case strings.Contains(line, "FEXMem_Lookup"):
		return regionLookup
	case strings.Contains(line, "FEXMem_ThreadState"):
		return regionThreadStates
	case strings.Contains(line, "FEXMem_BlockLinks"):
		return regionBlockLinks
	case strings.Contains(line, "FEXMem_Misc"):
		return regionMisc
	default:
		return regionUnaccounted
	}
}

func addTo(snap *types.MemSnapshot, active region, rss uint64) {
	switch active {
	case regionJITCode:
		snap.JITCode += rss
	case regionOpDispatcher:
		snap.OpDispatcher += rss
	case regionFrontend:
		snap.Frontend += rss
	case regionCPUBackend:
		snap.CPUBackend += rss
	case regionLookup:
		snap.Lookup += rss
	case regionLookupL1:
		snap.LookupL1 += rss
	case regionThreadStates:
		snap.ThreadStates += rss
	case regionBlockLinks:
		snap.BlockLinks += rss
	case regionMisc:
		snap.Misc += rss
	case regionAllocator:
		snap.Allocator += rss
	case regionUnaccounted:
		snap.Unaccounted += rss
	}
}

// parseAddressRange parses the leading "begin-end" hex address pair off a
// mapping header line, e.g. "359519000-359918000 ---p 00000000 00:00 0 [anon:FEXMem]".
func parseAddressRange(line string) (begin, end uint64, ok bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, 0, false
	}
	addr, rest, found := strings.Cut(fields[0], "-")
	if !found {
		return 0, 0, false
	}
	b, err := strconv.ParseUint(addr, 16, 64)
	if err != nil {
		return 0, 0, false
	}
	e, err := strconv.ParseUint(rest, 16, 64)
	if err != nil {
		return 0, 0, false
	}
	return b, e, true
}

// parseRSSLine parses a line of the form "Rss:                 560 kB" into
// a byte count. Any unit other than kB is treated as unparseable since
// /proc/<pid>/smaps has always reported Rss in kB.
func parseRSSLine(line string) (uint64, bool) {
	trimmed := strings.TrimSpace(line)
	rest, ok := strings.CutPrefix(trimmed, "Rss:")
	if !ok {
		return 0, false
	}
	fields := strings.Fields(rest)
	if len(fields) != 2 || fields[1] != "kB" {
		return 0, false
	}
	kb, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return 0, false
	}
	return kb * 1024, true
}

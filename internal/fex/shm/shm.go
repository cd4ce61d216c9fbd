// Package shm implements the shared-memory reader (C1): it opens, maps,
// resize-tracks, and safely samples the cross-process counter region the
// emulator publishes per observed process.
package shm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/srodi/felix/internal/fex/types"
)

// OpenError distinguishes the unrecoverable setup failures from the rest of
// this package's errors; callers can match it with errors.As to decide
// whether to fail the whole session.
type OpenError struct {
	Op  string
	Err error
}

func (e *OpenError) Error() string { return fmt.Sprintf("shm: %s: %v", e.Op, e.Err) }
func (e *OpenError) Unwrap() error { return e.Err }

// ErrVersionMismatch is returned by ValidateVersion when the producer's
// header version does not match types.StatsVersion.
type ErrVersionMismatch struct {
	Got, Want uint8
}

func (e *ErrVersionMismatch) Error() string {
	return fmt.Sprintf("shm: stats version mismatch: got %d, want %d", e.Got, e.Want)
}

// minMappedSize is the smallest region Open will accept. It is
// deliberately smaller than types.HeaderSize: it only guards against an
// obviously wrong or truncated region, not a full layout check, since a
// conforming producer always writes the complete header before publishing
// the region's path.
const minMappedSize = 32

// Truncated is a non-fatal warning: a walk hit an out-of-range offset and
// stopped early. The pass continues with the records already collected.
type Truncated struct {
	AtOffset uint32
}

func (e *Truncated) Error() string {
	return fmt.Sprintf("shm: thread list truncated at offset %d", e.AtOffset)
}

// Reader owns a read-only mapping of a single observed process's
// "fex-<pid>-stats" shared-memory region. Every read it returns is an owned
// copy; no caller ever holds a pointer into the mapping.
type Reader struct {
	file *os.File
	base []byte // mmap'd region, length == size
	size uint32
}

// shmPath returns the filesystem path backing the POSIX shared-memory
// object the emulator creates for pid. On Linux, POSIX shm objects opened
// with shm_open are files under /dev/shm. Tests override this to point at
// a throwaway file instead of touching the real /dev/shm.
var shmPath = func(pid int32) string {
	return fmt.Sprintf("/dev/shm/fex-%d-stats", pid)
}

// Open attaches to the shared-memory region for pid: opens it read-only,
// validates its minimum size, and maps the full length read-only/shared.
//
// Open does not validate the header version; callers should call
// ReadHeader and compare against types.StatsVersion themselves, since a
// version mismatch is a distinct, more specific failure than "could not
// open".
func Open(pid int32) (*Reader, error) {
	path := shmPath(pid)
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, &OpenError{Op: "open", Err: err}
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &OpenError{Op: "stat", Err: err}
	}
	size := info.Size()
	if size < minMappedSize {
		f.Close()
		return nil, &OpenError{Op: "validate-size", Err: fmt.Errorf("region too small: %d bytes (minimum %d)", size, minMappedSize)}
	}

	base, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, &OpenError{Op: "mmap", Err: err}
	}

	return &Reader{file: f, base: base, size: uint32(size)}, nil
}

// Close unmaps the region and closes the underlying file descriptor.
func (r *Reader) Close() error {
	var err error
	if r.base != nil {
		err = unix.Munmap(r.base)
		r.base = nil
	}
	if r.file != nil {
		if cerr := r.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// ReadHeader performs a volatile read of the 64-byte header and returns an
// owned copy; Head and Size are read with the same atomic-load discipline
// used elsewhere because the producer updates them without coordination.
func (r *Reader) ReadHeader() types.Header {
	b := r.base

	version := b[0]
	appType := types.AppTypeFromU8(b[1])
	statsSize := binary.LittleEndian.Uint16(b[2:4])
	fexVersion := cStr(b[4:52])
	head := atomicLoadUint32(b, 52)
	size := atomicLoadUint32(b, 56)

	return types.Header{
		Version:         version,
		AppType:         appType,
		ThreadStatsSize: statsSize,
		FEXVersion:      fexVersion,
		Head:            head,
		Size:            size,
	}
}

// ReadThreadStats walks the producer's singly-linked list of thread records
// starting at the header's Head offset, copying each record with the
// bounds-checked, atomic-width discipline described in copyRecord.
//
// If a Next offset would read past the current mapped size, the walk stops
// and returns the records collected so far along with a *Truncated error;
// this is never fatal to the caller's sampling pass.
func (r *Reader) ReadThreadStats() ([]types.ThreadStats, error) {
	header := r.ReadHeader()

	// Per the producer's declared record size, copy only what it actually
	// wrote per record; a producer built against an older or newer layout
	// may declare a size smaller or larger than types.ThreadStatsSize.
	n := int(header.ThreadStatsSize)
	if n <= 0 || n > types.ThreadStatsSize {
		n = types.ThreadStatsSize
	}

	var (
		result []types.ThreadStats
		offset = header.Head
	)

	for offset != 0 {
		if uint64(offset)+uint64(n) > uint64(len(r.base)) {
			return result, &Truncated{AtOffset: offset}
		}

		var rec types.ThreadStats
		if n == types.ThreadStatsSize {
			rec = copyRecord(r.base[offset : offset+uint32(n)])
		} else {
			var staged [types.ThreadStatsSize]byte
			copy(staged[:], r.base[offset:offset+uint32(n)])
			rec = copyRecord(staged[:])
		}
		result = append(result, rec)
		offset = rec.Next
	}

	return result, nil
}

// CheckResize re-reads the header's Size field and, if it differs from the
// currently mapped length, unmaps and remaps at the new length. The mapping
// base may move; callers must not cache slices derived from the old base
// across a call to CheckResize.
func (r *Reader) CheckResize() error {
	header := r.ReadHeader()
	newSize := header.Size
	if newSize == 0 || newSize == r.size {
		return nil
	}

	if err := unix.Munmap(r.base); err != nil {
		return &OpenError{Op: "munmap-resize", Err: err}
	}

	base, err := unix.Mmap(int(r.file.Fd()), 0, int(newSize), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return &OpenError{Op: "mmap-resize", Err: err}
	}

	r.base = base
	r.size = newSize
	return nil
}

// Size returns the currently mapped length in bytes.
func (r *Reader) Size() uint32 { return r.size }

// ValidateVersion checks a header's Version against the stats layout this
// package knows how to read, returning *ErrVersionMismatch if they differ.
func ValidateVersion(h types.Header) error {
	if h.Version != types.StatsVersion {
		return &ErrVersionMismatch{Got: h.Version, Want: types.StatsVersion}
	}
	return nil
}

// cStr trims a fixed-width NUL-terminated byte field down to its text
// content.
func cStr(b []byte) string {
	n := bytes.IndexByte(b, 0)
	if n == -1 {
		return string(b)
	}
	return string(b[:n])
}

// atomicLoadUint32 performs a single-copy-atomic 32-bit load at the given
// byte offset of a producer-writable region.
func atomicLoadUint32(b []byte, offset int) uint32 {
	return loadUint32(b[offset : offset+4])
}

package shm

import (
	"sync/atomic"
	"unsafe"
)

// loadUint32 performs a single-copy-atomic load of a naturally aligned
// 32-bit word. b must be at least 4 bytes and its address must already be
// 4-byte aligned, which holds for every field offset used in this package
// since the producer's layout is itself word-aligned.
func loadUint32(b []byte) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&b[0])))
}

// loadUint64 performs a single-copy-atomic load of a naturally aligned
// 64-bit word, the unit the producer uses for every counter field.
func loadUint64(b []byte) uint64 {
	return atomic.LoadUint64((*uint64)(unsafe.Pointer(&b[0])))
}

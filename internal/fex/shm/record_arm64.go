//go:build arm64

package shm

import "github.com/srodi/felix/internal/fex/types"

// copyRecord copies one ThreadStats record out of shared memory in
// naturally aligned 16-byte groups, each read as a pair of atomic 64-bit
// loads. This is the production path: it runs on the same arm64 host the
// emulator's own writer barrier targets, so each group observes either the
// old or the new value of the producer's last write, never a tear.
func copyRecord(b []byte) types.ThreadStats {
	g0lo, g0hi := loadUint64(b[0:8]), loadUint64(b[8:16])
	g1lo, g1hi := loadUint64(b[16:24]), loadUint64(b[24:32])
	g2lo, g2hi := loadUint64(b[32:40]), loadUint64(b[40:48])
	g3lo, g3hi := loadUint64(b[48:56]), loadUint64(b[56:64])
	g4lo, g4hi := loadUint64(b[64:72]), loadUint64(b[72:80])

	return types.ThreadStats{
		Next:               uint32(g0lo),
		TID:                uint32(g0lo >> 32),
		JITTime:            g0hi,
		SignalTime:         g1lo,
		SigbusCount:        g1hi,
		SMCCount:           g2lo,
		FloatFallbackCount: g2hi,
		CacheMissCount:     g3lo,
		CacheReadLockTime:  g3hi,
		CacheWriteLockTime: g4lo,
		JITCount:           g4hi,
	}
}

//go:build !arm64

package shm

import (
	"encoding/binary"

	"github.com/srodi/felix/internal/fex/types"
)

// copyRecord copies one ThreadStats record out of shared memory with a
// plain, non-atomic byte-wise decode. This path only runs on development
// hosts that are not the emulator's actual arm64 target, where there is no
// concurrent writer to tear against in practice.
func copyRecord(b []byte) types.ThreadStats {
	return types.ThreadStats{
		Next:               binary.LittleEndian.Uint32(b[0:4]),
		TID:                binary.LittleEndian.Uint32(b[4:8]),
		JITTime:            binary.LittleEndian.Uint64(b[8:16]),
		SignalTime:         binary.LittleEndian.Uint64(b[16:24]),
		SigbusCount:        binary.LittleEndian.Uint64(b[24:32]),
		SMCCount:           binary.LittleEndian.Uint64(b[32:40]),
		FloatFallbackCount: binary.LittleEndian.Uint64(b[40:48]),
		CacheMissCount:     binary.LittleEndian.Uint64(b[48:56]),
		CacheReadLockTime:  binary.LittleEndian.Uint64(b[56:64]),
		CacheWriteLockTime: binary.LittleEndian.Uint64(b[64:72]),
		JITCount:           binary.LittleEndian.Uint64(b[72:80]),
	}
}

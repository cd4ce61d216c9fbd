package shm

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/srodi/felix/internal/fex/types"
)

// buildRegion assembles a synthetic producer region: a 64-byte header
// followed by the given thread records laid out back to back, with Head
// pointing at the first one and each record's Next pointing at the
// following record's offset (0 for the last).
func buildRegion(t *testing.T, fexVersion string, records []types.ThreadStats) []byte {
	t.Helper()

	headOffset := uint32(0)
	if len(records) > 0 {
		headOffset = types.HeaderSize
	}

	totalSize := types.HeaderSize + len(records)*types.ThreadStatsSize
	buf := make([]byte, totalSize)

	buf[0] = types.StatsVersion
	buf[1] = byte(types.AppTypeLinux64)
	binary.LittleEndian.PutUint16(buf[2:4], types.ThreadStatsSize)
	copy(buf[4:52], fexVersion)
	binary.LittleEndian.PutUint32(buf[52:56], headOffset)
	binary.LittleEndian.PutUint32(buf[56:60], uint32(totalSize))

	for i, rec := range records {
		offset := types.HeaderSize + i*types.ThreadStatsSize
		next := uint32(0)
		if i+1 < len(records) {
			next = uint32(types.HeaderSize + (i+1)*types.ThreadStatsSize)
		}
		putRecord(buf[offset:offset+types.ThreadStatsSize], rec, next)
	}

	return buf
}

func putRecord(b []byte, rec types.ThreadStats, next uint32) {
	binary.LittleEndian.PutUint32(b[0:4], next)
	binary.LittleEndian.PutUint32(b[4:8], rec.TID)
	binary.LittleEndian.PutUint64(b[8:16], rec.JITTime)
	binary.LittleEndian.PutUint64(b[16:24], rec.SignalTime)
	binary.LittleEndian.PutUint64(b[24:32], rec.SigbusCount)
	binary.LittleEndian.PutUint64(b[32:40], rec.SMCCount)
	binary.LittleEndian.PutUint64(b[40:48], rec.FloatFallbackCount)
	binary.LittleEndian.PutUint64(b[48:56], rec.CacheMissCount)
	binary.LittleEndian.PutUint64(b[56:64], rec.CacheReadLockTime)
	binary.LittleEndian.PutUint64(b[64:72], rec.CacheWriteLockTime)
	binary.LittleEndian.PutUint64(b[72:80], rec.JITCount)
}

func withRegion(t *testing.T, data []byte) func() {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fex-stats")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	prev := shmPath
	shmPath = func(pid int32) string { return path }
	return func() { shmPath = prev }
}

func TestOpenReadsHeaderFields(t *testing.T) {
	data := buildRegion(t, "FEX-2024.10", nil)
	defer withRegion(t, data)()

	r, err := Open(123)
	require.NoError(t, err)
	defer r.Close()

	h := r.ReadHeader()
	require.Equal(t, types.StatsVersion, h.Version)
	require.Equal(t, types.AppTypeLinux64, h.AppType)
	require.Equal(t, "FEX-2024.10", h.FEXVersion)
	require.Equal(t, uint32(0), h.Head)
	require.NoError(t, ValidateVersion(h))
}

func TestOpenRejectsUndersizedRegion(t *testing.T) {
	defer withRegion(t, make([]byte, 16))()

	_, err := Open(1)
	require.Error(t, err)
}

func TestReadThreadStatsWalksList(t *testing.T) {
	records := []types.ThreadStats{
		{TID: 10, JITTime: 1000, JITCount: 5},
		{TID: 11, JITTime: 2000, SigbusCount: 3},
		{TID: 12, JITTime: 3000, CacheMissCount: 7},
	}
	data := buildRegion(t, "FEX-test", records)
	defer withRegion(t, data)()

	r, err := Open(42)
	require.NoError(t, err)
	defer r.Close()

	got, err := r.ReadThreadStats()
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, uint32(10), got[0].TID)
	require.Equal(t, uint64(1000), got[0].JITTime)
	require.Equal(t, uint32(11), got[1].TID)
	require.Equal(t, uint32(12), got[2].TID)
	require.Equal(t, uint64(7), got[2].CacheMissCount)
}

func TestReadThreadStatsEmptyList(t *testing.T) {
	data := buildRegion(t, "FEX-test", nil)
	defer withRegion(t, data)()

	r, err := Open(7)
	require.NoError(t, err)
	defer r.Close()

	got, err := r.ReadThreadStats()
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestReadThreadStatsTruncatedListStopsEarly(t *testing.T) {
	records := []types.ThreadStats{
		{TID: 1, JITTime: 10},
	}
	data := buildRegion(t, "FEX-test", records)
	// Corrupt the sole record's Next pointer to point past the mapped region.
	binary.LittleEndian.PutUint32(data[types.HeaderSize:types.HeaderSize+4], uint32(len(data)+1000))
	defer withRegion(t, data)()

	r, err := Open(7)
	require.NoError(t, err)
	defer r.Close()

	got, err := r.ReadThreadStats()
	require.Error(t, err)
	var trunc *Truncated
	require.ErrorAs(t, err, &trunc)
	require.Len(t, got, 1)
}

func TestValidateVersionMismatch(t *testing.T) {
	err := ValidateVersion(types.Header{Version: types.StatsVersion + 1})
	require.Error(t, err)
	var mismatch *ErrVersionMismatch
	require.ErrorAs(t, err, &mismatch)
}

func TestCheckResizeRemaps(t *testing.T) {
	data := buildRegion(t, "FEX-test", []types.ThreadStats{{TID: 1, JITTime: 1}})
	path := filepath.Join(t.TempDir(), "fex-stats")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	prev := shmPath
	shmPath = func(pid int32) string { return path }
	defer func() { shmPath = prev }()

	r, err := Open(1)
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, uint32(len(data)), r.Size())

	grown := buildRegion(t, "FEX-test", []types.ThreadStats{{TID: 1, JITTime: 1}, {TID: 2, JITTime: 2}})
	require.NoError(t, os.WriteFile(path, grown, 0o600))

	require.NoError(t, r.CheckResize())
	require.Equal(t, uint32(len(grown)), r.Size())
}

// Package recording implements the recording writer (C7) and the
// recording reader / replay source (C8): a compressed, length-framed file
// format that round-trips a ComputedFrame stream losslessly.
package recording

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/minio/highwayhash"

	"github.com/srodi/felix/internal/fex/types"
)

// Magic and FormatVersion identify this file format; EOFMarker closes a
// cleanly finished recording.
var (
	Magic     = [4]byte{'W', 'T', 'F', 'R'}
	EOFMarker = [4]byte{'W', 'E', 'O', 'F'}
)

// FormatVersion is bumped whenever the frame encoding below changes in a
// way that breaks decoding of older files.
const FormatVersion uint8 = 1

// checksumKey is the fixed HighwayHash key for the per-frame integrity
// digest. This is an error-detection checksum, not a MAC: the key only
// needs to be stable across writer and reader, not secret.
var checksumKey [32]byte

// checksumSize is the width of the appended HighwayHash-64 digest.
const checksumSize = 8

func checksum(b []byte) ([]byte, error) {
	h, err := highwayhash.New64(checksumKey[:])
	if err != nil {
		return nil, err
	}
	if _, err := h.Write(b); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// writeUvarint appends a little-endian base-128 varint, the same encoding
// encoding/binary.PutUvarint produces.
func writeUvarint(w *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.Write(tmp[:n])
}

func readUvarint(r *bufio.Reader) (uint64, error) {
	return binary.ReadUvarint(r)
}

func writeString(w *bytes.Buffer, s string) {
	writeUvarint(w, uint64(len(s)))
	w.WriteString(s)
}

func readString(r *bufio.Reader) (string, error) {
	n, err := readUvarint(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeFloat32(w *bytes.Buffer, f float32) {
	binary.Write(w, binary.LittleEndian, math.Float32bits(f))
}

func readFloat32(r *bufio.Reader) (float32, error) {
	var bits uint32
	if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}

func writeFloat64(w *bytes.Buffer, f float64) {
	binary.Write(w, binary.LittleEndian, math.Float64bits(f))
}

func readFloat64(r *bufio.Reader) (float64, error) {
	var bits uint64
	if err := binary.Read(r, binary.LittleEndian, &bits); err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

// encodeMetadata serialises SessionMetadata in declared-field order, no
// field tags, matching the fixed-layout encoding philosophy the rest of
// this codebase uses for the shared-memory wire format.
func encodeMetadata(m types.SessionMetadata) []byte {
	var buf bytes.Buffer
	writeString(&buf, m.SessionID)
	binary.Write(&buf, binary.LittleEndian, m.PID)
	writeString(&buf, m.FEXVersion)
	buf.WriteByte(byte(m.AppType))
	buf.WriteByte(m.StatsVersion)
	binary.Write(&buf, binary.LittleEndian, m.CycleCounterFrequencyHz)
	writeUvarint(&buf, uint64(m.HardwareConcurrency))
	binary.Write(&buf, binary.LittleEndian, m.RecordingStartUnixNano)
	return buf.Bytes()
}

func decodeMetadata(r *bufio.Reader) (types.SessionMetadata, error) {
	var m types.SessionMetadata
	var err error

	if m.SessionID, err = readString(r); err != nil {
		return m, err
	}
	if err = binary.Read(r, binary.LittleEndian, &m.PID); err != nil {
		return m, err
	}
	if m.FEXVersion, err = readString(r); err != nil {
		return m, err
	}
	appType, err := r.ReadByte()
	if err != nil {
		return m, err
	}
	m.AppType = types.AppTypeFromU8(appType)
	if m.StatsVersion, err = r.ReadByte(); err != nil {
		return m, err
	}
	if err = binary.Read(r, binary.LittleEndian, &m.CycleCounterFrequencyHz); err != nil {
		return m, err
	}
	hw, err := readUvarint(r)
	if err != nil {
		return m, err
	}
	m.HardwareConcurrency = int(hw)
	if err = binary.Read(r, binary.LittleEndian, &m.RecordingStartUnixNano); err != nil {
		return m, err
	}
	return m, nil
}

// encodeFrame serialises a ComputedFrame plus its raw per-thread deltas in
// declared order and appends a HighwayHash-64 checksum over the payload.
func encodeFrame(frame types.ComputedFrame) []byte {
	var buf bytes.Buffer

	binary.Write(&buf, binary.LittleEndian, frame.WallClockUnixNano)
	binary.Write(&buf, binary.LittleEndian, frame.MonotonicNano)
	binary.Write(&buf, binary.LittleEndian, frame.SamplePeriodNano)
	writeUvarint(&buf, uint64(frame.ThreadsSampled))

	binary.Write(&buf, binary.LittleEndian, frame.TotalJITTime)
	binary.Write(&buf, binary.LittleEndian, frame.TotalSignalTime)
	binary.Write(&buf, binary.LittleEndian, frame.TotalSigbusCount)
	binary.Write(&buf, binary.LittleEndian, frame.TotalSMCCount)
	binary.Write(&buf, binary.LittleEndian, frame.TotalFloatFallbackCount)
	binary.Write(&buf, binary.LittleEndian, frame.TotalCacheMissCount)
	binary.Write(&buf, binary.LittleEndian, frame.TotalCacheReadLockTime)
	binary.Write(&buf, binary.LittleEndian, frame.TotalCacheWriteLockTime)
	binary.Write(&buf, binary.LittleEndian, frame.TotalJITCount)
	binary.Write(&buf, binary.LittleEndian, frame.TotalJITInvocations)

	writeFloat64(&buf, frame.FEXLoadPercent)

	writeUvarint(&buf, uint64(len(frame.ThreadLoads)))
	for _, tl := range frame.ThreadLoads {
		binary.Write(&buf, binary.LittleEndian, tl.TID)
		writeFloat32(&buf, tl.LoadPercent)
		binary.Write(&buf, binary.LittleEndian, tl.TotalCycles)
	}

	encodeMemSnapshot(&buf, frame.Mem)

	writeUvarint(&buf, uint64(len(frame.PerThreadDeltas)))
	for _, d := range frame.PerThreadDeltas {
		encodeThreadDelta(&buf, d)
	}

	payload := buf.Bytes()
	sum, err := checksum(payload)
	if err != nil {
		// highwayhash.New64 only fails on a key of the wrong length; our
		// key is a fixed-size array, so this is unreachable.
		panic(fmt.Sprintf("recording: checksum: %v", err))
	}
	return append(payload, sum...)
}

func decodeFrame(raw []byte) (types.ComputedFrame, error) {
	if len(raw) < checksumSize {
		return types.ComputedFrame{}, fmt.Errorf("recording: frame too short: %d bytes", len(raw))
	}
	payload, sum := raw[:len(raw)-checksumSize], raw[len(raw)-checksumSize:]

	want, err := checksum(payload)
	if err != nil {
		return types.ComputedFrame{}, err
	}
	if !bytes.Equal(want, sum) {
		return types.ComputedFrame{}, fmt.Errorf("recording: frame checksum mismatch")
	}

	r := bufio.NewReader(bytes.NewReader(payload))
	var frame types.ComputedFrame

	if err := binary.Read(r, binary.LittleEndian, &frame.WallClockUnixNano); err != nil {
		return frame, err
	}
	if err := binary.Read(r, binary.LittleEndian, &frame.MonotonicNano); err != nil {
		return frame, err
	}
	if err := binary.Read(r, binary.LittleEndian, &frame.SamplePeriodNano); err != nil {
		return frame, err
	}
	threadsSampled, err := readUvarint(r)
	if err != nil {
		return frame, err
	}
	frame.ThreadsSampled = int(threadsSampled)

	for _, field := range []*uint64{
		&frame.TotalJITTime, &frame.TotalSignalTime, &frame.TotalSigbusCount,
		&frame.TotalSMCCount, &frame.TotalFloatFallbackCount, &frame.TotalCacheMissCount,
		&frame.TotalCacheReadLockTime, &frame.TotalCacheWriteLockTime, &frame.TotalJITCount,
		&frame.TotalJITInvocations,
	} {
		if err := binary.Read(r, binary.LittleEndian, field); err != nil {
			return frame, err
		}
	}

	if frame.FEXLoadPercent, err = readFloat64(r); err != nil {
		return frame, err
	}

	nLoads, err := readUvarint(r)
	if err != nil {
		return frame, err
	}
	frame.ThreadLoads = make([]types.ThreadLoad, nLoads)
	for i := range frame.ThreadLoads {
		if err := binary.Read(r, binary.LittleEndian, &frame.ThreadLoads[i].TID); err != nil {
			return frame, err
		}
		if frame.ThreadLoads[i].LoadPercent, err = readFloat32(r); err != nil {
			return frame, err
		}
		if err := binary.Read(r, binary.LittleEndian, &frame.ThreadLoads[i].TotalCycles); err != nil {
			return frame, err
		}
	}

	if frame.Mem, err = decodeMemSnapshot(r); err != nil {
		return frame, err
	}

	nDeltas, err := readUvarint(r)
	if err != nil {
		return frame, err
	}
	frame.PerThreadDeltas = make([]types.ThreadDelta, nDeltas)
	for i := range frame.PerThreadDeltas {
		if frame.PerThreadDeltas[i], err = decodeThreadDelta(r); err != nil {
			return frame, err
		}
	}

	return frame, nil
}

func encodeMemSnapshot(buf *bytes.Buffer, m types.MemSnapshot) {
	if m.Sampled {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	for _, v := range []uint64{
		m.Total, m.JITCode, m.OpDispatcher, m.Frontend, m.CPUBackend,
		m.Lookup, m.LookupL1, m.ThreadStates, m.BlockLinks, m.Misc,
		m.Allocator, m.Unaccounted,
	} {
		binary.Write(buf, binary.LittleEndian, v)
	}
	binary.Write(buf, binary.LittleEndian, m.LargestAnon.Begin)
	binary.Write(buf, binary.LittleEndian, m.LargestAnon.End)
	binary.Write(buf, binary.LittleEndian, m.LargestAnon.Size)
}

func decodeMemSnapshot(r *bufio.Reader) (types.MemSnapshot, error) {
	var m types.MemSnapshot
	sampled, err := r.ReadByte()
	if err != nil {
		return m, err
	}
	m.Sampled = sampled != 0

	fields := []*uint64{
		&m.Total, &m.JITCode, &m.OpDispatcher, &m.Frontend, &m.CPUBackend,
		&m.Lookup, &m.LookupL1, &m.ThreadStates, &m.BlockLinks, &m.Misc,
		&m.Allocator, &m.Unaccounted,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return m, err
		}
	}
	if err := binary.Read(r, binary.LittleEndian, &m.LargestAnon.Begin); err != nil {
		return m, err
	}
	if err := binary.Read(r, binary.LittleEndian, &m.LargestAnon.End); err != nil {
		return m, err
	}
	if err := binary.Read(r, binary.LittleEndian, &m.LargestAnon.Size); err != nil {
		return m, err
	}
	return m, nil
}

func encodeThreadDelta(buf *bytes.Buffer, d types.ThreadDelta) {
	binary.Write(buf, binary.LittleEndian, d.TID)
	binary.Write(buf, binary.LittleEndian, d.JITTime)
	binary.Write(buf, binary.LittleEndian, d.SignalTime)
	binary.Write(buf, binary.LittleEndian, d.SigbusCount)
	binary.Write(buf, binary.LittleEndian, d.SMCCount)
	binary.Write(buf, binary.LittleEndian, d.FloatFallbackCount)
	binary.Write(buf, binary.LittleEndian, d.CacheMissCount)
	binary.Write(buf, binary.LittleEndian, d.CacheReadLockTime)
	binary.Write(buf, binary.LittleEndian, d.CacheWriteLockTime)
	binary.Write(buf, binary.LittleEndian, d.JITCount)
}

func decodeThreadDelta(r *bufio.Reader) (types.ThreadDelta, error) {
	var d types.ThreadDelta
	if err := binary.Read(r, binary.LittleEndian, &d.TID); err != nil {
		return d, err
	}
	fields := []*uint64{
		&d.JITTime, &d.SignalTime, &d.SigbusCount, &d.SMCCount,
		&d.FloatFallbackCount, &d.CacheMissCount, &d.CacheReadLockTime,
		&d.CacheWriteLockTime, &d.JITCount,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return d, err
		}
	}
	return d, nil
}

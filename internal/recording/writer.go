package recording

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/srodi/felix/internal/fex/types"
)

// Writer persists a header and a sequence of frames to a compressed,
// length-framed file. It satisfies source.FrameWriter.
type Writer struct {
	file     *os.File
	encoder  *zstd.Encoder
	finished bool
}

// Create opens path, writes the uncompressed magic and format version,
// then the session metadata through a streaming zstd compressor. Every
// subsequent WriteFrame call appends one more frame to that same stream.
func Create(path string, metadata types.SessionMetadata) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("recording: create %s: %w", path, err)
	}

	if _, err := f.Write(Magic[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("recording: write magic: %w", err)
	}
	if _, err := f.Write([]byte{FormatVersion}); err != nil {
		f.Close()
		return nil, fmt.Errorf("recording: write format version: %w", err)
	}

	encoder, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("recording: new zstd writer: %w", err)
	}

	w := &Writer{file: f, encoder: encoder}
	metaBytes := encodeMetadata(metadata)
	if err := w.writeVarintBlock(metaBytes); err != nil {
		encoder.Close()
		f.Close()
		return nil, fmt.Errorf("recording: write metadata: %w", err)
	}
	return w, nil
}

func (w *Writer) writeVarintBlock(b []byte) error {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(b)))
	if _, err := w.encoder.Write(lenBuf[:n]); err != nil {
		return err
	}
	_, err := w.encoder.Write(b)
	return err
}

// WriteFrame appends one frame to the stream: a little-endian u32 length
// prefix followed by the frame's encoded bytes (payload plus checksum).
func (w *Writer) WriteFrame(frame types.ComputedFrame) error {
	if w.finished {
		return fmt.Errorf("recording: write after finish")
	}
	encoded := encodeFrame(frame)

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(encoded)))
	if _, err := w.encoder.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("recording: write frame length: %w", err)
	}
	if _, err := w.encoder.Write(encoded); err != nil {
		return fmt.Errorf("recording: write frame: %w", err)
	}
	return nil
}

// Finish writes the EOF marker, flushes and closes the compressor, and
// closes the file. A recording abandoned without calling Finish is still
// readable, just truncated at the last complete frame — see Open in
// reader.go.
func (w *Writer) Finish() error {
	if w.finished {
		return nil
	}
	w.finished = true

	if _, err := w.encoder.Write(EOFMarker[:]); err != nil {
		w.encoder.Close()
		w.file.Close()
		return fmt.Errorf("recording: write eof marker: %w", err)
	}
	if err := w.encoder.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("recording: close encoder: %w", err)
	}
	return w.file.Close()
}

// Close abandons the recording without writing the EOF marker, leaving a
// truncated-but-readable file. Prefer Finish for a clean close.
func (w *Writer) Close() error {
	if w.finished {
		return nil
	}
	w.encoder.Close()
	return w.file.Close()
}

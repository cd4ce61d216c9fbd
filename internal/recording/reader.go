package recording

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/srodi/felix/internal/fex/types"
)

// ErrTruncated is returned by Open when the file ends before the
// EOF marker; the frames successfully decoded up to that point are still
// returned and usable.
type ErrTruncated struct {
	FramesRead int
}

func (e *ErrTruncated) Error() string {
	return fmt.Sprintf("recording: truncated after %d frames", e.FramesRead)
}

// Reader holds a fully decoded recording: its session metadata and every
// frame successfully read, in file order.
type Reader struct {
	metadata types.SessionMetadata
	frames   []types.ComputedFrame
}

// Open validates the magic and format version, decodes the session
// metadata, then decodes every length-prefixed frame until the EOF marker
// or the stream ends. A truncated stream is not an error condition the
// caller must treat as fatal: Open still returns the *Reader with every
// frame read so far, together with a non-nil *ErrTruncated.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("recording: open %s: %w", path, err)
	}
	defer f.Close()

	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return nil, fmt.Errorf("recording: read magic: %w", err)
	}
	if magic != Magic {
		return nil, fmt.Errorf("recording: bad magic %q", magic)
	}

	var version [1]byte
	if _, err := io.ReadFull(f, version[:]); err != nil {
		return nil, fmt.Errorf("recording: read format version: %w", err)
	}
	if version[0] != FormatVersion {
		return nil, fmt.Errorf("recording: unsupported format version %d", version[0])
	}

	decoder, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("recording: new zstd reader: %w", err)
	}
	defer decoder.Close()

	br := bufio.NewReader(decoder)

	metaLen, err := readUvarint(br)
	if err != nil {
		return nil, fmt.Errorf("recording: read metadata length: %w", err)
	}
	metaBytes := make([]byte, metaLen)
	if _, err := io.ReadFull(br, metaBytes); err != nil {
		return nil, fmt.Errorf("recording: read metadata: %w", err)
	}
	metadata, err := decodeMetadata(bufio.NewReader(bytes.NewReader(metaBytes)))
	if err != nil {
		return nil, fmt.Errorf("recording: decode metadata: %w", err)
	}

	frames, truncated := readAllFrames(br)

	r := &Reader{metadata: metadata, frames: frames}
	if truncated {
		return r, &ErrTruncated{FramesRead: len(frames)}
	}
	return r, nil
}

// readAllFrames reads length-prefixed frames until it sees EOFMarker
// (clean=true returned as truncated=false) or the stream runs out
// (truncated=true). A read error partway through a frame's length or body
// also counts as truncation, per the "truncation is a warning, not an
// error" policy.
func readAllFrames(br *bufio.Reader) (frames []types.ComputedFrame, truncated bool) {
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
			return frames, true
		}

		if lenBuf == EOFMarker {
			return frames, false
		}

		frameLen := binary.LittleEndian.Uint32(lenBuf[:])
		body := make([]byte, frameLen)
		if _, err := io.ReadFull(br, body); err != nil {
			return frames, true
		}

		frame, err := decodeFrame(body)
		if err != nil {
			return frames, true
		}
		frames = append(frames, frame)
	}
}

// Metadata returns the recording's session metadata.
func (r *Reader) Metadata() types.SessionMetadata { return r.metadata }

// FrameCount returns the number of frames successfully decoded.
func (r *Reader) FrameCount() int { return len(r.frames) }

// FrameAt returns the frame at index, or ok=false if index is out of
// range.
func (r *Reader) FrameAt(index int) (types.ComputedFrame, bool) {
	if index < 0 || index >= len(r.frames) {
		return types.ComputedFrame{}, false
	}
	return r.frames[index], true
}

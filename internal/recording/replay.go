package recording

import (
	"time"

	"github.com/srodi/felix/internal/fex/types"
	"github.com/srodi/felix/internal/sampler/accumulator"
)

// AllowedSpeeds is the fixed set of playback speeds SetSpeed accepts.
var AllowedSpeeds = []float64{0.25, 0.5, 1, 2, 4, 8, 16}

// ReplaySource replays a decoded Reader's frames on their original cadence
// (scaled by speed) and exposes the same Source contract a LiveSource
// does, plus PlaybackControls.
type ReplaySource struct {
	reader *Reader

	index     int
	speed     float64
	paused    bool
	finished  bool
	lastEmit  time.Time
	histogram []types.HistogramEntry
}

// NewReplaySource wraps an already-opened Reader for playback, starting
// at frame 0, speed 1, unpaused.
func NewReplaySource(r *Reader) *ReplaySource {
	return &ReplaySource{reader: r, speed: 1}
}

// Metadata returns the recording's session metadata.
func (s *ReplaySource) Metadata() types.SessionMetadata { return s.reader.Metadata() }

// IsLive always returns false for a ReplaySource.
func (s *ReplaySource) IsLive() bool { return false }

// NextFrame implements the C8 playback contract: paused or finished yield
// nothing; otherwise a frame is emitted once its scaled period has
// elapsed since the last emission.
func (s *ReplaySource) NextFrame() (types.ComputedFrame, bool) {
	if s.paused || s.finished {
		return types.ComputedFrame{}, false
	}

	frame, ok := s.reader.FrameAt(s.index)
	if !ok {
		s.finished = true
		return types.ComputedFrame{}, false
	}

	now := time.Now()
	if !s.lastEmit.IsZero() {
		required := time.Duration(float64(frame.SamplePeriodNano) / s.speed)
		if now.Sub(s.lastEmit) < required {
			return types.ComputedFrame{}, false
		}
	}

	s.lastEmit = now
	emittedIndex := s.index
	s.index++
	if emittedIndex > 0 {
		s.appendHistogram(frame)
	}
	if s.index >= s.reader.FrameCount() {
		s.finished = true
	}
	return frame, true
}

func (s *ReplaySource) appendHistogram(frame types.ComputedFrame) {
	entry := accumulator.ClassifyFrame(frame, s.reader.Metadata().CycleCounterFrequencyHz)
	if len(s.histogram) >= accumulator.HistogramCapacity {
		s.histogram = append(s.histogram[1:], entry)
		return
	}
	s.histogram = append(s.histogram, entry)
}

// Histogram returns the histogram ring as reconstructed up to the current
// playback position.
func (s *ReplaySource) Histogram() []types.HistogramEntry { return s.histogram }

// Pause stops frame emission without moving the playback position.
func (s *ReplaySource) Pause() { s.paused = true }

// Resume clears a prior Pause and resets last-emit timing, so the next
// NextFrame call emits immediately instead of waiting out a period.
func (s *ReplaySource) Resume() {
	s.paused = false
	s.lastEmit = time.Time{}
}

// TogglePause flips the paused state.
func (s *ReplaySource) TogglePause() {
	if s.paused {
		s.Resume()
	} else {
		s.Pause()
	}
}

// SetSpeed changes the playback speed multiplier. Any positive value is
// accepted; it is not checked against AllowedSpeeds, and the replay CLI
// passes its --speed flag through unchecked.
func (s *ReplaySource) SetSpeed(speed float64) {
	if speed > 0 {
		s.speed = speed
	}
}

// FrameCount returns the total number of frames available.
func (s *ReplaySource) FrameCount() int { return s.reader.FrameCount() }

// CurrentIndex returns the index of the next frame to be emitted.
func (s *ReplaySource) CurrentIndex() int { return s.index }

// SeekTo jumps to an absolute frame index, rebuilding the histogram ring
// by classifying the frames before index (frame 0 excluded, at most the
// last HistogramCapacity of them), and resets pacing so the next NextFrame
// call emits the frame at index immediately.
func (s *ReplaySource) SeekTo(index int) bool {
	if index < 0 || index > s.reader.FrameCount() {
		return false
	}

	s.index = index
	s.finished = index >= s.reader.FrameCount()
	s.lastEmit = time.Time{}

	freq := s.reader.Metadata().CycleCounterFrequencyHz
	start := 0
	if index > accumulator.HistogramCapacity {
		start = index - accumulator.HistogramCapacity
	}
	s.histogram = s.histogram[:0]
	for i := start; i < index; i++ {
		if i == 0 {
			// The genuine first pass carries zero-valued derived fields and
			// never contributes a histogram entry; see accumulator.Compute.
			continue
		}
		frame, ok := s.reader.FrameAt(i)
		if !ok {
			break
		}
		s.histogram = append(s.histogram, accumulator.ClassifyFrame(frame, freq))
	}
	return true
}

// SeekRelative moves the playback position by delta frames, clamped to
// the valid range.
func (s *ReplaySource) SeekRelative(delta int) bool {
	target := s.index + delta
	if target < 0 {
		target = 0
	}
	if target > s.reader.FrameCount() {
		target = s.reader.FrameCount()
	}
	return s.SeekTo(target)
}

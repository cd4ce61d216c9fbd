// Package source defines the source contract (C9) and implements the
// sampling loop / live source (C6). The live source and the replay source
// in internal/recording both satisfy Source, so the UI and exporters
// consume either identically.
package source

import "github.com/srodi/felix/internal/fex/types"

// Source is the polymorphic interface consumers drive. NextFrame is
// non-blocking: it returns ok=false when no new frame is due yet (live) or
// when the source is paused/finished (replay), never by blocking the
// caller.
type Source interface {
	NextFrame() (types.ComputedFrame, bool)
	Metadata() types.SessionMetadata
	IsLive() bool
}

// PlaybackControls is the separate capability only a replay source
// provides; live sources do not implement it.
type PlaybackControls interface {
	Pause()
	Resume()
	TogglePause()
	SetSpeed(speed float64)
	SeekTo(index int) bool
	SeekRelative(delta int) bool
	FrameCount() int
	CurrentIndex() int
}

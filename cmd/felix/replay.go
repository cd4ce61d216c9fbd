//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/srodi/felix/internal/recording"
)

// ReplayCmd plays back a recording file, pacing frames by their original
// sample period scaled by --speed.
type ReplayCmd struct {
	Path  string  `arg:"" help:"path to a recording file." type:"existingfile"`
	Speed float64 `help:"playback speed multiplier." default:"1"`
}

func (c *ReplayCmd) Run(ctx context.Context, globals *Globals, logger *slog.Logger) error {
	reader, err := recording.Open(c.Path)
	var truncated *recording.ErrTruncated
	if err != nil && !errors.As(err, &truncated) {
		return fmt.Errorf("replay: %w", err)
	}
	if truncated != nil {
		logger.Warn("recording truncated", "frames_read", truncated.FramesRead)
	}

	rs := recording.NewReplaySource(reader)
	rs.SetSpeed(c.Speed)

	restore := enableSingleView(logger)
	defer restore()

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			frame, ok := rs.NextFrame()
			if !ok {
				if rs.CurrentIndex() >= rs.FrameCount() {
					return nil
				}
				continue
			}
			clearScreen()
			renderFrame(os.Stdout, rs.Metadata(), frame, rs.Histogram())
		}
	}
}

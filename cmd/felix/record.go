//go:build linux

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/srodi/felix/internal/recording"
	"github.com/srodi/felix/internal/source"
)

// RecordCmd attaches to a running emulator process and writes every sample
// to a recording file until the target exits or the user interrupts, with
// no rendering overhead.
type RecordCmd struct {
	PID int32  `arg:"" help:"pid of the emulator process to attach to."`
	Out string `arg:"" help:"path to write the recording file to."`
}

func (c *RecordCmd) Run(ctx context.Context, globals *Globals, logger *slog.Logger) error {
	cfg := globals.Config
	ls, err := source.Open(c.PID, source.Config{
		SamplePeriod:    cfg.Sampling.SamplePeriod(),
		StaleTimeout:    cfg.Sampling.StaleTimeout(),
		MemSamplePeriod: cfg.Sampling.MemSamplePeriod(),
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("record: %w", err)
	}
	defer ls.Close()

	writer, err := recording.Create(c.Out, ls.Metadata())
	if err != nil {
		return fmt.Errorf("record: open recording: %w", err)
	}
	ls.SetSink(writer)

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	frames := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("recording interrupted", "frames", frames)
			return writer.Finish()
		case <-ticker.C:
			_, ok := ls.NextFrame()
			if ok {
				frames++
				continue
			}
			if ls.State() != source.StateRunning {
				logger.Info("recording finished", "frames", frames, "state", ls.State())
				return writer.Finish()
			}
		}
	}
}

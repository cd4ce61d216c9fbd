//go:build linux

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/srodi/felix/internal/promexport"
	"github.com/srodi/felix/internal/recording"
	"github.com/srodi/felix/internal/source"
)

// LiveCmd attaches to a running emulator process and renders one summary
// screen per sample. An optional --record path also writes every sample to
// a recording file as it's produced.
type LiveCmd struct {
	PID    int32  `arg:"" help:"pid of the emulator process to attach to."`
	Record string `help:"also write live samples to this recording file." optional:""`
}

func (c *LiveCmd) Run(ctx context.Context, globals *Globals, logger *slog.Logger) error {
	cfg := globals.Config
	ls, err := source.Open(c.PID, source.Config{
		SamplePeriod:    cfg.Sampling.SamplePeriod(),
		StaleTimeout:    cfg.Sampling.StaleTimeout(),
		MemSamplePeriod: cfg.Sampling.MemSamplePeriod(),
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("live: %w", err)
	}
	defer ls.Close()

	if c.Record != "" {
		writer, err := recording.Create(c.Record, ls.Metadata())
		if err != nil {
			return fmt.Errorf("live: open recording: %w", err)
		}
		defer writer.Finish()
		ls.SetSink(writer)
	}

	var metrics *promexport.Metrics
	if globals.MetricsListen != "" {
		metrics = promexport.New()
		go func() {
			if err := metrics.Serve(ctx, globals.MetricsListen); err != nil {
				logger.Error("metrics server exited", "error", err)
			}
		}()
	}

	return runLiveLoop(ctx, ls, metrics, logger)
}

func runLiveLoop(ctx context.Context, ls *source.LiveSource, metrics *promexport.Metrics, logger *slog.Logger) error {
	restore := enableSingleView(logger)
	defer restore()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			frame, ok := ls.NextFrame()
			if !ok {
				if ls.State() != source.StateRunning {
					return nil
				}
				continue
			}
			if metrics != nil {
				metrics.Observe(frame)
			}
			clearScreen()
			renderFrame(os.Stdout, ls.Metadata(), frame, ls.Histogram())
		}
	}
}

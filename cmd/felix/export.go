//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/srodi/felix/internal/csvexport"
	"github.com/srodi/felix/internal/recording"
)

// ExportCmd renders a recording file to the CSV schema pinned in spec §6.
type ExportCmd struct {
	Path string `arg:"" help:"path to a recording file." type:"existingfile"`
	Out  string `help:"output CSV path; '-' or omitted writes to stdout." default:"-"`
	TopN int    `help:"number of per-thread load columns to flatten into the CSV." default:"8"`
}

func (c *ExportCmd) Run(ctx context.Context, globals *Globals, logger *slog.Logger) error {
	reader, err := recording.Open(c.Path)
	var truncated *recording.ErrTruncated
	if err != nil && !errors.As(err, &truncated) {
		return fmt.Errorf("export: %w", err)
	}
	if truncated != nil {
		logger.Warn("recording truncated", "frames_read", truncated.FramesRead)
	}

	out := os.Stdout
	if c.Out != "" && c.Out != "-" {
		f, err := os.Create(c.Out)
		if err != nil {
			return fmt.Errorf("export: create %s: %w", c.Out, err)
		}
		defer f.Close()
		out = f
	}

	writer, err := csvexport.New(out, c.TopN)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	for i := 0; i < reader.FrameCount(); i++ {
		frame, _ := reader.FrameAt(i)
		if err := writer.WriteFrame(frame); err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}
	return writer.Flush()
}

//go:build linux

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/pkg/profile"

	"github.com/srodi/felix/internal/config"
	"github.com/srodi/felix/internal/obslog"
)

// CLI is the root felix command: global flags plus one subcommand per
// operating mode. This generalizes the teacher's single-command flag.Parse
// CLI (cmd/hotspot/main.go) to the multi-subcommand shape the distilled
// spec's Live/Record/Replay/Export operations require.
type CLI struct {
	Config        string `help:"Path to a YAML config file." name:"config" type:"existingfile"`
	CPUProfile    bool   `help:"Write a pprof CPU profile of felix's own sampling loop to cpu.pprof." name:"cpuprofile"`
	MetricsListen string `help:"Address to serve Prometheus metrics on (e.g. :9191); empty disables the endpoint." name:"metrics-listen"`

	Live   LiveCmd   `cmd:"" help:"Attach to a running emulator process and render live samples."`
	Record RecordCmd `cmd:"" help:"Attach to a running emulator process and write samples to a recording file."`
	Replay ReplayCmd `cmd:"" help:"Play back a recording file."`
	Export ExportCmd `cmd:"" help:"Export a recording file to CSV."`
}

// Globals carries the parsed top-level flags and derived config down to
// whichever subcommand runs, mirroring the teacher's own small runConfig
// struct threaded through snapshotAndPrint.
type Globals struct {
	Config        config.Config
	MetricsListen string
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("felix"),
		kong.Description("Real-time profiling observer for an x86-on-ARM64 binary translator."),
		kong.UsageOnError(),
	)

	if cli.CPUProfile {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	}

	cfg, err := config.Load(cli.Config)
	if err != nil {
		log.Fatalf("felix: loading config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	globals := &Globals{Config: cfg, MetricsListen: cli.MetricsListen}
	logger := obslog.New(os.Stderr)

	if err := kctx.Run(ctx, globals, logger); err != nil {
		fmt.Fprintf(os.Stderr, "felix: %v\n", err)
		os.Exit(1)
	}
}

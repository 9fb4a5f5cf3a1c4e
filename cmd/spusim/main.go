// Package main provides spusim, a command line driver that runs an SPU
// thread group described by a YAML scenario.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/pprof"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"golang.org/x/term"

	"github.com/sarchlab/spusim/emu"
	"github.com/sarchlab/spusim/timing/latency"
)

var (
	configPath = flag.String("config", "", "Path to timing configuration (JSON or YAML)")
	verbosity  = flag.Int("v", 0, "Log verbosity")
	jsonLogs   = flag.Bool("json", false, "Emit JSON logs even on a terminal")
	cpuProfile = flag.String("cpuprofile", "", "Write CPU profile to file")
	timeout    = flag.Duration("timeout", 0, "Stop the group after this long (0 = no limit)")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: spusim [options] <scenario.yaml>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	log := newLogger(os.Stderr, *verbosity, *jsonLogs || !term.IsTerminal(int(os.Stderr.Fd())))

	code := run(flag.Arg(0), log, os.Stdout)
	if code != 0 {
		pprof.StopCPUProfile()
		os.Exit(code)
	}
}

func newLogger(w io.Writer, verbosity int, asJSON bool) logr.Logger {
	opts := funcr.Options{
		LogTimestamp: true,
		Verbosity:    verbosity,
	}

	if asJSON {
		return funcr.NewJSON(func(obj string) {
			fmt.Fprintln(w, obj)
		}, opts)
	}

	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintf(w, "%s: %s\n", prefix, args)
			return
		}
		fmt.Fprintln(w, args)
	}, opts)
}

func run(path string, log logr.Logger, out io.Writer) int {
	scenario, err := LoadScenario(path)
	if err != nil {
		log.Error(err, "Failed to load scenario", "path", path)
		return 1
	}

	config := latency.DefaultTimingConfig()
	if *configPath != "" {
		config, err = latency.LoadConfig(*configPath)
		if err != nil {
			log.Error(err, "Failed to load timing config", "path", *configPath)
			return 1
		}
	}

	session := emu.NewSession(
		emu.WithLogger(log),
		emu.WithClock(emu.NewTimebase(config.TimebaseFreq)),
	)

	sim, err := Build(scenario, session, config, log)
	if err != nil {
		log.Error(err, "Failed to build scenario", "scenario", scenario.Name)
		session.Stop()
		return 1
	}
	defer sim.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if *timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	start := time.Now()
	err = sim.Run(ctx)
	log.V(1).Info("Group finished", "group", sim.Group.Name(), "elapsed", time.Since(start))

	if rerr := WriteReport(out, sim); rerr != nil {
		log.Error(rerr, "Failed to write report")
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Info("Group interrupted", "reason", err.Error())
		return 2
	default:
		log.Error(err, "Group failed")
		return 1
	}
}

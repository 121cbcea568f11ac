package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/proctor/internal/simulate"
)

// Default configuration constants.
const (
	defaultSessions     = 20
	defaultSeed         = 42
	defaultTimeout      = 10 * time.Second
	defaultDrillTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the daemon")
		sessions   = flag.Int("sessions", defaultSessions, "Number of sessions to drive")
		workers    = flag.Int("workers", runtime.NumCPU(), "Number of concurrent workers")
		scenario   = flag.String("scenario", string(simulate.ScenarioMixed), "malpractice, honest or mixed")
		frames     = flag.Int("frames", 0, "Frames uploaded per session before signals")
		seed       = flag.Int64("seed", defaultSeed, "Seed for plan generation")
		pause      = flag.Duration("pause", 0, "Pause between signals of one session")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		outputFile = flag.String("output", "", "Output file for the results report (default: drill_results_TIMESTAMP.json)")
		logFormat  = flag.String("log-format", "text", "Log format: text or json")
		logLevel   = flag.String("log-level", "info", "Log level")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	if err := simulate.SetupLogging(*logFormat, *logLevel); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	cfg := &simulate.Config{
		BaseURL:    *baseURL,
		Sessions:   *sessions,
		Workers:    max(*workers, 1),
		Timeout:    *timeout,
		Scenario:   simulate.Scenario(*scenario),
		Frames:     *frames,
		Seed:       *seed,
		Pause:      *pause,
		OutputFile: *outputFile,
		Verbose:    *verbose,
	}

	if err := run(cfg); err != nil {
		os.Stderr.WriteString("Drill failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(cfg *simulate.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultDrillTimeout)
	defer cancel()

	_, err := simulate.Run(ctx, cfg)
	return err
}

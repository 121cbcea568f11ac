package simulate

import (
	"fmt"
	"os"

	"github.com/okian/proctor/pkg/logger"
)

// SetupLogging initializes the logger for the drill.
func SetupLogging(format, level string) error {
	if err := logger.InitWithFormat(format); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := logger.SetLevelString(level); err != nil {
		return fmt.Errorf("failed to set log level: %w", err)
	}
	return nil
}

// ShowHelp prints usage information for the drill tool.
func ShowHelp() {
	os.Stdout.WriteString(`Proctor Drill Tool
==================

Drives simulated exam sessions against a running proctor daemon and checks
that malpractice is terminated at the violation threshold while honest
sessions are submitted.

Usage:
  go run ./cmd/proctor-sim [options]

Options:
  -url string
        Base URL of the daemon (default "http://localhost:9080")
  -sessions int
        Number of sessions to drive (default 20)
  -workers int
        Number of concurrent workers (default CPU cores)
  -scenario string
        malpractice, honest or mixed (default "mixed")
  -frames int
        Frames uploaded per session before signals (default 0)
  -seed int
        Seed for plan generation (default 42)
  -pause duration
        Pause between signals of one session (default 0)
  -timeout duration
        HTTP request timeout (default 10s)
  -output string
        Output file for the results report (default: drill_results_TIMESTAMP.json)
  -log-format string
        Log format: text or json (default "text")
  -log-level string
        Log level (default "info")
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Mixed drill with default settings
  go run ./cmd/proctor-sim

  # Only cheating students, slowly
  go run ./cmd/proctor-sim -scenario malpractice -sessions 5 -pause 500ms
`)
}

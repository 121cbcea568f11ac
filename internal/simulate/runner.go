package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/proctor/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	reportPermission    = 0600
)

// Run executes the complete drill.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	stats := &Stats{
		StartTime: time.Now(),
	}

	logger.Get().Info(ctx, "starting proctor drill",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("sessions", cfg.Sessions),
		logger.Int("workers", cfg.Workers),
		logger.String("scenario", string(cfg.Scenario)),
		logger.Int("frames", cfg.Frames),
		logger.Duration("timeout", cfg.Timeout),
		logger.Bool("verbose", cfg.Verbose))

	client := NewClient(cfg.BaseURL, cfg.Timeout)

	// Step 1: Check daemon health and learn its threshold
	if err := checkServiceHealth(ctx, client, stats); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate plans
	plans, err := generatePlans(ctx, cfg, stats.Threshold, stats)
	if err != nil {
		return stats, fmt.Errorf("plan generation failed: %w", err)
	}

	// Step 3: Drive sessions concurrently
	results := driveSessions(ctx, cfg, client, plans, stats)

	// Step 4: Save the report before verifying so mismatches can be inspected
	if cfg.OutputFile != "-" {
		if err := saveResultsToFile(ctx, cfg, results); err != nil {
			logger.Get().Warn(ctx, "failed to save results to file", logger.Error(err))
		}
	}

	// Step 5: Verify verdicts
	verifyErr := verifyResults(ctx, cfg, results, stats)

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(stats)

	if verifyErr != nil {
		return stats, fmt.Errorf("result verification failed: %w", verifyErr)
	}
	logger.Get().Info(ctx, "drill completed successfully")
	return stats, nil
}

// checkServiceHealth verifies the daemon is running and reads its
// violation threshold.
func checkServiceHealth(ctx context.Context, client *Client, stats *Stats) error {
	logger.Get().Info(ctx, "checking service health")

	if err := client.Health(ctx); err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	s, err := client.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read service stats: %w", err)
	}
	if !s.Started {
		return fmt.Errorf("service reports it is not started")
	}
	stats.Threshold = s.Threshold

	logger.Get().Info(ctx, "service is healthy", logger.Int("threshold", s.Threshold))
	return nil
}

// saveResultsToFile writes the results as a JSON report.
func saveResultsToFile(ctx context.Context, cfg *Config, results []Result) error {
	if len(results) == 0 {
		return fmt.Errorf("no results to save")
	}

	filename := cfg.OutputFile
	if filename == "" {
		timestamp := time.Now().Format("20060102_150405")
		filename = "drill_results_" + timestamp + ".json"
	}

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := os.WriteFile(filename, append(data, '\n'), reportPermission); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	logger.Get().Info(ctx, "results saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final drill statistics.
func displayFinalStats(stats *Stats) {
	var terminationRate, sessionsPerSecond float64

	if finished := stats.SessionsTerminated + stats.SessionsSubmitted; finished > 0 {
		terminationRate = float64(stats.SessionsTerminated) / float64(finished) * PercentageMultiplier
	}

	if stats.Duration > 0 {
		sessionsPerSecond = float64(stats.SessionsStarted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("sessionsPlanned", stats.SessionsPlanned),
		logger.Int("sessionsStarted", stats.SessionsStarted),
		logger.Int("sessionsTerminated", stats.SessionsTerminated),
		logger.Int("sessionsSubmitted", stats.SessionsSubmitted),
		logger.Int("sessionsFailed", stats.SessionsFailed),
		logger.Int("signalsSent", stats.SignalsSent),
		logger.Int("mismatches", stats.Mismatches),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("terminationRate", terminationRate),
		logger.Float64("sessionsPerSecond", sessionsPerSecond))
}

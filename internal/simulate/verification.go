package simulate

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/okian/proctor/internal/domain/model"
	"github.com/okian/proctor/pkg/logger"
)

// ErrMismatch is returned when the daemon's verdicts disagree with the
// plans.
var ErrMismatch = errors.New("drill verdict mismatch")

// checkResult returns why r is inconsistent with its plan, or nil.
func checkResult(r *Result, threshold, frames int) error {
	if r.Err != "" {
		return errors.New(r.Err)
	}
	switch r.Outcome {
	case model.OutcomeTerminated:
		if r.Points < threshold {
			return fmt.Errorf("terminated with %d points, below threshold %d", r.Points, threshold)
		}
		// Analyzer detections on uploaded frames can end an honest session.
		if !r.Plan.Malicious && frames == 0 {
			return errors.New("honest session was terminated")
		}
	case model.OutcomeSubmitted:
		if r.Points >= threshold {
			return fmt.Errorf("submitted with %d points, at or above threshold %d", r.Points, threshold)
		}
		if r.Plan.Malicious {
			return fmt.Errorf("malicious session was not terminated after %d violations", r.Plan.Violations)
		}
	default:
		return fmt.Errorf("unknown outcome %q", r.Outcome)
	}
	// The last scored signal of a malicious plan is the one that ends it.
	if r.Plan.Malicious && frames == 0 && r.SignalsSent != 2*r.Plan.Violations-1 {
		return fmt.Errorf("terminated after %d signals, want %d", r.SignalsSent, 2*r.Plan.Violations-1)
	}
	return nil
}

// verifyResults checks every result and fails if any disagrees with its
// plan.
func verifyResults(ctx context.Context, cfg *Config, results []Result, stats *Stats) error {
	log.Println("Verifying results...")

	for i := range results {
		if err := checkResult(&results[i], stats.Threshold, cfg.Frames); err != nil {
			stats.Mismatches++
			logger.Get().Warn(ctx, "session verdict mismatch",
				logger.Int("index", results[i].Plan.Index),
				logger.String("session_id", results[i].SessionID),
				logger.Error(err),
			)
		} else if cfg.Verbose {
			log.Printf("   session %s: %s with %d points", results[i].SessionID, results[i].Outcome, results[i].Points)
		}
	}

	if stats.Mismatches > 0 {
		return fmt.Errorf("%w: %d of %d sessions", ErrMismatch, stats.Mismatches, len(results))
	}
	log.Println("Result verification completed")
	return nil
}

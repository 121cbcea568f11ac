package simulate

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/okian/proctor/internal/domain/types"
	"github.com/okian/proctor/internal/domain/watch"
	"github.com/okian/proctor/pkg/logger"
)

// honestSignals is the number of benign signals an honest student sends.
const honestSignals = 3

func boolPtr(b bool) *bool { return &b }

func tabAway() types.SignalRequest {
	return types.SignalRequest{Type: string(watch.SignalVisibilityChange), Hidden: boolPtr(true)}
}

func tabBack() types.SignalRequest {
	return types.SignalRequest{Type: string(watch.SignalVisibilityChange), Hidden: boolPtr(false)}
}

func fullscreen(on bool) types.SignalRequest {
	return types.SignalRequest{Type: string(watch.SignalFullscreenChange), Fullscreen: boolPtr(on)}
}

// generatePlans scripts cfg.Sessions students. Malicious students commit
// exactly threshold violations, alternating tab switches and fullscreen
// exits at random, each followed by its benign counterpart.
func generatePlans(ctx context.Context, cfg *Config, threshold int, stats *Stats) ([]Plan, error) {
	if threshold <= 0 {
		return nil, fmt.Errorf("invalid violation threshold %d", threshold)
	}
	logger.Get().Info(ctx, "generating session plans",
		logger.Int("sessions", cfg.Sessions),
		logger.String("scenario", string(cfg.Scenario)),
	)

	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // reproducible drills
	plans := make([]Plan, cfg.Sessions)
	for i := range plans {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled during plan generation: %w", err)
		}

		var malicious bool
		switch cfg.Scenario {
		case ScenarioMalpractice:
			malicious = true
		case ScenarioHonest:
			malicious = false
		case ScenarioMixed:
			malicious = rng.Intn(2) == 0
		default:
			return nil, fmt.Errorf("unknown scenario %q", cfg.Scenario)
		}

		p := Plan{
			Index: i,
			Request: types.StartSessionRequest{
				StudentID:     "student-" + uuid.NewString(),
				ExamID:        fmt.Sprintf("drill-exam-%d", i%4),
				CameraGranted: true,
			},
			Malicious: malicious,
		}
		if malicious {
			for p.Violations < threshold {
				if rng.Intn(2) == 0 {
					p.Signals = append(p.Signals, tabAway(), tabBack())
				} else {
					p.Signals = append(p.Signals, fullscreen(false), fullscreen(true))
				}
				p.Violations++
			}
		} else {
			p.Signals = append(p.Signals, fullscreen(true))
			for j := 1; j < honestSignals; j++ {
				p.Signals = append(p.Signals, tabBack())
			}
		}
		plans[i] = p
	}

	stats.SessionsPlanned = len(plans)
	logger.Get().Info(ctx, "generated plans successfully", logger.Int("count", len(plans)))
	return plans, nil
}

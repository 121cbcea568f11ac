package service

import (
	"fmt"
	"time"

	"github.com/okian/proctor/internal/adapters/analyzer"
	"github.com/okian/proctor/internal/adapters/attemptlog"
	"github.com/okian/proctor/internal/adapters/mq/kafka"
	"github.com/okian/proctor/internal/config"
	"github.com/okian/proctor/internal/domain/analysis"
	"github.com/okian/proctor/pkg/logger"
)

func millis(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// OptionsFromConfig translates process configuration into service options,
// building the analyzer, attempt-log client and event publisher it names.
func OptionsFromConfig(cfg *config.Config, log logger.Logger) ([]Option, error) {
	opts := []Option{
		WithLogger(log),
		WithWorkerCount(cfg.SinkWorkerCount),
		WithQueueSize(cfg.SinkQueueSize),
		WithStore(cfg.StoreDriver, cfg.StoreDSN),
		WithFrameInterval(cfg.FrameInterval()),
		WithThreshold(cfg.ViolationThreshold),
		WithLedgerCapacity(cfg.LedgerCapacity),
		WithFrameMaxBytes(cfg.FrameMaxBytes),
	}

	a, err := newAnalyzer(cfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts, WithAnalyzer(a))

	var client *attemptlog.Client
	if cfg.AttemptLogURL != "" {
		client = attemptlog.New(cfg.AttemptLogURL,
			attemptlog.WithToken(cfg.AttemptLogToken),
			attemptlog.WithTimeout(millis(cfg.AttemptLogTimeoutMS)),
		)
		opts = append(opts,
			WithAttemptLog(client),
			WithRegistrationTimeout(millis(cfg.AttemptLogTimeoutMS)),
		)
	}

	switch cfg.SinkDriver {
	case config.SinkHTTP:
		if client != nil {
			opts = append(opts, WithPublisher(client))
		}
	case config.SinkKafka:
		p, err := kafka.New(cfg.Brokers(), cfg.KafkaTopic)
		if err != nil {
			return nil, fmt.Errorf("kafka publisher: %w", err)
		}
		opts = append(opts, WithPublisher(p))
	case config.SinkNone:
	default:
		return nil, fmt.Errorf("unknown sink driver %q", cfg.SinkDriver)
	}
	return opts, nil
}

func newAnalyzer(cfg *config.Config) (analysis.Analyzer, error) {
	switch cfg.AnalyzerMode {
	case config.AnalyzerHTTP:
		return analyzer.NewHTTP(cfg.AnalyzerURL,
			analyzer.WithAPIToken(cfg.AnalyzerToken),
			analyzer.WithHTTPTimeout(millis(cfg.AnalyzerTimeoutMS)),
		), nil
	case config.AnalyzerSimulated, "":
		return analyzer.NewSimulated(
			analyzer.WithLatencyRange(millis(cfg.AnalyzerLatencyMinMS), millis(cfg.AnalyzerLatencyMaxMS)),
			analyzer.WithViolationRate(cfg.AnalyzerViolationP),
			analyzer.WithSeed(cfg.AnalyzerSeed),
		), nil
	default:
		return nil, fmt.Errorf("unknown analyzer mode %q", cfg.AnalyzerMode)
	}
}

package analysis

import (
	"time"

	"github.com/okian/proctor/pkg/logger"
)

// Option applies a configuration option to a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the frame capture interval. Non-positive values keep the
// default.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLogger sets a custom logger for the scheduler.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the clock used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

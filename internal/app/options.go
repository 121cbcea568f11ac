package service

import (
	"time"

	"github.com/okian/proctor/internal/adapters/mq/worker"
	"github.com/okian/proctor/internal/domain/analysis"
	"github.com/okian/proctor/internal/domain/session"
	"github.com/okian/proctor/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of event delivery workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the event queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithStore selects the record store driver and its DSN.
func WithStore(driver, dsn string) Option {
	return func(s *Service) {
		if driver != "" {
			s.storeDriver = driver
			s.storeDSN = dsn
		}
	}
}

// WithAnalyzer sets the frame analyzer shared by all sessions.
func WithAnalyzer(a analysis.Analyzer) Option {
	return func(s *Service) {
		if a != nil {
			s.analyzer = a
		}
	}
}

// WithAttemptLog sets the remote attempt log sessions register with.
func WithAttemptLog(a session.AttemptLog) Option {
	return func(s *Service) {
		if a != nil {
			s.attempts = a
		}
	}
}

// WithPublisher sets where queued attempt-log events are delivered. Without
// one, events are discarded.
func WithPublisher(p worker.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithFrameInterval sets the frame analysis period of new sessions.
func WithFrameInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.frameInterval = d
		}
	}
}

// WithThreshold sets the violation threshold of new sessions.
func WithThreshold(points int) Option {
	return func(s *Service) {
		if points > 0 {
			s.threshold = points
		}
	}
}

// WithLedgerCapacity bounds the alerts kept per session.
func WithLedgerCapacity(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.ledgerCapacity = n
		}
	}
}

// WithFrameMaxBytes bounds an uploaded camera frame.
func WithFrameMaxBytes(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.frameMaxBytes = n
		}
	}
}

// WithRegistrationTimeout bounds attempt registration at session start.
func WithRegistrationTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.registrationTimeout = d
		}
	}
}

// WithIDGenerator overrides how session ids are minted.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

package session

import (
	"time"

	"github.com/okian/proctor/pkg/logger"
)

// Option applies a configuration option to a Session.
type Option func(*Session)

// WithFrameInterval sets how often a camera frame is analyzed.
func WithFrameInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.frameInterval = d
		}
	}
}

// WithThreshold sets the violation points that terminate the session.
func WithThreshold(points int) Option {
	return func(s *Session) {
		if points > 0 {
			s.threshold = points
		}
	}
}

// WithLedgerCapacity bounds the alert ledger. Zero keeps every alert.
func WithLedgerCapacity(n int) Option {
	return func(s *Session) {
		if n >= 0 {
			s.ledgerCapacity = n
		}
	}
}

// WithAttemptLog registers the remote attempt log used at start.
func WithAttemptLog(a AttemptLog) Option {
	return func(s *Session) {
		s.attempts = a
	}
}

// WithSink sets where attempt-log events are posted.
func WithSink(sink EventSink) Option {
	return func(s *Session) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithRegistrationTimeout bounds the attempt registration call.
func WithRegistrationTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.registrationTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the session.
func WithLogger(l logger.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the session time source.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// Package sink adapts the event queue to the session's fire-and-forget
// event sink.
package sink

import (
	"context"

	"github.com/okian/proctor/internal/domain/model"
	"github.com/okian/proctor/pkg/logger"
)

// Enqueuer accepts events without blocking.
type Enqueuer interface {
	Enqueue(ctx context.Context, e model.Event) error
}

// Sink posts events to a queue and drops them when the queue refuses.
type Sink struct {
	queue  Enqueuer
	logger logger.Logger
}

// New creates a sink over q.
func New(q Enqueuer) *Sink {
	return &Sink{
		queue:  q,
		logger: logger.Get().Named("sink"),
	}
}

// Post enqueues e. It never blocks and never fails the caller.
func (s *Sink) Post(ctx context.Context, e model.Event) { //nolint:gocritic // hugeParam: matches the queue's by-value events
	// Enqueue must not observe the caller's cancellation: events raised
	// while a request is finishing are still wanted.
	if err := s.queue.Enqueue(context.WithoutCancel(ctx), e); err != nil {
		s.logger.Warn(ctx, "dropping session event",
			logger.String("session_id", e.SessionID),
			logger.String("event_type", e.Type),
			logger.Error(err),
		)
	}
}

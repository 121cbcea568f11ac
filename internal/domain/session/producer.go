package session

import (
	"context"

	"github.com/okian/proctor/internal/domain/model"
	"github.com/okian/proctor/pkg/logger"
	"github.com/okian/proctor/pkg/metrics"
)

// producer is the Raiser handed to watchers and the scheduler of one start.
// It is bound to the epoch of that start; anything it raises after the
// session stopped or restarted is dropped.
type producer struct {
	session *Session
	epoch   uint64
}

func (p *producer) Active() bool {
	s := p.session
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch == p.epoch && s.state == model.StateActive
}

// Raise records the violation in the ledger, forwards its event and scores
// it, in that order.
func (p *producer) Raise(ctx context.Context, v model.Violation) {
	s := p.session

	s.mu.Lock()
	if s.epoch != p.epoch || s.state != model.StateActive {
		s.mu.Unlock()
		metrics.RecordAnalysisDiscarded()
		return
	}
	alert, stored := s.ledger.Record(v.Kind, v.Message)
	attemptID := s.attemptID
	s.mu.Unlock()

	metrics.RecordAlertRaised(string(v.Kind), stored)
	s.logger.Info(ctx, "integrity alert",
		logger.String("kind", string(v.Kind)),
		logger.String("message", v.Message),
		logger.Bool("stored", stored),
	)

	s.post(ctx, attemptID, v.EventType, v.Metadata)
	if v.Kind.Scored() {
		s.scorer.OnAlert(p.epoch, alert)
	}
}

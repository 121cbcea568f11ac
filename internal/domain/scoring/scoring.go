// Package scoring maintains the running violation score of a proctoring
// session and decides when the session must be terminated.
package scoring

import (
	"sync"

	"github.com/okian/proctor/internal/domain/model"
	"github.com/okian/proctor/pkg/metrics"
)

// DefaultThreshold is the number of violation points that ends a session.
const DefaultThreshold = 5

// Snapshot is a consistent view of the scorer.
type Snapshot struct {
	Points     int
	Threshold  int
	Terminated bool
	Epoch      uint64
}

// Scorer counts one point per alert and fires a termination callback the
// first time the count reaches the threshold.
//
// Every call carries the session epoch it was produced under. Reset adopts a
// new epoch; calls tagged with an older epoch are ignored so that a late
// alert from a torn-down session cannot score against its successor.
type Scorer struct {
	mu          sync.Mutex
	threshold   int
	points      int
	terminated  bool
	epoch       uint64
	onTerminate func()
}

// New creates a scorer at epoch 0 with no points.
func New(opts ...Option) *Scorer {
	s := &Scorer{
		threshold: DefaultThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetCallback registers the termination callback, replacing any previous one.
func (s *Scorer) SetCallback(cb func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTerminate = cb
}

// Reset zeroes the counter, clears the termination flag and adopts epoch.
// Called once per session start.
func (s *Scorer) Reset(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = 0
	s.terminated = false
	s.epoch = epoch
}

// Retire adopts epoch without touching the count or the flag. A session
// retires its scorer on stop so that alerts raised under the stopped epoch
// no longer score.
func (s *Scorer) Retire(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch = epoch
}

// OnAlert adds one violation point for alert. It reports whether this call
// crossed the threshold; that is true for at most one call per epoch, and
// only that call invokes the termination callback. The callback runs after
// the scorer's lock is released so it may call back into the scorer.
func (s *Scorer) OnAlert(epoch uint64, _ model.Alert) bool {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return false
	}
	s.points++
	metrics.RecordViolationPoint()

	fire := s.points >= s.threshold && !s.terminated
	if fire {
		s.terminated = true
	}
	cb := s.onTerminate
	s.mu.Unlock()

	if fire && cb != nil {
		cb()
	}
	return fire
}

// Points returns the current violation count.
func (s *Scorer) Points() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.points
}

// Terminated reports whether the threshold has been crossed this epoch.
func (s *Scorer) Terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

// Snapshot returns points, threshold, flag and epoch under one lock.
func (s *Scorer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Points:     s.points,
		Threshold:  s.threshold,
		Terminated: s.terminated,
		Epoch:      s.epoch,
	}
}

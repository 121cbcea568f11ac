// Package analysis periodically samples camera frames, submits them to a
// visual analyzer and turns the returned labels into violations.
package analysis

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/proctor/internal/domain/model"
	"github.com/okian/proctor/pkg/logger"
	"github.com/okian/proctor/pkg/metrics"
)

// Default scheduler configuration.
const (
	DefaultInterval = 5 * time.Second

	// CameraLostMessage is the system alert raised when capture fails.
	CameraLostMessage = "Camera feed lost. Monitoring degraded."
)

// FrameSource captures still frames from an acquired camera stream. A nil
// frame with a nil error means the feed is not ready yet.
type FrameSource interface {
	CaptureFrame(ctx context.Context) ([]byte, error)
}

// Analyzer classifies one JPEG frame and returns violation labels. An empty
// result means nothing suspicious was seen.
type Analyzer interface {
	Analyze(ctx context.Context, frame []byte) ([]string, error)
}

// Raiser receives violations on behalf of one session.
type Raiser interface {
	Active() bool
	Raise(ctx context.Context, v model.Violation)
}

// Message returns the alert text for an analyzer label.
func Message(k model.Kind) string {
	return "AI detected: " + strings.ReplaceAll(string(k), "-", " ") + "."
}

// Scheduler drives frame analysis at a fixed interval. Ticks never overlap:
// a tick that fires while the previous analysis is still running is skipped.
type Scheduler struct {
	source   FrameSource
	analyzer Analyzer
	raiser   Raiser
	interval time.Duration
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	busy     atomic.Bool
	degraded atomic.Bool
	inflight sync.WaitGroup

	logger logger.Logger
}

// New creates a stopped scheduler.
func New(source FrameSource, analyzer Analyzer, raiser Raiser, opts ...Option) *Scheduler {
	s := &Scheduler{
		source:   source,
		analyzer: analyzer,
		raiser:   raiser,
		interval: DefaultInterval,
		now:      time.Now,
		logger:   logger.Get().Named("analysis"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Interval returns the configured tick interval.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Start launches the tick loop. It runs until ctx is canceled or Stop is
// called. Starting a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
}

// Stop cancels the tick loop and waits for it to exit. No tick starts after
// Stop returns. An analysis already in flight is canceled and its result is
// discarded. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the tick loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Wait blocks until every in-flight analysis has returned.
func (s *Scheduler) Wait() {
	s.inflight.Wait()
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.busy.CompareAndSwap(false, true) {
				metrics.RecordFrameSkipped("busy")
				continue
			}
			s.inflight.Add(1)
			go func() {
				defer s.inflight.Done()
				defer s.busy.Store(false)
				s.Tick(ctx)
			}()
		}
	}
}

// Tick performs one capture and analysis cycle synchronously.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.raiser.Active() {
		return
	}

	frame, err := s.source.CaptureFrame(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.feedLost(ctx, err)
		return
	}
	if len(frame) == 0 {
		metrics.RecordFrameSkipped("not_ready")
		return
	}
	s.degraded.Store(false)

	start := time.Now()
	labels, err := s.analyzer.Analyze(ctx, frame)
	metrics.RecordAnalysisLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		if ctx.Err() != nil {
			metrics.RecordAnalysisDiscarded()
			return
		}
		metrics.RecordAnalyzerError()
		metrics.RecordErrorByComponent("analysis", "analyzer_error")
		s.logger.Warn(ctx, "frame analysis failed", logger.Error(err))
		return
	}
	if ctx.Err() != nil || !s.raiser.Active() {
		metrics.RecordAnalysisDiscarded()
		return
	}

	ts := s.now().UnixMilli()
	for _, label := range labels {
		kind, err := model.ParseKind(label)
		if err != nil || !kind.IsAnalyzerKind() {
			s.logger.Warn(ctx, "dropping unknown analyzer label", logger.String("label", label))
			continue
		}
		s.raiser.Raise(ctx, model.Violation{
			Kind:      kind,
			Message:   Message(kind),
			EventType: string(kind),
			Metadata:  map[string]any{"ts": ts},
		})
	}
}

// feedLost raises a single unscored system alert per degradation. A
// successful capture clears the degradation.
func (s *Scheduler) feedLost(ctx context.Context, err error) {
	metrics.RecordFrameSkipped("feed_lost")
	if !s.degraded.CompareAndSwap(false, true) {
		return
	}
	s.logger.Error(ctx, "camera feed lost", logger.Error(err))
	s.raiser.Raise(ctx, model.Violation{
		Kind:      model.KindSystem,
		Message:   CameraLostMessage,
		EventType: model.EventCameraLost,
		Metadata:  map[string]any{"ts": s.now().UnixMilli(), "error": err.Error()},
	})
}

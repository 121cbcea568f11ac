// Package session implements the proctoring session lifecycle: it acquires
// the camera, enters fullscreen, starts the watchers and the analysis
// scheduler, registers the attempt remotely, and tears everything down
// again exactly once.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/proctor/internal/domain/analysis"
	"github.com/okian/proctor/internal/domain/ledger"
	"github.com/okian/proctor/internal/domain/model"
	"github.com/okian/proctor/internal/domain/scoring"
	"github.com/okian/proctor/internal/domain/watch"
	"github.com/okian/proctor/pkg/logger"
	"github.com/okian/proctor/pkg/metrics"
)

// Default controller configuration.
const (
	DefaultRegistrationTimeout = 5 * time.Second

	// EndedMessage is the terminal system alert appended on stop.
	EndedMessage = "Proctoring ended."
)

// Stream is an acquired camera stream.
type Stream interface {
	analysis.FrameSource
}

// Camera hands out exclusive streams.
type Camera interface {
	Acquire(ctx context.Context) (Stream, error)
	Release(stream Stream)
}

// Platform exposes the exam environment: fullscreen control and the
// notifications the watchers subscribe to.
type Platform interface {
	watch.Source
	RequestFullscreen(ctx context.Context) error
	ExitFullscreen(ctx context.Context) error
}

// AttemptLog registers exam attempts with the remote attempt log.
type AttemptLog interface {
	StartAttempt(ctx context.Context, meta model.SessionMeta) (string, error)
}

// EventSink accepts attempt-log events for asynchronous delivery. Post must
// not block on the network.
type EventSink interface {
	Post(ctx context.Context, event model.Event)
}

type noopSink struct{}

func (noopSink) Post(context.Context, model.Event) {}

// Session is the lifecycle controller of one proctoring session.
//
// A single mutex guards state, the ledger mutations and the epoch. It is
// never held while calling the camera, the platform, the attempt log, the
// sink, the scorer's callback or a caller-supplied callback.
type Session struct {
	id       string
	meta     model.SessionMeta
	camera   Camera
	analyzer analysis.Analyzer
	platform Platform
	attempts AttemptLog
	sink     EventSink

	frameInterval       time.Duration
	threshold           int
	ledgerCapacity      int
	registrationTimeout time.Duration
	now                 func() time.Time

	ledger *ledger.Ledger
	scorer *scoring.Scorer

	mu          sync.Mutex
	state       model.State
	epoch       uint64
	stream      Stream
	cameraReady bool
	startedAt   time.Time
	attemptID   string
	terminated  bool
	scheduler   *analysis.Scheduler
	watchers    []*watch.Watcher
	// registered is closed once the attempt registration of the current
	// start has finished or was skipped.
	registered         chan struct{}
	cancelRegistration context.CancelFunc

	logger logger.Logger
}

// New creates an idle session.
func New(id string, meta model.SessionMeta, camera Camera, analyzer analysis.Analyzer, platform Platform, opts ...Option) *Session {
	s := &Session{
		id:                  id,
		meta:                meta,
		camera:              camera,
		analyzer:            analyzer,
		platform:            platform,
		sink:                noopSink{},
		frameInterval:       analysis.DefaultInterval,
		threshold:           scoring.DefaultThreshold,
		registrationTimeout: DefaultRegistrationTimeout,
		now:                 time.Now,
		logger:              logger.Get().Named("session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registered = make(chan struct{})
	close(s.registered)
	s.logger = s.logger.With(logger.String("session_id", id))
	s.ledger = ledger.New(ledger.WithCapacity(s.ledgerCapacity), ledger.WithClock(s.now))
	s.scorer = scoring.New(scoring.WithThreshold(s.threshold))
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Meta returns the exam metadata.
func (s *Session) Meta() model.SessionMeta { return s.meta }

// Start begins monitoring. onThresholdExceeded is invoked at most once, the
// first time the violation score reaches the threshold while the session is
// active; it may call Stop.
//
// Start fails with ErrAlreadyActive unless the session is idle and with
// ErrCameraUnavailable when the camera cannot be acquired, leaving the
// session idle. Fullscreen failures are logged and do not fail the start.
// Attempt registration runs in the background; Registered reports when it
// is done, and its failure only leaves the attempt id empty.
func (s *Session) Start(ctx context.Context, onThresholdExceeded func()) error {
	s.mu.Lock()
	if s.state != model.StateIdle {
		s.mu.Unlock()
		return ErrAlreadyActive
	}
	s.state = model.StateStarting
	s.mu.Unlock()

	stream, err := s.camera.Acquire(ctx)
	if err != nil {
		s.mu.Lock()
		s.state = model.StateIdle
		s.mu.Unlock()
		metrics.RecordSessionStartError("camera")
		s.logger.Warn(ctx, "camera acquisition failed", logger.Error(err))
		return fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
	}

	// Monitoring outlives the request that started it.
	runCtx := context.WithoutCancel(ctx)

	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	s.stream = stream
	s.cameraReady = true
	s.startedAt = s.now()
	s.attemptID = ""
	s.terminated = false
	s.ledger.Clear()
	s.scorer.Reset(epoch)
	s.scorer.SetCallback(s.thresholdHandler(epoch, onThresholdExceeded))
	regCtx, cancelReg := context.WithTimeout(runCtx, s.registrationTimeout)
	registered := make(chan struct{})
	s.registered, s.cancelRegistration = registered, cancelReg

	p := &producer{session: s, epoch: epoch}
	s.scheduler = analysis.New(stream, s.analyzer, p,
		analysis.WithInterval(s.frameInterval),
		analysis.WithClock(s.now),
		analysis.WithLogger(s.logger.Named("analysis")),
	)
	s.watchers = []*watch.Watcher{
		watch.NewFullscreen(s.platform, p, watch.WithLogger(s.logger.Named("fullscreen"))),
		watch.NewVisibility(s.platform, p, watch.WithLogger(s.logger.Named("visibility"))),
	}
	scheduler, watchers := s.scheduler, s.watchers
	s.state = model.StateActive
	s.mu.Unlock()

	metrics.RecordSessionStarted()
	s.logger.Info(ctx, "session started",
		logger.String("student_id", s.meta.StudentID),
		logger.String("exam_id", s.meta.ExamID),
	)

	if err := s.platform.RequestFullscreen(ctx); err != nil {
		s.logger.Warn(ctx, "fullscreen request failed", logger.Error(err))
	}
	for _, w := range watchers {
		w.Start()
	}
	scheduler.Start(runCtx)

	if s.attempts == nil || s.meta.CertificationID == "" {
		cancelReg()
		close(registered)
		s.announce(runCtx, epoch)
		return nil
	}
	go s.registerAttempt(regCtx, cancelReg, registered, epoch)
	return nil
}

// Registered returns a channel closed once the attempt registration of the
// latest start has finished, failed or been canceled by Stop.
func (s *Session) Registered() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registered
}

func (s *Session) registerAttempt(ctx context.Context, cancel context.CancelFunc, done chan struct{}, epoch uint64) {
	defer close(done)
	defer cancel()

	attemptID, err := s.attempts.StartAttempt(ctx, s.meta)
	if err != nil {
		metrics.RecordErrorByComponent("session", "attempt_registration")
		s.logger.Warn(ctx, "attempt registration failed", logger.Error(err))
	} else {
		s.mu.Lock()
		if s.epoch == epoch && s.state == model.StateActive {
			s.attemptID = attemptID
		}
		s.mu.Unlock()
		s.logger.Info(ctx, "attempt registered", logger.String("attempt_id", attemptID))
	}
	s.announce(context.WithoutCancel(ctx), epoch)
}

// announce posts session_started for epoch unless that start already ended.
func (s *Session) announce(ctx context.Context, epoch uint64) {
	s.mu.Lock()
	if s.epoch != epoch || s.state != model.StateActive {
		s.mu.Unlock()
		return
	}
	attemptID := s.attemptID
	s.mu.Unlock()

	s.post(ctx, attemptID, model.EventSessionStarted, map[string]any{
		"ts":      s.now().UnixMilli(),
		"exam_id": s.meta.ExamID,
	})
}

// thresholdHandler flags the session and forwards to the caller's callback
// only while the epoch it was registered under is still active.
func (s *Session) thresholdHandler(epoch uint64, cb func()) func() {
	return func() {
		s.mu.Lock()
		if s.epoch != epoch || s.state != model.StateActive {
			s.mu.Unlock()
			return
		}
		s.terminated = true
		s.mu.Unlock()

		metrics.RecordSessionTerminated()
		s.logger.Warn(context.Background(), "violation threshold reached; terminating for malpractice",
			logger.Int("threshold", s.threshold),
		)
		if cb != nil {
			cb()
		}
	}
}

// Stop ends monitoring and reports whether this call performed the
// teardown. Stopping a session that is not active is a no-op, so the camera
// is released exactly once per start. That includes a session still
// Starting: Stop returns false while the camera is being acquired and the
// start then completes normally, so callers stop it again once Start has
// returned. onSessionEnded receives the final alerts, most recent first,
// including the terminal system alert.
func (s *Session) Stop(ctx context.Context, onSessionEnded func([]model.Alert)) bool {
	s.mu.Lock()
	if s.state != model.StateActive {
		s.mu.Unlock()
		return false
	}
	s.state = model.StateStopping
	// Results still in flight belong to a superseded epoch from here on,
	// including alerts that already passed the ledger and are about to score.
	s.epoch++
	s.scorer.Retire(s.epoch)
	scheduler, watchers, stream := s.scheduler, s.watchers, s.stream
	s.scheduler, s.watchers, s.stream = nil, nil, nil
	cancelReg, registered := s.cancelRegistration, s.registered
	s.cancelRegistration = nil
	s.mu.Unlock()

	if cancelReg != nil {
		cancelReg()
	}
	<-registered
	s.mu.Lock()
	attemptID := s.attemptID
	s.mu.Unlock()

	scheduler.Stop()
	for _, w := range watchers {
		w.Stop()
	}
	s.camera.Release(stream)
	if err := s.platform.ExitFullscreen(ctx); err != nil {
		s.logger.Debug(ctx, "fullscreen exit failed", logger.Error(err))
	}

	s.mu.Lock()
	s.state = model.StateIdle
	s.cameraReady = false
	s.ledger.Append(model.KindSystem, EndedMessage)
	alerts := s.ledger.Snapshot()
	terminated := s.terminated
	s.mu.Unlock()

	metrics.RecordSessionStopped()
	metrics.RecordAlertRaised(string(model.KindSystem), true)
	s.logger.Info(ctx, "session ended",
		logger.Int("points", s.scorer.Points()),
		logger.Bool("terminated", terminated),
	)

	s.post(ctx, attemptID, model.EventSessionEnded, map[string]any{
		"ts":         s.now().UnixMilli(),
		"points":     s.scorer.Points(),
		"terminated": terminated,
	})
	if onSessionEnded != nil {
		onSessionEnded(alerts)
	}
	return true
}

// Snapshot returns a point-in-time view of the session.
func (s *Session) Snapshot() model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.Session{
		ID:                      s.id,
		AttemptID:               s.attemptID,
		State:                   s.state,
		CameraReady:             s.cameraReady,
		StartedAt:               s.startedAt,
		Points:                  s.scorer.Points(),
		TerminatedByMalpractice: s.terminated,
		Meta:                    s.meta,
	}
}

// Alerts returns the ledger, most recent first.
func (s *Session) Alerts() []model.Alert {
	return s.ledger.Snapshot()
}

// Threshold returns the configured violation threshold.
func (s *Session) Threshold() int { return s.threshold }

// post forwards an event to the sink. attemptID is empty when no attempt
// was registered; publishers that need one skip such events.
func (s *Session) post(ctx context.Context, attemptID, eventType string, metadata map[string]any) {
	if eventType == "" {
		return
	}
	s.sink.Post(ctx, model.Event{
		SessionID: s.id,
		AttemptID: attemptID,
		Type:      eventType,
		Metadata:  metadata,
		TS:        s.now(),
	})
}

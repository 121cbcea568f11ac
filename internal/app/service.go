// Package service runs proctoring sessions on behalf of the HTTP API: it
// owns the session registry, the shared analyzer, the attempt-log event
// pipeline and the record store.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/proctor/internal/adapters/analyzer"
	"github.com/okian/proctor/internal/adapters/camera"
	eventqueue "github.com/okian/proctor/internal/adapters/mq/queue"
	"github.com/okian/proctor/internal/adapters/mq/sink"
	workerpool "github.com/okian/proctor/internal/adapters/mq/worker"
	"github.com/okian/proctor/internal/adapters/repository"
	"github.com/okian/proctor/internal/adapters/signals"
	"github.com/okian/proctor/internal/domain/analysis"
	"github.com/okian/proctor/internal/domain/model"
	"github.com/okian/proctor/internal/domain/scoring"
	"github.com/okian/proctor/internal/domain/session"
	"github.com/okian/proctor/internal/domain/types"
	"github.com/okian/proctor/internal/domain/watch"
	"github.com/okian/proctor/pkg/logger"
	"github.com/okian/proctor/pkg/metrics"
)

// entry is a live session together with the devices it was built on.
type entry struct {
	session *session.Session
	feed    *camera.Feed
	bus     *signals.Bus
}

// Service implements the API dependencies for the proctoring daemon.
type Service struct {
	mu sync.RWMutex

	// Core components
	sessions   map[string]*entry
	store      repository.Store
	eventQueue *eventqueue.InMemoryQueue
	workerPool *workerpool.Pool
	sink       session.EventSink

	// Collaborators
	analyzer  analysis.Analyzer
	attempts  session.AttemptLog
	publisher workerpool.Publisher

	// Configuration
	workerCount         int
	queueSize           int
	storeDriver         string
	storeDSN            string
	frameInterval       time.Duration
	threshold           int
	ledgerCapacity      int
	frameMaxBytes       int
	registrationTimeout time.Duration
	newID               func() string

	// State
	started bool

	// Logging
	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		sessions:            make(map[string]*entry),
		workerCount:         runtime.NumCPU(),
		queueSize:           1024,
		storeDriver:         repository.DriverMemory,
		frameInterval:       analysis.DefaultInterval,
		threshold:           scoring.DefaultThreshold,
		frameMaxBytes:       2 << 20,
		registrationTimeout: session.DefaultRegistrationTimeout,
		newID:               uuid.NewString,
		logger:              nil, // Will be replaced when service starts
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start opens the record store and starts the event pipeline.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting proctoring service...")

	store, err := repository.Open(ctx, s.storeDriver, s.storeDSN)
	if err != nil {
		return fmt.Errorf("open %s store: %w", s.storeDriver, err)
	}
	s.store = store

	if s.analyzer == nil {
		s.analyzer = analyzer.NewSimulated()
		s.logger.Info(ctx, "using simulated analyzer")
	}

	if s.publisher != nil {
		s.eventQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
		s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, s.publisher)
		// Delivery continues until Stop drains the queue.
		s.workerPool.Start(context.WithoutCancel(ctx))
		s.sink = sink.New(s.eventQueue)
	} else {
		s.logger.Info(ctx, "no event publisher configured; attempt-log events are discarded")
	}

	s.started = true
	s.logger.Info(ctx, "proctoring service started",
		logger.String("store", s.storeDriver),
		logger.Int("workers", s.workerPoolSize()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("threshold", s.threshold),
		logger.Duration("frameInterval", s.frameInterval),
	)
	return nil
}

// Stop ends every live session, drains the event pipeline and closes the
// store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.RLock()
	if !s.started {
		s.mu.RUnlock()
		return nil
	}
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	s.logger.Info(ctx, "stopping proctoring service...", logger.Int("liveSessions", len(ids)))

	// Sessions post their final events and records before the pipeline
	// and the store go away.
	for _, id := range ids {
		if _, err := s.StopSession(ctx, id); err != nil && !errors.Is(err, ErrSessionNotActive) {
			s.logger.Warn(ctx, "failed to stop session", logger.String("session_id", id), logger.Error(err))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.workerPool != nil {
		if err := s.workerPool.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if closer, ok := s.publisher.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}

	s.started = false
	s.logger.Info(ctx, "proctoring service stopped")
	return errors.Join(errs...)
}

// StartSession creates a session for req and starts monitoring it. The
// session is stopped automatically when its violation score reaches the
// threshold.
func (s *Service) StartSession(ctx context.Context, req types.StartSessionRequest) (types.Session, error) {
	if req.StudentID == "" {
		return types.Session{}, fmt.Errorf("%w: missing student_id", ErrInvalidRequest)
	}

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return types.Session{}, ErrNotStarted
	}
	id := s.newID()
	feedOpts := []camera.Option{camera.WithMaxFrameBytes(s.frameMaxBytes)}
	if req.CameraGranted {
		feedOpts = append(feedOpts, camera.WithGranted())
	}
	e := &entry{
		feed: camera.NewFeed(feedOpts...),
		bus:  signals.NewBus(),
	}
	sessOpts := []session.Option{
		session.WithFrameInterval(s.frameInterval),
		session.WithThreshold(s.threshold),
		session.WithLedgerCapacity(s.ledgerCapacity),
		session.WithRegistrationTimeout(s.registrationTimeout),
		session.WithLogger(s.logger.Named("session")),
	}
	if s.attempts != nil {
		sessOpts = append(sessOpts, session.WithAttemptLog(s.attempts))
	}
	if s.sink != nil {
		sessOpts = append(sessOpts, session.WithSink(s.sink))
	}
	e.session = session.New(id, req.Meta(), e.feed, s.analyzer, e.bus, sessOpts...)
	s.sessions[id] = e
	s.mu.Unlock()

	if err := e.session.Start(ctx, func() { s.terminate(id) }); err != nil {
		s.remove(id)
		return types.Session{}, err
	}
	return types.FromSession(e.session.Snapshot(), e.session.Alerts(), s.threshold), nil
}

// terminate ends a session whose score crossed the threshold.
func (s *Service) terminate(id string) {
	ctx := context.Background()
	if _, err := s.StopSession(ctx, id); err != nil && !errors.Is(err, ErrSessionNotActive) {
		s.logger.Error(ctx, "failed to end terminated session", logger.String("session_id", id), logger.Error(err))
	}
}

// StopSession ends a live session and persists its record. Stopping a
// session that already ended returns its stored record.
func (s *Service) StopSession(ctx context.Context, id string) (types.Record, error) {
	e, ok := s.lookup(id)
	if !ok {
		return s.Record(ctx, id)
	}

	var (
		rec     model.SessionRecord
		saveErr error
	)
	stopped := e.session.Stop(ctx, func(alerts []model.Alert) {
		rec = s.recordOf(e.session, alerts)
		saveErr = s.save(ctx, rec)
	})
	if !stopped {
		return types.Record{}, ErrSessionNotActive
	}
	s.remove(id)
	return rec, saveErr
}

func (s *Service) recordOf(sess *session.Session, alerts []model.Alert) model.SessionRecord {
	snap := sess.Snapshot()
	outcome := model.OutcomeSubmitted
	if snap.TerminatedByMalpractice {
		outcome = model.OutcomeTerminated
	}
	return model.SessionRecord{
		SessionID:       snap.ID,
		AttemptID:       snap.AttemptID,
		StudentID:       snap.Meta.StudentID,
		CertificationID: snap.Meta.CertificationID,
		ExamID:          snap.Meta.ExamID,
		StartedAt:       snap.StartedAt,
		EndedAt:         time.Now(),
		Points:          snap.Points,
		Outcome:         outcome,
		Alerts:          alerts,
	}
}

func (s *Service) save(ctx context.Context, rec model.SessionRecord) error { //nolint:gocritic // hugeParam: records are values
	start := time.Now()
	// A canceled request must not lose the record.
	if err := s.store.Save(context.WithoutCancel(ctx), rec); err != nil {
		metrics.RecordSessionSaveError()
		s.logger.Error(ctx, "failed to save session record",
			logger.String("session_id", rec.SessionID),
			logger.Error(err),
		)
		return fmt.Errorf("save record: %w", err)
	}
	metrics.RecordSessionSaved(float64(time.Since(start).Milliseconds()))
	s.logger.Debug(ctx, "session record saved",
		logger.String("session_id", rec.SessionID),
		logger.String("outcome", string(rec.Outcome)),
	)
	return nil
}

// Get returns the live view of a session, or the view of its record once
// it has ended.
func (s *Service) Get(ctx context.Context, id string) (types.Session, error) {
	if e, ok := s.lookup(id); ok {
		return types.FromSession(e.session.Snapshot(), e.session.Alerts(), e.session.Threshold()), nil
	}
	rec, err := s.Record(ctx, id)
	if err != nil {
		return types.Session{}, err
	}
	return types.FromRecord(rec, s.threshold), nil
}

// Signal applies a browser environment change to a live session.
func (s *Service) Signal(_ context.Context, id string, req types.SignalRequest) error {
	e, ok := s.lookup(id)
	if !ok {
		return ErrSessionNotFound
	}
	switch watch.Signal(req.Type) {
	case watch.SignalFullscreenChange:
		if req.Fullscreen == nil {
			return fmt.Errorf("%w: fullscreenchange requires fullscreen", ErrInvalidSignal)
		}
		e.bus.SetFullscreen(*req.Fullscreen)
	case watch.SignalVisibilityChange:
		if req.Hidden == nil {
			return fmt.Errorf("%w: visibilitychange requires hidden", ErrInvalidSignal)
		}
		e.bus.SetHidden(*req.Hidden)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidSignal, req.Type)
	}
	return nil
}

// PushFrame stores frame as the latest camera image of a live session.
func (s *Service) PushFrame(_ context.Context, id string, frame []byte) error {
	e, ok := s.lookup(id)
	if !ok {
		return ErrSessionNotFound
	}
	return e.feed.Push(frame)
}

// Camera grants or revokes the camera device of a live session.
func (s *Service) Camera(_ context.Context, id string, req types.CameraRequest) error {
	e, ok := s.lookup(id)
	if !ok {
		return ErrSessionNotFound
	}
	switch req.Action {
	case types.CameraGrant:
		e.feed.Grant()
	case types.CameraRevoke:
		e.feed.Revoke()
	default:
		return fmt.Errorf("%w: %q", ErrInvalidCameraAction, req.Action)
	}
	return nil
}

// Record returns the stored record of a finished session.
func (s *Service) Record(ctx context.Context, id string) (types.Record, error) {
	store, err := s.recordStore()
	if err != nil {
		return types.Record{}, err
	}
	rec, err := store.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return types.Record{}, ErrSessionNotFound
	}
	return rec, err
}

// Records lists stored records, most recently ended first.
func (s *Service) Records(ctx context.Context, limit int) ([]types.Record, error) {
	store, err := s.recordStore()
	if err != nil {
		return nil, err
	}
	recs, err := store.List(ctx, limit)
	if errors.Is(err, repository.ErrInvalidLimit) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return recs, err
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) types.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := types.Stats{
		Started:        s.started,
		ActiveSessions: len(s.sessions),
		StoreDriver:    s.storeDriver,
		SinkWorkers:    s.workerPoolSize(),
		Threshold:      s.threshold,
		FrameInterval:  s.frameInterval.String(),
	}

	if s.started {
		if n, err := s.store.Count(ctx); err == nil {
			stats.StoredRecords = n
		} else {
			s.logger.Warn(ctx, "failed to count records", logger.Error(err))
		}
		if s.eventQueue != nil {
			stats.SinkQueueLen = s.eventQueue.Len()
			metrics.UpdateSinkQueueSize(stats.SinkQueueLen)
		}

		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		metrics.UpdateSystemMemoryUsage(mem.Alloc)
		metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	}

	return stats
}

func (s *Service) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	return e, ok
}

func (s *Service) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Service) recordStore() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

func (s *Service) workerPoolSize() int {
	if s.workerPool == nil {
		return 0
	}
	return s.workerPool.Size()
}

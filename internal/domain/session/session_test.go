package session_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/proctor/internal/domain/model"
	"github.com/okian/proctor/internal/domain/session"
	"github.com/okian/proctor/internal/domain/watch"
	"github.com/okian/proctor/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type frameStream struct{}

func (frameStream) CaptureFrame(context.Context) ([]byte, error) { return []byte{0xff, 0xd8}, nil }

type fakeCamera struct {
	err      error
	acquired atomic.Int32
	released atomic.Int32
}

func (c *fakeCamera) Acquire(context.Context) (session.Stream, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.acquired.Add(1)
	return frameStream{}, nil
}

func (c *fakeCamera) Release(session.Stream) { c.released.Add(1) }

type fakePlatform struct {
	mu          sync.Mutex
	handlers    map[watch.Signal][]func(watch.Notification)
	fullscreen  int
	exited      int
	fullscreenE error
}

func newPlatform() *fakePlatform {
	return &fakePlatform{handlers: make(map[watch.Signal][]func(watch.Notification))}
}

func (p *fakePlatform) Subscribe(sig watch.Signal, fn func(watch.Notification)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[sig] = append(p.handlers[sig], fn)
	idx := len(p.handlers[sig]) - 1
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.handlers[sig][idx] = nil
	}
}

func (p *fakePlatform) emit(n watch.Notification) {
	p.mu.Lock()
	hs := append([]func(watch.Notification){}, p.handlers[n.Signal]...)
	p.mu.Unlock()
	for _, h := range hs {
		if h != nil {
			h(n)
		}
	}
}

func (p *fakePlatform) hide() {
	p.emit(watch.Notification{Signal: watch.SignalVisibilityChange, Hidden: true})
}

func (p *fakePlatform) leaveFullscreen() {
	p.emit(watch.Notification{Signal: watch.SignalFullscreenChange, Fullscreen: false})
}

func (p *fakePlatform) RequestFullscreen(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fullscreen++
	return p.fullscreenE
}

func (p *fakePlatform) ExitFullscreen(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exited++
	return nil
}

type idleAnalyzer struct{}

func (idleAnalyzer) Analyze(context.Context, []byte) ([]string, error) { return nil, nil }

type gatedAnalyzer struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (a *gatedAnalyzer) Analyze(context.Context, []byte) ([]string, error) {
	a.once.Do(func() { close(a.entered) })
	<-a.release
	return []string{"phone-detected"}, nil
}

type fakeAttempts struct {
	id  string
	err error
}

func (a *fakeAttempts) StartAttempt(context.Context, model.SessionMeta) (string, error) {
	return a.id, a.err
}

type hangingAttempts struct {
	entered chan struct{}
}

func (a *hangingAttempts) StartAttempt(ctx context.Context, _ model.SessionMeta) (string, error) {
	close(a.entered)
	<-ctx.Done()
	return "", ctx.Err()
}

type gatedCamera struct {
	fakeCamera
	entered chan struct{}
	release chan struct{}
}

func (c *gatedCamera) Acquire(ctx context.Context) (session.Stream, error) {
	close(c.entered)
	<-c.release
	return c.fakeCamera.Acquire(ctx)
}

// stallingSink holds the first event of one type until released.
type stallingSink struct {
	recordingSink
	hold    string
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *stallingSink) Post(ctx context.Context, e model.Event) {
	if e.Type == s.hold {
		s.once.Do(func() {
			close(s.entered)
			<-s.release
		})
	}
	s.recordingSink.Post(ctx, e)
}

type recordingSink struct {
	mu     sync.Mutex
	events []model.Event
}

func (s *recordingSink) Post(_ context.Context, e model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

var meta = model.SessionMeta{StudentID: "stu-1", CertificationID: "cert-9", ExamID: "exam-3"}

func newSession(cam *fakeCamera, plat *fakePlatform, opts ...session.Option) *session.Session {
	opts = append([]session.Option{session.WithFrameInterval(time.Hour)}, opts...)
	return session.New("s-1", meta, cam, idleAnalyzer{}, plat, opts...)
}

func TestSessionStart(t *testing.T) {
	Convey("Given an idle session with a working camera", t, func() {
		cam := &fakeCamera{}
		plat := newPlatform()
		sink := &recordingSink{}
		s := newSession(cam, plat,
			session.WithAttemptLog(&fakeAttempts{id: "att-77"}),
			session.WithSink(sink),
		)

		Convey("When it is started", func() {
			err := s.Start(context.Background(), nil)
			defer s.Stop(context.Background(), nil)
			<-s.Registered()

			Convey("Then it should be active with the camera ready", func() {
				So(err, ShouldBeNil)
				snap := s.Snapshot()
				So(snap.State, ShouldEqual, model.StateActive)
				So(snap.CameraReady, ShouldBeTrue)
				So(snap.AttemptID, ShouldEqual, "att-77")
				So(snap.Points, ShouldEqual, 0)
				So(snap.StartedAt.IsZero(), ShouldBeFalse)
				So(plat.fullscreen, ShouldEqual, 1)
			})

			Convey("And session_started should be posted", func() {
				So(sink.types(), ShouldResemble, []string{model.EventSessionStarted})
				So(sink.events[0].AttemptID, ShouldEqual, "att-77")
			})

			Convey("And a second start should be rejected", func() {
				So(errors.Is(s.Start(context.Background(), nil), session.ErrAlreadyActive), ShouldBeTrue)
				So(cam.acquired.Load(), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a camera whose permission is denied", t, func() {
		cam := &fakeCamera{err: errors.New("permission denied")}
		plat := newPlatform()
		s := newSession(cam, plat)

		Convey("When the session is started", func() {
			err := s.Start(context.Background(), nil)

			Convey("Then it should fail and stay idle", func() {
				So(errors.Is(err, session.ErrCameraUnavailable), ShouldBeTrue)
				So(s.Snapshot().State, ShouldEqual, model.StateIdle)
				So(plat.fullscreen, ShouldEqual, 0)
			})

			Convey("And environment signals should not raise alerts", func() {
				plat.hide()
				So(s.Alerts(), ShouldBeEmpty)
			})
		})
	})

	Convey("Given attempt registration that fails", t, func() {
		cam := &fakeCamera{}
		plat := newPlatform()
		plat.fullscreenE = errors.New("fullscreen refused")
		sink := &recordingSink{}
		s := newSession(cam, plat,
			session.WithAttemptLog(&fakeAttempts{err: errors.New("network down")}),
			session.WithSink(sink),
		)

		Convey("When the session is started", func() {
			err := s.Start(context.Background(), nil)
			<-s.Registered()
			plat.hide()

			Convey("Then monitoring should proceed with events carrying no attempt", func() {
				So(err, ShouldBeNil)
				So(s.Snapshot().AttemptID, ShouldBeEmpty)
				So(len(s.Alerts()), ShouldEqual, 1)
				So(sink.types(), ShouldResemble, []string{model.EventSessionStarted, model.EventTabSwitch})
				So(sink.events[0].AttemptID, ShouldBeEmpty)
				So(sink.events[1].SessionID, ShouldEqual, "s-1")
			})

			s.Stop(context.Background(), nil)
		})
	})
}

func TestSessionViolations(t *testing.T) {
	Convey("Given an active session with a registered attempt", t, func() {
		cam := &fakeCamera{}
		plat := newPlatform()
		sink := &recordingSink{}
		var fired atomic.Int32
		s := newSession(cam, plat,
			session.WithAttemptLog(&fakeAttempts{id: "att-1"}),
			session.WithSink(sink),
		)
		So(s.Start(context.Background(), func() { fired.Add(1) }), ShouldBeNil)
		defer s.Stop(context.Background(), nil)
		<-s.Registered()

		Convey("When the student leaves fullscreen twice", func() {
			plat.leaveFullscreen()
			plat.leaveFullscreen()

			Convey("Then both exits score but the ledger collapses them", func() {
				So(s.Snapshot().Points, ShouldEqual, 2)
				So(len(s.Alerts()), ShouldEqual, 1)
				So(sink.types(), ShouldResemble, []string{
					model.EventSessionStarted, model.EventFullscreenExit, model.EventFullscreenExit,
				})
			})
		})

		Convey("When the page is hidden four times", func() {
			for i := 0; i < 4; i++ {
				plat.hide()
			}

			Convey("Then the session should still be running", func() {
				snap := s.Snapshot()
				So(snap.Points, ShouldEqual, 4)
				So(snap.TerminatedByMalpractice, ShouldBeFalse)
				So(fired.Load(), ShouldEqual, 0)
				So(len(s.Alerts()), ShouldEqual, 4)
			})

			Convey("And a fifth violation should terminate it exactly once", func() {
				plat.hide()
				plat.hide()
				So(fired.Load(), ShouldEqual, 1)
				So(s.Snapshot().TerminatedByMalpractice, ShouldBeTrue)
			})
		})
	})
}

func TestSessionStop(t *testing.T) {
	Convey("Given an active session", t, func() {
		cam := &fakeCamera{}
		plat := newPlatform()
		sink := &recordingSink{}
		s := newSession(cam, plat,
			session.WithAttemptLog(&fakeAttempts{id: "att-5"}),
			session.WithSink(sink),
		)
		So(s.Start(context.Background(), nil), ShouldBeNil)
		<-s.Registered()
		plat.hide()

		Convey("When it is stopped twice", func() {
			var ended [][]model.Alert
			first := s.Stop(context.Background(), func(a []model.Alert) { ended = append(ended, a) })
			second := s.Stop(context.Background(), func(a []model.Alert) { ended = append(ended, a) })

			Convey("Then teardown should happen exactly once", func() {
				So(first, ShouldBeTrue)
				So(second, ShouldBeFalse)
				So(cam.released.Load(), ShouldEqual, 1)
				So(plat.exited, ShouldEqual, 1)
				So(len(ended), ShouldEqual, 1)
			})

			Convey("And the terminal alert should lead the final ledger", func() {
				alerts := ended[0]
				So(len(alerts), ShouldEqual, 2)
				So(alerts[0].Kind, ShouldEqual, model.KindSystem)
				So(alerts[0].Message, ShouldEqual, session.EndedMessage)
				So(alerts[1].Kind, ShouldEqual, model.KindTabSwitch)
			})

			Convey("And session_ended should be the last event", func() {
				types := sink.types()
				So(types[len(types)-1], ShouldEqual, model.EventSessionEnded)
			})

			Convey("And signals after stop should be ignored", func() {
				plat.hide()
				So(len(s.Alerts()), ShouldEqual, 2)
				So(s.Snapshot().State, ShouldEqual, model.StateIdle)
				So(s.Snapshot().CameraReady, ShouldBeFalse)
			})

			Convey("And a restart should begin from a clean slate", func() {
				So(s.Start(context.Background(), nil), ShouldBeNil)
				snap := s.Snapshot()
				So(snap.Points, ShouldEqual, 0)
				So(s.Alerts(), ShouldBeEmpty)
				So(cam.acquired.Load(), ShouldEqual, 2)
				s.Stop(context.Background(), nil)
				So(cam.released.Load(), ShouldEqual, 2)
			})
		})
	})

	Convey("Given a threshold callback that stops the session", t, func() {
		cam := &fakeCamera{}
		plat := newPlatform()
		var s *session.Session
		var ended atomic.Int32
		s = newSession(cam, plat, session.WithThreshold(2))
		So(s.Start(context.Background(), func() {
			s.Stop(context.Background(), func([]model.Alert) { ended.Add(1) })
		}), ShouldBeNil)

		Convey("When the threshold is reached", func() {
			plat.hide()
			plat.hide()

			Convey("Then the session should stop without deadlocking", func() {
				So(ended.Load(), ShouldEqual, 1)
				So(s.Snapshot().State, ShouldEqual, model.StateIdle)
				So(s.Snapshot().TerminatedByMalpractice, ShouldBeTrue)
				So(cam.released.Load(), ShouldEqual, 1)
			})
		})
	})

	Convey("Given an analysis in flight when the session stops", t, func() {
		cam := &fakeCamera{}
		plat := newPlatform()
		a := &gatedAnalyzer{entered: make(chan struct{}), release: make(chan struct{})}
		s := session.New("s-2", meta, cam, a, plat, session.WithFrameInterval(time.Millisecond))
		So(s.Start(context.Background(), nil), ShouldBeNil)
		<-a.entered

		Convey("When the late result arrives after stop", func() {
			s.Stop(context.Background(), nil)
			close(a.release)
			time.Sleep(20 * time.Millisecond)

			Convey("Then it should not reach the ledger or the score", func() {
				alerts := s.Alerts()
				So(len(alerts), ShouldEqual, 1)
				So(alerts[0].Message, ShouldEqual, session.EndedMessage)
				So(s.Snapshot().Points, ShouldEqual, 0)
			})
		})
	})
}

func TestSessionStopRaces(t *testing.T) {
	Convey("Given a violation held between the ledger and the scorer", t, func() {
		cam := &fakeCamera{}
		plat := newPlatform()
		sink := &stallingSink{hold: model.EventTabSwitch, entered: make(chan struct{}), release: make(chan struct{})}
		s := newSession(cam, plat, session.WithSink(sink))
		So(s.Start(context.Background(), nil), ShouldBeNil)

		raised := make(chan struct{})
		go func() {
			defer close(raised)
			plat.hide()
		}()
		<-sink.entered

		Convey("When the session stops before the violation is scored", func() {
			s.Stop(context.Background(), nil)
			atStop := s.Snapshot().Points
			close(sink.release)
			<-raised

			Convey("Then the late violation should not change the score", func() {
				So(atStop, ShouldEqual, 0)
				So(s.Snapshot().Points, ShouldEqual, 0)
				So(s.Snapshot().State, ShouldEqual, model.StateIdle)
			})
		})
	})

	Convey("Given an attempt log that never answers", t, func() {
		cam := &fakeCamera{}
		plat := newPlatform()
		attempts := &hangingAttempts{entered: make(chan struct{})}
		sink := &recordingSink{}
		s := newSession(cam, plat,
			session.WithAttemptLog(attempts),
			session.WithSink(sink),
			session.WithRegistrationTimeout(time.Hour),
		)
		Reset(func() { s.Stop(context.Background(), nil) })

		Convey("When the session is started", func() {
			begin := time.Now()
			err := s.Start(context.Background(), nil)
			elapsed := time.Since(begin)
			<-attempts.entered

			Convey("Then start should return without waiting for registration", func() {
				So(err, ShouldBeNil)
				So(elapsed, ShouldBeLessThan, time.Second)
				So(s.Snapshot().State, ShouldEqual, model.StateActive)
			})

			Convey("And stop should cancel the pending registration", func() {
				So(s.Stop(context.Background(), nil), ShouldBeTrue)
				<-s.Registered()
				So(s.Snapshot().AttemptID, ShouldBeEmpty)
				So(sink.types(), ShouldResemble, []string{model.EventSessionEnded})
			})
		})
	})

	Convey("Given a session whose camera is still being acquired", t, func() {
		cam := &gatedCamera{entered: make(chan struct{}), release: make(chan struct{})}
		plat := newPlatform()
		s := session.New("s-3", meta, cam, idleAnalyzer{}, plat, session.WithFrameInterval(time.Hour))
		Reset(func() { s.Stop(context.Background(), nil) })

		started := make(chan error, 1)
		go func() { started <- s.Start(context.Background(), nil) }()
		<-cam.entered

		Convey("When it is stopped during the start", func() {
			stopped := s.Stop(context.Background(), nil)
			close(cam.release)
			err := <-started

			Convey("Then the stop should be a no-op and the start should complete", func() {
				So(stopped, ShouldBeFalse)
				So(err, ShouldBeNil)
				So(s.Snapshot().State, ShouldEqual, model.StateActive)
			})

			Convey("And a stop after the start should tear it down", func() {
				So(s.Stop(context.Background(), nil), ShouldBeTrue)
				So(cam.released.Load(), ShouldEqual, 1)
			})
		})
	})
}

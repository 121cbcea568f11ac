package analysis_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/proctor/internal/domain/analysis"
	"github.com/okian/proctor/internal/domain/model"
	"github.com/okian/proctor/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type stubSource struct {
	mu    sync.Mutex
	frame []byte
	err   error
	calls int
}

func (s *stubSource) CaptureFrame(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.frame, s.err
}

func (s *stubSource) set(frame []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame, s.err = frame, err
}

type scriptedAnalyzer struct {
	mu     sync.Mutex
	script []func() ([]string, error)
	calls  atomic.Int32
}

func (a *scriptedAnalyzer) Analyze(ctx context.Context, _ []byte) ([]string, error) {
	n := int(a.calls.Add(1)) - 1
	a.mu.Lock()
	var step func() ([]string, error)
	if n < len(a.script) {
		step = a.script[n]
	}
	a.mu.Unlock()
	if step == nil {
		return nil, nil
	}
	return step()
}

type blockingAnalyzer struct {
	entered chan struct{}
	once    sync.Once
	calls   atomic.Int32
}

func (a *blockingAnalyzer) Analyze(ctx context.Context, _ []byte) ([]string, error) {
	a.calls.Add(1)
	a.once.Do(func() { close(a.entered) })
	<-ctx.Done()
	return []string{"phone-detected"}, ctx.Err()
}

type recordingRaiser struct {
	mu     sync.Mutex
	active bool
	got    []model.Violation
}

func (r *recordingRaiser) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *recordingRaiser) Raise(_ context.Context, v model.Violation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, v)
}

func (r *recordingRaiser) violations() []model.Violation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Violation{}, r.got...)
}

var errBackend = errors.New("analyzer backend unavailable")

func TestSchedulerTick(t *testing.T) {
	Convey("Given a scheduler over a ready camera", t, func() {
		src := &stubSource{frame: []byte{0xff, 0xd8}}
		r := &recordingRaiser{active: true}
		clock := func() time.Time { return time.UnixMilli(42) }

		Convey("When the analyzer reports two violations", func() {
			a := &scriptedAnalyzer{script: []func() ([]string, error){
				func() ([]string, error) { return []string{"looking-away", "phone-detected"}, nil },
			}}
			s := analysis.New(src, a, r, analysis.WithClock(clock))
			s.Tick(context.Background())

			Convey("Then both should be raised with readable messages", func() {
				got := r.violations()
				So(len(got), ShouldEqual, 2)
				So(got[0].Kind, ShouldEqual, model.KindLookingAway)
				So(got[0].Message, ShouldEqual, "AI detected: looking away.")
				So(got[0].EventType, ShouldEqual, "looking-away")
				So(got[0].Metadata["ts"], ShouldEqual, int64(42))
				So(got[1].Message, ShouldEqual, "AI detected: phone detected.")
			})
		})

		Convey("When the analyzer returns unknown labels", func() {
			a := &scriptedAnalyzer{script: []func() ([]string, error){
				func() ([]string, error) { return []string{"sneezing", "tab-switch", "no-face"}, nil },
			}}
			analysis.New(src, a, r).Tick(context.Background())

			Convey("Then only analyzer kinds should be raised", func() {
				got := r.violations()
				So(len(got), ShouldEqual, 1)
				So(got[0].Kind, ShouldEqual, model.KindNoFace)
			})
		})

		Convey("When the analyzer fails three times and then recovers", func() {
			fail := func() ([]string, error) { return nil, errBackend }
			a := &scriptedAnalyzer{script: []func() ([]string, error){
				fail, fail, fail,
				func() ([]string, error) { return []string{"multiple-faces"}, nil },
			}}
			s := analysis.New(src, a, r)
			for i := 0; i < 4; i++ {
				s.Tick(context.Background())
			}

			Convey("Then failures should raise nothing and the fourth tick still analyzes", func() {
				So(a.calls.Load(), ShouldEqual, 4)
				got := r.violations()
				So(len(got), ShouldEqual, 1)
				So(got[0].Kind, ShouldEqual, model.KindMultipleFaces)
			})
		})

		Convey("When the session is no longer active", func() {
			r.active = false
			a := &scriptedAnalyzer{}
			analysis.New(src, a, r).Tick(context.Background())

			Convey("Then the tick should do nothing", func() {
				So(a.calls.Load(), ShouldEqual, 0)
				So(src.calls, ShouldEqual, 0)
			})
		})
	})

	Convey("Given a camera that is not ready", t, func() {
		src := &stubSource{}
		r := &recordingRaiser{active: true}
		a := &scriptedAnalyzer{}
		analysis.New(src, a, r).Tick(context.Background())

		Convey("Then the tick should be skipped silently", func() {
			So(src.calls, ShouldEqual, 1)
			So(a.calls.Load(), ShouldEqual, 0)
			So(r.violations(), ShouldBeEmpty)
		})
	})

	Convey("Given a camera whose feed is lost", t, func() {
		src := &stubSource{err: errors.New("track ended")}
		r := &recordingRaiser{active: true}
		a := &scriptedAnalyzer{}
		s := analysis.New(src, a, r)

		Convey("When several ticks fail to capture", func() {
			s.Tick(context.Background())
			s.Tick(context.Background())
			s.Tick(context.Background())

			Convey("Then a single system alert should be raised", func() {
				got := r.violations()
				So(len(got), ShouldEqual, 1)
				So(got[0].Kind, ShouldEqual, model.KindSystem)
				So(got[0].Message, ShouldEqual, analysis.CameraLostMessage)
				So(got[0].EventType, ShouldEqual, model.EventCameraLost)
				So(a.calls.Load(), ShouldEqual, 0)
			})

			Convey("And a recovery followed by another loss raises again", func() {
				src.set([]byte{1}, nil)
				s.Tick(context.Background())
				src.set(nil, errors.New("track ended"))
				s.Tick(context.Background())
				So(len(r.violations()), ShouldEqual, 2)
			})
		})
	})
}

func TestSchedulerLoop(t *testing.T) {
	Convey("Given a running scheduler with a short interval", t, func() {
		src := &stubSource{frame: []byte{1}}
		r := &recordingRaiser{active: true}
		a := &scriptedAnalyzer{}
		s := analysis.New(src, a, r, analysis.WithInterval(5*time.Millisecond))
		s.Start(context.Background())
		s.Start(context.Background())

		Convey("When it has ticked a few times and is stopped", func() {
			deadline := time.Now().Add(2 * time.Second)
			for a.calls.Load() < 3 && time.Now().Before(deadline) {
				time.Sleep(time.Millisecond)
			}
			s.Stop()
			s.Wait()
			after := a.calls.Load()
			time.Sleep(30 * time.Millisecond)

			Convey("Then no further ticks should run", func() {
				So(after, ShouldBeGreaterThanOrEqualTo, 3)
				So(a.calls.Load(), ShouldEqual, after)
				So(s.Running(), ShouldBeFalse)
			})

			Convey("And stopping again should be a no-op", func() {
				So(func() { s.Stop() }, ShouldNotPanic)
			})
		})
	})

	Convey("Given an analysis in flight", t, func() {
		src := &stubSource{frame: []byte{1}}
		r := &recordingRaiser{active: true}
		a := &blockingAnalyzer{entered: make(chan struct{})}
		s := analysis.New(src, a, r, analysis.WithInterval(time.Millisecond))
		s.Start(context.Background())
		<-a.entered

		Convey("When the scheduler is stopped", func() {
			s.Stop()
			s.Wait()

			Convey("Then the late result should be discarded", func() {
				So(r.violations(), ShouldBeEmpty)
			})
		})

		Convey("When more ticks fire before it returns", func() {
			time.Sleep(20 * time.Millisecond)
			s.Stop()
			s.Wait()

			Convey("Then they should be skipped instead of overlapping", func() {
				So(a.calls.Load(), ShouldEqual, 1)
			})
		})
	})
}

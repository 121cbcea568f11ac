// Package watch implements the environment watchers: small state machines
// that observe platform signals (fullscreen state, page visibility) and
// raise integrity violations while a session is active.
package watch

import (
	"context"
	"sync"
	"time"

	"github.com/okian/proctor/internal/domain/model"
	"github.com/okian/proctor/pkg/logger"
)

// Signal names a platform notification stream.
type Signal string

// Platform signals.
const (
	SignalFullscreenChange Signal = "fullscreenchange"
	SignalVisibilityChange Signal = "visibilitychange"
)

// Notification is one platform notification as observed after the change.
type Notification struct {
	Signal     Signal
	Fullscreen bool
	Hidden     bool
	At         time.Time
}

// Source delivers platform notifications to subscribers. The returned
// function removes the subscription; after it returns the handler is not
// invoked again.
type Source interface {
	Subscribe(sig Signal, fn func(Notification)) (unsubscribe func())
}

// Raiser receives violations from a watcher on behalf of one session.
type Raiser interface {
	// Active reports whether the owning session is still monitoring.
	Active() bool
	Raise(ctx context.Context, v model.Violation)
}

// State is the watcher state.
type State int

// Watcher states.
const (
	StateNormal State = iota
	StateViolating
)

func (s State) String() string {
	if s == StateViolating {
		return "violating"
	}
	return "normal"
}

// Watcher subscribes to one platform signal and turns deviations into
// violations.
type Watcher struct {
	name   string
	signal Signal
	source Source
	raiser Raiser
	// evaluate maps a notification to a violation and the next state. ok is
	// false when the notification is not a deviation.
	evaluate func(n Notification, current State) (v model.Violation, next State, ok bool)

	mu          sync.Mutex
	state       State
	violations  int
	unsubscribe func()

	logger logger.Logger
}

// Option applies a configuration option to a Watcher.
type Option func(*Watcher)

// WithLogger sets a custom logger for the watcher.
func WithLogger(l logger.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

func newWatcher(name string, sig Signal, src Source, r Raiser, opts []Option) *Watcher {
	w := &Watcher{
		name:   name,
		signal: sig,
		source: src,
		raiser: r,
		logger: logger.Get().Named("watch"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name returns the watcher name.
func (w *Watcher) Name() string { return w.name }

// Start subscribes to the platform signal. Starting twice is a no-op.
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.unsubscribe != nil {
		return
	}
	w.unsubscribe = w.source.Subscribe(w.signal, w.handle)
}

// Stop removes the subscription. Safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	unsub := w.unsubscribe
	w.unsubscribe = nil
	w.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// State returns the current watcher state.
func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Violations returns how many violations this watcher has raised.
func (w *Watcher) Violations() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.violations
}

func (w *Watcher) handle(n Notification) {
	if !w.raiser.Active() {
		return
	}

	w.mu.Lock()
	if w.unsubscribe == nil {
		w.mu.Unlock()
		return
	}
	v, next, ok := w.evaluate(n, w.state)
	w.state = next
	if ok {
		w.violations++
	}
	w.mu.Unlock()

	if !ok {
		return
	}
	ctx := context.Background()
	w.logger.Debug(ctx, "environment deviation",
		logger.String("watcher", w.name),
		logger.String("kind", string(v.Kind)),
	)
	w.raiser.Raise(ctx, v)
}

func timestamp(n Notification) time.Time {
	if n.At.IsZero() {
		return time.Now()
	}
	return n.At
}

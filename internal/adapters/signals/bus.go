// Package signals implements the exam platform for one session: it relays
// fullscreen and visibility notifications reported by the exam client to
// the session's watchers and tracks the resulting environment state.
package signals

import (
	"context"
	"sync"
	"time"

	"github.com/okian/proctor/internal/domain/watch"
)

// State is the environment as last reported.
type State struct {
	Fullscreen          bool
	Hidden              bool
	FullscreenRequested bool
}

// Bus is a per-session publish/subscribe hub for platform notifications.
type Bus struct {
	now func() time.Time

	mu    sync.Mutex
	subs  map[watch.Signal]map[uint64]func(watch.Notification)
	next  uint64
	state State
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		now:  time.Now,
		subs: make(map[watch.Signal]map[uint64]func(watch.Notification)),
	}
}

// Subscribe registers fn for sig.
func (b *Bus) Subscribe(sig watch.Signal, fn func(watch.Notification)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[sig] == nil {
		b.subs[sig] = make(map[uint64]func(watch.Notification))
	}
	b.next++
	id := b.next
	b.subs[sig][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[sig], id)
	}
}

// Subscribers returns the number of handlers registered for sig.
func (b *Bus) Subscribers(sig watch.Signal) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[sig])
}

// SetFullscreen reports a fullscreen change.
func (b *Bus) SetFullscreen(on bool) {
	b.mu.Lock()
	b.state.Fullscreen = on
	b.mu.Unlock()
	b.publish(watch.Notification{Signal: watch.SignalFullscreenChange, Fullscreen: on})
}

// SetHidden reports a visibility change.
func (b *Bus) SetHidden(hidden bool) {
	b.mu.Lock()
	b.state.Hidden = hidden
	b.mu.Unlock()
	b.publish(watch.Notification{Signal: watch.SignalVisibilityChange, Hidden: hidden})
}

// State returns the last reported environment.
func (b *Bus) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// RequestFullscreen asks the client to enter fullscreen. The request is
// recorded and surfaced through State; the client confirms with a
// fullscreenchange notification.
func (b *Bus) RequestFullscreen(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.FullscreenRequested = true
	return nil
}

// ExitFullscreen withdraws the fullscreen request.
func (b *Bus) ExitFullscreen(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.FullscreenRequested = false
	return nil
}

// publish delivers n to a snapshot of the subscribers, outside the lock, so
// a handler may unsubscribe.
func (b *Bus) publish(n watch.Notification) {
	n.At = b.now()

	b.mu.Lock()
	handlers := make([]func(watch.Notification), 0, len(b.subs[n.Signal]))
	for _, fn := range b.subs[n.Signal] {
		handlers = append(handlers, fn)
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		fn(n)
	}
}

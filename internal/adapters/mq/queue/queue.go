// Package queue holds attempt-log events between the session that raised
// them and the workers that deliver them.
//
// The queue never blocks a producer: when it is full the event is dropped
// and the caller is told so.
package queue

import (
	"context"
	"sync"

	"github.com/okian/proctor/internal/domain/model"
	"github.com/okian/proctor/pkg/metrics"
)

const defaultQueueCapacity = 1024

// Event is the payload flowing through the queue.
type Event = model.Event

// Queue provides non-blocking enqueue and channel-based dequeue.
type Queue interface {
	// Enqueue adds an event. It returns ErrFull or ErrClosed when the event
	// was not accepted.
	Enqueue(ctx context.Context, e Event) error

	// Dequeue returns a channel that receives events until the queue is
	// closed and drained, or ctx is canceled.
	Dequeue(ctx context.Context) <-chan Event

	Len() int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue on a buffered channel.
type InMemoryQueue struct {
	events   chan Event
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a bounded queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan Event, q.capacity)
	metrics.UpdateSinkQueueSize(0)
	return q
}

// Enqueue adds an event without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Event) error { //nolint:gocritic // hugeParam: events travel by value over the channel
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordSinkDropped("closed")
		return ErrClosed
	}

	select {
	case q.events <- e:
		metrics.RecordSinkEnqueued()
		metrics.UpdateSinkQueueSize(len(q.events))
		return nil
	case <-ctx.Done():
		metrics.RecordSinkDropped("context_canceled")
		return ctx.Err()
	default:
		metrics.RecordSinkDropped("queue_full")
		return ErrFull
	}
}

// Dequeue returns a channel fed from the queue. Several consumers may call
// Dequeue; each event is delivered to exactly one of them.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-q.events:
				if !ok {
					return
				}
				metrics.UpdateSinkQueueSize(len(q.events))
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Len returns the number of buffered events.
func (q *InMemoryQueue) Len() int {
	return len(q.events)
}

// Close stops accepting events. Buffered events remain available to
// consumers until drained. Closing twice is a no-op.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.events)
	q.closed = true
	return nil
}

// IsClosed reports whether Close has been called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

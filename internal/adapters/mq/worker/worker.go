// Package worker delivers queued attempt-log events to a publisher.
// Delivery is best effort: a failed publish is logged and counted, never
// retried.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/proctor/internal/domain/model"
	"github.com/okian/proctor/pkg/logger"
	"github.com/okian/proctor/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultDeliveryTimeout = 10 * time.Second
	poolShutdownTimeout    = 30 * time.Second
)

// Publisher sends one event to its destination.
type Publisher interface {
	Publish(ctx context.Context, e model.Event) error
}

// Queue is where workers read events from.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Event
}

// DeliveryWorker pulls events off a queue and publishes them one by one.
type DeliveryWorker struct {
	queue     Queue
	publisher Publisher
	name      string
	timeout   time.Duration

	done chan struct{}

	logger logger.Logger
}

// NewDeliveryWorker creates a worker.
func NewDeliveryWorker(q Queue, p Publisher, opts ...Option) *DeliveryWorker {
	w := &DeliveryWorker{
		queue:     q,
		publisher: p,
		name:      "worker",
		timeout:   defaultDeliveryTimeout,
		done:      make(chan struct{}),
		logger:    logger.Get().Named("sink-worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run delivers events until the queue is drained after Close or ctx is
// canceled.
func (w *DeliveryWorker) Run(ctx context.Context) {
	defer close(w.done)

	for e := range w.queue.Dequeue(ctx) {
		w.deliver(ctx, e)
	}
}

// Done is closed when Run returns.
func (w *DeliveryWorker) Done() <-chan struct{} { return w.done }

func (w *DeliveryWorker) deliver(ctx context.Context, e model.Event) { //nolint:gocritic // hugeParam: events travel by value over the channel
	start := time.Now()
	pctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if err := w.publisher.Publish(pctx, e); err != nil {
		metrics.RecordSinkFailed()
		metrics.RecordErrorByComponent("sink", "publish_failed")
		w.logger.Warn(ctx, "event delivery failed",
			logger.String("session_id", e.SessionID),
			logger.String("attempt_id", e.AttemptID),
			logger.String("event_type", e.Type),
			logger.Error(err),
		)
		return
	}
	metrics.RecordSinkDelivered(float64(time.Since(start).Milliseconds()))
}

// Pool runs several delivery workers over one queue.
type Pool struct {
	workers []*DeliveryWorker
	queue   Queue

	cancel context.CancelFunc
	once   sync.Once

	logger logger.Logger
}

// NewPool creates a pool. A non-positive count uses one worker per CPU.
func NewPool(workerCount int, q Queue, p Publisher, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers: make([]*DeliveryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("sink-pool"),
	}
	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		pool.workers[i] = NewDeliveryWorker(q, p, wopts...)
	}
	metrics.UpdateSinkWorkers(workerCount)
	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue, lets the workers drain it and waits for them
// until ctx or the pool timeout expires. Pending events are abandoned on
// timeout.
func (p *Pool) Shutdown(ctx context.Context) error {
	var err error
	p.once.Do(func() {
		if closer, ok := p.queue.(interface{ Close() error }); ok {
			if cerr := closer.Close(); cerr != nil {
				p.logger.Error(ctx, "error closing queue", logger.Error(cerr))
			}
		}

		shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
		defer cancel()

		for i, w := range p.workers {
			select {
			case <-w.done:
			case <-shutdownCtx.Done():
				p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
				err = fmt.Errorf("shutdown timed out: %w", shutdownCtx.Err())
			}
			if err != nil {
				break
			}
		}
		if p.cancel != nil {
			p.cancel()
		}
		metrics.UpdateSinkWorkers(0)
	})
	return err
}

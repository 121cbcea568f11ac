package worker

import (
	"time"

	"github.com/okian/proctor/pkg/logger"
)

// Option applies a configuration option to the DeliveryWorker.
type Option func(*DeliveryWorker)

// WithName sets the worker name used in logs.
func WithName(name string) Option {
	return func(w *DeliveryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *DeliveryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDeliveryTimeout bounds a single publish call.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(w *DeliveryWorker) {
		if d > 0 {
			w.timeout = d
		}
	}
}

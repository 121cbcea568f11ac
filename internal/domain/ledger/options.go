package ledger

import "time"

// Option applies a configuration option to the Ledger.
type Option func(*Ledger)

// WithCapacity bounds the number of alerts kept. When full, the oldest alert
// is evicted. Capacity <= 0 keeps every alert.
func WithCapacity(capacity int) Option {
	return func(l *Ledger) {
		l.capacity = capacity
	}
}

// WithClock overrides the time source used to stamp alerts.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

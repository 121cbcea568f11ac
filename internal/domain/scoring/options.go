package scoring

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithThreshold sets the number of violation points that terminates a
// session. Non-positive values keep the default.
func WithThreshold(threshold int) Option {
	return func(s *Scorer) {
		if threshold > 0 {
			s.threshold = threshold
		}
	}
}

// WithCallback registers the termination callback at construction time.
func WithCallback(cb func()) Option {
	return func(s *Scorer) {
		s.onTerminate = cb
	}
}

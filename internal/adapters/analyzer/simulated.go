package analyzer

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/okian/proctor/internal/domain/model"
)

// Default simulation parameters.
const (
	defaultMinLatency    = 80 * time.Millisecond
	defaultMaxLatency    = 150 * time.Millisecond
	defaultRandomSeed    = 42
	defaultViolationRate = 0.1
)

// SimOption applies a configuration option to the Simulated analyzer.
type SimOption func(*Simulated)

// WithLatencyRange sets the simulated latency range.
func WithLatencyRange(minLatency, maxLatency time.Duration) SimOption {
	return func(s *Simulated) {
		if minLatency >= 0 && maxLatency > minLatency {
			s.minLatency = minLatency
			s.maxLatency = maxLatency
		}
	}
}

// WithSeed fixes the random source.
func WithSeed(seed int64) SimOption {
	return func(s *Simulated) {
		s.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // reproducible drills
	}
}

// WithViolationRate sets the per-label probability of a detection, in [0,1].
func WithViolationRate(p float64) SimOption {
	return func(s *Simulated) {
		if p >= 0 && p <= 1 {
			s.rate = p
		}
	}
}

// WithLabels restricts the labels the simulation may report.
func WithLabels(labels ...model.Kind) SimOption {
	return func(s *Simulated) {
		if len(labels) > 0 {
			s.labels = append([]model.Kind(nil), labels...)
		}
	}
}

// Simulated stands in for a remote vision model. It sleeps for a random
// latency and then reports each label independently with a fixed
// probability.
type Simulated struct {
	minLatency time.Duration
	maxLatency time.Duration
	rate       float64
	labels     []model.Kind

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated creates a deterministic simulated analyzer.
func NewSimulated(opts ...SimOption) *Simulated {
	s := &Simulated{
		minLatency: defaultMinLatency,
		maxLatency: defaultMaxLatency,
		rate:       defaultViolationRate,
		labels: []model.Kind{
			model.KindLookingAway,
			model.KindMultipleFaces,
			model.KindPhoneDetected,
			model.KindFaceUnclear,
			model.KindNoFace,
		},
		rng: rand.New(rand.NewSource(defaultRandomSeed)), //nolint:gosec // reproducible drills
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze simulates one analysis round trip.
func (s *Simulated) Analyze(ctx context.Context, frame []byte) ([]string, error) {
	if len(frame) == 0 {
		return nil, ErrEmptyFrame
	}

	s.mu.Lock()
	latency := s.minLatency
	if span := int64(s.maxLatency - s.minLatency); span > 0 {
		latency += time.Duration(s.rng.Int63n(span))
	}
	var labels []string
	for _, k := range s.labels {
		if s.rng.Float64() < s.rate {
			labels = append(labels, string(k))
		}
	}
	s.mu.Unlock()

	timer := time.NewTimer(latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrAnalysis, ctx.Err())
	case <-timer.C:
	}
	return labels, nil
}

// Package camera implements a camera fed by frames uploaded from the exam
// client. The client grants the device, pushes JPEG frames and reports when
// the device goes away; the session acquires the feed and samples the most
// recent frame.
package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/okian/proctor/internal/domain/session"
)

// Errors returned by the feed.
var (
	ErrPermissionDenied = errors.New("camera: permission denied")
	ErrBusy             = errors.New("camera: feed already acquired")
	ErrSourceClosed     = errors.New("camera: source closed")
	ErrFrameTooLarge    = errors.New("camera: frame too large")
	ErrEmptyFrame       = errors.New("camera: empty frame")
)

const defaultMaxFrameBytes = 2 << 20

// Option applies a configuration option to the Feed.
type Option func(*Feed)

// WithMaxFrameBytes bounds an uploaded frame.
func WithMaxFrameBytes(n int) Option {
	return func(f *Feed) {
		if n > 0 {
			f.maxFrameBytes = n
		}
	}
}

// WithGranted starts the feed with the device already granted.
func WithGranted() Option {
	return func(f *Feed) {
		f.granted = true
	}
}

// Feed is a single-holder camera backed by the latest uploaded frame.
type Feed struct {
	maxFrameBytes int

	mu      sync.Mutex
	granted bool
	closed  bool
	holder  *stream
	frame   []byte
	frames  uint64
}

// NewFeed creates a feed. Until Grant is called, Acquire fails with
// ErrPermissionDenied.
func NewFeed(opts ...Option) *Feed {
	f := &Feed{maxFrameBytes: defaultMaxFrameBytes}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Grant records that the client allowed camera access. It also reopens a
// feed that was previously revoked.
func (f *Feed) Grant() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.granted = true
	f.closed = false
}

// Revoke records that the device went away. A held stream starts failing
// with ErrSourceClosed and new acquisitions are refused.
func (f *Feed) Revoke() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.granted = false
	f.closed = true
	f.frame = nil
}

// Push stores frame as the latest image.
func (f *Feed) Push(frame []byte) error {
	if len(frame) == 0 {
		return ErrEmptyFrame
	}
	if len(frame) > f.maxFrameBytes {
		return fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, len(frame), f.maxFrameBytes)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.granted {
		return ErrPermissionDenied
	}
	f.frame = append(f.frame[:0:0], frame...)
	f.frames++
	return nil
}

// Frames returns how many frames have been pushed.
func (f *Feed) Frames() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames
}

// Held reports whether a session currently holds the feed.
func (f *Feed) Held() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.holder != nil
}

// Acquire hands out the feed exclusively.
func (f *Feed) Acquire(ctx context.Context) (session.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.granted {
		return nil, ErrPermissionDenied
	}
	if f.holder != nil {
		return nil, ErrBusy
	}
	f.holder = &stream{feed: f}
	return f.holder, nil
}

// Release gives the feed back. Releasing a stale or foreign stream is a
// no-op.
func (f *Feed) Release(s session.Stream) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if st, ok := s.(*stream); ok && st == f.holder {
		f.holder = nil
		f.frame = nil
	}
}

type stream struct {
	feed *Feed
}

// CaptureFrame returns a copy of the latest frame, nil before the first
// upload, or ErrSourceClosed once the device is gone or the stream was
// released.
func (s *stream) CaptureFrame(context.Context) ([]byte, error) {
	f := s.feed
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.holder != s {
		return nil, ErrSourceClosed
	}
	if len(f.frame) == 0 {
		return nil, nil
	}
	return append([]byte(nil), f.frame...), nil
}

// Package readiness tracks whether the process is ready to serve.
package readiness

import (
	"context"
	"sync"

	"go.uber.org/atomic"
)

// Signal flips from not ready to ready once.
type Signal struct {
	ready atomic.Bool
	once  sync.Once
	ch    chan struct{}
}

// New returns a Signal that is not ready.
func New() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// MarkReady marks the signal ready and releases every waiter. Later calls
// do nothing.
func (s *Signal) MarkReady() {
	s.once.Do(func() {
		s.ready.Store(true)
		close(s.ch)
	})
}

// Ready reports whether MarkReady was called.
func (s *Signal) Ready() bool {
	return s.ready.Load()
}

// Wait blocks until the signal is ready or ctx is done.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-s.ch:
		return nil
	default:
	}
	select {
	case <-s.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed once the signal is ready.
func (s *Signal) Done() <-chan struct{} {
	return s.ch
}

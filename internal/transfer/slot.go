package transfer

import (
	"context"
	"io"
	"sync"

	"golang.org/x/sync/semaphore"
)

// slot is a channel's claim on the shared upload limiter. A paused channel
// gives its slot back so sibling uploads can proceed, and claims one again
// before the next read.
type slot struct {
	limiter *semaphore.Weighted

	mu     sync.Mutex
	held   bool
	closed bool
}

func (s *slot) acquire(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return io.ErrClosedPipe
	}
	if s.held {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.limiter.Acquire(ctx, 1); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.held {
		s.limiter.Release(1)
		if s.closed {
			return io.ErrClosedPipe
		}
		return nil
	}
	s.held = true
	return nil
}

func (s *slot) release() {
	if s.limiter == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held {
		s.held = false
		s.limiter.Release(1)
	}
}

// close releases the slot for good; later acquires fail.
func (s *slot) close() {
	s.release()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *slot) isHeld() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held
}

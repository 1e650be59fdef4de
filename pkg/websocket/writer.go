package websocket

import (
	"context"
	"sync"
)

// serializer runs outbound units of work strictly one at a time, in
// submission order. Ownership of the slot is handed directly from the
// finishing unit to the oldest waiter.
type serializer struct {
	mu      sync.Mutex
	busy    bool
	waiters []chan struct{}
}

func newSerializer() *serializer {
	return &serializer{}
}

// Do waits for the slot, runs fn and releases the slot. If ctx ends before
// the unit's turn, fn is not run.
func (s *serializer) Do(ctx context.Context, fn func() error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	return fn()
}

func (s *serializer) acquire(ctx context.Context) error {
	s.mu.Lock()
	if !s.busy {
		s.busy = true
		s.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	s.waiters = append(s.waiters, ready)
	s.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
	}

	s.mu.Lock()
	for i, ch := range s.waiters {
		if ch == ready {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			s.mu.Unlock()
			return ctx.Err()
		}
	}
	s.mu.Unlock()

	// the slot was handed over while ctx ended; pass it on
	<-ready
	s.release()
	return ctx.Err()
}

func (s *serializer) release() {
	s.mu.Lock()
	if len(s.waiters) == 0 {
		s.busy = false
		s.mu.Unlock()
		return
	}
	next := s.waiters[0]
	s.waiters[0] = nil
	s.waiters = s.waiters[1:]
	close(next)
	s.mu.Unlock()
}


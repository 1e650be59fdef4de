package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// Pending returns the number of units waiting for the slot.
func (s *serializer) Pending() int {
	s.mu.Lock()
	n := len(s.waiters)
	s.mu.Unlock()
	return n
}

func TestSerializerRunsUnitsInSubmissionOrder(t *testing.T) {
	s := newSerializer()
	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_ = s.Do(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Do(context.Background(), func() error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}()
		// queue the waiters one by one
		for s.Pending() != i+1 {
			time.Sleep(time.Millisecond)
		}
	}
	close(release)
	wg.Wait()

	for i, v := range order {
		if v != i {
			t.Fatalf("expected FIFO order, got %v", order)
		}
	}
}

func TestSerializerNeverOverlaps(t *testing.T) {
	s := newSerializer()
	var (
		running atomic.Int32
		wg      sync.WaitGroup
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Do(context.Background(), func() error {
				if running.Add(1) != 1 {
					t.Error("two units ran at once")
				}
				time.Sleep(100 * time.Microsecond)
				running.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
}

func TestSerializerCanceledWaiterDoesNotRun(t *testing.T) {
	s := newSerializer()
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = s.Do(context.Background(), func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	ran := atomic.Bool{}
	go func() {
		errCh <- s.Do(ctx, func() error {
			ran.Store(true)
			return nil
		})
	}()
	for s.Pending() != 1 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-errCh; err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	close(release)

	if err := s.Do(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("slot should be free, got %v", err)
	}
	if ran.Load() {
		t.Fatal("canceled unit must not run")
	}
}

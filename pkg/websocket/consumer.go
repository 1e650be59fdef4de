package websocket

import (
	"context"
	"sync"
)

// eventQueue is a bounded ring buffer of events for one subscription.
// Push never waits unless the policy is OverflowBlock; Pop waits with ctx.
type eventQueue struct {
	mu       sync.Mutex
	buf      []Event
	head     int
	tail     int
	size     int
	closed   bool
	policy   OverflowPolicy
	notEmpty chan struct{}
	notFull  chan struct{}
	done     chan struct{}
}

func newEventQueue(capacity int, policy OverflowPolicy) *eventQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &eventQueue{
		buf:      make([]Event, capacity),
		policy:   policy,
		notEmpty: make(chan struct{}, 1),
		notFull:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Push enqueues an event according to the overflow policy. It returns
// dropped=true when an event was discarded (the incoming one or the oldest)
// and ok=false when the queue is closed.
func (q *eventQueue) Push(e Event) (ok bool, dropped bool) {
	q.mu.Lock()
	for {
		if q.closed {
			q.mu.Unlock()
			return false, false
		}
		if q.size < len(q.buf) {
			q.buf[q.tail] = e
			q.tail = (q.tail + 1) % len(q.buf)
			q.size++
			q.mu.Unlock()
			signal(q.notEmpty)
			return true, dropped
		}
		switch q.policy {
		case OverflowBlock:
			q.mu.Unlock()
			select {
			case <-q.notFull:
			case <-q.done:
			}
			q.mu.Lock()
		case OverflowDropOldest:
			q.buf[q.head] = Event{}
			q.head = (q.head + 1) % len(q.buf)
			q.size--
			dropped = true
		default:
			q.mu.Unlock()
			return true, true
		}
	}
}

// Pop dequeues the next event. It returns ok=false once the queue is closed
// and empty, and ctx.Err() when ctx ends first.
func (q *eventQueue) Pop(ctx context.Context) (Event, bool, error) {
	for {
		q.mu.Lock()
		if q.size > 0 {
			e := q.buf[q.head]
			q.buf[q.head] = Event{}
			q.head = (q.head + 1) % len(q.buf)
			q.size--
			q.mu.Unlock()
			signal(q.notFull)
			return e, true, nil
		}
		if q.closed {
			q.mu.Unlock()
			return Event{}, false, nil
		}
		q.mu.Unlock()

		select {
		case <-q.notEmpty:
		case <-q.done:
		case <-ctx.Done():
			return Event{}, false, ctx.Err()
		}
	}
}

// Close stops accepting events. Queued events stay readable when keep is
// true and are discarded otherwise.
func (q *eventQueue) Close(keep bool) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	if !keep {
		for i := range q.buf {
			q.buf[i] = Event{}
		}
		q.size = 0
		q.head = 0
		q.tail = 0
	}
	close(q.done)
	q.mu.Unlock()
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

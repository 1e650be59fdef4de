package websocket

import (
	"context"
	"testing"
	"time"
)

// Len returns the number of queued events.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	size := q.size
	q.mu.Unlock()
	return size
}

func ev(data string) Event {
	return Event{Data: []byte(data)}
}

func TestEventQueueDropOldest(t *testing.T) {
	q := newEventQueue(2, OverflowDropOldest)
	q.Push(ev("1"))
	q.Push(ev("2"))
	if _, dropped := q.Push(ev("3")); !dropped {
		t.Fatal("expected the oldest event to be dropped")
	}
	for _, want := range []string{"2", "3"} {
		got, ok, err := q.Pop(context.Background())
		if err != nil || !ok || got.String() != want {
			t.Fatalf("expected %s, got %q ok=%v err=%v", want, got.String(), ok, err)
		}
	}
}

func TestEventQueueDropNewest(t *testing.T) {
	q := newEventQueue(1, OverflowDropNewest)
	q.Push(ev("1"))
	if ok, dropped := q.Push(ev("2")); !ok || !dropped {
		t.Fatalf("expected the incoming event to be dropped, ok=%v dropped=%v", ok, dropped)
	}
	got, _, _ := q.Pop(context.Background())
	if got.String() != "1" {
		t.Fatalf("expected 1, got %s", got.String())
	}
}

func TestEventQueueBlockWaitsForSpace(t *testing.T) {
	q := newEventQueue(1, OverflowBlock)
	q.Push(ev("1"))

	pushed := make(chan struct{})
	go func() {
		q.Push(ev("2"))
		close(pushed)
	}()
	select {
	case <-pushed:
		t.Fatal("push should block on a full queue")
	case <-time.After(20 * time.Millisecond):
	}
	if got, _, _ := q.Pop(context.Background()); got.String() != "1" {
		t.Fatalf("expected 1, got %s", got.String())
	}
	select {
	case <-pushed:
	case <-time.After(time.Second):
		t.Fatal("push did not resume")
	}
}

func TestEventQueueCloseKeepsQueuedEvents(t *testing.T) {
	q := newEventQueue(4, OverflowDropOldest)
	q.Push(ev("1"))
	q.Close(true)

	if ok, _ := q.Push(ev("2")); ok {
		t.Fatal("push after close should fail")
	}
	if got, ok, _ := q.Pop(context.Background()); !ok || got.String() != "1" {
		t.Fatalf("expected queued event, got %q ok=%v", got.String(), ok)
	}
	if _, ok, err := q.Pop(context.Background()); ok || err != nil {
		t.Fatalf("expected closed queue, ok=%v err=%v", ok, err)
	}
}

func TestEventQueueCloseDiscards(t *testing.T) {
	q := newEventQueue(4, OverflowDropOldest)
	q.Push(ev("1"))
	q.Close(false)
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", q.Len())
	}
}

func TestEventQueuePopHonorsContext(t *testing.T) {
	q := newEventQueue(1, OverflowDropOldest)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, _, err := q.Pop(ctx); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestEventQueueCloseWakesBlockedPush(t *testing.T) {
	q := newEventQueue(1, OverflowBlock)
	q.Push(ev("1"))
	done := make(chan bool)
	go func() {
		ok, _ := q.Push(ev("2"))
		done <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close(false)
	if ok := <-done; ok {
		t.Fatal("blocked push should fail once the queue closes")
	}
}

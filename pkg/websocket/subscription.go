package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"

	"github.com/yanun0323/eventsocket/pkg/exception"
)

// Event is one message delivered to a subscription.
type Event struct {
	// ID is the subscription id.
	ID      string
	Channel string
	// Data is the decoded event document.
	Data       json.RawMessage
	ReceivedAt time.Time
}

// Decode unmarshals the event document into v.
func (e Event) Decode(v any) error {
	return sonic.Unmarshal(e.Data, v)
}

func (e Event) String() string {
	return string(e.Data)
}

type subscriptionState uint8

const (
	subscriptionPending subscriptionState = iota
	subscriptionActive
	subscriptionTerminated
)

// Subscription is the event stream of one subscribe operation. Events are
// read with Next or All; Close cancels the stream.
type Subscription struct {
	id      string
	channel string
	client  *Client
	auth    Authorizer
	queue   *eventQueue
	started time.Time
	dropped atomic.Uint64

	mu    sync.Mutex
	state subscriptionState
	err   error
	ready chan struct{}
	done  chan struct{}
}

// Subscribe registers a subscription on channel and sends the subscribe
// request, connecting first when needed. The stream is returned once the
// request is written; Ready waits for the broker's acknowledgment.
func (c *Client) Subscribe(ctx context.Context, channel string, opts ...OperationOption) (*Subscription, error) {
	if err := ValidateChannel(channel, true); err != nil {
		return nil, newUnknownError("subscribe", "", err)
	}
	o := c.operationOptions(opts)
	sub := &Subscription{
		id:      newOperationID(),
		channel: channel,
		client:  c,
		auth:    o.authorizer,
		queue:   newEventQueue(c.opt.EventQueueSize, c.opt.EventOverflow),
		started: time.Now(),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
	c.opt.Observer.OperationStarted(OperationSubscribe)

	if err := sub.start(ctx); err != nil {
		err = asOperationError("subscribe", sub.id, err)
		sub.terminate(err, false)
		return nil, err
	}
	return sub, nil
}

func (s *Subscription) start(ctx context.Context) error {
	c := s.client
	body, err := encodeMessage(subscribeBody{Channel: s.channel})
	if err != nil {
		return newUnknownError("subscribe", s.id, err)
	}
	headers, err := c.authorize(ctx, "subscribe", s.auth, AuthRequest{URL: c.endpoint, Channel: s.channel, Body: string(body)})
	if err != nil {
		return err
	}

	return c.writer.Do(ctx, func() error {
		sess, err := c.connect(ctx)
		if err != nil {
			return err
		}
		if err := c.register(sess, s.id, s); err != nil {
			return err
		}
		if err := sess.send(ctx, FrameSubscribe, newSubscribeMessage(s.id, s.channel, headers)); err != nil {
			c.unregister(s.id, s)
			return err
		}
		c.opt.Logger.Debugf("websocket: subscribe %s on %s", s.id, s.channel)
		return nil
	})
}

// ID returns the subscription id.
func (s *Subscription) ID() string {
	return s.id
}

// Channel returns the subscribed channel.
func (s *Subscription) Channel() string {
	return s.channel
}

// Dropped returns the number of events discarded by the overflow policy.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Done is closed once the stream is terminated.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns the terminal error, nil while the stream is live or after it
// completed cleanly.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Ready waits for subscribe_success. It returns the terminal error when the
// stream ends first.
func (s *Subscription) Ready(ctx context.Context) error {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == subscriptionActive {
		return nil
	}
	if s.err != nil {
		return s.err
	}
	return exception.ErrStreamClosed
}

// Next returns the next event. Once the stream is terminated and drained it
// returns the terminal error, or exception.ErrStreamClosed after a clean
// unsubscribe.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	ev, ok, err := s.queue.Pop(ctx)
	if err != nil {
		return Event{}, err
	}
	if ok {
		return ev, nil
	}
	if err := s.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, exception.ErrStreamClosed
}

// All iterates over the events until the stream ends. Breaking out of the
// loop or ending ctx cancels the subscription. A clean end yields no error.
func (s *Subscription) All(ctx context.Context) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			ev, err := s.Next(ctx)
			if err != nil {
				if errors.Is(err, exception.ErrStreamClosed) {
					return
				}
				if ctx.Err() != nil {
					s.Close()
				}
				yield(Event{}, err)
				return
			}
			if !yield(ev, nil) {
				s.Close()
				return
			}
		}
	}
}

// Close cancels the subscription. Queued events are discarded and an
// unsubscribe is sent in the background. It does not wait for the broker.
func (s *Subscription) Close() {
	c := s.client
	removed := c.unregister(s.id, s)
	if !s.terminate(newNetworkError("subscribe", s.id, exception.ErrCanceled), false) {
		return
	}
	if removed {
		c.opt.Logger.Debugf("websocket: subscription %s canceled", s.id)
		c.unsubscribeAsync(s.id)
	}
}

// Unsubscribe asks the broker to stop the subscription and waits for its
// reply. The stream completes on unsubscribe_success.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	c := s.client
	if _, err := c.current(); err != nil {
		return asOperationError("unsubscribe", s.id, err)
	}
	err := c.writer.Do(ctx, func() error {
		sess, err := c.current()
		if err != nil {
			return err
		}
		if !c.registered(s.id, s) {
			return newUnknownError("unsubscribe", s.id, exception.ErrUnknownOperation)
		}
		return sess.send(ctx, FrameUnsubscribe, newUnsubscribeMessage(s.id))
	})
	if err != nil {
		return asOperationError("unsubscribe", s.id, err)
	}

	select {
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return newNetworkError("unsubscribe", s.id, ctx.Err())
	}
}

func (s *Subscription) deliver(f Frame) {
	c := s.client
	switch f.Type {
	case FrameSubscribeSuccess:
		s.activate()
	case FrameSubscribeError, FrameError:
		s.finish(newServiceError("subscribe", s.id, f.FirstError()))
	case FrameData:
		s.push(f)
	case FrameBroadcastError:
		err := newServiceError("subscribe", s.id, f.FirstError())
		c.opt.Logger.Warnf("websocket: subscription %s broadcast error, err: %+v", s.id, err)
		if s.finish(err) {
			c.unsubscribeAsync(s.id)
		}
	case FrameUnsubscribeSuccess:
		s.finish(nil)
	case FrameUnsubscribeError:
		s.finish(newServiceError("unsubscribe", s.id, f.FirstError()))
	default:
		c.opt.Observer.FrameDropped("unexpected frame for subscription")
		c.opt.Logger.Debugf("websocket: subscription %s, drop %s frame", s.id, f.Type)
	}
}

func (s *Subscription) fail(err error) {
	s.terminate(asOperationError("subscribe", s.id, err), true)
}

func (s *Subscription) push(f Frame) {
	c := s.client
	var data json.RawMessage
	if err := sonic.UnmarshalString(f.Event, &data); err != nil || len(data) == 0 {
		c.opt.Observer.FrameDropped("undecodable event")
		c.opt.Logger.Debugf("websocket: subscription %s, drop undecodable event", s.id)
		return
	}
	ev := Event{
		ID:         s.id,
		Channel:    s.channel,
		Data:       append(json.RawMessage(nil), data...),
		ReceivedAt: time.Now(),
	}
	ok, dropped := s.queue.Push(ev)
	if dropped {
		s.dropped.Add(1)
		c.opt.Observer.EventDropped()
	}
	if !ok {
		c.opt.Logger.Debugf("websocket: subscription %s terminated, drop event", s.id)
	}
}

func (s *Subscription) activate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != subscriptionPending {
		return
	}
	s.state = subscriptionActive
	close(s.ready)
	s.client.opt.Logger.Debugf("websocket: subscription %s active after %s", s.id, time.Since(s.started))
}

// finish removes the registry entry and terminates the stream. It reports
// whether this call terminated it.
func (s *Subscription) finish(err error) bool {
	s.client.unregister(s.id, s)
	return s.terminate(err, true)
}

// terminate ends the stream with err, nil meaning a clean completion. When
// keep is true, queued events stay readable before the terminal error.
func (s *Subscription) terminate(err error, keep bool) bool {
	s.mu.Lock()
	if s.state == subscriptionTerminated {
		s.mu.Unlock()
		return false
	}
	if s.state == subscriptionPending {
		close(s.ready)
	}
	s.state = subscriptionTerminated
	s.err = err
	s.queue.Close(keep)
	close(s.done)
	s.mu.Unlock()

	s.client.opt.Observer.OperationFinished(OperationSubscribe, err)
	return true
}

package websocket

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/yanun0323/eventsocket/pkg/exception"
)

// Client multiplexes subscriptions and publishes over one WebSocket.
//
// mu guards the connection state, the current session and the operation
// registry together, so an operation is never registered against a socket
// that is already gone.
type Client struct {
	endpoint string
	opt      Option
	writer   *serializer
	events   chan ConnectionEvent
	seq      atomic.Uint64

	mu      sync.Mutex
	state   State
	sess    *session
	attempt *connectAttempt
	ops     *registry
}

// connectAttempt is one dial shared by every concurrent Connect. It runs on
// its own context; it is canceled when the last waiter leaves or by
// Disconnect. waiters and abandoned are guarded by Client.mu.
type connectAttempt struct {
	done      chan struct{}
	cancel    context.CancelCauseFunc
	waiters   int
	abandoned bool
	sess      *session
	err       error
}

// New creates a client for a ws:// or wss:// endpoint. It does not dial.
func New(endpoint string, option ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return nil, newNetworkError("new", "", fmt.Errorf("%w: %q", exception.ErrInvalidEndpoint, endpoint))
	}

	var opt Option
	if len(option) != 0 {
		opt = option[0]
	}
	opt.init()

	return &Client{
		endpoint: endpoint,
		opt:      opt,
		writer:   newSerializer(),
		events:   make(chan ConnectionEvent, opt.EventBufferSize),
		state:    StateIdle,
		ops:      newRegistry(),
	}, nil
}

// Endpoint returns the endpoint the client dials.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Events returns connection lifecycle notifications. Notifications are
// dropped when the channel is full.
func (c *Client) Events() <-chan ConnectionEvent {
	return c.events
}

// Pending returns the number of operations awaiting a reply or events.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ops.count()
}

// Connect opens the socket and waits for connection_ack. It returns at
// once when the client is already open; concurrent callers share one
// attempt.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.connect(ctx)
	return asOperationError("connect", "", err)
}

func (c *Client) connect(ctx context.Context) (*session, error) {
	for {
		c.mu.Lock()
		switch c.state {
		case StateOpen:
			s := c.sess
			c.mu.Unlock()
			return s, nil
		case StateConnecting:
			att := c.attempt
			if att.abandoned {
				c.mu.Unlock()
				select {
				case <-att.done:
					continue
				case <-ctx.Done():
					return nil, newNetworkError("connect", "", ctx.Err())
				}
			}
			att.waiters++
			c.mu.Unlock()
			return c.await(ctx, att)
		case StateClosing:
			s := c.sess
			c.mu.Unlock()
			select {
			case <-s.done:
				continue
			case <-ctx.Done():
				return nil, newNetworkError("connect", "", ctx.Err())
			}
		}

		attCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
		att := &connectAttempt{done: make(chan struct{}), cancel: cancel, waiters: 1}
		c.attempt = att
		c.setStateLocked(StateConnecting)
		c.mu.Unlock()

		go c.runAttempt(attCtx, att)
		return c.await(ctx, att)
	}
}

// await waits for the attempt on behalf of one caller. The last caller to
// give up cancels the attempt and waits for it to unwind.
func (c *Client) await(ctx context.Context, att *connectAttempt) (*session, error) {
	select {
	case <-att.done:
		return att.sess, att.err
	case <-ctx.Done():
	}

	c.mu.Lock()
	att.waiters--
	last := att.waiters == 0
	if last {
		att.abandoned = true
	}
	c.mu.Unlock()
	if last {
		att.cancel(ctx.Err())
		<-att.done
	}
	return nil, newNetworkError("connect", "", ctx.Err())
}

// runAttempt performs the attempt and publishes its outcome.
func (c *Client) runAttempt(ctx context.Context, att *connectAttempt) {
	defer att.cancel(nil)
	sess, err := c.open(ctx)

	c.mu.Lock()
	c.attempt = nil
	if err == nil && c.sess == sess && !sess.ended {
		sess.opened = true
		c.setStateLocked(StateOpen)
	} else {
		if err == nil {
			sess.stop()
			sess, err = nil, newNetworkError("connect", "", exception.ErrConnectionAborted)
		}
		c.sess = nil
		c.setStateLocked(StateClosed)
	}
	att.sess, att.err = sess, err
	c.mu.Unlock()
	close(att.done)

	if err != nil {
		c.opt.Logger.Warnf("websocket: connect %s, err: %+v", c.endpoint, err)
		return
	}
	c.opt.Logger.Infof("websocket: session %d connected to %s", sess.id, c.endpoint)
	c.emit(ConnectionEvent{Kind: EventConnected, Time: time.Now()})
}

// open dials, starts the reader and waits for connection_ack.
func (c *Client) open(ctx context.Context) (*session, error) {
	headers, err := c.authorize(ctx, "connect", c.opt.Authorizer, AuthRequest{URL: c.endpoint, Body: "{}"})
	if err != nil {
		return nil, err
	}
	req, err := c.handshakeRequest(ctx, headers)
	if err != nil {
		return nil, err
	}
	conn, err := c.opt.Dialer.Dial(ctx, req)
	if err != nil {
		return nil, newNetworkError("connect", "", err)
	}

	s := newSession(c.seq.Add(1), c, conn)
	c.mu.Lock()
	c.sess = s
	c.mu.Unlock()
	s.start()

	if err := s.send(ctx, FrameConnectionInit, ConnectionInitMessage{Type: FrameConnectionInit}); err != nil {
		s.stop()
		<-s.done
		return nil, asOperationError("connect", "", err)
	}

	select {
	case <-s.acked:
		return s, nil
	case <-s.done:
		c.mu.Lock()
		lost := s.lost
		c.mu.Unlock()
		if lost == nil {
			return nil, newNetworkError("connect", "", exception.ErrConnectionAborted)
		}
		return nil, newNetworkError("connect", "", fmt.Errorf("%w: %w", exception.ErrConnectionAborted, lost))
	case <-ctx.Done():
		s.stop()
		<-s.done
		return nil, newNetworkError("connect", "", context.Cause(ctx))
	}
}

// handshakeRequest encodes the authorization headers, after the interceptor
// ran on them, into the header-<base64url> subprotocol.
func (c *Client) handshakeRequest(ctx context.Context, headers map[string]string) (ConnectRequest, error) {
	header := http.Header{}
	for k, v := range headers {
		header.Set(k, v)
	}
	if c.opt.Interceptor != nil {
		if err := c.opt.Interceptor(ctx, header); err != nil {
			return ConnectRequest{}, newUnknownError("connect", "", err)
		}
	}

	flat := make(map[string]string, len(header))
	for k, v := range header {
		if len(v) != 0 {
			flat[strings.ToLower(k)] = v[0]
		}
	}
	encoded, err := encodeMessage(flat)
	if err != nil {
		return ConnectRequest{}, newUnknownError("connect", "", fmt.Errorf("%w: %w", exception.ErrEncode, err))
	}

	protocols := make([]string, 0, len(c.opt.Subprotocols)+1)
	protocols = append(protocols, c.opt.Subprotocols...)
	protocols = append(protocols, authProtocolPrefix+base64.RawURLEncoding.EncodeToString(encoded))
	return ConnectRequest{URL: c.endpoint, Header: http.Header{}, Subprotocols: protocols}, nil
}

func (c *Client) authorize(ctx context.Context, op string, a Authorizer, req AuthRequest) (map[string]string, error) {
	if a == nil {
		return nil, nil
	}
	headers, err := a.Authorize(ctx, req)
	if err != nil {
		return nil, newUnknownError(op, "", fmt.Errorf("%w: %w", exception.ErrAuthorization, err))
	}
	return headers, nil
}

// Disconnect closes the connection. With flush, writes already queued are
// sent first, then a close frame, and the peer gets CloseTimeout to answer.
// Without flush the socket is dropped at once. A connect in progress is
// aborted and its callers fail with exception.ErrDisconnected. Every pending
// operation has failed by the time Disconnect returns.
func (c *Client) Disconnect(ctx context.Context, flush bool) error {
	for {
		c.mu.Lock()
		switch c.state {
		case StateIdle, StateClosed:
			c.mu.Unlock()
			return newUnknownError("disconnect", "", exception.ErrNotConnected)
		case StateConnecting:
			att := c.attempt
			c.mu.Unlock()
			att.cancel(exception.ErrDisconnected)
			select {
			case <-att.done:
				if att.err != nil {
					return nil
				}
				continue
			case <-ctx.Done():
				return newNetworkError("disconnect", "", ctx.Err())
			}
		case StateClosing:
			s := c.sess
			c.mu.Unlock()
			return c.awaitSession(ctx, s)
		}
		s := c.sess
		if !flush {
			s.reason = exception.ErrDisconnected
			c.setStateLocked(StateClosing)
			c.mu.Unlock()
			s.stop()
			return c.awaitSession(ctx, s)
		}
		c.mu.Unlock()

		err := c.writer.Do(ctx, func() error {
			c.mu.Lock()
			if c.sess != s || c.state != StateOpen {
				c.mu.Unlock()
				return nil
			}
			s.reason = exception.ErrDisconnected
			c.setStateLocked(StateClosing)
			c.mu.Unlock()

			if err := s.conn.Write(ctx, MessageClose, makeClosePayload(CloseNormal, "")); err != nil {
				s.stop()
			}
			return nil
		})
		if err != nil {
			return asOperationError("disconnect", "", err)
		}

		timer := time.NewTimer(c.opt.CloseTimeout)
		defer timer.Stop()
		select {
		case <-s.done:
		case <-timer.C:
			c.opt.Logger.Warnf("websocket: session %d, no close frame within %s", s.id, c.opt.CloseTimeout)
			s.stop()
			<-s.done
		case <-ctx.Done():
			s.stop()
			<-s.done
		}
		return nil
	}
}

func (c *Client) awaitSession(ctx context.Context, s *session) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return newNetworkError("disconnect", "", ctx.Err())
	}
}

// Unsubscribe stops the subscription registered under id.
func (c *Client) Unsubscribe(ctx context.Context, id string) error {
	c.mu.Lock()
	state := c.state
	op, ok := c.ops.get(id)
	c.mu.Unlock()

	if state != StateOpen {
		return newUnknownError("unsubscribe", id, exception.ErrNotConnected)
	}
	sub, isSub := op.(*Subscription)
	if !ok || !isSub {
		return newUnknownError("unsubscribe", id, exception.ErrUnknownOperation)
	}
	return sub.Unsubscribe(ctx)
}

// sessionEnded runs on the reader goroutine once the socket failed or was
// closed. Operations still registered fail with a network error.
func (c *Client) sessionEnded(s *session, readErr error) {
	s.stop()

	c.mu.Lock()
	s.ended = true
	s.lost = readErr
	if c.sess != s || !s.opened {
		if c.sess == s {
			c.sess = nil
		}
		c.mu.Unlock()
		return
	}
	c.sess = nil
	closing := c.state == StateClosing
	reason := s.reason
	ops := c.ops.drain()
	c.setStateLocked(StateClosed)
	c.mu.Unlock()

	cause := reason
	if !closing || cause == nil {
		cause = fmt.Errorf("%w: %w", exception.ErrConnectionClosed, readErr)
	}
	for _, op := range ops {
		op.fail(newNetworkError("", "", cause))
	}

	code, text := closeDetails(readErr)
	if closing && errors.Is(reason, exception.ErrDisconnected) {
		c.opt.Logger.Infof("websocket: session %d disconnected", s.id)
	} else {
		c.opt.Logger.Errorf("websocket: session %d lost, %d operations failed, err: %+v", s.id, len(ops), cause)
		c.emit(ConnectionEvent{Kind: EventError, Code: code, Reason: text, Err: newNetworkError("", "", cause), Time: time.Now()})
	}
	c.emit(ConnectionEvent{Kind: EventDisconnected, Code: code, Reason: text, Err: cause, Time: time.Now()})
}

// abort moves an open session to closing and drops its socket.
func (c *Client) abort(s *session, reason error) {
	c.mu.Lock()
	if c.sess != s || c.state != StateOpen {
		c.mu.Unlock()
		return
	}
	s.reason = reason
	c.setStateLocked(StateClosing)
	c.mu.Unlock()
	s.stop()
}

func closeDetails(err error) (CloseCode, string) {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Reason
	}
	if err == nil {
		return CloseAbnormal, ""
	}
	return CloseAbnormal, err.Error()
}

func (c *Client) setStateLocked(state State) {
	if c.state == state {
		return
	}
	c.state = state
	c.opt.Observer.StateChanged(state)
}

func (c *Client) emit(ev ConnectionEvent) {
	select {
	case c.events <- ev:
	default:
		c.opt.Logger.Debugf("websocket: connection event channel full, drop %s event", ev.Kind)
	}
}

func (c *Client) lookup(id string) (operation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ops.get(id)
}

// register adds op while s is still the open session.
func (c *Client) register(s *session, id string, op operation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != s || c.state != StateOpen {
		return newNetworkError("", id, exception.ErrConnectionClosed)
	}
	if !c.ops.add(id, op) {
		return newUnknownError("", id, fmt.Errorf("%w: duplicate operation id", exception.ErrInvalidArgument))
	}
	return nil
}

func (c *Client) unregister(id string, op operation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ops.removeIf(id, op)
}

func (c *Client) registered(id string, op operation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	current, ok := c.ops.get(id)
	return ok && current == op
}

// current returns the open session without dialing.
func (c *Client) current() (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return nil, newUnknownError("", "", exception.ErrNotConnected)
	}
	return c.sess, nil
}

// unsubscribeAsync sends a best-effort unsubscribe for id in the background.
// Nothing is sent when the client is not open.
func (c *Client) unsubscribeAsync(id string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.opt.UnsubscribeWait)
		defer cancel()
		err := c.writer.Do(ctx, func() error {
			s, err := c.current()
			if err != nil {
				return err
			}
			return s.send(ctx, FrameUnsubscribe, newUnsubscribeMessage(id))
		})
		if err != nil {
			c.opt.Logger.Warnf("websocket: best-effort unsubscribe %s, err: %+v", id, err)
		}
	}()
}

func (c *Client) operationOptions(opts []OperationOption) operationOptions {
	o := operationOptions{authorizer: c.opt.Authorizer}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func newOperationID() string {
	return uuid.NewString()
}

package websocket

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

// inbound is a client message as the fake broker sees it.
type inbound struct {
	Type          string            `json:"type"`
	ID            string            `json:"id"`
	Channel       string            `json:"channel"`
	Events        []string          `json:"events"`
	Authorization map[string]string `json:"authorization"`
}

// fakeConn is an in-memory Conn. The broker side reads what the client
// writes from out and feeds frames through in.
type fakeConn struct {
	in        chan []byte
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	closeCode atomic.Uint32
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 256),
		out:    make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) (MessageType, []byte, error) {
	select {
	case msg := <-c.in:
		return MessageText, msg, nil
	case <-c.closed:
	case <-ctx.Done():
	}
	code := CloseCode(c.closeCode.Load())
	if code == 0 {
		code = CloseAbnormal
	}
	return 0, nil, &CloseError{Code: code, Err: net.ErrClosed}
}

func (c *fakeConn) Write(ctx context.Context, msgType MessageType, payload []byte) error {
	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	if msgType == MessageClose {
		// the peer answers a close frame by closing
		c.shut(CloseNormal)
		return nil
	}
	data := append([]byte(nil), payload...)
	select {
	case c.out <- data:
		return nil
	case <-c.closed:
		return net.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeConn) Close(code CloseCode, reason string) error {
	c.shut(0)
	return nil
}

func (c *fakeConn) shut(code CloseCode) {
	c.closeOnce.Do(func() {
		c.closeCode.Store(uint32(code))
		close(c.closed)
	})
}

// push sends a raw frame to the client.
func (c *fakeConn) push(frame string) {
	select {
	case c.in <- []byte(frame):
	case <-c.closed:
	}
}

// fakeBroker is a Dialer that serves every connection in memory. By default
// it acknowledges connection_init and answers subscribe, publish and
// unsubscribe with success.
type fakeBroker struct {
	t            *testing.T
	ackTimeoutMs int
	dialErr      error
	// handle overrides the default reply when it returns true.
	handle func(c *fakeConn, m inbound) bool

	dials    atomic.Int32
	mu       sync.Mutex
	conns    []*fakeConn
	requests []ConnectRequest
	received chan inbound
}

func newFakeBroker(t *testing.T) *fakeBroker {
	return &fakeBroker{
		t:            t,
		ackTimeoutMs: 300000,
		received:     make(chan inbound, 1024),
	}
}

func (b *fakeBroker) Dial(ctx context.Context, req ConnectRequest) (Conn, error) {
	b.dials.Add(1)
	if b.dialErr != nil {
		return nil, b.dialErr
	}
	c := newFakeConn()
	b.mu.Lock()
	b.conns = append(b.conns, c)
	b.requests = append(b.requests, req)
	b.mu.Unlock()
	go b.serve(c)
	return c, nil
}

func (b *fakeBroker) serve(c *fakeConn) {
	for {
		select {
		case raw := <-c.out:
			var m inbound
			if err := sonic.Unmarshal(raw, &m); err != nil {
				b.t.Errorf("broker: undecodable client message %q, err: %+v", raw, err)
				continue
			}
			b.received <- m
			if b.handle != nil && b.handle(c, m) {
				continue
			}
			b.reply(c, m)
		case <-c.closed:
			return
		}
	}
}

func (b *fakeBroker) reply(c *fakeConn, m inbound) {
	switch m.Type {
	case "connection_init":
		c.push(`{"type":"connection_ack","connectionTimeoutMs":` + strconv.Itoa(b.ackTimeoutMs) + `}`)
	case "subscribe":
		c.push(`{"type":"subscribe_success","id":"` + m.ID + `"}`)
	case "unsubscribe":
		c.push(`{"type":"unsubscribe_success","id":"` + m.ID + `"}`)
	case "publish":
		successful := make([]PublishedEvent, 0, len(m.Events))
		for i := range m.Events {
			successful = append(successful, PublishedEvent{Identifier: m.ID + "-" + strconv.Itoa(i), Index: i})
		}
		data, _ := sonic.Marshal(map[string]any{"type": "publish_success", "id": m.ID, "successful": successful, "failed": []FailedEvent{}})
		c.push(string(data))
	}
}

// conn returns the i-th dialed connection.
func (b *fakeBroker) conn(i int) *fakeConn {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i >= len(b.conns) {
		b.t.Fatalf("broker: connection %d was never dialed", i)
	}
	return b.conns[i]
}

func (b *fakeBroker) request(i int) ConnectRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests[i]
}

// expect waits for the next client message of type typ, skipping others.
func (b *fakeBroker) expect(typ string) inbound {
	b.t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case m := <-b.received:
			if m.Type == typ {
				return m
			}
		case <-timeout:
			b.t.Fatalf("broker: no %s message within 2s", typ)
			return inbound{}
		}
	}
}

func newTestClient(t *testing.T, b *fakeBroker, opt ...Option) *Client {
	t.Helper()
	var o Option
	if len(opt) != 0 {
		o = opt[0]
	}
	o.Dialer = b
	if o.Logger == nil {
		o.Logger = NopLogger{}
	}
	c, err := New("wss://example.appsync-realtime-api.us-east-1.amazonaws.com/event/realtime", o)
	if err != nil {
		t.Fatalf("new client, err: %+v", err)
	}
	t.Cleanup(func() {
		_ = c.Disconnect(context.Background(), false)
	})
	return c
}

// recordingLogger keeps warn and error lines.
type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Debugf(string, ...any) {}
func (l *recordingLogger) Infof(string, ...any)  {}

func (l *recordingLogger) Warnf(format string, args ...any) {
	l.record("warn: "+format, args...)
}

func (l *recordingLogger) Errorf(format string, args ...any) {
	l.record("error: "+format, args...)
}

func (l *recordingLogger) record(format string, args ...any) {
	l.mu.Lock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *recordingLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

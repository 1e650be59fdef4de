package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/eventsocket/pkg/exception"
)

// session owns one socket: its reader goroutine, its heartbeat and the
// acknowledgment of the handshake. A new session is created per connect.
type session struct {
	id        uint64
	client    *Client
	conn      Conn
	heartbeat *heartbeat
	ctx       context.Context
	cancel    context.CancelFunc

	ackOnce sync.Once
	acked   chan struct{}
	done    chan struct{}

	// guarded by Client.mu
	opened bool
	ended  bool
	reason error
	lost   error
}

func newSession(id uint64, c *Client, conn Conn) *session {
	s := &session{
		id:     id,
		client: c,
		conn:   conn,
		acked:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.heartbeat = newHeartbeat(s.expired)
	return s
}

func (s *session) start() {
	go func() {
		defer close(s.done)
		err := s.run(s.ctx)
		s.client.sessionEnded(s, err)
	}()
}

// run reads frames until the socket fails. Frames are handled in arrival
// order on this goroutine.
func (s *session) run(ctx context.Context) error {
	for {
		msgType, payload, err := s.conn.Read(ctx)
		if err != nil {
			return err
		}
		if msgType != MessageText && msgType != MessageBinary {
			continue
		}
		s.handle(payload)
	}
}

func (s *session) handle(payload []byte) {
	c := s.client
	if isKeepAlive(payload) {
		c.opt.Observer.FrameReceived(FrameKeepAlive)
		s.heartbeat.Reset()
		return
	}
	f, ok := DecodeFrame(payload)
	if !ok {
		c.opt.Observer.FrameDropped("undecodable frame")
		c.opt.Logger.Debugf("websocket: session %d, drop undecodable frame (%d bytes)", s.id, len(payload))
		return
	}
	c.opt.Observer.FrameReceived(f.Type)

	switch f.Type {
	case FrameConnectionAck:
		s.ackOnce.Do(func() {
			timeout := f.ConnectionTimeout()
			s.heartbeat.Start(timeout)
			c.opt.Logger.Debugf("websocket: session %d acknowledged, keep-alive interval %s", s.id, timeout)
			close(s.acked)
		})
		return
	case FrameKeepAlive:
		s.heartbeat.Reset()
		return
	}

	if !f.Type.operationScoped() {
		c.opt.Observer.FrameDropped("unknown frame type")
		c.opt.Logger.Debugf("websocket: session %d, drop frame with unknown type %q", s.id, f.Type)
		return
	}
	if f.ID == "" {
		if f.Type == FrameError {
			c.opt.Logger.Warnf("websocket: session %d, connection error: %s", s.id, f.FirstError().Message)
			c.emit(ConnectionEvent{Kind: EventError, Err: newServiceError("", "", f.FirstError()), Time: time.Now()})
			return
		}
		c.opt.Observer.FrameDropped("missing id")
		c.opt.Logger.Debugf("websocket: session %d, drop %s frame without id", s.id, f.Type)
		return
	}

	op, ok := c.lookup(f.ID)
	if !ok {
		c.opt.Observer.FrameDropped("unknown id")
		c.opt.Logger.Debugf("websocket: session %d, drop %s frame for unknown id %s", s.id, f.Type, f.ID)
		return
	}
	op.deliver(f)
}

// send encodes msg and writes it as one text message. Callers hold the
// client serializer.
func (s *session) send(ctx context.Context, frameType FrameType, msg any) error {
	data, err := encodeMessage(msg)
	if err != nil {
		return newUnknownError("", "", err)
	}
	if err := s.conn.Write(ctx, MessageText, data); err != nil {
		return newNetworkError("", "", err)
	}
	s.client.opt.Observer.MessageSent(frameType)
	return nil
}

// expired runs at most once, from the heartbeat timer.
func (s *session) expired() {
	c := s.client
	c.opt.Observer.HeartbeatExpired()
	c.opt.Logger.Warnf("websocket: session %d, no keep-alive within %s, last one %s ago", s.id, s.heartbeat.Timeout(), time.Since(s.heartbeat.LastReset()).Round(time.Millisecond))
	c.abort(s, exception.ErrHeartbeatTimeout)
}

// stop closes the socket without a close frame; the reader then exits.
func (s *session) stop() {
	s.heartbeat.Stop()
	_ = s.conn.Close(0, "")
	s.cancel()
}

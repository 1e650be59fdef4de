package websocket

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/yanun0323/eventsocket/pkg/exception"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultReadLimit        = 240 << 10
)

// GorillaDialer dials connections with github.com/gorilla/websocket.
type GorillaDialer struct {
	// HandshakeTimeout bounds the upgrade. Optional; default DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration
	// WriteTimeout bounds every write without a ctx deadline. Optional; default DefaultWriteTimeout.
	WriteTimeout time.Duration
	// ReadLimit caps the size of one inbound message. Optional; default DefaultReadLimit.
	ReadLimit int64
	// TLSConfig overrides the TLS client configuration. Optional.
	TLSConfig *tls.Config
	// Proxy selects a proxy for the handshake. Optional; default http.ProxyFromEnvironment.
	Proxy func(*http.Request) (*url.URL, error)
	// NetDialContext opens the underlying connection. Optional; default net.Dialer.
	NetDialContext func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewDialer returns a GorillaDialer with default timeouts.
func NewDialer() *GorillaDialer {
	return &GorillaDialer{
		HandshakeTimeout: DefaultHandshakeTimeout,
		WriteTimeout:     DefaultWriteTimeout,
		ReadLimit:        DefaultReadLimit,
	}
}

// Dial implements Dialer.
func (d *GorillaDialer) Dial(ctx context.Context, req ConnectRequest) (Conn, error) {
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return nil, exception.ErrInvalidEndpoint
	}

	handshakeTimeout := d.HandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = DefaultHandshakeTimeout
	}
	proxy := d.Proxy
	if proxy == nil {
		proxy = http.ProxyFromEnvironment
	}
	dialer := gorilla.Dialer{
		Proxy:            proxy,
		HandshakeTimeout: handshakeTimeout,
		Subprotocols:     req.Subprotocols,
		TLSClientConfig:  d.TLSConfig,
		NetDialContext:   d.NetDialContext,
	}

	conn, resp, err := dialer.DialContext(ctx, req.URL, req.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if errors.Is(err, gorilla.ErrBadHandshake) {
			return nil, exception.ErrHandshakeRejected
		}
		return nil, err
	}

	readLimit := d.ReadLimit
	if readLimit <= 0 {
		readLimit = DefaultReadLimit
	}
	conn.SetReadLimit(readLimit)

	writeTimeout := d.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return newGorillaConn(conn, writeTimeout), nil
}

// gorillaConn adapts *gorilla.Conn to Conn. gorilla allows one concurrent
// writer, so writes and close frames share writeMu.
type gorillaConn struct {
	conn         *gorilla.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex
	closeOnce    sync.Once
	closeErr     error
}

func newGorillaConn(conn *gorilla.Conn, writeTimeout time.Duration) *gorillaConn {
	return &gorillaConn{conn: conn, writeTimeout: writeTimeout}
}

func (c *gorillaConn) Read(ctx context.Context) (MessageType, []byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
	}
	msgType, payload, err := c.conn.ReadMessage()
	if err != nil {
		return 0, nil, translateReadError(err)
	}
	return MessageType(msgType), payload, nil
}

func (c *gorillaConn) Write(ctx context.Context, msgType MessageType, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	switch msgType {
	case MessageClose, MessagePing, MessagePong:
		return c.conn.WriteControl(int(msgType), payload, deadline)
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(int(msgType), payload)
}

// Close sends a close frame with code and reason before closing the socket.
// A zero code closes the socket without a close frame.
func (c *gorillaConn) Close(code CloseCode, reason string) error {
	c.closeOnce.Do(func() {
		if code != 0 {
			c.writeMu.Lock()
			_ = c.conn.WriteControl(gorilla.CloseMessage, makeClosePayload(code, reason), time.Now().Add(c.writeTimeout))
			c.writeMu.Unlock()
		}
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// CloseError reports the close frame the peer sent, or CloseAbnormal when
// the socket dropped without one.
type CloseError struct {
	Code   CloseCode
	Reason string
	Err    error
}

func (e *CloseError) Error() string {
	if e.Reason != "" {
		return "websocket: closed with code " + strconv.Itoa(int(e.Code)) + ": " + e.Reason
	}
	return "websocket: closed with code " + strconv.Itoa(int(e.Code))
}

func (e *CloseError) Unwrap() error {
	return e.Err
}

func translateReadError(err error) error {
	var ce *gorilla.CloseError
	if errors.As(err, &ce) {
		return &CloseError{Code: CloseCode(ce.Code), Reason: ce.Text, Err: err}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return &CloseError{Code: CloseAbnormal, Err: err}
	}
	return err
}

func makeClosePayload(code CloseCode, reason string) []byte {
	if code == 0 {
		return nil
	}
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], uint16(code))
	if reason == "" {
		return buf[:]
	}
	payload := make([]byte, 0, 2+len(reason))
	payload = append(payload, buf[:]...)
	payload = append(payload, reason...)
	return payload
}

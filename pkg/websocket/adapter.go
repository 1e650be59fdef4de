package websocket

import (
	"context"
	"net/http"
)

// Conn is a minimal interface for a WebSocket connection.
// Read blocks until a whole message is available or the connection fails.
type Conn interface {
	Read(ctx context.Context) (msgType MessageType, payload []byte, err error)
	Write(ctx context.Context, msgType MessageType, payload []byte) error
	Close(code CloseCode, reason string) error
}

// ConnectRequest describes the handshake of a new connection.
type ConnectRequest struct {
	URL          string
	Header       http.Header
	Subprotocols []string
}

// Dialer creates new connections.
type Dialer interface {
	Dial(ctx context.Context, req ConnectRequest) (Conn, error)
}

// AuthRequest describes an outbound request to authorize.
type AuthRequest struct {
	// URL is the endpoint the request is addressed to.
	URL string
	// Channel is empty for the connection handshake.
	Channel string
	// Body is the JSON body the broker signs against.
	Body string
}

// Authorizer computes the authorization headers of an outbound request.
// It is invoked once per connect, subscribe and publish.
type Authorizer interface {
	Authorize(ctx context.Context, req AuthRequest) (map[string]string, error)
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, req AuthRequest) (map[string]string, error)

// Authorize implements Authorizer.
func (f AuthorizerFunc) Authorize(ctx context.Context, req AuthRequest) (map[string]string, error) {
	return f(ctx, req)
}

// Interceptor mutates the handshake headers once before each connect.
type Interceptor func(ctx context.Context, header http.Header) error

// Observer receives runtime measurements. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	StateChanged(state State)
	FrameReceived(frameType FrameType)
	FrameDropped(reason string)
	MessageSent(frameType FrameType)
	OperationStarted(kind OperationKind)
	OperationFinished(kind OperationKind, err error)
	EventDropped()
	HeartbeatExpired()
}

type nopObserver struct{}

func (nopObserver) StateChanged(State) {}
func (nopObserver) FrameReceived(FrameType) {}
func (nopObserver) FrameDropped(string) {}
func (nopObserver) MessageSent(FrameType) {}
func (nopObserver) OperationStarted(OperationKind) {}
func (nopObserver) OperationFinished(OperationKind, error) {}
func (nopObserver) EventDropped() {}
func (nopObserver) HeartbeatExpired() {}

package exception

import "github.com/yanun0323/errors"

// Connection errors
var (
	ErrNotConnected      = errors.New("websocket: not connected")
	ErrConnectionClosed  = errors.New("websocket: connection closed")
	ErrDisconnected      = errors.New("websocket: disconnected by client")
	ErrHeartbeatTimeout  = errors.New("websocket: keep-alive timeout")
	ErrHandshakeRejected = errors.New("websocket: handshake rejected")
	ErrConnectionAborted = errors.New("websocket: connection lost before acknowledgment")
)

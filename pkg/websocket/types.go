package websocket

import "time"

// MessageType represents a WebSocket message type.
// Values match RFC 6455 opcodes where applicable.
type MessageType uint8

const (
	// MessageText is a text data frame.
	MessageText MessageType = 1
	// MessageBinary is a binary data frame.
	MessageBinary MessageType = 2
	// MessageClose is a close control frame.
	MessageClose MessageType = 8
	// MessagePing is a ping control frame.
	MessagePing MessageType = 9
	// MessagePong is a pong control frame.
	MessagePong MessageType = 10
)

// CloseCode is a WebSocket close code.
type CloseCode uint16

const (
	// CloseNormal indicates a normal closure.
	CloseNormal CloseCode = 1000
	// CloseGoingAway indicates the peer is going away.
	CloseGoingAway CloseCode = 1001
	// CloseAbnormal is reported when the connection dropped without a close frame.
	CloseAbnormal CloseCode = 1006
)

// State is the connection lifecycle state of a Client.
type State uint8

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// OperationKind is the kind of a multiplexed operation.
type OperationKind uint8

const (
	OperationSubscribe OperationKind = iota + 1
	OperationPublish
)

func (k OperationKind) String() string {
	switch k {
	case OperationSubscribe:
		return "subscribe"
	case OperationPublish:
		return "publish"
	default:
		return "unknown"
	}
}

// OverflowPolicy defines queue behavior when full.
type OverflowPolicy uint8

const (
	// OverflowDropOldest drops the oldest item to make room.
	OverflowDropOldest OverflowPolicy = iota
	// OverflowDropNewest drops the incoming item if the queue is full.
	OverflowDropNewest
	// OverflowBlock blocks until space is available. The reader loop of the
	// connection waits with it, so one slow consumer stalls every operation.
	OverflowBlock
)

// EventKind classifies a ConnectionEvent.
type EventKind uint8

const (
	EventConnected EventKind = iota + 1
	EventDisconnected
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// ConnectionEvent is a raw lifecycle notification of the underlying socket.
type ConnectionEvent struct {
	Kind EventKind
	// Code and Reason are set for EventDisconnected.
	Code   CloseCode
	Reason string
	// Err is set for EventError.
	Err  error
	Time time.Time
}

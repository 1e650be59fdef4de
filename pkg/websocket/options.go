package websocket

import (
	"time"

	"github.com/yanun0323/logs"
)

const (
	DefaultEventQueueSize  = 1024
	DefaultEventBufferSize = 64
	DefaultCloseTimeout    = 5 * time.Second
	DefaultUnsubscribeWait = 10 * time.Second

	// ProtocolEvents is the subprotocol spoken by the broker.
	ProtocolEvents = "aws-appsync-event-ws"
	// authProtocolPrefix prefixes the subprotocol carrying the encoded
	// authorization headers of the handshake.
	authProtocolPrefix = "header-"
)

// Option defines the client runtime configuration.
type Option struct {
	// Authorizer signs connect, subscribe and publish requests. Optional; default sends no headers.
	Authorizer Authorizer
	// Interceptor mutates the handshake headers before each connect. Optional; default nil.
	Interceptor Interceptor
	// Dialer opens sockets. Optional; default NewDialer().
	Dialer Dialer
	// Logger receives diagnostics. Optional; default forwards to github.com/yanun0323/logs.
	Logger Logger
	// Observer receives measurements. Optional; default discards.
	Observer Observer

	// EventQueueSize is the per-subscription event queue capacity. Optional; default DefaultEventQueueSize (1024).
	EventQueueSize int
	// EventOverflow sets the policy when a subscription queue is full. Optional; default OverflowDropOldest.
	EventOverflow OverflowPolicy
	// EventBufferSize is the capacity of the connection event channel. Optional; default DefaultEventBufferSize (64).
	EventBufferSize int

	// CloseTimeout bounds the wait for the peer's close frame on a flushed disconnect. Optional; default DefaultCloseTimeout (5s).
	CloseTimeout time.Duration
	// UnsubscribeWait bounds the best-effort unsubscribe after a cancellation. Optional; default DefaultUnsubscribeWait (10s).
	UnsubscribeWait time.Duration
	// Subprotocols are offered during the handshake next to the authorization protocol. Optional; default [ProtocolEvents].
	Subprotocols []string
}

func (opt *Option) init() {
	if opt.Dialer == nil {
		opt.Dialer = NewDialer()
	}
	if opt.Logger == nil {
		opt.Logger = defaultLogger{}
	}
	if opt.Observer == nil {
		opt.Observer = nopObserver{}
	}
	if opt.EventQueueSize <= 0 {
		opt.EventQueueSize = DefaultEventQueueSize
	}
	if opt.EventBufferSize <= 0 {
		opt.EventBufferSize = DefaultEventBufferSize
	}
	if opt.CloseTimeout <= 0 {
		opt.CloseTimeout = DefaultCloseTimeout
	}
	if opt.UnsubscribeWait <= 0 {
		opt.UnsubscribeWait = DefaultUnsubscribeWait
	}
	if len(opt.Subprotocols) == 0 {
		opt.Subprotocols = []string{ProtocolEvents}
	}
}

// OperationOption customizes one subscribe or publish call.
type OperationOption func(*operationOptions)

type operationOptions struct {
	authorizer Authorizer
}

// WithAuthorizer overrides the client authorizer for one operation.
func WithAuthorizer(a Authorizer) OperationOption {
	return func(o *operationOptions) {
		if a != nil {
			o.authorizer = a
		}
	}
}

// Logger receives leveled diagnostics.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type defaultLogger struct{}

func (defaultLogger) Debugf(format string, args ...any) { logs.Debugf(format, args...) }
func (defaultLogger) Infof(format string, args ...any)  { logs.Infof(format, args...) }
func (defaultLogger) Warnf(format string, args ...any)  { logs.Warnf(format, args...) }
func (defaultLogger) Errorf(format string, args ...any) { logs.Errorf(format, args...) }

// NopLogger discards diagnostics.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any) {}
func (NopLogger) Infof(string, ...any)  {}
func (NopLogger) Warnf(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}

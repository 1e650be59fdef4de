package exception

import "errors"

// Operation errors
var (
	ErrInvalidChannel   = errors.New("events: invalid channel")
	ErrNoEvents         = errors.New("events: no events to publish")
	ErrUnknownOperation = errors.New("events: unknown operation")
	ErrCanceled         = errors.New("events: operation canceled")
	ErrStreamClosed     = errors.New("events: stream closed")
	ErrAuthorization    = errors.New("events: authorization failed")
	ErrEncode           = errors.New("events: encode failed")
)

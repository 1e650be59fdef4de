package exception

import "errors"

// Error kinds. Errors returned by the websocket client match exactly one of
// these with errors.Is.
var (
	ErrNetwork = errors.New("network error")
	ErrService = errors.New("service error")
	ErrUnknown = errors.New("unknown error")
)

// General errors
var (
	ErrInvalidArgument = errors.New("invalid argument")
)

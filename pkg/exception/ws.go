package exception

import "errors"

// WS errors
var (
	ErrInvalidEndpoint = errors.New("websocket: invalid endpoint")
)

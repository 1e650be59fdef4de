package uds

import (
	"context"
	"errors"
	"net"
)

const unixNetwork = "unix"

var (
	// ErrEmptyPath is returned when the socket path is empty.
	ErrEmptyPath = errors.New("uds: empty socket path")
	// ErrNilClient is returned when a nil client receiver is used.
	ErrNilClient = errors.New("uds: nil client")
)

// Client dials a Unix domain socket regardless of the address it is asked
// for. It routes a websocket handshake through a local proxy.
type Client struct {
	addr   net.UnixAddr
	dialer net.Dialer
}

// NewClient creates a client for the provided socket path.
func NewClient(path string) (*Client, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	return &Client{addr: net.UnixAddr{Name: path, Net: unixNetwork}}, nil
}

// Path returns the configured socket path.
func (c *Client) Path() string {
	if c == nil {
		return ""
	}
	return c.addr.Name
}

// DialContext opens a connection to the socket. network and address are
// ignored, so it fits net/http and websocket dial hooks.
func (c *Client) DialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	if c == nil {
		return nil, ErrNilClient
	}
	if c.addr.Name == "" {
		return nil, ErrEmptyPath
	}
	return c.dialer.DialContext(ctx, unixNetwork, c.addr.Name)
}

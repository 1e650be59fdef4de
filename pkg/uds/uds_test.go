package uds

import (
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	gorilla "github.com/gorilla/websocket"

	"github.com/yanun0323/eventsocket/pkg/websocket"
)

func socketPath(t *testing.T) string {
	// unix socket paths are length limited, t.TempDir can be too deep
	dir, err := os.MkdirTemp("", "uds")
	if err != nil {
		t.Fatalf("mkdir temp, err: %+v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "proxy.sock")
}

func TestClientRejectsEmptyPath(t *testing.T) {
	if _, err := NewClient(""); err != ErrEmptyPath {
		t.Fatalf("expected ErrEmptyPath, got %+v", err)
	}
	var c *Client
	if _, err := c.DialContext(t.Context(), "tcp", "x:1"); err != ErrNilClient {
		t.Fatalf("expected ErrNilClient, got %+v", err)
	}
}

func TestWebsocketOverSocket(t *testing.T) {
	path := socketPath(t)
	ln, err := net.Listen(unixNetwork, path)
	if err != nil {
		t.Fatalf("listen on %s, err: %+v", path, err)
	}
	defer ln.Close()

	upgrader := gorilla.Upgrader{Subprotocols: []string{websocket.ProtocolEvents}}
	go func() {
		_ = http.Serve(ln, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			for {
				var m struct {
					Type string `json:"type"`
				}
				if err := conn.ReadJSON(&m); err != nil {
					return
				}
				if m.Type == "connection_init" {
					_ = conn.WriteJSON(map[string]any{"type": "connection_ack", "connectionTimeoutMs": 300000})
				}
			}
		}))
	}()

	proxy, err := NewClient(path)
	if err != nil {
		t.Fatalf("new client, err: %+v", err)
	}
	dialer := websocket.NewDialer()
	dialer.NetDialContext = proxy.DialContext

	c, err := websocket.New("ws://events.internal/event/realtime", websocket.Option{Dialer: dialer, Logger: websocket.NopLogger{}})
	if err != nil {
		t.Fatalf("new websocket client, err: %+v", err)
	}
	if err := c.Connect(t.Context()); err != nil {
		t.Fatalf("connect over %s, err: %+v", proxy.Path(), err)
	}
	if c.State() != websocket.StateOpen {
		t.Fatalf("expected open, got %s", c.State())
	}
	if err := c.Disconnect(t.Context(), true); err != nil {
		t.Fatalf("disconnect, err: %+v", err)
	}
}

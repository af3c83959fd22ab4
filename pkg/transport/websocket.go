package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// closeWriteTimeout bounds the close handshake write on Close.
const closeWriteTimeout = time.Second

// WebSocketDialer opens channels carrying one frame per binary
// WebSocket message.
type WebSocketDialer struct {
	opts DialOptions
}

// NewWebSocketDialer creates a WebSocketDialer.
func NewWebSocketDialer(opts DialOptions) *WebSocketDialer {
	return &WebSocketDialer{opts: opts.withDefaults()}
}

// Dial connects to a ws:// or wss:// endpoint.
func (d *WebSocketDialer) Dial(ctx context.Context, endpoint string) (Channel, error) {
	ctx, cancel := dialContext(ctx, d.opts.ConnectTimeout)
	defer cancel()

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = d.opts.ConnectTimeout

	c, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	return NewWebSocketChannel(c, endpoint, d.opts), nil
}

// NewWebSocketChannel wraps an established WebSocket connection.
func NewWebSocketChannel(c *websocket.Conn, endpoint string, opts DialOptions) Channel {
	return newPumpChannel(&wsConn{c: c}, endpoint, opts.withDefaults())
}

// UpgradeWebSocket upgrades an HTTP request to a channel. It is the
// server-side counterpart of WebSocketDialer.
func UpgradeWebSocket(w http.ResponseWriter, r *http.Request, opts DialOptions) (Channel, error) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewWebSocketChannel(c, r.RemoteAddr, opts), nil
}

type wsConn struct {
	c *websocket.Conn
}

// read returns the next binary message. Text messages are not frames
// and are skipped.
func (w *wsConn) read() ([]byte, error) {
	for {
		typ, data, err := w.c.ReadMessage()
		if err != nil {
			return nil, err
		}
		if typ == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (w *wsConn) write(data []byte) error {
	return w.c.WriteMessage(websocket.BinaryMessage, data)
}

func (w *wsConn) close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
	return w.c.Close()
}

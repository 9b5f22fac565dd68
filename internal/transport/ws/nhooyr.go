package ws

import (
	"context"
	"fmt"
	"time"

	"nhooyr.io/websocket"

	"github.com/omochice/chatsync/internal/chat"
)

var _ chat.Conn = (*NhooyrConn)(nil)

// readLimit bounds one frame. History pages are larger than nhooyr's default.
const readLimit = 1 << 20

// NhooyrConn adapts nhooyr.io/websocket to chat.Conn.
type NhooyrConn struct {
	conn       *websocket.Conn
	remoteAddr string
}

// DialNhooyr opens a websocket connection to url with nhooyr.io/websocket.
func DialNhooyr(ctx context.Context, url string) (*NhooyrConn, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	conn.SetReadLimit(readLimit)
	return &NhooyrConn{conn: conn, remoteAddr: url}, nil
}

// Read implements chat.Conn.
func (c *NhooyrConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return data, nil
}

// Write implements chat.Conn.
// Writes a text message; the peer only accepts JSON text frames.
func (c *NhooyrConn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// KeepAlive pings the peer every interval until ctx ends or a ping fails.
// A pong is only seen while Read is being called.
func (c *NhooyrConn) KeepAlive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, interval)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// Close implements chat.Conn.
func (c *NhooyrConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

// RemoteAddr implements chat.Conn. nhooyr does not expose the socket, so
// this is the dialed URL.
func (c *NhooyrConn) RemoteAddr() string {
	return c.remoteAddr
}

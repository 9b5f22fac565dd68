package ws

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/omochice/chatsync/internal/chat"
)

var _ chat.Conn = (*GorillaConn)(nil)

// GorillaConn adapts a gorilla/websocket client connection to chat.Conn.
// gorilla allows one concurrent writer, so every write takes mu.
type GorillaConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// DialGorilla opens a websocket connection to url with gorilla/websocket.
func DialGorilla(ctx context.Context, url string) (*GorillaConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return &GorillaConn{conn: conn}, nil
}

// Read implements chat.Conn.
func (c *GorillaConn) Read(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return data, nil
}

// Write implements chat.Conn.
func (c *GorillaConn) Write(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// KeepAlive pings the peer every interval until ctx ends or a ping fails.
func (c *GorillaConn) KeepAlive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(interval))
			if err != nil {
				return
			}
		}
	}
}

// Close implements chat.Conn.
func (c *GorillaConn) Close() error {
	c.mu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.conn.Close()
}

// RemoteAddr implements chat.Conn.
func (c *GorillaConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Package ws provides websocket client connections that carry JSON text
// frames to and from the chat peer.
package ws

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/omochice/chatsync/internal/chat"
)

var _ chat.Conn = (*Conn)(nil)

// Conn adapts a gobwas/ws client connection to chat.Conn.
type Conn struct {
	conn net.Conn
	rw   io.ReadWriter
	wmu  sync.Mutex
}

// lockedWriter lets control frame replies from the reader share the write lock.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// Dial opens a websocket connection to url.
func Dial(ctx context.Context, url string) (*Conn, error) {
	conn, br, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return newConn(conn, br), nil
}

// newConn wraps conn. br holds bytes the peer sent right after the
// handshake and may be nil.
func newConn(conn net.Conn, br *bufio.Reader) *Conn {
	c := &Conn{conn: conn}
	var r io.Reader = conn
	if br != nil {
		r = br
	}
	c.rw = struct {
		io.Reader
		io.Writer
	}{r, lockedWriter{mu: &c.wmu, w: conn}}
	return c
}

// Read implements chat.Conn.
// Reads the next text or binary message, answering pings on the way.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	data, _, err := wsutil.ReadServerData(c.rw)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return data, nil
}

// Write implements chat.Conn.
// Writes a text message to the websocket connection.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return wsutil.WriteClientText(c.conn, data)
}

// KeepAlive pings the peer every interval until ctx ends or a ping fails.
func (c *Conn) KeepAlive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.wmu.Lock()
			err := wsutil.WriteClientMessage(c.conn, ws.OpPing, nil)
			c.wmu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Close implements chat.Conn.
func (c *Conn) Close() error {
	c.wmu.Lock()
	_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
	c.wmu.Unlock()
	return c.conn.Close()
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Package chat holds the client-side chat state: conversation logs, the
// roster and the room directory, plus the connection abstraction the
// synchronizer reads frames from.
package chat

import "context"

// Conn abstracts the duplex connection to the chat peer.
// This interface isolates the websocket library from synchronizer logic.
type Conn interface {
	// Read reads a single text frame (one JSON envelope).
	// Returns an error once the connection is closed.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a single text frame.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}

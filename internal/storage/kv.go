// Package storage holds small keyed blobs on the local machine.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned by Get when the key has never been set or was deleted.
var ErrNotFound = errors.New("key not found")

// KV is a durable string-keyed blob store.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendPebble = "pebble"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Open returns the KV for backend rooted at path.
func Open(ctx context.Context, backend, path string) (KV, error) {
	switch backend {
	case BackendPebble, "":
		return OpenPebble(path, nil)
	case BackendSQLite:
		return OpenSQLite(ctx, path)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o700)
}

// Package session keeps the logged-in user and the reconnection token across
// restarts.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/omochice/chatsync/internal/storage"
)

const (
	KeyUser  = "user"
	KeyToken = "reloginCode"
)

// Holder caches the session in memory and writes through to a storage.KV.
type Holder struct {
	mu     sync.RWMutex
	user   string
	token  string
	kv     storage.KV
	logger *slog.Logger
}

// New loads the stored session from kv. kv may be nil for a session that
// is not kept across restarts.
func New(ctx context.Context, kv storage.KV, logger *slog.Logger) *Holder {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Holder{kv: kv, logger: logger}
	h.user = h.load(ctx, KeyUser)
	h.token = h.load(ctx, KeyToken)
	return h
}

func (h *Holder) CurrentUser() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.user
}

func (h *Holder) ReconnectToken() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}

// CanResume reports whether both a user and a token are held.
func (h *Holder) CanResume() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.user != "" && h.token != ""
}

func (h *Holder) SetCurrentUser(user string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.user = user
	h.store(KeyUser, user)
}

func (h *Holder) SetReconnectToken(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.token = token
	h.store(KeyToken, token)
}

// Clear forgets the user and the token.
func (h *Holder) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.user, h.token = "", ""
	h.store(KeyUser, "")
	h.store(KeyToken, "")
}

func (h *Holder) load(ctx context.Context, key string) string {
	if h.kv == nil {
		return ""
	}
	b, err := h.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			h.logger.Warn("session_read_failed", "key", key, "error", err)
		}
		return ""
	}
	return string(b)
}

// store must be called with h.mu held. An empty value deletes the key.
func (h *Holder) store(key, value string) {
	if h.kv == nil {
		return
	}
	ctx := context.Background()
	var err error
	if value == "" {
		err = h.kv.Delete(ctx, key)
	} else {
		err = h.kv.Set(ctx, key, []byte(value))
	}
	if err != nil {
		h.logger.Warn("session_write_failed", "key", key, "error", err)
	}
}

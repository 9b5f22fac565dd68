// Package persist saves and restores conversation state as JSON blobs in a
// storage.KV. Blobs are keyed globally, not per user.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/omochice/chatsync/internal/chat"
	"github.com/omochice/chatsync/internal/storage"
)

const (
	KeyMessages = "messages"
	KeyRooms    = "rooms"
)

// Snapshot is the persisted state.
type Snapshot struct {
	Conversations map[string][]chat.Message
	Rooms         []chat.Room
}

// Adapter implements chat.ConversationSaver and chat.RoomSaver.
type Adapter struct {
	kv     storage.KV
	logger *slog.Logger
}

var (
	_ chat.ConversationSaver = (*Adapter)(nil)
	_ chat.RoomSaver         = (*Adapter)(nil)
)

func New(kv storage.KV, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{kv: kv, logger: logger}
}

// SaveConversations writes the messages blob.
func (a *Adapter) SaveConversations(logs map[string][]chat.Message) error {
	if logs == nil {
		logs = map[string][]chat.Message{}
	}
	return a.put(context.Background(), KeyMessages, logs)
}

// SaveRooms writes the rooms blob.
func (a *Adapter) SaveRooms(rooms []chat.Room) error {
	if rooms == nil {
		rooms = []chat.Room{}
	}
	return a.put(context.Background(), KeyRooms, rooms)
}

// SaveSnapshot writes both blobs. Both writes are attempted.
func (a *Adapter) SaveSnapshot(snap Snapshot) error {
	return errors.Join(a.SaveConversations(snap.Conversations), a.SaveRooms(snap.Rooms))
}

// LoadSnapshot reads both blobs. A missing or unreadable blob yields its
// empty value; ok reports whether anything was restored.
func (a *Adapter) LoadSnapshot(ctx context.Context) (snap Snapshot, ok bool) {
	snap = Snapshot{
		Conversations: map[string][]chat.Message{},
		Rooms:         []chat.Room{},
	}
	if a.get(ctx, KeyMessages, &snap.Conversations) {
		ok = true
	} else {
		snap.Conversations = map[string][]chat.Message{}
	}
	if a.get(ctx, KeyRooms, &snap.Rooms) {
		ok = true
	} else {
		snap.Rooms = []chat.Room{}
	}
	if snap.Conversations == nil {
		snap.Conversations = map[string][]chat.Message{}
	}
	if snap.Rooms == nil {
		snap.Rooms = []chat.Room{}
	}
	return snap, ok
}

// Purge removes both blobs.
func (a *Adapter) Purge(ctx context.Context) error {
	return errors.Join(a.kv.Delete(ctx, KeyMessages), a.kv.Delete(ctx, KeyRooms))
}

func (a *Adapter) put(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := a.kv.Set(ctx, key, b); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (a *Adapter) get(ctx context.Context, key string, v any) bool {
	b, err := a.kv.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return false
	}
	if err != nil {
		a.logger.Warn("snapshot_read_failed", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal(b, v); err != nil {
		a.logger.Warn("snapshot_corrupt", "key", key, "error", err)
		return false
	}
	return true
}

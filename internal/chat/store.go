package chat

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

var (
	// ErrIndexOutOfRange is returned when an edit or delete names a position
	// the log does not have.
	ErrIndexOutOfRange = errors.New("message index out of range")

	// ErrNotEditable is returned when editing a message this client did not write.
	ErrNotEditable = errors.New("message was not written locally")
)

// ConversationSaver receives the full set of logs after every mutation.
type ConversationSaver interface {
	SaveConversations(logs map[string][]Message) error
}

// Store is the conversation log, keyed by conversation id. Every log is kept
// in non-decreasing timestamp order and every mutation is handed to the
// saver before the call returns.
type Store struct {
	mu     sync.RWMutex
	logs   map[string][]Message
	saver  ConversationSaver
	logger *slog.Logger
}

// NewStore creates an empty Store. saver may be nil.
func NewStore(saver ConversationSaver, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		logs:   make(map[string][]Message),
		saver:  saver,
		logger: logger,
	}
}

// Load installs logs read at startup. It does not persist.
func (s *Store) Load(logs map[string][]Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs = make(map[string][]Message, len(logs))
	for id, log := range logs {
		log = cloneLog(log)
		sortLog(log)
		s.logs[id] = log
	}
}

// Append adds msg to the log of id at its timestamp position.
func (s *Store) Append(id string, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs[id] = insertSorted(s.logs[id], msg)
	s.persist("append", id)
}

// ReplaceAll overwrites the log of id. An empty msgs leaves an empty log.
func (s *Store) ReplaceAll(id string, msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := cloneLog(msgs)
	sortLog(log)
	s.logs[id] = log
	s.persist("replace_all", id)
}

// EditAt replaces the content of the i-th message of id. Only local
// messages can be edited.
func (s *Store) EditAt(id string, i int, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[id]
	if i < 0 || i >= len(log) {
		return fmt.Errorf("edit %s[%d]: %w", id, i, ErrIndexOutOfRange)
	}
	if !log[i].IsLocal() {
		return fmt.Errorf("edit %s[%d]: %w", id, i, ErrNotEditable)
	}
	log[i].Content = content
	s.persist("edit", id)
	return nil
}

// DeleteAt removes the i-th message of id.
func (s *Store) DeleteAt(id string, i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[id]
	if i < 0 || i >= len(log) {
		return fmt.Errorf("delete %s[%d]: %w", id, i, ErrIndexOutOfRange)
	}
	s.logs[id] = append(log[:i:i], log[i+1:]...)
	s.persist("delete", id)
	return nil
}

// Clear empties the log of id.
func (s *Store) Clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs[id] = []Message{}
	s.persist("clear", id)
}

// Reset drops every log.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs = make(map[string][]Message)
	s.persist("reset", "")
}

// Messages returns a copy of the log of id.
func (s *Store) Messages(id string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneLog(s.logs[id])
}

// At returns the i-th message of id.
func (s *Store) At(id string, i int) (Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.logs[id]
	if i < 0 || i >= len(log) {
		return Message{}, fmt.Errorf("read %s[%d]: %w", id, i, ErrIndexOutOfRange)
	}
	return log[i], nil
}

// IndexOf returns the position of the first message of id with the same
// timestamp, sender, origin and content as m, or -1.
func (s *Store) IndexOf(id string, m Message) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i, msg := range s.logs[id] {
		if msg.Timestamp.Equal(m.Timestamp) && msg.Sender == m.Sender &&
			msg.Origin == m.Origin && msg.Content == m.Content {
			return i
		}
	}
	return -1
}

// Len returns the number of messages in the log of id.
func (s *Store) Len(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.logs[id])
}

// Conversations returns the ids that have a log, sorted.
func (s *Store) Conversations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.logs))
	for id := range s.logs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns a deep copy of every log.
func (s *Store) Snapshot() map[string][]Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() map[string][]Message {
	out := make(map[string][]Message, len(s.logs))
	for id, log := range s.logs {
		out[id] = cloneLog(log)
	}
	return out
}

// persist must be called with s.mu held.
func (s *Store) persist(op, id string) {
	if s.saver == nil {
		return
	}
	if err := s.saver.SaveConversations(s.snapshotLocked()); err != nil {
		s.logger.Warn("conversation_persist_failed", "op", op, "conversation", id, "error", err)
	}
}

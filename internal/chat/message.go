package chat

import (
	"sort"
	"time"
)

// Origin tells whether a message was written on this client or received
// from the peer. It only affects rendering.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// String returns the string representation of Origin
func (o Origin) String() string {
	switch o {
	case OriginLocal, OriginRemote:
		return string(o)
	default:
		return "unknown"
	}
}

// Message is one entry of a conversation log.
type Message struct {
	Content   string    `json:"content"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	Origin    Origin    `json:"origin"`
}

// IsLocal reports whether the message was written on this client.
func (m Message) IsLocal() bool {
	return m.Origin == OriginLocal
}

// insertSorted inserts msg after every entry with a timestamp not later
// than its own, so equal timestamps keep arrival order.
func insertSorted(log []Message, msg Message) []Message {
	i := sort.Search(len(log), func(i int) bool {
		return log[i].Timestamp.After(msg.Timestamp)
	})
	log = append(log, Message{})
	copy(log[i+1:], log[i:])
	log[i] = msg
	return log
}

func sortLog(log []Message) {
	sort.SliceStable(log, func(i, j int) bool {
		return log[i].Timestamp.Before(log[j].Timestamp)
	})
}

func cloneLog(log []Message) []Message {
	out := make([]Message, len(log))
	copy(out, log)
	return out
}

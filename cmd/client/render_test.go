package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/omochice/chatsync/internal/chat"
)

func TestFormatTime(t *testing.T) {
	ts := time.Date(2024, time.March, 5, 9, 7, 0, 0, time.Local)
	assert.Equal(t, "9:07 - 5/3/2024", formatTime(ts))
}

func TestRenderConversation(t *testing.T) {
	now := time.Date(2024, time.March, 5, 12, 0, 0, 0, time.Local)
	msgs := []chat.Message{
		{Content: "hi", Sender: "alice", Timestamp: now.Add(-2 * time.Hour), Origin: chat.OriginLocal},
		{Content: "yo", Sender: "bob", Timestamp: now.Add(-time.Hour), Origin: chat.OriginRemote},
	}

	var buf bytes.Buffer
	renderConversation(&buf, "bob", msgs, now)
	out := buf.String()

	assert.Contains(t, out, "--- bob (2 messages) ---")
	assert.Contains(t, out, "  1  you (10:00 - 5/3/2024, 2 hours ago): hi")
	assert.Contains(t, out, "  2  bob (11:00 - 5/3/2024, 1 hour ago): yo")

	buf.Reset()
	renderConversation(&buf, "carol", nil, now)
	assert.Equal(t, "no messages with carol\n", buf.String())
}

func TestRenderRoom(t *testing.T) {
	var buf bytes.Buffer
	renderRoom(&buf, chat.Room{Name: "general", Owner: "alice", Members: []string{"alice", "bob"}})

	assert.Contains(t, buf.String(), "# general  owner: alice  created: unknown")
	assert.Contains(t, buf.String(), "members (2): alice, bob")
}

func TestRenderRoster(t *testing.T) {
	now := time.Date(2024, time.March, 5, 12, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	renderRoster(&buf, []chat.RosterEntry{
		{Name: "bob", LastActionTime: now.Add(-2 * time.Hour)},
		{Name: "general", Kind: 1},
	}, now)

	assert.Contains(t, buf.String(), "bob")
	assert.Contains(t, buf.String(), "2 hours ago")
	assert.Contains(t, buf.String(), "room")
	assert.Contains(t, buf.String(), "never")

	buf.Reset()
	renderRoster(&buf, nil, now)
	assert.Equal(t, "no users\n", buf.String())
}

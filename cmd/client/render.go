package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/omochice/chatsync/internal/chat"
)

var timeNow = time.Now

// formatTime renders t the way the chat server's web client does:
// hour:minute - day/month/year, in local time.
func formatTime(t time.Time) string {
	t = t.Local()
	return fmt.Sprintf("%d:%02d - %d/%d/%d", t.Hour(), t.Minute(), t.Day(), int(t.Month()), t.Year())
}

func renderMessage(w io.Writer, n int, m chat.Message, now time.Time) {
	sender := m.Sender
	if m.IsLocal() {
		sender = "you"
	}
	fmt.Fprintf(w, "%3d  %s (%s, %s): %s\n",
		n, sender, formatTime(m.Timestamp), humanize.RelTime(m.Timestamp, now, "ago", "from now"), m.Content)
}

func renderConversation(w io.Writer, id string, msgs []chat.Message, now time.Time) {
	if len(msgs) == 0 {
		fmt.Fprintf(w, "no messages with %s\n", id)
		return
	}
	fmt.Fprintf(w, "--- %s (%d messages) ---\n", id, len(msgs))
	for i, m := range msgs {
		renderMessage(w, i+1, m, now)
	}
}

func renderRoom(w io.Writer, room chat.Room) {
	created := "unknown"
	if !room.CreatedAt.IsZero() {
		created = formatTime(room.CreatedAt)
	}
	fmt.Fprintf(w, "# %s  owner: %s  created: %s\n", room.Name, room.Owner, created)
	fmt.Fprintf(w, "  members (%d): %s\n", len(room.Members), strings.Join(room.Members, ", "))
}

func renderRoster(w io.Writer, entries []chat.RosterEntry, now time.Time) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no users")
		return
	}
	for _, e := range entries {
		seen := "never"
		if !e.LastActionTime.IsZero() {
			seen = humanize.RelTime(e.LastActionTime, now, "ago", "from now")
		}
		kind := "people"
		if e.Kind == 1 {
			kind = "room"
		}
		fmt.Fprintf(w, "  %-20s %-7s last active %s\n", e.Name, kind, seen)
	}
}

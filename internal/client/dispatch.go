package client

import (
	"context"
	"time"

	"github.com/omochice/chatsync/internal/chat"
	"github.com/omochice/chatsync/pkg/protocol"
)

// HandleFrame parses one inbound frame and applies it. Malformed frames are
// dropped.
func (c *Client) HandleFrame(raw []byte) {
	ev, err := protocol.ParseEvent(raw)
	if err != nil {
		c.logger.Warn("frame_dropped", "error", err, "size", len(raw))
		return
	}
	c.Apply(ev)
}

// Apply reconciles one decoded event with the local state.
func (c *Client) Apply(ev protocol.Event) {
	_ = c.do(func() error {
		c.apply(ev)
		return nil
	})
}

// apply must be called with c.mu held.
func (c *Client) apply(ev protocol.Event) {
	switch ev := ev.(type) {
	case protocol.MessageReceived:
		c.onMessage(ev)
	case protocol.SendAcknowledged:
		c.onSendAck(ev)
	case protocol.RosterSnapshot:
		c.onRoster(ev)
	case protocol.RoomJoined:
		c.onRoomJoined(ev)
	case protocol.HistoryFetched:
		c.onHistory(ev)
	case protocol.AuthRejected:
		c.onAuthRejected(ev)
	case protocol.LoginResult:
		c.onLogin(ev)
	case protocol.Registered:
		c.onRegistered(ev)
	case protocol.Rejected:
		c.onRejected(ev)
	case protocol.LoggedOut:
		c.logger.Info("logout_acknowledged")
	case protocol.NoOp:
		c.logger.Debug("event_ignored", "event", ev.Source, "reason", ev.Reason)
	default:
		c.logger.Debug("event_ignored", "event", ev.Kind())
	}
}

func (c *Client) onMessage(ev protocol.MessageReceived) {
	me := c.session.CurrentUser()

	id := ev.From
	switch {
	case ev.To != "" && c.dir.IsRoom(ev.To):
		id = ev.To
	case me != "" && ev.From == me && ev.To != "":
		id = ev.To
	}

	if me != "" && ev.From == me {
		if i := c.findSend(id, ev.Content); i >= 0 {
			c.confirmSend(i)
			return
		}
	}

	c.store.Append(id, chat.Message{
		Content:   ev.Content,
		Sender:    ev.From,
		Timestamp: c.stamp(ev.Timestamp),
		Origin:    chat.OriginRemote,
	})
	c.emit(Signal{Kind: SignalConversationUpdated, Conversation: id})
}

func (c *Client) onSendAck(ev protocol.SendAcknowledged) {
	i := c.matchAck(ev.To)
	if i < 0 {
		c.logger.Debug("send_ack_unmatched", "to", ev.To, "status", ev.Status)
		return
	}

	if ev.Status == protocol.StatusError {
		s := c.sends[i]
		c.sends = append(c.sends[:i:i], c.sends[i+1:]...)
		c.logger.Warn("send_failed", "conversation", s.conversation, "reason", ev.Reason)
		c.emit(Signal{Kind: SignalSendFailed, Conversation: s.conversation, Err: rejected(ev.Reason)})
		return
	}
	c.confirmSend(i)
}

// confirmSend retires the i-th outstanding send as delivered.
func (c *Client) confirmSend(i int) {
	s := c.sends[i]
	c.sends = append(c.sends[:i:i], c.sends[i+1:]...)

	if c.opts.OptimisticSend {
		return
	}
	c.store.Append(s.conversation, chat.Message{
		Content:   s.content,
		Sender:    c.session.CurrentUser(),
		Timestamp: s.sentAt,
		Origin:    chat.OriginLocal,
	})
	c.emit(Signal{Kind: SignalConversationUpdated, Conversation: s.conversation})
}

// matchAck picks the oldest outstanding send to the acknowledged
// conversation. An ack that names no conversation takes the oldest send
// overall; one that names a conversation with nothing outstanding matches
// nothing.
func (c *Client) matchAck(to string) int {
	if len(c.sends) == 0 {
		return -1
	}
	if to == "" {
		return 0
	}
	for i, s := range c.sends {
		if s.conversation == to {
			return i
		}
	}
	return -1
}

func (c *Client) findSend(id, content string) int {
	for i, s := range c.sends {
		if s.conversation == id && s.content == content {
			return i
		}
	}
	return -1
}

func (c *Client) onRoster(ev protocol.RosterSnapshot) {
	entries := make([]chat.RosterEntry, 0, len(ev.Users))
	for _, u := range ev.Users {
		entries = append(entries, chat.RosterEntry{
			Name:           u.Name,
			LastActionTime: u.ActionTime,
			Kind:           u.Type,
		})
	}
	c.dir.ReplaceRoster(entries)
	c.emit(Signal{Kind: SignalRosterUpdated})
}

func (c *Client) onRoomJoined(ev protocol.RoomJoined) {
	name := ev.Room.Name
	added := c.dir.UpsertRoom(chat.Room{
		Name:      name,
		CreatedAt: c.stamp(ev.Room.CreatedAt),
		Members:   ev.Room.Members,
		Owner:     ev.Room.Owner,
	})
	c.logger.Info("room_joined", "room", name, "created", ev.Created, "new", added)

	if ev.HasHistory {
		c.store.ReplaceAll(name, c.messages(ev.History))
		c.emit(Signal{Kind: SignalConversationUpdated, Conversation: name})
	}
	c.emit(Signal{Kind: SignalRoomJoined, Conversation: name})
}

func (c *Client) onHistory(ev protocol.HistoryFetched) {
	target := ev.Name
	if target == "" && len(ev.Items) > 0 {
		first := ev.Items[0]
		switch {
		case ev.Target == protocol.TargetRoom && first.To != "":
			target = first.To
		case first.Sender != "" && first.Sender == c.session.CurrentUser():
			target = first.To
		default:
			target = first.Sender
		}
	}

	req, ok := c.takeHistoryRequest(ev.Target, target)
	if target == "" && ok {
		target = req.name
	}
	if target == "" {
		c.logger.Warn("history_without_target", "event", ev.Kind(), "items", len(ev.Items))
		return
	}

	c.store.ReplaceAll(target, c.messages(ev.Items))
	c.emit(Signal{Kind: SignalConversationUpdated, Conversation: target})
}

// takeHistoryRequest removes the outstanding request of kind for name, or
// the oldest request of kind when none names it.
func (c *Client) takeHistoryRequest(kind protocol.TargetKind, name string) (historyRequest, bool) {
	oldest := -1
	for i, r := range c.history {
		if r.kind != kind {
			continue
		}
		if name != "" && r.name == name {
			oldest = i
			break
		}
		if oldest < 0 {
			oldest = i
		}
	}
	if oldest < 0 {
		return historyRequest{}, false
	}
	req := c.history[oldest]
	c.history = append(c.history[:oldest:oldest], c.history[oldest+1:]...)
	return req, true
}

func (c *Client) onAuthRejected(ev protocol.AuthRejected) {
	c.logger.Warn("session_expired", "event", ev.Source, "reason", ev.Reason)
	c.session.Clear()
	c.pendingLogin = ""
	c.emit(Signal{Kind: SignalSessionExpired, Err: ErrSessionExpired})
}

func (c *Client) onLogin(ev protocol.LoginResult) {
	requested := c.pendingLogin
	c.pendingLogin = ""

	if !ev.OK {
		c.logger.Warn("login_failed", "relogin", ev.Relogin, "reason", ev.Reason)
		if ev.Relogin {
			c.session.Clear()
		}
		c.emit(Signal{Kind: SignalLoginFailed, Err: rejected(ev.Reason)})
		return
	}

	user := requested
	if ev.Relogin {
		user = c.session.CurrentUser()
	}
	if user == "" {
		user = ev.User
	}
	c.session.SetCurrentUser(user)
	if ev.Token != "" {
		c.session.SetReconnectToken(ev.Token)
	}
	c.logger.Info("logged_in", "user", user, "relogin", ev.Relogin)
	c.emit(Signal{Kind: SignalLoggedIn})

	if err := c.sendLocked(context.Background(), protocol.BuildRosterRefresh()); err != nil {
		c.logger.Warn("roster_request_failed", "error", err)
	}
}

func (c *Client) onRegistered(ev protocol.Registered) {
	if !ev.OK {
		c.emit(Signal{Kind: SignalRegisterFailed, Err: rejected(ev.Reason)})
		return
	}
	c.emit(Signal{Kind: SignalRegistered})
}

func (c *Client) onRejected(ev protocol.Rejected) {
	c.logger.Warn("request_rejected", "event", ev.Source, "reason", ev.Reason)
	switch ev.Source {
	case protocol.KindRoomHistory:
		c.takeHistoryRequest(protocol.TargetRoom, "")
	case protocol.KindPeopleHistory:
		c.takeHistoryRequest(protocol.TargetPeople, "")
	}
	c.emit(Signal{Kind: SignalRequestFailed, Err: rejected(ev.Reason)})
}

func (c *Client) messages(items []protocol.HistoryItem) []chat.Message {
	me := c.session.CurrentUser()
	out := make([]chat.Message, 0, len(items))
	for _, it := range items {
		origin := chat.OriginRemote
		if me != "" && it.Sender == me {
			origin = chat.OriginLocal
		}
		out = append(out, chat.Message{
			Content:   it.Content,
			Sender:    it.Sender,
			Timestamp: c.stamp(it.Timestamp),
			Origin:    origin,
		})
	}
	return out
}

// stamp substitutes the local clock for a missing timestamp.
func (c *Client) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return c.now().UTC()
	}
	return t
}

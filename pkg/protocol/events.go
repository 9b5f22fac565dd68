package protocol

import (
	"encoding/json"
	"time"
)

// Event is the closed set of typed inbound events. Each variant carries only
// the fields its kind guarantees.
type Event interface {
	// Kind returns the wire event name the variant was decoded from.
	Kind() string
	event()
}

// MessageReceived is a chat line pushed by the peer. Timestamp is zero when
// the peer did not send one.
type MessageReceived struct {
	From      string
	To        string
	Content   string
	Timestamp time.Time
}

// SendAcknowledged answers an outbound SEND_CHAT. The protocol carries no
// correlation id; To and Content are whatever the peer echoed, possibly empty.
type SendAcknowledged struct {
	Status  Status
	To      string
	Content string
	Reason  string
}

// User is one roster entry as reported by the peer.
type User struct {
	Name       string
	ActionTime time.Time
	Type       int
}

// RosterSnapshot is a full user list.
type RosterSnapshot struct {
	Source string
	Users  []User
}

// RoomInfo describes a room as reported in a create/join response.
type RoomInfo struct {
	Name      string
	Owner     string
	Members   []string
	CreatedAt time.Time
}

// HistoryItem is one message of a fetched or embedded history.
type HistoryItem struct {
	Sender    string
	To        string
	Content   string
	Timestamp time.Time
}

// RoomJoined is a successful CREATE_ROOM or JOIN_ROOM response. HasHistory
// distinguishes an absent history from an empty one.
type RoomJoined struct {
	Created    bool
	Room       RoomInfo
	History    []HistoryItem
	HasHistory bool
}

// HistoryFetched is a GET_ROOM_CHAT_MES or GET_PEOPLE_CHAT_MES response.
// Target is set only when the payload names the conversation explicitly.
type HistoryFetched struct {
	Target TargetKind
	Name   string
	Items  []HistoryItem
}

// AuthRejected means the peer no longer considers the connection logged in.
type AuthRejected struct {
	Source string
	Reason string
}

// LoginResult answers LOGIN or RE_LOGIN.
type LoginResult struct {
	Relogin bool
	OK      bool
	User    string
	Token   string
	Reason  string
}

// Registered answers REGISTER.
type Registered struct {
	OK     bool
	Reason string
}

// LoggedOut answers LOGOUT.
type LoggedOut struct{}

// Rejected is an error response to a request that has no dedicated
// failure variant (room create/join, history, roster).
type Rejected struct {
	Source string
	Reason string
}

// NoOp is an event the client ignores: an unknown kind or a payload whose
// shape does not match its kind.
type NoOp struct {
	Source string
	Reason string
}

func (MessageReceived) Kind() string  { return KindReceiveChat }
func (SendAcknowledged) Kind() string { return KindSendChat }
func (e RosterSnapshot) Kind() string { return e.Source }
func (e RoomJoined) Kind() string {
	if e.Created {
		return KindCreateRoom
	}
	return KindJoinRoom
}
func (e HistoryFetched) Kind() string {
	if e.Target == TargetRoom {
		return KindRoomHistory
	}
	return KindPeopleHistory
}
func (e AuthRejected) Kind() string { return e.Source }
func (e LoginResult) Kind() string {
	if e.Relogin {
		return KindRelogin
	}
	return KindLogin
}
func (Registered) Kind() string { return KindRegister }
func (LoggedOut) Kind() string  { return KindLogout }
func (e Rejected) Kind() string { return e.Source }
func (e NoOp) Kind() string     { return e.Source }

func (MessageReceived) event()  {}
func (SendAcknowledged) event() {}
func (RosterSnapshot) event()   {}
func (RoomJoined) event()       {}
func (HistoryFetched) event()   {}
func (AuthRejected) event()     {}
func (LoginResult) event()      {}
func (Registered) event()       {}
func (LoggedOut) event()        {}
func (Rejected) event()         {}
func (NoOp) event()             {}

// Decode maps an envelope to its typed variant. It never fails: unknown
// kinds and payloads of the wrong shape become NoOp.
func Decode(env Envelope) Event {
	if env.Failed() && env.Mes == NotLoggedIn {
		return AuthRejected{Source: env.Event, Reason: env.Mes}
	}

	switch env.Event {
	case KindReceiveChat:
		return decodeReceived(env)
	case KindSendChat:
		return decodeSendAck(env)
	case KindUserList, KindUserListUpdate, KindGetUserList:
		if env.Failed() {
			return Rejected{Source: env.Event, Reason: env.Mes}
		}
		return decodeRoster(env)
	case KindCreateRoom, KindJoinRoom:
		if env.Failed() {
			return Rejected{Source: env.Event, Reason: env.Mes}
		}
		return decodeRoom(env)
	case KindRoomHistory, KindPeopleHistory:
		if env.Failed() {
			return Rejected{Source: env.Event, Reason: env.Mes}
		}
		return decodeHistory(env)
	case KindAuth:
		if env.Failed() {
			return Rejected{Source: env.Event, Reason: env.Mes}
		}
		return NoOp{Source: env.Event, Reason: "auth notice without error"}
	case KindLogin, KindRelogin:
		return decodeLogin(env)
	case KindRegister:
		return Registered{OK: !env.Failed(), Reason: env.Mes}
	case KindLogout:
		return LoggedOut{}
	default:
		return NoOp{Source: env.Event, Reason: "unknown event kind"}
	}
}

func decodeReceived(env Envelope) Event {
	f, ok := object(env.Data)
	if !ok {
		return NoOp{Source: env.Event, Reason: "payload is not an object"}
	}
	from := f.str("from", "name")
	if from == "" {
		return NoOp{Source: env.Event, Reason: "message without sender"}
	}
	return MessageReceived{
		From:      from,
		To:        f.str("to"),
		Content:   RepairText(f.str("mes")),
		Timestamp: f.time("createAt", "createdAt", "time"),
	}
}

func decodeSendAck(env Envelope) Event {
	ack := SendAcknowledged{Status: env.Status, Reason: env.Mes}
	if ack.Status == StatusNone {
		ack.Status = StatusSuccess
	}
	if f, ok := object(env.Data); ok {
		ack.To = f.str("to")
		ack.Content = RepairText(f.str("mes"))
	}
	return ack
}

func decodeRoster(env Envelope) Event {
	items, ok := array(env.Data)
	if !ok {
		f, isObj := object(env.Data)
		if !isObj {
			return NoOp{Source: env.Event, Reason: "roster is neither a list nor an object"}
		}
		if items, ok = f.array("users"); !ok {
			return NoOp{Source: env.Event, Reason: "roster object without users"}
		}
	}

	users := make([]User, 0, len(items))
	for _, raw := range items {
		u, ok := object(raw)
		if !ok {
			continue
		}
		name := u.str("name")
		if name == "" {
			continue
		}
		users = append(users, User{
			Name:       name,
			ActionTime: u.time("actionTime", "action_time"),
			Type:       u.int("type"),
		})
	}
	return RosterSnapshot{Source: env.Event, Users: users}
}

func decodeRoom(env Envelope) Event {
	f, ok := object(env.Data)
	if !ok {
		return NoOp{Source: env.Event, Reason: "room payload is not an object"}
	}
	name := f.str("name")
	if name == "" {
		return NoOp{Source: env.Event, Reason: "room without name"}
	}

	ev := RoomJoined{
		Created: env.Event == KindCreateRoom,
		Room: RoomInfo{
			Name:      name,
			Owner:     f.str("own", "owner"),
			Members:   members(f),
			CreatedAt: f.time("createTime", "createAt", "createdAt"),
		},
	}
	if items, ok := f.array("chatData"); ok {
		ev.HasHistory = true
		ev.History = historyItems(items)
	}
	return ev
}

func members(f fields) []string {
	items, ok := f.array("userList")
	if !ok {
		items, ok = f.array("members")
	}
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, raw := range items {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s != "" {
				out = append(out, s)
			}
			continue
		}
		if m, ok := object(raw); ok {
			if name := m.str("name"); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}

func decodeHistory(env Envelope) Event {
	ev := HistoryFetched{Target: TargetPeople}
	if env.Event == KindRoomHistory {
		ev.Target = TargetRoom
	}

	items, ok := array(env.Data)
	if !ok {
		f, isObj := object(env.Data)
		if !isObj {
			return NoOp{Source: env.Event, Reason: "history is neither a list nor an object"}
		}
		if items, ok = f.array("chatData"); !ok {
			return NoOp{Source: env.Event, Reason: "history object without chatData"}
		}
		if ev.Target == TargetRoom {
			ev.Name = f.str("name")
		}
	}
	ev.Items = historyItems(items)
	return ev
}

func historyItems(items []json.RawMessage) []HistoryItem {
	out := make([]HistoryItem, 0, len(items))
	for _, raw := range items {
		f, ok := object(raw)
		if !ok {
			continue
		}
		out = append(out, HistoryItem{
			Sender:    f.str("name", "from"),
			To:        f.str("to"),
			Content:   RepairText(f.str("mes")),
			Timestamp: f.time("createAt", "createdAt", "time"),
		})
	}
	return out
}

func decodeLogin(env Envelope) Event {
	res := LoginResult{
		Relogin: env.Event == KindRelogin,
		OK:      !env.Failed(),
		Reason:  env.Mes,
	}
	if f, ok := object(env.Data); ok {
		res.User = f.str("user", "name")
		res.Token = f.str("RE_LOGIN_CODE", "code")
	}
	return res
}

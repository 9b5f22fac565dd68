package protocol

import (
	"encoding/json"
	"fmt"
)

// ActionChat is the only action the peer accepts.
const ActionChat = "onchat"

// TargetKind tells the peer whether a target names a person or a room.
type TargetKind string

const (
	TargetPeople TargetKind = "people"
	TargetRoom   TargetKind = "room"
)

// Command is an outbound envelope.
type Command struct {
	Action string      `json:"action"`
	Data   CommandData `json:"data"`
}

// CommandData carries the event name and its optional payload.
type CommandData struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// SendPayload is the body of SEND_CHAT.
type SendPayload struct {
	Type TargetKind `json:"type"`
	To   string     `json:"to"`
	Mes  string     `json:"mes"`
}

// NamePayload is the body of CREATE_ROOM and JOIN_ROOM.
type NamePayload struct {
	Name string `json:"name"`
}

// HistoryPayload is the body of the history requests.
type HistoryPayload struct {
	Name string `json:"name"`
	Page int    `json:"page"`
}

// CredentialsPayload is the body of LOGIN and REGISTER.
type CredentialsPayload struct {
	User string `json:"user"`
	Pass string `json:"pass"`
}

// ReloginPayload is the body of RE_LOGIN.
type ReloginPayload struct {
	User string `json:"user"`
	Code string `json:"code"`
}

// Encode encodes the command as JSON.
func (c Command) Encode() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode command: %w", err)
	}
	return data, nil
}

// Event returns the event name of the command.
func (c Command) Event() string {
	return c.Data.Event
}

func command(event string, payload any) Command {
	return Command{
		Action: ActionChat,
		Data:   CommandData{Event: event, Data: payload},
	}
}

func BuildSend(kind TargetKind, to, text string) Command {
	return command(KindSendChat, SendPayload{Type: kind, To: to, Mes: text})
}

func BuildRosterRefresh() Command {
	return command(KindGetUserList, nil)
}

func BuildRoomCreate(name string) Command {
	return command(KindCreateRoom, NamePayload{Name: name})
}

func BuildRoomJoin(name string) Command {
	return command(KindJoinRoom, NamePayload{Name: name})
}

// BuildHistoryFetch requests one page of history. Pages start at 1.
func BuildHistoryFetch(kind TargetKind, name string, page int) Command {
	if page < 1 {
		page = 1
	}
	event := KindPeopleHistory
	if kind == TargetRoom {
		event = KindRoomHistory
	}
	return command(event, HistoryPayload{Name: name, Page: page})
}

func BuildLogout() Command {
	return command(KindLogout, nil)
}

func BuildLogin(user, pass string) Command {
	return command(KindLogin, CredentialsPayload{User: user, Pass: pass})
}

func BuildRelogin(user, code string) Command {
	return command(KindRelogin, ReloginPayload{User: user, Code: code})
}

func BuildRegister(user, pass string) Command {
	return command(KindRegister, CredentialsPayload{User: user, Pass: pass})
}

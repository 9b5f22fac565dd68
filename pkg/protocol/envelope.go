// Package protocol defines the JSON envelopes exchanged with the chat peer:
// inbound event envelopes and outbound "onchat" commands.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Status is the outcome flag carried by an inbound envelope.
type Status string

const (
	StatusNone    Status = ""
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// String returns the string representation of Status
func (s Status) String() string {
	if s == StatusNone {
		return "NONE"
	}
	return string(s)
}

// Event kinds as they appear in the "event" field.
const (
	KindReceiveChat    = "RECEIVE_CHAT"
	KindSendChat       = "SEND_CHAT"
	KindUserList       = "USER_LIST"
	KindUserListUpdate = "USER_LIST_UPDATE"
	KindGetUserList    = "GET_USER_LIST"
	KindCreateRoom     = "CREATE_ROOM"
	KindJoinRoom       = "JOIN_ROOM"
	KindRoomHistory    = "GET_ROOM_CHAT_MES"
	KindPeopleHistory  = "GET_PEOPLE_CHAT_MES"
	KindAuth           = "AUTH"
	KindLogin          = "LOGIN"
	KindRelogin        = "RE_LOGIN"
	KindRegister       = "REGISTER"
	KindLogout         = "LOGOUT"
)

// NotLoggedIn is the rejection message the peer sends for requests made
// without an authenticated session.
const NotLoggedIn = "User not Login"

// ErrMalformedEnvelope is returned when a frame is not a JSON object with a
// string "event" field.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope is a structurally decoded inbound frame. Data is left raw; its
// shape depends on Event and is checked by Decode.
type Envelope struct {
	Event  string
	Status Status
	Data   json.RawMessage
	Mes    string
}

// Parse decodes a raw frame into an Envelope.
func Parse(raw []byte) (Envelope, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if top == nil {
		return Envelope{}, fmt.Errorf("%w: not an object", ErrMalformedEnvelope)
	}

	f := fields(top)
	eventRaw, ok := top["event"]
	if !ok {
		return Envelope{}, fmt.Errorf("%w: missing event", ErrMalformedEnvelope)
	}
	var event string
	if err := json.Unmarshal(eventRaw, &event); err != nil || event == "" {
		return Envelope{}, fmt.Errorf("%w: event is not a string", ErrMalformedEnvelope)
	}

	env := Envelope{
		Event: event,
		Data:  top["data"],
		Mes:   f.str("mes"),
	}
	switch Status(f.str("status")) {
	case StatusSuccess:
		env.Status = StatusSuccess
	case StatusError:
		env.Status = StatusError
	}
	return env, nil
}

// Failed reports whether the peer flagged the envelope as an error.
func (e Envelope) Failed() bool {
	return e.Status == StatusError
}

// ParseEvent parses a raw frame and decodes it into a typed Event.
func ParseEvent(raw []byte) (Event, error) {
	env, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	return Decode(env), nil
}

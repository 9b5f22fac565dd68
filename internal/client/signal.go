package client

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionExpired is carried by SignalSessionExpired.
	ErrSessionExpired = errors.New("session expired")

	// ErrNotConfirmed is returned when the user declines a destructive action.
	ErrNotConfirmed = errors.New("action not confirmed")

	// ErrNoConversation is returned by intents that need a selected conversation.
	ErrNoConversation = errors.New("no conversation selected")

	// ErrEditTargetGone is returned when the message being edited left its
	// log before the replacement text was sent. The edit is dropped.
	ErrEditTargetGone = errors.New("message being edited no longer exists")

	// ErrEmptyMessage is returned when the text to send is blank.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrEmptyName is returned when a room or user name is blank.
	ErrEmptyName = errors.New("name is empty")

	// ErrNotConnected is returned by intents that must reach the peer while
	// no connection is attached.
	ErrNotConnected = errors.New("not connected to server")

	// ErrRejected wraps the reason the peer gave for refusing a request.
	ErrRejected = errors.New("rejected by server")
)

func rejected(reason string) error {
	if reason == "" {
		return ErrRejected
	}
	return fmt.Errorf("%w: %s", ErrRejected, reason)
}

// SignalKind identifies what changed.
type SignalKind int

const (
	SignalConnected SignalKind = iota
	SignalDisconnected
	SignalConversationUpdated
	SignalActiveChanged
	SignalRosterUpdated
	SignalRoomJoined
	SignalSendFailed
	SignalSessionExpired
	SignalLoggedIn
	SignalLoginFailed
	SignalRegistered
	SignalRegisterFailed
	SignalLoggedOut
	SignalRequestFailed
)

// String returns the string representation of SignalKind
func (k SignalKind) String() string {
	switch k {
	case SignalConnected:
		return "CONNECTED"
	case SignalDisconnected:
		return "DISCONNECTED"
	case SignalConversationUpdated:
		return "CONVERSATION_UPDATED"
	case SignalActiveChanged:
		return "ACTIVE_CHANGED"
	case SignalRosterUpdated:
		return "ROSTER_UPDATED"
	case SignalRoomJoined:
		return "ROOM_JOINED"
	case SignalSendFailed:
		return "SEND_FAILED"
	case SignalSessionExpired:
		return "SESSION_EXPIRED"
	case SignalLoggedIn:
		return "LOGGED_IN"
	case SignalLoginFailed:
		return "LOGIN_FAILED"
	case SignalRegistered:
		return "REGISTERED"
	case SignalRegisterFailed:
		return "REGISTER_FAILED"
	case SignalLoggedOut:
		return "LOGGED_OUT"
	case SignalRequestFailed:
		return "REQUEST_FAILED"
	default:
		return "UNKNOWN"
	}
}

// Signal tells the presentation layer that state changed. Conversation is
// set when the change concerns one conversation; Err is set for failures.
type Signal struct {
	Kind         SignalKind
	Conversation string
	Err          error
}

// Handler receives signals. It is called without any engine lock held, so
// it may call back into the Client.
type Handler func(Signal)

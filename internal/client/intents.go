package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/omochice/chatsync/internal/chat"
	"github.com/omochice/chatsync/pkg/protocol"
)

// Select makes id the active conversation and drops any pending edit.
func (c *Client) Select(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrNoConversation
	}
	return c.do(func() error {
		c.active = id
		c.edit = nil
		c.emit(Signal{Kind: SignalActiveChanged, Conversation: id})

		if !c.opts.FetchHistoryOnSelect || c.conn == nil {
			return nil
		}
		return c.fetchHistoryLocked(ctx, id, 1)
	})
}

// Send sends text to the active conversation, or applies it to the pending
// edit when there is one.
func (c *Client) Send(ctx context.Context, text string) error {
	return c.do(func() error {
		if c.active == "" {
			return ErrNoConversation
		}
		return c.sendTextLocked(ctx, c.active, text)
	})
}

// SendTo sends text to id without changing the active conversation.
func (c *Client) SendTo(ctx context.Context, id, text string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrNoConversation
	}
	return c.do(func() error {
		return c.sendTextLocked(ctx, id, text)
	})
}

func (c *Client) sendTextLocked(ctx context.Context, id, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	if c.edit != nil && c.edit.conversation == id {
		target := c.edit.msg
		c.edit = nil
		i := c.store.IndexOf(id, target)
		if i < 0 {
			return ErrEditTargetGone
		}
		if err := c.store.EditAt(id, i, text); err != nil {
			return err
		}
		c.emit(Signal{Kind: SignalConversationUpdated, Conversation: id})
		return nil
	}

	if c.conn == nil {
		return ErrNotConnected
	}

	sentAt := c.now().UTC()
	if c.opts.OptimisticSend {
		c.store.Append(id, chat.Message{
			Content:   text,
			Sender:    c.session.CurrentUser(),
			Timestamp: sentAt,
			Origin:    chat.OriginLocal,
		})
		c.emit(Signal{Kind: SignalConversationUpdated, Conversation: id})
	}

	if err := c.sendLocked(ctx, protocol.BuildSend(c.targetKind(id), id, text)); err != nil {
		c.emit(Signal{Kind: SignalSendFailed, Conversation: id, Err: err})
		return err
	}
	c.sends = append(c.sends, pendingSend{conversation: id, content: text, sentAt: sentAt})
	return nil
}

// BeginEdit marks the index-th message of the active conversation as the
// target of the next send and returns its content.
func (c *Client) BeginEdit(index int) (string, error) {
	var content string
	err := c.do(func() error {
		if c.active == "" {
			return ErrNoConversation
		}
		msg, err := c.store.At(c.active, index)
		if err != nil {
			return err
		}
		if !msg.IsLocal() {
			return fmt.Errorf("edit %s[%d]: %w", c.active, index, chat.ErrNotEditable)
		}
		c.edit = &editTarget{conversation: c.active, msg: msg}
		content = msg.Content
		return nil
	})
	return content, err
}

// CancelEdit drops the pending edit.
func (c *Client) CancelEdit() {
	_ = c.do(func() error {
		c.edit = nil
		return nil
	})
}

// DeleteMessage removes the index-th message of the active conversation
// after the user confirms.
func (c *Client) DeleteMessage(index int) error {
	return c.do(func() error {
		if c.active == "" {
			return ErrNoConversation
		}
		if _, err := c.store.At(c.active, index); err != nil {
			return err
		}
		if !c.confirmed("Delete this message?") {
			return ErrNotConfirmed
		}
		if err := c.store.DeleteAt(c.active, index); err != nil {
			return err
		}

		if c.edit != nil && c.edit.conversation == c.active && c.store.IndexOf(c.active, c.edit.msg) < 0 {
			c.edit = nil
		}
		c.emit(Signal{Kind: SignalConversationUpdated, Conversation: c.active})
		return nil
	})
}

// ClearConversation empties the active conversation after the user confirms.
func (c *Client) ClearConversation() error {
	return c.do(func() error {
		if c.active == "" {
			return ErrNoConversation
		}
		if !c.confirmed(fmt.Sprintf("Delete every message with %s?", c.active)) {
			return ErrNotConfirmed
		}
		c.store.Clear(c.active)
		if c.edit != nil && c.edit.conversation == c.active {
			c.edit = nil
		}
		c.emit(Signal{Kind: SignalConversationUpdated, Conversation: c.active})
		return nil
	})
}

func (c *Client) confirmed(prompt string) bool {
	return c.confirm != nil && c.confirm.Confirm(prompt)
}

// RefreshRoster asks the peer for the full user list.
func (c *Client) RefreshRoster(ctx context.Context) error {
	return c.do(func() error {
		return c.sendLocked(ctx, protocol.BuildRosterRefresh())
	})
}

// SearchRoster narrows the in-memory roster to names containing query. The
// entries filtered out stay gone until the next refresh.
func (c *Client) SearchRoster(query string) []chat.RosterEntry {
	var found []chat.RosterEntry
	_ = c.do(func() error {
		found = c.dir.Search(query)
		c.dir.ReplaceRoster(found)
		c.emit(Signal{Kind: SignalRosterUpdated})
		return nil
	})
	return found
}

// ExitSearch restores the roster by fetching it again.
func (c *Client) ExitSearch(ctx context.Context) error {
	return c.RefreshRoster(ctx)
}

func (c *Client) CreateRoom(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	return c.do(func() error {
		return c.sendLocked(ctx, protocol.BuildRoomCreate(name))
	})
}

func (c *Client) JoinRoom(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	return c.do(func() error {
		return c.sendLocked(ctx, protocol.BuildRoomJoin(name))
	})
}

// FetchHistory requests one page of the active conversation's history.
func (c *Client) FetchHistory(ctx context.Context, page int) error {
	return c.do(func() error {
		if c.active == "" {
			return ErrNoConversation
		}
		return c.fetchHistoryLocked(ctx, c.active, page)
	})
}

func (c *Client) fetchHistoryLocked(ctx context.Context, id string, page int) error {
	kind := c.targetKind(id)
	if err := c.sendLocked(ctx, protocol.BuildHistoryFetch(kind, id, page)); err != nil {
		return err
	}
	c.history = append(c.history, historyRequest{kind: kind, name: id})
	return nil
}

// Login sends credentials. The session is filled in when the peer accepts.
func (c *Client) Login(ctx context.Context, user, pass string) error {
	user = strings.TrimSpace(user)
	if user == "" {
		return ErrEmptyName
	}
	return c.do(func() error {
		if err := c.sendLocked(ctx, protocol.BuildLogin(user, pass)); err != nil {
			return err
		}
		c.pendingLogin = user
		return nil
	})
}

// Relogin resumes the stored session with its reconnection token.
func (c *Client) Relogin(ctx context.Context) error {
	return c.do(func() error {
		if !c.session.CanResume() {
			return ErrSessionExpired
		}
		return c.sendLocked(ctx, protocol.BuildRelogin(c.session.CurrentUser(), c.session.ReconnectToken()))
	})
}

func (c *Client) Register(ctx context.Context, user, pass string) error {
	user = strings.TrimSpace(user)
	if user == "" {
		return ErrEmptyName
	}
	return c.do(func() error {
		return c.sendLocked(ctx, protocol.BuildRegister(user, pass))
	})
}

// Logout tells the peer, then clears the session and local selection. With
// PurgeOnLogout the cached conversations and rooms are dropped too, in
// memory and in storage. The local state is cleared even when the peer
// cannot be told.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(func() error {
		var err error
		if c.conn != nil {
			err = c.sendLocked(ctx, protocol.BuildLogout())
		}

		c.session.Clear()
		c.active = ""
		c.edit = nil
		c.sends = nil
		c.history = nil
		c.pendingLogin = ""
		if c.opts.PurgeOnLogout {
			c.store.Reset()
			c.dir.Reset()
			if c.cache != nil {
				if perr := c.cache.Purge(ctx); perr != nil {
					c.logger.Warn("cache_purge_failed", "error", perr)
					err = errors.Join(err, perr)
				}
			}
		}
		c.emit(Signal{Kind: SignalLoggedOut})
		return err
	})
}

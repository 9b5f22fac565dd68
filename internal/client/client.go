// Package client is the conversation state synchronizer: the single place
// where inbound events and local intents change conversations, the roster
// and the room set.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/omochice/chatsync/internal/chat"
	"github.com/omochice/chatsync/internal/session"
	"github.com/omochice/chatsync/pkg/protocol"
)

// Session is the logged-in user and reconnection token.
type Session interface {
	CurrentUser() string
	SetCurrentUser(user string)
	ReconnectToken() string
	SetReconnectToken(token string)
	CanResume() bool
	Clear()
}

// Confirmer asks the user to approve a destructive action.
type Confirmer interface {
	Confirm(prompt string) bool
}

// Purger removes the persisted cache.
type Purger interface {
	Purge(ctx context.Context) error
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// Options switch optional engine behaviour.
type Options struct {
	// OptimisticSend appends a sent message immediately. When false the
	// message is appended once the peer acknowledges it.
	OptimisticSend bool
	// FetchHistoryOnSelect requests the first history page on Select.
	FetchHistoryOnSelect bool
	// PurgeOnLogout drops cached conversations and rooms on Logout.
	PurgeOnLogout bool
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{OptimisticSend: true}
}

// Deps are the collaborators of a Client. Store and Directory are required.
type Deps struct {
	Store     *chat.Store
	Directory *chat.Directory
	Session   Session
	Confirmer Confirmer
	Handler   Handler
	Logger    *slog.Logger
	Now       func() time.Time
	// Cache is purged on Logout when PurgeOnLogout is set. Optional.
	Cache Purger
}

// PendingEdit names the message the next send replaces.
type PendingEdit struct {
	Conversation string
	Index        int
}

// editTarget is the message being edited, held by value and found again
// with Store.IndexOf.
type editTarget struct {
	conversation string
	msg          chat.Message
}

type pendingSend struct {
	conversation string
	content      string
	sentAt       time.Time
}

type historyRequest struct {
	kind protocol.TargetKind
	name string
}

// Client reconciles the event stream with local intents. Every inbound
// frame and every intent runs to completion under one lock; signals are
// delivered after the lock is released.
type Client struct {
	store   *chat.Store
	dir     *chat.Directory
	session Session
	confirm Confirmer
	cache   Purger
	handler Handler
	logger  *slog.Logger
	now     func() time.Time
	opts    Options

	mu           sync.Mutex
	conn         chat.Conn
	active       string
	edit         *editTarget
	sends        []pendingSend
	history      []historyRequest
	pendingLogin string
	outbox       []Signal
}

// New creates a Client.
func New(deps Deps, opts Options) *Client {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sess := deps.Session
	if sess == nil {
		sess = session.New(context.Background(), nil, logger)
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		store:   deps.Store,
		dir:     deps.Directory,
		session: sess,
		confirm: deps.Confirmer,
		cache:   deps.Cache,
		handler: deps.Handler,
		logger:  logger.With("component", "client"),
		now:     now,
		opts:    opts,
	}
}

// Attach binds a freshly connected conn. When the session can be resumed a
// RE_LOGIN is sent right away.
func (c *Client) Attach(ctx context.Context, conn chat.Conn) error {
	return c.do(func() error {
		c.conn = conn
		c.emit(Signal{Kind: SignalConnected})
		c.logger.Info("connection_attached", "remote", conn.RemoteAddr())

		if !c.session.CanResume() {
			return nil
		}
		return c.sendLocked(ctx, protocol.BuildRelogin(c.session.CurrentUser(), c.session.ReconnectToken()))
	})
}

// Run reads frames from the attached connection and dispatches them until
// the connection fails or ctx ends. The connection is detached on return.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	defer c.detach(conn)

	for {
		raw, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read frame: %w", err)
		}
		c.HandleFrame(raw)
	}
}

func (c *Client) detach(conn chat.Conn) {
	_ = c.do(func() error {
		if c.conn != conn {
			return nil
		}
		c.conn = nil
		c.emit(Signal{Kind: SignalDisconnected})
		c.logger.Info("connection_detached", "remote", conn.RemoteAddr())
		return nil
	})
}

// Connected reports whether a connection is attached.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Conversation returns a copy of the log of id.
func (c *Client) Conversation(id string) []chat.Message {
	return c.store.Messages(id)
}

// Conversations returns every conversation id with a log.
func (c *Client) Conversations() []string {
	return c.store.Conversations()
}

func (c *Client) Roster() []chat.RosterEntry {
	return c.dir.Roster()
}

func (c *Client) Rooms() []chat.Room {
	return c.dir.Rooms()
}

func (c *Client) Room(name string) (chat.Room, bool) {
	return c.dir.FindRoom(name)
}

func (c *Client) CurrentUser() string {
	return c.session.CurrentUser()
}

// Active returns the selected conversation, or "" when none is.
func (c *Client) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Client) PendingEdit() (PendingEdit, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.edit == nil {
		return PendingEdit{}, false
	}
	i := c.store.IndexOf(c.edit.conversation, c.edit.msg)
	if i < 0 {
		return PendingEdit{}, false
	}
	return PendingEdit{Conversation: c.edit.conversation, Index: i}, true
}

// Awaiting reports whether a send to id has not been acknowledged yet.
func (c *Client) Awaiting(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.sends {
		if s.conversation == id {
			return true
		}
	}
	return false
}

// do runs fn under the dispatch lock and then delivers the signals it queued.
func (c *Client) do(fn func() error) error {
	c.mu.Lock()
	err := fn()
	signals := c.outbox
	c.outbox = nil
	c.mu.Unlock()

	if c.handler != nil {
		for _, s := range signals {
			c.handler(s)
		}
	}
	return err
}

// emit must be called with c.mu held.
func (c *Client) emit(s Signal) {
	c.outbox = append(c.outbox, s)
}

// sendLocked must be called with c.mu held.
func (c *Client) sendLocked(ctx context.Context, cmd protocol.Command) error {
	if c.conn == nil {
		return fmt.Errorf("send %s: %w", cmd.Event(), ErrNotConnected)
	}
	data, err := cmd.Encode()
	if err != nil {
		return err
	}
	if err := c.conn.Write(ctx, data); err != nil {
		return fmt.Errorf("send %s: %w", cmd.Event(), err)
	}
	c.logger.Debug("command_sent", "event", cmd.Event())
	return nil
}

func (c *Client) targetKind(id string) protocol.TargetKind {
	if c.dir.IsRoom(id) {
		return protocol.TargetRoom
	}
	return protocol.TargetPeople
}

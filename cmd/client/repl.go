package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/omochice/chatsync/internal/chat"
	"github.com/omochice/chatsync/internal/client"
)

const helpText = `commands:
  <text>              send text to the active conversation (or apply a pending edit)
  /to <name>          make a user or room the active conversation
  /show               print the active conversation
  /history [page]     fetch a page of history for the active conversation
  /users              fetch the user list
  /search <query>     narrow the user list
  /exitsearch         restore the full user list
  /create <room>      create a room
  /join <room>        join a room
  /rooms              list known rooms
  /room <name>        show one room
  /edit <n>           edit your n-th message of the active conversation
  /cancel             drop the pending edit
  /del <n>            delete the n-th message of the active conversation
  /clear              delete every message of the active conversation
  /login <user> <pw>  log in
  /logout             log out
  /quit               exit`

// repl is the line-oriented front end. It renders signals and turns
// input lines into client intents. mu guards out only and is never held
// across a call into client.
type repl struct {
	client *client.Client

	in    io.Reader
	lines chan string
	once  sync.Once

	mu   sync.Mutex
	out  io.Writer
	view []chat.Message // active conversation as last printed

	connected chan struct{}
}

func newREPL(in io.Reader, out io.Writer) *repl {
	return &repl{
		in:        in,
		out:       out,
		lines:     make(chan string),
		connected: make(chan struct{}, 1),
	}
}

func (r *repl) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

func (r *repl) startReader() {
	r.once.Do(func() {
		go func() {
			defer close(r.lines)
			scanner := bufio.NewScanner(r.in)
			for scanner.Scan() {
				r.lines <- scanner.Text()
			}
		}()
	})
}

// handle renders a signal. It runs on whichever goroutine produced it.
func (r *repl) handle(s client.Signal) {
	switch s.Kind {
	case client.SignalConnected:
		select {
		case r.connected <- struct{}{}:
		default:
		}
		r.printf("*** connected ***\n")
	case client.SignalDisconnected:
		r.printf("*** disconnected, retrying ***\n")
	case client.SignalConversationUpdated:
		r.conversationUpdated(s.Conversation)
	case client.SignalActiveChanged:
		msgs := r.client.Conversation(s.Conversation)
		r.mu.Lock()
		r.view = msgs
		fmt.Fprintf(r.out, "now talking to %s\n", s.Conversation)
		r.mu.Unlock()
	case client.SignalRosterUpdated:
		roster := r.client.Roster()
		r.mu.Lock()
		renderRoster(r.out, roster, timeNow())
		r.mu.Unlock()
	case client.SignalRoomJoined:
		if room, ok := r.client.Room(s.Conversation); ok {
			r.mu.Lock()
			renderRoom(r.out, room)
			r.mu.Unlock()
		}
	case client.SignalSendFailed:
		r.printf("!!! message to %s was not delivered: %v\n", s.Conversation, s.Err)
	case client.SignalSessionExpired:
		r.printf("!!! session expired, log in again with /login\n")
	case client.SignalLoggedIn:
		r.printf("*** logged in as %s ***\n", r.client.CurrentUser())
	case client.SignalLoginFailed:
		r.printf("!!! login failed: %v\n", s.Err)
	case client.SignalRegistered:
		r.printf("*** account created ***\n")
	case client.SignalRegisterFailed:
		r.printf("!!! register failed: %v\n", s.Err)
	case client.SignalLoggedOut:
		r.printf("*** logged out ***\n")
	case client.SignalRequestFailed:
		r.printf("!!! request failed: %v\n", s.Err)
	}
}

// conversationUpdated prints a single new entry in place, or redraws the
// conversation when the change was anything else.
func (r *repl) conversationUpdated(id string) {
	if id != r.client.Active() {
		r.printf("* new activity in %s\n", id)
		return
	}
	msgs := r.client.Conversation(id)

	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.view
	r.view = msgs
	if i, ok := insertedAt(prev, msgs); ok {
		renderMessage(r.out, i+1, msgs[i], timeNow())
		return
	}
	renderConversation(r.out, id, msgs, timeNow())
}

// insertedAt reports the position of the one entry next holds beyond prev.
func insertedAt(prev, next []chat.Message) (int, bool) {
	if len(next) != len(prev)+1 {
		return 0, false
	}
	i := 0
	for i < len(prev) && sameMessage(prev[i], next[i]) {
		i++
	}
	for j := i; j < len(prev); j++ {
		if !sameMessage(prev[j], next[j+1]) {
			return 0, false
		}
	}
	return i, true
}

func sameMessage(a, b chat.Message) bool {
	return a.Timestamp.Equal(b.Timestamp) && a.Sender == b.Sender &&
		a.Origin == b.Origin && a.Content == b.Content
}

// Confirm asks a yes/no question on the terminal. It is only reached from
// Run's goroutine, so it reads the next input line itself.
func (r *repl) Confirm(prompt string) bool {
	r.printf("%s [y/N] ", prompt)
	line, ok := <-r.lines
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// loginWhenConnected logs in once the first connection is up.
func (r *repl) loginWhenConnected(ctx context.Context, user, pass string) {
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-r.connected:
		}
		if err := r.client.Login(ctx, user, pass); err != nil {
			r.printf("!!! login failed: %v\n", err)
		}
	}()
}

// Run reads commands until input ends, /quit, or ctx is done.
func (r *repl) Run(ctx context.Context) error {
	r.startReader()
	r.printf("type /help for commands\n")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-r.lines:
			if !ok {
				return nil
			}
			quit, err := r.exec(ctx, strings.TrimSpace(line))
			if err != nil {
				r.printf("error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func (r *repl) exec(ctx context.Context, line string) (bool, error) {
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, r.client.Send(ctx, line)
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		r.printf("%s\n", helpText)
	case "/to":
		return false, r.client.Select(ctx, arg)
	case "/show":
		id := r.client.Active()
		if id == "" {
			return false, client.ErrNoConversation
		}
		msgs := r.client.Conversation(id)
		r.mu.Lock()
		renderConversation(r.out, id, msgs, timeNow())
		r.mu.Unlock()
	case "/history":
		page := 1
		if arg != "" {
			n, err := strconv.Atoi(arg)
			if err != nil || n < 1 {
				return false, fmt.Errorf("bad page %q", arg)
			}
			page = n
		}
		return false, r.client.FetchHistory(ctx, page)
	case "/users":
		return false, r.client.RefreshRoster(ctx)
	case "/search":
		r.client.SearchRoster(arg)
	case "/exitsearch":
		return false, r.client.ExitSearch(ctx)
	case "/create":
		return false, r.client.CreateRoom(ctx, arg)
	case "/join":
		return false, r.client.JoinRoom(ctx, arg)
	case "/rooms":
		rooms := r.client.Rooms()
		if len(rooms) == 0 {
			r.printf("no rooms\n")
		}
		r.mu.Lock()
		for _, room := range rooms {
			renderRoom(r.out, room)
		}
		r.mu.Unlock()
	case "/room":
		room, ok := r.client.Room(arg)
		if !ok {
			return false, fmt.Errorf("unknown room %q", arg)
		}
		r.mu.Lock()
		renderRoom(r.out, room)
		r.mu.Unlock()
	case "/edit":
		n, err := messageIndex(arg)
		if err != nil {
			return false, err
		}
		content, err := r.client.BeginEdit(n)
		if err != nil {
			return false, err
		}
		r.printf("editing %q, type the new text or /cancel\n", content)
	case "/cancel":
		r.client.CancelEdit()
	case "/del":
		n, err := messageIndex(arg)
		if err != nil {
			return false, err
		}
		return false, ignoreDeclined(r.client.DeleteMessage(n))
	case "/clear":
		return false, ignoreDeclined(r.client.ClearConversation())
	case "/login":
		user, pass, _ := strings.Cut(arg, " ")
		return false, r.client.Login(ctx, user, strings.TrimSpace(pass))
	case "/logout":
		return false, r.client.Logout(ctx)
	default:
		return false, fmt.Errorf("unknown command %s, try /help", cmd)
	}
	return false, nil
}

// messageIndex converts a 1-based message number to an index.
func messageIndex(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("bad message number %q", arg)
	}
	return n - 1, nil
}

func ignoreDeclined(err error) error {
	if errors.Is(err, client.ErrNotConfirmed) {
		return nil
	}
	return err
}

package client_test

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/omochice/chatsync/internal/chat"
	"github.com/omochice/chatsync/internal/client"
	"github.com/omochice/chatsync/internal/session"
)

// mockConn implements chat.Conn for testing
type mockConn struct {
	readCh  chan []byte
	written [][]byte
	mu      sync.Mutex
}

func newMockConn() *mockConn {
	return &mockConn{readCh: make(chan []byte, 10)}
}

func (m *mockConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-m.readCh:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *mockConn) Write(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = append(m.written, append([]byte(nil), data...))
	return nil
}

func (m *mockConn) Close() error {
	return nil
}

func (m *mockConn) RemoteAddr() string {
	return "mock"
}

type sentCommand struct {
	Action string `json:"action"`
	Data   struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	} `json:"data"`
}

// GetWritten decodes every command written so far.
func (m *mockConn) GetWritten(t *testing.T) []sentCommand {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]sentCommand, 0, len(m.written))
	for _, raw := range m.written {
		var cmd sentCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			t.Fatalf("written frame is not a command: %v", err)
		}
		out = append(out, cmd)
	}
	return out
}

func (m *mockConn) events(t *testing.T) []string {
	t.Helper()
	cmds := m.GetWritten(t)
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c.Data.Event
	}
	return out
}

type signalRecorder struct {
	mu      sync.Mutex
	signals []client.Signal
}

func (r *signalRecorder) handle(s client.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, s)
}

func (r *signalRecorder) count(kind client.SignalKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.signals {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

func (r *signalRecorder) last(kind client.SignalKind) (client.Signal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.signals) - 1; i >= 0; i-- {
		if r.signals[i].Kind == kind {
			return r.signals[i], true
		}
	}
	return client.Signal{}, false
}

// tickingClock returns a clock that advances one second per call.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

type fixture struct {
	client  *client.Client
	conn    *mockConn
	store   *chat.Store
	dir     *chat.Directory
	session *session.Holder
	signals *signalRecorder
	confirm bool
}

func newFixture(t *testing.T, opts client.Options) *fixture {
	t.Helper()
	f := &fixture{
		conn:    newMockConn(),
		store:   chat.NewStore(nil, nil),
		dir:     chat.NewDirectory(nil, nil),
		session: session.New(context.Background(), nil, nil),
		signals: &signalRecorder{},
		confirm: true,
	}
	f.session.SetCurrentUser("alice")
	f.client = client.New(client.Deps{
		Store:     f.store,
		Directory: f.dir,
		Session:   f.session,
		Confirmer: client.ConfirmFunc(func(string) bool { return f.confirm }),
		Handler:   f.signals.handle,
		Now:       tickingClock(),
	}, opts)
	if err := f.client.Attach(context.Background(), f.conn); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	return f
}

func (f *fixture) frame(raw string) {
	f.client.HandleFrame([]byte(raw))
}

func contents(msgs []chat.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

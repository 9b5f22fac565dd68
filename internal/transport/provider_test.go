package transport_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/omochice/chatsync/internal/chat"
	"github.com/omochice/chatsync/internal/transport"
)

// recordingSession reads every frame of each connection it is given.
type recordingSession struct {
	mu      sync.Mutex
	conn    chat.Conn
	attach  int
	frames  []string
	runErrs []error
}

func (s *recordingSession) Attach(_ context.Context, conn chat.Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
	s.attach++
	return nil
}

func (s *recordingSession) Run(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	for {
		data, err := conn.Read(ctx)
		if err != nil {
			s.mu.Lock()
			s.runErrs = append(s.runErrs, err)
			s.mu.Unlock()
			return err
		}
		s.mu.Lock()
		s.frames = append(s.frames, string(data))
		s.mu.Unlock()
	}
}

func peerURL(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestProvider_ReconnectsAfterDrop(t *testing.T) {
	for _, impl := range []string{transport.ImplGobwas, transport.ImplGorilla, transport.ImplNhooyr} {
		t.Run(impl, func(t *testing.T) {
			url := peerURL(t, func(w http.ResponseWriter, r *http.Request) {
				c, err := websocket.Accept(w, r, nil)
				if err != nil {
					return
				}
				_ = c.Write(context.Background(), websocket.MessageText, []byte(`{"event":"GET_USER_LIST","data":[]}`))
				c.Close(websocket.StatusGoingAway, "bye")
			})

			dial, err := transport.DialerFor(impl)
			require.NoError(t, err)
			p := transport.NewProvider(url, dial, transport.Options{
				ReconnectDelay: 10 * time.Millisecond,
				MaxAttempts:    2,
			}, nil)

			s := &recordingSession{}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			err = p.Run(ctx, s)
			assert.True(t, errors.Is(err, transport.ErrAttemptsExhausted), "Run() error = %v", err)

			s.mu.Lock()
			defer s.mu.Unlock()
			assert.Equal(t, 2, s.attach)
			assert.Len(t, s.frames, 2)
		})
	}
}

func TestProvider_DialFailureRetries(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	dial := func(context.Context, string) (chat.Conn, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return nil, errors.New("connection refused")
	}

	p := transport.NewProvider("ws://example.invalid", dial, transport.Options{
		ReconnectDelay: time.Millisecond,
		MaxAttempts:    3,
	}, nil)
	s := &recordingSession{}

	err := p.Run(context.Background(), s)

	assert.True(t, errors.Is(err, transport.ErrAttemptsExhausted))
	assert.Equal(t, 3, calls)
	assert.Equal(t, 0, s.attach)
}

func TestProvider_StopsOnCancel(t *testing.T) {
	release := make(chan struct{})
	url := peerURL(t, func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "")
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	dial, err := transport.DialerFor(transport.ImplGobwas)
	require.NoError(t, err)
	p := transport.NewProvider(url, dial, transport.Options{PingInterval: 10 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	s := &recordingSession{}
	go func() { done <- p.Run(ctx, s) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestDialerFor_Unknown(t *testing.T) {
	_, err := transport.DialerFor("tcp")
	assert.Error(t, err)
}

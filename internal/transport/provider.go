// Package transport owns the connection lifecycle: it dials the peer, hands
// each fresh connection to the synchronizer and reconnects after a fixed
// delay when the connection drops.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/omochice/chatsync/internal/chat"
	"github.com/omochice/chatsync/internal/transport/ws"
)

// Dialer opens one connection to url.
type Dialer func(ctx context.Context, url string) (chat.Conn, error)

// Websocket implementation names accepted by DialerFor.
const (
	ImplGobwas  = "gobwas"
	ImplGorilla = "gorilla"
	ImplNhooyr  = "nhooyr"
)

// DialerFor returns the Dialer for a websocket implementation.
func DialerFor(impl string) (Dialer, error) {
	switch impl {
	case ImplGobwas, "":
		return func(ctx context.Context, url string) (chat.Conn, error) {
			return ws.Dial(ctx, url)
		}, nil
	case ImplGorilla:
		return func(ctx context.Context, url string) (chat.Conn, error) {
			return ws.DialGorilla(ctx, url)
		}, nil
	case ImplNhooyr:
		return func(ctx context.Context, url string) (chat.Conn, error) {
			return ws.DialNhooyr(ctx, url)
		}, nil
	default:
		return nil, fmt.Errorf("unknown websocket implementation %q", impl)
	}
}

// Session is what the provider drives over each connection.
type Session interface {
	Attach(ctx context.Context, conn chat.Conn) error
	Run(ctx context.Context) error
}

type keepAliver interface {
	KeepAlive(ctx context.Context, interval time.Duration)
}

// Options configure a Provider.
type Options struct {
	// ReconnectDelay is the fixed wait between connection attempts.
	ReconnectDelay time.Duration
	// PingInterval enables websocket pings when positive.
	PingInterval time.Duration
	// MaxAttempts stops Run after that many dial attempts. Zero means no limit.
	MaxAttempts int
}

// Provider keeps one connection to the peer alive.
type Provider struct {
	url    string
	dial   Dialer
	opts   Options
	logger *slog.Logger
}

// ErrAttemptsExhausted is returned by Run when MaxAttempts is reached.
var ErrAttemptsExhausted = errors.New("connection attempts exhausted")

func NewProvider(url string, dial Dialer, opts Options, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 3 * time.Second
	}
	return &Provider{
		url:    url,
		dial:   dial,
		opts:   opts,
		logger: logger.With("component", "transport"),
	}
}

// Run connects, runs s on the connection and reconnects after it ends,
// until ctx is cancelled.
func (p *Provider) Run(ctx context.Context, s Session) error {
	for attempt := 1; ; attempt++ {
		p.serve(ctx, s, attempt)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p.opts.MaxAttempts > 0 && attempt >= p.opts.MaxAttempts {
			return ErrAttemptsExhausted
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.opts.ReconnectDelay):
		}
	}
}

func (p *Provider) serve(ctx context.Context, s Session, attempt int) {
	id := uuid.NewString()
	logger := p.logger.With("conn_id", id, "url", p.url, "attempt", attempt)

	conn, err := p.dial(ctx, p.url)
	if err != nil {
		logger.Warn("dial_failed", "error", err)
		return
	}
	defer conn.Close()
	logger.Info("connected", "remote", conn.RemoteAddr())

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if ka, ok := conn.(keepAliver); ok && p.opts.PingInterval > 0 {
		go ka.KeepAlive(connCtx, p.opts.PingInterval)
	}

	if err := s.Attach(connCtx, conn); err != nil {
		logger.Warn("attach_failed", "error", err)
	}

	err = s.Run(connCtx)
	if ctx.Err() != nil {
		logger.Info("disconnected", "reason", "shutdown")
		return
	}
	logger.Warn("disconnected", "error", err)
}

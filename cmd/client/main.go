package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/omochice/chatsync/internal/chat"
	"github.com/omochice/chatsync/internal/client"
	"github.com/omochice/chatsync/internal/config"
	"github.com/omochice/chatsync/internal/logging"
	"github.com/omochice/chatsync/internal/persist"
	"github.com/omochice/chatsync/internal/session"
	"github.com/omochice/chatsync/internal/storage"
	"github.com/omochice/chatsync/internal/transport"
)

var (
	flagConfig   string
	flagEnvFile  string
	flagURL      string
	flagImpl     string
	flagUser     string
	flagPassword string
)

var rootCmd = &cobra.Command{
	Use:   "chatsync",
	Short: "Terminal chat client with a persistent local conversation cache.",
	Long: `chatsync connects to a chat server over a websocket and keeps direct
conversations and rooms in a local cache that survives restarts.

  chatsync --user alice --password secret   log in and start chatting
  chatsync                                  resume the stored session
  chatsync register bob --password pw       create an account
  chatsync show bob                         print a cached conversation offline
  chatsync rooms                            list cached rooms offline

Type /help inside the client for the list of commands.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runChat,
}

var registerCmd = &cobra.Command{
	Use:   "register <user>",
	Short: "Create an account on the server.",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegister,
}

var showCmd = &cobra.Command{
	Use:   "show <conversation>",
	Short: "Print a cached conversation without connecting.",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List cached rooms without connecting.",
	Args:  cobra.NoArgs,
	RunE:  runRooms,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "path to a YAML config file")
	pf.StringVar(&flagEnvFile, "env-file", ".env", "path to a .env file")
	pf.StringVar(&flagURL, "url", "", "websocket URL of the chat server")
	pf.StringVar(&flagImpl, "impl", "", "websocket implementation: gobwas, gorilla or nhooyr")

	rootCmd.Flags().StringVar(&flagUser, "user", "", "log in as this user")
	rootCmd.Flags().StringVar(&flagPassword, "password", "", "password for --user")
	registerCmd.Flags().StringVar(&flagPassword, "password", "", "password of the new account")

	rootCmd.AddCommand(registerCmd, showCmd, roomsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	if err := config.LoadDotEnv(flagEnvFile); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return cfg, err
	}
	if flagURL != "" {
		cfg.Server.URL = flagURL
	}
	if flagImpl != "" {
		cfg.Server.Impl = flagImpl
	}
	return cfg, cfg.Validate()
}

// app is the wired client: storage, cache, session and engine.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	kv      storage.KV
	store   *chat.Store
	dir     *chat.Directory
	session *session.Holder
	client  *client.Client
	closers []io.Closer
}

func newApp(ctx context.Context, cfg config.Config, handler client.Handler, confirm client.Confirmer) (*app, error) {
	logger, logCloser, err := logging.Open(cfg.Log.Sink, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	kv, err := storage.Open(ctx, cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		_ = logCloser.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	adapter := persist.New(kv, logger)
	a := &app{
		cfg:     cfg,
		logger:  logger,
		kv:      kv,
		store:   chat.NewStore(adapter, logger),
		dir:     chat.NewDirectory(adapter, logger),
		session: session.New(ctx, kv, logger),
		closers: []io.Closer{kv, logCloser},
	}

	snap, ok := adapter.LoadSnapshot(ctx)
	a.store.Load(snap.Conversations)
	a.dir.LoadRooms(snap.Rooms)
	logger.Info("cache_loaded", "restored", ok, "conversations", len(snap.Conversations), "rooms", len(snap.Rooms))

	a.client = client.New(client.Deps{
		Store:     a.store,
		Directory: a.dir,
		Session:   a.session,
		Confirmer: confirm,
		Handler:   handler,
		Logger:    logger,
		Cache:     adapter,
	}, client.Options{
		OptimisticSend:       cfg.Client.OptimisticSend,
		FetchHistoryOnSelect: cfg.Client.FetchHistoryOnSelect,
		PurgeOnLogout:        cfg.Client.PurgeOnLogout,
	})
	return a, nil
}

func (a *app) provider(maxAttempts int) (*transport.Provider, error) {
	dial, err := transport.DialerFor(a.cfg.Server.Impl)
	if err != nil {
		return nil, err
	}
	return transport.NewProvider(a.cfg.Server.URL, dial, transport.Options{
		ReconnectDelay: a.cfg.Server.ReconnectDelay,
		PingInterval:   a.cfg.Server.PingInterval,
		MaxAttempts:    maxAttempts,
	}, a.logger), nil
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := newREPL(cmd.InOrStdin(), cmd.OutOrStdout())
	a, err := newApp(ctx, cfg, r.handle, r)
	if err != nil {
		return err
	}
	defer a.Close()
	r.client = a.client

	p, err := a.provider(0)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := p.Run(ctx, a.client); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("provider_stopped", "error", err)
		}
	}()

	if flagUser != "" {
		r.loginWhenConnected(ctx, flagUser, flagPassword)
	}
	return r.Run(ctx)
}

func runRegister(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	result := make(chan error, 1)
	connected := make(chan struct{}, 1)
	handler := func(s client.Signal) {
		switch s.Kind {
		case client.SignalConnected:
			select {
			case connected <- struct{}{}:
			default:
			}
		case client.SignalRegistered:
			select {
			case result <- nil:
			default:
			}
		case client.SignalRegisterFailed:
			select {
			case result <- s.Err:
			default:
			}
		}
	}

	a, err := newApp(ctx, cfg, handler, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.provider(1)
	if err != nil {
		return err
	}
	runErr := make(chan error, 1)
	go func() { runErr <- p.Run(ctx, a.client) }()

	select {
	case <-connected:
	case err := <-runErr:
		return fmt.Errorf("could not reach server: %w", err)
	}
	if err := a.client.Register(ctx, args[0], flagPassword); err != nil {
		return err
	}

	select {
	case err := <-result:
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", args[0])
		return nil
	case err := <-runErr:
		return fmt.Errorf("connection lost before the server answered: %w", err)
	}
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, nil, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	renderConversation(cmd.OutOrStdout(), args[0], a.client.Conversation(args[0]), timeNow())
	return nil
}

func runRooms(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, nil, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	rooms := a.client.Rooms()
	if len(rooms) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no rooms")
		return nil
	}
	for _, room := range rooms {
		renderRoom(cmd.OutOrStdout(), room)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/traylinx/chatdesk/internal/api"
	"github.com/traylinx/chatdesk/internal/auth"
	"github.com/traylinx/chatdesk/internal/cache"
	"github.com/traylinx/chatdesk/internal/config"
	"github.com/traylinx/chatdesk/internal/export"
	"github.com/traylinx/chatdesk/internal/logging"
	"github.com/traylinx/chatdesk/internal/session"
	"github.com/traylinx/chatdesk/internal/stream"
	"github.com/traylinx/chatdesk/internal/tokens"
	"github.com/traylinx/chatdesk/internal/transport"
	"github.com/traylinx/chatdesk/internal/util"
)

// streamEndTypes end a stream when the configuration names none; the
// gateway finishes replies with a "complete" data frame, not a named event.
var streamEndTypes = []string{"complete", "error", "cancelled"}

// app holds every component the commands use, wired in dependency order:
// storage, auth helpers, session, transport, API clients, stream client.
type app struct {
	cfg        *config.Config
	configPath string
	sb         *util.StateBox

	storage  *cache.Facade
	auth     *auth.Helpers
	session  *session.Store
	client   *transport.Client
	chat     *api.ChatClient
	settings *api.ConfigClient
	streams  *stream.Client
	sink     export.Sink
	tokens   *tokens.Estimator

	out    io.Writer
	cancel context.CancelFunc
}

// loadConfig reads path, or <state dir>/config.yaml when path is empty.
// A missing default file yields the built-in defaults.
func loadConfig(path string) (*config.Config, string, error) {
	optional := false
	if path == "" {
		path = config.GetEnv("CHATDESK_CONFIG", "")
	}
	if path == "" {
		sb, err := util.NewStateBox()
		if err != nil {
			return nil, "", err
		}
		path = filepath.Join(sb.RootPath(), "config.yaml")
		optional = true
	}
	cfg, err := config.LoadConfigOptional(path, optional)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func newApp(ctx context.Context, cfg *config.Config, configPath string, out io.Writer) (*app, error) {
	sb, err := util.NewStateBoxAt(cfg.Storage.Dir)
	if err != nil {
		return nil, err
	}

	logging.SetLevel(cfg.Debug)
	if err := logging.ConfigureLogOutput(cfg.LoggingToFile, sb.LogsDir(), cfg.LogsMaxSizeMB); err != nil {
		log.Warnf("file logging unavailable: %v", err)
	}

	storage, err := cache.Open(ctx, cfg, sb)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	helpers := auth.New(storage.Local.Backend())
	store := session.New(nil, helpers, session.Options{
		DefaultRole:   cfg.Session.DefaultRole,
		DefaultAvatar: cfg.Session.DefaultAvatar,
	})

	client, err := transport.New(cfg, transport.WithTokenSource(store.TokenSource()))
	if err != nil {
		_ = storage.Close()
		return nil, err
	}
	store.SetClient(client)

	streamCfg := cfg.Stream
	if len(streamCfg.CompleteTypes) == 0 {
		streamCfg.CompleteTypes = streamEndTypes
	}
	streams := stream.FromConfig(streamCfg, client)

	sink, err := export.NewSink(cfg.Export, sb)
	if err != nil {
		_ = storage.Close()
		return nil, err
	}

	a := &app{
		cfg:        cfg,
		configPath: configPath,
		sb:         sb,
		storage:    storage,
		auth:       helpers,
		session:    store,
		client:     client,
		chat:       api.NewChatClient(client, streams),
		settings:   api.NewConfigClient(client),
		streams:    streams,
		sink:       sink,
		tokens:     tokens.NewEstimator(tokens.MethodTiktoken),
		out:        out,
	}

	if cfg.Session.WatchStorage {
		watchCtx, cancel := context.WithCancel(ctx)
		a.cancel = cancel
		if err := sb.EnsureDir(sb.StorageDir()); err == nil {
			if err := store.Sync(watchCtx, storage.Watcher()); err != nil {
				log.Debugf("session sync disabled: %v", err)
			}
		}
	}
	return a, nil
}

func (a *app) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	return a.storage.Close()
}

// requireLogin fails early instead of sending an unauthenticated request.
func (a *app) requireLogin() error {
	if !a.session.IsLoggedIn() {
		return fmt.Errorf("not logged in: run `chatdesk login` first")
	}
	return nil
}

func stdinIsPipe() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice == 0
}

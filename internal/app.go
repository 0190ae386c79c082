package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/starford/lifepress/internal/contentstore"
	"github.com/starford/lifepress/internal/draft"
	"github.com/starford/lifepress/internal/gateway"
	"github.com/starford/lifepress/internal/index"
	"github.com/starford/lifepress/internal/localstate"
	"github.com/starford/lifepress/internal/postservice"
	"github.com/starford/lifepress/internal/sse"
	"github.com/starford/lifepress/internal/storage"
)

// App holds the components shared by every command.
type App struct {
	Config  *Config
	Logger  *slog.Logger
	Service *postservice.Service
	Broker  *sse.Broker

	local  *storage.FS
	index  *index.DB
	state  *localstate.DB
	drafts *draft.Keeper
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// Open wires the store, gateway, index, local state and post service.
// The caller must Close the returned App.
func Open(ctx context.Context, opts ...Option) (*App, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	cfg := app.config

	logger := app.logger()
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("backend", cfg.Store.Backend),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("state_path", cfg.SQLite.StatePath),
		slog.Duration("cache_ttl", cfg.Cache.TTL),
		slog.String("log_level", cfg.App.LogLevel.String()))

	a := &App{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	if a.state, err = localstate.Open(cfg.SQLite.StatePath); err != nil {
		return nil, fmt.Errorf("init local state: %w", err)
	}

	store, err := a.openStore(ctx, app.token)
	if err != nil {
		return nil, err
	}

	var mirror gateway.Mirror
	if cfg.Cache.Persist {
		sess, err := a.state.Session(ctx, cfg.Cache.Session)
		if err != nil {
			return nil, fmt.Errorf("open cache session: %w", err)
		}
		logger.Info("Cache session", slog.String("session", sess.ID()))
		mirror = sess
	}

	gw, err := gateway.New(gateway.Options{
		Store:             store,
		TTL:               cfg.Cache.TTL,
		Mirror:            mirror,
		Logger:            logger,
		InvalidateOnWrite: cfg.Cache.InvalidateOnWrite,
		Exclude:           cfg.Store.Exclude,
		Depth:             cfg.Store.Depth,
		Concurrency:       cfg.Store.Concurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("init gateway: %w", err)
	}

	if a.index, err = index.Open(cfg.SQLite.Path); err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	a.Broker = sse.NewBroker(2 * time.Second)
	a.drafts = draft.New(a.state, cfg.Draft.Debounce, logger)

	a.Service, err = postservice.New(postservice.Options{
		Gateway: gw,
		Index:   a.index,
		Drafts:  a.drafts,
		Events:  a.Broker,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

func (a *App) openStore(ctx context.Context, token string) (contentstore.Store, error) {
	cfg := a.Config
	if cfg.Store.Backend == BackendLocal {
		if err := os.MkdirAll(cfg.Store.Local.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create content dir: %w", err)
		}
		fs, err := storage.NewFS(cfg.Store.Local.Path)
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		a.local = fs
		return fs, nil
	}

	if token == "" {
		token = cfg.GitHub.Token
	}
	if token == "" {
		stored, found, err := a.state.Get(ctx, localstate.KeyCredential)
		if err != nil {
			return nil, fmt.Errorf("read stored credential: %w", err)
		}
		if found {
			token = stored
		}
	}
	gh, err := newGitHub(cfg.GitHub, token)
	if err != nil {
		return nil, err
	}
	if !gh.HasCredential() {
		a.Logger.Warn("No GitHub credential configured, running read-only")
	}
	return gh, nil
}

func newGitHub(cfg GitHubConfig, token string) (*contentstore.GitHub, error) {
	gh, err := contentstore.NewGitHub(contentstore.GitHubConfig{
		APIURL: cfg.APIURL,
		Owner:  cfg.Owner,
		Repo:   cfg.Repo,
		Branch: cfg.Branch,
		Token:  token,
		Client: &http.Client{Timeout: cfg.Timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("init github store: %w", err)
	}
	return gh, nil
}

// Reindex syncs the search index with the store, logging rather than
// failing when the store is unreachable.
func (a *App) Reindex(ctx context.Context) {
	start := time.Now()
	if err := a.Service.Reindex(ctx); err != nil {
		a.Logger.Warn("initial sync failed", slog.String("error", err.Error()))
		return
	}
	a.Logger.Info("Index synced", slog.Duration("took", time.Since(start)))
}

// Close flushes the draft and releases every resource.
func (a *App) Close() error {
	var errs []error
	if a.Service != nil {
		a.Service.Close()
	}
	if a.drafts != nil {
		errs = append(errs, a.drafts.Flush(context.Background()))
	}
	if a.Broker != nil {
		a.Broker.Close()
	}
	if a.index != nil {
		errs = append(errs, a.index.Close())
	}
	if a.state != nil {
		errs = append(errs, a.state.Close())
	}
	return errors.Join(errs...)
}

// Login checks token against the configured repository and stores it as
// the credential for later runs. It returns the repository owner's login.
func Login(ctx context.Context, token string, opts ...Option) (string, error) {
	app, err := newApplication(opts)
	if err != nil {
		return "", err
	}
	cfg := app.config
	if err := cfg.GitHub.Validate(); err != nil {
		return "", fmt.Errorf("github: %w", err)
	}

	gh, err := newGitHub(cfg.GitHub, token)
	if err != nil {
		return "", err
	}
	login, err := gh.TestConnection(ctx)
	if err != nil {
		return "", fmt.Errorf("test connection: %w", err)
	}

	state, err := localstate.Open(cfg.SQLite.StatePath)
	if err != nil {
		return "", fmt.Errorf("init local state: %w", err)
	}
	defer state.Close()
	if err := state.Set(ctx, localstate.KeyCredential, token); err != nil {
		return "", fmt.Errorf("store credential: %w", err)
	}
	return login, nil
}

// Logout removes the stored credential. Later runs fall back to the
// configured token or stay read-only.
func Logout(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	state, err := localstate.Open(app.config.SQLite.StatePath)
	if err != nil {
		return fmt.Errorf("init local state: %w", err)
	}
	defer state.Close()
	if err := state.Delete(ctx, localstate.KeyCredential); err != nil {
		return fmt.Errorf("remove credential: %w", err)
	}
	return nil
}

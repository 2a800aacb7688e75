package app

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/ASDFGHan123/unichat/internal/api"
	"github.com/ASDFGHan123/unichat/internal/backup"
	"github.com/ASDFGHan123/unichat/internal/bus"
	"github.com/ASDFGHan123/unichat/internal/chat"
	"github.com/ASDFGHan123/unichat/internal/config"
	"github.com/ASDFGHan123/unichat/internal/events"
	"github.com/ASDFGHan123/unichat/internal/lock"
	"github.com/ASDFGHan123/unichat/internal/logging"
	"github.com/ASDFGHan123/unichat/internal/profile"
	"github.com/ASDFGHan123/unichat/internal/session"
	"github.com/ASDFGHan123/unichat/internal/status"
	"github.com/ASDFGHan123/unichat/internal/tui"
	"github.com/ASDFGHan123/unichat/internal/tui/model"
)

// Default endpoints used when config.toml is absent or partial.
const (
	defaultBaseURL   = "http://localhost:8000/api"
	defaultEventsURL = "ws://localhost:8000/ws/events/"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
}

// Module returns the fx module for the client, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("unichat",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideClient,
			provideStore,
			provideDirectory,
			provideIngest,
			provideStream,
			provideBackupManager,
			provideSession,
			provideViewModel,
			provideApp,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() *config.Config {
	// A missing or broken config must not brick the client; fall back to
	// defaults.
	cfg, err := config.Load(profile.ConfigPath())
	if err != nil {
		cfg = &config.Config{}
	}
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = defaultBaseURL
	}
	if cfg.Backend.EventsURL == "" {
		cfg.Backend.EventsURL = defaultEventsURL
	}
	return cfg
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideClient(cfg *config.Config, b *bus.Bus, logger *zap.Logger) *api.Client {
	return api.New(cfg.Backend.BaseURL, b, logger)
}

func provideStore(c *api.Client, b *bus.Bus, logger *zap.Logger) *chat.Store {
	return chat.NewStore(c, b, logger)
}

func provideDirectory(c *api.Client, logger *zap.Logger) *chat.Directory {
	return chat.NewDirectory(c, logger)
}

func provideIngest(store *chat.Store, b *bus.Bus, logger *zap.Logger) *chat.Ingest {
	return chat.NewIngest(store, b, logger)
}

func provideStream(cfg *config.Config, c *api.Client, b *bus.Bus, m *status.Machine, logger *zap.Logger) *events.Stream {
	return events.New(cfg.Backend.EventsURL, c.Token, b, m, logger)
}

func provideBackupManager(c *api.Client, b *bus.Bus, logger *zap.Logger) *backup.Manager {
	return backup.NewManager(c, b, logger)
}

func provideSession(p Params, c *api.Client, m *status.Machine, b *bus.Bus, logger *zap.Logger) *session.Manager {
	return session.NewManager(c, m, b, logger, profile.TokenPath(p.ProfileName))
}

func provideViewModel(store *chat.Store, dir *chat.Directory, sess *session.Manager, m *status.Machine, c *api.Client, b *bus.Bus) *model.ViewModel {
	return model.NewViewModel(store, dir, sess, m, c, b)
}

func provideApp(p Params, vm *model.ViewModel) *tui.App {
	return tui.NewApp(vm, p.ProfileName)
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, sess *session.Manager, ingest *chat.Ingest, stream *events.Stream, mgr *backup.Manager, logger *zap.Logger) {
	streamCtx, cancelStream := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// Ingest first so no remote event published during startup is
			// dropped on the floor.
			ingest.Start(context.Background())
			mgr.Start()
			sess.Watch()

			if err := sess.Restore(ctx); err != nil {
				return err
			}

			go func() {
				if err := stream.Run(streamCtx); err != nil && streamCtx.Err() == nil {
					logger.Error("event stream terminated", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			cancelStream()
			mgr.Stop()
			sess.Stop()
			ingest.Stop()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			return nil
		},
	})
}

package daemon

import (
	"context"
	"errors"
	"net/http"

	"github.com/matheus3301/crmchat/internal/api"
	"github.com/matheus3301/crmchat/internal/bus"
	"github.com/matheus3301/crmchat/internal/config"
	"github.com/matheus3301/crmchat/internal/conversation"
	"github.com/matheus3301/crmchat/internal/extract"
	"github.com/matheus3301/crmchat/internal/lock"
	"github.com/matheus3301/crmchat/internal/logging"
	"github.com/matheus3301/crmchat/internal/metrics"
	"github.com/matheus3301/crmchat/internal/outbox"
	"github.com/matheus3301/crmchat/internal/profile"
	"github.com/matheus3301/crmchat/internal/selection"
	"github.com/matheus3301/crmchat/internal/status"
	"github.com/matheus3301/crmchat/internal/store"
	intsync "github.com/matheus3301/crmchat/internal/sync"
	"github.com/matheus3301/crmchat/internal/templates"
	"github.com/matheus3301/crmchat/internal/transport"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	SocketPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideTransport,
			provideManager,
			provideTemplates,
			provideAggregator,
			provideSyncEngine,
			provideSender,
			provideConversationService,
			api.NewExtractService,
			api.NewTemplateService,
			provideMetricsServer,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	return config.Load(profile.ConfigPath(p.ProfileName))
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName, cfg.LogLevel)
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
	l, err := lock.Acquire(profile.LockPath(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.ProfileName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("version", result.Version))
	} else {
		logger.Debug("schema up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideTransport(cfg *config.Config, logger *zap.Logger) (*transport.Client, error) {
	return transport.New(transport.Options{
		BaseURL: cfg.API.BaseURL,
		Token:   cfg.API.Token,
		Timeout: cfg.API.Timeout.Duration,
	}, logger.Named("transport"))
}

func provideManager(cfg *config.Config, client *transport.Client, b *bus.Bus, logger *zap.Logger) *conversation.Manager {
	self := conversation.Identity{ID: cfg.SenderID, Name: cfg.SenderName}
	return conversation.NewManager(self, client, b, logger.Named("conversation"))
}

func provideTemplates(db *store.DB, logger *zap.Logger) *templates.Store {
	s := templates.NewStore(db, logger.Named("templates"))
	s.Restore()
	return s
}

func provideAggregator(mgr *conversation.Manager, tmpl *templates.Store) *selection.Aggregator {
	return selection.NewAggregator(mgr, tmpl, extract.NewInstrumented())
}

func provideSyncEngine(cfg *config.Config, db *store.DB, client *transport.Client, mgr *conversation.Manager, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	var fetcher intsync.Fetcher
	if cfg.API.BaseURL != "" {
		fetcher = client
	}
	return intsync.NewEngine(db, fetcher, mgr, machine, b, logger.Named("sync"), intsync.Options{
		Interval: cfg.Sync.Interval.Duration,
		PageSize: cfg.Sync.PageSize,
	})
}

func provideSender(cfg *config.Config, db *store.DB, client *transport.Client, mgr *conversation.Manager, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, client, mgr, b, logger.Named("outbox"), cfg.Outbox.Interval.Duration)
}

func provideConversationService(p Params, mgr *conversation.Manager, sender *outbox.Sender, engine *intsync.Engine, m *status.Machine, b *bus.Bus) *api.ConversationService {
	return api.NewConversationService(p.ProfileName, mgr, sender, engine, m, b)
}

// provideMetricsServer returns nil when metrics.addr is empty.
func provideMetricsServer(cfg *config.Config) *http.Server {
	if cfg.Metrics.Addr == "" {
		return nil
	}
	return &http.Server{Addr: cfg.Metrics.Addr, Handler: metrics.Handler()}
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, srv *Server, metricsSrv *http.Server, lk *lock.Lock, db *store.DB, engine *intsync.Engine, sender *outbox.Sender, machine *status.Machine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Cache mirror and poller.
			engine.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("api server error", zap.Error(err))
				}
			}()

			if metricsSrv != nil {
				go func() {
					logger.Info("metrics server starting", zap.String("addr", metricsSrv.Addr))
					if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error("metrics server error", zap.Error(err))
					}
				}()
			}

			sender.Start(context.Background())

			if cfg.API.BaseURL == "" {
				logger.Warn("api.base_url not set, running offline")
				_ = machine.Transition(status.Offline)
			} else {
				_ = machine.Transition(status.Ready)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			sender.Stop()
			engine.Stop()
			srv.Stop(ctx)
			if metricsSrv != nil {
				_ = metricsSrv.Shutdown(ctx)
			}
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}

package daemon

import (
	"context"
	"errors"

	"github.com/matheus3301/chatter/internal/api"
	"github.com/matheus3301/chatter/internal/attachment"
	"github.com/matheus3301/chatter/internal/auth"
	"github.com/matheus3301/chatter/internal/bus"
	"github.com/matheus3301/chatter/internal/chat"
	"github.com/matheus3301/chatter/internal/config"
	"github.com/matheus3301/chatter/internal/convlog"
	"github.com/matheus3301/chatter/internal/friends"
	"github.com/matheus3301/chatter/internal/lock"
	"github.com/matheus3301/chatter/internal/logging"
	"github.com/matheus3301/chatter/internal/objstore"
	"github.com/matheus3301/chatter/internal/profile"
	"github.com/matheus3301/chatter/internal/status"
	"github.com/matheus3301/chatter/internal/store"
	"github.com/matheus3301/chatter/internal/workspace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved workspace configuration passed to the fx module.
type Params struct {
	Workspace  string
	SocketPath string // optional override for testing; empty = use default
	ConfigPath string // optional override for testing; empty = use default
}

func (p Params) configPath() string {
	if p.ConfigPath != "" {
		return p.ConfigPath
	}
	return workspace.ConfigPath()
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLevel,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideObjects,
			provideResolver,
			provideConversationLog,
			provideReplicator,
			provideProfiles,
			provideFriendGraph,
			provideAuth,
			provideChatSession,
			provideAccountService,
			provideFriendService,
			provideChatService,
			provideStatusService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	return config.LoadOrDefault(p.configPath())
}

func provideLevel(cfg *config.Config) zap.AtomicLevel {
	return zap.NewAtomicLevelAt(logging.ParseLevel(cfg.Log.Level))
}

func provideLogger(p Params, level zap.AtomicLevel) (*zap.Logger, error) {
	return logging.New(workspace.LogPath(p.Workspace), p.Workspace, level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := workspace.EnsureDir(p.Workspace); err != nil {
		return nil, err
	}
	logger.Info("acquiring workspace lock", zap.String("workspace", p.Workspace))
	l, err := lock.Acquire(workspace.Dir(p.Workspace))
	if err != nil {
		return nil, err
	}
	logger.Info("workspace lock acquired")
	return l, nil
}

// provideStore depends on the lock so the database is only opened by its owner.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := workspace.DBPath(p.Workspace)
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
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideObjects(p Params, cfg *config.Config) (*objstore.Store, error) {
	dir := cfg.Storage.ObjectsDir
	if dir == "" {
		dir = workspace.ObjectsDir(p.Workspace)
	}
	return objstore.New(dir, cfg.Storage.BaseURL)
}

func provideResolver(objects *objstore.Store, logger *zap.Logger) *attachment.Resolver {
	return attachment.NewResolver(objects, logger)
}

func provideConversationLog(db *store.DB, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *convlog.Log {
	if !cfg.Replication.Repair {
		logger.Warn("replica repair disabled: a failed peer write leaves the conversation one-sided")
	}
	return convlog.New(db, b, convlog.Options{
		Repair:         cfg.Replication.Repair,
		ResyncInterval: cfg.ResyncInterval(),
	}, logger)
}

func provideReplicator(l *convlog.Log, cfg *config.Config, logger *zap.Logger) *convlog.Replicator {
	return convlog.NewReplicator(l, convlog.ReplicatorConfig{
		Interval:    cfg.ReplicationInterval(),
		Grace:       cfg.ReplicationInterval(),
		MaxAttempts: cfg.Replication.MaxAttempts,
		RatePerSec:  cfg.Replication.RatePerSec,
	}, logger)
}

func provideProfiles(db *store.DB, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *profile.Service {
	return profile.New(db, b, cfg.ResyncInterval(), logger)
}

func provideFriendGraph(db *store.DB, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *friends.Graph {
	return friends.New(db, b, cfg.ResyncInterval(), logger)
}

func provideAuth(db *store.DB, objects *objstore.Store, profiles *profile.Service, logger *zap.Logger) (*auth.Provider, error) {
	return auth.New(context.Background(), db, objects, profiles, logger)
}

func provideChatSession(l *convlog.Log, profiles *profile.Service, a *auth.Provider, objects *objstore.Store, resolver *attachment.Resolver, cfg *config.Config, logger *zap.Logger) *chat.Session {
	return chat.New(chat.Deps{
		Logs:     l,
		Profiles: profiles,
		Identity: a,
		Uploader: objects,
		Resolver: resolver,
	}, chat.Config{ResolveTimeout: cfg.ResolveTimeout()}, logger)
}

func provideAccountService(a *auth.Provider, profiles *profile.Service, objects *objstore.Store, resolver *attachment.Resolver, cfg *config.Config, logger *zap.Logger) *api.AccountService {
	return api.NewAccountService(a, profiles, objects, resolver, cfg.ResolveTimeout(), logger)
}

func provideFriendService(a *auth.Provider, graph *friends.Graph, profiles *profile.Service, l *convlog.Log, logger *zap.Logger) *api.FriendService {
	return api.NewFriendService(a, graph, profiles, l, logger)
}

func provideChatService(a *auth.Provider, session *chat.Session, l *convlog.Log, objects *objstore.Store, resolver *attachment.Resolver) *api.ChatService {
	return api.NewChatService(a, session, l, objects, resolver)
}

func provideStatusService(p Params, machine *status.Machine, db *store.DB, a *auth.Provider, session *chat.Session, cfg *config.Config, logger *zap.Logger) *api.StatusService {
	return api.NewStatusService(p.Workspace, machine, db, a, session, cfg.Replication.Repair, logger)
}

type lifecycleParams struct {
	fx.In

	Params     Params
	Server     *Server
	Lock       *lock.Lock
	DB         *store.DB
	Replicator *convlog.Replicator
	Session    *chat.Session
	Auth       *auth.Provider
	Machine    *status.Machine
	Bus        *bus.Bus
	Level      zap.AtomicLevel
	Logger     *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, lp lifecycleParams) {
	ctx, cancel := context.WithCancel(context.Background())
	var unregister func()

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			logger := lp.Logger

			_, signedIn := lp.Auth.Current()
			if err := lp.Machine.Signed(signedIn); err != nil {
				return err
			}
			unregister = lp.Auth.OnIdentityChange(func(id string) {
				if err := lp.Machine.Signed(id != ""); err != nil {
					logger.Warn("status transition failed", zap.Error(err))
				}
			})
			go monitorReplicas(ctx, lp.Bus, lp.Machine, logger)

			lp.Replicator.Start(ctx)

			err := config.Watch(ctx, lp.Params.configPath(), logger, func(cfg *config.Config) {
				lvl := logging.ParseLevel(cfg.Log.Level)
				if lvl != lp.Level.Level() {
					logger.Info("log level changed", zap.Stringer("level", lvl))
					lp.Level.SetLevel(lvl)
				}
			})
			if err != nil {
				logger.Warn("config hot reload unavailable", zap.Error(err))
			}

			// Start gRPC server in background.
			go func() {
				if err := lp.Server.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			_ = lp.Machine.Transition(status.Stopping)
			if unregister != nil {
				unregister()
			}
			lp.Session.Close()
			lp.Server.Stop(stopCtx)
			lp.Replicator.Stop()
			cancel()
			var errs []error
			if err := lp.DB.Close(); err != nil {
				errs = append(errs, err)
			}
			if err := lp.Lock.Release(); err != nil {
				lp.Logger.Warn("error releasing lock", zap.Error(err))
			}
			lp.Logger.Info("daemon stopped")
			_ = lp.Logger.Sync()
			return errors.Join(errs...)
		},
	})
}

// monitorReplicas marks the daemon degraded while replicas are being
// abandoned and ready again once one is repaired.
func monitorReplicas(ctx context.Context, b *bus.Bus, m *status.Machine, logger *zap.Logger) {
	events, unsub := b.Subscribe("replica.", 16)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			switch {
			case evt.Kind == convlog.EventReplicaFailed && m.Current() == status.Ready:
				logger.Warn("replica abandoned, daemon degraded", zap.Any("msg_id", evt.Payload))
				_ = m.Transition(status.Degraded)
			case evt.Kind == convlog.EventReplicaRepaired && m.Current() == status.Degraded:
				_ = m.Transition(status.Ready)
			}
		}
	}
}

package daemon

import (
	"context"

	"github.com/matheus3301/wppbridge/internal/api"
	"github.com/matheus3301/wppbridge/internal/bus"
	"github.com/matheus3301/wppbridge/internal/config"
	"github.com/matheus3301/wppbridge/internal/instance"
	"github.com/matheus3301/wppbridge/internal/lock"
	"github.com/matheus3301/wppbridge/internal/logging"
	"github.com/matheus3301/wppbridge/internal/metrics"
	"github.com/matheus3301/wppbridge/internal/notify"
	"github.com/matheus3301/wppbridge/internal/queue"
	"github.com/matheus3301/wppbridge/internal/status"
	"github.com/matheus3301/wppbridge/internal/store"
	intsync "github.com/matheus3301/wppbridge/internal/sync"
	"github.com/matheus3301/wppbridge/internal/wa"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved instance configuration passed to the fx module.
type Params struct {
	InstanceID string
	Layout     instance.Layout
	Config     *config.Config
	SocketPath string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideMetrics,
			provideQueue,
			provideNotifier,
			provideEngine,
			provideSweeper,
			provideAdapter,
			provideEventHandler,
			provideLifecycle,
			provideHTTP,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(p.Layout.LogPath(p.InstanceID), p.InstanceID, p.Config.Log.Level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := p.Layout.EnsureDir(p.InstanceID); err != nil {
		return nil, err
	}
	logger.Info("acquiring instance lock", zap.String("instance", p.InstanceID))
	l, err := lock.Acquire(p.Layout.Dir(p.InstanceID))
	if err != nil {
		return nil, err
	}
	logger.Info("instance lock acquired")
	return l, nil
}

// provideStore depends on the lock so no second daemon touches the database.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := p.Layout.AppDBPath(p.InstanceID)
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

func provideMetrics(p Params) *metrics.Metrics {
	return metrics.New(p.InstanceID)
}

func provideQueue(p Params, logger *zap.Logger, m *metrics.Metrics) *queue.Queue {
	return queue.New(p.InstanceID, logger, m)
}

func provideNotifier(p Params, logger *zap.Logger, m *metrics.Metrics) *notify.Client {
	r := p.Config.Remote
	return notify.New(notify.Options{
		BaseURL:    r.BaseURL,
		InstanceID: p.InstanceID,
		Token:      r.Token,
		UserAgent:  r.UserAgent,
		Timeout:    r.Timeout.Duration,
		Logger:     logger,
		Metrics:    m,
	})
}

func provideEngine(p Params, db *store.DB, q *queue.Queue, n *notify.Client, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(p.InstanceID, db, q, n, b, logger)
}

func provideSweeper(p Params, db *store.DB, n *notify.Client, b *bus.Bus, logger *zap.Logger, m *metrics.Metrics) (*intsync.Sweeper, error) {
	s := p.Config.Sweep
	return intsync.NewSweeper(db, n, intsync.SweeperOptions{
		InstanceID:    p.InstanceID,
		Cron:          s.Cron,
		BatchSize:     s.BatchSize,
		RatePerSecond: s.RatePerSecond,
		Bus:           b,
		Logger:        logger,
		Metrics:       m,
	})
}

func provideAdapter(p Params, _ *lock.Lock, b *bus.Bus, logger *zap.Logger) (*wa.Adapter, error) {
	return wa.NewAdapter(context.Background(), p.Layout.SessionDBPath(p.InstanceID), p.InstanceID, b, logger)
}

func provideEventHandler(p Params, engine *intsync.Engine, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *wa.EventHandler {
	return wa.NewEventHandler(p.InstanceID, engine, b, machine, logger)
}

func provideLifecycle(b *bus.Bus, n *notify.Client, logger *zap.Logger) *notify.Lifecycle {
	return notify.NewLifecycle(b, n, logger)
}

type httpDeps struct {
	fx.In

	Params  Params
	DB      *store.DB
	Adapter *wa.Adapter
	Engine  *intsync.Engine
	Sweeper *intsync.Sweeper
	Machine *status.Machine
	Queue   *queue.Queue
	Bus     *bus.Bus
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

func provideHTTP(d httpDeps) *api.Server {
	return api.New(api.Deps{
		InstanceID: d.Params.InstanceID,
		DB:         d.DB,
		Messenger:  d.Adapter,
		Sink:       d.Engine,
		Sweeper:    d.Sweeper,
		Machine:    d.Machine,
		Queue:      d.Queue,
		Bus:        d.Bus,
		Metrics:    d.Metrics,
		MediaDir:   d.Params.Layout.MediaDir(d.Params.InstanceID),
		Logger:     d.Logger,
	})
}

type lifecycleDeps struct {
	fx.In

	Params    Params
	Lock      *lock.Lock
	DB        *store.DB
	Queue     *queue.Queue
	Notifier  *notify.Client
	Lifecycle *notify.Lifecycle
	Sweeper   *intsync.Sweeper
	Adapter   *wa.Adapter
	Handler   *wa.EventHandler
	HTTP      *api.Server
	GRPC      *Server
	Machine   *status.Machine
	Logger    *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleDeps) {
	ctx, cancel := context.WithCancel(context.Background())
	logger := d.Logger

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if !d.Notifier.Init(ctx) {
					logger.Warn("backend did not acknowledge init")
				}
			}()

			d.Queue.Start(ctx)
			d.Lifecycle.Start(ctx)
			d.Sweeper.Start(ctx)

			d.Adapter.RegisterEventHandler(d.Handler.Handle)

			if err := d.HTTP.Start(d.Params.Config.HTTP.Listen); err != nil {
				return err
			}
			go func() {
				if err := d.GRPC.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if d.Adapter.IsLoggedIn() {
				_ = d.Machine.Transition(status.Connecting)
				go func() {
					if err := d.Adapter.Connect(); err != nil {
						logger.Error("auto-connect failed", zap.Error(err))
						_ = d.Machine.Transition(status.Error)
					}
				}()
			} else {
				logger.Info("no credentials found, auth required")
				_ = d.Machine.Transition(status.AuthRequired)
				go pair(ctx, d.Adapter, logger)
			}
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			if err := d.HTTP.Shutdown(stopCtx); err != nil {
				logger.Warn("http shutdown", zap.Error(err))
			}
			d.GRPC.Stop(stopCtx)
			d.Adapter.Disconnect()
			d.Sweeper.Stop()
			d.Lifecycle.Stop()
			d.Queue.Stop()
			cancel()
			if err := d.DB.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}

// pair runs the QR flow once. Codes reach the backend through the bus and
// the lifecycle notifier; a timed-out flow is restarted with POST /auth.
func pair(ctx context.Context, a *wa.Adapter, logger *zap.Logger) {
	events, err := a.StartQRAuth(ctx)
	if err != nil {
		logger.Error("start pairing", zap.Error(err))
		return
	}
	for evt := range events {
		logger.Info("pairing event", zap.String("type", string(evt.Type)))
	}
}

package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"handlescope/internal/bootstrap/config"
	"handlescope/internal/bootstrap/database"
	"handlescope/internal/bootstrap/logging"
	"handlescope/internal/errs"
	"handlescope/internal/infrastructure/persistence/sqlite/dao"
	"handlescope/internal/infrastructure/persistence/sqlite/handle"
	"handlescope/internal/lifecycle"
	"handlescope/internal/metrics"
	"handlescope/internal/ports"
	"handlescope/internal/transport/httpapi"
	"handlescope/internal/unitofwork"
	"handlescope/internal/usecase/counting"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideLogger),
	fx.Provide(provideDatabase),
	fx.Provide(provideMetrics),
	fx.Provide(
		fx.Annotate(
			provideOpener,
			fx.As(new(ports.HandleOpener)),
		),
	),
	fx.Provide(provideManager),
	fx.Provide(provideRegistry),
	fx.Provide(provideCountingDAO),
	fx.Provide(provideAppDAO),
	fx.Provide(provideUnitOfWork),
	fx.Provide(counting.NewService),
	fx.Provide(provideApp),
)

// HTTPModule adds the HTTP server on top of Module. The server listens from
// fx start until fx stop.
var HTTPModule = fx.Options(
	fx.Provide(provideListener),
	fx.Provide(provideHTTPServer),
	fx.Invoke(func(*http.Server) {}),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

func provideLogger(cfg config.Config) *slog.Logger {
	return logging.New(os.Stderr, cfg.Log.Level).With(slog.String("app", cfg.App.Name))
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

func provideMetrics() (*prometheus.Registry, *metrics.Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewWithRegistry(reg)
}

func provideOpener(db *gorm.DB, cfg config.Config) (*handle.Opener, error) {
	level, err := handle.ParseIsolation(cfg.Database.Isolation)
	if err != nil {
		return nil, errs.Wrap(err, "database.isolation")
	}
	return handle.NewOpener(db, handle.WithIsolation(level))
}

func provideManager(ctx context.Context, cfg config.Config, opener ports.HandleOpener, m *metrics.Metrics) (ports.HandleManager, error) {
	manager, err := unitofwork.NewManager(cfg.UnitOfWork.Manager, opener, unitofwork.WithMetrics(m))
	if err != nil {
		return nil, errs.Wrap(err, "unitofwork.manager")
	}
	logging.Info(
		logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx")),
		"handle manager selected",
		slog.String("manager", manager.Name()),
	)
	return manager, nil
}

func provideRegistry(manager ports.HandleManager) (*unitofwork.Registry, error) {
	reg, err := unitofwork.NewRegistry(manager)
	if err != nil {
		return nil, err
	}
	if err := dao.Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func provideCountingDAO(ctx context.Context, reg *unitofwork.Registry) (ports.CountingDAO, error) {
	return unitofwork.Lookup[ports.CountingDAO](ctx, reg, dao.CountingName)
}

func provideAppDAO(ctx context.Context, reg *unitofwork.Registry) (ports.AppDAO, error) {
	return unitofwork.Lookup[ports.AppDAO](ctx, reg, dao.AppName)
}

func provideUnitOfWork(manager ports.HandleManager, m *metrics.Metrics) *unitofwork.UnitOfWork {
	return unitofwork.NewUnitOfWork(manager, m)
}

type appParams struct {
	fx.In

	Config     config.Config
	Logger     *slog.Logger
	DB         *gorm.DB
	Manager    ports.HandleManager
	Registry   *unitofwork.Registry
	UnitOfWork *unitofwork.UnitOfWork
	Counting   *counting.Service
}

func provideApp(p appParams) *App {
	return &App{
		Config:     p.Config,
		Logger:     p.Logger,
		DB:         p.DB,
		Manager:    p.Manager,
		Registry:   p.Registry,
		UnitOfWork: p.UnitOfWork,
		Counting:   p.Counting,
	}
}

func provideListener(cfg config.Config, manager ports.HandleManager, m *metrics.Metrics) (*lifecycle.ApplicationListener, error) {
	return lifecycle.NewApplicationListener(manager, cfg.UnitOfWork.ExcludedPaths, m)
}

func provideHTTPServer(
	lc fx.Lifecycle,
	ctx context.Context,
	cfg config.Config,
	logger *slog.Logger,
	svc *counting.Service,
	listener *lifecycle.ApplicationListener,
	m *metrics.Metrics,
) (*http.Server, error) {
	api, err := httpapi.NewServer(svc, listener, m)
	if err != nil {
		return nil, err
	}

	baseCtx := logging.WithAttrs(
		logging.WithLogger(context.WithoutCancel(ctx), logger),
		slog.String("component", "transport.http"),
	)
	server := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     api.Handler(),
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", cfg.Server.Addr)
			if err != nil {
				return errs.Wrapf(err, "listen %s", cfg.Server.Addr)
			}
			logging.Info(baseCtx, "http server started", slog.String("addr", ln.Addr().String()))
			go func() {
				if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logging.Error(baseCtx, "http server failed", slog.Any("err", errs.Loggable(err)))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			logging.Info(baseCtx, "http server stopping")
			shutdownCtx, cancel := context.WithTimeout(stopCtx, cfg.Server.ShutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	})

	return server, nil
}

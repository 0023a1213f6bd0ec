package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/hamdani2020/edagent-auth/internal/config"
	"github.com/hamdani2020/edagent-auth/internal/health"
	"github.com/hamdani2020/edagent-auth/internal/observability"
)

// App bundles the wired process: the HTTP server, its stores, the
// observability runtime, and the background sweeper's stop hook.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	DB            *gorm.DB
	Redis         redis.UniversalClient
	Readiness     *health.ProbeRunner

	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration

	stopBackground func()
}

func New(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	db *gorm.DB,
	redisClient redis.UniversalClient,
	readiness *health.ProbeRunner,
	stopBackground func(),
) *App {
	return &App{
		Config:                       cfg,
		Logger:                       logger,
		Server:                       server,
		Observability:                runtime,
		DB:                           db,
		Redis:                        redisClient,
		Readiness:                    readiness,
		ShutdownTimeout:              cfg.ShutdownTimeout,
		ShutdownHTTPDrainTimeout:     cfg.ShutdownHTTPDrainTimeout,
		ShutdownObservabilityTimeout: cfg.ShutdownObservabilityTimeout,
		stopBackground:               stopBackground,
	}
}

func (a *App) StopBackgroundTasks() {
	if a.stopBackground != nil {
		a.stopBackground()
	}
}

// Shutdown drains in order: stop accepting work, stop the sweeper, close
// the stores, flush telemetry. Each stage gets its own slice of the
// overall budget so a hung exporter cannot block the HTTP drain.
func (a *App) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, a.ShutdownTimeout)
	defer cancel()

	drainCtx, drainCancel := context.WithTimeout(ctx, a.ShutdownHTTPDrainTimeout)
	if err := a.Server.Shutdown(drainCtx); err != nil {
		a.Logger.Warn("http drain incomplete", "error", err)
	}
	drainCancel()

	a.StopBackgroundTasks()

	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("redis close failed", "error", err)
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.Logger.Warn("database close failed", "error", err)
			}
		}
	}

	if a.Observability != nil {
		obsCtx, obsCancel := context.WithTimeout(ctx, a.ShutdownObservabilityTimeout)
		if err := a.Observability.Shutdown(obsCtx); err != nil {
			a.Logger.Warn("observability shutdown incomplete", "error", err)
		}
		obsCancel()
	}
}

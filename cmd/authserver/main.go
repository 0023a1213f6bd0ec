package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hamdani2020/edagent-auth/internal/app"
	"github.com/hamdani2020/edagent-auth/internal/config"
	"github.com/hamdani2020/edagent-auth/internal/health"
	"github.com/hamdani2020/edagent-auth/internal/http/handler"
	"github.com/hamdani2020/edagent-auth/internal/http/router"
	"github.com/hamdani2020/edagent-auth/internal/observability"
	"github.com/hamdani2020/edagent-auth/internal/repository"
	"github.com/hamdani2020/edagent-auth/internal/security"
	"github.com/hamdani2020/edagent-auth/internal/service"
	"github.com/hamdani2020/edagent-auth/internal/tools/common"
)

func main() {
	_ = common.LoadEnvFile(".env")
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "authserver",
		Short:         "Session and API key authentication service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCommand(), newCleanupCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the background cleanup sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, loggerProvider, err := observability.InitLogging(ctx, cfg)
	if err != nil {
		return err
	}
	runtime, err := observability.InitRuntime(ctx, cfg, logger, loggerProvider)
	if err != nil {
		return err
	}

	db, err := repository.Open(cfg)
	if err != nil {
		return err
	}
	if err := repository.Migrate(db); err != nil {
		return err
	}

	var redisClient redis.UniversalClient
	var shield service.InvalidCredentialCache = service.NewInMemoryInvalidCredentialCache()
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		shield = service.NewRedisInvalidCredentialCache(redisClient, "")
	}

	codec := security.NewTokenCodec(cfg.TokenIssuer, cfg.SessionTokenSecret)
	authService := service.NewAuthService(
		codec,
		repository.NewSessionRepository(db),
		repository.NewAPIKeyRepository(db),
		repository.NewUserRepository(db),
		shield,
		logger,
		service.AuthServiceOptions{
			SessionTTL:       cfg.SessionTTL,
			Retention:        cfg.SessionRetention,
			StoreTimeout:     cfg.StoreTimeout,
			NegativeCacheTTL: cfg.NegativeCacheTTL,
		},
	)

	readiness := health.NewProbeRunner(5*time.Second, 2*time.Second,
		health.NewDatabaseChecker(db),
		health.NewRedisChecker(redisClient),
	)

	mux := router.NewRouter(router.Dependencies{
		AuthHandler:      handler.NewAuthHandler(authService, logger),
		AuthService:      authService,
		CORSOrigins:      cfg.CORSOrigins,
		APIRateLimitRPM:  cfg.APIRateLimitRPM,
		AuthRateLimitRPM: cfg.AuthRateLimitRPM,
		Readiness:        readiness,
		EnableOTelHTTP:   cfg.OTELTracesEnabled,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	sweeper := service.NewSweeper(authService, cfg.CleanupInterval, logger)

	a := app.New(cfg, logger, server, runtime, db, redisClient, readiness, stopSweeper)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("http server listening", "addr", cfg.HTTPAddr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		if err := sweeper.Run(sweepCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		a.Shutdown(context.Background())
		return nil
	})

	return group.Wait()
}

func newCleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Run one cleanup sweep and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCleanup(cmd.Context())
		},
	}
}

var (
	cleanupTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	cleanupOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func runCleanup(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, _, err := observability.InitLogging(ctx, cfg)
	if err != nil {
		return err
	}
	db, err := repository.Open(cfg)
	if err != nil {
		return err
	}
	if err := repository.Migrate(db); err != nil {
		return err
	}

	codec := security.NewTokenCodec(cfg.TokenIssuer, cfg.SessionTokenSecret)
	authService := service.NewAuthService(
		codec,
		repository.NewSessionRepository(db),
		repository.NewAPIKeyRepository(db),
		repository.NewUserRepository(db),
		service.NewNoopInvalidCredentialCache(),
		logger,
		service.AuthServiceOptions{
			SessionTTL:   cfg.SessionTTL,
			Retention:    cfg.SessionRetention,
			StoreTimeout: cfg.StoreTimeout,
		},
	)

	started := time.Now()
	cleaned, err := authService.Cleanup(ctx)
	if err != nil {
		return err
	}

	fmt.Println(cleanupTitleStyle.Render("cleanup sweep"))
	fmt.Println(cleanupOKStyle.Render(fmt.Sprintf("rows moved or removed: %d (%s)", cleaned, time.Since(started).Round(time.Millisecond))))
	return nil
}

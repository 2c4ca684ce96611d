package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	specpkg "github.com/studentfund/studentfund/api"
	"github.com/studentfund/studentfund/internal/api"
	"github.com/studentfund/studentfund/internal/auth"
	"github.com/studentfund/studentfund/internal/config"
	"github.com/studentfund/studentfund/internal/database"
	"github.com/studentfund/studentfund/internal/metrics"
	"github.com/studentfund/studentfund/internal/profile"
	"github.com/studentfund/studentfund/internal/reconciler"
	"github.com/studentfund/studentfund/internal/storage"
)

const (
	tokenIssuer    = "studentfund"
	sessionPrefix  = "sf"
	connectTimeout = 10 * time.Second
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	if err := run(cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MigrateOnStart {
		if err := database.Migrate(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		slog.Info("database migrations applied")
	}

	db, err := database.New(ctx, cfg.DatabaseURL, connectTimeout)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parsing REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unreachable at startup; health will report degraded", "error", err)
	}

	tokens, err := auth.NewTokenManager([]byte(cfg.JWTSecret), tokenIssuer, cfg.AccessTokenTTL)
	if err != nil {
		return fmt.Errorf("creating token manager: %w", err)
	}
	sessions := auth.NewSessionRegistry(rdb, sessionPrefix, cfg.RefreshTokenTTL)
	accounts := auth.NewRepository(db.Pool())

	authService, err := auth.NewService(accounts, sessions, tokens, auth.ServiceConfig{
		BcryptCost:               cfg.BcryptCost,
		RequireEmailConfirmation: cfg.RequireEmailConfirmation,
	})
	if err != nil {
		return fmt.Errorf("creating auth service: %w", err)
	}

	store, err := storage.NewFileStore(cfg.StorageDir)
	if err != nil {
		return fmt.Errorf("opening object store: %w", err)
	}

	m := metrics.New()

	router := api.NewRouter(api.RouterDeps{
		DBPinger:       db,
		SessionPinger:  authService,
		Version:        cfg.Version,
		OpenAPISpec:    specpkg.OpenAPISpec,
		APIKey:         cfg.PublicAPIKey,
		AllowedOrigins: cfg.AllowedOrigins,
		Auth:           authService,
		Profiles:       profile.NewRepository(db.Pool()),
		Store:          store,
		Buckets:        storage.DefaultRegistry(),
		PublicBaseURL:  cfg.PublicBaseURL,
		Metrics:        m,
	})

	rec := reconciler.New(accounts, reconciler.Config{
		Interval: time.Duration(cfg.ReconcilerInterval) * time.Second,
		Grace:    cfg.OrphanGrace,
		Purge:    cfg.OrphanPurge,
	}, m)
	go rec.Start(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting studentfund server", "port", cfg.Port, "version", cfg.Version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutting down server", "signal", sig.String())
	case err := <-serverErr:
		return err
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/medicalq/backend/app/cache"
	database "github.com/medicalq/backend/app/db"
	appLogger "github.com/medicalq/backend/app/logger"
	"github.com/medicalq/backend/app/observability/metrics"
	"github.com/medicalq/backend/config"
	"github.com/medicalq/backend/internal/api/auth"
	"github.com/medicalq/backend/internal/api/community"
	"github.com/medicalq/backend/internal/identity"
	api "github.com/medicalq/backend/internal/router"
)

func main() {
	// Use standard log until slog is configured, in case godotenv fails.
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found or error loading:", err)
	}

	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("FATAL: Error initializing config: %v", err)
	}

	logger := appLogger.Setup(cfg.Mode)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- Metrics ---
	promHandler, err := metrics.SetupProvider()
	if err != nil {
		logger.Error("Failed to set up metrics provider", slog.Any("error", err))
		os.Exit(1)
	}

	// --- Database ---
	dbConfig, err := database.NewDatabaseConfig(&cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		os.Exit(1)
	}
	if err := database.RunMigrations(dbConfig.ConnectionURL, logger); err != nil {
		logger.Error("Failed to run database migrations", slog.Any("error", err))
		os.Exit(1)
	}
	pool, err := database.Init(dbConfig.ConnectionURL, logger)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if !database.WaitForDB(ctx, pool, logger) {
		logger.Error("Database not ready after waiting, exiting.")
		os.Exit(1)
	}

	// --- Redis (token revocation denylist) ---
	redisClient := cache.New(
		cfg.Repositories.Redis.Addr,
		cfg.Repositories.Redis.Password,
		cfg.Repositories.Redis.DB,
	)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx); err != nil {
		// Revocation degrades without redis but auth still works.
		logger.Warn("Redis unreachable, revocation checks will fail open", slog.Any("error", err))
	}

	// --- Identity provider ---
	provider, err := buildProvider(ctx, &cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize identity provider", slog.Any("error", err))
		os.Exit(1)
	}

	// --- Dependency injection ---
	userRepo := auth.NewPostgresUserRepo(pool, logger)
	revocations := auth.NewRevocationList(redisClient)
	authService := auth.NewAuthService(userRepo, provider, revocations, logger)
	authHandler := auth.NewAuthHandler(authService, logger)
	authMiddleware := auth.NewMiddleware(provider, userRepo, revocations, logger)

	communityRepo := community.NewPostgresCommunityRepo(pool, logger)
	communityService := community.NewCommunityService(communityRepo, logger)
	communityHandler := community.NewCommunityHandler(communityService, logger)

	// --- Router ---
	mainRouter := api.SetupRouter(&api.Config{
		AuthHandler:      authHandler,
		CommunityHandler: communityHandler,
		AuthMiddleware:   authMiddleware,
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
	})

	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(appLogger.StructuredLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.StripSlashes)
	router.Use(middleware.Timeout(cfg.Server.Timeout))
	router.Use(middleware.Compress(5, "application/json"))
	router.Mount("/", mainRouter)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.HTTPPort),
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promHandler)
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Handlers.Prometheus.Port),
		Handler: metricsMux,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("Starting metrics server", slog.String("address", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received, starting graceful shutdown...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server graceful shutdown failed", slog.Any("error", err))
		}
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server graceful shutdown failed", slog.Any("error", err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server exited with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down complete.")
}

// buildProvider selects the identity provider from config: the Firebase
// driver in deployed environments, the in-process local driver for
// development and tests.
func buildProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (identity.Provider, error) {
	switch cfg.Identity.Driver {
	case "firebase":
		return identity.NewFirebaseProvider(ctx, cfg.Identity.ProjectID, cfg.Identity.CredentialsFile, logger)
	case "local", "":
		logger.Warn("Using local identity provider; not for production use")
		return identity.NewLocalProvider(cfg.Identity.LocalSecret, cfg.Identity.LocalTokenTTL), nil
	default:
		return nil, fmt.Errorf("unknown identity driver %q", cfg.Identity.Driver)
	}
}

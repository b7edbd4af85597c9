// Progress Path - guided group-goal session server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/m-urubek/scio--progress-path/internal/api"
	"github.com/m-urubek/scio--progress-path/internal/config"
	"github.com/m-urubek/scio--progress-path/internal/inference"
	"github.com/m-urubek/scio--progress-path/internal/middleware"
	"github.com/m-urubek/scio--progress-path/internal/notify"
	"github.com/m-urubek/scio--progress-path/internal/session"
	"github.com/m-urubek/scio--progress-path/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// Inference client is optional: without it, group creation is rejected
	// and turns take the gateway-failure path.
	var client inference.Client
	if cfg.Inference.APIKey != "" {
		c, err := inference.NewOpenAIClient(cfg.Inference)
		if err != nil {
			slog.Error("Failed to initialize inference client", "error", err)
			os.Exit(1)
		}
		client = c
		slog.Info("Inference client initialized", "model", cfg.Inference.Model)
	} else {
		slog.Info("Inference disabled (OPENAI_API_KEY not set)")
	}

	// Initialize services.
	hub := notify.NewHub()
	svc := session.NewService(repo, client, hub)
	watchdog := session.NewWatchdog(repo, hub, cfg.Watchdog)

	// Initialize handlers.
	handler := api.NewHandler(repo, svc)
	healthHandler := api.NewHealthHandler(repo)
	wsHandler := notify.NewWSHandler(hub, repo, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	healthHandler.RegisterHealth(r)
	handler.RegisterRoutes(r)
	wsHandler.RegisterRoutes(r)

	// Create server.
	// Note: WebSocket event streams require long-lived connections, so no
	// write timeout is set.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start the inactivity watchdog.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watchdog.Start(ctx)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rianhasansiam/digicam/internal/api"
	"github.com/rianhasansiam/digicam/internal/config"
	"github.com/rianhasansiam/digicam/internal/handlers"
	"github.com/rianhasansiam/digicam/internal/relay"
	"github.com/rianhasansiam/digicam/internal/store"
	"github.com/rianhasansiam/digicam/internal/sweep"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Initialize the durable store: PostgreSQL when configured, SQLite
	// otherwise (development default)
	var chatStore store.ChatStore
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		chatStore = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		chatStore = sqliteStore
		logger.Info().Msg("using SQLite store")
	}
	defer chatStore.Close()

	// Initialize Redis (optional: presence mirror + rate limiting)
	var redisStore *store.RedisStore
	var redisClient *redis.Client
	var mirror relay.PresenceMirror
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		redisClient = redisStore.Client()
		mirror = redisStore
		logger.Info().Msg("connected to Redis")
	}

	// Start the relay hub
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()

	hub := relay.NewHub(relay.NewMemoryRegistry(), mirror, logger, cfg.AllowedOrigins)
	go hub.Run(hubCtx)

	// Attachment storage on local disk
	files, err := store.NewFileStore(cfg.UploadDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("upload directory unavailable")
	}

	// Create handler and router
	sweeper := sweep.New(chatStore, logger)
	h := handlers.NewHandler(chatStore, redisStore, sweeper, files, cfg.CleanupSecret)
	router := api.NewRouter(logger, h, hub, redisClient, cfg)

	// Create server
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: it would sever long-lived websocket connections.
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting support chat server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}

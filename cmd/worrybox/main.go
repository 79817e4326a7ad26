package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/vietddude/stylelog"

	"github.com/gigaelk/worrybox/internal/core/config"
	"github.com/gigaelk/worrybox/internal/dbrecovery"
	"github.com/gigaelk/worrybox/internal/httpserver"
	"github.com/gigaelk/worrybox/internal/infra/cache"
	"github.com/gigaelk/worrybox/internal/recovery"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	isDebug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Load configuration first (before setting up logger)
	cfg, err := config.Load(*configPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	if *isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(
		&tint.Options{
			Level:      slogLevel,
			TimeFormat: time.RFC3339,
		})
	slog.Info("Logger initialized", "level", slogLevel.String(), "platform", cfg.Platform)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database recovery service owns the only database handle.
	dbrec := dbrecovery.New(cfg.Database)
	dbrec.Start(ctx)

	// Redis fallback cache is optional.
	var store recovery.FallbackStore
	var responseCache httpserver.ResponseCache
	var redisClient *cache.Client
	if cfg.Redis.URL != "" {
		redisClient, err = cache.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Redis unavailable, cache fallback disabled", "error", err)
		} else {
			store = redisClient
			responseCache = redisClient
		}
	}

	rec := recovery.New(cfg.Recovery, dbrecovery.NewErrorArchiver(dbrec))
	rec.Start(ctx, dbrec, store)

	server := httpserver.New(rec, dbrec, responseCache, cfg)
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server failed", "error", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		slog.Info("Shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		slog.Warn("HTTP server shutdown failed", "error", err)
	}

	rec.Stop()
	dbrec.Stop()
	if redisClient != nil {
		_ = redisClient.Close()
	}
	slog.Info("Shutdown complete")
}

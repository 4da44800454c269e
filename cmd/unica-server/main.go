// Package main provides the REST/WebSocket gateway daemon for Unica.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unicahq/unica-go/internal/chat"
	"github.com/unicahq/unica-go/internal/config"
	"github.com/unicahq/unica-go/internal/db"
	"github.com/unicahq/unica-go/internal/events"
	"github.com/unicahq/unica-go/internal/indexing"
	"github.com/unicahq/unica-go/internal/llm"
	"github.com/unicahq/unica-go/internal/metrics"
	"github.com/unicahq/unica-go/internal/parser"
	"github.com/unicahq/unica-go/internal/server"
)

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	flag.Parse()

	cfg := config.Load()

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() {
		if err := cleanup(); err != nil {
			slog.Error("failed to close log file", "error", err)
		}
	}()
	slog.SetDefault(logger)

	logger.Info("starting unica-server", "port", cfg.ServerPort)

	// Database
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	dbClient, err := db.NewClient(ctx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	if err != nil {
		cancel()
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := dbClient.InitSchema(ctx, cfg.EmbedDimension); err != nil {
		cancel()
		logger.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}
	if *wipeDB || os.Getenv("UNICA_WIPE_DB") == "true" {
		if err := dbClient.WipeData(ctx); err != nil {
			cancel()
			logger.Error("failed to wipe database", "error", err)
			os.Exit(1)
		}
		logger.Warn("database wiped")
	}
	cancel()
	defer func() {
		if err := dbClient.Close(context.Background()); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	// LLM components
	embedder, err := llm.NewEmbedder(cfg)
	if err != nil {
		logger.Error("failed to init embedder", "error", err)
		os.Exit(1)
	}
	model, err := llm.NewModel(cfg)
	if err != nil {
		logger.Error("failed to init model", "error", err)
		os.Exit(1)
	}

	// Shared infrastructure
	bus := events.NewBus(nil, logger)
	defer bus.Close()
	collector := metrics.NewCollector()

	// Indexing pipeline + watchdog
	manager := indexing.NewManager(dbClient, dbClient, dbClient, embedder, bus, collector, logger, indexing.Config{
		Workers:        cfg.IndexWorkers,
		EmbedBatchSize: cfg.EmbedBatchSize,
		Chunk: parser.ChunkConfig{
			Size:    cfg.ChunkSize,
			Overlap: cfg.ChunkOverlap,
		},
		Retry: indexing.DefaultRetryConfig(),
	})
	defer manager.Shutdown()

	watchdogCtx, stopWatchdog := context.WithCancel(context.Background())
	defer stopWatchdog()
	watchdog := indexing.NewWatchdog(manager, cfg.JobStaleAfter, cfg.WatchdogSweep, logger)
	go watchdog.Run(watchdogCtx)

	// Chat service
	chatService := chat.NewService(dbClient, embedder, model, bus, logger, cfg.ContextBudget)

	// Gateway
	srv := server.New(dbClient, manager, chatService, bus, collector, logger, cfg.ServerPort)

	go func() {
		if err := srv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
}

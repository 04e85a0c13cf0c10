package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kurihiro0119/github-repo-miner/internal/aggregator"
	"github.com/kurihiro0119/github-repo-miner/internal/api"
	"github.com/kurihiro0119/github-repo-miner/internal/batch"
	"github.com/kurihiro0119/github-repo-miner/internal/config"
	"github.com/kurihiro0119/github-repo-miner/internal/consolidator"
	"github.com/kurihiro0119/github-repo-miner/internal/storage"
	"github.com/kurihiro0119/github-repo-miner/internal/storage/file"
	"github.com/kurihiro0119/github-repo-miner/internal/storage/postgres"
	"github.com/kurihiro0119/github-repo-miner/internal/storage/sqlite"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, closeLog := config.SetupLogger(cfg.LogFile, config.ParseLevel(cfg.LogLevel))
	defer closeLog()

	// Initialize storage
	var store storage.Storage
	switch cfg.StorageType {
	case "postgres":
		store, err = postgres.NewPostgresStorage(cfg.PostgresURL)
		if err != nil {
			log.Fatalf("Failed to initialize PostgreSQL storage: %v", err)
		}
	case "sqlite":
		store, err = sqlite.NewSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite storage: %v", err)
		}
	default:
		store, err = file.NewFileStorage(cfg.DataDir)
		if err != nil {
			log.Fatalf("Failed to initialize file storage: %v", err)
		}
	}
	defer store.Close()

	agg := aggregator.NewAggregator()

	// Initialize handler
	handler := api.NewHandler(
		store,
		batch.NewReader(cfg.BatchesDir()),
		consolidator.New(cfg.PartialDir(), cfg.FinalDir(), nil, agg, logger),
		agg,
	)

	// Setup routes
	gin.SetMode(gin.ReleaseMode)
	router := api.SetupRoutes(handler, logger)

	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	// Start server
	logger.Info("starting API server", "addr", addr, "storage", cfg.StorageType)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

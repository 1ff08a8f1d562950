package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tracker/internal/amqp"
	"tracker/internal/config"
	"tracker/internal/log"
	"tracker/internal/storage"
	"tracker/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg, err := config.Load()
	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), Component: log.ComponentWorker})
	log.SetDefault(logger)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	logger.Info("Starting tracker-worker", log.FieldOperation, log.OpStartup)

	loc, _ := cfg.Location()
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, loc)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	audit := worker.NewAuditWorker(repo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := client.Consume(ctx, audit.HandleEntriesUpdated); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err, log.FieldOperation, log.OpConsume)
		}
		cancel()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down worker...", log.FieldOperation, log.OpShutdown)
	cancel()

	select {
	case <-done:
		logger.Info("Worker shutdown complete")
	case <-time.After(30 * time.Second):
		logger.Warn("Shutdown timeout reached")
	}
}

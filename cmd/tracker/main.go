package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tracker/internal/amqp"
	"tracker/internal/backend"
	"tracker/internal/cache"
	"tracker/internal/charts"
	"tracker/internal/config"
	apphttp "tracker/internal/http"
	"tracker/internal/log"
	"tracker/internal/middleware/ratelimit"
	"tracker/internal/services"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg, err := config.Load()
	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), Component: log.ComponentApp})
	log.SetDefault(logger)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	loc, _ := cfg.Location()
	chartOpts, err := cfg.ChartOptions()
	if err != nil {
		logger.Error("Invalid chart settings", "error", err)
		os.Exit(1)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	store, err := backend.NewFactory(logger).Open(backendCfg)
	if err != nil {
		logger.Error("Failed to open data backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer store.Close()

	var publisher services.Publisher
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		publisher = client
		logger.Info("AMQP publisher enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	entries := services.NewEntryService(store, publisher, loc)

	chartCache := cache.NewLRUCache[charts.Views](cfg.ChartCacheSize, cfg.ChartCacheTTL)
	cacheManager := cache.NewManager(logger.WithComponent(log.ComponentCache).Logger)
	cacheManager.Register(chartCache)
	cacheManager.StartCleanup(cfg.ChartCacheTTL)
	defer cacheManager.Stop()

	chartSvc := services.NewChartService(store, chartOpts, chartCache)
	entries.OnChange(chartSvc.Invalidate)

	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:      ":" + cfg.Port,
		CSRFKey:   cfg.CSRFKey,
		Logger:    logger,
		RateLimit: ratelimit.DefaultConfig(),
		Ready:     store,
	}, entries, chartSvc)
	if err != nil {
		logger.Error("Failed to create HTTP server", "error", err)
		os.Exit(1)
	}

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	// Graceful shutdown handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting tracker server", "port", cfg.Port, "backend", cfg.DataBackend, "time_zone", loc.String(), "csrf", cfg.CSRFKey != "")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}

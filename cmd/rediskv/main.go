package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	rediskv "github.com/raniellyferreira/redis-inmemory-kv"
	"github.com/raniellyferreira/redis-inmemory-kv/config"
	"github.com/raniellyferreira/redis-inmemory-kv/internal/logging"
	"github.com/raniellyferreira/redis-inmemory-kv/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := logging.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting rediskv",
		zap.String("env", cfg.Env),
		zap.String("resp_addr", cfg.RESP.Addr),
		zap.String("http_addr", cfg.HTTP.Addr),
		zap.String("version", rediskv.Version),
	)

	// Setup metrics
	metricsObj, metricsHandler, err := metrics.Setup("rediskv")
	if err != nil {
		logger.Fatal("Failed to setup metrics", zap.Error(err))
	}

	opts := append(cfg.Options(),
		rediskv.WithLogger(logger),
		rediskv.WithMetrics(metricsObj),
		rediskv.WithMetricsHandler(metricsHandler),
	)

	store, err := rediskv.New(opts...)
	if err != nil {
		logger.Fatal("Failed to create store", zap.Error(err))
	}

	if err := metricsObj.ObserveKeyCount(func() int64 { return int64(store.Size()) }); err != nil {
		logger.Fatal("Failed to register key gauge", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := store.Start(ctx); err != nil {
		logger.Fatal("Failed to start store", zap.Error(err))
	}

	logger.Info("CORS configured", zap.Strings("allowed_origins", cfg.HTTP.CORSAllowedOrigins))

	<-ctx.Done()
	logger.Info("Shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := store.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
	}
	if err := metricsObj.Shutdown(shutdownCtx); err != nil {
		logger.Error("Metrics shutdown failed", zap.Error(err))
	}

	logger.Info("Stopped")
}

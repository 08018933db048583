package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/leandrocl/kafka-correlation-monitor/internal/application/factories/infrastructure"
	"github.com/leandrocl/kafka-correlation-monitor/internal/config"
	"github.com/leandrocl/kafka-correlation-monitor/internal/infrastructure/postgres"
	"github.com/leandrocl/kafka-correlation-monitor/internal/scheduler"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Initialize structured JSON logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.New()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Metrics server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("scheduler metrics listening on :9092")
		http.ListenAndServe(":9092", mux)
	}()

	infraFactory := infrastructure.NewFactory(cfg)
	defer infraFactory.Close()

	pgPool, err := infraFactory.Postgres(ctx)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	eventRepo := postgres.NewEventRepository(pgPool)

	cleanup := scheduler.NewCleanup(eventRepo,
		time.Duration(cfg.Scheduler.CleanupIntervalSeconds)*time.Second)
	monitor := scheduler.NewMonitor(eventRepo,
		time.Duration(cfg.Scheduler.MonitorIntervalSeconds)*time.Second,
		time.Duration(cfg.Scheduler.MonitorAgeThresholdSeconds)*time.Second)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := cleanup.Run(ctx); err != nil {
			logger.Error("cleanup scheduler stopped with error", "error", err)
		}
	}()

	go func() {
		defer wg.Done()
		if err := monitor.Run(ctx); err != nil {
			logger.Error("stale-match monitor stopped with error", "error", err)
		}
	}()

	wg.Wait()
	logger.Info("schedulers exited")
}

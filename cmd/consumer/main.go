package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/leandrocl/kafka-correlation-monitor/internal/application/factories/infrastructure"
	"github.com/leandrocl/kafka-correlation-monitor/internal/config"
	"github.com/leandrocl/kafka-correlation-monitor/internal/consumer"
	"github.com/leandrocl/kafka-correlation-monitor/internal/infrastructure/kafka"
	"github.com/leandrocl/kafka-correlation-monitor/internal/infrastructure/postgres"
	"github.com/leandrocl/kafka-correlation-monitor/internal/usecase"

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

	if len(cfg.Kafka.Pairs) == 0 {
		logger.Error("no topic pairs configured")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	infraFactory := infrastructure.NewFactory(cfg)
	defer infraFactory.Close()

	pgPool, err := infraFactory.Postgres(ctx)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	eventRepo := postgres.NewEventRepository(pgPool)
	saveUC := usecase.NewSaveEvent(eventRepo)
	correlateUC := usecase.NewCorrelateEvent(eventRepo)

	newSource := func(topic, groupID string) consumer.Source {
		return kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:     cfg.Kafka.Brokers,
			Topic:       topic,
			GroupID:     groupID,
			StartOffset: os.Getenv("KAFKA_START_OFFSET"),
		})
	}

	orch := consumer.NewOrchestrator(cfg.Kafka.Pairs, saveUC, correlateUC, cfg.Kafka.AckOnFailure, newSource)

	logger.Info("initializing consumers", "pairs", len(cfg.Kafka.Pairs))
	for _, p := range cfg.Kafka.Pairs {
		logger.Info("configured consumer pair",
			"topic", p.Name,
			"correlated_topic", p.CorrelatedTopic,
			"consumer_group", p.ConsumerGroup,
			"key_of_interest", p.KeyOfInterest,
			"correlated_key_of_interest", p.CorrelatedKeyOfInterest)
	}

	// Status and metrics server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/consumers/status", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"configured_pairs": orch.Pairs(),
				"active_loops":     orch.ActiveLoops(),
			})
		})
		mux.HandleFunc("/consumers/topics", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"pairs": orch.Pairs(),
				"count": len(orch.Pairs()),
			})
		})
		mux.HandleFunc("/consumers/health", func(w http.ResponseWriter, r *http.Request) {
			status := http.StatusOK
			if orch.ActiveLoops() == 0 {
				status = http.StatusServiceUnavailable
			}
			w.WriteHeader(status)
		})
		addr := ":" + cfg.Consumer.StatusPort
		logger.Info("consumer status server listening", "addr", addr)
		http.ListenAndServe(addr, mux)
	}()

	orch.Start(ctx)

	<-ctx.Done()
	logger.Info("shutting down consumers")

	orch.Wait()
	logger.Info("all consumption loops stopped")
}

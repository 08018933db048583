package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leandrocl/kafka-correlation-monitor/internal/domain/event"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	monitorRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_monitor_runs_total",
		Help: "The total number of stale-match monitor runs",
	})
	staleEvents = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scheduler_stale_unmatched_events",
		Help: "Unmatched events older than the age threshold, by topic, as of the last run",
	}, []string{"topic"})
	monitorFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_monitor_failures_total",
		Help: "The total number of monitor runs that failed",
	})
)

// Monitor periodically reports unmatched events older than ageThreshold,
// grouped by primary topic. Read-only: it never mutates the store.
type Monitor struct {
	repo         event.Repository
	interval     time.Duration
	ageThreshold time.Duration
}

func NewMonitor(repo event.Repository, interval, ageThreshold time.Duration) *Monitor {
	return &Monitor{
		repo:         repo,
		interval:     interval,
		ageThreshold: ageThreshold,
	}
}

func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	slog.Info("stale-match monitor started",
		"interval", m.interval, "age_threshold", m.ageThreshold)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			monitorRuns.Inc()
			if err := m.RunOnce(ctx); err != nil {
				monitorFailures.Inc()
				slog.Error("monitor run failed", "error", err)
			}
		}
	}
}

func (m *Monitor) RunOnce(ctx context.Context) error {
	threshold := time.Now().UTC().Add(-m.ageThreshold)

	counts, err := m.repo.CountUnmatchedOlderThan(ctx, threshold)
	if err != nil {
		return fmt.Errorf("query stale unmatched events: %w", err)
	}

	staleEvents.Reset()

	if len(counts) == 0 {
		slog.Info("no stale unmatched events", "age_threshold", m.ageThreshold)
		return nil
	}

	for _, tc := range counts {
		staleEvents.WithLabelValues(tc.TopicName).Set(float64(tc.Count))
		slog.Warn("stale unmatched events",
			"topic", tc.TopicName, "count", tc.Count, "age_threshold", m.ageThreshold)
	}

	return nil
}

// Package scheduler holds the two time-driven maintenance routines: matched
// row cleanup and stale unmatched row monitoring.
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
	cleanupRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_cleanup_runs_total",
		Help: "The total number of cleanup runs",
	})
	eventsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_correlated_events_deleted_total",
		Help: "The total number of correlated events deleted by cleanup",
	})
	cleanupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scheduler_cleanup_failures_total",
		Help: "The total number of cleanup runs that failed",
	})
)

// Cleanup periodically deletes every correlated event in one bulk operation.
type Cleanup struct {
	repo     event.Repository
	interval time.Duration
}

func NewCleanup(repo event.Repository, interval time.Duration) *Cleanup {
	return &Cleanup{
		repo:     repo,
		interval: interval,
	}
}

// Run ticks until ctx is cancelled. A failed run is logged and the timer
// keeps going.
func (c *Cleanup) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	slog.Info("cleanup scheduler started", "interval", c.interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cleanupRuns.Inc()
			if err := c.RunOnce(ctx); err != nil {
				cleanupFailures.Inc()
				slog.Error("cleanup run failed", "error", err)
			}
		}
	}
}

// RunOnce counts matched rows and, only if there are any, deletes them all.
func (c *Cleanup) RunOnce(ctx context.Context) error {
	matched, err := c.repo.CountMatched(ctx)
	if err != nil {
		return fmt.Errorf("count correlated events: %w", err)
	}

	if matched == 0 {
		slog.Info("no correlated events to clean up")
		return nil
	}

	deleted, err := c.repo.DeleteAllMatched(ctx)
	if err != nil {
		return fmt.Errorf("delete correlated events: %w", err)
	}

	eventsDeleted.Add(float64(deleted))
	slog.Info("cleanup completed", "deleted", deleted)
	return nil
}

package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leandrocl/kafka-correlation-monitor/internal/domain/event"
)

type CorrelateEvent struct {
	repo event.Repository
}

func NewCorrelateEvent(repo event.Repository) *CorrelateEvent {
	return &CorrelateEvent{repo: repo}
}

// Execute matches a value seen on a correlated topic against stored
// sightings. keyName is always the primary side's key-of-interest name, even
// though the value came from the correlated side. At most one row is
// correlated per call: the most recent unmatched one. No match is a normal
// outcome, not an error.
func (uc *CorrelateEvent) Execute(ctx context.Context, keyName, keyValue, correlatedMessage string) (*event.InterestingEvent, error) {
	matched, err := uc.repo.ClaimCorrelation(ctx, keyName, keyValue, correlatedMessage, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("check correlation for key %q value %q: %w", keyName, keyValue, err)
	}

	if matched == nil {
		slog.Info("no correlation match found", "key", keyName, "value", keyValue)
		return nil, nil
	}

	slog.Info("correlation match found",
		"id", matched.ID,
		"topic", matched.TopicName,
		"key", matched.KeyOfInterestName,
		"value", matched.KeyOfInterestValue,
		"correlation_timestamp", matched.CorrelationTimestamp)

	return matched, nil
}

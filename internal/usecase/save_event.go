package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leandrocl/kafka-correlation-monitor/internal/domain/event"
)

type SaveEvent struct {
	repo event.Repository
}

func NewSaveEvent(repo event.Repository) *SaveEvent {
	return &SaveEvent{repo: repo}
}

// Execute records one sighting of a key of interest on a primary topic.
// Every sighting gets its own row; duplicates of the same key are legal.
func (uc *SaveEvent) Execute(ctx context.Context, topicName, keyName, keyValue string) (*event.InterestingEvent, error) {
	e := event.New(topicName, keyName, keyValue)

	if err := uc.repo.Save(ctx, e); err != nil {
		return nil, fmt.Errorf("save interesting event: %w", err)
	}

	slog.Info("saved interesting event",
		"id", e.ID, "topic", topicName, "key", keyName, "value", keyValue)

	return e, nil
}

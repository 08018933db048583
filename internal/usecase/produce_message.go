package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leandrocl/kafka-correlation-monitor/internal/infrastructure/kafka"

	"github.com/google/uuid"
)

type ProduceMessage struct {
	producer *kafka.Producer
}

func NewProduceMessage(producer *kafka.Producer) *ProduceMessage {
	return &ProduceMessage{producer: producer}
}

// Execute publishes a message to the given topic. An empty key gets a random
// one so the hash balancer still spreads messages across partitions.
func (uc *ProduceMessage) Execute(ctx context.Context, topic, key, message string) (string, error) {
	if key == "" {
		key = uuid.New().String()
	}

	if err := uc.producer.SendMessage(ctx, topic, []byte(key), []byte(message)); err != nil {
		return "", fmt.Errorf("produce to %s: %w", topic, err)
	}

	slog.Info("message produced", "topic", topic, "key", key)
	return key, nil
}

package event

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("interesting event not found")

// InterestingEvent is one persisted sighting of a key of interest on a
// primary topic. It is mutated at most once, when a correlated-topic message
// with the same key value claims it.
type InterestingEvent struct {
	ID                   int64      `json:"id"`
	TopicName            string     `json:"topic_name"`
	KeyOfInterestName    string     `json:"key_of_interest_name"`
	KeyOfInterestValue   string     `json:"key_of_interest_value"`
	CreatedAt            time.Time  `json:"created_at"`
	CorrelatedMessage    *string    `json:"correlated_message"`
	IsCorrelated         bool       `json:"is_correlated"`
	CorrelationTimestamp *time.Time `json:"correlation_timestamp"`
}

func New(topicName, keyName, keyValue string) *InterestingEvent {
	return &InterestingEvent{
		TopicName:          topicName,
		KeyOfInterestName:  keyName,
		KeyOfInterestValue: keyValue,
		CreatedAt:          time.Now().UTC(),
		IsCorrelated:       false,
	}
}

// TopicCount is one (topic, count) row from the stale-monitor group-by query.
type TopicCount struct {
	TopicName string `json:"topic_name"`
	Count     int64  `json:"count"`
}

type Repository interface {
	// Save persists the event and fills in its store-assigned ID.
	Save(ctx context.Context, e *InterestingEvent) error

	FindByID(ctx context.Context, id int64) (*InterestingEvent, error)
	FindAll(ctx context.Context, page, size int) ([]*InterestingEvent, int64, error)
	FindAllWithOffset(ctx context.Context, offset, limit int) ([]*InterestingEvent, error)
	FindByTopicName(ctx context.Context, topicName string, page, size int) ([]*InterestingEvent, int64, error)
	FindByKeyOfInterestName(ctx context.Context, keyName string, page, size int) ([]*InterestingEvent, int64, error)
	FindByTopicNameAndKeyOfInterestName(ctx context.Context, topicName, keyName string, page, size int) ([]*InterestingEvent, int64, error)
	FindByCreatedAtBetween(ctx context.Context, start, end time.Time, page, size int) ([]*InterestingEvent, int64, error)

	// FindUnmatchedByKey returns uncorrelated events for (keyName, keyValue),
	// newest first.
	FindUnmatchedByKey(ctx context.Context, keyName, keyValue string) ([]*InterestingEvent, error)
	// ClaimCorrelation atomically attaches correlatedMessage to the most
	// recent unmatched event for (keyName, keyValue) and returns the updated
	// row, or (nil, nil) when no unmatched event exists. Concurrent claims
	// for the same key never attach to the same row twice.
	ClaimCorrelation(ctx context.Context, keyName, keyValue, correlatedMessage string, now time.Time) (*InterestingEvent, error)

	CountAll(ctx context.Context) (int64, error)
	CountMatched(ctx context.Context) (int64, error)
	DeleteAllMatched(ctx context.Context) (int64, error)
	DeleteByID(ctx context.Context, id int64) (bool, error)
	CountUnmatchedOlderThan(ctx context.Context, threshold time.Time) ([]TopicCount, error)
}

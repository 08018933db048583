package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/leandrocl/kafka-correlation-monitor/internal/domain/event"

	"github.com/redis/go-redis/v9"
)

// cacheTTL is deliberately short: correlation mutates rows, so a stale
// matched flag must age out quickly.
const cacheTTL = 5 * time.Second

// EventsPage is the envelope for page-based reads.
type EventsPage struct {
	Events        []*event.InterestingEvent `json:"events"`
	CurrentPage   int                       `json:"current_page"`
	TotalPages    int                       `json:"total_pages"`
	TotalElements int64                     `json:"total_elements"`
	HasNext       bool                      `json:"has_next"`
	HasPrevious   bool                      `json:"has_previous"`
}

// EventsSlice is the envelope for offset-based reads.
type EventsSlice struct {
	Events     []*event.InterestingEvent `json:"events"`
	Offset     int                       `json:"offset"`
	Limit      int                       `json:"limit"`
	TotalCount int64                     `json:"total_count"`
	HasMore    bool                      `json:"has_more"`
}

type EventStats struct {
	TotalEvents     int64 `json:"total_events"`
	MatchedEvents   int64 `json:"matched_events"`
	UnmatchedEvents int64 `json:"unmatched_events"`
}

type QueryEvents struct {
	redisClient *redis.Client
	repo        event.Repository
}

func NewQueryEvents(redisClient *redis.Client, repo event.Repository) *QueryEvents {
	return &QueryEvents{
		redisClient: redisClient,
		repo:        repo,
	}
}

func (uc *QueryEvents) GetByID(ctx context.Context, id int64) (*event.InterestingEvent, error) {
	cacheKey := fmt.Sprintf("interesting-event:%d", id)

	if uc.redisClient != nil {
		val, err := uc.redisClient.Get(ctx, cacheKey).Result()
		if err == nil {
			var e event.InterestingEvent
			if err := json.Unmarshal([]byte(val), &e); err == nil {
				return &e, nil
			}
		}
	}

	e, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if uc.redisClient != nil {
		data, _ := json.Marshal(e)
		uc.redisClient.Set(ctx, cacheKey, data, cacheTTL)
	}

	return e, nil
}

func (uc *QueryEvents) GetAll(ctx context.Context, page, size int) (*EventsPage, error) {
	events, total, err := uc.repo.FindAll(ctx, page, size)
	if err != nil {
		return nil, err
	}
	return newPage(events, page, size, total), nil
}

func (uc *QueryEvents) GetAllWithOffset(ctx context.Context, offset, limit int) (*EventsSlice, error) {
	events, err := uc.repo.FindAllWithOffset(ctx, offset, limit)
	if err != nil {
		return nil, err
	}

	total, err := uc.repo.CountAll(ctx)
	if err != nil {
		return nil, err
	}

	return &EventsSlice{
		Events:     events,
		Offset:     offset,
		Limit:      limit,
		TotalCount: total,
		HasMore:    int64(offset+limit) < total,
	}, nil
}

func (uc *QueryEvents) GetByTopicName(ctx context.Context, topicName string, page, size int) (*EventsPage, error) {
	events, total, err := uc.repo.FindByTopicName(ctx, topicName, page, size)
	if err != nil {
		return nil, err
	}
	return newPage(events, page, size, total), nil
}

func (uc *QueryEvents) GetByKeyOfInterestName(ctx context.Context, keyName string, page, size int) (*EventsPage, error) {
	events, total, err := uc.repo.FindByKeyOfInterestName(ctx, keyName, page, size)
	if err != nil {
		return nil, err
	}
	return newPage(events, page, size, total), nil
}

func (uc *QueryEvents) GetByTopicNameAndKeyOfInterestName(ctx context.Context, topicName, keyName string, page, size int) (*EventsPage, error) {
	events, total, err := uc.repo.FindByTopicNameAndKeyOfInterestName(ctx, topicName, keyName, page, size)
	if err != nil {
		return nil, err
	}
	return newPage(events, page, size, total), nil
}

func (uc *QueryEvents) GetByCreatedAtBetween(ctx context.Context, start, end time.Time, page, size int) (*EventsPage, error) {
	events, total, err := uc.repo.FindByCreatedAtBetween(ctx, start, end, page, size)
	if err != nil {
		return nil, err
	}
	return newPage(events, page, size, total), nil
}

func (uc *QueryEvents) Stats(ctx context.Context) (*EventStats, error) {
	total, err := uc.repo.CountAll(ctx)
	if err != nil {
		return nil, err
	}

	matched, err := uc.repo.CountMatched(ctx)
	if err != nil {
		return nil, err
	}

	return &EventStats{
		TotalEvents:     total,
		MatchedEvents:   matched,
		UnmatchedEvents: total - matched,
	}, nil
}

func (uc *QueryEvents) DeleteByID(ctx context.Context, id int64) error {
	deleted, err := uc.repo.DeleteByID(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return event.ErrNotFound
	}
	return nil
}

func newPage(events []*event.InterestingEvent, page, size int, total int64) *EventsPage {
	totalPages := 0
	if size > 0 {
		totalPages = int((total + int64(size) - 1) / int64(size))
	}

	return &EventsPage{
		Events:        events,
		CurrentPage:   page,
		TotalPages:    totalPages,
		TotalElements: total,
		HasNext:       page+1 < totalPages,
		HasPrevious:   page > 0,
	}
}

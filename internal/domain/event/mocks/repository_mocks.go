package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/leandrocl/kafka-correlation-monitor/internal/domain/event"
)

// EventRepository is an in-memory implementation of event.Repository for
// testing. Error fields, when set, are returned by the matching method.
type EventRepository struct {
	mu     sync.Mutex
	nextID int64
	Events []*event.InterestingEvent

	SaveErr   error
	FindErr   error
	ClaimErr  error
	CountErr  error
	DeleteErr error

	SaveCalls          int
	ClaimCalls         int
	DeleteMatchedCalls int
}

func (m *EventRepository) Save(ctx context.Context, e *event.InterestingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCalls++
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.nextID++
	e.ID = m.nextID
	stored := *e
	m.Events = append(m.Events, &stored)
	return nil
}

func (m *EventRepository) FindByID(ctx context.Context, id int64) (*event.InterestingEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	for _, e := range m.Events {
		if e.ID == id {
			cp := *e
			return &cp, nil
		}
	}
	return nil, event.ErrNotFound
}

func (m *EventRepository) FindAll(ctx context.Context, page, size int) ([]*event.InterestingEvent, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FindErr != nil {
		return nil, 0, m.FindErr
	}
	all := m.sortedLocked(nil)
	return slice(all, page*size, size), int64(len(all)), nil
}

func (m *EventRepository) FindAllWithOffset(ctx context.Context, offset, limit int) ([]*event.InterestingEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	return slice(m.sortedLocked(nil), offset, limit), nil
}

func (m *EventRepository) FindByTopicName(ctx context.Context, topicName string, page, size int) ([]*event.InterestingEvent, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FindErr != nil {
		return nil, 0, m.FindErr
	}
	all := m.sortedLocked(func(e *event.InterestingEvent) bool { return e.TopicName == topicName })
	return slice(all, page*size, size), int64(len(all)), nil
}

func (m *EventRepository) FindByKeyOfInterestName(ctx context.Context, keyName string, page, size int) ([]*event.InterestingEvent, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FindErr != nil {
		return nil, 0, m.FindErr
	}
	all := m.sortedLocked(func(e *event.InterestingEvent) bool { return e.KeyOfInterestName == keyName })
	return slice(all, page*size, size), int64(len(all)), nil
}

func (m *EventRepository) FindByTopicNameAndKeyOfInterestName(ctx context.Context, topicName, keyName string, page, size int) ([]*event.InterestingEvent, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FindErr != nil {
		return nil, 0, m.FindErr
	}
	all := m.sortedLocked(func(e *event.InterestingEvent) bool {
		return e.TopicName == topicName && e.KeyOfInterestName == keyName
	})
	return slice(all, page*size, size), int64(len(all)), nil
}

func (m *EventRepository) FindByCreatedAtBetween(ctx context.Context, start, end time.Time, page, size int) ([]*event.InterestingEvent, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FindErr != nil {
		return nil, 0, m.FindErr
	}
	all := m.sortedLocked(func(e *event.InterestingEvent) bool {
		return !e.CreatedAt.Before(start) && !e.CreatedAt.After(end)
	})
	return slice(all, page*size, size), int64(len(all)), nil
}

func (m *EventRepository) FindUnmatchedByKey(ctx context.Context, keyName, keyValue string) ([]*event.InterestingEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	return m.sortedLocked(func(e *event.InterestingEvent) bool {
		return e.KeyOfInterestName == keyName && e.KeyOfInterestValue == keyValue && !e.IsCorrelated
	}), nil
}

func (m *EventRepository) ClaimCorrelation(ctx context.Context, keyName, keyValue, correlatedMessage string, now time.Time) (*event.InterestingEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClaimCalls++
	if m.ClaimErr != nil {
		return nil, m.ClaimErr
	}

	candidates := m.sortedLocked(func(e *event.InterestingEvent) bool {
		return e.KeyOfInterestName == keyName && e.KeyOfInterestValue == keyValue && !e.IsCorrelated
	})
	if len(candidates) == 0 {
		return nil, nil
	}

	// sortedLocked returns copies; mutate the stored row by id.
	for _, e := range m.Events {
		if e.ID == candidates[0].ID {
			msg := correlatedMessage
			ts := now
			e.CorrelatedMessage = &msg
			e.IsCorrelated = true
			e.CorrelationTimestamp = &ts
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *EventRepository) CountAll(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CountErr != nil {
		return 0, m.CountErr
	}
	return int64(len(m.Events)), nil
}

func (m *EventRepository) CountMatched(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CountErr != nil {
		return 0, m.CountErr
	}
	var n int64
	for _, e := range m.Events {
		if e.IsCorrelated {
			n++
		}
	}
	return n, nil
}

func (m *EventRepository) DeleteAllMatched(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteMatchedCalls++
	if m.DeleteErr != nil {
		return 0, m.DeleteErr
	}
	var kept []*event.InterestingEvent
	var deleted int64
	for _, e := range m.Events {
		if e.IsCorrelated {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	m.Events = kept
	return deleted, nil
}

func (m *EventRepository) DeleteByID(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return false, m.DeleteErr
	}
	for i, e := range m.Events {
		if e.ID == id {
			m.Events = append(m.Events[:i], m.Events[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *EventRepository) CountUnmatchedOlderThan(ctx context.Context, threshold time.Time) ([]event.TopicCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CountErr != nil {
		return nil, m.CountErr
	}
	byTopic := map[string]int64{}
	for _, e := range m.Events {
		if !e.IsCorrelated && e.CreatedAt.Before(threshold) {
			byTopic[e.TopicName]++
		}
	}
	topics := make([]string, 0, len(byTopic))
	for t := range byTopic {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	counts := make([]event.TopicCount, 0, len(topics))
	for _, t := range topics {
		counts = append(counts, event.TopicCount{TopicName: t, Count: byTopic[t]})
	}
	return counts, nil
}

// SetSaveErr swaps the Save error; safe to call while other goroutines use
// the repository.
func (m *EventRepository) SetSaveErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveErr = err
}

// SaveCallCount reports how many times Save was invoked; safe to poll from
// other goroutines.
func (m *EventRepository) SaveCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SaveCalls
}

// Snapshot returns deep copies of all stored events, newest first.
func (m *EventRepository) Snapshot() []*event.InterestingEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLocked(nil)
}

// sortedLocked returns copies of stored events matching the filter, ordered
// newest first with ties broken by descending id. Callers must hold mu.
func (m *EventRepository) sortedLocked(filter func(*event.InterestingEvent) bool) []*event.InterestingEvent {
	var out []*event.InterestingEvent
	for _, e := range m.Events {
		if filter == nil || filter(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func slice(events []*event.InterestingEvent, offset, limit int) []*event.InterestingEvent {
	if offset >= len(events) {
		return nil
	}
	end := offset + limit
	if end > len(events) {
		end = len(events)
	}
	return events[offset:end]
}

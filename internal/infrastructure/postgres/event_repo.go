package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leandrocl/kafka-correlation-monitor/internal/domain/event"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const eventColumns = `
	id,
	topic_name,
	key_of_interest_name,
	key_of_interest_value,
	created_at,
	correlated_message,
	is_correlated,
	correlation_timestamp`

type EventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

func (r *EventRepository) Save(ctx context.Context, e *event.InterestingEvent) error {
	const sql = `
		INSERT INTO interesting_events (topic_name, key_of_interest_name, key_of_interest_value, created_at, is_correlated)
		VALUES ($1, $2, $3, $4, FALSE)
		RETURNING id
	`

	err := r.pool.QueryRow(ctx, sql,
		e.TopicName, e.KeyOfInterestName, e.KeyOfInterestValue, e.CreatedAt).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert interesting event: %w", err)
	}

	return nil
}

func (r *EventRepository) FindByID(ctx context.Context, id int64) (*event.InterestingEvent, error) {
	sql := `SELECT` + eventColumns + ` FROM interesting_events WHERE id = $1`

	e, err := scanEvent(r.pool.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, event.ErrNotFound
		}
		return nil, fmt.Errorf("get interesting event by id: %w", err)
	}

	return e, nil
}

func (r *EventRepository) FindAll(ctx context.Context, page, size int) ([]*event.InterestingEvent, int64, error) {
	sql := `SELECT` + eventColumns + `
		FROM interesting_events
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	events, err := r.queryEvents(ctx, sql, size, page*size)
	if err != nil {
		return nil, 0, err
	}

	total, err := r.CountAll(ctx)
	if err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

func (r *EventRepository) FindAllWithOffset(ctx context.Context, offset, limit int) ([]*event.InterestingEvent, error) {
	sql := `SELECT` + eventColumns + `
		FROM interesting_events
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`

	return r.queryEvents(ctx, sql, limit, offset)
}

func (r *EventRepository) FindByTopicName(ctx context.Context, topicName string, page, size int) ([]*event.InterestingEvent, int64, error) {
	sql := `SELECT` + eventColumns + `
		FROM interesting_events
		WHERE topic_name = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	events, err := r.queryEvents(ctx, sql, topicName, size, page*size)
	if err != nil {
		return nil, 0, err
	}

	total, err := r.count(ctx, `SELECT COUNT(*) FROM interesting_events WHERE topic_name = $1`, topicName)
	if err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

func (r *EventRepository) FindByKeyOfInterestName(ctx context.Context, keyName string, page, size int) ([]*event.InterestingEvent, int64, error) {
	sql := `SELECT` + eventColumns + `
		FROM interesting_events
		WHERE key_of_interest_name = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	events, err := r.queryEvents(ctx, sql, keyName, size, page*size)
	if err != nil {
		return nil, 0, err
	}

	total, err := r.count(ctx, `SELECT COUNT(*) FROM interesting_events WHERE key_of_interest_name = $1`, keyName)
	if err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

func (r *EventRepository) FindByTopicNameAndKeyOfInterestName(ctx context.Context, topicName, keyName string, page, size int) ([]*event.InterestingEvent, int64, error) {
	sql := `SELECT` + eventColumns + `
		FROM interesting_events
		WHERE topic_name = $1 AND key_of_interest_name = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`

	events, err := r.queryEvents(ctx, sql, topicName, keyName, size, page*size)
	if err != nil {
		return nil, 0, err
	}

	total, err := r.count(ctx,
		`SELECT COUNT(*) FROM interesting_events WHERE topic_name = $1 AND key_of_interest_name = $2`,
		topicName, keyName)
	if err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

func (r *EventRepository) FindByCreatedAtBetween(ctx context.Context, start, end time.Time, page, size int) ([]*event.InterestingEvent, int64, error) {
	sql := `SELECT` + eventColumns + `
		FROM interesting_events
		WHERE created_at BETWEEN $1 AND $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`

	events, err := r.queryEvents(ctx, sql, start, end, size, page*size)
	if err != nil {
		return nil, 0, err
	}

	total, err := r.count(ctx,
		`SELECT COUNT(*) FROM interesting_events WHERE created_at BETWEEN $1 AND $2`,
		start, end)
	if err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

func (r *EventRepository) FindUnmatchedByKey(ctx context.Context, keyName, keyValue string) ([]*event.InterestingEvent, error) {
	sql := `SELECT` + eventColumns + `
		FROM interesting_events
		WHERE key_of_interest_name = $1 AND key_of_interest_value = $2 AND is_correlated = FALSE
		ORDER BY created_at DESC, id DESC`

	return r.queryEvents(ctx, sql, keyName, keyValue)
}

// ClaimCorrelation picks the most recent unmatched event for the key and
// attaches the correlated payload in a single conditional update. FOR UPDATE
// SKIP LOCKED keeps two concurrent claims off the same row: the loser either
// claims the next-newest row or sees no match.
func (r *EventRepository) ClaimCorrelation(ctx context.Context, keyName, keyValue, correlatedMessage string, now time.Time) (*event.InterestingEvent, error) {
	sql := `
		WITH candidate AS (
			SELECT id
			FROM interesting_events
			WHERE key_of_interest_name = $1
			  AND key_of_interest_value = $2
			  AND is_correlated = FALSE
			ORDER BY created_at DESC, id DESC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE interesting_events e
		SET correlated_message = $3,
		    is_correlated = TRUE,
		    correlation_timestamp = $4
		FROM candidate
		WHERE e.id = candidate.id
		RETURNING` + qualifiedEventColumns()

	e, err := scanEvent(r.pool.QueryRow(ctx, sql, keyName, keyValue, correlatedMessage, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim correlation: %w", err)
	}

	return e, nil
}

func (r *EventRepository) CountAll(ctx context.Context) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM interesting_events`)
}

func (r *EventRepository) CountMatched(ctx context.Context) (int64, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM interesting_events WHERE is_correlated = TRUE`)
}

func (r *EventRepository) DeleteAllMatched(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM interesting_events WHERE is_correlated = TRUE`)
	if err != nil {
		return 0, fmt.Errorf("delete matched events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *EventRepository) DeleteByID(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM interesting_events WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete interesting event: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *EventRepository) CountUnmatchedOlderThan(ctx context.Context, threshold time.Time) ([]event.TopicCount, error) {
	const sql = `
		SELECT topic_name, COUNT(*)
		FROM interesting_events
		WHERE is_correlated = FALSE AND created_at < $1
		GROUP BY topic_name
		ORDER BY topic_name
	`

	rows, err := r.pool.Query(ctx, sql, threshold)
	if err != nil {
		return nil, fmt.Errorf("query stale unmatched events: %w", err)
	}
	defer rows.Close()

	var counts []event.TopicCount
	for rows.Next() {
		var tc event.TopicCount
		if err := rows.Scan(&tc.TopicName, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan topic count: %w", err)
		}
		counts = append(counts, tc)
	}

	return counts, rows.Err()
}

func (r *EventRepository) count(ctx context.Context, sql string, args ...any) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count interesting events: %w", err)
	}
	return n, nil
}

func (r *EventRepository) queryEvents(ctx context.Context, sql string, args ...any) ([]*event.InterestingEvent, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query interesting events: %w", err)
	}
	defer rows.Close()

	var events []*event.InterestingEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan interesting event: %w", err)
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

func scanEvent(row pgx.Row) (*event.InterestingEvent, error) {
	e := &event.InterestingEvent{}
	err := row.Scan(
		&e.ID,
		&e.TopicName,
		&e.KeyOfInterestName,
		&e.KeyOfInterestValue,
		&e.CreatedAt,
		&e.CorrelatedMessage,
		&e.IsCorrelated,
		&e.CorrelationTimestamp,
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func qualifiedEventColumns() string {
	return `
	e.id,
	e.topic_name,
	e.key_of_interest_name,
	e.key_of_interest_value,
	e.created_at,
	e.correlated_message,
	e.is_correlated,
	e.correlation_timestamp`
}

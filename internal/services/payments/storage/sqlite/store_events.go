package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
	"github.com/louisbranch/paysaga/internal/services/payments/storage"
)

const eventColumns = `position, aggregate_id, aggregate_type, seq, event_type, timestamp, correlation_id, causation_id, payload_json`

// AppendEvents appends a batch to one stream when its version equals
// expectedVersion.
func (s *Store) AppendEvents(ctx context.Context, aggregateID string, expectedVersion uint64, events []event.Event) ([]event.Event, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	aggregateID = strings.TrimSpace(aggregateID)
	if aggregateID == "" {
		return nil, fmt.Errorf("aggregate id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	actual, err := aggregateVersion(ctx, tx, aggregateID)
	if err != nil {
		return nil, err
	}
	if actual != expectedVersion {
		return nil, &storage.ConflictError{AggregateID: aggregateID, Expected: expectedVersion, Actual: actual}
	}

	stored := make([]event.Event, 0, len(events))
	for i, evt := range events {
		if evt.AggregateID != aggregateID {
			return nil, fmt.Errorf("event %d addresses %s, not %s", i, evt.AggregateID, aggregateID)
		}
		evt.Seq = actual + uint64(i) + 1
		if evt.Timestamp.IsZero() {
			evt.Timestamp = s.now()
		}
		evt.Timestamp = evt.Timestamp.UTC().Truncate(time.Millisecond)

		result, err := tx.ExecContext(ctx,
			`INSERT INTO events (aggregate_id, aggregate_type, seq, event_type, timestamp, correlation_id, causation_id, payload_json)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			evt.AggregateID,
			evt.AggregateType,
			int64(evt.Seq),
			string(evt.Type),
			toMillis(evt.Timestamp),
			evt.CorrelationID,
			evt.CausationID,
			evt.PayloadJSON,
		)
		if err != nil {
			if isConstraintError(err) {
				return nil, &storage.ConflictError{AggregateID: aggregateID, Expected: expectedVersion, Actual: evt.Seq}
			}
			return nil, fmt.Errorf("append event: %w", err)
		}
		position, err := result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("read event position: %w", err)
		}
		evt.Position = uint64(position)
		if err := s.enqueueOutbox(ctx, tx, evt); err != nil {
			return nil, err
		}
		stored = append(stored, evt)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return stored, nil
}

// ListEvents returns up to limit events of one stream after afterSeq.
func (s *Store) ListEvents(ctx context.Context, aggregateID string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 WHERE aggregate_id = ? AND seq > ?
		 ORDER BY seq
		 LIMIT ?`,
		aggregateID, int64(afterSeq), normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return scanEvents(rows)
}

// ListAllEvents returns up to limit events after afterPosition.
func (s *Store) ListAllEvents(ctx context.Context, afterPosition uint64, limit int) ([]event.Event, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 WHERE position > ?
		 ORDER BY position
		 LIMIT ?`,
		int64(afterPosition), normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list all events: %w", err)
	}
	return scanEvents(rows)
}

// AggregateVersion returns the last sequence of a stream.
func (s *Store) AggregateVersion(ctx context.Context, aggregateID string) (uint64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	return aggregateVersion(ctx, s.sqlDB, aggregateID)
}

// GetEventByPosition loads one event by its global position.
func (s *Store) GetEventByPosition(ctx context.Context, position uint64) (event.Event, error) {
	if err := s.ready(ctx); err != nil {
		return event.Event{}, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE position = ?`,
		int64(position),
	)
	if err != nil {
		return event.Event{}, fmt.Errorf("get event: %w", err)
	}
	events, err := scanEvents(rows)
	if err != nil {
		return event.Event{}, err
	}
	if len(events) == 0 {
		return event.Event{}, storage.ErrNotFound
	}
	return events[0], nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func aggregateVersion(ctx context.Context, q queryer, aggregateID string) (uint64, error) {
	var version int64
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM events WHERE aggregate_id = ?`,
		aggregateID,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("get aggregate version: %w", err)
	}
	return uint64(version), nil
}

func scanEvents(rows *sql.Rows) ([]event.Event, error) {
	defer rows.Close()
	var events []event.Event
	for rows.Next() {
		var (
			evt       event.Event
			position  int64
			seq       int64
			eventType string
			timestamp int64
		)
		if err := rows.Scan(
			&position,
			&evt.AggregateID,
			&evt.AggregateType,
			&seq,
			&eventType,
			&timestamp,
			&evt.CorrelationID,
			&evt.CausationID,
			&evt.PayloadJSON,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		evt.Position = uint64(position)
		evt.Seq = uint64(seq)
		evt.Type = event.Type(eventType)
		evt.Timestamp = fromMillis(timestamp)
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

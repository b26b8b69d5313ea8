package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
	"github.com/louisbranch/paysaga/internal/services/payments/storage"
)

const eventColumns = `position, aggregate_id, aggregate_type, seq, event_type, timestamp_ms, correlation_id, causation_id, payload_json`

// AppendEvents appends a batch to one stream when its version equals
// expectedVersion. The (aggregate_id, seq) key turns racing writers into a
// conflict.
func (s *Store) AppendEvents(ctx context.Context, aggregateID string, expectedVersion uint64, events []event.Event) ([]event.Event, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	aggregateID = strings.TrimSpace(aggregateID)
	if aggregateID == "" {
		return nil, fmt.Errorf("aggregate id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var actual int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM events WHERE aggregate_id = $1`,
		aggregateID,
	).Scan(&actual); err != nil {
		return nil, fmt.Errorf("get aggregate version: %w", err)
	}
	if uint64(actual) != expectedVersion {
		return nil, &storage.ConflictError{AggregateID: aggregateID, Expected: expectedVersion, Actual: uint64(actual)}
	}

	stored := make([]event.Event, 0, len(events))
	for i, evt := range events {
		if evt.AggregateID != aggregateID {
			return nil, fmt.Errorf("event %d addresses %s, not %s", i, evt.AggregateID, aggregateID)
		}
		evt.Seq = expectedVersion + uint64(i) + 1
		if evt.Timestamp.IsZero() {
			evt.Timestamp = s.now()
		}
		evt.Timestamp = evt.Timestamp.UTC().Truncate(time.Millisecond)

		var position int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO events (aggregate_id, aggregate_type, seq, event_type, timestamp_ms, correlation_id, causation_id, payload_json)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING position`,
			evt.AggregateID,
			evt.AggregateType,
			int64(evt.Seq),
			string(evt.Type),
			toMillis(evt.Timestamp),
			evt.CorrelationID,
			evt.CausationID,
			evt.PayloadJSON,
		).Scan(&position)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, &storage.ConflictError{AggregateID: aggregateID, Expected: expectedVersion, Actual: evt.Seq}
			}
			return nil, fmt.Errorf("append event: %w", err)
		}
		evt.Position = uint64(position)
		stored = append(stored, evt)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return nil, &storage.ConflictError{AggregateID: aggregateID, Expected: expectedVersion}
		}
		return nil, fmt.Errorf("commit: %w", err)
	}
	return stored, nil
}

// ListEvents returns up to limit events of one stream after afterSeq.
func (s *Store) ListEvents(ctx context.Context, aggregateID string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE aggregate_id = $1 AND seq > $2 ORDER BY seq LIMIT $3`,
		aggregateID, int64(afterSeq), normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return scanEvents(rows)
}

// ListAllEvents returns up to limit events after afterPosition.
//
// Positions come from a sequence, so a transaction can commit a higher
// position before a lower one. Rows are only listed once every transaction
// older than the reader's snapshot has finished, which keeps a position
// cursor from skipping a late commit.
func (s *Store) ListAllEvents(ctx context.Context, afterPosition uint64, limit int) ([]event.Event, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE position > $1 AND tx_id < pg_snapshot_xmin(pg_current_snapshot()) ORDER BY position LIMIT $2`,
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
	var version int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM events WHERE aggregate_id = $1`,
		aggregateID,
	).Scan(&version); err != nil {
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
		if err := rows.Scan(&position, &evt.AggregateID, &evt.AggregateType, &seq, &eventType, &timestamp,
			&evt.CorrelationID, &evt.CausationID, &evt.PayloadJSON); err != nil {
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

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
)

const (
	outboxDeadLetterThreshold = 8
	outboxProcessingLease     = 2 * time.Minute

	outboxPending    = "pending"
	outboxProcessing = "processing"
	outboxFailed     = "failed"
	outboxDead       = "dead"
)

// OutboxSummary reports relay queue depth by status.
type OutboxSummary struct {
	PendingCount    int
	ProcessingCount int
	FailedCount     int
	DeadCount       int
}

// OutboxEntry describes one outbox row.
type OutboxEntry struct {
	Position      uint64
	EventType     event.Type
	Status        string
	AttemptCount  int
	NextAttemptAt time.Time
	LastError     string
}

type outboxRow struct {
	Position     uint64
	AttemptCount int
}

func (s *Store) enqueueOutbox(ctx context.Context, tx *sql.Tx, evt event.Event) error {
	if !s.outboxEnabled {
		return nil
	}
	enqueuedAt := toMillis(s.now())
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO dispatch_outbox (position, event_type, status, attempt_count, next_attempt_at, last_error, updated_at)
		 VALUES (?, ?, 'pending', 0, ?, '', ?)
		 ON CONFLICT(position) DO NOTHING`,
		int64(evt.Position),
		string(evt.Type),
		enqueuedAt,
		enqueuedAt,
	); err != nil {
		return fmt.Errorf("enqueue dispatch outbox: %w", err)
	}
	return nil
}

// OutboxSummary counts outbox rows by status.
func (s *Store) OutboxSummary(ctx context.Context) (OutboxSummary, error) {
	if err := s.ready(ctx); err != nil {
		return OutboxSummary{}, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT status, COUNT(*) FROM dispatch_outbox GROUP BY status`)
	if err != nil {
		return OutboxSummary{}, fmt.Errorf("query outbox summary: %w", err)
	}
	defer rows.Close()

	var summary OutboxSummary
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return OutboxSummary{}, fmt.Errorf("scan outbox summary: %w", err)
		}
		switch status {
		case outboxPending:
			summary.PendingCount = count
		case outboxProcessing:
			summary.ProcessingCount = count
		case outboxFailed:
			summary.FailedCount = count
		case outboxDead:
			summary.DeadCount = count
		}
	}
	if err := rows.Err(); err != nil {
		return OutboxSummary{}, fmt.Errorf("iterate outbox summary: %w", err)
	}
	return summary, nil
}

// ListOutbox lists outbox rows by position.
func (s *Store) ListOutbox(ctx context.Context, limit int) ([]OutboxEntry, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT position, event_type, status, attempt_count, next_attempt_at, last_error
		 FROM dispatch_outbox
		 ORDER BY position
		 LIMIT ?`,
		normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list outbox rows: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var (
			entry       OutboxEntry
			position    int64
			eventType   string
			nextAttempt int64
		)
		if err := rows.Scan(&position, &eventType, &entry.Status, &entry.AttemptCount, &nextAttempt, &entry.LastError); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		entry.Position = uint64(position)
		entry.EventType = event.Type(eventType)
		entry.NextAttemptAt = fromMillis(nextAttempt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return entries, nil
}

// ProcessOutbox claims due rows in position order and hands each stored event
// to publish. Published rows are removed. A failed row is rescheduled and the
// rest of the batch is released, so later events never overtake it.
func (s *Store) ProcessOutbox(ctx context.Context, now time.Time, limit int, publish func(context.Context, event.Event) error) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	if publish == nil {
		return 0, fmt.Errorf("outbox publish callback is required")
	}
	if limit <= 0 {
		return 0, nil
	}
	if now.IsZero() {
		now = s.now()
	}

	rows, err := s.claimOutboxDue(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	processed := 0
	for i, row := range rows {
		evt, err := s.GetEventByPosition(ctx, row.Position)
		if err == nil {
			err = publish(ctx, evt)
		}
		if err != nil {
			attempt := row.AttemptCount + 1
			if markErr := s.markOutboxRetry(ctx, row, now, attempt, now.Add(outboxRetryBackoff(attempt)), err.Error()); markErr != nil {
				return processed, markErr
			}
			if releaseErr := s.releaseOutboxRows(ctx, rows[i+1:]); releaseErr != nil {
				return processed, releaseErr
			}
			return processed, nil
		}
		if err := s.completeOutboxRow(ctx, row); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

func (s *Store) claimOutboxDue(ctx context.Context, now time.Time, limit int) ([]outboxRow, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin outbox claim tx: %w", err)
	}
	defer tx.Rollback()

	staleBefore := toMillis(now.Add(-outboxProcessingLease))
	nowMillis := toMillis(now)
	// A failed row that is not yet due blocks every later position.
	rows, err := tx.QueryContext(ctx,
		`SELECT position, attempt_count
		 FROM dispatch_outbox
		 WHERE (
			 (status IN ('pending', 'failed') AND next_attempt_at <= ?)
			 OR (status = 'processing' AND updated_at <= ?)
		 )
		 AND position < COALESCE(
			 (SELECT MIN(position) FROM dispatch_outbox WHERE status = 'failed' AND next_attempt_at > ?),
			 9223372036854775807
		 )
		 ORDER BY position
		 LIMIT ?`,
		nowMillis, staleBefore, nowMillis, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due outbox rows: %w", err)
	}
	var candidates []outboxRow
	for rows.Next() {
		var (
			row      outboxRow
			position int64
		)
		if err := rows.Scan(&position, &row.AttemptCount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan due outbox row: %w", err)
		}
		row.Position = uint64(position)
		candidates = append(candidates, row)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate due outbox rows: %w", err)
	}
	rows.Close()

	for _, candidate := range candidates {
		if _, err := tx.ExecContext(ctx,
			`UPDATE dispatch_outbox SET status = 'processing', updated_at = ? WHERE position = ?`,
			nowMillis, int64(candidate.Position),
		); err != nil {
			return nil, fmt.Errorf("claim outbox row %d: %w", candidate.Position, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit outbox claim tx: %w", err)
	}
	return candidates, nil
}

func (s *Store) markOutboxRetry(ctx context.Context, row outboxRow, now time.Time, attempt int, nextAttempt time.Time, lastError string) error {
	status := outboxFailed
	if attempt >= outboxDeadLetterThreshold {
		status = outboxDead
	}
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE dispatch_outbox
		 SET status = ?, attempt_count = ?, next_attempt_at = ?, last_error = ?, updated_at = ?
		 WHERE position = ? AND status = 'processing'`,
		status, attempt, toMillis(nextAttempt), lastError, toMillis(now), int64(row.Position),
	)
	if err != nil {
		return fmt.Errorf("mark outbox retry %d: %w", row.Position, err)
	}
	return ensureSingleRow(result, row, "mark outbox retry")
}

func (s *Store) releaseOutboxRows(ctx context.Context, rows []outboxRow) error {
	for _, row := range rows {
		if _, err := s.sqlDB.ExecContext(ctx,
			`UPDATE dispatch_outbox SET status = 'pending' WHERE position = ? AND status = 'processing'`,
			int64(row.Position),
		); err != nil {
			return fmt.Errorf("release outbox row %d: %w", row.Position, err)
		}
	}
	return nil
}

func (s *Store) completeOutboxRow(ctx context.Context, row outboxRow) error {
	result, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM dispatch_outbox WHERE position = ? AND status = 'processing'`,
		int64(row.Position),
	)
	if err != nil {
		return fmt.Errorf("complete outbox row %d: %w", row.Position, err)
	}
	return ensureSingleRow(result, row, "complete outbox row")
}

func ensureSingleRow(result sql.Result, row outboxRow, operation string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %d rows affected: %w", operation, row.Position, err)
	}
	if affected != 1 {
		return fmt.Errorf("%s %d: expected 1 row, got %d", operation, row.Position, affected)
	}
	return nil
}

func outboxRetryBackoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	delay := time.Second << (attempt - 1)
	if delay > 5*time.Minute {
		return 5 * time.Minute
	}
	return delay
}

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/paysaga/internal/services/payments/saga"
	"github.com/louisbranch/paysaga/internal/services/payments/storage"
)

// GetSaga loads the instance for correlationID.
func (s *Store) GetSaga(ctx context.Context, correlationID string) (saga.Instance, error) {
	if err := s.ready(ctx); err != nil {
		return saga.Instance{}, err
	}
	var (
		revision int64
		raw      string
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT revision, instance_json FROM sagas WHERE correlation_id = ?`,
		correlationID,
	).Scan(&revision, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return saga.Instance{}, storage.ErrNotFound
	}
	if err != nil {
		return saga.Instance{}, fmt.Errorf("get saga: %w", err)
	}
	return decodeInstance(raw, revision)
}

// SaveSaga writes inst when the stored revision equals expectedRevision. Zero
// inserts a new row.
func (s *Store) SaveSaga(ctx context.Context, inst saga.Instance, expectedRevision uint64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(inst.CorrelationID) == "" {
		return fmt.Errorf("correlation id is required")
	}
	raw, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("encode saga: %w", err)
	}
	updatedAt := inst.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}
	args := []any{
		int64(expectedRevision + 1),
		string(inst.State),
		inst.Terminal,
		toNullMillis(inst.Deadline),
		len(inst.Pending),
		string(raw),
		toMillis(updatedAt),
	}

	if expectedRevision == 0 {
		_, err := s.sqlDB.ExecContext(ctx,
			`INSERT INTO sagas (revision, state, terminal, deadline_at, pending_count, instance_json, updated_at, correlation_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			append(args, inst.CorrelationID)...,
		)
		if isConstraintError(err) {
			return storage.ErrConcurrencyConflict
		}
		if err != nil {
			return fmt.Errorf("insert saga: %w", err)
		}
		return nil
	}

	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE sagas
		 SET revision = ?, state = ?, terminal = ?, deadline_at = ?, pending_count = ?, instance_json = ?, updated_at = ?
		 WHERE correlation_id = ? AND revision = ?`,
		append(args, inst.CorrelationID, int64(expectedRevision))...,
	)
	if err != nil {
		return fmt.Errorf("update saga: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update saga rows affected: %w", err)
	}
	if affected != 1 {
		return storage.ErrConcurrencyConflict
	}
	return nil
}

// ListExpiredSagas returns non-terminal instances due at or before now.
func (s *Store) ListExpiredSagas(ctx context.Context, now time.Time, limit int) ([]saga.Instance, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT revision, instance_json
		 FROM sagas
		 WHERE terminal = 0 AND deadline_at IS NOT NULL AND deadline_at <= ?
		 ORDER BY deadline_at, correlation_id
		 LIMIT ?`,
		toMillis(now), normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list expired sagas: %w", err)
	}
	return scanInstances(rows)
}

// ListPendingSagas returns instances holding undelivered commands.
func (s *Store) ListPendingSagas(ctx context.Context, limit int) ([]saga.Instance, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT revision, instance_json
		 FROM sagas
		 WHERE pending_count > 0
		 ORDER BY updated_at, correlation_id
		 LIMIT ?`,
		normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list pending sagas: %w", err)
	}
	return scanInstances(rows)
}

func scanInstances(rows *sql.Rows) ([]saga.Instance, error) {
	defer rows.Close()
	var out []saga.Instance
	for rows.Next() {
		var (
			revision int64
			raw      string
		)
		if err := rows.Scan(&revision, &raw); err != nil {
			return nil, fmt.Errorf("scan saga: %w", err)
		}
		inst, err := decodeInstance(raw, revision)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sagas: %w", err)
	}
	return out, nil
}

func decodeInstance(raw string, revision int64) (saga.Instance, error) {
	var inst saga.Instance
	if err := json.Unmarshal([]byte(raw), &inst); err != nil {
		return saga.Instance{}, fmt.Errorf("decode saga: %w", err)
	}
	inst.Revision = uint64(revision)
	return inst, nil
}

package postgres

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
		raw      []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT revision, instance_json FROM sagas WHERE correlation_id = $1`,
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

// SaveSaga writes inst when the stored revision equals expectedRevision.
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

	if expectedRevision == 0 {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO sagas (correlation_id, revision, state, terminal, deadline_ms, pending_count, instance_json, updated_ms)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			inst.CorrelationID, int64(1), string(inst.State), inst.Terminal,
			toNullMillis(inst.Deadline), len(inst.Pending), raw, toMillis(updatedAt),
		)
		if isUniqueViolation(err) {
			return storage.ErrConcurrencyConflict
		}
		if err != nil {
			return fmt.Errorf("insert saga: %w", err)
		}
		return nil
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE sagas
		 SET revision = $1, state = $2, terminal = $3, deadline_ms = $4, pending_count = $5, instance_json = $6, updated_ms = $7
		 WHERE correlation_id = $8 AND revision = $9`,
		int64(expectedRevision+1), string(inst.State), inst.Terminal,
		toNullMillis(inst.Deadline), len(inst.Pending), raw, toMillis(updatedAt),
		inst.CorrelationID, int64(expectedRevision),
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
	rows, err := s.db.QueryContext(ctx,
		`SELECT revision, instance_json FROM sagas
		 WHERE NOT terminal AND deadline_ms IS NOT NULL AND deadline_ms <= $1
		 ORDER BY deadline_ms, correlation_id
		 LIMIT $2`,
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
	rows, err := s.db.QueryContext(ctx,
		`SELECT revision, instance_json FROM sagas
		 WHERE pending_count > 0
		 ORDER BY updated_ms, correlation_id
		 LIMIT $1`,
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
			raw      []byte
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

func decodeInstance(raw []byte, revision int64) (saga.Instance, error) {
	var inst saga.Instance
	if err := json.Unmarshal(raw, &inst); err != nil {
		return saga.Instance{}, fmt.Errorf("decode saga: %w", err)
	}
	inst.Revision = uint64(revision)
	return inst, nil
}

package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/louisbranch/paysaga/internal/services/payments/saga"
	"github.com/louisbranch/paysaga/internal/services/payments/storage"
)

type sagaTable struct {
	rows map[string]saga.Instance
}

func (t *sagaTable) init() {
	t.rows = make(map[string]saga.Instance)
}

// GetSaga returns the instance for correlationID.
func (s *Store) GetSaga(ctx context.Context, correlationID string) (saga.Instance, error) {
	if err := ctx.Err(); err != nil {
		return saga.Instance{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.sagas.rows[correlationID]
	if !ok {
		return saga.Instance{}, storage.ErrNotFound
	}
	return inst.Clone(), nil
}

// SaveSaga stores inst when the stored revision equals expectedRevision.
func (s *Store) SaveSaga(ctx context.Context, inst saga.Instance, expectedRevision uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(inst.CorrelationID) == "" {
		return storage.ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sagas.rows[inst.CorrelationID]
	switch {
	case !ok && expectedRevision != 0:
		return storage.ErrConcurrencyConflict
	case ok && current.Revision != expectedRevision:
		return storage.ErrConcurrencyConflict
	}
	stored := inst.Clone()
	stored.Revision = expectedRevision + 1
	s.sagas.rows[inst.CorrelationID] = stored
	return nil
}

// ListExpiredSagas returns non-terminal instances due at or before now,
// earliest deadline first.
func (s *Store) ListExpiredSagas(ctx context.Context, now time.Time, limit int) ([]saga.Instance, error) {
	return s.listSagas(ctx, limit, func(inst saga.Instance) bool {
		return !inst.Terminal && !inst.Deadline.IsZero() && !inst.Deadline.After(now)
	}, func(a, b saga.Instance) bool {
		return a.Deadline.Before(b.Deadline)
	})
}

// ListPendingSagas returns instances with undelivered commands.
func (s *Store) ListPendingSagas(ctx context.Context, limit int) ([]saga.Instance, error) {
	return s.listSagas(ctx, limit, func(inst saga.Instance) bool {
		return len(inst.Pending) > 0
	}, func(a, b saga.Instance) bool {
		return a.UpdatedAt.Before(b.UpdatedAt)
	})
}

func (s *Store) listSagas(ctx context.Context, limit int, keep func(saga.Instance) bool, less func(a, b saga.Instance) bool) ([]saga.Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []saga.Instance
	for _, inst := range s.sagas.rows {
		if keep(inst) {
			out = append(out, inst.Clone())
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if less(out[i], out[j]) {
			return true
		}
		if less(out[j], out[i]) {
			return false
		}
		return out[i].CorrelationID < out[j].CorrelationID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

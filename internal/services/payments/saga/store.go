package saga

import (
	"context"
	"time"
)

// Store persists saga instances. SaveSaga succeeds only when the stored
// revision equals expectedRevision (zero creates the row) and otherwise returns
// storage.ErrConcurrencyConflict. At most one row exists per correlation id.
type Store interface {
	GetSaga(ctx context.Context, correlationID string) (Instance, error)
	SaveSaga(ctx context.Context, inst Instance, expectedRevision uint64) error
	// ListExpiredSagas returns non-terminal instances whose deadline is at or before now.
	ListExpiredSagas(ctx context.Context, now time.Time, limit int) ([]Instance, error)
	// ListPendingSagas returns instances holding undelivered commands.
	ListPendingSagas(ctx context.Context, limit int) ([]Instance, error)
}

package projection

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
	"github.com/louisbranch/paysaga/internal/services/payments/storage"
)

const replayPageSize = 200

// ErrEventLogRequired indicates a missing event log.
var ErrEventLogRequired = errors.New("event log is required")

// EventLog reads the whole log in global position order.
type EventLog interface {
	ListAllEvents(ctx context.Context, afterPosition uint64, limit int) ([]event.Event, error)
}

// Rebuild clears every read model and reapplies the log from position zero.
// It returns the last applied position.
func (a *Applier) Rebuild(ctx context.Context, log EventLog) (uint64, error) {
	if a == nil || a.Store == nil {
		return 0, ErrStoreRequired
	}
	if err := a.Store.ResetProjections(ctx); err != nil {
		return 0, fmt.Errorf("reset projections: %w", err)
	}
	return a.replayFrom(ctx, log, 0)
}

// Catchup applies events past the stored checkpoint. Without a checkpoint
// store it replays the whole log; handlers skip rows already current.
func (a *Applier) Catchup(ctx context.Context, log EventLog) (uint64, error) {
	if a == nil || a.Store == nil {
		return 0, ErrStoreRequired
	}
	var after uint64
	if a.Checkpoints != nil {
		position, err := a.Checkpoints.GetCheckpoint(ctx, SubscriberName)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return 0, fmt.Errorf("get checkpoint: %w", err)
		}
		after = position
	}
	return a.replayFrom(ctx, log, after)
}

func (a *Applier) replayFrom(ctx context.Context, log EventLog, after uint64) (uint64, error) {
	if log == nil {
		return after, ErrEventLogRequired
	}
	position := after
	applied := 0
	for {
		if err := ctx.Err(); err != nil {
			return position, err
		}
		events, err := log.ListAllEvents(ctx, position, replayPageSize)
		if err != nil {
			return position, fmt.Errorf("list events after %d: %w", position, err)
		}
		if len(events) == 0 {
			break
		}
		for _, evt := range events {
			if err := a.Apply(ctx, evt); err != nil {
				return position, err
			}
			position = evt.Position
			applied++
		}
		if err := a.saveCheckpoint(ctx, position); err != nil {
			return position, err
		}
	}
	a.logger().Info("projections caught up",
		zap.Uint64("from_position", after),
		zap.Uint64("to_position", position),
		zap.Int("applied", applied),
	)
	return position, nil
}

func (a *Applier) saveCheckpoint(ctx context.Context, position uint64) error {
	if a.Checkpoints == nil {
		return nil
	}
	if err := a.Checkpoints.SaveCheckpoint(ctx, SubscriberName, position); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

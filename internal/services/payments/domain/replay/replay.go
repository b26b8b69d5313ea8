// Package replay folds an aggregate's event stream into state, page by page.
package replay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
)

const defaultPageSize = 200

var (
	// ErrEventStoreRequired indicates a missing event store.
	ErrEventStoreRequired = errors.New("event store is required")
	// ErrFoldRequired indicates a missing fold function.
	ErrFoldRequired = errors.New("fold function is required")
	// ErrAggregateIDRequired indicates a missing aggregate id.
	ErrAggregateIDRequired = errors.New("aggregate id is required")
	// ErrSequenceGap indicates a hole or reordering in a stream.
	ErrSequenceGap = errors.New("event sequence gap")
)

// EventStore lists events of one aggregate stream in sequence order.
type EventStore interface {
	ListEvents(ctx context.Context, aggregateID string, afterSeq uint64, limit int) ([]event.Event, error)
}

// FoldFunc applies a single event to state.
type FoldFunc func(state any, evt event.Event) (any, error)

// Options configures replay behavior.
type Options struct {
	AfterSeq uint64
	UntilSeq uint64
	PageSize int
}

// Result captures replay outcomes. LastSeq is the aggregate version.
type Result struct {
	State   any
	LastSeq uint64
	Applied int
}

// Replay folds events after options.AfterSeq onto state in strict sequence order.
// A missing or out-of-order sequence aborts the replay rather than producing
// state that no real history could have produced.
func Replay(ctx context.Context, store EventStore, fold FoldFunc, aggregateID string, state any, options Options) (Result, error) {
	if store == nil {
		return Result{}, ErrEventStoreRequired
	}
	if fold == nil {
		return Result{}, ErrFoldRequired
	}
	aggregateID = strings.TrimSpace(aggregateID)
	if aggregateID == "" {
		return Result{}, ErrAggregateIDRequired
	}
	pageSize := options.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	result := Result{State: state, LastSeq: options.AfterSeq}
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		events, err := store.ListEvents(ctx, aggregateID, result.LastSeq, pageSize)
		if err != nil {
			return result, err
		}
		if len(events) == 0 {
			return result, nil
		}
		for _, evt := range events {
			if options.UntilSeq > 0 && evt.Seq > options.UntilSeq {
				return result, nil
			}
			expectedSeq := result.LastSeq + 1
			if evt.Seq != expectedSeq {
				return result, fmt.Errorf("%w: %s expected %d got %d", ErrSequenceGap, aggregateID, expectedSeq, evt.Seq)
			}
			next, err := fold(result.State, evt)
			if err != nil {
				return result, fmt.Errorf("fold %s seq %d: %w", evt.Type, evt.Seq, err)
			}
			result.State = next
			result.LastSeq = evt.Seq
			result.Applied++
		}
		if len(events) < pageSize {
			return result, nil
		}
	}
}

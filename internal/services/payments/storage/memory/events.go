package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
	"github.com/louisbranch/paysaga/internal/services/payments/saga"
	"github.com/louisbranch/paysaga/internal/services/payments/storage"
)

var (
	_ storage.EventStore      = (*Store)(nil)
	_ storage.ProjectionStore = (*Store)(nil)
	_ storage.CheckpointStore = (*Store)(nil)
	_ saga.Store              = (*Store)(nil)
)

// Store holds events, saga instances, read models and checkpoints in maps.
// It is safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	streams map[string][]event.Event
	log     []event.Event

	sagas sagaTable

	payments    map[string]storage.PaymentView
	customers   map[string]storage.CustomerView
	settlements map[string]storage.SettlementView
	checkpoints map[string]uint64
}

// New returns an empty store.
func New() *Store {
	s := &Store{streams: make(map[string][]event.Event)}
	s.sagas.init()
	s.resetViews()
	return s
}

// AppendEvents appends to one stream when its version equals expectedVersion.
func (s *Store) AppendEvents(ctx context.Context, aggregateID string, expectedVersion uint64, events []event.Event) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	aggregateID = strings.TrimSpace(aggregateID)
	if aggregateID == "" {
		return nil, fmt.Errorf("aggregate id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[aggregateID]
	actual := uint64(len(stream))
	if actual != expectedVersion {
		return nil, &storage.ConflictError{AggregateID: aggregateID, Expected: expectedVersion, Actual: actual}
	}
	stored := make([]event.Event, 0, len(events))
	for i, evt := range events {
		if evt.AggregateID != aggregateID {
			return nil, fmt.Errorf("event %d addresses %s, not %s", i, evt.AggregateID, aggregateID)
		}
		evt.Seq = actual + uint64(i) + 1
		evt.Position = uint64(len(s.log) + i + 1)
		evt.PayloadJSON = append([]byte(nil), evt.PayloadJSON...)
		stored = append(stored, evt)
	}
	s.streams[aggregateID] = append(stream, stored...)
	s.log = append(s.log, stored...)
	return append([]event.Event(nil), stored...), nil
}

// ListEvents returns up to limit events of one stream after afterSeq.
func (s *Store) ListEvents(ctx context.Context, aggregateID string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	stream := s.streams[aggregateID]
	if afterSeq >= uint64(len(stream)) {
		return nil, nil
	}
	return page(stream[afterSeq:], limit), nil
}

// ListAllEvents returns up to limit events after afterPosition.
func (s *Store) ListAllEvents(ctx context.Context, afterPosition uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if afterPosition >= uint64(len(s.log)) {
		return nil, nil
	}
	return page(s.log[afterPosition:], limit), nil
}

// AggregateVersion returns the last sequence of a stream.
func (s *Store) AggregateVersion(ctx context.Context, aggregateID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.streams[aggregateID])), nil
}

func page(events []event.Event, limit int) []event.Event {
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	out := make([]event.Event, len(events))
	copy(out, events)
	return out
}

package projection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
	"github.com/louisbranch/paysaga/internal/services/payments/storage"
)

// SubscriberName identifies the projection applier on the dispatch bus.
const SubscriberName = "projections"

// ErrStoreRequired indicates a missing projection store.
var ErrStoreRequired = errors.New("projection store is required")

// Applier applies events to the read models.
type Applier struct {
	// Store writes payment, customer and settlement rows.
	Store storage.ProjectionStore
	// Checkpoints records the last global position applied by Rebuild and
	// Catchup. Optional.
	Checkpoints storage.CheckpointStore
	Logger      *zap.Logger
}

// Name identifies the applier as a dispatch subscriber.
func (a *Applier) Name() string {
	return SubscriberName
}

// PartitionKey serializes events that write the same row. Every event of one
// stream maps to one row, so per-stream order is kept.
func (a *Applier) PartitionKey(evt event.Event) string {
	if h, ok := handlers[evt.Type]; ok {
		if key, err := h.key(evt); err == nil {
			return key
		}
	}
	return evt.AggregateID
}

// HandleEvent applies one delivered event.
func (a *Applier) HandleEvent(ctx context.Context, evt event.Event) error {
	return a.Apply(ctx, evt)
}

// Apply routes one event to its handler. Unprojected types are skipped.
func (a *Applier) Apply(ctx context.Context, evt event.Event) error {
	if a == nil || a.Store == nil {
		return ErrStoreRequired
	}
	h, ok := handlers[evt.Type]
	if !ok {
		return nil
	}
	if _, err := h.key(evt); err != nil {
		return err
	}
	if err := h.apply(a, ctx, evt); err != nil {
		return fmt.Errorf("apply %s %s: %w", evt.Type, evt.ID(), err)
	}
	return nil
}

func (a *Applier) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

// ensureTimestamp keeps projections in UTC and tolerates events without time.
func ensureTimestamp(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now().UTC()
	}
	return ts.UTC()
}

// loadPayment returns the stored row or a fresh one keyed by authorizationID.
func (a *Applier) loadPayment(ctx context.Context, authorizationID string) (storage.PaymentView, error) {
	view, err := a.Store.GetPayment(ctx, authorizationID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.PaymentView{AuthorizationID: authorizationID}, nil
	}
	if err != nil {
		return storage.PaymentView{}, fmt.Errorf("get payment: %w", err)
	}
	return view, nil
}

func (a *Applier) loadCustomer(ctx context.Context, customerID string) (storage.CustomerView, error) {
	view, err := a.Store.GetCustomer(ctx, customerID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.CustomerView{CustomerID: customerID}, nil
	}
	if err != nil {
		return storage.CustomerView{}, fmt.Errorf("get customer: %w", err)
	}
	return view, nil
}

func (a *Applier) loadSettlement(ctx context.Context, settlementID string) (storage.SettlementView, error) {
	view, err := a.Store.GetSettlement(ctx, settlementID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.SettlementView{SettlementID: settlementID}, nil
	}
	if err != nil {
		return storage.SettlementView{}, fmt.Errorf("get settlement: %w", err)
	}
	return view, nil
}

// advance reports whether evt is newer than the watermark and moves it.
func advance(watermark *uint64, evt event.Event) bool {
	if evt.Seq != 0 && evt.Seq <= *watermark {
		return false
	}
	*watermark = evt.Seq
	return true
}

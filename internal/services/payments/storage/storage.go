package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
)

var (
	// ErrNotFound indicates a missing record.
	ErrNotFound = errors.New("record not found")
	// ErrConcurrencyConflict indicates a stale expected version or revision.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// ConflictError reports the versions involved in a rejected append.
type ConflictError struct {
	AggregateID string
	Expected    uint64
	Actual      uint64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict on %s: expected version %d, actual %d", e.AggregateID, e.Expected, e.Actual)
}

// Is matches ErrConcurrencyConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConcurrencyConflict
}

// EventStore persists aggregate streams.
type EventStore interface {
	// AppendEvents atomically appends events to one aggregate stream when its
	// current version equals expectedVersion. Stored events carry their assigned
	// Seq and Position. A mismatch returns a *ConflictError and writes nothing.
	AppendEvents(ctx context.Context, aggregateID string, expectedVersion uint64, events []event.Event) ([]event.Event, error)
	// ListEvents returns up to limit events of one stream with Seq > afterSeq.
	ListEvents(ctx context.Context, aggregateID string, afterSeq uint64, limit int) ([]event.Event, error)
	// ListAllEvents returns up to limit events of every stream with Position > afterPosition.
	ListAllEvents(ctx context.Context, afterPosition uint64, limit int) ([]event.Event, error)
	// AggregateVersion returns the last Seq of a stream, zero when empty.
	AggregateVersion(ctx context.Context, aggregateID string) (uint64, error)
}

// PaymentView is the denormalized state of one payment, keyed by authorization id.
type PaymentView struct {
	AuthorizationID     string
	CustomerID          string
	MerchantID          string
	Amount              int64
	Currency            string
	AuthorizationStatus string
	DeclineReason       string
	VoidReason          string
	ProcessingID        string
	ProcessingStatus    string
	ProcessingReference string
	ProcessingReason    string
	SettlementID        string
	SettlementStatus    string
	Fee                 int64
	Net                 int64
	SettlementReason    string
	// Last applied sequence per source stream; older or repeated events are skipped.
	AuthorizationSeq uint64
	ProcessingSeq    uint64
	SettlementSeq    uint64
	UpdatedAt        time.Time
}

// PaymentMethodView is one stored card reference.
type PaymentMethodView struct {
	Fingerprint string
	Brand       string
	Last4       string
	AddedAt     time.Time
}

// CustomerView is the denormalized state of one customer.
type CustomerView struct {
	CustomerID     string
	Name           string
	Email          string
	PaymentMethods []PaymentMethodView
	RegisteredAt   time.Time
	Seq            uint64
	UpdatedAt      time.Time
}

// SettlementView is the denormalized state of one settlement.
type SettlementView struct {
	SettlementID    string
	AuthorizationID string
	MerchantID      string
	Amount          int64
	Fee             int64
	Net             int64
	Currency        string
	Status          string
	Reference       string
	Reason          string
	Seq             uint64
	UpdatedAt       time.Time
}

// ProjectionStore persists read models. Every write is a full-row upsert.
type ProjectionStore interface {
	GetPayment(ctx context.Context, authorizationID string) (PaymentView, error)
	PutPayment(ctx context.Context, view PaymentView) error
	GetCustomer(ctx context.Context, customerID string) (CustomerView, error)
	GetCustomerByEmail(ctx context.Context, email string) (CustomerView, error)
	PutCustomer(ctx context.Context, view CustomerView) error
	GetSettlement(ctx context.Context, settlementID string) (SettlementView, error)
	PutSettlement(ctx context.Context, view SettlementView) error
	ListSettlementsByMerchant(ctx context.Context, merchantID string) ([]SettlementView, error)
	// ResetProjections deletes every read model row and checkpoint.
	ResetProjections(ctx context.Context) error
}

// CheckpointStore tracks the last applied global position per projection.
type CheckpointStore interface {
	GetCheckpoint(ctx context.Context, name string) (uint64, error)
	SaveCheckpoint(ctx context.Context, name string, position uint64) error
}

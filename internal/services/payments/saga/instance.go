package saga

import (
	"slices"
	"time"

	"github.com/louisbranch/paysaga/internal/platform/timeouts"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/command"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/money"
)

// State is a saga lifecycle state.
type State string

const (
	StateNone              State = ""
	StateStarted           State = "STARTED"
	StateAuthorized        State = "AUTHORIZED"
	StateProcessingPending State = "PROCESSING_PENDING"
	StateProcessed         State = "PROCESSED"
	StateSettlementPending State = "SETTLEMENT_PENDING"
	StateCompleted         State = "COMPLETED"
	StateDeclined          State = "DECLINED"
	StateProcessingFailed  State = "PROCESSING_FAILED"
	StateSettlementFailed  State = "SETTLEMENT_FAILED"
	StateTimeout           State = "TIMEOUT"
	StateCompensating      State = "COMPENSATING"
	StateFailed            State = "FAILED"
)

// Terminal reports whether s is a final state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateDeclined || s == StateFailed
}

// Config holds saga deadlines.
type Config struct {
	// Deadline bounds the forward path, from leaving STARTED to COMPLETED.
	Deadline time.Duration
	// CompensationDeadline bounds the wait for authorization.voided.
	CompensationDeadline time.Duration
}

// DefaultConfig returns the platform deadlines.
func DefaultConfig() Config {
	return Config{
		Deadline:             timeouts.SagaDeadline,
		CompensationDeadline: timeouts.CompensationDeadline,
	}
}

// Transition is one audited state change.
type Transition struct {
	From    State     `json:"from"`
	To      State     `json:"to"`
	Trigger string    `json:"trigger"`
	At      time.Time `json:"at"`
}

// Instance is the persisted state of one payment saga.
type Instance struct {
	CorrelationID   string `json:"correlation_id"`
	State           State  `json:"state"`
	AuthorizationID string `json:"authorization_id"`
	ProcessingID    string `json:"processing_id,omitempty"`
	SettlementID    string `json:"settlement_id,omitempty"`

	CustomerID string       `json:"customer_id,omitempty"`
	MerchantID string       `json:"merchant_id,omitempty"`
	Amount     money.Amount `json:"amount"`
	Currency   string       `json:"currency,omitempty"`

	// Deadline is zero while no timer is armed.
	Deadline time.Time `json:"deadline,omitzero"`
	Terminal bool      `json:"terminal"`

	// FailureKind is the state that sent the saga down a failure path.
	FailureKind   State  `json:"failure_kind,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
	// Compensated is true once the authorization void is confirmed.
	Compensated bool `json:"compensated"`

	// Pending holds commands decided but not yet confirmed as delivered.
	Pending []command.Command `json:"pending,omitempty"`
	// Handled holds ids of events already applied, for duplicate detection.
	Handled []string     `json:"handled,omitempty"`
	History []Transition `json:"history,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// Revision is the optimistic concurrency token of the stored row.
	Revision uint64 `json:"-"`
}

// HasHandled reports whether eventID was already applied.
func (i Instance) HasHandled(eventID string) bool {
	return slices.Contains(i.Handled, eventID)
}

// Clone returns a deep copy so reducers never alias slices of their input.
func (i Instance) Clone() Instance {
	i.Pending = slices.Clone(i.Pending)
	i.Handled = slices.Clone(i.Handled)
	i.History = slices.Clone(i.History)
	return i
}

func (i *Instance) transition(to State, trigger string, at time.Time) {
	i.History = append(i.History, Transition{From: i.State, To: to, Trigger: trigger, At: at})
	i.State = to
	i.Terminal = to.Terminal()
	if i.Terminal {
		i.Deadline = time.Time{}
		i.Pending = nil
	}
	i.UpdatedAt = at
}

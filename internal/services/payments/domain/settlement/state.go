package settlement

import "github.com/louisbranch/paysaga/internal/services/payments/domain/money"

// Status is the lifecycle position of a settlement.
type Status string

const (
	StatusNone    Status = ""
	StatusSettled Status = "SETTLED"
	StatusFailed  Status = "FAILED"
)

// State is the settlement aggregate state.
type State struct {
	Status          Status
	AuthorizationID string
	ProcessingID    string
	MerchantID      string
	Amount          money.Amount
	Fee             money.Amount
	Net             money.Amount
	Currency        string
	ReferenceID     string
	FailureReason   string
}

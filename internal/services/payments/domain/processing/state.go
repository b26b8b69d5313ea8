package processing

import "github.com/louisbranch/paysaga/internal/services/payments/domain/money"

// Status is the lifecycle position of a processing attempt.
type Status string

const (
	StatusNone      Status = ""
	StatusProcessed Status = "PROCESSED"
	StatusFailed    Status = "FAILED"
)

// State is the processing aggregate state.
type State struct {
	Status          Status
	AuthorizationID string
	MerchantID      string
	Amount          money.Amount
	Currency        string
	ReferenceID     string
	FailureReason   string
}

package authorization

import "github.com/louisbranch/paysaga/internal/services/payments/domain/money"

// Status is the lifecycle position of an authorization.
type Status string

const (
	StatusNone       Status = ""
	StatusAuthorized Status = "AUTHORIZED"
	StatusDeclined   Status = "DECLINED"
	StatusVoided     Status = "VOIDED"
)

// State is the authorization aggregate state.
type State struct {
	Status        Status
	CustomerID    string
	MerchantID    string
	Amount        money.Amount
	Currency      string
	DeclineReason string
	VoidReason    string
}

// Package risk evaluates whether an authorization request may proceed.
//
// Scoring is pluggable; the authorization aggregate only branches on the
// Approved flag and records the reason code of a decline.
package risk

import (
	"strings"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/money"
)

// Reason codes produced by the built-in rules.
const (
	ReasonAmountOverLimit = "AMOUNT_OVER_RISK_LIMIT"
	ReasonCustomerBlocked = "CUSTOMER_BLOCKED"
	ReasonMerchantBlocked = "MERCHANT_BLOCKED"
	ReasonCurrencyBlocked = "CURRENCY_NOT_ACCEPTED"
)

// Request is the input to a risk evaluation.
type Request struct {
	AuthorizationID string
	CustomerID      string
	MerchantID      string
	Amount          money.Amount
	Currency        string
}

// Decision is the result of a risk evaluation.
type Decision struct {
	Approved   bool
	ReasonCode string
}

// Approve is the approving decision.
func Approve() Decision { return Decision{Approved: true} }

// Decline returns a declining decision with reason.
func Decline(reason string) Decision { return Decision{ReasonCode: reason} }

// Evaluator scores an authorization request.
type Evaluator interface {
	Evaluate(req Request) Decision
}

// EvaluatorFunc adapts a function into an Evaluator.
type EvaluatorFunc func(req Request) Decision

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(req Request) Decision {
	return f(req)
}

// ApproveAll approves every request.
var ApproveAll = EvaluatorFunc(func(Request) Decision { return Approve() })

// Rules declines requests that match static block lists or exceed a limit.
// Zero values approve everything.
type Rules struct {
	// Limit declines amounts strictly above it when positive.
	Limit             money.Amount
	BlockedCustomers  []string
	BlockedMerchants  []string
	AllowedCurrencies []string
}

// Evaluate applies the rules in a fixed order and returns the first decline.
func (r Rules) Evaluate(req Request) Decision {
	if contains(r.BlockedCustomers, req.CustomerID) {
		return Decline(ReasonCustomerBlocked)
	}
	if contains(r.BlockedMerchants, req.MerchantID) {
		return Decline(ReasonMerchantBlocked)
	}
	if len(r.AllowedCurrencies) > 0 && !contains(r.AllowedCurrencies, req.Currency) {
		return Decline(ReasonCurrencyBlocked)
	}
	if r.Limit > 0 && req.Amount > r.Limit {
		return Decline(ReasonAmountOverLimit)
	}
	return Approve()
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return true
		}
	}
	return false
}

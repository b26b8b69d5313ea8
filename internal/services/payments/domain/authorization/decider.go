package authorization

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/command"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/money"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/risk"
)

// AggregateType tags authorization streams.
const AggregateType = "authorization"

const (
	CommandTypeAuthorize command.Type = "authorization.authorize"
	CommandTypeVoid      command.Type = "authorization.void"
	EventTypeAuthorized  event.Type   = "payment.authorized"
	EventTypeDeclined    event.Type   = "payment.authorization_declined"
	EventTypeVoided      event.Type   = "authorization.voided"

	RejectionCodeAlreadyExists = "AUTHORIZATION_ALREADY_EXISTS"
	RejectionCodeAlreadyVoided = "AUTHORIZATION_ALREADY_VOIDED"

	rejectionCodeNotFound           = "AUTHORIZATION_NOT_FOUND"
	rejectionCodeNotVoidable        = "AUTHORIZATION_NOT_VOIDABLE"
	rejectionCodeAmountInvalid      = "AUTHORIZATION_AMOUNT_INVALID"
	rejectionCodeAmountOverCeiling  = "AUTHORIZATION_AMOUNT_OVER_CEILING"
	rejectionCodeCurrencyInvalid    = "AUTHORIZATION_CURRENCY_INVALID"
	rejectionCodeCustomerIDRequired = "AUTHORIZATION_CUSTOMER_ID_REQUIRED"
	rejectionCodeMerchantIDRequired = "AUTHORIZATION_MERCHANT_ID_REQUIRED"
	rejectionCodeVoidReasonRequired = "AUTHORIZATION_VOID_REASON_REQUIRED"

	declineReasonUnspecified = "RISK_DECLINED"
)

// Decider decides authorization commands.
type Decider struct {
	// Ceiling is the exclusive upper bound for an authorized amount; zero disables it.
	Ceiling money.Amount
	// Risk defaults to approving every request.
	Risk risk.Evaluator
}

// Decide returns the decision for an authorization command against current state.
func (d Decider) Decide(state State, cmd command.Command, now func() time.Time) command.Decision {
	if now == nil {
		now = time.Now
	}
	switch cmd.Type {
	case CommandTypeAuthorize:
		return d.decideAuthorize(state, cmd, now)
	case CommandTypeVoid:
		return decideVoid(state, cmd, now)
	default:
		return command.Reject(command.Rejection{Code: command.RejectionCodeCommandTypeUnsupported, Message: "command type is not supported by authorization"})
	}
}

func (d Decider) decideAuthorize(state State, cmd command.Command, now func() time.Time) command.Decision {
	if state.Status != StatusNone {
		return command.Reject(command.Rejection{Code: RejectionCodeAlreadyExists, Message: "authorization already exists"})
	}
	var payload AuthorizePayload
	if err := json.Unmarshal(cmd.PayloadJSON, &payload); err != nil {
		return command.Reject(command.Rejection{Code: command.RejectionCodePayloadDecodeFailed, Message: err.Error()})
	}
	amount := money.Amount(payload.Amount)
	if amount <= 0 {
		return command.Reject(command.Rejection{Code: rejectionCodeAmountInvalid, Message: "amount must be greater than zero"})
	}
	if d.Ceiling > 0 && amount >= d.Ceiling {
		return command.Reject(command.Rejection{Code: rejectionCodeAmountOverCeiling, Message: "amount must be below " + d.Ceiling.String()})
	}
	currency, err := money.NormalizeCurrency(payload.Currency)
	if err != nil {
		return command.Reject(command.Rejection{Code: rejectionCodeCurrencyInvalid, Message: err.Error()})
	}
	customerID := strings.TrimSpace(payload.CustomerID)
	if customerID == "" {
		return command.Reject(command.Rejection{Code: rejectionCodeCustomerIDRequired, Message: "customer id is required"})
	}
	merchantID := strings.TrimSpace(payload.MerchantID)
	if merchantID == "" {
		return command.Reject(command.Rejection{Code: rejectionCodeMerchantIDRequired, Message: "merchant id is required"})
	}

	evaluator := d.Risk
	if evaluator == nil {
		evaluator = risk.ApproveAll
	}
	verdict := evaluator.Evaluate(risk.Request{
		AuthorizationID: cmd.AggregateID,
		CustomerID:      customerID,
		MerchantID:      merchantID,
		Amount:          amount,
		Currency:        currency,
	})
	if !verdict.Approved {
		reason := strings.TrimSpace(verdict.ReasonCode)
		if reason == "" {
			reason = declineReasonUnspecified
		}
		payloadJSON, _ := json.Marshal(DeclinedPayload{
			CustomerID: customerID,
			MerchantID: merchantID,
			Amount:     int64(amount),
			Currency:   currency,
			ReasonCode: reason,
		})
		return command.Accept(command.NewEvent(cmd, EventTypeDeclined, AggregateType, payloadJSON, now()))
	}
	payloadJSON, _ := json.Marshal(AuthorizedPayload{
		CustomerID: customerID,
		MerchantID: merchantID,
		Amount:     int64(amount),
		Currency:   currency,
	})
	return command.Accept(command.NewEvent(cmd, EventTypeAuthorized, AggregateType, payloadJSON, now()))
}

func decideVoid(state State, cmd command.Command, now func() time.Time) command.Decision {
	switch state.Status {
	case StatusNone:
		return command.Reject(command.Rejection{Code: rejectionCodeNotFound, Message: "authorization not found"})
	case StatusVoided:
		return command.Reject(command.Rejection{Code: RejectionCodeAlreadyVoided, Message: "authorization already voided"})
	case StatusAuthorized:
	default:
		return command.Reject(command.Rejection{Code: rejectionCodeNotVoidable, Message: "only an authorized hold can be voided"})
	}
	var payload VoidPayload
	if err := json.Unmarshal(cmd.PayloadJSON, &payload); err != nil {
		return command.Reject(command.Rejection{Code: command.RejectionCodePayloadDecodeFailed, Message: err.Error()})
	}
	reason := strings.TrimSpace(payload.Reason)
	if reason == "" {
		return command.Reject(command.Rejection{Code: rejectionCodeVoidReasonRequired, Message: "void reason is required"})
	}
	payloadJSON, _ := json.Marshal(VoidedPayload{Reason: reason})
	return command.Accept(command.NewEvent(cmd, EventTypeVoided, AggregateType, payloadJSON, now()))
}

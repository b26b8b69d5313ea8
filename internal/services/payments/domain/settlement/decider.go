package settlement

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/command"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/money"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/outcome"
)

// AggregateType tags settlement streams.
const AggregateType = "settlement"

const (
	CommandTypeSettle command.Type = "settlement.settle"
	EventTypeSettled  event.Type   = "payment.settled"
	EventTypeFailed   event.Type   = "settlement.failed"

	RejectionCodeAlreadyExists = "SETTLEMENT_ALREADY_EXISTS"

	rejectionCodeAmountInvalid           = "SETTLEMENT_AMOUNT_INVALID"
	rejectionCodeMerchantIDRequired      = "SETTLEMENT_MERCHANT_ID_REQUIRED"
	rejectionCodeAuthorizationIDRequired = "SETTLEMENT_AUTHORIZATION_ID_REQUIRED"
	rejectionCodeCurrencyInvalid         = "SETTLEMENT_CURRENCY_INVALID"
	rejectionCodeFeeExceedsAmount        = "SETTLEMENT_FEE_EXCEEDS_AMOUNT"

	reasonUnspecified = "settlement declined"
)

// Decider decides settlement commands.
type Decider struct {
	Fees money.FeePolicy
	// Provider defaults to approving every settlement.
	Provider outcome.Provider
}

// Decide returns the decision for a settlement command against current state.
func (d Decider) Decide(state State, cmd command.Command, now func() time.Time) command.Decision {
	if now == nil {
		now = time.Now
	}
	if cmd.Type != CommandTypeSettle {
		return command.Reject(command.Rejection{Code: command.RejectionCodeCommandTypeUnsupported, Message: "command type is not supported by settlement"})
	}
	if state.Status != StatusNone {
		return command.Reject(command.Rejection{Code: RejectionCodeAlreadyExists, Message: "payment already settled"})
	}
	var payload SettlePayload
	if err := json.Unmarshal(cmd.PayloadJSON, &payload); err != nil {
		return command.Reject(command.Rejection{Code: command.RejectionCodePayloadDecodeFailed, Message: err.Error()})
	}
	amount := money.Amount(payload.Amount)
	if amount <= 0 {
		return command.Reject(command.Rejection{Code: rejectionCodeAmountInvalid, Message: "amount must be greater than zero"})
	}
	merchantID := strings.TrimSpace(payload.MerchantID)
	if merchantID == "" {
		return command.Reject(command.Rejection{Code: rejectionCodeMerchantIDRequired, Message: "merchant id is required"})
	}
	authorizationID := strings.TrimSpace(payload.AuthorizationID)
	if authorizationID == "" {
		return command.Reject(command.Rejection{Code: rejectionCodeAuthorizationIDRequired, Message: "authorization id is required"})
	}
	currency, err := money.NormalizeCurrency(payload.Currency)
	if err != nil {
		return command.Reject(command.Rejection{Code: rejectionCodeCurrencyInvalid, Message: err.Error()})
	}
	fee, net := d.Fees.Apply(amount)
	if net < 0 {
		return command.Reject(command.Rejection{Code: rejectionCodeFeeExceedsAmount, Message: "fee " + fee.String() + " exceeds amount " + amount.String()})
	}
	processingID := strings.TrimSpace(payload.ProcessingID)

	provider := d.Provider
	if provider == nil {
		provider = outcome.Approving{}
	}
	result, err := provider.Evaluate(amount, outcome.Context{
		Stage:           outcome.StageSettlement,
		AggregateID:     cmd.AggregateID,
		AuthorizationID: authorizationID,
		MerchantID:      merchantID,
		Currency:        currency,
	})
	if err != nil {
		result = outcome.Result{Reason: "settlement error: " + err.Error()}
	}
	if !result.Approved {
		reason := strings.TrimSpace(result.Reason)
		if reason == "" {
			reason = reasonUnspecified
		}
		payloadJSON, _ := json.Marshal(FailedPayload{
			AuthorizationID: authorizationID,
			ProcessingID:    processingID,
			MerchantID:      merchantID,
			Amount:          int64(amount),
			Currency:        currency,
			Reason:          reason,
		})
		return command.Accept(command.NewEvent(cmd, EventTypeFailed, AggregateType, payloadJSON, now()))
	}
	payloadJSON, _ := json.Marshal(SettledPayload{
		AuthorizationID: authorizationID,
		ProcessingID:    processingID,
		MerchantID:      merchantID,
		Amount:          int64(amount),
		Fee:             int64(fee),
		Net:             int64(net),
		Currency:        currency,
		ReferenceID:     result.ReferenceID,
	})
	return command.Accept(command.NewEvent(cmd, EventTypeSettled, AggregateType, payloadJSON, now()))
}

package processing

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/command"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/money"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/outcome"
)

// AggregateType tags processing streams.
const AggregateType = "processing"

const (
	CommandTypeProcess command.Type = "processing.process"
	EventTypeProcessed event.Type   = "payment.processed"
	EventTypeFailed    event.Type   = "payment.processing_failed"

	RejectionCodeAlreadyExists = "PROCESSING_ALREADY_EXISTS"

	rejectionCodeAmountInvalid           = "PROCESSING_AMOUNT_INVALID"
	rejectionCodeAuthorizationIDRequired = "PROCESSING_AUTHORIZATION_ID_REQUIRED"
	rejectionCodeCurrencyInvalid         = "PROCESSING_CURRENCY_INVALID"

	reasonUnspecified = "processing declined"
)

// Decider decides processing commands.
type Decider struct {
	// Provider defaults to approving every attempt.
	Provider outcome.Provider
}

// Decide returns the decision for a processing command against current state.
func (d Decider) Decide(state State, cmd command.Command, now func() time.Time) command.Decision {
	if now == nil {
		now = time.Now
	}
	if cmd.Type != CommandTypeProcess {
		return command.Reject(command.Rejection{Code: command.RejectionCodeCommandTypeUnsupported, Message: "command type is not supported by processing"})
	}
	if state.Status != StatusNone {
		return command.Reject(command.Rejection{Code: RejectionCodeAlreadyExists, Message: "payment already processed"})
	}
	var payload ProcessPayload
	if err := json.Unmarshal(cmd.PayloadJSON, &payload); err != nil {
		return command.Reject(command.Rejection{Code: command.RejectionCodePayloadDecodeFailed, Message: err.Error()})
	}
	amount := money.Amount(payload.Amount)
	if amount <= 0 {
		return command.Reject(command.Rejection{Code: rejectionCodeAmountInvalid, Message: "amount must be greater than zero"})
	}
	authorizationID := strings.TrimSpace(payload.AuthorizationID)
	if authorizationID == "" {
		return command.Reject(command.Rejection{Code: rejectionCodeAuthorizationIDRequired, Message: "authorization id is required"})
	}
	currency, err := money.NormalizeCurrency(payload.Currency)
	if err != nil {
		return command.Reject(command.Rejection{Code: rejectionCodeCurrencyInvalid, Message: err.Error()})
	}
	merchantID := strings.TrimSpace(payload.MerchantID)

	provider := d.Provider
	if provider == nil {
		provider = outcome.Approving{}
	}
	result, err := provider.Evaluate(amount, outcome.Context{
		Stage:           outcome.StageProcessing,
		AggregateID:     cmd.AggregateID,
		AuthorizationID: authorizationID,
		MerchantID:      merchantID,
		Currency:        currency,
	})
	if err != nil {
		result = outcome.Result{Reason: "processor error: " + err.Error()}
	}
	if !result.Approved {
		reason := strings.TrimSpace(result.Reason)
		if reason == "" {
			reason = reasonUnspecified
		}
		payloadJSON, _ := json.Marshal(FailedPayload{
			AuthorizationID: authorizationID,
			MerchantID:      merchantID,
			Amount:          int64(amount),
			Currency:        currency,
			Reason:          reason,
		})
		return command.Accept(command.NewEvent(cmd, EventTypeFailed, AggregateType, payloadJSON, now()))
	}
	payloadJSON, _ := json.Marshal(ProcessedPayload{
		AuthorizationID: authorizationID,
		MerchantID:      merchantID,
		Amount:          int64(amount),
		Currency:        currency,
		ReferenceID:     result.ReferenceID,
	})
	return command.Accept(command.NewEvent(cmd, EventTypeProcessed, AggregateType, payloadJSON, now()))
}

package processing

import (
	"encoding/json"
	"fmt"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/money"
)

// Fold applies an event to processing state.
func Fold(state State, evt event.Event) (State, error) {
	switch evt.Type {
	case EventTypeProcessed:
		var payload ProcessedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		state.Status = StatusProcessed
		state.AuthorizationID = payload.AuthorizationID
		state.MerchantID = payload.MerchantID
		state.Amount = money.Amount(payload.Amount)
		state.Currency = payload.Currency
		state.ReferenceID = payload.ReferenceID
	case EventTypeFailed:
		var payload FailedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		state.Status = StatusFailed
		state.AuthorizationID = payload.AuthorizationID
		state.MerchantID = payload.MerchantID
		state.Amount = money.Amount(payload.Amount)
		state.Currency = payload.Currency
		state.FailureReason = payload.Reason
	}
	return state, nil
}

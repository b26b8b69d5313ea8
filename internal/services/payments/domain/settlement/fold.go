package settlement

import (
	"encoding/json"
	"fmt"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/money"
)

// Fold applies an event to settlement state.
func Fold(state State, evt event.Event) (State, error) {
	switch evt.Type {
	case EventTypeSettled:
		var payload SettledPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		state.Status = StatusSettled
		state.AuthorizationID = payload.AuthorizationID
		state.ProcessingID = payload.ProcessingID
		state.MerchantID = payload.MerchantID
		state.Amount = money.Amount(payload.Amount)
		state.Fee = money.Amount(payload.Fee)
		state.Net = money.Amount(payload.Net)
		state.Currency = payload.Currency
		state.ReferenceID = payload.ReferenceID
	case EventTypeFailed:
		var payload FailedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		state.Status = StatusFailed
		state.AuthorizationID = payload.AuthorizationID
		state.ProcessingID = payload.ProcessingID
		state.MerchantID = payload.MerchantID
		state.Amount = money.Amount(payload.Amount)
		state.Currency = payload.Currency
		state.FailureReason = payload.Reason
	}
	return state, nil
}

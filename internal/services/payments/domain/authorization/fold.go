package authorization

import (
	"encoding/json"
	"fmt"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/money"
)

// Fold applies an event to authorization state.
func Fold(state State, evt event.Event) (State, error) {
	switch evt.Type {
	case EventTypeAuthorized:
		var payload AuthorizedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		state.Status = StatusAuthorized
		state.CustomerID = payload.CustomerID
		state.MerchantID = payload.MerchantID
		state.Amount = money.Amount(payload.Amount)
		state.Currency = payload.Currency
	case EventTypeDeclined:
		var payload DeclinedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		state.Status = StatusDeclined
		state.CustomerID = payload.CustomerID
		state.MerchantID = payload.MerchantID
		state.Amount = money.Amount(payload.Amount)
		state.Currency = payload.Currency
		state.DeclineReason = payload.ReasonCode
	case EventTypeVoided:
		var payload VoidedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		state.Status = StatusVoided
		state.VoidReason = payload.Reason
	}
	return state, nil
}

package customer

import (
	"encoding/json"
	"fmt"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
)

// Fold applies an event to customer state.
func Fold(state State, evt event.Event) (State, error) {
	switch evt.Type {
	case EventTypeRegistered:
		var payload RegisteredPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		state.Registered = true
		state.Name = payload.Name
		state.Email = payload.Email
	case EventTypePaymentMethodAdded:
		var payload PaymentMethodAddedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		methods := make([]PaymentMethod, 0, len(state.PaymentMethods)+1)
		methods = append(methods, state.PaymentMethods...)
		state.PaymentMethods = append(methods, PaymentMethod{
			Fingerprint: payload.Fingerprint,
			Brand:       payload.Brand,
			Last4:       payload.Last4,
		})
	}
	return state, nil
}

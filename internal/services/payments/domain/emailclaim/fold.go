package emailclaim

import (
	"encoding/json"
	"fmt"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
)

// State is the reservation held on one email.
type State struct {
	Reserved   bool
	CustomerID string
	Email      string
}

// Fold applies an event to reservation state.
func Fold(state State, evt event.Event) (State, error) {
	switch evt.Type {
	case EventTypeReserved:
		var payload ReservedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("decode %s: %w", evt.Type, err)
		}
		state = State{Reserved: true, CustomerID: payload.CustomerID, Email: payload.Email}
	case EventTypeReleased:
		state.Reserved = false
		state.CustomerID = ""
	}
	return state, nil
}

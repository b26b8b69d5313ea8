package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/authorization"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/customer"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/processing"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/settlement"
)

// handlerEntry binds an event type to its row key and apply function.
type handlerEntry struct {
	// key names the row the event updates; it doubles as the partition key.
	key   func(event.Event) (string, error)
	apply func(*Applier, context.Context, event.Event) error
}

var handlers = map[event.Type]handlerEntry{}

func init() {
	handle(customer.EventTypeRegistered, byAggregateID, (*Applier).applyCustomerRegistered)
	handle(customer.EventTypePaymentMethodAdded, byAggregateID, (*Applier).applyPaymentMethodAdded)

	handle(authorization.EventTypeAuthorized, byAggregateID, (*Applier).applyAuthorized)
	handle(authorization.EventTypeDeclined, byAggregateID, (*Applier).applyAuthorizationDeclined)
	handle(authorization.EventTypeVoided, byAggregateID, (*Applier).applyVoided)

	handle(processing.EventTypeProcessed, byAuthorizationID, (*Applier).applyProcessed)
	handle(processing.EventTypeFailed, byAuthorizationID, (*Applier).applyProcessingFailed)

	handle(settlement.EventTypeSettled, byAuthorizationID, (*Applier).applySettled)
	handle(settlement.EventTypeFailed, byAuthorizationID, (*Applier).applySettlementFailed)
}

// handle registers a typed handler; the payload is decoded before fn runs.
func handle[P any](t event.Type, key func(event.Event) (string, error), fn func(*Applier, context.Context, event.Event, P) error) {
	handlers[t] = handlerEntry{
		key: key,
		apply: func(a *Applier, ctx context.Context, evt event.Event) error {
			var payload P
			if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
				return fmt.Errorf("decode %s payload: %w", t, err)
			}
			return fn(a, ctx, evt, payload)
		},
	}
}

// HandledTypes returns the projected event types in lexical order.
func HandledTypes() []event.Type {
	types := make([]event.Type, 0, len(handlers))
	for t := range handlers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func byAggregateID(evt event.Event) (string, error) {
	id := strings.TrimSpace(evt.AggregateID)
	if id == "" {
		return "", fmt.Errorf("%s has no aggregate id", evt.Type)
	}
	return id, nil
}

// byAuthorizationID keys processing and settlement events by the payment they
// belong to.
func byAuthorizationID(evt event.Event) (string, error) {
	var payload struct {
		AuthorizationID string `json:"authorization_id"`
	}
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return "", fmt.Errorf("decode %s payload: %w", evt.Type, err)
	}
	id := strings.TrimSpace(payload.AuthorizationID)
	if id == "" {
		id = strings.TrimSpace(evt.CorrelationID)
	}
	if id == "" {
		return "", fmt.Errorf("%s has no authorization id", evt.Type)
	}
	return id, nil
}

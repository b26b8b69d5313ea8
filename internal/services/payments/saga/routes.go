package saga

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/authorization"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/processing"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/settlement"
)

// CorrelateFunc extracts the correlation id from an event.
type CorrelateFunc func(evt event.Event) (string, error)

// HandlerFunc applies one routed event to an instance.
type HandlerFunc func(inst Instance, evt event.Event, now time.Time, cfg Config) Reduction

// Route binds an event type to its correlation extractor and handler.
type Route struct {
	Correlate CorrelateFunc
	Handle    HandlerFunc
	// Starts marks events allowed to create an instance.
	Starts bool
}

var routes = map[event.Type]Route{
	authorization.EventTypeAuthorized: {Correlate: byAggregateID, Handle: onAuthorized, Starts: true},
	authorization.EventTypeDeclined:   {Correlate: byAggregateID, Handle: onAuthorizationDeclined, Starts: true},
	authorization.EventTypeVoided:     {Correlate: byAggregateID, Handle: onVoided},
	processing.EventTypeProcessed:     {Correlate: byAuthorizationID, Handle: onProcessed},
	processing.EventTypeFailed:        {Correlate: byAuthorizationID, Handle: onProcessingFailed},
	settlement.EventTypeSettled:       {Correlate: byAuthorizationID, Handle: onSettled},
	settlement.EventTypeFailed:        {Correlate: byAuthorizationID, Handle: onSettlementFailed},
}

// RoutedTypes lists the event types the saga consumes.
func RoutedTypes() []event.Type {
	types := make([]event.Type, 0, len(routes))
	for t := range routes {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// CorrelationID resolves the correlation id of a routed event.
func CorrelationID(evt event.Event) (string, bool, error) {
	route, ok := routes[evt.Type]
	if !ok {
		return "", false, nil
	}
	id, err := route.Correlate(evt)
	if err != nil {
		return "", true, err
	}
	return id, true, nil
}

func byAggregateID(evt event.Event) (string, error) {
	id := strings.TrimSpace(evt.AggregateID)
	if id == "" {
		return "", fmt.Errorf("%s has no aggregate id", evt.Type)
	}
	return id, nil
}

func byAuthorizationID(evt event.Event) (string, error) {
	var payload struct {
		AuthorizationID string `json:"authorization_id"`
	}
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return "", fmt.Errorf("decode %s correlation: %w", evt.Type, err)
	}
	if id := strings.TrimSpace(payload.AuthorizationID); id != "" {
		return id, nil
	}
	if id := strings.TrimSpace(evt.CorrelationID); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("%s carries no authorization id", evt.Type)
}

package command

import (
	"time"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
)

// NewEvent builds an event by copying the shared envelope fields from a command.
// Callers supply the event type, owning aggregate type, payload, and timestamp.
func NewEvent(cmd Command, eventType event.Type, aggregateType string, payloadJSON []byte, now time.Time) event.Event {
	return event.Event{
		AggregateID:   cmd.AggregateID,
		AggregateType: aggregateType,
		Type:          eventType,
		Timestamp:     now.UTC(),
		CorrelationID: cmd.CorrelationID,
		CausationID:   cmd.ID,
		PayloadJSON:   payloadJSON,
	}
}

package settlement

import (
	"errors"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/aggregate"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/command"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
)

// RegisterCommands registers settlement commands with the shared registry.
func RegisterCommands(registry *command.Registry) error {
	if registry == nil {
		return errors.New("command registry is required")
	}
	return registry.Register(command.Definition{
		Type:            CommandTypeSettle,
		AggregateType:   AggregateType,
		ValidatePayload: aggregate.DecodePayload[SettlePayload],
	})
}

// RegisterEvents registers settlement events with the shared registry.
func RegisterEvents(registry *event.Registry) error {
	if registry == nil {
		return errors.New("event registry is required")
	}
	if err := registry.Register(event.Definition{
		Type:            EventTypeSettled,
		AggregateType:   AggregateType,
		ValidatePayload: aggregate.DecodePayload[SettledPayload],
	}); err != nil {
		return err
	}
	return registry.Register(event.Definition{
		Type:            EventTypeFailed,
		AggregateType:   AggregateType,
		ValidatePayload: aggregate.DecodePayload[FailedPayload],
	})
}

// Definition adapts a decider into an aggregate definition.
func Definition(decider Decider) aggregate.Definition {
	return aggregate.Typed(AggregateType, Fold, decider.Decide)
}

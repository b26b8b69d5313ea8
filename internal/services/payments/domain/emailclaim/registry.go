package emailclaim

import (
	"errors"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/aggregate"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/command"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
)

// RegisterCommands registers reservation commands with the shared registry.
func RegisterCommands(registry *command.Registry) error {
	if registry == nil {
		return errors.New("command registry is required")
	}
	if err := registry.Register(command.Definition{
		Type:            CommandTypeReserve,
		AggregateType:   AggregateType,
		ValidatePayload: aggregate.DecodePayload[ReservePayload],
	}); err != nil {
		return err
	}
	return registry.Register(command.Definition{
		Type:            CommandTypeRelease,
		AggregateType:   AggregateType,
		ValidatePayload: aggregate.DecodePayload[ReleasePayload],
	})
}

// RegisterEvents registers reservation events with the shared registry.
func RegisterEvents(registry *event.Registry) error {
	if registry == nil {
		return errors.New("event registry is required")
	}
	if err := registry.Register(event.Definition{
		Type:            EventTypeReserved,
		AggregateType:   AggregateType,
		ValidatePayload: aggregate.DecodePayload[ReservedPayload],
	}); err != nil {
		return err
	}
	return registry.Register(event.Definition{
		Type:            EventTypeReleased,
		AggregateType:   AggregateType,
		ValidatePayload: aggregate.DecodePayload[ReleasedPayload],
	})
}

// Definition adapts the decider into an aggregate definition.
func Definition() aggregate.Definition {
	return aggregate.Typed(AggregateType, Fold, Decider{}.Decide)
}

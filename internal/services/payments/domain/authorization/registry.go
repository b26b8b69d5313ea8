package authorization

import (
	"errors"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/aggregate"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/command"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
)

// RegisterCommands registers authorization commands with the shared registry.
func RegisterCommands(registry *command.Registry) error {
	if registry == nil {
		return errors.New("command registry is required")
	}
	if err := registry.Register(command.Definition{
		Type:            CommandTypeAuthorize,
		AggregateType:   AggregateType,
		ValidatePayload: aggregate.DecodePayload[AuthorizePayload],
	}); err != nil {
		return err
	}
	return registry.Register(command.Definition{
		Type:            CommandTypeVoid,
		AggregateType:   AggregateType,
		ValidatePayload: aggregate.DecodePayload[VoidPayload],
	})
}

// RegisterEvents registers authorization events with the shared registry.
func RegisterEvents(registry *event.Registry) error {
	if registry == nil {
		return errors.New("event registry is required")
	}
	for _, def := range []event.Definition{
		{Type: EventTypeAuthorized, AggregateType: AggregateType, ValidatePayload: aggregate.DecodePayload[AuthorizedPayload]},
		{Type: EventTypeDeclined, AggregateType: AggregateType, ValidatePayload: aggregate.DecodePayload[DeclinedPayload]},
		{Type: EventTypeVoided, AggregateType: AggregateType, ValidatePayload: aggregate.DecodePayload[VoidedPayload]},
	} {
		if err := registry.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// Definition adapts a decider into an aggregate definition.
func Definition(decider Decider) aggregate.Definition {
	return aggregate.Typed(AggregateType, Fold, decider.Decide)
}

package customer

import (
	"errors"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/aggregate"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/command"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
)

// RegisterCommands registers customer commands with the shared registry.
func RegisterCommands(registry *command.Registry) error {
	if registry == nil {
		return errors.New("command registry is required")
	}
	if err := registry.Register(command.Definition{
		Type:            CommandTypeRegister,
		AggregateType:   AggregateType,
		ValidatePayload: aggregate.DecodePayload[RegisterPayload],
	}); err != nil {
		return err
	}
	return registry.Register(command.Definition{
		Type:            CommandTypeAddPaymentMethod,
		AggregateType:   AggregateType,
		ValidatePayload: aggregate.DecodePayload[AddPaymentMethodPayload],
	})
}

// RegisterEvents registers customer events with the shared registry.
func RegisterEvents(registry *event.Registry) error {
	if registry == nil {
		return errors.New("event registry is required")
	}
	if err := registry.Register(event.Definition{
		Type:            EventTypeRegistered,
		AggregateType:   AggregateType,
		ValidatePayload: aggregate.DecodePayload[RegisteredPayload],
	}); err != nil {
		return err
	}
	return registry.Register(event.Definition{
		Type:            EventTypePaymentMethodAdded,
		AggregateType:   AggregateType,
		ValidatePayload: aggregate.DecodePayload[PaymentMethodAddedPayload],
	})
}

// Definition adapts a decider into an aggregate definition.
func Definition(decider Decider) aggregate.Definition {
	return aggregate.Typed(AggregateType, Fold, decider.Decide)
}

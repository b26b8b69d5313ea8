package engine

import (
	"fmt"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/aggregate"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/authorization"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/command"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/customer"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/emailclaim"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/money"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/outcome"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/processing"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/risk"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/settlement"
)

// Dependencies are the collaborators injected into the payment deciders.
type Dependencies struct {
	AuthorizationCeiling money.Amount
	Risk                 risk.Evaluator
	Processor            outcome.Provider
	SettlementRail       outcome.Provider
	Fees                 money.FeePolicy
}

// Registries groups the command, event, and aggregate registries.
type Registries struct {
	Commands   *command.Registry
	Events     *event.Registry
	Aggregates *aggregate.Registry
}

type module struct {
	name             string
	registerCommands func(*command.Registry) error
	registerEvents   func(*event.Registry) error
	definition       aggregate.Definition
}

// BuildRegistries registers every payment aggregate.
func BuildRegistries(deps Dependencies) (Registries, error) {
	if err := deps.Fees.Validate(); err != nil {
		return Registries{}, fmt.Errorf("fee policy: %w", err)
	}
	modules := []module{
		{
			name:             customer.AggregateType,
			registerCommands: customer.RegisterCommands,
			registerEvents:   customer.RegisterEvents,
			definition:       customer.Definition(customer.Decider{}),
		},
		{
			name:             emailclaim.AggregateType,
			registerCommands: emailclaim.RegisterCommands,
			registerEvents:   emailclaim.RegisterEvents,
			definition:       emailclaim.Definition(),
		},
		{
			name:             authorization.AggregateType,
			registerCommands: authorization.RegisterCommands,
			registerEvents:   authorization.RegisterEvents,
			definition:       authorization.Definition(authorization.Decider{Ceiling: deps.AuthorizationCeiling, Risk: deps.Risk}),
		},
		{
			name:             processing.AggregateType,
			registerCommands: processing.RegisterCommands,
			registerEvents:   processing.RegisterEvents,
			definition:       processing.Definition(processing.Decider{Provider: deps.Processor}),
		},
		{
			name:             settlement.AggregateType,
			registerCommands: settlement.RegisterCommands,
			registerEvents:   settlement.RegisterEvents,
			definition:       settlement.Definition(settlement.Decider{Fees: deps.Fees, Provider: deps.SettlementRail}),
		},
	}

	registries := Registries{
		Commands:   command.NewRegistry(),
		Events:     event.NewRegistry(),
		Aggregates: aggregate.NewRegistry(),
	}
	for _, m := range modules {
		if err := m.registerCommands(registries.Commands); err != nil {
			return Registries{}, fmt.Errorf("register %s commands: %w", m.name, err)
		}
		if err := m.registerEvents(registries.Events); err != nil {
			return Registries{}, fmt.Errorf("register %s events: %w", m.name, err)
		}
		if err := registries.Aggregates.Register(m.definition); err != nil {
			return Registries{}, fmt.Errorf("register %s aggregate: %w", m.name, err)
		}
	}
	return registries, nil
}

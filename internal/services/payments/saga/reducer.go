package saga

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/louisbranch/paysaga/internal/platform/id"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/authorization"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/command"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/money"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/processing"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/settlement"
)

// Ignore reasons reported by the reducer.
const (
	IgnoredTerminal   = "late event after terminal state"
	IgnoredDuplicate  = "duplicate delivery"
	IgnoredUnexpected = "event not expected in current state"
	IgnoredUnrouted   = "event type not routed to saga"
	IgnoredMalformed  = "event payload could not be decoded"
	IgnoredNotDue     = "deadline not reached"
	IgnoredNoInstance = "no saga instance for correlation id"
)

const (
	triggerDeadline = "deadline elapsed"
	reasonTimeout   = "timeout"
)

// Reduction is the outcome of applying one input to an instance.
type Reduction struct {
	Instance Instance
	Commands []command.Command
	// Ignored is set when the input changed nothing.
	Ignored string
}

func ignored(inst Instance, reason string) Reduction {
	return Reduction{Instance: inst, Ignored: reason}
}

// Applied reports whether the reduction changed the instance.
func (r Reduction) Applied() bool {
	return r.Ignored == ""
}

// Reduce applies evt to inst. It is pure: the input instance is never mutated
// and the same inputs always yield the same reduction.
func Reduce(inst Instance, evt event.Event, now time.Time, cfg Config) Reduction {
	route, ok := routes[evt.Type]
	if !ok {
		return ignored(inst, IgnoredUnrouted)
	}
	if inst.Terminal {
		return ignored(inst, IgnoredTerminal)
	}
	if inst.HasHandled(evt.ID()) {
		return ignored(inst, IgnoredDuplicate)
	}
	if inst.State == StateNone && !route.Starts {
		return ignored(inst, IgnoredNoInstance)
	}
	now = now.UTC()
	next := inst.Clone()
	if next.State == StateNone {
		next.State = StateStarted
		next.CreatedAt = now
	}
	reduction := route.Handle(next, evt, now, cfg)
	if !reduction.Applied() {
		return ignored(inst, reduction.Ignored)
	}
	reduction.Instance.Handled = append(reduction.Instance.Handled, evt.ID())
	return reduction
}

// Expire fires the deadline of inst when it is due.
func Expire(inst Instance, now time.Time, cfg Config) Reduction {
	if inst.Terminal {
		return ignored(inst, IgnoredTerminal)
	}
	if inst.Deadline.IsZero() || now.Before(inst.Deadline) {
		return ignored(inst, IgnoredNotDue)
	}
	now = now.UTC()
	next := inst.Clone()
	if next.State == StateCompensating {
		// Nothing further can be issued; the void outcome stays unknown.
		next.transition(StateFailed, "compensation unconfirmed", now)
		return Reduction{Instance: next}
	}
	next.transition(StateTimeout, triggerDeadline, now)
	return compensate(next, StateTimeout, reasonTimeout, triggerDeadline, now, cfg)
}

// CommandFailed feeds a command that could not be delivered back into the saga.
// A failed forward command is handled like a business failure of that step; a
// failed void ends the saga without confirmed compensation.
func CommandFailed(inst Instance, cmd command.Command, reason string, now time.Time, cfg Config) Reduction {
	if inst.Terminal {
		return ignored(inst, IgnoredTerminal)
	}
	now = now.UTC()
	next := inst.Clone()
	trigger := fmt.Sprintf("%s failed: %s", cmd.Type, reason)
	switch {
	case cmd.Type == processing.CommandTypeProcess && next.State == StateProcessingPending:
		next.transition(StateProcessingFailed, trigger, now)
		return compensate(next, StateProcessingFailed, reason, cmd.ID, now, cfg)
	case cmd.Type == settlement.CommandTypeSettle && next.State == StateSettlementPending:
		next.transition(StateSettlementFailed, trigger, now)
		return compensate(next, StateSettlementFailed, reason, cmd.ID, now, cfg)
	case cmd.Type == authorization.CommandTypeVoid && next.State == StateCompensating:
		next.transition(StateFailed, trigger, now)
		return Reduction{Instance: next}
	default:
		return ignored(inst, IgnoredUnexpected)
	}
}

func onAuthorized(inst Instance, evt event.Event, now time.Time, cfg Config) Reduction {
	if inst.State != StateStarted {
		return ignored(inst, IgnoredUnexpected)
	}
	var payload authorization.AuthorizedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return ignored(inst, IgnoredMalformed)
	}
	inst.CorrelationID = evt.AggregateID
	inst.AuthorizationID = evt.AggregateID
	inst.ProcessingID = id.Derive(inst.CorrelationID, processing.AggregateType)
	inst.SettlementID = id.Derive(inst.CorrelationID, settlement.AggregateType)
	inst.CustomerID = payload.CustomerID
	inst.MerchantID = payload.MerchantID
	inst.Amount = money.Amount(payload.Amount)
	inst.Currency = payload.Currency

	inst.transition(StateAuthorized, string(evt.Type), now)
	inst.Deadline = now.Add(cfg.Deadline)
	cmd := newCommand(inst, evt, processing.CommandTypeProcess, inst.ProcessingID, processing.ProcessPayload{
		AuthorizationID: inst.AuthorizationID,
		MerchantID:      inst.MerchantID,
		Amount:          int64(inst.Amount),
		Currency:        inst.Currency,
	})
	inst.transition(StateProcessingPending, "issued "+string(cmd.Type), now)
	return Reduction{Instance: inst, Commands: []command.Command{cmd}}
}

func onAuthorizationDeclined(inst Instance, evt event.Event, now time.Time, _ Config) Reduction {
	if inst.State != StateStarted {
		return ignored(inst, IgnoredUnexpected)
	}
	var payload authorization.DeclinedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return ignored(inst, IgnoredMalformed)
	}
	inst.CorrelationID = evt.AggregateID
	inst.AuthorizationID = evt.AggregateID
	inst.CustomerID = payload.CustomerID
	inst.MerchantID = payload.MerchantID
	inst.Amount = money.Amount(payload.Amount)
	inst.Currency = payload.Currency
	inst.FailureKind = StateDeclined
	inst.FailureReason = payload.ReasonCode
	inst.transition(StateDeclined, string(evt.Type), now)
	return Reduction{Instance: inst}
}

func onProcessed(inst Instance, evt event.Event, now time.Time, _ Config) Reduction {
	if inst.State != StateProcessingPending {
		return ignored(inst, IgnoredUnexpected)
	}
	var payload processing.ProcessedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return ignored(inst, IgnoredMalformed)
	}
	inst.ProcessingID = evt.AggregateID
	inst.transition(StateProcessed, string(evt.Type), now)
	cmd := newCommand(inst, evt, settlement.CommandTypeSettle, inst.SettlementID, settlement.SettlePayload{
		AuthorizationID: inst.AuthorizationID,
		ProcessingID:    inst.ProcessingID,
		MerchantID:      inst.MerchantID,
		Amount:          payload.Amount,
		Currency:        payload.Currency,
	})
	inst.transition(StateSettlementPending, "issued "+string(cmd.Type), now)
	return Reduction{Instance: inst, Commands: []command.Command{cmd}}
}

func onProcessingFailed(inst Instance, evt event.Event, now time.Time, cfg Config) Reduction {
	if inst.State != StateProcessingPending {
		return ignored(inst, IgnoredUnexpected)
	}
	var payload processing.FailedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return ignored(inst, IgnoredMalformed)
	}
	inst.ProcessingID = evt.AggregateID
	inst.transition(StateProcessingFailed, string(evt.Type), now)
	return compensate(inst, StateProcessingFailed, payload.Reason, evt.ID(), now, cfg)
}

func onSettled(inst Instance, evt event.Event, now time.Time, _ Config) Reduction {
	if inst.State != StateSettlementPending {
		return ignored(inst, IgnoredUnexpected)
	}
	inst.SettlementID = evt.AggregateID
	inst.transition(StateCompleted, string(evt.Type), now)
	return Reduction{Instance: inst}
}

func onSettlementFailed(inst Instance, evt event.Event, now time.Time, cfg Config) Reduction {
	if inst.State != StateSettlementPending {
		return ignored(inst, IgnoredUnexpected)
	}
	var payload settlement.FailedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return ignored(inst, IgnoredMalformed)
	}
	inst.SettlementID = evt.AggregateID
	inst.transition(StateSettlementFailed, string(evt.Type), now)
	return compensate(inst, StateSettlementFailed, payload.Reason, evt.ID(), now, cfg)
}

func onVoided(inst Instance, evt event.Event, now time.Time, _ Config) Reduction {
	if inst.State != StateCompensating {
		return ignored(inst, IgnoredUnexpected)
	}
	inst.Compensated = true
	inst.transition(StateFailed, string(evt.Type), now)
	return Reduction{Instance: inst}
}

// compensate moves inst to COMPENSATING and issues the single void command.
func compensate(inst Instance, kind State, reason, causationID string, now time.Time, cfg Config) Reduction {
	if reason == "" {
		reason = string(kind)
	}
	inst.FailureKind = kind
	inst.FailureReason = reason
	// Undelivered forward commands must not reach the processor once the
	// saga has decided to compensate.
	inst.Pending = slices.DeleteFunc(inst.Pending, func(cmd command.Command) bool {
		return cmd.Type != authorization.CommandTypeVoid
	})
	cmd := command.Command{
		ID:            id.Derive(inst.CorrelationID, "command/"+string(authorization.CommandTypeVoid)),
		AggregateID:   inst.AuthorizationID,
		Type:          authorization.CommandTypeVoid,
		CorrelationID: inst.CorrelationID,
		CausationID:   causationID,
		PayloadJSON:   mustJSON(authorization.VoidPayload{Reason: reason}),
	}
	inst.transition(StateCompensating, "issued "+string(cmd.Type), now)
	inst.Deadline = now.Add(cfg.CompensationDeadline)
	return Reduction{Instance: inst, Commands: []command.Command{cmd}}
}

// newCommand builds a forward command with an id derived from the correlation
// id, so a re-issued command is recognizably the same command.
func newCommand(inst Instance, cause event.Event, typ command.Type, aggregateID string, payload any) command.Command {
	return command.Command{
		ID:            id.Derive(inst.CorrelationID, "command/"+string(typ)),
		AggregateID:   aggregateID,
		Type:          typ,
		CorrelationID: inst.CorrelationID,
		CausationID:   cause.ID(),
		PayloadJSON:   mustJSON(payload),
	}
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("saga: marshal %T: %v", v, err))
	}
	return data
}

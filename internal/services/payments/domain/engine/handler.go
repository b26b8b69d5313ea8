package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	apperrors "github.com/louisbranch/paysaga/internal/platform/errors"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/aggregate"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/command"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/replay"
	"github.com/louisbranch/paysaga/internal/services/payments/storage"
)

const tracerName = "github.com/louisbranch/paysaga/engine"

// EventStore reads and appends aggregate streams.
type EventStore interface {
	AppendEvents(ctx context.Context, aggregateID string, expectedVersion uint64, events []event.Event) ([]event.Event, error)
	ListEvents(ctx context.Context, aggregateID string, afterSeq uint64, limit int) ([]event.Event, error)
}

// Publisher receives appended events in order.
type Publisher interface {
	Publish(ctx context.Context, events ...event.Event) error
}

// Handler executes commands against event-sourced aggregates.
type Handler struct {
	Commands   *command.Registry
	Events     *event.Registry
	Aggregates *aggregate.Registry
	Store      EventStore
	// Publisher is optional; stores with an outbox deliver on their own.
	Publisher Publisher
	Now       func() time.Time
	Logger    *zap.Logger
	Tracer    trace.Tracer
	Retry     RetryPolicy
}

// Result captures the outcome of one command.
type Result struct {
	Accepted       bool
	RejectedReason string
	Rejections     []command.Rejection
	Events         []event.Event
	// Version is the aggregate version after the command.
	Version uint64
}

// Err returns nil for accepted results and an ErrRejected-wrapping error otherwise.
func (r Result) Err() error {
	if r.Accepted {
		return nil
	}
	meta := make(map[string]string, len(r.Rejections))
	for _, rejection := range r.Rejections {
		meta[rejection.Code] = rejection.Message
	}
	return &apperrors.Error{
		Code:     apperrors.CodeValidationFailed,
		Message:  r.RejectedReason,
		Metadata: meta,
		Cause:    ErrRejected,
	}
}

// HasRejection reports whether the result carries a rejection with code.
func (r Result) HasRejection(code string) bool {
	for _, rejection := range r.Rejections {
		if rejection.Code == code {
			return true
		}
	}
	return false
}

// Load rebuilds aggregate state and version from its stream.
func (h Handler) Load(ctx context.Context, aggregateType, aggregateID string) (any, uint64, error) {
	if h.Aggregates == nil {
		return nil, 0, ErrAggregateRegistryRequired
	}
	if h.Store == nil {
		return nil, 0, ErrEventStoreRequired
	}
	def, ok := h.Aggregates.Get(aggregateType)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrAggregateTypeUnknown, aggregateType)
	}
	result, err := replay.Replay(ctx, h.Store, replay.FoldFunc(def.Fold), aggregateID, def.NewState(), replay.Options{})
	if err != nil {
		return nil, 0, fmt.Errorf("load %s %s: %w", aggregateType, aggregateID, err)
	}
	return result.State, result.LastSeq, nil
}

// Handle runs a single attempt of cmd. Decider rejections come back as a
// non-accepted Result with a nil error; malformed commands return a
// VALIDATION_FAILED error and stale versions a CONCURRENCY_CONFLICT error.
func (h Handler) Handle(ctx context.Context, cmd command.Command) (result Result, err error) {
	ctx, span := h.tracer().Start(ctx, "engine.handle", trace.WithAttributes(
		attribute.String("command.type", string(cmd.Type)),
		attribute.String("aggregate.id", cmd.AggregateID),
		attribute.String("correlation.id", cmd.CorrelationID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
		}
		span.End()
	}()

	if h.Commands == nil {
		return Result{}, ErrCommandRegistryRequired
	}
	cmd, def, err := h.Commands.ValidateForDecision(cmd)
	if err != nil {
		return Result{}, validationError("invalid command", err)
	}
	state, version, err := h.Load(ctx, def.AggregateType, cmd.AggregateID)
	if err != nil {
		return Result{}, systemError("load aggregate", err)
	}
	aggregateDef, _ := h.Aggregates.Get(def.AggregateType)

	decision, err := decide(aggregateDef, state, cmd, h.now())
	if err != nil {
		return Result{}, err
	}
	if decision.Rejected() {
		h.logger().Debug("command rejected",
			zap.String("command_type", string(cmd.Type)),
			zap.String("aggregate_id", cmd.AggregateID),
			zap.String("reason", decision.Reason()))
		return Result{
			RejectedReason: decision.Reason(),
			Rejections:     decision.Rejections,
			Version:        version,
		}, nil
	}

	events := make([]event.Event, 0, len(decision.Events))
	for _, evt := range decision.Events {
		if evt.AggregateID != cmd.AggregateID {
			return Result{}, systemError("decide", fmt.Errorf("event %s targets %s, command targets %s", evt.Type, evt.AggregateID, cmd.AggregateID))
		}
		if h.Events != nil {
			evt, err = h.Events.ValidateForAppend(evt)
			if err != nil {
				return Result{}, systemError("validate event", err)
			}
		}
		events = append(events, evt)
	}

	stored, err := h.Store.AppendEvents(ctx, cmd.AggregateID, version, events)
	if err != nil {
		if errors.Is(err, storage.ErrConcurrencyConflict) {
			return Result{}, apperrors.Wrap(apperrors.CodeConcurrencyConflict, "append events", err)
		}
		return Result{}, systemError("append events", err)
	}
	span.SetAttributes(attribute.Int("events.appended", len(stored)))

	if h.Publisher != nil {
		if err := h.Publisher.Publish(ctx, stored...); err != nil {
			h.logger().Warn("publish appended events",
				zap.String("aggregate_id", cmd.AggregateID),
				zap.Int("count", len(stored)),
				zap.Error(err))
		}
	}
	return Result{
		Accepted: true,
		Events:   stored,
		Version:  version + uint64(len(stored)),
	}, nil
}

func decide(def aggregate.Definition, state any, cmd command.Command, now func() time.Time) (decision command.Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = systemError("decide", fmt.Errorf("%s panicked: %v", cmd.Type, r))
		}
	}()
	decision = def.Decide(state, cmd, now)
	if err := decision.Validate(); err != nil {
		return command.Decision{}, systemError("decide", fmt.Errorf("%s: %w", cmd.Type, err))
	}
	return decision, nil
}

func (h Handler) now() func() time.Time {
	if h.Now != nil {
		return h.Now
	}
	return time.Now
}

func (h Handler) logger() *zap.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return zap.NewNop()
}

func (h Handler) tracer() trace.Tracer {
	if h.Tracer != nil {
		return h.Tracer
	}
	return otel.Tracer(tracerName)
}

package saga

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/authorization"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/command"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/engine"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/processing"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/settlement"
	"github.com/louisbranch/paysaga/internal/services/payments/storage"
)

const (
	// SubscriberName identifies the saga on the dispatch bus.
	SubscriberName = "payment-saga"

	tracerName       = "github.com/louisbranch/paysaga/saga"
	maxSaveAttempts  = 5
	defaultBatchSize = 100
	lockStripes      = 64
)

// ErrStoreRequired indicates a missing saga store.
var ErrStoreRequired = errors.New("saga store is required")

// CommandSubmitter delivers saga commands to the aggregate runtime.
type CommandSubmitter interface {
	Submit(ctx context.Context, cmd command.Command) (engine.Result, error)
}

// idempotentRejections mark a command whose effect already exists.
var idempotentRejections = map[command.Type]string{
	processing.CommandTypeProcess: processing.RejectionCodeAlreadyExists,
	settlement.CommandTypeSettle:  settlement.RejectionCodeAlreadyExists,
	authorization.CommandTypeVoid: authorization.RejectionCodeAlreadyVoided,
}

// Orchestrator runs payment sagas against a store and a command submitter.
type Orchestrator struct {
	store    Store
	commands CommandSubmitter
	config   Config
	now      func() time.Time
	logger   *zap.Logger
	tracer   trace.Tracer
	locks    [lockStripes]sync.Mutex

	// batchSize bounds each store listing.
	batchSize int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConfig overrides the saga deadlines.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.config = cfg }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithBatchSize bounds how many instances one store listing returns.
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// NewOrchestrator builds an orchestrator.
func NewOrchestrator(store Store, commands CommandSubmitter, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if commands == nil {
		return nil, errors.New("command submitter is required")
	}
	o := &Orchestrator{
		store:    store,
		commands: commands,
		config:   DefaultConfig(),
		now:      time.Now,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(tracerName),

		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Name identifies the orchestrator as a dispatch subscriber.
func (o *Orchestrator) Name() string {
	return SubscriberName
}

// PartitionKey orders delivery per correlation id.
func (o *Orchestrator) PartitionKey(evt event.Event) string {
	if correlationID, routed, err := CorrelationID(evt); routed && err == nil {
		return correlationID
	}
	return evt.AggregateID
}

// HandleEvent applies one delivered event. Returning an error asks the
// dispatcher to redeliver; duplicates and late events return nil.
func (o *Orchestrator) HandleEvent(ctx context.Context, evt event.Event) error {
	correlationID, routed, err := CorrelationID(evt)
	if !routed {
		return nil
	}
	if err != nil {
		o.logger.Error("drop uncorrelated event", zap.String("event_id", evt.ID()), zap.String("event_type", string(evt.Type)), zap.Error(err))
		return nil
	}

	ctx, span := o.tracer.Start(ctx, "saga.handle_event", trace.WithAttributes(
		attribute.String("correlation.id", correlationID),
		attribute.String("event.type", string(evt.Type)),
	))
	defer span.End()

	unlock := o.lock(correlationID)
	defer unlock()

	inst, changed, err := o.update(ctx, correlationID, func(inst Instance) Reduction {
		return Reduce(inst, evt, o.now(), o.config)
	}, func(r Reduction) {
		o.logIgnored(correlationID, evt, r)
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !changed {
		return nil
	}
	return o.dispatchPending(ctx, inst)
}

// FireDeadlines expires every due instance and returns how many changed.
func (o *Orchestrator) FireDeadlines(ctx context.Context) (int, error) {
	now := o.now()
	fired := 0
	err := o.eachPage(ctx, func(ctx context.Context) ([]Instance, error) {
		return o.store.ListExpiredSagas(ctx, now, o.batchSize)
	}, func(correlationID string) error {
		n, err := o.expire(ctx, correlationID)
		fired += n
		return err
	})
	if err != nil {
		return fired, fmt.Errorf("fire saga deadlines: %w", err)
	}
	return fired, nil
}

func (o *Orchestrator) expire(ctx context.Context, correlationID string) (int, error) {
	unlock := o.lock(correlationID)
	defer unlock()

	inst, changed, err := o.update(ctx, correlationID, func(inst Instance) Reduction {
		return Expire(inst, o.now(), o.config)
	}, nil)
	if err != nil || !changed {
		return 0, err
	}
	o.logger.Warn("saga deadline elapsed",
		zap.String("correlation_id", correlationID),
		zap.String("state", string(inst.State)))
	return 1, o.dispatchPending(ctx, inst)
}

// Recover re-dispatches commands persisted before a restart and returns how
// many instances it resumed.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	resumed := 0
	err := o.eachPage(ctx, func(ctx context.Context) ([]Instance, error) {
		return o.store.ListPendingSagas(ctx, o.batchSize)
	}, func(correlationID string) error {
		if err := o.resume(ctx, correlationID); err != nil {
			return err
		}
		resumed++
		return nil
	})
	if err != nil {
		return resumed, fmt.Errorf("recover sagas: %w", err)
	}
	return resumed, nil
}

// eachPage visits instances page by page until a page holds nothing new.
// Visiting an instance is expected to drop it from later pages; one that stays
// listed is visited once.
func (o *Orchestrator) eachPage(ctx context.Context, list func(context.Context) ([]Instance, error), visit func(correlationID string) error) error {
	seen := make(map[string]struct{})
	for {
		page, err := list(ctx)
		if err != nil {
			return err
		}
		fresh := 0
		for _, inst := range page {
			if _, ok := seen[inst.CorrelationID]; ok {
				continue
			}
			seen[inst.CorrelationID] = struct{}{}
			fresh++
			if err := visit(inst.CorrelationID); err != nil {
				return err
			}
		}
		if fresh == 0 || len(page) < o.batchSize {
			return nil
		}
	}
}

func (o *Orchestrator) resume(ctx context.Context, correlationID string) error {
	unlock := o.lock(correlationID)
	defer unlock()
	inst, err := o.store.GetSaga(ctx, correlationID)
	if err != nil {
		return fmt.Errorf("load saga %s: %w", correlationID, err)
	}
	o.logger.Info("resuming saga", zap.String("correlation_id", correlationID), zap.Int("pending", len(inst.Pending)))
	return o.dispatchPending(ctx, inst)
}

// RunDeadlines fires deadlines every interval until ctx is done.
func (o *Orchestrator) RunDeadlines(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := o.FireDeadlines(ctx); err != nil && ctx.Err() == nil {
				o.logger.Error("fire saga deadlines", zap.Error(err))
			}
		}
	}
}

// Get returns the stored instance for correlationID.
func (o *Orchestrator) Get(ctx context.Context, correlationID string) (Instance, error) {
	return o.store.GetSaga(ctx, correlationID)
}

// dispatchPending submits pending commands in order, clearing each once it is
// delivered. A command that cannot be delivered is fed back to the reducer.
// Terminal instances never issue commands.
func (o *Orchestrator) dispatchPending(ctx context.Context, inst Instance) error {
	for !inst.Terminal && len(inst.Pending) > 0 {
		cmd := inst.Pending[0]
		failure := ""
		result, err := o.commands.Submit(ctx, cmd)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failure = err.Error()
			o.logger.Error("saga command failed",
				zap.String("correlation_id", inst.CorrelationID),
				zap.String("command_type", string(cmd.Type)),
				zap.Error(err))
		case result.Accepted:
		case result.HasRejection(idempotentRejections[cmd.Type]):
			o.logger.Debug("saga command already applied",
				zap.String("correlation_id", inst.CorrelationID),
				zap.String("command_type", string(cmd.Type)))
		default:
			failure = result.RejectedReason
			o.logger.Warn("saga command rejected",
				zap.String("correlation_id", inst.CorrelationID),
				zap.String("command_type", string(cmd.Type)),
				zap.String("reason", result.RejectedReason))
		}

		next, changed, err := o.update(ctx, inst.CorrelationID, func(current Instance) Reduction {
			if len(current.Pending) == 0 || current.Pending[0].ID != cmd.ID {
				return ignored(current, IgnoredDuplicate)
			}
			cleared := current.Clone()
			cleared.Pending = cleared.Pending[1:]
			if failure == "" {
				cleared.UpdatedAt = o.now().UTC()
				return Reduction{Instance: cleared}
			}
			reduction := CommandFailed(cleared, cmd, failure, o.now(), o.config)
			if !reduction.Applied() {
				return Reduction{Instance: cleared}
			}
			return reduction
		}, nil)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		inst = next
	}
	return nil
}

// update loads, reduces, and saves an instance, retrying revision conflicts
// against a fresh load. Reduced commands are appended to Pending before saving.
func (o *Orchestrator) update(ctx context.Context, correlationID string, reduce func(Instance) Reduction, onIgnored func(Reduction)) (Instance, bool, error) {
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		current, err := o.store.GetSaga(ctx, correlationID)
		if errors.Is(err, storage.ErrNotFound) {
			current = Instance{CorrelationID: correlationID}
		} else if err != nil {
			return Instance{}, false, fmt.Errorf("load saga %s: %w", correlationID, err)
		}

		reduction := reduce(current)
		if !reduction.Applied() {
			if onIgnored != nil {
				onIgnored(reduction)
			}
			return current, false, nil
		}
		next := reduction.Instance
		next.CorrelationID = correlationID
		next.Pending = append(next.Pending, reduction.Commands...)

		err = o.store.SaveSaga(ctx, next, current.Revision)
		if errors.Is(err, storage.ErrConcurrencyConflict) {
			o.logger.Debug("saga revision conflict", zap.String("correlation_id", correlationID), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return Instance{}, false, fmt.Errorf("save saga %s: %w", correlationID, err)
		}
		next.Revision = current.Revision + 1
		if current.State != next.State {
			o.logger.Info("saga transition",
				zap.String("correlation_id", correlationID),
				zap.String("from", string(current.State)),
				zap.String("to", string(next.State)))
		}
		return next, true, nil
	}
	return Instance{}, false, fmt.Errorf("save saga %s: %w", correlationID, storage.ErrConcurrencyConflict)
}

func (o *Orchestrator) logIgnored(correlationID string, evt event.Event, r Reduction) {
	fields := []zap.Field{
		zap.String("correlation_id", correlationID),
		zap.String("event_id", evt.ID()),
		zap.String("event_type", string(evt.Type)),
		zap.String("state", string(r.Instance.State)),
		zap.String("reason", r.Ignored),
	}
	switch r.Ignored {
	case IgnoredTerminal, IgnoredDuplicate:
		o.logger.Info("discarding late or duplicate saga event", fields...)
	default:
		o.logger.Warn("saga ignored event", fields...)
	}
}

func (o *Orchestrator) lock(correlationID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(correlationID))
	mu := &o.locks[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}

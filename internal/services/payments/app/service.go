package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/louisbranch/paysaga/internal/platform/errors"
	"github.com/louisbranch/paysaga/internal/platform/logging"
	"github.com/louisbranch/paysaga/internal/services/payments/dispatch"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/command"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/customer"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/engine"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/outcome"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/risk"
	"github.com/louisbranch/paysaga/internal/services/payments/projection"
	"github.com/louisbranch/paysaga/internal/services/payments/saga"
	"github.com/louisbranch/paysaga/internal/services/payments/storage"
)

// ErrServiceRequired indicates a call on a nil service.
var ErrServiceRequired = errors.New("payments service is required")

// Options assembles a Service.
type Options struct {
	Config Config
	Stores *Stores
	// Processor and SettlementRail answer the money movements; nil approves.
	Processor      outcome.Provider
	SettlementRail outcome.Provider
	// Risk screens authorizations; nil approves.
	Risk risk.Evaluator
	// Forward receives every appended event after the in-process bus, e.g. a
	// Redis stream publisher. Optional.
	Forward dispatch.Publisher
	// WrapSagaCommands decorates the path saga commands take into the engine.
	// Optional.
	WrapSagaCommands func(saga.CommandSubmitter) saga.CommandSubmitter
	// OnDeadLetter observes events a subscriber dropped after all retries.
	OnDeadLetter dispatch.DeadLetterFunc
	Now          func() time.Time
	Logger       *zap.Logger
}

// Service runs payment sagas over event-sourced aggregates.
type Service struct {
	config      Config
	stores      *Stores
	handler     engine.Handler
	bus         *dispatch.Bus
	publisher   dispatch.Publisher
	sagas       *saga.Orchestrator
	projections *projection.Applier
	now         func() time.Time
	logger      *zap.Logger
}

// New wires the engine, bus, saga orchestrator and projection applier.
func New(opts Options) (*Service, error) {
	if err := opts.Stores.validate(); err != nil {
		return nil, err
	}
	cfg := opts.Config.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	processor := opts.Processor
	if processor == nil {
		processor = outcome.Approving{}
	}
	rail := opts.SettlementRail
	if rail == nil {
		rail = outcome.Approving{}
	}

	registries, err := engine.BuildRegistries(engine.Dependencies{
		AuthorizationCeiling: cfg.AuthorizationCeiling,
		Risk:                 opts.Risk,
		Processor:            processor,
		SettlementRail:       rail,
		Fees:                 cfg.Fees,
	})
	if err != nil {
		return nil, fmt.Errorf("build registries: %w", err)
	}
	if err := checkConsumedTypes(registries.Events); err != nil {
		return nil, err
	}

	bus := dispatch.NewBus(dispatch.Options{
		Partitions:   cfg.Partitions,
		Logger:       logging.Named(logger, "dispatch"),
		OnDeadLetter: opts.OnDeadLetter,
	})
	var publisher dispatch.Publisher = bus
	if opts.Forward != nil {
		publisher = dispatch.Fanout{bus, opts.Forward}
	}

	handler := engine.Handler{
		Commands:   registries.Commands,
		Events:     registries.Events,
		Aggregates: registries.Aggregates,
		Store:      opts.Stores.Events,
		Now:        now,
		Logger:     logging.Named(logger, "engine"),
	}
	if opts.Stores.Outbox == nil {
		handler.Publisher = publisher
	}

	var submitter saga.CommandSubmitter = handler
	if opts.WrapSagaCommands != nil {
		submitter = opts.WrapSagaCommands(submitter)
	}
	orchestrator, err := saga.NewOrchestrator(opts.Stores.Sagas, submitter,
		saga.WithConfig(cfg.Saga),
		saga.WithClock(now),
		saga.WithLogger(logging.Named(logger, "saga")),
	)
	if err != nil {
		return nil, fmt.Errorf("build saga orchestrator: %w", err)
	}
	applier := &projection.Applier{
		Store:       opts.Stores.Projections,
		Checkpoints: opts.Stores.Checkpoints,
		Logger:      logging.Named(logger, "projection"),
	}
	if err := bus.Subscribe(applier); err != nil {
		return nil, fmt.Errorf("subscribe projections: %w", err)
	}
	if err := bus.Subscribe(orchestrator); err != nil {
		return nil, fmt.Errorf("subscribe saga: %w", err)
	}

	return &Service{
		config:      cfg,
		stores:      opts.Stores,
		handler:     handler,
		bus:         bus,
		publisher:   publisher,
		sagas:       orchestrator,
		projections: applier,
		now:         now,
		logger:      logger,
	}, nil
}

// Submit executes one inbound command. Post-accept effects (the saga and the
// read models) happen asynchronously. A customer registration first reserves
// its email.
func (s *Service) Submit(ctx context.Context, cmd command.Command) (engine.Result, error) {
	if s == nil {
		return engine.Result{}, ErrServiceRequired
	}
	if cmd.CorrelationID == "" {
		cmd.CorrelationID = cmd.AggregateID
	}
	if cmd.Type == customer.CommandTypeRegister {
		return s.register(ctx, cmd)
	}
	return s.submit(ctx, cmd)
}

func (s *Service) submit(ctx context.Context, cmd command.Command) (engine.Result, error) {
	result, err := s.handler.Submit(ctx, cmd)
	if err != nil {
		s.logger.Error("submit command",
			zap.String("command_type", string(cmd.Type)),
			zap.String("aggregate_id", cmd.AggregateID),
			zap.Stringer("grpc_code", apperrors.Status(err).Code()),
			zap.Error(err))
		return engine.Result{}, err
	}
	return result, nil
}

// WaitIdle blocks until the bus has delivered every published event.
func (s *Service) WaitIdle(ctx context.Context) error {
	return s.bus.WaitIdle(ctx)
}

// FireDeadlines expires due sagas now instead of waiting for the sweep.
func (s *Service) FireDeadlines(ctx context.Context) (int, error) {
	return s.sagas.FireDeadlines(ctx)
}

// RebuildProjections clears the read models and replays the whole log. It must
// not run while the bus is delivering.
func (s *Service) RebuildProjections(ctx context.Context) (uint64, error) {
	return s.projections.Rebuild(ctx, s.stores.Events)
}

// GetPayment returns the read model of one payment.
func (s *Service) GetPayment(ctx context.Context, authorizationID string) (storage.PaymentView, error) {
	view, err := s.stores.Projections.GetPayment(ctx, authorizationID)
	if err != nil {
		return storage.PaymentView{}, notFound(err, "payment", authorizationID)
	}
	return view, nil
}

// GetCustomer returns the read model of one customer.
func (s *Service) GetCustomer(ctx context.Context, customerID string) (storage.CustomerView, error) {
	view, err := s.stores.Projections.GetCustomer(ctx, customerID)
	if err != nil {
		return storage.CustomerView{}, notFound(err, "customer", customerID)
	}
	return view, nil
}

// FindCustomerByEmail returns the read model of the customer registered under
// email. The read model trails the log.
func (s *Service) FindCustomerByEmail(ctx context.Context, email string) (storage.CustomerView, error) {
	normalized, ok := customer.NormalizeEmail(email)
	if !ok {
		return storage.CustomerView{}, apperrors.New(apperrors.CodeValidationFailed, "email address is invalid")
	}
	view, err := s.stores.Projections.GetCustomerByEmail(ctx, normalized)
	if err != nil {
		return storage.CustomerView{}, notFound(err, "customer with email", normalized)
	}
	return view, nil
}

// ListSettlementsByMerchant returns the settlements of one merchant.
func (s *Service) ListSettlementsByMerchant(ctx context.Context, merchantID string) ([]storage.SettlementView, error) {
	return s.stores.Projections.ListSettlementsByMerchant(ctx, merchantID)
}

// GetSaga returns the saga instance of one payment.
func (s *Service) GetSaga(ctx context.Context, authorizationID string) (saga.Instance, error) {
	inst, err := s.sagas.Get(ctx, authorizationID)
	if err != nil {
		return saga.Instance{}, notFound(err, "saga", authorizationID)
	}
	return inst, nil
}

// Events returns the stream of one aggregate.
func (s *Service) Events(ctx context.Context, aggregateID string) ([]event.Event, error) {
	return s.stores.Events.ListEvents(ctx, aggregateID, 0, 0)
}

// checkConsumedTypes fails when the saga or the projections subscribe to an
// event type no aggregate emits.
func checkConsumedTypes(events *event.Registry) error {
	consumers := map[string][]event.Type{
		"projection": projection.HandledTypes(),
		"saga":       saga.RoutedTypes(),
	}
	for consumer, types := range consumers {
		for _, t := range types {
			if _, ok := events.Definition(t); !ok {
				return fmt.Errorf("%s consumes unregistered event type %s", consumer, t)
			}
		}
	}
	return nil
}

func notFound(err error, kind, key string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("%s %s not found", kind, key), err)
	}
	return err
}

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
)

const (
	defaultPartitions  = 8
	defaultMaxAttempts = 5
	idlePollInterval   = 5 * time.Millisecond
)

var (
	// ErrClosed indicates a publish after the bus stopped.
	ErrClosed = errors.New("dispatch bus is closed")
	// ErrRunning indicates a subscription after Run started.
	ErrRunning = errors.New("dispatch bus is already running")
)

// Publisher receives appended events in order.
type Publisher interface {
	Publish(ctx context.Context, events ...event.Event) error
}

// Subscriber handles delivered events.
type Subscriber interface {
	Name() string
	// PartitionKey groups events that must be handled sequentially.
	PartitionKey(evt event.Event) string
	// HandleEvent processes one event; an error triggers redelivery.
	HandleEvent(ctx context.Context, evt event.Event) error
}

// DeadLetterFunc observes events a subscriber failed to handle after all retries.
type DeadLetterFunc func(subscriber string, evt event.Event, err error)

// Options configures a Bus.
type Options struct {
	Partitions int
	// MaxAttempts bounds deliveries of one event to one subscriber.
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Logger          *zap.Logger
	OnDeadLetter    DeadLetterFunc
}

// Bus is an in-process, partitioned, at-least-once event dispatcher.
type Bus struct {
	opts   Options
	logger *zap.Logger

	mu            sync.Mutex
	subscriptions []*subscription
	running       bool
	closed        bool
	outstanding   int
}

type subscription struct {
	subscriber Subscriber
	partitions []*partition
}

type partition struct {
	mu     sync.Mutex
	items  []event.Event
	signal chan struct{}
}

// NewBus builds a bus.
func NewBus(opts Options) *Bus {
	if opts.Partitions <= 0 {
		opts.Partitions = defaultPartitions
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{opts: opts, logger: logger}
}

// Subscribe registers a subscriber. It must be called before Run.
func (b *Bus) Subscribe(sub Subscriber) error {
	if sub == nil {
		return errors.New("subscriber is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return ErrRunning
	}
	for _, existing := range b.subscriptions {
		if existing.subscriber.Name() == sub.Name() {
			return fmt.Errorf("subscriber already registered: %s", sub.Name())
		}
	}
	s := &subscription{subscriber: sub, partitions: make([]*partition, b.opts.Partitions)}
	for i := range s.partitions {
		s.partitions[i] = &partition{signal: make(chan struct{}, 1)}
	}
	b.subscriptions = append(b.subscriptions, s)
	return nil
}

// Publish enqueues events for every subscriber in the given order.
func (b *Bus) Publish(_ context.Context, events ...event.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	for _, evt := range events {
		for _, s := range b.subscriptions {
			p := s.partitions[PartitionIndex(s.subscriber.PartitionKey(evt), len(s.partitions))]
			p.push(evt)
			b.outstanding++
		}
	}
	return nil
}

// Run drains every partition until ctx is done.
func (b *Bus) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return ErrRunning
	}
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.running = true
	subscriptions := append([]*subscription(nil), b.subscriptions...)
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
	}()

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range subscriptions {
		for _, p := range s.partitions {
			g.Go(func() error {
				b.drain(gctx, s.subscriber, p)
				return nil
			})
		}
	}
	return g.Wait()
}

// WaitIdle blocks until every published event has been handled or dropped.
func (b *Bus) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()
	for {
		b.mu.Lock()
		outstanding := b.outstanding
		b.mu.Unlock()
		if outstanding == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for idle bus with %d outstanding events: %w", outstanding, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (b *Bus) drain(ctx context.Context, sub Subscriber, p *partition) {
	for {
		evt, ok := p.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-p.signal:
				continue
			}
		}
		b.deliver(ctx, sub, evt)
		b.mu.Lock()
		b.outstanding--
		b.mu.Unlock()
	}
}

func (b *Bus) deliver(ctx context.Context, sub Subscriber, evt event.Event) {
	attempt := 0
	operation := func() (struct{}, error) {
		attempt++
		return struct{}{}, safeHandle(ctx, sub, evt)
	}
	notify := func(err error, wait time.Duration) {
		b.logger.Warn("redelivering event",
			zap.String("subscriber", sub.Name()),
			zap.String("event_id", evt.ID()),
			zap.String("event_type", string(evt.Type)),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}
	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b.backOff()),
		backoff.WithMaxTries(b.opts.MaxAttempts),
		backoff.WithNotify(notify),
	)
	if err == nil || ctx.Err() != nil {
		return
	}
	b.logger.Error("dropping event after retries",
		zap.String("subscriber", sub.Name()),
		zap.String("event_id", evt.ID()),
		zap.String("event_type", string(evt.Type)),
		zap.Error(err))
	if b.opts.OnDeadLetter != nil {
		b.opts.OnDeadLetter(sub.Name(), evt, err)
	}
}

func (b *Bus) backOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if b.opts.InitialInterval > 0 {
		eb.InitialInterval = b.opts.InitialInterval
	}
	if b.opts.MaxInterval > 0 {
		eb.MaxInterval = b.opts.MaxInterval
	}
	return eb
}

func safeHandle(ctx context.Context, sub Subscriber, evt event.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber %s panicked: %v", sub.Name(), r)
		}
	}()
	return sub.HandleEvent(ctx, evt)
}

func (p *partition) push(evt event.Event) {
	p.mu.Lock()
	p.items = append(p.items, evt)
	p.mu.Unlock()
	select {
	case p.signal <- struct{}{}:
	default:
	}
}

func (p *partition) pop() (event.Event, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.items) == 0 {
		return event.Event{}, false
	}
	evt := p.items[0]
	p.items[0] = event.Event{}
	p.items = p.items[1:]
	return evt, true
}

// PartitionIndex maps key onto one of n partitions with FNV-1a.
func PartitionIndex(key string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

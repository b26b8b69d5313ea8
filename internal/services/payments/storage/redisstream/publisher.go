package redisstream

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/louisbranch/paysaga/internal/services/payments/dispatch"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
)

const (
	// DefaultPrefix names the stream family: <prefix>:<partition>.
	DefaultPrefix     = "paysaga:events"
	defaultPartitions = 8
	dialTimeout       = 5 * time.Second
)

// ErrClientRequired indicates a missing Redis client.
var ErrClientRequired = errors.New("redis client is required")

// Streamer is the subset of the Redis client used for appends.
type Streamer interface {
	XAdd(ctx context.Context, a *goredis.XAddArgs) *goredis.StringCmd
}

// Options configures a Publisher.
type Options struct {
	Prefix     string
	Partitions int
	// MaxLen caps each stream approximately; zero keeps everything.
	MaxLen int64
	Logger *zap.Logger
}

// Publisher appends events to partitioned Redis streams.
type Publisher struct {
	client     Streamer
	prefix     string
	partitions int
	maxLen     int64
	logger     *zap.Logger
}

var _ dispatch.Publisher = (*Publisher)(nil)

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr string) (*goredis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: dialTimeout,
	})
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// NewPublisher builds a publisher over client.
func NewPublisher(client Streamer, opts Options) (*Publisher, error) {
	if client == nil {
		return nil, ErrClientRequired
	}
	if strings.TrimSpace(opts.Prefix) == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.Partitions <= 0 {
		opts.Partitions = defaultPartitions
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Publisher{
		client:     client,
		prefix:     strings.TrimSpace(opts.Prefix),
		partitions: opts.Partitions,
		maxLen:     opts.MaxLen,
		logger:     opts.Logger,
	}, nil
}

// Stream returns the stream that carries aggregateID's events.
func (p *Publisher) Stream(aggregateID string) string {
	return fmt.Sprintf("%s:%d", p.prefix, dispatch.PartitionIndex(aggregateID, p.partitions))
}

// Publish appends each event to its stream, stopping at the first failure.
func (p *Publisher) Publish(ctx context.Context, events ...event.Event) error {
	for _, evt := range events {
		args := &goredis.XAddArgs{
			Stream: p.Stream(evt.AggregateID),
			Values: Encode(evt),
		}
		if p.maxLen > 0 {
			args.MaxLen = p.maxLen
			args.Approx = true
		}
		id, err := p.client.XAdd(ctx, args).Result()
		if err != nil {
			return fmt.Errorf("xadd %s %s: %w", args.Stream, evt.ID(), err)
		}
		p.logger.Debug("event forwarded",
			zap.String("stream", args.Stream),
			zap.String("stream_id", id),
			zap.String("event_id", evt.ID()))
	}
	return nil
}

// Encode flattens an event into stream fields.
func Encode(evt event.Event) map[string]any {
	return map[string]any{
		"aggregate_id":   evt.AggregateID,
		"aggregate_type": evt.AggregateType,
		"seq":            strconv.FormatUint(evt.Seq, 10),
		"position":       strconv.FormatUint(evt.Position, 10),
		"type":           string(evt.Type),
		"timestamp":      evt.Timestamp.UTC().Format(time.RFC3339Nano),
		"correlation_id": evt.CorrelationID,
		"causation_id":   evt.CausationID,
		"payload":        string(evt.PayloadJSON),
	}
}

// Decode rebuilds an event from stream fields as returned by XRANGE/XREAD.
func Decode(values map[string]any) (event.Event, error) {
	field := func(name string) string {
		v, _ := values[name].(string)
		return v
	}
	seq, err := strconv.ParseUint(field("seq"), 10, 64)
	if err != nil {
		return event.Event{}, fmt.Errorf("parse seq: %w", err)
	}
	position, err := strconv.ParseUint(field("position"), 10, 64)
	if err != nil {
		return event.Event{}, fmt.Errorf("parse position: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, field("timestamp"))
	if err != nil {
		return event.Event{}, fmt.Errorf("parse timestamp: %w", err)
	}
	evt := event.Event{
		AggregateID:   field("aggregate_id"),
		AggregateType: field("aggregate_type"),
		Seq:           seq,
		Position:      position,
		Type:          event.Type(field("type")),
		Timestamp:     ts.UTC(),
		CorrelationID: field("correlation_id"),
		CausationID:   field("causation_id"),
		PayloadJSON:   []byte(field("payload")),
	}
	if evt.AggregateID == "" || evt.Type == "" {
		return event.Event{}, fmt.Errorf("stream entry is missing aggregate id or type")
	}
	return evt, nil
}

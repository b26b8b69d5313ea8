package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
	"github.com/louisbranch/paysaga/internal/services/payments/saga"
	"github.com/louisbranch/paysaga/internal/services/payments/storage"
	"github.com/louisbranch/paysaga/internal/services/payments/storage/memory"
	"github.com/louisbranch/paysaga/internal/services/payments/storage/postgres"
	"github.com/louisbranch/paysaga/internal/services/payments/storage/sqlite"
)

// Storage backends accepted by OpenStores.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// OutboxRelay drains events that a store queued for delivery in the same
// transaction that appended them.
type OutboxRelay interface {
	ProcessOutbox(ctx context.Context, now time.Time, limit int, publish func(context.Context, event.Event) error) (int, error)
}

// StorageConfig selects the storage backends.
type StorageConfig struct {
	Backend string
	// SQLitePath is the database file for the sqlite backend. With postgres it
	// optionally holds the read models; empty keeps them in memory.
	SQLitePath  string
	PostgresDSN string
	// Outbox relays sqlite events through the dispatch outbox instead of
	// publishing them straight after the append.
	Outbox bool
}

// Stores groups the stores a Service runs on and manages their lifecycle.
type Stores struct {
	Events      storage.EventStore
	Sagas       saga.Store
	Projections storage.ProjectionStore
	// Checkpoints is optional; without it Catchup replays the whole log.
	Checkpoints storage.CheckpointStore
	// Outbox is set when the event store delivers through an outbox.
	Outbox OutboxRelay

	closers []io.Closer
}

// MemoryStores returns stores backed by a single in-memory store.
func MemoryStores() *Stores {
	store := memory.New()
	return &Stores{
		Events:      store,
		Sagas:       store,
		Projections: store,
		Checkpoints: store,
	}
}

// OpenStores opens the configured backends.
func OpenStores(ctx context.Context, cfg StorageConfig, logger *zap.Logger) (*Stores, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	switch backend {
	case "", BackendMemory:
		logger.Info("using in-memory storage")
		return MemoryStores(), nil
	case BackendSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath, sqlite.WithOutbox(cfg.Outbox))
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		stores := &Stores{
			Events:      store,
			Sagas:       store,
			Projections: store,
			Checkpoints: store,
			closers:     []io.Closer{store},
		}
		if cfg.Outbox {
			stores.Outbox = store
		}
		logger.Info("using sqlite storage", zap.String("path", cfg.SQLitePath), zap.Bool("outbox", cfg.Outbox))
		return stores, nil
	case BackendPostgres:
		if cfg.Outbox {
			return nil, errors.New("the dispatch outbox requires the sqlite backend")
		}
		events, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		stores := &Stores{
			Events:  events,
			Sagas:   events,
			closers: []io.Closer{events},
		}
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			views := memory.New()
			stores.Projections = views
			stores.Checkpoints = views
		} else {
			views, err := sqlite.Open(ctx, cfg.SQLitePath)
			if err != nil {
				_ = stores.Close()
				return nil, fmt.Errorf("open sqlite projection store: %w", err)
			}
			stores.Projections = views
			stores.Checkpoints = views
			stores.closers = append(stores.closers, views)
		}
		logger.Info("using postgres storage", zap.Bool("sqlite_projections", cfg.SQLitePath != ""))
		return stores, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Close closes every opened store.
func (s *Stores) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *Stores) validate() error {
	switch {
	case s == nil:
		return errors.New("stores are required")
	case s.Events == nil:
		return errors.New("event store is required")
	case s.Sagas == nil:
		return errors.New("saga store is required")
	case s.Projections == nil:
		return errors.New("projection store is required")
	}
	return nil
}

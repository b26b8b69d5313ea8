package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
)

// Run catches the read models up, resumes interrupted sagas and then drives
// the bus, the deadline sweep and the outbox relay until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if s == nil {
		return ErrServiceRequired
	}
	applied, err := s.projections.Catchup(ctx, s.stores.Events)
	if err != nil {
		return fmt.Errorf("catch up projections: %w", err)
	}
	s.logger.Info("projections caught up", zap.Uint64("position", applied))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.bus.Run(gctx)
	})
	g.Go(func() error {
		// Resumed commands append events that the bus must already be draining.
		resumed, err := s.sagas.Recover(gctx)
		if err != nil && gctx.Err() == nil {
			return err
		}
		if resumed > 0 {
			s.logger.Info("resumed sagas with pending commands", zap.Int("count", resumed))
		}
		return s.sagas.RunDeadlines(gctx, s.config.DeadlineSweep)
	})
	if s.stores.Outbox != nil {
		g.Go(func() error {
			return s.runOutboxRelay(gctx)
		})
	}
	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Service) runOutboxRelay(ctx context.Context) error {
	ticker := time.NewTicker(s.config.OutboxPoll)
	defer ticker.Stop()
	for {
		if _, err := s.RelayOutbox(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("relay dispatch outbox", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RelayOutbox publishes one batch of queued events and returns how many were
// processed. It is a no-op without an outbox.
func (s *Service) RelayOutbox(ctx context.Context) (int, error) {
	if s.stores.Outbox == nil {
		return 0, nil
	}
	return s.stores.Outbox.ProcessOutbox(ctx, s.now(), s.config.OutboxBatch, func(ctx context.Context, evt event.Event) error {
		return s.publisher.Publish(ctx, evt)
	})
}

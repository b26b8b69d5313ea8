package dispatch

import (
	"context"
	"errors"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
)

// Fanout publishes to every publisher in order and joins their errors.
type Fanout []Publisher

// Publish forwards events to each publisher.
func (f Fanout) Publish(ctx context.Context, events ...event.Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

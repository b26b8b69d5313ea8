package projection

import (
	"context"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/customer"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
	"github.com/louisbranch/paysaga/internal/services/payments/storage"
)

func (a *Applier) applyCustomerRegistered(ctx context.Context, evt event.Event, payload customer.RegisteredPayload) error {
	view, err := a.loadCustomer(ctx, evt.AggregateID)
	if err != nil {
		return err
	}
	if !advance(&view.Seq, evt) {
		return nil
	}
	at := ensureTimestamp(evt.Timestamp)
	view.Name = payload.Name
	view.Email = payload.Email
	view.RegisteredAt = at
	view.UpdatedAt = at
	return a.Store.PutCustomer(ctx, view)
}

func (a *Applier) applyPaymentMethodAdded(ctx context.Context, evt event.Event, payload customer.PaymentMethodAddedPayload) error {
	view, err := a.loadCustomer(ctx, evt.AggregateID)
	if err != nil {
		return err
	}
	if !advance(&view.Seq, evt) {
		return nil
	}
	at := ensureTimestamp(evt.Timestamp)
	method := storage.PaymentMethodView{
		Fingerprint: payload.Fingerprint,
		Brand:       payload.Brand,
		Last4:       payload.Last4,
		AddedAt:     at,
	}
	replaced := false
	for i := range view.PaymentMethods {
		if view.PaymentMethods[i].Fingerprint == method.Fingerprint {
			view.PaymentMethods[i] = method
			replaced = true
		}
	}
	if !replaced {
		view.PaymentMethods = append(view.PaymentMethods, method)
	}
	view.UpdatedAt = at
	return a.Store.PutCustomer(ctx, view)
}

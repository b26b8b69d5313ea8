package projection

import (
	"context"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/authorization"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/processing"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/settlement"
	"github.com/louisbranch/paysaga/internal/services/payments/storage"
)

// Statuses written to the processing and settlement columns of a payment row.
const (
	StatusProcessed = "PROCESSED"
	StatusSettled   = "SETTLED"
	StatusFailed    = "FAILED"
)

// updatePayment loads the row for key, runs fn when evt advances the
// watermark selected by seq, and stores the result.
func (a *Applier) updatePayment(ctx context.Context, key string, evt event.Event, seq func(*storage.PaymentView) *uint64, fn func(*storage.PaymentView)) error {
	view, err := a.loadPayment(ctx, key)
	if err != nil {
		return err
	}
	if !advance(seq(&view), evt) {
		return nil
	}
	fn(&view)
	view.UpdatedAt = ensureTimestamp(evt.Timestamp)
	return a.Store.PutPayment(ctx, view)
}

func authorizationSeq(v *storage.PaymentView) *uint64 { return &v.AuthorizationSeq }
func processingSeq(v *storage.PaymentView) *uint64    { return &v.ProcessingSeq }
func settlementSeq(v *storage.PaymentView) *uint64    { return &v.SettlementSeq }

func (a *Applier) applyAuthorized(ctx context.Context, evt event.Event, payload authorization.AuthorizedPayload) error {
	return a.updatePayment(ctx, evt.AggregateID, evt, authorizationSeq, func(v *storage.PaymentView) {
		v.CustomerID = payload.CustomerID
		v.MerchantID = payload.MerchantID
		v.Amount = payload.Amount
		v.Currency = payload.Currency
		v.AuthorizationStatus = string(authorization.StatusAuthorized)
	})
}

func (a *Applier) applyAuthorizationDeclined(ctx context.Context, evt event.Event, payload authorization.DeclinedPayload) error {
	return a.updatePayment(ctx, evt.AggregateID, evt, authorizationSeq, func(v *storage.PaymentView) {
		v.CustomerID = payload.CustomerID
		v.MerchantID = payload.MerchantID
		v.Amount = payload.Amount
		v.Currency = payload.Currency
		v.AuthorizationStatus = string(authorization.StatusDeclined)
		v.DeclineReason = payload.ReasonCode
	})
}

func (a *Applier) applyVoided(ctx context.Context, evt event.Event, payload authorization.VoidedPayload) error {
	return a.updatePayment(ctx, evt.AggregateID, evt, authorizationSeq, func(v *storage.PaymentView) {
		v.AuthorizationStatus = string(authorization.StatusVoided)
		v.VoidReason = payload.Reason
	})
}

func (a *Applier) applyProcessed(ctx context.Context, evt event.Event, payload processing.ProcessedPayload) error {
	key, err := byAuthorizationID(evt)
	if err != nil {
		return err
	}
	return a.updatePayment(ctx, key, evt, processingSeq, func(v *storage.PaymentView) {
		v.ProcessingID = evt.AggregateID
		v.ProcessingStatus = StatusProcessed
		v.ProcessingReference = payload.ReferenceID
		fillPayment(v, payload.MerchantID, payload.Amount, payload.Currency)
	})
}

func (a *Applier) applyProcessingFailed(ctx context.Context, evt event.Event, payload processing.FailedPayload) error {
	key, err := byAuthorizationID(evt)
	if err != nil {
		return err
	}
	return a.updatePayment(ctx, key, evt, processingSeq, func(v *storage.PaymentView) {
		v.ProcessingID = evt.AggregateID
		v.ProcessingStatus = StatusFailed
		v.ProcessingReason = payload.Reason
		fillPayment(v, payload.MerchantID, payload.Amount, payload.Currency)
	})
}

func (a *Applier) applySettled(ctx context.Context, evt event.Event, payload settlement.SettledPayload) error {
	key, err := byAuthorizationID(evt)
	if err != nil {
		return err
	}
	err = a.updatePayment(ctx, key, evt, settlementSeq, func(v *storage.PaymentView) {
		v.SettlementID = evt.AggregateID
		v.SettlementStatus = StatusSettled
		v.Fee = payload.Fee
		v.Net = payload.Net
		fillPayment(v, payload.MerchantID, payload.Amount, payload.Currency)
	})
	if err != nil {
		return err
	}
	return a.updateSettlement(ctx, key, evt, func(v *storage.SettlementView) {
		v.MerchantID = payload.MerchantID
		v.Amount = payload.Amount
		v.Fee = payload.Fee
		v.Net = payload.Net
		v.Currency = payload.Currency
		v.Status = StatusSettled
		v.Reference = payload.ReferenceID
	})
}

func (a *Applier) applySettlementFailed(ctx context.Context, evt event.Event, payload settlement.FailedPayload) error {
	key, err := byAuthorizationID(evt)
	if err != nil {
		return err
	}
	err = a.updatePayment(ctx, key, evt, settlementSeq, func(v *storage.PaymentView) {
		v.SettlementID = evt.AggregateID
		v.SettlementStatus = StatusFailed
		v.SettlementReason = payload.Reason
		fillPayment(v, payload.MerchantID, payload.Amount, payload.Currency)
	})
	if err != nil {
		return err
	}
	return a.updateSettlement(ctx, key, evt, func(v *storage.SettlementView) {
		v.MerchantID = payload.MerchantID
		v.Amount = payload.Amount
		v.Currency = payload.Currency
		v.Status = StatusFailed
		v.Reason = payload.Reason
	})
}

func (a *Applier) updateSettlement(ctx context.Context, authorizationID string, evt event.Event, fn func(*storage.SettlementView)) error {
	view, err := a.loadSettlement(ctx, evt.AggregateID)
	if err != nil {
		return err
	}
	if !advance(&view.Seq, evt) {
		return nil
	}
	view.AuthorizationID = authorizationID
	fn(&view)
	view.UpdatedAt = ensureTimestamp(evt.Timestamp)
	return a.Store.PutSettlement(ctx, view)
}

// fillPayment backfills payment fields when a downstream event lands before
// the authorization row exists.
func fillPayment(v *storage.PaymentView, merchantID string, amount int64, currency string) {
	if v.MerchantID == "" {
		v.MerchantID = merchantID
	}
	if v.Amount == 0 {
		v.Amount = amount
	}
	if v.Currency == "" {
		v.Currency = currency
	}
}

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/louisbranch/paysaga/internal/platform/id"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/authorization"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/command"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/customer"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/emailclaim"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/engine"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/money"
)

// releaseTimeout bounds giving back a reservation after the caller's context
// is done.
const releaseTimeout = 5 * time.Second

// RegisterCustomer registers a customer under a fresh id.
func (s *Service) RegisterCustomer(ctx context.Context, name, email string) (string, engine.Result, error) {
	return s.submitNew(ctx, customer.CommandTypeRegister, customer.RegisterPayload{Name: name, Email: email})
}

// AddPaymentMethod stores a card on an existing customer.
func (s *Service) AddPaymentMethod(ctx context.Context, customerID, cardNumber, brand string) (engine.Result, error) {
	cmd, err := newCommand(customerID, customer.CommandTypeAddPaymentMethod, customer.AddPaymentMethodPayload{
		CardNumber: cardNumber,
		Brand:      brand,
	})
	if err != nil {
		return engine.Result{}, err
	}
	return s.Submit(ctx, cmd)
}

// AuthorizeRequest describes a payment to authorize.
type AuthorizeRequest struct {
	CustomerID string
	MerchantID string
	Amount     money.Amount
	Currency   string
}

// Authorize starts a payment. The returned authorization id is also the
// correlation id of its saga and the key of its payment read model.
func (s *Service) Authorize(ctx context.Context, req AuthorizeRequest) (string, engine.Result, error) {
	return s.submitNew(ctx, authorization.CommandTypeAuthorize, authorization.AuthorizePayload{
		CustomerID: req.CustomerID,
		MerchantID: req.MerchantID,
		Amount:     int64(req.Amount),
		Currency:   req.Currency,
	})
}

// register reserves the customer's email, then registers the customer. A
// reservation taken here is released when the registration does not go
// through. Emails that do not parse skip the reservation and are rejected by
// the customer decider.
func (s *Service) register(ctx context.Context, cmd command.Command) (engine.Result, error) {
	var payload customer.RegisterPayload
	if err := json.Unmarshal(cmd.PayloadJSON, &payload); err != nil {
		return s.submit(ctx, cmd)
	}
	stream, ok := emailclaim.StreamID(payload.Email)
	if !ok {
		return s.submit(ctx, cmd)
	}
	reserve, err := newCommand(stream, emailclaim.CommandTypeReserve, emailclaim.ReservePayload{
		CustomerID: cmd.AggregateID,
		Email:      payload.Email,
	})
	if err != nil {
		return engine.Result{}, err
	}
	reserve.CorrelationID = cmd.CorrelationID
	reserve.CausationID = cmd.ID
	reserved, err := s.submit(ctx, reserve)
	if err != nil {
		return engine.Result{}, err
	}
	if !reserved.Accepted && !reserved.HasRejection(emailclaim.RejectionCodeAlreadyReserved) {
		return reserved, nil
	}

	result, err := s.submit(ctx, cmd)
	if reserved.Accepted && (err != nil || !result.Accepted) {
		s.release(ctx, stream, cmd)
	}
	return result, err
}

func (s *Service) release(ctx context.Context, stream string, registration command.Command) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	release, err := newCommand(stream, emailclaim.CommandTypeRelease, emailclaim.ReleasePayload{CustomerID: registration.AggregateID})
	if err == nil {
		release.CorrelationID = registration.CorrelationID
		release.CausationID = registration.ID
		var result engine.Result
		if result, err = s.submit(ctx, release); err == nil && !result.Accepted {
			err = fmt.Errorf("release rejected: %s", result.RejectedReason)
		}
	}
	if err != nil {
		s.logger.Warn("release email reservation",
			zap.String("customer_id", registration.AggregateID),
			zap.String("stream", stream),
			zap.Error(err))
	}
}

func (s *Service) submitNew(ctx context.Context, typ command.Type, payload any) (string, engine.Result, error) {
	aggregateID, err := id.NewID()
	if err != nil {
		return "", engine.Result{}, fmt.Errorf("generate aggregate id: %w", err)
	}
	cmd, err := newCommand(aggregateID, typ, payload)
	if err != nil {
		return "", engine.Result{}, err
	}
	result, err := s.Submit(ctx, cmd)
	return aggregateID, result, err
}

func newCommand(aggregateID string, typ command.Type, payload any) (command.Command, error) {
	commandID, err := id.NewID()
	if err != nil {
		return command.Command{}, fmt.Errorf("generate command id: %w", err)
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return command.Command{}, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return command.Command{
		ID:            commandID,
		AggregateID:   aggregateID,
		Type:          typ,
		CorrelationID: aggregateID,
		PayloadJSON:   payloadJSON,
	}, nil
}

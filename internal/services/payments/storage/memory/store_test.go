package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/command"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
	"github.com/louisbranch/paysaga/internal/services/payments/saga"
	"github.com/louisbranch/paysaga/internal/services/payments/storage"
)

func testEvent(aggregateID string, typ event.Type) event.Event {
	return event.Event{
		AggregateID:   aggregateID,
		AggregateType: "test",
		Type:          typ,
		Timestamp:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		PayloadJSON:   []byte(`{}`),
	}
}

func TestAppendAssignsSeqAndPosition(t *testing.T) {
	ctx := context.Background()
	s := New()

	stored, err := s.AppendEvents(ctx, "a", 0, []event.Event{testEvent("a", "x"), testEvent("a", "y")})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, uint64(1), stored[0].Seq)
	assert.Equal(t, uint64(2), stored[1].Seq)
	assert.Equal(t, uint64(2), stored[1].Position)

	stored, err = s.AppendEvents(ctx, "b", 0, []event.Event{testEvent("b", "x")})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stored[0].Seq)
	assert.Equal(t, uint64(3), stored[0].Position)

	version, err := s.AggregateVersion(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), version)
}

func TestAppendRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.AppendEvents(ctx, "a", 0, []event.Event{testEvent("a", "x")})
	require.NoError(t, err)

	_, err = s.AppendEvents(ctx, "a", 0, []event.Event{testEvent("a", "y")})
	require.ErrorIs(t, err, storage.ErrConcurrencyConflict)
	var conflict *storage.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, uint64(1), conflict.Actual)

	events, err := s.ListEvents(ctx, "a", 0, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestListEventsPages(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i := 0; i < 5; i++ {
		_, err := s.AppendEvents(ctx, "a", uint64(i), []event.Event{testEvent("a", "x")})
		require.NoError(t, err)
	}

	events, err := s.ListEvents(ctx, "a", 1, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(2), events[0].Seq)
	assert.Equal(t, uint64(3), events[1].Seq)

	events, err = s.ListAllEvents(ctx, 4, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(5), events[0].Position)

	events, err = s.ListEvents(ctx, "missing", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSaveSagaRevisions(t *testing.T) {
	ctx := context.Background()
	s := New()
	inst := saga.Instance{CorrelationID: "c1", State: saga.StateStarted}

	require.NoError(t, s.SaveSaga(ctx, inst, 0))
	require.ErrorIs(t, s.SaveSaga(ctx, inst, 0), storage.ErrConcurrencyConflict)

	got, err := s.GetSaga(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Revision)

	got.State = saga.StateAuthorized
	require.NoError(t, s.SaveSaga(ctx, got, got.Revision))
	require.ErrorIs(t, s.SaveSaga(ctx, got, 1), storage.ErrConcurrencyConflict)

	_, err = s.GetSaga(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListExpiredAndPendingSagas(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveSaga(ctx, saga.Instance{CorrelationID: "due", Deadline: now.Add(-time.Second)}, 0))
	require.NoError(t, s.SaveSaga(ctx, saga.Instance{CorrelationID: "exact", Deadline: now}, 0))
	require.NoError(t, s.SaveSaga(ctx, saga.Instance{CorrelationID: "later", Deadline: now.Add(time.Minute)}, 0))
	require.NoError(t, s.SaveSaga(ctx, saga.Instance{CorrelationID: "done", Deadline: now.Add(-time.Minute), Terminal: true}, 0))
	require.NoError(t, s.SaveSaga(ctx, saga.Instance{
		CorrelationID: "pending",
		Pending:       []command.Command{{ID: "cmd-1", Type: "processing.process"}},
	}, 0))

	due, err := s.ListExpiredSagas(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "due", due[0].CorrelationID)
	assert.Equal(t, "exact", due[1].CorrelationID)

	due, err = s.ListExpiredSagas(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, due, 1)

	pending, err := s.ListPendingSagas(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "pending", pending[0].CorrelationID)
}

func TestProjectionRowsAndReset(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.PutCustomer(ctx, storage.CustomerView{
		CustomerID:     "cus-1",
		Email:          "ada@example.com",
		PaymentMethods: []storage.PaymentMethodView{{Fingerprint: "fp"}},
	}))
	require.NoError(t, s.PutSettlement(ctx, storage.SettlementView{SettlementID: "s2", MerchantID: "m1"}))
	require.NoError(t, s.PutSettlement(ctx, storage.SettlementView{SettlementID: "s1", MerchantID: "m1"}))
	require.NoError(t, s.PutSettlement(ctx, storage.SettlementView{SettlementID: "s3", MerchantID: "m2"}))
	require.NoError(t, s.PutPayment(ctx, storage.PaymentView{AuthorizationID: "auth-1"}))
	require.NoError(t, s.SaveCheckpoint(ctx, "projections", 7))

	byEmail, err := s.GetCustomerByEmail(ctx, " ADA@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "cus-1", byEmail.CustomerID)

	// Returned rows do not alias stored slices.
	byEmail.PaymentMethods[0].Fingerprint = "changed"
	stored, err := s.GetCustomer(ctx, "cus-1")
	require.NoError(t, err)
	assert.Equal(t, "fp", stored.PaymentMethods[0].Fingerprint)

	settlements, err := s.ListSettlementsByMerchant(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, settlements, 2)
	assert.Equal(t, "s1", settlements[0].SettlementID)

	position, err := s.GetCheckpoint(ctx, "projections")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), position)

	require.NoError(t, s.ResetProjections(ctx))
	_, err = s.GetPayment(ctx, "auth-1")
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetCheckpoint(ctx, "projections")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/command"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
	"github.com/louisbranch/paysaga/internal/services/payments/saga"
	"github.com/louisbranch/paysaga/internal/services/payments/storage"
)

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payments.db")
	store, err := Open(context.Background(), path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testEvent(aggregateID string, typ event.Type) event.Event {
	return event.Event{
		AggregateID:   aggregateID,
		AggregateType: "authorization",
		Type:          typ,
		Timestamp:     time.Date(2026, 2, 16, 2, 0, 0, 123456789, time.UTC),
		CorrelationID: "corr-1",
		CausationID:   "cmd-1",
		PayloadJSON:   []byte(`{"amount":100}`),
	}
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), " ")
	require.Error(t, err)
}

func TestOpenTwiceReappliesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payments.db")
	first, err := Open(context.Background(), path)
	require.NoError(t, err)
	_, err = first.AppendEvents(context.Background(), "auth-1", 0, []event.Event{testEvent("auth-1", "payment.authorized")})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer second.Close()
	version, err := second.AggregateVersion(context.Background(), "auth-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), version)
}

func TestAppendAndListEvents(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	stored, err := store.AppendEvents(ctx, "auth-1", 0, []event.Event{
		testEvent("auth-1", "payment.authorized"),
		testEvent("auth-1", "authorization.voided"),
	})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, uint64(1), stored[0].Seq)
	assert.Equal(t, uint64(2), stored[1].Seq)
	assert.Equal(t, stored[0].Position+1, stored[1].Position)
	assert.Equal(t, time.Date(2026, 2, 16, 2, 0, 0, 123000000, time.UTC), stored[0].Timestamp)

	_, err = store.AppendEvents(ctx, "proc-1", 0, []event.Event{testEvent("proc-1", "payment.processed")})
	require.NoError(t, err)

	events, err := store.ListEvents(ctx, "auth-1", 1, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.Type("authorization.voided"), events[0].Type)
	assert.Equal(t, "corr-1", events[0].CorrelationID)
	assert.Equal(t, "cmd-1", events[0].CausationID)
	assert.JSONEq(t, `{"amount":100}`, string(events[0].PayloadJSON))

	all, err := store.ListAllEvents(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "proc-1", all[2].AggregateID)

	paged, err := store.ListAllEvents(ctx, all[0].Position, 1)
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, all[1].Position, paged[0].Position)

	got, err := store.GetEventByPosition(ctx, all[2].Position)
	require.NoError(t, err)
	assert.Equal(t, all[2], got)

	_, err = store.GetEventByPosition(ctx, 999)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAppendRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	_, err := store.AppendEvents(ctx, "auth-1", 0, []event.Event{testEvent("auth-1", "payment.authorized")})
	require.NoError(t, err)

	_, err = store.AppendEvents(ctx, "auth-1", 0, []event.Event{testEvent("auth-1", "authorization.voided")})
	require.ErrorIs(t, err, storage.ErrConcurrencyConflict)
	var conflict *storage.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, uint64(0), conflict.Expected)
	assert.Equal(t, uint64(1), conflict.Actual)

	_, err = store.AppendEvents(ctx, "auth-1", 1, []event.Event{testEvent("other", "authorization.voided")})
	require.Error(t, err)
	version, err := store.AggregateVersion(ctx, "auth-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), version)
}

func TestConcurrentAppendsAdmitOneWriter(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.AppendEvents(ctx, "auth-1", 0, []event.Event{testEvent("auth-1", "payment.authorized")})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, storage.ErrConcurrencyConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, writers-1, conflicts)
}

func TestSagaRevisions(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	now := time.Date(2026, 2, 16, 2, 0, 0, 0, time.UTC)
	inst := saga.Instance{
		CorrelationID: "auth-1",
		State:         saga.StateProcessingPending,
		Amount:        10000,
		Currency:      "USD",
		Deadline:      now.Add(30 * time.Second),
		Pending:       []command.Command{{ID: "cmd-1", AggregateID: "proc-1", Type: "processing.process", PayloadJSON: []byte(`{"amount":10000}`)}},
		Handled:       []string{"auth-1/1"},
		UpdatedAt:     now,
	}

	require.NoError(t, store.SaveSaga(ctx, inst, 0))
	require.ErrorIs(t, store.SaveSaga(ctx, inst, 0), storage.ErrConcurrencyConflict)

	got, err := store.GetSaga(ctx, "auth-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Revision)
	assert.Equal(t, saga.StateProcessingPending, got.State)
	require.Len(t, got.Pending, 1)
	assert.Equal(t, "cmd-1", got.Pending[0].ID)
	assert.JSONEq(t, `{"amount":10000}`, string(got.Pending[0].PayloadJSON))
	assert.True(t, got.HasHandled("auth-1/1"))

	pending, err := store.ListPendingSagas(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	got.Pending = nil
	require.NoError(t, store.SaveSaga(ctx, got, got.Revision))
	require.ErrorIs(t, store.SaveSaga(ctx, got, got.Revision), storage.ErrConcurrencyConflict)

	pending, err = store.ListPendingSagas(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = store.GetSaga(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListExpiredSagas(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	now := time.Date(2026, 2, 16, 2, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveSaga(ctx, saga.Instance{CorrelationID: "due", State: saga.StateProcessingPending, Deadline: now.Add(-time.Second)}, 0))
	require.NoError(t, store.SaveSaga(ctx, saga.Instance{CorrelationID: "exact", State: saga.StateCompensating, Deadline: now}, 0))
	require.NoError(t, store.SaveSaga(ctx, saga.Instance{CorrelationID: "later", State: saga.StateProcessingPending, Deadline: now.Add(time.Minute)}, 0))
	require.NoError(t, store.SaveSaga(ctx, saga.Instance{CorrelationID: "done", State: saga.StateCompleted, Terminal: true}, 0))
	require.NoError(t, store.SaveSaga(ctx, saga.Instance{CorrelationID: "none", State: saga.StateStarted}, 0))

	due, err := store.ListExpiredSagas(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "due", due[0].CorrelationID)
	assert.Equal(t, "exact", due[1].CorrelationID)
}

func TestProjectionRows(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	at := time.Date(2026, 2, 16, 2, 0, 0, 0, time.UTC)

	payment := storage.PaymentView{
		AuthorizationID:     "auth-1",
		CustomerID:          "cus-1",
		MerchantID:          "mer-1",
		Amount:              10000,
		Currency:            "USD",
		AuthorizationStatus: "AUTHORIZED",
		SettlementStatus:    "SETTLED",
		Fee:                 320,
		Net:                 9680,
		AuthorizationSeq:    1,
		SettlementSeq:       1,
		UpdatedAt:           at,
	}
	require.NoError(t, store.PutPayment(ctx, payment))
	payment.AuthorizationStatus = "VOIDED"
	require.NoError(t, store.PutPayment(ctx, payment))
	got, err := store.GetPayment(ctx, "auth-1")
	require.NoError(t, err)
	assert.Equal(t, payment, got)

	customer := storage.CustomerView{
		CustomerID:     "cus-1",
		Name:           "Ada",
		Email:          "Ada@Example.com",
		PaymentMethods: []storage.PaymentMethodView{{Fingerprint: "fp", Brand: "visa", Last4: "4242", AddedAt: at}},
		RegisteredAt:   at,
		Seq:            2,
		UpdatedAt:      at,
	}
	require.NoError(t, store.PutCustomer(ctx, customer))
	byEmail, err := store.GetCustomerByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "cus-1", byEmail.CustomerID)
	assert.Equal(t, "ada@example.com", byEmail.Email)
	require.Len(t, byEmail.PaymentMethods, 1)
	assert.Equal(t, "4242", byEmail.PaymentMethods[0].Last4)
	assert.True(t, at.Equal(byEmail.RegisteredAt))

	require.NoError(t, store.PutSettlement(ctx, storage.SettlementView{SettlementID: "set-2", MerchantID: "mer-1", Net: 1, UpdatedAt: at}))
	require.NoError(t, store.PutSettlement(ctx, storage.SettlementView{SettlementID: "set-1", MerchantID: "mer-1", Net: 2, UpdatedAt: at}))
	require.NoError(t, store.PutSettlement(ctx, storage.SettlementView{SettlementID: "set-3", MerchantID: "mer-2", UpdatedAt: at}))
	settlements, err := store.ListSettlementsByMerchant(ctx, "mer-1")
	require.NoError(t, err)
	require.Len(t, settlements, 2)
	assert.Equal(t, "set-1", settlements[0].SettlementID)

	require.NoError(t, store.SaveCheckpoint(ctx, "projections", 4))
	require.NoError(t, store.SaveCheckpoint(ctx, "projections", 9))
	position, err := store.GetCheckpoint(ctx, "projections")
	require.NoError(t, err)
	assert.Equal(t, uint64(9), position)

	require.NoError(t, store.ResetProjections(ctx))
	_, err = store.GetPayment(ctx, "auth-1")
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetCustomer(ctx, "cus-1")
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetSettlement(ctx, "set-1")
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetCheckpoint(ctx, "projections")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

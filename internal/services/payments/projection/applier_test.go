package projection

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/authorization"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/customer"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/processing"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/settlement"
	"github.com/louisbranch/paysaga/internal/services/payments/storage/memory"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type logBuilder struct {
	t     *testing.T
	store *memory.Store
	tick  int
}

func newLogBuilder(t *testing.T) *logBuilder {
	t.Helper()
	return &logBuilder{t: t, store: memory.New()}
}

func (b *logBuilder) add(aggregateID, aggregateType string, typ event.Type, payload any) event.Event {
	b.t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(b.t, err)
	ctx := context.Background()
	version, err := b.store.AggregateVersion(ctx, aggregateID)
	require.NoError(b.t, err)
	b.tick++
	stored, err := b.store.AppendEvents(ctx, aggregateID, version, []event.Event{{
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Type:          typ,
		Timestamp:     baseTime.Add(time.Duration(b.tick) * time.Second),
		CorrelationID: "auth-1",
		PayloadJSON:   data,
	}})
	require.NoError(b.t, err)
	return stored[0]
}

// happyPath appends a registered customer and a fully settled payment.
func (b *logBuilder) happyPath() []event.Event {
	return []event.Event{
		b.add("cus-1", customer.AggregateType, customer.EventTypeRegistered, customer.RegisteredPayload{Name: "Ada", Email: "ada@example.com"}),
		b.add("cus-1", customer.AggregateType, customer.EventTypePaymentMethodAdded, customer.PaymentMethodAddedPayload{Fingerprint: "fp-1", Brand: "visa", Last4: "4242"}),
		b.add("auth-1", authorization.AggregateType, authorization.EventTypeAuthorized, authorization.AuthorizedPayload{CustomerID: "cus-1", MerchantID: "mer-1", Amount: 10000, Currency: "USD"}),
		b.add("proc-1", processing.AggregateType, processing.EventTypeProcessed, processing.ProcessedPayload{AuthorizationID: "auth-1", MerchantID: "mer-1", Amount: 10000, Currency: "USD", ReferenceID: "ref-p"}),
		b.add("set-1", settlement.AggregateType, settlement.EventTypeSettled, settlement.SettledPayload{AuthorizationID: "auth-1", ProcessingID: "proc-1", MerchantID: "mer-1", Amount: 10000, Fee: 320, Net: 9680, Currency: "USD", ReferenceID: "ref-s"}),
	}
}

func applyAll(t *testing.T, a *Applier, events []event.Event) {
	t.Helper()
	for _, evt := range events {
		require.NoError(t, a.Apply(context.Background(), evt))
	}
}

func TestApplyHappyPath(t *testing.T) {
	ctx := context.Background()
	b := newLogBuilder(t)
	a := &Applier{Store: b.store}
	applyAll(t, a, b.happyPath())

	payment, err := b.store.GetPayment(ctx, "auth-1")
	require.NoError(t, err)
	assert.Equal(t, "AUTHORIZED", payment.AuthorizationStatus)
	assert.Equal(t, "cus-1", payment.CustomerID)
	assert.Equal(t, "proc-1", payment.ProcessingID)
	assert.Equal(t, StatusProcessed, payment.ProcessingStatus)
	assert.Equal(t, "ref-p", payment.ProcessingReference)
	assert.Equal(t, "set-1", payment.SettlementID)
	assert.Equal(t, StatusSettled, payment.SettlementStatus)
	assert.Equal(t, int64(320), payment.Fee)
	assert.Equal(t, int64(9680), payment.Net)

	cus, err := b.store.GetCustomer(ctx, "cus-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", cus.Name)
	require.Len(t, cus.PaymentMethods, 1)
	assert.Equal(t, "4242", cus.PaymentMethods[0].Last4)

	settlements, err := b.store.ListSettlementsByMerchant(ctx, "mer-1")
	require.NoError(t, err)
	require.Len(t, settlements, 1)
	assert.Equal(t, "auth-1", settlements[0].AuthorizationID)
	assert.Equal(t, int64(9680), settlements[0].Net)
	assert.Equal(t, StatusSettled, settlements[0].Status)
}

func TestApplyCompensatedPayment(t *testing.T) {
	ctx := context.Background()
	b := newLogBuilder(t)
	a := &Applier{Store: b.store}
	authorized := b.add("auth-1", authorization.AggregateType, authorization.EventTypeAuthorized, authorization.AuthorizedPayload{CustomerID: "cus-1", MerchantID: "mer-1", Amount: 500, Currency: "USD"})
	failed := b.add("proc-1", processing.AggregateType, processing.EventTypeFailed, processing.FailedPayload{AuthorizationID: "auth-1", MerchantID: "mer-1", Amount: 500, Currency: "USD", Reason: "card declined"})
	voided := b.add("auth-1", authorization.AggregateType, authorization.EventTypeVoided, authorization.VoidedPayload{Reason: "processing failed"})
	applyAll(t, a, []event.Event{authorized, failed, voided})

	// A late redelivery of the authorization does not regress the row.
	require.NoError(t, a.Apply(ctx, authorized))

	payment, err := b.store.GetPayment(ctx, "auth-1")
	require.NoError(t, err)
	assert.Equal(t, "VOIDED", payment.AuthorizationStatus)
	assert.Equal(t, "processing failed", payment.VoidReason)
	assert.Equal(t, StatusFailed, payment.ProcessingStatus)
	assert.Equal(t, "card declined", payment.ProcessingReason)
}

func TestApplyDeclinedAndSettlementFailure(t *testing.T) {
	ctx := context.Background()
	b := newLogBuilder(t)
	a := &Applier{Store: b.store}
	applyAll(t, a, []event.Event{
		b.add("auth-2", authorization.AggregateType, authorization.EventTypeDeclined, authorization.DeclinedPayload{CustomerID: "cus-1", MerchantID: "mer-1", Amount: 900, Currency: "EUR", ReasonCode: "RISK_DECLINED"}),
		b.add("set-9", settlement.AggregateType, settlement.EventTypeFailed, settlement.FailedPayload{AuthorizationID: "auth-3", ProcessingID: "proc-3", MerchantID: "mer-2", Amount: 50, Currency: "USD", Reason: "rail down"}),
	})

	declined, err := b.store.GetPayment(ctx, "auth-2")
	require.NoError(t, err)
	assert.Equal(t, "DECLINED", declined.AuthorizationStatus)
	assert.Equal(t, "RISK_DECLINED", declined.DeclineReason)

	failed, err := b.store.GetPayment(ctx, "auth-3")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.SettlementStatus)
	assert.Equal(t, "mer-2", failed.MerchantID)

	row, err := b.store.GetSettlement(ctx, "set-9")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, row.Status)
	assert.Equal(t, "rail down", row.Reason)
}

func TestPaymentMethodUpsertsByFingerprint(t *testing.T) {
	b := newLogBuilder(t)
	a := &Applier{Store: b.store}
	applyAll(t, a, []event.Event{
		b.add("cus-1", customer.AggregateType, customer.EventTypeRegistered, customer.RegisteredPayload{Name: "Ada", Email: "ada@example.com"}),
		b.add("cus-1", customer.AggregateType, customer.EventTypePaymentMethodAdded, customer.PaymentMethodAddedPayload{Fingerprint: "fp-1", Brand: "visa", Last4: "4242"}),
		b.add("cus-1", customer.AggregateType, customer.EventTypePaymentMethodAdded, customer.PaymentMethodAddedPayload{Fingerprint: "fp-1", Brand: "VISA", Last4: "4242"}),
		b.add("cus-1", customer.AggregateType, customer.EventTypePaymentMethodAdded, customer.PaymentMethodAddedPayload{Fingerprint: "fp-2", Brand: "amex", Last4: "0005"}),
	})

	cus, err := b.store.GetCustomer(context.Background(), "cus-1")
	require.NoError(t, err)
	require.Len(t, cus.PaymentMethods, 2)
	assert.Equal(t, "VISA", cus.PaymentMethods[0].Brand)
	assert.Equal(t, "amex", cus.PaymentMethods[1].Brand)
}

func TestApplySkipsUnprojectedAndRejectsMalformed(t *testing.T) {
	a := &Applier{Store: memory.New()}
	require.NoError(t, a.Apply(context.Background(), event.Event{AggregateID: "x", Type: "unknown.type", Seq: 1}))

	err := a.Apply(context.Background(), event.Event{
		AggregateID: "proc-1",
		Type:        processing.EventTypeProcessed,
		Seq:         1,
		PayloadJSON: []byte(`{`),
	})
	require.Error(t, err)

	require.ErrorIs(t, (&Applier{}).Apply(context.Background(), event.Event{}), ErrStoreRequired)
}

func TestPartitionKeyFollowsPaymentRow(t *testing.T) {
	b := newLogBuilder(t)
	a := &Applier{Store: b.store}
	events := b.happyPath()

	assert.Equal(t, "cus-1", a.PartitionKey(events[0]))
	assert.Equal(t, "auth-1", a.PartitionKey(events[2]))
	assert.Equal(t, "auth-1", a.PartitionKey(events[3]))
	assert.Equal(t, "auth-1", a.PartitionKey(events[4]))
	assert.Equal(t, "other", a.PartitionKey(event.Event{AggregateID: "other", Type: "unknown"}))
	assert.Equal(t, SubscriberName, a.Name())
}

func TestRebuildMatchesLiveApply(t *testing.T) {
	ctx := context.Background()
	b := newLogBuilder(t)
	live := &Applier{Store: b.store, Checkpoints: b.store}
	applyAll(t, live, b.happyPath())
	before, err := b.store.GetPayment(ctx, "auth-1")
	require.NoError(t, err)

	position, err := live.Rebuild(ctx, b.store)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), position)

	after, err := b.store.GetPayment(ctx, "auth-1")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	checkpoint, err := b.store.GetCheckpoint(ctx, SubscriberName)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), checkpoint)
}

func TestCatchupResumesFromCheckpoint(t *testing.T) {
	ctx := context.Background()
	b := newLogBuilder(t)
	a := &Applier{Store: b.store, Checkpoints: b.store}
	b.happyPath()

	position, err := a.Catchup(ctx, b.store)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), position)

	b.add("auth-2", authorization.AggregateType, authorization.EventTypeDeclined, authorization.DeclinedPayload{CustomerID: "cus-1", MerchantID: "mer-1", Amount: 1, Currency: "USD", ReasonCode: "RISK_DECLINED"})
	counting := &countingLog{EventLog: b.store}
	position, err = a.Catchup(ctx, counting)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), position)
	assert.Equal(t, 1, counting.served)

	_, err = a.Catchup(ctx, nil)
	require.ErrorIs(t, err, ErrEventLogRequired)
}

type countingLog struct {
	EventLog
	served int
}

func (l *countingLog) ListAllEvents(ctx context.Context, after uint64, limit int) ([]event.Event, error) {
	events, err := l.EventLog.ListAllEvents(ctx, after, limit)
	l.served += len(events)
	return events, err
}

func TestRedeliveryIsIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("reapplying delivered events leaves rows unchanged", prop.ForAll(
		func(redeliveries []int) bool {
			ctx := context.Background()
			b := newLogBuilder(t)
			events := b.happyPath()
			a := &Applier{Store: b.store}
			for _, evt := range events {
				if a.Apply(ctx, evt) != nil {
					return false
				}
			}
			payment, _ := b.store.GetPayment(ctx, "auth-1")
			cus, _ := b.store.GetCustomer(ctx, "cus-1")
			row, _ := b.store.GetSettlement(ctx, "set-1")

			for _, i := range redeliveries {
				if a.Apply(ctx, events[i]) != nil {
					return false
				}
			}
			payment2, _ := b.store.GetPayment(ctx, "auth-1")
			cus2, _ := b.store.GetCustomer(ctx, "cus-1")
			row2, _ := b.store.GetSettlement(ctx, "set-1")
			return assert.ObjectsAreEqual(payment, payment2) &&
				assert.ObjectsAreEqual(cus, cus2) &&
				assert.ObjectsAreEqual(row, row2)
		},
		gen.SliceOf(gen.IntRange(0, 4)),
	))

	properties.TestingRun(t)
}

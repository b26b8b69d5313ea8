package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
)

type recorder struct {
	name     string
	mu       sync.Mutex
	seen     map[string][]uint64
	active   map[string]int
	overlaps int
	failures map[string]int
	panicOn  string
}

func newRecorder(name string) *recorder {
	return &recorder{name: name, seen: map[string][]uint64{}, active: map[string]int{}, failures: map[string]int{}}
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) PartitionKey(evt event.Event) string { return evt.AggregateID }

func (r *recorder) HandleEvent(_ context.Context, evt event.Event) error {
	r.mu.Lock()
	r.active[evt.AggregateID]++
	if r.active[evt.AggregateID] > 1 {
		r.overlaps++
	}
	fail := r.failures[evt.ID()] > 0
	if fail {
		r.failures[evt.ID()]--
	}
	r.mu.Unlock()

	time.Sleep(100 * time.Microsecond)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[evt.AggregateID]--
	if evt.ID() == r.panicOn {
		panic("boom")
	}
	if fail {
		return errors.New("transient")
	}
	r.seen[evt.AggregateID] = append(r.seen[evt.AggregateID], evt.Seq)
	return nil
}

func startBus(t *testing.T, bus *Bus) (context.Context, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bus.Run(ctx) }()
	return ctx, func() {
		cancel()
		require.NoError(t, <-done)
	}
}

func streamEvents(aggregates, perAggregate int) []event.Event {
	var out []event.Event
	for seq := 1; seq <= perAggregate; seq++ {
		for a := 0; a < aggregates; a++ {
			out = append(out, event.Event{AggregateID: fmt.Sprintf("agg-%d", a), Seq: uint64(seq), Type: "x.happened"})
		}
	}
	return out
}

func TestBus_PreservesPerKeyOrder(t *testing.T) {
	bus := NewBus(Options{Partitions: 4})
	rec := newRecorder("rec")
	require.NoError(t, bus.Subscribe(rec))
	ctx, stop := startBus(t, bus)
	defer stop()

	require.NoError(t, bus.Publish(ctx, streamEvents(10, 20)...))
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, bus.WaitIdle(waitCtx))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 0, rec.overlaps, "same key handled concurrently")
	require.Len(t, rec.seen, 10)
	for agg, seqs := range rec.seen {
		require.Len(t, seqs, 20, agg)
		for i, seq := range seqs {
			assert.Equal(t, uint64(i+1), seq, "%s out of order", agg)
		}
	}
}

func TestBus_RedeliversFailures(t *testing.T) {
	bus := NewBus(Options{Partitions: 2, MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond})
	rec := newRecorder("rec")
	rec.failures["agg-0/1"] = 2
	require.NoError(t, bus.Subscribe(rec))
	ctx, stop := startBus(t, bus)
	defer stop()

	require.NoError(t, bus.Publish(ctx, streamEvents(1, 2)...))
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, bus.WaitIdle(waitCtx))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []uint64{1, 2}, rec.seen["agg-0"])
}

func TestBus_DeadLettersAfterMaxAttempts(t *testing.T) {
	var mu sync.Mutex
	var dead []string
	bus := NewBus(Options{
		Partitions:      1,
		MaxAttempts:     2,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		OnDeadLetter: func(subscriber string, evt event.Event, err error) {
			mu.Lock()
			defer mu.Unlock()
			dead = append(dead, subscriber+":"+evt.ID())
		},
	})
	rec := newRecorder("rec")
	rec.panicOn = "agg-0/1"
	require.NoError(t, bus.Subscribe(rec))
	ctx, stop := startBus(t, bus)
	defer stop()

	require.NoError(t, bus.Publish(ctx, streamEvents(1, 2)...))
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, bus.WaitIdle(waitCtx))

	mu.Lock()
	assert.Equal(t, []string{"rec:agg-0/1"}, dead)
	mu.Unlock()
	rec.mu.Lock()
	assert.Equal(t, []uint64{2}, rec.seen["agg-0"], "later events still flow")
	rec.mu.Unlock()
}

func TestBus_EverySubscriberGetsEveryEvent(t *testing.T) {
	bus := NewBus(Options{})
	a, b := newRecorder("a"), newRecorder("b")
	require.NoError(t, bus.Subscribe(a))
	require.NoError(t, bus.Subscribe(b))
	require.Error(t, bus.Subscribe(newRecorder("a")))

	ctx, stop := startBus(t, bus)
	defer stop()
	require.ErrorIs(t, bus.Subscribe(newRecorder("c")), ErrRunning)

	require.NoError(t, bus.Publish(ctx, streamEvents(3, 3)...))
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, bus.WaitIdle(waitCtx))
	for _, rec := range []*recorder{a, b} {
		rec.mu.Lock()
		total := 0
		for _, seqs := range rec.seen {
			total += len(seqs)
		}
		rec.mu.Unlock()
		assert.Equal(t, 9, total, rec.name)
	}
}

func TestBus_PublishAfterStopFails(t *testing.T) {
	bus := NewBus(Options{})
	_, stop := startBus(t, bus)
	stop()
	assert.ErrorIs(t, bus.Publish(context.Background(), event.Event{AggregateID: "a", Seq: 1}), ErrClosed)
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, ...event.Event) error { return f.err }

func TestFanout_JoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	f := Fanout{failingPublisher{}, nil, failingPublisher{err: boom}}
	assert.ErrorIs(t, f.Publish(context.Background(), event.Event{}), boom)
	assert.NoError(t, Fanout{failingPublisher{}}.Publish(context.Background()))
}

func TestPartitionIndexIsStable(t *testing.T) {
	for _, key := range []string{"", "auth-1", "a much longer correlation id"} {
		first := PartitionIndex(key, 8)
		assert.Equal(t, first, PartitionIndex(key, 8))
		assert.True(t, first >= 0 && first < 8)
	}
}

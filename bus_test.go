package xsurface

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestBus builds a bus without observer workers.
func newTestBus(t *testing.T) *Bus {
	t.Helper()
	b, err := NewBusBuilder().WithObserverPool(0, 0).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close(context.Background()) })
	return b
}

// recorder appends its tag to a shared log and returns a fixed result.
func recorder(log *[]string, tag string, result bool) Listener {
	return ListenerFunc(func(e Event) bool {
		*log = append(*log, tag)
		return result
	})
}

// TestBus_PriorityOrder tests HIGH before NORMAL before LOW.
func TestBus_PriorityOrder(t *testing.T) {
	b := newTestBus(t)
	var log []string

	require.NotZero(t, b.Subscribe(recorder(&log, "high", false), PriorityHigh))
	require.NotZero(t, b.Subscribe(recorder(&log, "normal", false), PriorityNormal))
	require.NotZero(t, b.Subscribe(recorder(&log, "low", false), PriorityLow))

	b.Publish(&MidiCCEvent{Controller: 7, Value: 64})
	assert.Equal(t, []string{"high", "normal", "low"}, log)
}

// TestBus_PriorityOrder_ReverseRegistration tests sorting when registered low first.
func TestBus_PriorityOrder_ReverseRegistration(t *testing.T) {
	b := newTestBus(t)
	var log []string

	b.SubscribeLow(recorder(&log, "low", false))
	b.SubscribeNormal(recorder(&log, "normal-1", false))
	b.SubscribeHigh(recorder(&log, "high", false))
	b.SubscribeNormal(recorder(&log, "normal-2", false))

	b.Publish(&MidiCCEvent{})
	assert.Equal(t, []string{"high", "normal-1", "normal-2", "low"}, log)
}

// TestBus_HandledDoesNotStopDispatch tests that every listener sees a handled event.
func TestBus_HandledDoesNotStopDispatch(t *testing.T) {
	b := newTestBus(t)
	var log []string

	b.SubscribeHigh(recorder(&log, "a", true))
	b.SubscribeNormal(recorder(&log, "b", false))

	e := &MidiNoteOnEvent{Note: 60, Velocity: 100}
	assert.True(t, b.Publish(e))
	assert.True(t, e.Handled())
	assert.Equal(t, []string{"a", "b"}, log)
}

// TestBus_StopPropagation tests that StopPropagation halts later listeners.
func TestBus_StopPropagation(t *testing.T) {
	b := newTestBus(t)
	var log []string

	b.SubscribeHigh(ListenerFunc(func(e Event) bool {
		log = append(log, "stopper")
		e.StopPropagation()
		return false
	}))
	b.SubscribeLow(recorder(&log, "never", true))

	assert.False(t, b.Publish(&MidiCCEvent{}))
	assert.Equal(t, []string{"stopper"}, log)
	assert.Equal(t, uint64(1), b.GetMetrics().Stopped)
}

// TestBus_SubscribeInvalid tests the reserved id 0 for bad input.
func TestBus_SubscribeInvalid(t *testing.T) {
	b := newTestBus(t)

	assert.Equal(t, InvalidSubscription, b.Subscribe(nil, PriorityHigh))
	var nilFn ListenerFunc
	assert.Equal(t, InvalidSubscription, b.Subscribe(nilFn, PriorityHigh))
	assert.Equal(t, InvalidSubscription, b.Subscribe(recorder(new([]string), "x", false), Priority(9)))
	assert.Zero(t, b.Count())
}

// TestBus_IDsMonotonic tests that ids grow and are never reused.
func TestBus_IDsMonotonic(t *testing.T) {
	b := newTestBus(t)
	l := recorder(new([]string), "x", false)

	id1 := b.SubscribeNormal(l)
	id2 := b.SubscribeNormal(l)
	require.True(t, b.Unsubscribe(id1))
	id3 := b.SubscribeNormal(l)

	assert.Equal(t, SubscriptionID(1), id1)
	assert.Greater(t, id2, id1)
	assert.Greater(t, id3, id2)
	assert.Equal(t, 2, b.Count())
}

// TestBus_PauseResume tests that paused subscriptions are skipped.
func TestBus_PauseResume(t *testing.T) {
	b := newTestBus(t)
	var log []string
	id := b.SubscribeNormal(recorder(&log, "x", true))

	require.True(t, b.Pause(id))
	assert.True(t, b.Exists(id))
	assert.False(t, b.IsActive(id))
	assert.False(t, b.Publish(&MidiCCEvent{}))
	assert.Empty(t, log)

	require.True(t, b.Resume(id))
	assert.True(t, b.IsActive(id))
	assert.True(t, b.Publish(&MidiCCEvent{}))
	assert.Equal(t, []string{"x"}, log)

	assert.False(t, b.Pause(999))
	assert.False(t, b.Resume(InvalidSubscription))
}

// TestBus_Unsubscribe tests removal and unknown ids.
func TestBus_Unsubscribe(t *testing.T) {
	b := newTestBus(t)
	var log []string
	id := b.SubscribeNormal(recorder(&log, "x", false))

	assert.True(t, b.Unsubscribe(id))
	assert.False(t, b.Unsubscribe(id))
	assert.False(t, b.Exists(id))
	b.Publish(&MidiCCEvent{})
	assert.Empty(t, log)
}

// TestBus_ListenerPanicContinues tests that a panicking listener does not stop dispatch.
func TestBus_ListenerPanicContinues(t *testing.T) {
	b := newTestBus(t)
	var log []string

	b.SubscribeHigh(ListenerFunc(func(Event) bool { panic("boom") }))
	b.SubscribeLow(recorder(&log, "after", true))

	assert.True(t, b.Publish(&MidiCCEvent{}))
	assert.Equal(t, []string{"after"}, log)
	assert.Equal(t, uint64(1), b.GetMetrics().ListenerErrors)
}

// TestBus_MutationDuringDispatch tests subscribe/unsubscribe from inside a listener.
func TestBus_MutationDuringDispatch(t *testing.T) {
	b := newTestBus(t)
	var log []string

	var victim SubscriptionID
	b.SubscribeHigh(ListenerFunc(func(Event) bool {
		log = append(log, "first")
		b.Unsubscribe(victim)
		b.SubscribeHigh(recorder(&log, "late", false))
		return false
	}))
	victim = b.SubscribeLow(recorder(&log, "victim", false))

	b.Publish(&MidiCCEvent{})
	assert.Equal(t, []string{"first"}, log)
	assert.Equal(t, 2, b.Count())

	log = nil
	b.Publish(&MidiCCEvent{})
	assert.Equal(t, []string{"first", "late"}, log)
}

// TestBus_Clear tests that Clear drops all subscriptions.
func TestBus_Clear(t *testing.T) {
	b := newTestBus(t)
	id := b.SubscribeHigh(recorder(new([]string), "x", true))
	b.SubscribeLow(recorder(new([]string), "y", true))

	b.Clear()
	assert.Zero(t, b.Count())
	assert.False(t, b.Exists(id))
	assert.False(t, b.Publish(&MidiCCEvent{}))
}

// TestBus_ClearReleasesListeners tests that Clear leaves no listener
// reachable from the retained backing arrays.
func TestBus_ClearReleasesListeners(t *testing.T) {
	b := newTestBus(t)
	for i := 0; i < 8; i++ {
		b.SubscribeNormal(recorder(new([]string), "x", false))
	}
	b.Publish(&MidiCCEvent{})
	b.SubscribeHigh(ListenerFunc(func(Event) bool {
		b.SubscribeLow(recorder(new([]string), "pending", false))
		return false
	}))
	b.Publish(&MidiCCEvent{})

	b.Clear()
	assert.Zero(t, b.Count())
	for i, s := range b.subs[:cap(b.subs)] {
		assert.Nil(t, s.listener, "subs[%d]", i)
	}
	for i, s := range b.pending[:cap(b.pending)] {
		assert.Nil(t, s.listener, "pending[%d]", i)
	}
}

// TestBus_SubscribeLevel tests the numeric priority mapping.
func TestBus_SubscribeLevel(t *testing.T) {
	assert.Equal(t, PriorityHigh, PriorityFromLevel(255))
	assert.Equal(t, PriorityHigh, PriorityFromLevel(200))
	assert.Equal(t, PriorityNormal, PriorityFromLevel(199))
	assert.Equal(t, PriorityNormal, PriorityFromLevel(50))
	assert.Equal(t, PriorityLow, PriorityFromLevel(49))
	assert.Equal(t, PriorityLow, PriorityFromLevel(0))

	b := newTestBus(t)
	var log []string
	b.SubscribeLevel(recorder(&log, "low", false), 10)
	b.SubscribeLevel(recorder(&log, "high", false), 220)
	b.Publish(&MidiCCEvent{})
	assert.Equal(t, []string{"high", "low"}, log)
}

// TestBus_Close tests that a closed bus refuses work and reports unhealthy.
func TestBus_Close(t *testing.T) {
	b := newTestBus(t)
	b.SubscribeHigh(recorder(new([]string), "x", true))

	assert.Equal(t, StatusHealthy, b.Health(context.Background()).Status)
	require.NoError(t, b.Close(context.Background()))
	require.NoError(t, b.Close(context.Background()))

	assert.False(t, b.Publish(&MidiCCEvent{}))
	assert.Equal(t, InvalidSubscription, b.SubscribeHigh(recorder(new([]string), "y", true)))
	assert.Equal(t, StatusUnhealthy, b.Health(context.Background()).Status)
}

// TestBus_HealthDegraded tests the listener error rate threshold.
func TestBus_HealthDegraded(t *testing.T) {
	b := newTestBus(t)
	b.SubscribeHigh(ListenerFunc(func(Event) bool { panic("always") }))

	for i := 0; i < 10; i++ {
		b.Publish(&MidiCCEvent{})
	}
	h := b.Health(context.Background())
	assert.Equal(t, StatusDegraded, h.Status)
	assert.Equal(t, uint64(10), h.Metrics.Published)
}

// TestBus_Observers tests that lifecycle events reach observers asynchronously.
func TestBus_Observers(t *testing.T) {
	got := make(chan BusEvent, 16)
	b, err := NewBusBuilder().
		WithObserver(ObserverFunc(func(e BusEvent) { got <- e })).
		WithObserverPool(1, 16).
		Build()
	require.NoError(t, err)
	defer func() { _ = b.Close(context.Background()) }()

	id := b.SubscribeNormal(recorder(new([]string), "x", false))
	select {
	case e := <-got:
		assert.Equal(t, Subscribed, e.Kind)
		assert.Equal(t, id, e.SubscriptionID)
		assert.Equal(t, PriorityNormal, e.Priority)
	case <-time.After(2 * time.Second):
		t.Fatal("no subscribed notification")
	}
}

// TestBus_BuilderRejectsNegativeCapacity tests builder validation.
func TestBus_BuilderRejectsNegativeCapacity(t *testing.T) {
	_, err := NewBusBuilder().WithCapacity(-1).Build()
	assert.ErrorIs(t, err, ErrInvalidCapacity)

	b, closeFn, err := New(func(bb *BusBuilder) { bb.WithCapacity(8).WithObserverPool(0, 0) })
	require.NoError(t, err)
	defer closeFn()
	assert.Equal(t, 8, b.Capacity())
}

// TestMiddleware_Filters tests type and category filtering plus Chain.
func TestMiddleware_Filters(t *testing.T) {
	b := newTestBus(t)
	var log []string

	b.SubscribeNormal(Chain(recorder(&log, "ui", true), TypeFilter(UIParameterUpdate)))
	b.SubscribeNormal(Chain(recorder(&log, "midi", true), CategoryFilter(CategoryMIDI)))

	b.Publish(&UIParameterUpdateEvent{Controller: 7})
	b.Publish(&MidiNoteOffEvent{})
	assert.Equal(t, []string{"ui", "midi"}, log)
}

// TestMiddleware_StopAfterHandled tests first-match-wins composition.
func TestMiddleware_StopAfterHandled(t *testing.T) {
	b := newTestBus(t)
	var log []string

	b.SubscribeHigh(Chain(recorder(&log, "first", true), StopAfterHandled()))
	b.SubscribeLow(recorder(&log, "second", true))

	assert.True(t, b.Publish(&MidiCCEvent{}))
	assert.Equal(t, []string{"first"}, log)
}

// TestContext_BusRoundTrip tests explicit bus passing through context.
func TestContext_BusRoundTrip(t *testing.T) {
	b := newTestBus(t)
	ctx := WithBus(context.Background(), b)

	got, ok := BusFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, b, got)

	_, ok = BusFromContext(context.Background())
	assert.False(t, ok)
	_, ok = LoggerFromContext(ctx)
	assert.False(t, ok)
}

// BenchmarkBus_Publish measures dispatch to three listeners.
func BenchmarkBus_Publish(b *testing.B) {
	bus, err := NewBusBuilder().WithObserverPool(0, 0).Build()
	if err != nil {
		b.Fatalf("build bus: %v", err)
	}
	noop := ListenerFunc(func(Event) bool { return true })
	bus.SubscribeHigh(noop)
	bus.SubscribeNormal(noop)
	bus.SubscribeLow(noop)
	e := &MidiCCEvent{Controller: 7}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.ResetDispatch()
		bus.Publish(e)
	}
}

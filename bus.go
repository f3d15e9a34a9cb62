package xsurface

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xlog"
)

var _ API = (*Bus)(nil)
var _ HealthChecker = (*Bus)(nil)

// DefaultCapacity is the number of subscription slots reserved up front.
const DefaultCapacity = 32

// subscription is one registration of a listener.
type subscription struct {
	listener Listener
	id       SubscriptionID
	priority Priority
	active   bool
	removed  bool
}

// Bus is a priority-ordered, in-process publish/subscribe dispatcher.
//
// Subscription state is owned by a single goroutine (the main loop); only the
// metrics and the observer list may be touched concurrently. Listeners may
// subscribe and unsubscribe from inside OnEvent: removals take effect
// immediately, additions become visible to the next Publish.
type Bus struct {
	subs    []subscription
	pending []subscription
	nextID  SubscriptionID
	idsUsed bool

	dispatching int
	dirty       bool

	clock        Clock
	logger       *xlog.Logger
	observerPool *ObserverPool
	observersMu  sync.RWMutex
	observers    []Observer
	metrics      *busMetrics
	closed       atomic.Bool
	closeOnce    sync.Once
}

// busMetrics uses lock-free atomics so diagnostics can read them from any goroutine.
type busMetrics struct {
	published      atomic.Uint64
	handled        atomic.Uint64
	stopped        atomic.Uint64
	listenerErrors atomic.Uint64
	subscriptions  atomic.Int64
}

// Subscribe registers l at priority p and returns its id, or
// InvalidSubscription when l is nil, the bus is closed, or ids are exhausted.
// Within a priority, listeners run in registration order.
func (b *Bus) Subscribe(l Listener, p Priority) SubscriptionID {
	if isNilListener(l) || b.closed.Load() || p > PriorityLow {
		return InvalidSubscription
	}
	if b.idsUsed {
		return InvalidSubscription
	}
	b.nextID++
	id := b.nextID
	if id == ^SubscriptionID(0) {
		b.idsUsed = true
	}

	s := subscription{listener: l, id: id, priority: p, active: true}
	if b.dispatching > 0 {
		b.pending = append(b.pending, s)
	} else {
		b.insert(s)
	}
	b.metrics.subscriptions.Add(1)
	b.notifyAsync(BusEvent{Kind: Subscribed, SubscriptionID: id, Priority: p})
	return id
}

// SubscribeLevel subscribes with a numeric 0-255 level (see PriorityFromLevel).
func (b *Bus) SubscribeLevel(l Listener, level uint8) SubscriptionID {
	return b.Subscribe(l, PriorityFromLevel(level))
}

func (b *Bus) SubscribeHigh(l Listener) SubscriptionID   { return b.Subscribe(l, PriorityHigh) }
func (b *Bus) SubscribeNormal(l Listener) SubscriptionID { return b.Subscribe(l, PriorityNormal) }
func (b *Bus) SubscribeLow(l Listener) SubscriptionID    { return b.Subscribe(l, PriorityLow) }

// insert places s after every subscription of equal or higher priority.
func (b *Bus) insert(s subscription) {
	pos := len(b.subs)
	for i := range b.subs {
		if b.subs[i].priority > s.priority {
			pos = i
			break
		}
	}
	b.subs = slices.Insert(b.subs, pos, s)
}

// Unsubscribe removes a subscription. Returns false for unknown ids.
func (b *Bus) Unsubscribe(id SubscriptionID) bool {
	if id == InvalidSubscription {
		return false
	}
	if i := b.find(id); i >= 0 {
		if b.dispatching > 0 {
			b.subs[i].active = false
			b.subs[i].removed = true
			b.dirty = true
		} else {
			b.subs = slices.Delete(b.subs, i, i+1)
		}
	} else if j := b.findPending(id); j >= 0 {
		b.pending = slices.Delete(b.pending, j, j+1)
	} else {
		return false
	}
	b.metrics.subscriptions.Add(-1)
	b.notifyAsync(BusEvent{Kind: Unsubscribed, SubscriptionID: id})
	return true
}

// Pause keeps the subscription but skips it during dispatch.
func (b *Bus) Pause(id SubscriptionID) bool { return b.setActive(id, false) }

// Resume re-enables a paused subscription.
func (b *Bus) Resume(id SubscriptionID) bool { return b.setActive(id, true) }

func (b *Bus) setActive(id SubscriptionID, active bool) bool {
	if i := b.find(id); i >= 0 {
		b.subs[i].active = active
		return true
	}
	if j := b.findPending(id); j >= 0 {
		b.pending[j].active = active
		return true
	}
	return false
}

// Exists reports whether id is a live subscription.
func (b *Bus) Exists(id SubscriptionID) bool {
	return b.find(id) >= 0 || b.findPending(id) >= 0
}

// IsActive reports whether id exists and is not paused.
func (b *Bus) IsActive(id SubscriptionID) bool {
	if i := b.find(id); i >= 0 {
		return b.subs[i].active
	}
	if j := b.findPending(id); j >= 0 {
		return b.pending[j].active
	}
	return false
}

// state reports existence and activity of id with a single lookup.
func (b *Bus) state(id SubscriptionID) (exists, active bool) {
	if i := b.find(id); i >= 0 {
		return true, b.subs[i].active
	}
	if j := b.findPending(id); j >= 0 {
		return true, b.pending[j].active
	}
	return false, false
}

// Count returns the number of live subscriptions, paused ones included.
func (b *Bus) Count() int {
	return int(b.metrics.subscriptions.Load())
}

// Capacity returns the reserved subscription slots.
func (b *Bus) Capacity() int { return cap(b.subs) }

// Clear drops every subscription. Ids are not reused.
func (b *Bus) Clear() {
	if b.dispatching > 0 {
		for i := range b.subs {
			b.subs[i].active = false
			b.subs[i].removed = true
		}
		b.dirty = true
	} else {
		clear(b.subs)
		b.subs = b.subs[:0]
	}
	clear(b.pending)
	b.pending = b.pending[:0]
	b.metrics.subscriptions.Store(0)
}

// Publish dispatches e to every active subscription in priority order.
// Returns true if at least one listener handled it. Dispatch stops early
// only when a listener calls e.StopPropagation().
// OPTIMIZATION: no allocation, no observer traffic on this path.
func (b *Bus) Publish(e Event) bool {
	if e == nil || b.closed.Load() {
		return false
	}
	b.metrics.published.Add(1)
	return b.dispatch(e, nil)
}

// dispatch walks the sorted list, skipping ids in skip.
func (b *Bus) dispatch(e Event, skip []SubscriptionID) bool {
	b.dispatching++
	handled := false
	for i := 0; i < len(b.subs); i++ {
		s := &b.subs[i]
		if !s.active || (len(skip) > 0 && slices.Contains(skip, s.id)) {
			continue
		}
		if b.invoke(s.listener, s.id, e) {
			handled = true
			e.SetHandled()
		}
		if !e.Propagates() {
			b.metrics.stopped.Add(1)
			break
		}
	}
	b.dispatching--
	if b.dispatching == 0 {
		b.settle()
	}
	if handled {
		b.metrics.handled.Add(1)
	}
	return handled
}

// invoke calls one listener, converting a panic into a counted error.
func (b *Bus) invoke(l Listener, id SubscriptionID, e Event) (handled bool) {
	defer func() {
		if r := recover(); r != nil {
			handled = false
			b.metrics.listenerErrors.Add(1)
			err := fmt.Errorf("%w: %v", ErrListenerPanic, r)
			b.logger.Warn().Err(err).Str("event", e.Name()).Msg("xsurface: listener panic (recovered)")
			b.notifyAsync(BusEvent{
				Kind:           ListenerPanic,
				SubscriptionID: id,
				EventType:      e.Type(),
				EventName:      e.Name(),
				Err:            err,
			})
		}
	}()
	return l.OnEvent(e)
}

// settle applies membership changes made while dispatching.
func (b *Bus) settle() {
	if b.dirty {
		b.subs = slices.DeleteFunc(b.subs, func(s subscription) bool { return s.removed })
		b.dirty = false
	}
	if len(b.pending) > 0 {
		for _, s := range b.pending {
			b.insert(s)
		}
		clear(b.pending)
		b.pending = b.pending[:0]
	}
}

func (b *Bus) find(id SubscriptionID) int {
	if id == InvalidSubscription {
		return -1
	}
	for i := range b.subs {
		if b.subs[i].id == id && !b.subs[i].removed {
			return i
		}
	}
	return -1
}

func (b *Bus) findPending(id SubscriptionID) int {
	if id == InvalidSubscription {
		return -1
	}
	for i := range b.pending {
		if b.pending[i].id == id {
			return i
		}
	}
	return -1
}

// GetMetrics returns current bus metrics.
func (b *Bus) GetMetrics() Metrics {
	m := Metrics{
		Published:      b.metrics.published.Load(),
		Handled:        b.metrics.handled.Load(),
		Stopped:        b.metrics.stopped.Load(),
		ListenerErrors: b.metrics.listenerErrors.Load(),
		Subscriptions:  int(b.metrics.subscriptions.Load()),
	}
	if b.observerPool != nil {
		m.ObserverDropped = b.observerPool.Stats().Dropped
	}
	return m
}

// Health reports unhealthy once closed and degraded when more than 5% of
// publishes hit a panicking listener.
func (b *Bus) Health(ctx context.Context) HealthStatus {
	now := b.clock.Now()
	if b.closed.Load() {
		return HealthStatus{
			Status:    StatusUnhealthy,
			Timestamp: now,
			Message:   "bus is closed",
		}
	}

	metrics := b.GetMetrics()
	status := StatusHealthy
	if metrics.ListenerErrors > 0 && metrics.Published > 0 {
		errorRate := float64(metrics.ListenerErrors) / float64(metrics.Published)
		if errorRate > 0.05 {
			status = StatusDegraded
		}
	}

	return HealthStatus{
		Status:    status,
		Metrics:   metrics,
		Timestamp: now,
	}
}

// Close stops dispatch and drains the observer pool.
// CRITICAL: Idempotent via sync.Once.
func (b *Bus) Close(ctx context.Context) error {
	var closeErr error

	b.closeOnce.Do(func() {
		b.notifyAsync(BusEvent{Kind: BusClosed})
		b.closed.Store(true)

		if b.observerPool != nil {
			timeout := 5 * time.Second
			if dl, ok := ctx.Deadline(); ok {
				timeout = time.Until(dl)
			}
			if err := b.observerPool.Close(timeout); err != nil {
				b.logger.Warn().Err(err).Msg("xsurface: observer pool shutdown timeout")
				closeErr = err
			}
		}
	})

	return closeErr
}

// AddObserver registers an observer (thread-safe).
func (b *Bus) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	b.observersMu.Lock()
	b.observers = append(b.observers, obs)
	b.observersMu.Unlock()
}

// RemoveObserver removes an observer.
func (b *Bus) RemoveObserver(obs Observer) {
	if obs == nil {
		return
	}
	b.observersMu.Lock()
	defer b.observersMu.Unlock()

	for i, o := range b.observers {
		if o == obs {
			b.observers = append(b.observers[:i], b.observers[i+1:]...)
			break
		}
	}
}

// notifyAsync dispatches lifecycle events asynchronously (non-blocking).
// CRITICAL: Fails fast on closed bus, avoids observer copy if no observers.
func (b *Bus) notifyAsync(e BusEvent) {
	if b.observerPool == nil || b.closed.Load() {
		return
	}

	b.observersMu.RLock()
	observerCount := len(b.observers)
	if observerCount == 0 {
		b.observersMu.RUnlock()
		return
	}

	observers := make([]Observer, observerCount)
	copy(observers, b.observers)
	b.observersMu.RUnlock()

	b.observerPool.Notify(e, observers)
}

func isNilListener(l Listener) bool {
	if l == nil {
		return true
	}
	if f, ok := l.(ListenerFunc); ok && f == nil {
		return true
	}
	return false
}

package xsurface

import "sync/atomic"

// Tier capacities of TieredBus. These are hard caps.
const (
	MaxHighPriorityListeners   = 4
	MaxNormalPriorityListeners = 8
	MaxLowPriorityListeners    = 4
)

type tierSlot struct {
	listener Listener
	id       SubscriptionID
	paused   bool
	removed  bool
}

// TieredBus fronts a Bus with fixed per-priority arrays. PublishHighPriority
// runs the small HIGH array directly, bypassing the sorted subscription list,
// and only falls through to the general bus when nobody in the tier handled
// the event.
type TieredBus struct {
	bus *Bus

	high    [MaxHighPriorityListeners]tierSlot
	normal  [MaxNormalPriorityListeners]tierSlot
	low     [MaxLowPriorityListeners]tierSlot
	highN   int
	normalN int
	lowN    int

	// highIDs mirrors the ids in high so fallthrough can skip them without allocating.
	highIDs [MaxHighPriorityListeners]SubscriptionID

	// dispatching and dirty defer tier compaction until PublishHighPriority returns.
	dispatching int
	dirty       bool

	fallThrough bool
	counters    [HighPriorityButtonPress - HighPriorityEncoderChanged + 1]atomic.Uint32
}

// TieredOption configures a TieredBus.
type TieredOption func(*TieredBus)

// WithFallthrough sets whether unhandled high-priority events continue to the general bus.
func WithFallthrough(enabled bool) TieredOption {
	return func(t *TieredBus) { t.fallThrough = enabled }
}

// NewTieredBus wraps bus. Fallthrough is enabled by default.
func NewTieredBus(bus *Bus, opts ...TieredOption) *TieredBus {
	t := &TieredBus{bus: bus, fallThrough: true}
	for _, o := range opts {
		if o != nil {
			o(t)
		}
	}
	return t
}

// Bus returns the general bus behind the tiers.
func (t *TieredBus) Bus() *Bus { return t.bus }

// SubscribeWithPriority stores l in the tier for p and also registers it on
// the general bus at the same priority. Returns InvalidSubscription when l is
// nil or the tier is full.
func (t *TieredBus) SubscribeWithPriority(l Listener, p Priority) SubscriptionID {
	if isNilListener(l) {
		return InvalidSubscription
	}
	slots, n, full := t.tierFor(p)
	if slots == nil {
		return InvalidSubscription
	}
	if *n >= full {
		t.bus.notifyAsync(BusEvent{Kind: TierFull, Priority: p})
		return InvalidSubscription
	}
	id := t.bus.Subscribe(l, p)
	if id == InvalidSubscription {
		return InvalidSubscription
	}
	slots[*n] = tierSlot{listener: l, id: id}
	if p == PriorityHigh {
		t.highIDs[*n] = id
	}
	*n++
	return id
}

// tierFor returns the slot slice, the live count and the capacity for p.
func (t *TieredBus) tierFor(p Priority) ([]tierSlot, *int, int) {
	switch p {
	case PriorityHigh:
		return t.high[:], &t.highN, MaxHighPriorityListeners
	case PriorityNormal:
		return t.normal[:], &t.normalN, MaxNormalPriorityListeners
	case PriorityLow:
		return t.low[:], &t.lowN, MaxLowPriorityListeners
	default:
		return nil, nil, 0
	}
}

// TierCount returns how many listeners occupy tier p.
func (t *TieredBus) TierCount(p Priority) int {
	slots, n, _ := t.tierFor(p)
	if n == nil {
		return 0
	}
	live := 0
	for i := 0; i < *n; i++ {
		if !slots[i].removed {
			live++
		}
	}
	return live
}

// PublishHighPriority dispatches e to the HIGH tier in registration order.
// Handled never stops the tier; StopPropagation does. When no tier listener
// handled e and fallthrough is enabled, e continues on the general bus,
// skipping the subscriptions the tier already ran.
func (t *TieredBus) PublishHighPriority(e Event) bool {
	if e == nil || t.bus.closed.Load() {
		return false
	}
	if typ := e.Type(); typ.IsHighPriority() {
		t.counters[typ-HighPriorityEncoderChanged].Add(1)
	}

	// Listeners added during dispatch are seen by the next publish.
	n := t.highN
	handled, stopped := false, false
	t.dispatching++
	for i := 0; i < n; i++ {
		s := &t.high[i]
		if s.removed || s.paused {
			continue
		}
		// The general bus owns the subscription: honour Unsubscribe and
		// Pause made there directly.
		exists, active := t.bus.state(s.id)
		if !exists {
			s.removed = true
			t.dirty = true
			continue
		}
		if !active {
			continue
		}
		if t.bus.invoke(s.listener, s.id, e) {
			handled = true
			e.SetHandled()
		}
		if !e.Propagates() {
			stopped = true
			break
		}
	}
	t.dispatching--
	if t.dispatching == 0 && t.dirty {
		t.compact()
	}
	if stopped {
		return handled
	}

	if t.fallThrough && !handled {
		t.bus.metrics.published.Add(1)
		handled = t.bus.dispatch(e, t.highIDs[:t.highN])
	}
	return handled
}

// SetFallthrough toggles delivery of unhandled high-priority events to the general bus.
func (t *TieredBus) SetFallthrough(enabled bool) { t.fallThrough = enabled }

// EventProcessingCount returns how many events of a high-priority type were published.
func (t *TieredBus) EventProcessingCount(typ EventType) uint32 {
	if !typ.IsHighPriority() {
		return 0
	}
	return t.counters[typ-HighPriorityEncoderChanged].Load()
}

// ResetEventProcessingCounters zeroes the per-type counters.
func (t *TieredBus) ResetEventProcessingCounters() {
	for i := range t.counters {
		t.counters[i].Store(0)
	}
}

// Unsubscribe removes id from its tier, if any, and from the general bus.
func (t *TieredBus) Unsubscribe(id SubscriptionID) bool {
	t.removeFromTiers(id)
	return t.bus.Unsubscribe(id)
}

// Pause skips id in both its tier and the general bus.
func (t *TieredBus) Pause(id SubscriptionID) bool {
	t.setTierPaused(id, true)
	return t.bus.Pause(id)
}

// Resume re-enables id in both its tier and the general bus.
func (t *TieredBus) Resume(id SubscriptionID) bool {
	t.setTierPaused(id, false)
	return t.bus.Resume(id)
}

func (t *TieredBus) removeFromTiers(id SubscriptionID) {
	for _, p := range [...]Priority{PriorityHigh, PriorityNormal, PriorityLow} {
		slots, n, _ := t.tierFor(p)
		for i := 0; i < *n; i++ {
			if slots[i].id == id && !slots[i].removed {
				slots[i].removed = true
				t.dirty = true
				if t.dispatching == 0 {
					t.compact()
				}
				return
			}
		}
	}
}

// compact drops removed slots, keeping registration order, and rebuilds highIDs.
func (t *TieredBus) compact() {
	for _, p := range [...]Priority{PriorityHigh, PriorityNormal, PriorityLow} {
		slots, n, _ := t.tierFor(p)
		live := 0
		for i := 0; i < *n; i++ {
			if !slots[i].removed {
				slots[live] = slots[i]
				live++
			}
		}
		for i := live; i < *n; i++ {
			slots[i] = tierSlot{}
		}
		*n = live
	}
	t.highIDs = [MaxHighPriorityListeners]SubscriptionID{}
	for i := 0; i < t.highN; i++ {
		t.highIDs[i] = t.high[i].id
	}
	t.dirty = false
}

func (t *TieredBus) setTierPaused(id SubscriptionID, paused bool) {
	for _, p := range [...]Priority{PriorityHigh, PriorityNormal, PriorityLow} {
		slots, n, _ := t.tierFor(p)
		for i := 0; i < *n; i++ {
			if slots[i].id == id && !slots[i].removed {
				slots[i].paused = paused
				return
			}
		}
	}
}

// Subscribe registers on the general bus only.
func (t *TieredBus) Subscribe(l Listener, p Priority) SubscriptionID { return t.bus.Subscribe(l, p) }

// Publish dispatches on the general bus.
func (t *TieredBus) Publish(e Event) bool { return t.bus.Publish(e) }

func (t *TieredBus) Exists(id SubscriptionID) bool   { return t.bus.Exists(id) }
func (t *TieredBus) IsActive(id SubscriptionID) bool { return t.bus.IsActive(id) }
func (t *TieredBus) Count() int                      { return t.bus.Count() }

// Clear empties the tiers and the general bus.
func (t *TieredBus) Clear() {
	t.high = [MaxHighPriorityListeners]tierSlot{}
	t.normal = [MaxNormalPriorityListeners]tierSlot{}
	t.low = [MaxLowPriorityListeners]tierSlot{}
	t.highN, t.normalN, t.lowN = 0, 0, 0
	t.highIDs = [MaxHighPriorityListeners]SubscriptionID{}
	t.bus.Clear()
}

package midi

import (
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xsurface"
)

// MaxPendingParams is the size of the coalescing table.
const MaxPendingParams = 128

// NearCapacityUsage is the table usage above which IsNearCapacity reports true.
const NearCapacityUsage = 0.8

// PendingParameter is one coalescing slot, keyed by (Controller, Channel).
type PendingParameter struct {
	Controller        uint8
	Channel           uint8
	Value             uint8
	LastUpdate        time.Time
	NeedsUIUpdate     bool
	NeedsStatusUpdate bool
	Active            bool
}

// UIBatchFunc receives one coalesced parameter per UI flush.
type UIBatchFunc func(controller, channel, value uint8)

// StatusBatchFunc receives every parameter due for a status update. The slice
// is reused and only valid for the duration of the call.
type StatusBatchFunc func(params []PendingParameter)

// BatchConfig tunes a BatchProcessor.
type BatchConfig struct {
	UIInterval              time.Duration
	StatusInterval          time.Duration
	CoalesceIdenticalValues bool
	EnableUIBatching        bool
	EnableStatusBatching    bool
}

// DefaultBatchConfig flushes UI at 120 Hz and status at 10 Hz.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		UIInterval:              time.Second / 120,
		StatusInterval:          100 * time.Millisecond,
		CoalesceIdenticalValues: true,
		EnableUIBatching:        true,
		EnableStatusBatching:    true,
	}
}

// BatchStats is a snapshot of BatchProcessor state.
type BatchStats struct {
	ActiveParameters    int
	TotalCapacity       int
	UsageRatio          float64
	UIBatchesSent       uint64
	StatusBatchesSent   uint64
	ParametersCoalesced uint64
	CallbackErrors      uint64
}

// BatchProcessor collapses bursts of Control Change into two throttled
// streams: a per-parameter UI stream and a bulk status stream, each on its own
// cadence. Last value wins.
//
// A BatchProcessor belongs to the main loop.
type BatchProcessor struct {
	cfg   BatchConfig
	clock xsurface.Clock

	params [MaxPendingParams]PendingParameter
	active int

	// scratch backs the slice handed to the status callback.
	scratch [MaxPendingParams]PendingParameter

	lastUI, lastStatus       time.Time
	uiStarted, statusStarted bool

	onUI     UIBatchFunc
	onStatus StatusBatchFunc

	uiBatches      atomic.Uint64
	statusBatches  atomic.Uint64
	coalesced      atomic.Uint64
	callbackErrors atomic.Uint64
}

// NewBatchProcessor returns an empty processor. A nil clock uses xclock.Default().
func NewBatchProcessor(cfg BatchConfig, clock xsurface.Clock) *BatchProcessor {
	if clock == nil {
		clock = xclock.Default()
	}
	return &BatchProcessor{cfg: cfg, clock: clock}
}

func (b *BatchProcessor) Config() BatchConfig { return b.cfg }

// SetUICallback sets the UI flush target. nil disables UI flushing.
func (b *BatchProcessor) SetUICallback(fn UIBatchFunc) { b.onUI = fn }

// SetStatusCallback sets the status flush target. nil disables status flushing.
func (b *BatchProcessor) SetStatusCallback(fn StatusBatchFunc) { b.onStatus = fn }

// AddParameter records value for (controller, channel). It returns false only
// when the key is new and every slot is taken.
func (b *BatchProcessor) AddParameter(controller, channel, value uint8) bool {
	idx, free := b.find(controller, channel)
	if idx >= 0 {
		p := &b.params[idx]
		if b.cfg.CoalesceIdenticalValues && p.Value == value {
			b.coalesced.Add(1)
			return true
		}
		if p.NeedsUIUpdate {
			b.coalesced.Add(1)
		}
		p.Value = value
		p.LastUpdate = b.clock.Now()
		p.NeedsUIUpdate = p.NeedsUIUpdate || b.cfg.EnableUIBatching
		p.NeedsStatusUpdate = p.NeedsStatusUpdate || b.cfg.EnableStatusBatching
		return true
	}
	if free < 0 {
		return false
	}
	b.params[free] = PendingParameter{
		Controller:        controller,
		Channel:           channel,
		Value:             value,
		LastUpdate:        b.clock.Now(),
		NeedsUIUpdate:     b.cfg.EnableUIBatching,
		NeedsStatusUpdate: b.cfg.EnableStatusBatching,
		Active:            true,
	}
	b.active++
	return true
}

// find returns the slot holding the key, or -1 together with the first free slot.
func (b *BatchProcessor) find(controller, channel uint8) (idx, free int) {
	free = -1
	for i := range b.params {
		p := &b.params[i]
		if !p.Active {
			if free < 0 {
				free = i
			}
			continue
		}
		if p.Controller == controller && p.Channel == channel {
			return i, free
		}
	}
	return -1, free
}

// Pending returns the slot for (controller, channel), if any.
func (b *BatchProcessor) Pending(controller, channel uint8) (PendingParameter, bool) {
	if idx, _ := b.find(controller, channel); idx >= 0 {
		return b.params[idx], true
	}
	return PendingParameter{}, false
}

// ProcessPendingBatches flushes each stream whose interval has elapsed since
// its previous flush. The first call after construction or Clear flushes at once.
func (b *BatchProcessor) ProcessPendingBatches() {
	now := b.clock.Now()
	if b.cfg.EnableUIBatching && (!b.uiStarted || now.Sub(b.lastUI) >= b.cfg.UIInterval) {
		b.flushUI()
		b.lastUI, b.uiStarted = now, true
	}
	if b.cfg.EnableStatusBatching && (!b.statusStarted || now.Sub(b.lastStatus) >= b.cfg.StatusInterval) {
		b.flushStatus()
		b.lastStatus, b.statusStarted = now, true
	}
}

// FlushAll flushes every enabled stream regardless of cadence.
func (b *BatchProcessor) FlushAll() {
	if b.cfg.EnableUIBatching {
		b.flushUI()
	}
	if b.cfg.EnableStatusBatching {
		b.flushStatus()
	}
}

func (b *BatchProcessor) flushUI() {
	if b.onUI == nil {
		return
	}
	sent := 0
	for i := range b.params {
		p := &b.params[i]
		if !p.Active || !p.NeedsUIUpdate {
			continue
		}
		p.NeedsUIUpdate = false
		b.callUI(p.Controller, p.Channel, p.Value)
		sent++
	}
	if sent > 0 {
		b.uiBatches.Add(1)
	}
}

func (b *BatchProcessor) callUI(controller, channel, value uint8) {
	defer func() {
		if r := recover(); r != nil {
			b.callbackErrors.Add(1)
		}
	}()
	b.onUI(controller, channel, value)
}

func (b *BatchProcessor) flushStatus() {
	if b.onStatus == nil {
		return
	}
	n := 0
	for i := range b.params {
		p := &b.params[i]
		if !p.Active || !p.NeedsStatusUpdate {
			continue
		}
		p.NeedsStatusUpdate = false
		b.scratch[n] = *p
		n++
	}
	if n == 0 {
		return
	}
	b.callStatus(b.scratch[:n])
	b.statusBatches.Add(1)
}

func (b *BatchProcessor) callStatus(params []PendingParameter) {
	defer func() {
		if r := recover(); r != nil {
			b.callbackErrors.Add(1)
		}
	}()
	b.onStatus(params)
}

// Clear frees every slot and restarts both cadences.
func (b *BatchProcessor) Clear() {
	b.params = [MaxPendingParams]PendingParameter{}
	b.active = 0
	b.uiStarted, b.statusStarted = false, false
}

func (b *BatchProcessor) Stats() BatchStats {
	return BatchStats{
		ActiveParameters:    b.active,
		TotalCapacity:       MaxPendingParams,
		UsageRatio:          float64(b.active) / MaxPendingParams,
		UIBatchesSent:       b.uiBatches.Load(),
		StatusBatchesSent:   b.statusBatches.Load(),
		ParametersCoalesced: b.coalesced.Load(),
		CallbackErrors:      b.callbackErrors.Load(),
	}
}

// ResetStats zeroes the counters. Slots are kept.
func (b *BatchProcessor) ResetStats() {
	b.uiBatches.Store(0)
	b.statusBatches.Store(0)
	b.coalesced.Store(0)
	b.callbackErrors.Store(0)
}

func (b *BatchProcessor) IsNearCapacity() bool {
	return float64(b.active)/MaxPendingParams > NearCapacityUsage
}

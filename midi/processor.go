package midi

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xsurface"
	"github.com/trickstertwo/xsurface/ring"
)

// MaxCallbacks is the number of callback slots per message kind.
const MaxCallbacks = 16

// OverloadUsage is the ring occupancy above which the Processor reports overload.
const OverloadUsage = 0.8

var errInvalidProcessorConfig = errors.New("midi: invalid processor config")

// ControlChangeFunc receives a Control Change.
type ControlChangeFunc func(channel, controller, value uint8)

// NoteFunc receives a Note-On or Note-Off.
type NoteFunc func(channel, note, velocity uint8)

// ProcessorConfig tunes a Processor.
type ProcessorConfig struct {
	// BufferSize is the ring size. Must be a power of two; capacity is BufferSize-1.
	BufferSize int
	// BatchLimit caps messages drained per ProcessIncoming call.
	BatchLimit int

	EnableTimestamping      bool
	EnableLatencyMonitoring bool
	MaxLatencyThreshold     time.Duration
}

// DefaultProcessorConfig returns the production tuning.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		BufferSize:              256,
		BatchLimit:              32,
		EnableTimestamping:      true,
		EnableLatencyMonitoring: true,
		MaxLatencyThreshold:     time.Millisecond,
	}
}

func (c ProcessorConfig) Validate() error {
	if c.BufferSize < 2 || c.BufferSize&(c.BufferSize-1) != 0 {
		return fmt.Errorf("%w: buffer_size must be a power of two >= 2, got %d", errInvalidProcessorConfig, c.BufferSize)
	}
	if c.BatchLimit < 1 {
		return fmt.Errorf("%w: batch_limit must be >= 1, got %d", errInvalidProcessorConfig, c.BatchLimit)
	}
	if c.MaxLatencyThreshold <= 0 {
		return fmt.Errorf("%w: max_latency_threshold must be > 0", errInvalidProcessorConfig)
	}
	return nil
}

// ProcessorStats is a snapshot of the Processor counters.
type ProcessorStats struct {
	MessagesProcessed uint64
	MessagesDropped   uint64
	BufferOverruns    uint64
	CallbackErrors    uint64
	MaxLatency        time.Duration
	AvgLatency        time.Duration
}

// BufferStatus describes the ingest ring.
type BufferStatus struct {
	Len   int
	Cap   int
	Usage float64
	Full  bool
}

type callbackSlot struct {
	fn     func(a, b, c uint8)
	active bool
}

// callbackTable is append-only: removed slots are deactivated, never reused.
type callbackTable struct {
	slots [MaxCallbacks]callbackSlot
	n     int
}

func (t *callbackTable) add(fn func(a, b, c uint8)) int {
	if t.n >= MaxCallbacks {
		return -1
	}
	t.slots[t.n] = callbackSlot{fn: fn, active: true}
	t.n++
	return t.n - 1
}

func (t *callbackTable) remove(h int) bool {
	if h < 0 || h >= t.n || !t.slots[h].active {
		return false
	}
	t.slots[h].active = false
	return true
}

type processorStats struct {
	processed      atomic.Uint64
	dropped        atomic.Uint64
	overruns       atomic.Uint64
	callbackErrors atomic.Uint64
	maxLatency     atomic.Int64
	avgLatency     atomic.Int64
}

// Processor moves wire messages from a producer goroutine into statically
// registered callbacks on the main loop.
//
// EnqueueFast and EnqueueMessage may be called from one producer goroutine
// concurrently with the main loop. Everything else belongs to the main loop.
type Processor struct {
	cfg   ProcessorConfig
	clock xsurface.Clock
	epoch time.Time

	in *ring.Buffer[Message]

	cc      callbackTable
	noteOn  callbackTable
	noteOff callbackTable

	stats processorStats
}

// NewProcessor validates cfg and allocates the ring. A nil clock uses xclock.Default().
func NewProcessor(cfg ProcessorConfig, clock xsurface.Clock) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = xclock.Default()
	}
	in, err := ring.New[Message](cfg.BufferSize)
	if err != nil {
		return nil, err
	}
	return &Processor{
		cfg:   cfg,
		clock: clock,
		epoch: clock.Now(),
		in:    in,
	}, nil
}

// Config returns the active configuration.
func (p *Processor) Config() ProcessorConfig { return p.cfg }

// OnControlChange registers fn and returns its handle, or -1 when fn is nil or the table is full.
func (p *Processor) OnControlChange(fn ControlChangeFunc) int {
	if fn == nil {
		return -1
	}
	return p.cc.add(fn)
}

// OnNoteOn registers fn for Note-On with non-zero velocity.
func (p *Processor) OnNoteOn(fn NoteFunc) int {
	if fn == nil {
		return -1
	}
	return p.noteOn.add(fn)
}

// OnNoteOff registers fn for Note-Off, including Note-On with velocity 0.
func (p *Processor) OnNoteOff(fn NoteFunc) int {
	if fn == nil {
		return -1
	}
	return p.noteOff.add(fn)
}

func (p *Processor) RemoveControlChange(h int) bool { return p.cc.remove(h) }
func (p *Processor) RemoveNoteOn(h int) bool        { return p.noteOn.remove(h) }
func (p *Processor) RemoveNoteOff(h int) bool       { return p.noteOff.remove(h) }

// EnqueueFast is the producer fast path. A full ring counts as a dropped message.
func (p *Processor) EnqueueFast(status, data1, data2 byte) bool {
	m := Message{Status: status, Data1: data1, Data2: data2}
	if p.cfg.EnableTimestamping {
		m.Timestamp = p.micros()
	}
	if !p.in.Write(m) {
		p.stats.dropped.Add(1)
		return false
	}
	return true
}

// EnqueueMessage writes m as given. A full ring counts as a buffer overrun.
func (p *Processor) EnqueueMessage(m Message) bool {
	if !p.in.Write(m) {
		p.stats.overruns.Add(1)
		return false
	}
	return true
}

// ProcessIncoming drains up to BatchLimit messages and returns how many it dispatched.
func (p *Processor) ProcessIncoming() int {
	n := 0
	for n < p.cfg.BatchLimit {
		m, ok := p.in.Read()
		if !ok {
			break
		}
		if p.cfg.EnableLatencyMonitoring {
			start := p.clock.Now()
			p.ProcessMessage(m)
			p.recordLatency(p.clock.Since(start))
		} else {
			p.ProcessMessage(m)
		}
		p.stats.processed.Add(1)
		n++
	}
	return n
}

// ProcessMessage dispatches m to every active callback of its kind, in
// registration order. Unsupported status bytes are ignored.
func (p *Processor) ProcessMessage(m Message) {
	ch := m.Channel()
	switch m.Kind() {
	case KindControlChange:
		p.dispatch(&p.cc, ch, m.Data1, m.Data2)
	case KindNoteOn:
		if m.Data2 == 0 {
			p.dispatch(&p.noteOff, ch, m.Data1, 0)
			return
		}
		p.dispatch(&p.noteOn, ch, m.Data1, m.Data2)
	case KindNoteOff:
		p.dispatch(&p.noteOff, ch, m.Data1, m.Data2)
	}
}

func (p *Processor) dispatch(t *callbackTable, a, b, c uint8) {
	for i := 0; i < t.n; i++ {
		if s := &t.slots[i]; s.active {
			p.invoke(s.fn, a, b, c)
		}
	}
}

func (p *Processor) invoke(fn func(a, b, c uint8), a, b, c uint8) {
	defer func() {
		if r := recover(); r != nil {
			p.stats.callbackErrors.Add(1)
		}
	}()
	fn(a, b, c)
}

// recordLatency keeps a running max and a 7/8 moving average. The pair is not
// updated atomically as a whole; readers may see one ahead of the other.
func (p *Processor) recordLatency(d time.Duration) {
	lat := int64(d)
	for {
		cur := p.stats.maxLatency.Load()
		if lat <= cur || p.stats.maxLatency.CompareAndSwap(cur, lat) {
			break
		}
	}
	avg := p.stats.avgLatency.Load()
	p.stats.avgLatency.Store((avg*7 + lat) / 8)
}

func (p *Processor) micros() uint32 {
	return uint32(p.clock.Since(p.epoch).Microseconds())
}

func (p *Processor) Stats() ProcessorStats {
	return ProcessorStats{
		MessagesProcessed: p.stats.processed.Load(),
		MessagesDropped:   p.stats.dropped.Load(),
		BufferOverruns:    p.stats.overruns.Load(),
		CallbackErrors:    p.stats.callbackErrors.Load(),
		MaxLatency:        time.Duration(p.stats.maxLatency.Load()),
		AvgLatency:        time.Duration(p.stats.avgLatency.Load()),
	}
}

func (p *Processor) ResetStats() {
	p.stats.processed.Store(0)
	p.stats.dropped.Store(0)
	p.stats.overruns.Store(0)
	p.stats.callbackErrors.Store(0)
	p.stats.maxLatency.Store(0)
	p.stats.avgLatency.Store(0)
}

func (p *Processor) BufferStatus() BufferStatus {
	return BufferStatus{
		Len:   p.in.Len(),
		Cap:   p.in.Cap(),
		Usage: p.in.UsageRatio(),
		Full:  p.in.IsFull(),
	}
}

// IsOverloaded reports ring occupancy above 80% or a max latency above the threshold.
// It is a signal only; nothing is throttled.
func (p *Processor) IsOverloaded() bool {
	return p.in.UsageRatio() > OverloadUsage ||
		time.Duration(p.stats.maxLatency.Load()) > p.cfg.MaxLatencyThreshold
}

// ClearBuffer drops every queued message. Main loop only.
func (p *Processor) ClearBuffer() { p.in.Clear() }

// Package eventpool manufactures bus events from static per-type pools so the
// MIDI path never touches the heap after startup.
//
// A Manager is owned by the main loop and is not safe for concurrent use.
package eventpool

import (
	"sync/atomic"

	"github.com/trickstertwo/xsurface"
	"github.com/trickstertwo/xsurface/pool"
)

// HighMemoryPressure is the global usage ratio above which HasHighMemoryPressure reports true.
const HighMemoryPressure = 0.9

// GlobalStats aggregates every pool of a Manager.
type GlobalStats struct {
	TotalCapacity  int
	TotalAllocated int
	UsageRatio     float64
	// Exhausted counts acquires that found their pool full.
	Exhausted uint64
}

// Manager holds one pool per concrete event type.
type Manager struct {
	cc      *pool.Pool[xsurface.MidiCCEvent]
	noteOn  *pool.Pool[xsurface.MidiNoteOnEvent]
	noteOff *pool.Pool[xsurface.MidiNoteOffEvent]
	ui      *pool.Pool[xsurface.UIParameterUpdateEvent]

	exhausted atomic.Uint64
}

// New preallocates every pool.
func New(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Manager{
		cc:      pool.New[xsurface.MidiCCEvent](cfg.MidiEvents),
		noteOn:  pool.New[xsurface.MidiNoteOnEvent](cfg.MidiEvents),
		noteOff: pool.New[xsurface.MidiNoteOffEvent](cfg.MidiEvents),
		ui:      pool.New[xsurface.UIParameterUpdateEvent](cfg.UIEvents),
	}, nil
}

// AcquireMidiCC returns a pooled CC event, or nil when the pool is exhausted.
func (m *Manager) AcquireMidiCC(channel, controller, value uint8, src xsurface.Source) *xsurface.MidiCCEvent {
	e := m.cc.Acquire()
	if e == nil {
		m.exhausted.Add(1)
		return nil
	}
	e.Channel, e.Controller, e.Value, e.Source = channel, controller, value, src
	return e
}

// ReleaseMidiCC returns e to its pool.
func (m *Manager) ReleaseMidiCC(e *xsurface.MidiCCEvent) bool { return m.cc.Release(e) }

// CreateMidiCC is AcquireMidiCC wrapped in a guard.
func (m *Manager) CreateMidiCC(channel, controller, value uint8, src xsurface.Source) pool.Guard[xsurface.MidiCCEvent] {
	return pool.NewGuard(m.cc, m.AcquireMidiCC(channel, controller, value, src))
}

// AcquireMidiNoteOn returns a pooled Note-On event, or nil when the pool is exhausted.
func (m *Manager) AcquireMidiNoteOn(channel, note, velocity uint8, src xsurface.Source) *xsurface.MidiNoteOnEvent {
	e := m.noteOn.Acquire()
	if e == nil {
		m.exhausted.Add(1)
		return nil
	}
	e.Channel, e.Note, e.Velocity, e.Source = channel, note, velocity, src
	return e
}

func (m *Manager) ReleaseMidiNoteOn(e *xsurface.MidiNoteOnEvent) bool { return m.noteOn.Release(e) }

func (m *Manager) CreateMidiNoteOn(channel, note, velocity uint8, src xsurface.Source) pool.Guard[xsurface.MidiNoteOnEvent] {
	return pool.NewGuard(m.noteOn, m.AcquireMidiNoteOn(channel, note, velocity, src))
}

// AcquireMidiNoteOff returns a pooled Note-Off event, or nil when the pool is exhausted.
func (m *Manager) AcquireMidiNoteOff(channel, note, velocity uint8, src xsurface.Source) *xsurface.MidiNoteOffEvent {
	e := m.noteOff.Acquire()
	if e == nil {
		m.exhausted.Add(1)
		return nil
	}
	e.Channel, e.Note, e.Velocity, e.Source = channel, note, velocity, src
	return e
}

func (m *Manager) ReleaseMidiNoteOff(e *xsurface.MidiNoteOffEvent) bool { return m.noteOff.Release(e) }

func (m *Manager) CreateMidiNoteOff(channel, note, velocity uint8, src xsurface.Source) pool.Guard[xsurface.MidiNoteOffEvent] {
	return pool.NewGuard(m.noteOff, m.AcquireMidiNoteOff(channel, note, velocity, src))
}

// AcquireUIParameterUpdate returns a pooled UI update, or nil when the pool is exhausted.
func (m *Manager) AcquireUIParameterUpdate(controller, channel, value uint8, name string) *xsurface.UIParameterUpdateEvent {
	e := m.ui.Acquire()
	if e == nil {
		m.exhausted.Add(1)
		return nil
	}
	e.Controller, e.Channel, e.Value, e.ParamName = controller, channel, value, name
	return e
}

func (m *Manager) ReleaseUIParameterUpdate(e *xsurface.UIParameterUpdateEvent) bool {
	return m.ui.Release(e)
}

func (m *Manager) CreateUIParameterUpdate(controller, channel, value uint8, name string) pool.Guard[xsurface.UIParameterUpdateEvent] {
	return pool.NewGuard(m.ui, m.AcquireUIParameterUpdate(controller, channel, value, name))
}

func (m *Manager) MidiCCStats() pool.Stats      { return m.cc.Stats() }
func (m *Manager) MidiNoteOnStats() pool.Stats  { return m.noteOn.Stats() }
func (m *Manager) MidiNoteOffStats() pool.Stats { return m.noteOff.Stats() }
func (m *Manager) UIStats() pool.Stats          { return m.ui.Stats() }

// GlobalStats sums every pool.
func (m *Manager) GlobalStats() GlobalStats {
	var g GlobalStats
	for _, st := range [...]pool.Stats{m.cc.Stats(), m.noteOn.Stats(), m.noteOff.Stats(), m.ui.Stats()} {
		g.TotalCapacity += st.Capacity
		g.TotalAllocated += st.Allocated
	}
	if g.TotalCapacity > 0 {
		g.UsageRatio = float64(g.TotalAllocated) / float64(g.TotalCapacity)
	}
	g.Exhausted = m.exhausted.Load()
	return g
}

// HasHighMemoryPressure reports whether more than 90% of all slots are in use.
func (m *Manager) HasHighMemoryPressure() bool {
	return m.GlobalStats().UsageRatio > HighMemoryPressure
}

// Close force-releases every live event and returns how many there were.
func (m *Manager) Close() int {
	return m.cc.Close() + m.noteOn.Close() + m.noteOff.Close() + m.ui.Close()
}

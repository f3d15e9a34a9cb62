package eventpool

import (
	"sync"
	"sync/atomic"

	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xsurface"
)

// The factory is the process-wide entry point for code that has no Manager at
// hand. It draws from the installed Manager and falls back to the heap when
// none is installed or the pool is exhausted, unless strict mode is on.

var (
	factoryMu     sync.RWMutex
	installed     *Manager
	factoryLogger *xlog.Logger

	strict    atomic.Bool
	fallbacks atomic.Uint64
	warned    atomic.Bool
)

// Install makes m the Manager behind the factory functions.
func Install(m *Manager) {
	if m == nil {
		panic("eventpool: Install(nil)")
	}
	factoryMu.Lock()
	installed = m
	factoryMu.Unlock()
	warned.Store(false)
}

// Uninstall detaches the current Manager. Later factory calls use the heap.
func Uninstall() {
	factoryMu.Lock()
	installed = nil
	factoryMu.Unlock()
}

// Installed returns the current Manager.
func Installed() (*Manager, bool) {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	return installed, installed != nil
}

// SetFactoryLogger sets the logger used to report heap fallbacks. nil restores xlog.Default().
func SetFactoryLogger(l *xlog.Logger) {
	factoryMu.Lock()
	factoryLogger = l
	factoryMu.Unlock()
}

// SetStrict disables the heap fallback: factory functions return nil instead.
func SetStrict(on bool) { strict.Store(on) }

// FallbackAllocations is the number of events the factory took from the heap.
func FallbackAllocations() uint64 { return fallbacks.Load() }

// NewMidiCC returns a CC event from the installed Manager, or from the heap.
func NewMidiCC(channel, controller, value uint8, src xsurface.Source) *xsurface.MidiCCEvent {
	if m, ok := Installed(); ok {
		if e := m.AcquireMidiCC(channel, controller, value, src); e != nil {
			return e
		}
	}
	e := fallback[xsurface.MidiCCEvent]("midi_cc")
	if e != nil {
		e.Channel, e.Controller, e.Value, e.Source = channel, controller, value, src
	}
	return e
}

// FreeMidiCC returns e to the installed Manager. Heap events report false and
// are left to the garbage collector.
func FreeMidiCC(e *xsurface.MidiCCEvent) bool {
	if e == nil {
		return false
	}
	if m, ok := Installed(); ok {
		return m.ReleaseMidiCC(e)
	}
	return false
}

// NewMidiNoteOn returns a Note-On event from the installed Manager, or from the heap.
func NewMidiNoteOn(channel, note, velocity uint8, src xsurface.Source) *xsurface.MidiNoteOnEvent {
	if m, ok := Installed(); ok {
		if e := m.AcquireMidiNoteOn(channel, note, velocity, src); e != nil {
			return e
		}
	}
	e := fallback[xsurface.MidiNoteOnEvent]("midi_note_on")
	if e != nil {
		e.Channel, e.Note, e.Velocity, e.Source = channel, note, velocity, src
	}
	return e
}

func FreeMidiNoteOn(e *xsurface.MidiNoteOnEvent) bool {
	if e == nil {
		return false
	}
	if m, ok := Installed(); ok {
		return m.ReleaseMidiNoteOn(e)
	}
	return false
}

// NewMidiNoteOff returns a Note-Off event from the installed Manager, or from the heap.
func NewMidiNoteOff(channel, note, velocity uint8, src xsurface.Source) *xsurface.MidiNoteOffEvent {
	if m, ok := Installed(); ok {
		if e := m.AcquireMidiNoteOff(channel, note, velocity, src); e != nil {
			return e
		}
	}
	e := fallback[xsurface.MidiNoteOffEvent]("midi_note_off")
	if e != nil {
		e.Channel, e.Note, e.Velocity, e.Source = channel, note, velocity, src
	}
	return e
}

func FreeMidiNoteOff(e *xsurface.MidiNoteOffEvent) bool {
	if e == nil {
		return false
	}
	if m, ok := Installed(); ok {
		return m.ReleaseMidiNoteOff(e)
	}
	return false
}

// NewUIParameterUpdate returns a UI update from the installed Manager, or from the heap.
func NewUIParameterUpdate(controller, channel, value uint8, name string) *xsurface.UIParameterUpdateEvent {
	if m, ok := Installed(); ok {
		if e := m.AcquireUIParameterUpdate(controller, channel, value, name); e != nil {
			return e
		}
	}
	e := fallback[xsurface.UIParameterUpdateEvent]("ui_parameter_update")
	if e != nil {
		e.Controller, e.Channel, e.Value, e.ParamName = controller, channel, value, name
	}
	return e
}

func FreeUIParameterUpdate(e *xsurface.UIParameterUpdateEvent) bool {
	if e == nil {
		return false
	}
	if m, ok := Installed(); ok {
		return m.ReleaseUIParameterUpdate(e)
	}
	return false
}

func fallback[T any](kind string) *T {
	if strict.Load() {
		return nil
	}
	fallbacks.Add(1)
	if warned.CompareAndSwap(false, true) {
		factoryMu.RLock()
		lg := factoryLogger
		factoryMu.RUnlock()
		if lg == nil {
			lg = xlog.Default()
		}
		lg.Warn().
			Str("kind", kind).
			Msg("eventpool: pool unavailable, allocating from heap")
	}
	return new(T)
}

package xsurface

// EventType identifies a concrete event. Values are grouped in ranges per
// subsystem so diagnostics can tell them apart at a glance.
type EventType uint16

// Input events.
const (
	EncoderTurned  EventType = 1
	EncoderButton  EventType = 2
	ButtonPressed  EventType = 3
	ButtonReleased EventType = 4
)

// UI events.
const (
	ScreenChange      EventType = 1000
	MenuNavigation    EventType = 1001
	MenuSelection     EventType = 1002
	DialogShow        EventType = 1003
	DialogClose       EventType = 1004
	UIParameterUpdate EventType = 1010
)

// MIDI events.
const (
	MidiNoteOn        EventType = 2000
	MidiNoteOff       EventType = 2001
	MidiControlChange EventType = 2002
	MidiProgramChange EventType = 2003
	MidiPitchBend     EventType = 2004
	MidiMapping       EventType = 2005
)

// High-priority input events dispatched through TieredBus.PublishHighPriority.
const (
	HighPriorityEncoderChanged EventType = 2500
	HighPriorityEncoderButton  EventType = 2501
	HighPriorityButtonPress    EventType = 2502
)

// System events.
const (
	SystemStartup  EventType = 3000
	SystemShutdown EventType = 3001
	SystemError    EventType = 3002
)

// IsHighPriority reports whether t is one of the counted high-priority types.
func (t EventType) IsHighPriority() bool {
	return t >= HighPriorityEncoderChanged && t <= HighPriorityButtonPress
}

// Category groups event types for coarse filtering.
type Category uint8

const (
	CategoryNone Category = iota
	CategoryInput
	CategoryUI
	CategoryMIDI
	CategorySystem
)

func (c Category) String() string {
	switch c {
	case CategoryInput:
		return "input"
	case CategoryUI:
		return "ui"
	case CategoryMIDI:
		return "midi"
	case CategorySystem:
		return "system"
	default:
		return "none"
	}
}

// Event is anything the Bus can dispatch. Concrete events embed EventBase
// and are passed by pointer so listeners can mark them handled.
type Event interface {
	Type() EventType
	Category() Category
	Name() string

	Handled() bool
	SetHandled()
	// Propagates is false once a listener called StopPropagation.
	Propagates() bool
	StopPropagation()
}

// EventBase carries the per-dispatch flags. The zero value is unhandled and propagating.
type EventBase struct {
	handled bool
	stopped bool
}

func (b *EventBase) Handled() bool    { return b.handled }
func (b *EventBase) SetHandled()      { b.handled = true }
func (b *EventBase) Propagates() bool { return !b.stopped }
func (b *EventBase) StopPropagation() { b.stopped = true }

// ResetDispatch clears handled and stopped so the event can be published again.
func (b *EventBase) ResetDispatch() {
	b.handled = false
	b.stopped = false
}

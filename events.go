package xsurface

import "fmt"

// Source identifies which component produced an event.
type Source uint8

const (
	SourceUnknown Source = iota
	SourceEncoder
	SourceButton
	SourceMidiIn
	SourceMidiOut
)

func (s Source) String() string {
	switch s {
	case SourceEncoder:
		return "encoder"
	case SourceButton:
		return "button"
	case SourceMidiIn:
		return "midi_in"
	case SourceMidiOut:
		return "midi_out"
	default:
		return "unknown"
	}
}

// MidiCCEvent reports a Control-Change message.
type MidiCCEvent struct {
	EventBase
	Channel    uint8
	Controller uint8
	Value      uint8
	Source     Source
}

func (*MidiCCEvent) Type() EventType    { return MidiControlChange }
func (*MidiCCEvent) Category() Category { return CategoryMIDI }
func (*MidiCCEvent) Name() string       { return "MidiControlChange" }

// MidiNoteOnEvent reports a Note-On with non-zero velocity.
type MidiNoteOnEvent struct {
	EventBase
	Channel  uint8
	Note     uint8
	Velocity uint8
	Source   Source
}

func (*MidiNoteOnEvent) Type() EventType    { return MidiNoteOn }
func (*MidiNoteOnEvent) Category() Category { return CategoryMIDI }
func (*MidiNoteOnEvent) Name() string       { return "MidiNoteOn" }

// MidiNoteOffEvent reports a Note-Off, including Note-On with velocity 0.
type MidiNoteOffEvent struct {
	EventBase
	Channel  uint8
	Note     uint8
	Velocity uint8
	Source   Source
}

func (*MidiNoteOffEvent) Type() EventType    { return MidiNoteOff }
func (*MidiNoteOffEvent) Category() Category { return CategoryMIDI }
func (*MidiNoteOffEvent) Name() string       { return "MidiNoteOff" }

// UIParameterUpdateEvent is the batched, display-rate view of a parameter.
type UIParameterUpdateEvent struct {
	EventBase
	Controller uint8
	Channel    uint8
	Value      uint8
	// ParamName is the display label, e.g. "CC7".
	ParamName string
}

func (*UIParameterUpdateEvent) Type() EventType    { return UIParameterUpdate }
func (*UIParameterUpdateEvent) Category() Category { return CategoryUI }
func (*UIParameterUpdateEvent) Name() string       { return "UIParameterUpdate" }

var ccNames = func() (names [128]string) {
	for i := range names {
		names[i] = fmt.Sprintf("CC%d", i)
	}
	return names
}()

// ParameterName returns the default display label for a controller.
// Labels for 0-127 are precomputed so the UI path does not allocate.
func ParameterName(controller uint8) string {
	if int(controller) < len(ccNames) {
		return ccNames[controller]
	}
	return fmt.Sprintf("CC%d", controller)
}

// EncoderTurnedEvent reports a rotary encoder step. It travels the fast tier
// as HighPriorityEncoderChanged.
type EncoderTurnedEvent struct {
	EventBase
	ID       uint8
	Position int32
	Delta    int8
}

func (*EncoderTurnedEvent) Type() EventType    { return HighPriorityEncoderChanged }
func (*EncoderTurnedEvent) Category() Category { return CategoryInput }
func (*EncoderTurnedEvent) Name() string       { return "EncoderTurned" }

// EncoderButtonEvent reports an encoder push switch.
type EncoderButtonEvent struct {
	EventBase
	ID      uint8
	Pressed bool
}

func (*EncoderButtonEvent) Type() EventType    { return HighPriorityEncoderButton }
func (*EncoderButtonEvent) Category() Category { return CategoryInput }
func (*EncoderButtonEvent) Name() string       { return "EncoderButton" }

// ButtonEvent reports a front-panel button.
type ButtonEvent struct {
	EventBase
	ID      uint8
	Pressed bool
}

func (*ButtonEvent) Type() EventType    { return HighPriorityButtonPress }
func (*ButtonEvent) Category() Category { return CategoryInput }
func (*ButtonEvent) Name() string       { return "ButtonPress" }

var (
	_ Event = (*MidiCCEvent)(nil)
	_ Event = (*MidiNoteOnEvent)(nil)
	_ Event = (*MidiNoteOffEvent)(nil)
	_ Event = (*UIParameterUpdateEvent)(nil)
	_ Event = (*EncoderTurnedEvent)(nil)
	_ Event = (*EncoderButtonEvent)(nil)
	_ Event = (*ButtonEvent)(nil)
)

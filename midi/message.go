// Package midi is the real-time MIDI path: a lock-free ingest ring, callback
// dispatch, CC coalescing, and the Manager that ties them to the event bus.
package midi

import (
	gomidi "gitlab.com/gomidi/midi/v2"
)

// Channel voice status nibbles recognised by the Processor.
const (
	StatusNoteOff       byte = 0x80
	StatusNoteOn        byte = 0x90
	StatusControlChange byte = 0xB0
)

// Kind classifies a Message by its status nibble.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindNoteOff
	KindNoteOn
	KindControlChange
)

func (k Kind) String() string {
	switch k {
	case KindNoteOff:
		return "note_off"
	case KindNoteOn:
		return "note_on"
	case KindControlChange:
		return "control_change"
	default:
		return "unknown"
	}
}

// Message is one wire message as stored in the ingest ring.
// Timestamp is in microseconds and zero when timestamping is disabled.
type Message struct {
	Status    byte
	Data1     byte
	Data2     byte
	Timestamp uint32
}

// Kind reports the message class without the Note-On velocity 0 rewrite.
func (m Message) Kind() Kind {
	switch m.Status & 0xF0 {
	case StatusNoteOff:
		return KindNoteOff
	case StatusNoteOn:
		return KindNoteOn
	case StatusControlChange:
		return KindControlChange
	default:
		return KindUnknown
	}
}

// Channel is the low nibble of the status byte.
func (m Message) Channel() uint8 { return m.Status & 0x0F }

// Bytes returns the wire encoding. Program change and channel pressure carry
// a single data byte.
func (m Message) Bytes() []byte {
	if dataLen(m.Status) == 1 {
		return []byte{m.Status, m.Data1}
	}
	return []byte{m.Status, m.Data1, m.Data2}
}

func (m Message) String() string {
	return gomidi.Message(m.Bytes()).String()
}

// FromGomidi converts a channel voice message received through gomidi.
func FromGomidi(msg gomidi.Message) (Message, bool) {
	if len(msg) < 2 || msg[0] < 0x80 || msg[0] >= 0xF0 {
		return Message{}, false
	}
	m := Message{Status: msg[0], Data1: msg[1]}
	if dataLen(m.Status) == 2 {
		if len(msg) < 3 {
			return Message{}, false
		}
		m.Data2 = msg[2]
	}
	return m, true
}

// dataLen is the number of data bytes following a channel status byte.
func dataLen(status byte) int {
	switch status & 0xF0 {
	case 0xC0, 0xD0:
		return 1
	default:
		return 2
	}
}

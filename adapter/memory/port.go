package memory

import (
	"sync"

	"github.com/trickstertwo/xsurface"
	"github.com/trickstertwo/xsurface/midi"
)

// Port is an OutputPort that records everything sent to it. With a loopback
// sink, sent messages are also fed back in as input. Safe for concurrent use.
type Port struct {
	mu       sync.Mutex
	messages []midi.Message
	loopback xsurface.Sink
}

var _ midi.OutputPort = (*Port)(nil)

func NewPort() *Port { return &Port{} }

// Loopback routes future sends into sink. nil disables loopback.
func (p *Port) Loopback(sink xsurface.Sink) {
	p.mu.Lock()
	p.loopback = sink
	p.mu.Unlock()
}

func (p *Port) record(m midi.Message) error {
	p.mu.Lock()
	p.messages = append(p.messages, m)
	sink := p.loopback
	p.mu.Unlock()
	if sink != nil {
		sink.ProcessMidiMessage(m.Status, m.Data1, m.Data2)
	}
	return nil
}

func (p *Port) SendControlChange(channel, controller, value uint8) error {
	return p.record(midi.Message{Status: midi.StatusControlChange | channel&0x0F, Data1: controller, Data2: value})
}

func (p *Port) SendNoteOn(channel, note, velocity uint8) error {
	return p.record(midi.Message{Status: midi.StatusNoteOn | channel&0x0F, Data1: note, Data2: velocity})
}

func (p *Port) SendNoteOff(channel, note, velocity uint8) error {
	return p.record(midi.Message{Status: midi.StatusNoteOff | channel&0x0F, Data1: note, Data2: velocity})
}

// Messages returns a copy of everything recorded so far.
func (p *Port) Messages() []midi.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]midi.Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Reset forgets recorded messages.
func (p *Port) Reset() {
	p.mu.Lock()
	p.messages = nil
	p.mu.Unlock()
}

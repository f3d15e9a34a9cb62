package midi

import (
	"errors"

	"github.com/trickstertwo/xsurface"
	"github.com/trickstertwo/xsurface/eventpool"
)

// OutputPort is the sending side of a MIDI device.
type OutputPort interface {
	SendControlChange(channel, controller, value uint8) error
	SendNoteOn(channel, note, velocity uint8) error
	SendNoteOff(channel, note, velocity uint8) error
}

// EventOutput is a Decorator that publishes a pooled event on the bus after
// every successful send, so listeners observe outgoing traffic.
type EventOutput struct {
	next  OutputPort
	bus   xsurface.Publisher
	pools *eventpool.Manager
}

var _ OutputPort = (*EventOutput)(nil)

func NewEventOutput(next OutputPort, bus xsurface.Publisher, pools *eventpool.Manager) *EventOutput {
	return &EventOutput{next: next, bus: bus, pools: pools}
}

func (o *EventOutput) SendControlChange(channel, controller, value uint8) error {
	if err := o.next.SendControlChange(channel, controller, value); err != nil {
		return err
	}
	if o.bus != nil && o.pools != nil {
		g := o.pools.CreateMidiCC(channel, controller, value, xsurface.SourceMidiOut)
		if g.Valid() {
			o.bus.Publish(g.Get())
		}
		g.Close()
	}
	return nil
}

func (o *EventOutput) SendNoteOn(channel, note, velocity uint8) error {
	if err := o.next.SendNoteOn(channel, note, velocity); err != nil {
		return err
	}
	if o.bus != nil && o.pools != nil {
		g := o.pools.CreateMidiNoteOn(channel, note, velocity, xsurface.SourceMidiOut)
		if g.Valid() {
			o.bus.Publish(g.Get())
		}
		g.Close()
	}
	return nil
}

func (o *EventOutput) SendNoteOff(channel, note, velocity uint8) error {
	if err := o.next.SendNoteOff(channel, note, velocity); err != nil {
		return err
	}
	if o.bus != nil && o.pools != nil {
		g := o.pools.CreateMidiNoteOff(channel, note, velocity, xsurface.SourceMidiOut)
		if g.Valid() {
			o.bus.Publish(g.Get())
		}
		g.Close()
	}
	return nil
}

// MaxBufferedCC is the number of (channel, controller) pairs BufferedOutput can hold.
const MaxBufferedCC = 128

type bufferedCC struct {
	channel    uint8
	controller uint8
	value      uint8
	dirty      bool
}

// BufferedOutput is a Decorator that holds outgoing Control Change until
// Flush, keeping only the latest value per (channel, controller). Notes are
// sent immediately. When the table is full, new pairs are sent unbuffered.
//
// BufferedOutput belongs to the main loop.
type BufferedOutput struct {
	next  OutputPort
	slots [MaxBufferedCC]bufferedCC
	n     int
}

var _ OutputPort = (*BufferedOutput)(nil)

func NewBufferedOutput(next OutputPort) *BufferedOutput {
	return &BufferedOutput{next: next}
}

func (o *BufferedOutput) SendControlChange(channel, controller, value uint8) error {
	for i := 0; i < o.n; i++ {
		s := &o.slots[i]
		if s.channel == channel && s.controller == controller {
			s.value, s.dirty = value, true
			return nil
		}
	}
	if o.n == MaxBufferedCC {
		return o.next.SendControlChange(channel, controller, value)
	}
	o.slots[o.n] = bufferedCC{channel: channel, controller: controller, value: value, dirty: true}
	o.n++
	return nil
}

func (o *BufferedOutput) SendNoteOn(channel, note, velocity uint8) error {
	return o.next.SendNoteOn(channel, note, velocity)
}

func (o *BufferedOutput) SendNoteOff(channel, note, velocity uint8) error {
	return o.next.SendNoteOff(channel, note, velocity)
}

// Pending is the number of values waiting for Flush.
func (o *BufferedOutput) Pending() int {
	n := 0
	for i := 0; i < o.n; i++ {
		if o.slots[i].dirty {
			n++
		}
	}
	return n
}

// Flush sends every pending value in first-seen order. A failed send stays
// pending; all errors are joined.
func (o *BufferedOutput) Flush() error {
	var errs []error
	for i := 0; i < o.n; i++ {
		s := &o.slots[i]
		if !s.dirty {
			continue
		}
		if err := o.next.SendControlChange(s.channel, s.controller, s.value); err != nil {
			errs = append(errs, err)
			continue
		}
		s.dirty = false
	}
	return errors.Join(errs...)
}

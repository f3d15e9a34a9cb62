// Package midiport connects gomidi input and output ports to the MIDI manager.
//
// Importing this package registers the "midi" source. A driver must be
// registered separately, for example:
//
//	import _ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
package midiport

import (
	"errors"
	"fmt"
	"strings"

	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xsurface"
	"github.com/trickstertwo/xsurface/midi"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// ErrPortNotFound is returned when no port matches a name.
var ErrPortNotFound = errors.New("midiport: port not found")

// Option configures Listen and the source.
type Option func(*options)

type options struct {
	logger *xlog.Logger
}

// WithLogger sets the logger for ingest errors (default: xlog.Default()).
func WithLogger(l *xlog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = xlog.Default()
	}
	return o
}

// Listen forwards channel voice messages from in to sink until stop is called.
// in is opened if needed.
func Listen(in drivers.In, sink xsurface.Sink, opts ...Option) (stop func(), err error) {
	if in == nil {
		return nil, ErrPortNotFound
	}
	o := buildOptions(opts)
	if !in.IsOpen() {
		if err := in.Open(); err != nil {
			return nil, fmt.Errorf("midiport: open %q: %w", in.String(), err)
		}
	}
	lg := o.logger.With(xlog.Str("port", in.String()))
	stop, err = gomidi.ListenTo(in, receiver(sink), gomidi.HandleError(func(err error) {
		lg.Warn().Err(err).Msg("midiport: listen error")
	}))
	if err != nil {
		return nil, fmt.Errorf("midiport: listen %q: %w", in.String(), err)
	}
	return stop, nil
}

// receiver adapts sink to the gomidi callback. Messages the sink cannot take
// are dropped; the processor counts them.
func receiver(sink xsurface.Sink) func(gomidi.Message, int32) {
	return func(msg gomidi.Message, _ int32) {
		if m, ok := midi.FromGomidi(msg); ok {
			sink.ProcessMidiMessage(m.Status, m.Data1, m.Data2)
		}
	}
}

// FindIn returns the first input port whose name contains name, ignoring case.
func FindIn(name string) (drivers.In, error) {
	for _, in := range gomidi.GetInPorts() {
		if containsFold(in.String(), name) {
			return in, nil
		}
	}
	return nil, fmt.Errorf("%w: in %q", ErrPortNotFound, name)
}

// FindOut returns the first output port whose name contains name, ignoring case.
func FindOut(name string) (drivers.Out, error) {
	for _, out := range gomidi.GetOutPorts() {
		if containsFold(out.String(), name) {
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: out %q", ErrPortNotFound, name)
}

// Names lists the input and output port names known to the registered driver.
func Names() (ins, outs []string) {
	for _, in := range gomidi.GetInPorts() {
		ins = append(ins, in.String())
	}
	for _, out := range gomidi.GetOutPorts() {
		outs = append(outs, out.String())
	}
	return ins, outs
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// Output sends messages to a gomidi output port.
type Output struct {
	send func(gomidi.Message) error
}

var _ midi.OutputPort = (*Output)(nil)

// NewOutput opens out for sending.
func NewOutput(out drivers.Out) (*Output, error) {
	if out == nil {
		return nil, ErrPortNotFound
	}
	send, err := gomidi.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("midiport: send to %q: %w", out.String(), err)
	}
	return &Output{send: send}, nil
}

func (o *Output) SendControlChange(channel, controller, value uint8) error {
	return o.send(gomidi.ControlChange(channel, controller, value))
}

func (o *Output) SendNoteOn(channel, note, velocity uint8) error {
	return o.send(gomidi.NoteOn(channel, note, velocity))
}

func (o *Output) SendNoteOff(channel, note, velocity uint8) error {
	return o.send(gomidi.NoteOffVelocity(channel, note, velocity))
}

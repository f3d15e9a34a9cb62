package midiport

import (
	"context"
	"fmt"
	"sync"

	"github.com/trickstertwo/xsurface"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// SourceName is the registry key of the gomidi input source.
const SourceName = "midi"

func init() {
	if err := xsurface.RegisterSource(SourceName, func(cfg map[string]any) (xsurface.InputSource, error) {
		name, _ := cfg["port"].(string)
		return NewSource(name), nil
	}); err != nil {
		panic(fmt.Errorf("xsurface/midiport: failed to register source: %w", err))
	}
}

// Source listens on the input port matching a name.
type Source struct {
	name string
	opts []Option

	mu   sync.Mutex
	in   drivers.In
	stop func()
}

var _ xsurface.InputSource = (*Source)(nil)

func NewSource(port string, opts ...Option) *Source {
	return &Source{name: port, opts: opts}
}

// Run resolves the port, listens, and blocks until ctx is done.
func (s *Source) Run(ctx context.Context, sink xsurface.Sink) error {
	in, err := FindIn(s.name)
	if err != nil {
		return err
	}
	stop, err := Listen(in, sink, s.opts...)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.in, s.stop = in, stop
	s.mu.Unlock()

	<-ctx.Done()
	return s.Close()
}

// Close stops listening and closes the port. Idempotent.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
	if s.in == nil {
		return nil
	}
	err := s.in.Close()
	s.in = nil
	return err
}

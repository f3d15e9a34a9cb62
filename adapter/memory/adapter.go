// Package memory provides in-process MIDI endpoints for development, tests
// and benchmarks: a synthetic CC generator and a recording output port.
package memory

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xsurface"
	"github.com/trickstertwo/xsurface/midi"
)

const SourceName = "synthetic"

func init() {
	if err := xsurface.RegisterSource(SourceName, func(cfg map[string]any) (xsurface.InputSource, error) {
		return NewSource(ConfigFromMap(cfg)), nil
	}); err != nil {
		panic(fmt.Errorf("xsurface/memory: failed to register source: %w", err))
	}
}

// Config controls the synthetic stream.
type Config struct {
	// Rate is the number of messages per second (default: 1000).
	Rate int
	// Controllers is how many consecutive CC numbers are swept (default: 4).
	Controllers int
	// FirstController is the lowest CC number (default: 7).
	FirstController int
	// Channel is the MIDI channel 0-15 (default: 0).
	Channel int
	// Count stops the source after that many messages (default: 0 = run until cancelled).
	Count int
	// Interval is the generator tick (default: 1ms). Each tick sends Rate*Interval messages.
	Interval time.Duration
}

func ConfigFromMap(cfg map[string]any) Config {
	getInt := func(k string, d int) int {
		switch v := cfg[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		default:
			return d
		}
	}

	getDur := func(k string, d time.Duration) time.Duration {
		switch v := cfg[k].(type) {
		case time.Duration:
			return v
		case string:
			if p, err := time.ParseDuration(v); err == nil {
				return p
			}
		}
		return d
	}

	return Config{
		Rate:            maxInt(1, getInt("rate", 1000)),
		Controllers:     clamp(getInt("controllers", 4), 1, 128),
		FirstController: clamp(getInt("first_controller", 7), 0, 127),
		Channel:         clamp(getInt("channel", 0), 0, 15),
		Count:           maxInt(0, getInt("count", 0)),
		Interval:        getDur("interval", time.Millisecond),
	}
}

// Source generates a steady sweep of Control Change messages.
type Source struct {
	cfg Config

	sent    atomic.Uint64
	dropped atomic.Uint64
	closed  atomic.Bool
}

var _ xsurface.InputSource = (*Source)(nil)

func NewSource(cfg Config) *Source {
	if cfg.Rate < 1 {
		cfg.Rate = 1
	}
	if cfg.Controllers < 1 {
		cfg.Controllers = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Millisecond
	}
	return &Source{cfg: cfg}
}

// Run sends messages until ctx is done, Close is called, or Count is reached.
func (s *Source) Run(ctx context.Context, sink xsurface.Sink) error {
	perTick := int(float64(s.cfg.Rate) * s.cfg.Interval.Seconds())
	if perTick < 1 {
		perTick = 1
	}
	tick := s.cfg.Interval
	if perTick == 1 {
		tick = time.Second / time.Duration(s.cfg.Rate)
	}
	t := time.NewTicker(tick)
	defer t.Stop()

	var i int
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		for n := 0; n < perTick; n++ {
			if s.closed.Load() || (s.cfg.Count > 0 && i >= s.cfg.Count) {
				return nil
			}
			status, cc, v := s.next(i)
			if sink.ProcessMidiMessage(status, cc, v) {
				s.sent.Add(1)
			} else {
				s.dropped.Add(1)
			}
			i++
		}
	}
}

// next is the i-th message of the sweep: controllers in turn, values ramping 0-127.
func (s *Source) next(i int) (status, controller, value uint8) {
	status = midi.StatusControlChange | uint8(s.cfg.Channel&0x0F)
	controller = uint8((s.cfg.FirstController + i%s.cfg.Controllers) & 0x7F)
	value = uint8((i / s.cfg.Controllers) % 128)
	return status, controller, value
}

func (s *Source) Close() error {
	s.closed.Store(true)
	return nil
}

// Stats reports messages accepted and rejected by the sink.
type Stats struct {
	Sent    uint64
	Dropped uint64
}

func (s *Source) Stats() Stats {
	return Stats{Sent: s.sent.Load(), Dropped: s.dropped.Load()}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

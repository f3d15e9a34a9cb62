// Package app wires the bus, the event pools and the MIDI manager into one
// explicitly constructed Context that is passed to everything needing them.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xsurface"
	"github.com/trickstertwo/xsurface/eventpool"
	"github.com/trickstertwo/xsurface/midi"
)

// DefaultTick is the main-loop period used by Run.
const DefaultTick = time.Millisecond

// Context owns one instance of every core component.
type Context struct {
	Bus    *xsurface.Bus
	Tiered *xsurface.TieredBus
	Pools  *eventpool.Manager
	MIDI   *midi.Manager
	Logger *xlog.Logger

	hooks []hook

	closeOnce sync.Once
	closeErr  error
}

type hook struct {
	every time.Duration
	last  time.Time
	fn    func()
}

// Option customises New.
type Option func(*options)

type options struct {
	clock xsurface.Clock
}

// WithClock replaces xclock.Default for every component.
func WithClock(c xsurface.Clock) Option {
	return func(o *options) { o.clock = c }
}

// New builds every component from cfg and installs the pools in the eventpool factory.
func New(ctx context.Context, cfg Config, logger *xlog.Logger, opts ...Option) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = xlog.Default()
	}
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	bb := xsurface.NewBusBuilder().
		WithCapacity(cfg.Bus.Capacity).
		WithLogger(logger).
		WithContext(ctx).
		WithObserverPool(cfg.ObserverWorkers, cfg.ObserverBuffer)
	if o.clock != nil {
		bb.WithClock(o.clock)
	}
	bus, err := bb.Build()
	if err != nil {
		return nil, fmt.Errorf("app: build bus: %w", err)
	}
	tiered := xsurface.NewTieredBus(bus)

	pools, err := eventpool.New(cfg.Events)
	if err != nil {
		_ = bus.Close(ctx)
		return nil, fmt.Errorf("app: event pools: %w", err)
	}

	mb := midi.NewManagerBuilder().
		WithConfig(cfg.MIDI).
		WithLogger(logger).
		WithBus(tiered).
		WithPools(pools)
	if o.clock != nil {
		mb.WithClock(o.clock)
	}
	mgr, err := mb.Build()
	if err != nil {
		_ = bus.Close(ctx)
		return nil, fmt.Errorf("app: midi manager: %w", err)
	}

	eventpool.SetFactoryLogger(logger)
	eventpool.SetStrict(cfg.StrictPools)
	eventpool.Install(pools)

	return &Context{
		Bus:    bus,
		Tiered: tiered,
		Pools:  pools,
		MIDI:   mgr,
		Logger: logger,
	}, nil
}

// Update runs one main-loop cycle.
func (c *Context) Update() { c.MIDI.Update() }

// Every registers fn to run on the main loop at most once per period, after
// Update. Hooks may read any component without locking. Call before Run.
func (c *Context) Every(period time.Duration, fn func()) {
	if fn == nil || period <= 0 {
		return
	}
	c.hooks = append(c.hooks, hook{every: period, fn: fn})
}

func (c *Context) runHooks(now time.Time) {
	for i := range c.hooks {
		h := &c.hooks[i]
		if now.Sub(h.last) >= h.every {
			h.last = now
			h.fn()
		}
	}
}

// Run feeds src into the MIDI manager from its own goroutine and ticks Update
// every tick until ctx is done or src fails. A non-positive tick uses DefaultTick.
func (c *Context) Run(ctx context.Context, src xsurface.InputSource, tick time.Duration) error {
	if src == nil {
		return xsurface.ErrNoSource
	}
	if tick <= 0 {
		tick = DefaultTick
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srcErr := make(chan error, 1)
	go func() { srcErr <- src.Run(ctx, c.MIDI) }()

	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = src.Close()
			if err := <-srcErr; err != nil && !isContextErr(err) {
				return fmt.Errorf("app: source: %w", err)
			}
			return nil
		case err := <-srcErr:
			c.drain()
			_ = src.Close()
			if err != nil && !isContextErr(err) {
				return fmt.Errorf("app: source: %w", err)
			}
			return nil
		case now := <-t.C:
			c.Update()
			c.runHooks(now)
		}
	}
}

// drain dispatches everything still queued and flushes the batches.
func (c *Context) drain() {
	for c.MIDI.Processor().ProcessIncoming() > 0 {
	}
	c.MIDI.FlushAllBatches()
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Into attaches the bus and logger to ctx.
func (c *Context) Into(ctx context.Context) context.Context {
	return xsurface.WithLogger(xsurface.WithBus(ctx, c.Bus), c.Logger)
}

// Close flushes pending batches, closes the bus, and returns every pooled event.
// It uninstalls the pools from the factory if they are still installed. Idempotent.
func (c *Context) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.MIDI.FlushAllBatches()
		c.closeErr = c.Bus.Close(ctx)
		if cur, ok := eventpool.Installed(); ok && cur == c.Pools {
			eventpool.Uninstall()
		}
		if leaked := c.Pools.Close(); leaked > 0 {
			c.Logger.Warn().
				Str("leaked", fmt.Sprint(leaked)).
				Msg("app: pooled events still held at close")
		}
	})
	return c.closeErr
}

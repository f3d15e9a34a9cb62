package xsurface

import (
	"context"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// BusBuilder constructs Bus instances (Builder pattern).
type BusBuilder struct {
	capacity       int
	observers      []Observer
	logger         *xlog.Logger
	clock          Clock
	ctx            context.Context
	poolWorkers    int
	poolBufferSize int
}

// NewBusBuilder returns a new builder with sensible defaults.
func NewBusBuilder() *BusBuilder {
	return &BusBuilder{
		capacity:       DefaultCapacity,
		poolWorkers:    1,
		poolBufferSize: 256,
	}
}

// WithCapacity reserves n subscription slots up front.
func (bb *BusBuilder) WithCapacity(n int) *BusBuilder {
	bb.capacity = n
	return bb
}

func (bb *BusBuilder) WithObserver(obs ...Observer) *BusBuilder {
	for _, o := range obs {
		if o != nil {
			bb.observers = append(bb.observers, o)
		}
	}
	return bb
}

// WithObserverPool sizes the async observer pool. workers <= 0 disables observers entirely.
func (bb *BusBuilder) WithObserverPool(workers, bufferSize int) *BusBuilder {
	bb.poolWorkers = workers
	bb.poolBufferSize = bufferSize
	return bb
}

func (bb *BusBuilder) WithLogger(l *xlog.Logger) *BusBuilder {
	bb.logger = l
	return bb
}

func (bb *BusBuilder) WithClock(c Clock) *BusBuilder {
	bb.clock = c
	return bb
}

// WithContext sets the parent context of the observer pool workers.
func (bb *BusBuilder) WithContext(ctx context.Context) *BusBuilder {
	bb.ctx = ctx
	return bb
}

func (bb *BusBuilder) Build() (*Bus, error) {
	if bb.capacity < 0 {
		return nil, ErrInvalidCapacity
	}

	var clk Clock
	if bb.clock != nil {
		clk = bb.clock
	} else {
		clk = xclock.Default()
	}
	var lg *xlog.Logger
	if bb.logger != nil {
		lg = bb.logger
	} else {
		lg = xlog.Default()
	}
	ctx := bb.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	b := &Bus{
		subs:    make([]subscription, 0, bb.capacity),
		clock:   clk,
		logger:  lg,
		metrics: &busMetrics{},
	}
	if bb.poolWorkers > 0 {
		b.observerPool = NewObserverPool(ctx, bb.poolWorkers, bb.poolBufferSize)
	}

	// Attach logging observer first unless one was supplied.
	hasLoggingObserver := false
	for _, o := range bb.observers {
		if _, ok := o.(LoggingObserver); ok {
			hasLoggingObserver = true
			break
		}
	}
	if !hasLoggingObserver && lg != nil {
		b.AddObserver(LoggingObserver{Logger: lg})
	}
	for _, o := range bb.observers {
		b.AddObserver(o)
	}

	return b, nil
}

// New constructs a Bus via Builder and returns a close func for convenience.
func New(init func(b *BusBuilder)) (*Bus, func() error, error) {
	b := NewBusBuilder()
	if init != nil {
		init(b)
	}
	bus, err := b.Build()
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() error { return bus.Close(context.Background()) }
	return bus, closeFn, nil
}

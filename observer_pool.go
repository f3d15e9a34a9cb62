package xsurface

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// ObserverPool fans bus lifecycle notifications (subscribe, unsubscribe,
// listener panic, tier full, close) out to observers off the control loop.
// A notification that finds the queue full is counted and dropped.
type ObserverPool struct {
	queue   chan *BusEvent
	workers int
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  atomic.Bool

	dropped   atomic.Uint64
	processed atomic.Uint64
	panics    atomic.Uint64
}

// NewObserverPool starts workers goroutines reading from a queue of
// bufferSize notifications. Non-positive values fall back to 1 and 256.
func NewObserverPool(ctx context.Context, workers, bufferSize int) *ObserverPool {
	if workers < 1 {
		workers = 1
	}
	if bufferSize < 1 {
		bufferSize = 256
	}
	poolCtx, cancel := context.WithCancel(ctx)
	op := &ObserverPool{
		queue:   make(chan *BusEvent, bufferSize),
		workers: workers,
		ctx:     poolCtx,
		cancel:  cancel,
	}
	op.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go op.run()
	}
	return op
}

// Notify queues e for observers and returns at once.
// The pool takes ownership of observers.
func (op *ObserverPool) Notify(e BusEvent, observers []Observer) {
	if len(observers) == 0 || op.closed.Load() {
		return
	}
	e.observers = observers
	select {
	case op.queue <- &e:
	default:
		op.dropped.Add(1)
	}
}

func (op *ObserverPool) run() {
	defer op.wg.Done()
	for {
		select {
		case e := <-op.queue:
			op.deliver(e)
		case <-op.ctx.Done():
			op.drain()
			return
		}
	}
}

// drain delivers whatever is still queued after cancellation.
func (op *ObserverPool) drain() {
	for {
		select {
		case e := <-op.queue:
			op.deliver(e)
		default:
			return
		}
	}
}

func (op *ObserverPool) deliver(e *BusEvent) {
	if e == nil {
		return
	}
	for _, obs := range e.observers {
		if obs != nil {
			op.call(obs, *e)
		}
	}
	op.processed.Add(1)
}

// call isolates one observer; a panic is counted and the worker carries on.
func (op *ObserverPool) call(obs Observer, e BusEvent) {
	defer func() {
		if r := recover(); r != nil {
			op.panics.Add(1)
		}
	}()
	obs.OnEvent(e)
}

// Close refuses further notifications and waits up to timeout for the
// queue to drain. Returns ErrObserverPoolShutdownTimeout otherwise.
func (op *ObserverPool) Close(timeout time.Duration) error {
	if op.closed.Swap(true) {
		return nil
	}
	op.cancel()

	done := make(chan struct{})
	go func() {
		op.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrObserverPoolShutdownTimeout
	}
}

// Stats returns a snapshot of the pool counters.
func (op *ObserverPool) Stats() PoolStats {
	return PoolStats{
		Dropped:      op.dropped.Load(),
		Processed:    op.processed.Load(),
		ActiveEvents: len(op.queue),
		Workers:      op.workers,
		BufferSize:   cap(op.queue),
	}
}

// Panics returns how many observer calls panicked.
func (op *ObserverPool) Panics() uint64 { return op.panics.Load() }

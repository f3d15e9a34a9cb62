// Package ring provides a lock-free single-producer/single-consumer circular
// buffer for small, fixed-size records such as MIDI wire messages.
//
// Assumptions:
//   - Exactly one goroutine writes and exactly one goroutine reads.
//   - Size is a power of two; one slot is sacrificed so that full and empty
//     can be told apart with two indices only. Capacity is size-1.
//   - Write never blocks and never overwrites. Read never blocks.
package ring

import (
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// ErrSizeNotPowerOfTwo is returned by New for sizes that are not a power of two >= 2.
var ErrSizeNotPowerOfTwo = errors.New("ring: size must be a power of two >= 2")

// Buffer is an SPSC ring of T values.
// The producer owns writeIdx and the consumer owns readIdx; each index sits on
// its own cache line so the two sides do not false-share.
type Buffer[T any] struct {
	_        cpu.CacheLinePad
	writeIdx atomic.Uint32
	_        cpu.CacheLinePad
	readIdx  atomic.Uint32
	_        cpu.CacheLinePad

	mask  uint32
	slots []T
}

// New constructs a Buffer with the given number of slots.
func New[T any](size int) (*Buffer[T], error) {
	if size < 2 || size&(size-1) != 0 || uint64(size) > 1<<31 {
		return nil, fmt.Errorf("%w: got %d", ErrSizeNotPowerOfTwo, size)
	}
	return &Buffer[T]{
		mask:  uint32(size - 1),
		slots: make([]T, size),
	}, nil
}

// MustNew is New that panics on an invalid size.
func MustNew[T any](size int) *Buffer[T] {
	b, err := New[T](size)
	if err != nil {
		panic(err)
	}
	return b
}

// Write appends v. Returns false when the buffer is full.
// Producer side only.
func (b *Buffer[T]) Write(v T) bool {
	w := b.writeIdx.Load()
	next := (w + 1) & b.mask
	// CRITICAL: the consumer publishes readIdx after copying the slot out,
	// so observing it here means the slot at w is free to overwrite.
	if next == b.readIdx.Load() {
		return false
	}
	b.slots[w] = v
	b.writeIdx.Store(next)
	return true
}

// Read removes and returns the oldest value. ok is false when empty.
// Consumer side only.
func (b *Buffer[T]) Read() (v T, ok bool) {
	r := b.readIdx.Load()
	if r == b.writeIdx.Load() {
		return v, false
	}
	v = b.slots[r]
	b.readIdx.Store((r + 1) & b.mask)
	return v, true
}

// Peek returns the oldest value without removing it.
// Consumer side only.
func (b *Buffer[T]) Peek() (v T, ok bool) {
	r := b.readIdx.Load()
	if r == b.writeIdx.Load() {
		return v, false
	}
	return b.slots[r], true
}

// Len returns the number of buffered values. Advisory under concurrent use.
func (b *Buffer[T]) Len() int {
	return int((b.writeIdx.Load() - b.readIdx.Load()) & b.mask)
}

// Cap returns the number of usable slots (size-1).
func (b *Buffer[T]) Cap() int { return int(b.mask) }

// Size returns the number of allocated slots.
func (b *Buffer[T]) Size() int { return len(b.slots) }

// IsEmpty reports whether nothing is buffered. Advisory.
func (b *Buffer[T]) IsEmpty() bool {
	return b.readIdx.Load() == b.writeIdx.Load()
}

// IsFull reports whether the next Write would fail. Advisory.
func (b *Buffer[T]) IsFull() bool {
	return ((b.writeIdx.Load() + 1) & b.mask) == b.readIdx.Load()
}

// UsageRatio returns Len/Cap in [0,1]. Advisory.
func (b *Buffer[T]) UsageRatio() float64 {
	return float64(b.Len()) / float64(b.Cap())
}

// Clear drops everything buffered by moving the read index up to the write index.
// Consumer side only.
func (b *Buffer[T]) Clear() {
	b.readIdx.Store(b.writeIdx.Load())
}

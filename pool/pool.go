// Package pool implements a fixed-capacity slab allocator for one object type.
//
// A Pool preallocates every slot at construction and never grows. Acquire
// hands out the lowest free slot, Release validates the pointer against the
// backing array and rejects foreign pointers and double frees. Callers decide
// what to do when the pool is exhausted.
//
// Pools are not safe for concurrent use; they are meant to be driven from a
// single main loop.
package pool

import (
	"fmt"
	"math/bits"
	"unsafe"
)

// Stats is a snapshot of pool occupancy.
type Stats struct {
	Capacity   int
	Allocated  int
	Available  int
	UsageRatio float64
}

// Pool is a static arena of T values with a used-bitmask.
type Pool[T any] struct {
	slots     []T
	used      []uint64
	allocated int
	base      uintptr
	elemSize  uintptr
}

// New preallocates n slots. Panics when n < 1 or T has zero size.
func New[T any](n int) *Pool[T] {
	if n < 1 {
		panic(fmt.Sprintf("pool: capacity must be >= 1, got %d", n))
	}
	var zero T
	size := unsafe.Sizeof(zero)
	if size == 0 {
		panic("pool: zero-size element types are not supported")
	}
	p := &Pool[T]{
		slots:    make([]T, n),
		used:     make([]uint64, (n+63)/64),
		elemSize: size,
	}
	p.base = uintptr(unsafe.Pointer(&p.slots[0]))
	return p
}

// Acquire zeroes and returns the lowest free slot, or nil when exhausted.
func (p *Pool[T]) Acquire() *T {
	idx := p.findFree()
	if idx < 0 {
		return nil
	}
	p.markUsed(idx)
	obj := &p.slots[idx]
	var zero T
	*obj = zero
	return obj
}

// AcquireWith is Acquire followed by init on the fresh slot.
func (p *Pool[T]) AcquireWith(init func(*T)) *T {
	obj := p.Acquire()
	if obj != nil && init != nil {
		init(obj)
	}
	return obj
}

// Release returns obj to the pool and zeroes it.
// Returns false for nil, foreign, misaligned or already-free pointers.
func (p *Pool[T]) Release(obj *T) bool {
	idx, ok := p.index(obj)
	if !ok || !p.isUsed(idx) {
		return false
	}
	var zero T
	p.slots[idx] = zero
	p.used[idx>>6] &^= 1 << (uint(idx) & 63)
	p.allocated--
	return true
}

// Owns reports whether obj points at a slot of this pool that is currently in use.
func (p *Pool[T]) Owns(obj *T) bool {
	idx, ok := p.index(obj)
	return ok && p.isUsed(idx)
}

// Close force-releases every live object and returns how many there were.
// The pool remains usable afterwards.
func (p *Pool[T]) Close() int {
	live := p.allocated
	var zero T
	for i := range p.slots {
		if p.isUsed(i) {
			p.slots[i] = zero
		}
	}
	clear(p.used)
	p.allocated = 0
	return live
}

// Len returns the number of objects currently acquired.
func (p *Pool[T]) Len() int { return p.allocated }

// Cap returns the fixed number of slots.
func (p *Pool[T]) Cap() int { return len(p.slots) }

// IsFull reports whether Acquire would return nil.
func (p *Pool[T]) IsFull() bool { return p.allocated == len(p.slots) }

// IsEmpty reports whether no object is acquired.
func (p *Pool[T]) IsEmpty() bool { return p.allocated == 0 }

// Stats returns the current occupancy.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Capacity:   len(p.slots),
		Allocated:  p.allocated,
		Available:  len(p.slots) - p.allocated,
		UsageRatio: float64(p.allocated) / float64(len(p.slots)),
	}
}

// findFree scans the bitmask for the lowest clear bit below capacity.
func (p *Pool[T]) findFree() int {
	for w, word := range p.used {
		if word == ^uint64(0) {
			continue
		}
		idx := w<<6 + bits.TrailingZeros64(^word)
		if idx >= len(p.slots) {
			return -1
		}
		return idx
	}
	return -1
}

func (p *Pool[T]) markUsed(idx int) {
	p.used[idx>>6] |= 1 << (uint(idx) & 63)
	p.allocated++
}

func (p *Pool[T]) isUsed(idx int) bool {
	return p.used[idx>>6]&(1<<(uint(idx)&63)) != 0
}

// index maps a pointer back to its slot number.
func (p *Pool[T]) index(obj *T) (int, bool) {
	if obj == nil {
		return 0, false
	}
	// Pointers below base wrap around to a huge offset and fail the bound check.
	off := uintptr(unsafe.Pointer(obj)) - p.base
	if off%p.elemSize != 0 {
		return 0, false
	}
	idx := off / p.elemSize
	if idx >= uintptr(len(p.slots)) {
		return 0, false
	}
	return int(idx), true
}

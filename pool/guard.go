package pool

// Guard owns one pooled object until it is closed or released. Guards are
// plain values so acquiring one does not allocate.
//
// Typical use:
//
//	g := p.Guard(func(e *Event) { e.Value = v })
//	defer g.Close()
//
// Close returns the object to its pool. Release hands ownership to the caller
// instead, after which Close is a no-op.
type Guard[T any] struct {
	pool *Pool[T]
	obj  *T
}

// NewGuard wraps an object previously acquired from p.
func NewGuard[T any](p *Pool[T], obj *T) Guard[T] {
	return Guard[T]{pool: p, obj: obj}
}

// Guard acquires a slot, applies init, and wraps it.
// The guard is empty (Valid() == false) when the pool is exhausted.
func (p *Pool[T]) Guard(init func(*T)) Guard[T] {
	return NewGuard(p, p.AcquireWith(init))
}

// Get returns the owned object, or nil.
func (g *Guard[T]) Get() *T {
	if g == nil {
		return nil
	}
	return g.obj
}

// Valid reports whether the guard owns an object.
func (g *Guard[T]) Valid() bool { return g != nil && g.obj != nil }

// Release transfers ownership out of the guard without returning the slot.
// The caller becomes responsible for Pool.Release.
func (g *Guard[T]) Release() *T {
	if g == nil {
		return nil
	}
	obj := g.obj
	g.obj = nil
	return obj
}

// Close returns the owned object to its pool. Idempotent.
func (g *Guard[T]) Close() bool {
	if g == nil || g.obj == nil || g.pool == nil {
		return false
	}
	ok := g.pool.Release(g.obj)
	g.obj = nil
	return ok
}

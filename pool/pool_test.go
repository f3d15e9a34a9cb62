package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID    int
	Value uint8
}

// TestPool_Exhaustion tests that acquire fails after capacity and recovers after a release.
func TestPool_Exhaustion(t *testing.T) {
	p := New[item](4)

	objs := make([]*item, 0, 4)
	for i := 0; i < 4; i++ {
		obj := p.Acquire()
		require.NotNil(t, obj, "acquire %d", i)
		objs = append(objs, obj)
	}
	assert.True(t, p.IsFull())
	assert.Nil(t, p.Acquire())

	require.True(t, p.Release(objs[2]))
	again := p.Acquire()
	require.NotNil(t, again)
	assert.Same(t, objs[2], again, "freed slot is reused")
}

// TestPool_DoubleFree tests that releasing the same pointer twice fails the second time.
func TestPool_DoubleFree(t *testing.T) {
	p := New[item](2)
	obj := p.Acquire()

	assert.True(t, p.Release(obj))
	assert.False(t, p.Release(obj))
	assert.True(t, p.IsEmpty())
}

// TestPool_RejectsForeignPointers tests nil and out-of-pool pointers.
func TestPool_RejectsForeignPointers(t *testing.T) {
	p := New[item](2)
	other := New[item](2)

	assert.False(t, p.Release(nil))
	assert.False(t, p.Release(&item{}))
	assert.False(t, p.Release(other.Acquire()))
	assert.False(t, p.Owns(&item{}))
}

// TestPool_AcquireZeroesAndInits tests that slots are reset between uses.
func TestPool_AcquireZeroesAndInits(t *testing.T) {
	p := New[item](1)

	obj := p.AcquireWith(func(it *item) { it.ID = 7; it.Value = 99 })
	require.NotNil(t, obj)
	assert.Equal(t, item{ID: 7, Value: 99}, *obj)
	assert.True(t, p.Owns(obj))

	require.True(t, p.Release(obj))
	assert.Equal(t, item{}, *obj, "release destructs the slot")

	obj = p.Acquire()
	assert.Equal(t, item{}, *obj)
}

// TestPool_Stats tests the occupancy snapshot.
func TestPool_Stats(t *testing.T) {
	p := New[item](4)
	p.Acquire()

	st := p.Stats()
	assert.Equal(t, 4, st.Capacity)
	assert.Equal(t, 1, st.Allocated)
	assert.Equal(t, 3, st.Available)
	assert.InDelta(t, 0.25, st.UsageRatio, 1e-9)
	assert.Equal(t, 1, p.Len())
	assert.Equal(t, 4, p.Cap())
}

// TestPool_Close tests that Close force-releases live objects.
func TestPool_Close(t *testing.T) {
	p := New[item](3)
	a := p.Acquire()
	p.Acquire()

	assert.Equal(t, 2, p.Close())
	assert.True(t, p.IsEmpty())
	assert.False(t, p.Release(a))
	assert.NotNil(t, p.Acquire())
}

// TestPool_LargeCapacity tests bitmask handling across word boundaries.
func TestPool_LargeCapacity(t *testing.T) {
	p := New[item](130)
	for i := 0; i < 130; i++ {
		require.NotNil(t, p.Acquire(), "acquire %d", i)
	}
	assert.Nil(t, p.Acquire())
	assert.True(t, p.IsFull())
}

// TestNew_InvalidCapacity tests constructor validation.
func TestNew_InvalidCapacity(t *testing.T) {
	assert.Panics(t, func() { New[item](0) })
	assert.Panics(t, func() { New[struct{}](4) })
}

// TestGuard_CloseReturnsSlot tests scoped ownership.
func TestGuard_CloseReturnsSlot(t *testing.T) {
	p := New[item](1)

	func() {
		g := p.Guard(func(it *item) { it.ID = 1 })
		defer g.Close()
		require.True(t, g.Valid())
		assert.Equal(t, 1, g.Get().ID)
		assert.True(t, p.IsFull())
	}()

	assert.True(t, p.IsEmpty())
}

// TestGuard_ReleaseTransfersOwnership tests that Release keeps the slot allocated.
func TestGuard_ReleaseTransfersOwnership(t *testing.T) {
	p := New[item](1)
	g := p.Guard(nil)

	obj := g.Release()
	require.NotNil(t, obj)
	assert.False(t, g.Valid())
	assert.False(t, g.Close())
	assert.True(t, p.IsFull(), "slot still owned by caller")

	assert.True(t, p.Release(obj))
}

// TestGuard_Exhausted tests the empty guard returned by a full pool.
func TestGuard_Exhausted(t *testing.T) {
	p := New[item](1)
	p.Acquire()

	g := p.Guard(nil)
	assert.False(t, g.Valid())
	assert.Nil(t, g.Get())
	assert.False(t, g.Close())

	var nilGuard *Guard[item]
	assert.False(t, nilGuard.Valid())
	assert.Nil(t, nilGuard.Release())
}

package ring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNew_RejectsInvalidSizes tests that only powers of two are accepted.
func TestNew_RejectsInvalidSizes(t *testing.T) {
	for _, size := range []int{-1, 0, 1, 3, 6, 100} {
		_, err := New[int](size)
		assert.ErrorIs(t, err, ErrSizeNotPowerOfTwo, "size %d", size)
	}

	b, err := New[int](8)
	require.NoError(t, err)
	assert.Equal(t, 7, b.Cap())
	assert.Equal(t, 8, b.Size())
	assert.True(t, b.IsEmpty())

	assert.Panics(t, func() { MustNew[int](5) })
}

// TestBuffer_FIFO tests that values come out in the order they went in.
func TestBuffer_FIFO(t *testing.T) {
	b := MustNew[int](16)

	for i := 0; i < 10; i++ {
		require.True(t, b.Write(i))
	}
	assert.Equal(t, 10, b.Len())

	for i := 0; i < 10; i++ {
		v, ok := b.Read()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

// TestBuffer_FullEmptyBoundary tests that exactly size-1 writes fit.
func TestBuffer_FullEmptyBoundary(t *testing.T) {
	b := MustNew[uint8](8)

	for i := 0; i < 7; i++ {
		require.True(t, b.Write(uint8(i)), "write %d", i)
	}
	assert.True(t, b.IsFull())
	assert.False(t, b.Write(99))
	assert.InDelta(t, 1.0, b.UsageRatio(), 1e-9)

	for i := 0; i < 7; i++ {
		_, ok := b.Read()
		require.True(t, ok)
	}
	_, ok := b.Read()
	assert.False(t, ok)
	assert.True(t, b.IsEmpty())
	assert.Zero(t, b.UsageRatio())
}

// TestBuffer_Wraparound tests FIFO order across many index wraps.
func TestBuffer_Wraparound(t *testing.T) {
	b := MustNew[int](4)

	next := 0
	for round := 0; round < 50; round++ {
		require.True(t, b.Write(round*2))
		require.True(t, b.Write(round*2+1))
		for i := 0; i < 2; i++ {
			v, ok := b.Read()
			require.True(t, ok)
			assert.Equal(t, next, v)
			next++
		}
	}
}

// TestBuffer_PeekAndClear tests that Peek does not consume and Clear drops all.
func TestBuffer_PeekAndClear(t *testing.T) {
	b := MustNew[string](4)

	_, ok := b.Peek()
	assert.False(t, ok)

	b.Write("a")
	b.Write("b")

	v, ok := b.Peek()
	require.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, 2, b.Len())

	b.Clear()
	assert.True(t, b.IsEmpty())
	assert.True(t, b.Write("c"))
	v, _ = b.Read()
	assert.Equal(t, "c", v)
}

// TestBuffer_ConcurrentSPSC tests one producer and one consumer running in parallel.
func TestBuffer_ConcurrentSPSC(t *testing.T) {
	const total = 100000
	b := MustNew[int](256)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; {
			if b.Write(i) {
				i++
			}
		}
	}()

	expected := 0
	for expected < total {
		v, ok := b.Read()
		if !ok {
			continue
		}
		if v != expected {
			t.Fatalf("out of order: got %d want %d", v, expected)
		}
		expected++
	}
	wg.Wait()
	assert.True(t, b.IsEmpty())
}

// BenchmarkBuffer_WriteRead measures a write/read round trip.
func BenchmarkBuffer_WriteRead(b *testing.B) {
	buf := MustNew[[4]byte](256)
	msg := [4]byte{0xB0, 7, 64, 0}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Write(msg)
		buf.Read()
	}
}

package shardalloc_test

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khollbach/shardalloc"
)

func newTestAllocator(t *testing.T) *shardalloc.Allocator {
	t.Helper()
	a, err := shardalloc.NewAllocator(shardalloc.DefaultConfig())
	require.NoError(t, err)
	return a
}

func TestAllocateZeroReturnsDistinctFreeablePointer(t *testing.T) {
	t.Parallel()

	a := newTestAllocator(t)
	p := a.Allocate(0)
	require.NotNil(t, p)
	a.Free(p)
}

func TestAllocateNegativeReturnsNil(t *testing.T) {
	t.Parallel()

	a := newTestAllocator(t)
	assert.Nil(t, a.Allocate(-1))
}

func TestFreeNilIsNoOp(t *testing.T) {
	t.Parallel()

	a := newTestAllocator(t)
	assert.NotPanics(t, func() { a.Free(nil) })
}

func TestAllocateAtAndBeyondLargestSizeClass(t *testing.T) {
	t.Parallel()

	a := newTestAllocator(t)
	cfg := shardalloc.DefaultConfig()
	largest := cfg.Sizes[len(cfg.Sizes)-1]

	p := a.Allocate(largest)
	require.NotNil(t, p)
	a.Free(p)

	// One byte past the last size class takes the large-object path, but
	// must still round-trip through Allocate/Free cleanly.
	q := a.Allocate(largest + 1)
	require.NotNil(t, q)
	a.Free(q)

	r := a.Allocate(largest * 10)
	require.NotNil(t, r)
	a.Free(r)
}

func TestRoundTripDistinctPointersDoNotAlias(t *testing.T) {
	t.Parallel()

	a := newTestAllocator(t)

	const n = 256
	ptrs := make([]unsafe.Pointer, n)
	seen := make(map[uintptr]bool, n)
	for i := range ptrs {
		p := a.Allocate(16)
		require.NotNil(t, p)
		addr := uintptr(p)
		require.False(t, seen[addr], "address %#x handed out twice while still live", addr)
		seen[addr] = true
		ptrs[i] = p
	}
	for _, p := range ptrs {
		a.Free(p)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	t.Parallel()

	a := newTestAllocator(t)
	p := a.Allocate(64)
	require.NotNil(t, p)

	buf := unsafe.Slice((*byte)(p), 64)
	for i := range buf {
		buf[i] = byte(i)
	}
	for i := range buf {
		require.Equal(t, byte(i), buf[i])
	}

	a.Free(p)
}

func TestConcurrentAllocateFree(t *testing.T) {
	t.Parallel()

	a := newTestAllocator(t)

	const workers = 16
	const iterations = 500

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(seed int) {
			defer wg.Done()
			sizes := []int{1, 8, 17, 64, 129, 450, 900}
			var live []unsafe.Pointer
			for i := 0; i < iterations; i++ {
				sz := sizes[(seed+i)%len(sizes)]
				p := a.Allocate(sz)
				if p == nil {
					t.Errorf("Allocate(%d) returned nil", sz)
					return
				}
				live = append(live, p)
				if len(live) > 8 {
					a.Free(live[0])
					live = live[1:]
				}
			}
			for _, p := range live {
				a.Free(p)
			}
		}(w)
	}
	wg.Wait()
}

func TestStatsReflectsAllocations(t *testing.T) {
	t.Parallel()

	a := newTestAllocator(t)
	before := a.Stats()

	p := a.Allocate(16)
	require.NotNil(t, p)

	after := a.Stats()
	assert.Greater(t, after.ArenaReservedBytes, before.ArenaReservedBytes)

	a.Free(p)
}

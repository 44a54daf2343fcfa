//go:build debug

package shardalloc_test

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/khollbach/shardalloc"
)

// TestConcurrentStressWithLiveSetTracking is the debug-build sibling of
// TestConcurrentStressAcrossRounds: it runs the same allocate/free-under-
// contention shape, but records every live pointer in a
// [shardalloc.LiveSet], so a double-allocation of an address still
// considered live, or a free of an address the set doesn't recognize as
// live, aborts the test immediately instead of silently corrupting memory.
func TestConcurrentStressWithLiveSetTracking(t *testing.T) {
	t.Parallel()

	a, err := shardalloc.NewAllocator(shardalloc.DefaultConfig())
	require.NoError(t, err)

	var live shardalloc.LiveSet

	const rounds = 3
	const workers = 8
	sizes := []int{1, 8, 33, 64, 130, 256, 451, 2048}

	for r := 0; r < rounds; r++ {
		var wg sync.WaitGroup
		wg.Add(workers)
		for w := 0; w < workers; w++ {
			go func(seed int) {
				defer wg.Done()

				var scratch []unsafe.Pointer
				for i := 0; i < 150; i++ {
					sz := sizes[(seed+i)%len(sizes)]
					p := a.Allocate(sz)
					require.NotNil(t, p)
					live.Track(p)
					scratch = append(scratch, p)

					if len(scratch) > 12 {
						head := scratch[0]
						scratch = scratch[1:]
						live.Untrack(head)
						a.Free(head)
					}
				}

				for _, p := range scratch {
					live.Untrack(p)
					a.Free(p)
				}
			}(r*workers + w)
		}
		wg.Wait()
	}

	require.Equal(t, 0, live.Count(), "every tracked pointer should have been freed by the end of the run")
}

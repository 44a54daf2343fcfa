package shardalloc_test

import (
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/khollbach/shardalloc"
	"github.com/khollbach/shardalloc/internal/sync2"
)

// workerScratch is the per-goroutine working set for the stress test below:
// a reusable buffer of pointers currently considered live by that worker.
type workerScratch struct {
	live []unsafe.Pointer
}

var scratchPool = sync2.Pool[workerScratch]{
	New:   func() *workerScratch { return &workerScratch{live: make([]unsafe.Pointer, 0, 64)} },
	Reset: func(w *workerScratch) { w.live = w.live[:0] },
}

// TestConcurrentStressAcrossRounds exercises the scenario spec's testable
// properties call a "concurrent stress" run: many goroutines allocating
// and freeing across several size classes (8, 64 and 256 bytes, plus the
// large-object path)
// over several rounds, recycling their scratch state through a shared pool
// between rounds the way a long-lived server worker would.
func TestConcurrentStressAcrossRounds(t *testing.T) {
	t.Parallel()

	a, err := shardalloc.NewAllocator(shardalloc.DefaultConfig())
	require.NoError(t, err)

	const rounds = 4
	const workers = 12
	sizes := []int{1, 8, 33, 64, 130, 256, 451, 2048}

	for r := 0; r < rounds; r++ {
		var wg sync.WaitGroup
		wg.Add(workers)
		for w := 0; w < workers; w++ {
			go func(seed int) {
				defer wg.Done()

				scratch, drop := scratchPool.Get()
				defer drop()

				for i := 0; i < 200; i++ {
					sz := sizes[(seed+i)%len(sizes)]
					p := a.Allocate(sz)
					require.NotNil(t, p)
					scratch.live = append(scratch.live, p)

					if len(scratch.live) > 16 {
						a.Free(scratch.live[0])
						scratch.live = scratch.live[1:]
					}
				}

				for _, p := range scratch.live {
					a.Free(p)
				}
			}(r*workers + w)
		}
		wg.Wait()
	}
}

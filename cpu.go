package shardalloc

import (
	"runtime"

	"github.com/timandy/routine"
)

// NumProcessors reports the number of per-CPU heaps an allocator maintains.
// [NewAllocator] always uses this count, for the package-level default and
// for explicitly constructed allocators alike; [Config] has no field to
// override it.
func NumProcessors() int {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		n = 1
	}
	return n
}

// CurrentCPU returns an advisory hint for which per-CPU heap the calling
// goroutine should prefer, in [0, NumProcessors()). It is not tied to any
// real OS thread or hardware core: Go gives no portable way to ask that,
// and the allocator's correctness never depends on the hint being accurate
// (see spec's "current_cpu() need only be advisory, its accuracy affects
// only performance, not correctness").
//
// The hint is derived from the calling goroutine's id, which is stable for
// the lifetime of the goroutine and cheap to read via routine.Goid,
// matching the identification scheme this package's debug logging already
// uses.
func CurrentCPU(numCPUs int) int {
	if numCPUs <= 1 {
		return 0
	}
	id := routine.Goid()
	if id < 0 {
		id = -id
	}
	return int(id % int64(numCPUs))
}

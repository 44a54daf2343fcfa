//go:build debug

package shardalloc

import (
	"unsafe"

	"github.com/khollbach/shardalloc/internal/debug"
	"github.com/khollbach/shardalloc/internal/xsync"
)

// LiveSet tracks the set of pointers a caller believes are currently live,
// asserting on double-allocation of the same address and double-free. It
// exists purely as test support (spec's "diagnostic printing and
// assertion-time invariant checking are test-support, not core") and is
// compiled only into debug builds.
type LiveSet struct {
	live xsync.Set[uintptr]
}

// Track records ptr as live. Panics (in a debug build) if ptr is already
// tracked, since the allocator must never hand out the same address twice
// without an intervening free.
func (s *LiveSet) Track(ptr unsafe.Pointer) {
	addr := uintptr(ptr)
	debug.Assert(!s.live.Load(addr), "pointer %#x allocated twice without an intervening free", addr)
	s.live.Store(addr)
}

// Untrack removes ptr from the live set. Panics (in a debug build) if ptr
// was not tracked, catching double-frees and frees of unrecognized
// pointers in test harnesses.
func (s *LiveSet) Untrack(ptr unsafe.Pointer) {
	addr := uintptr(ptr)
	debug.Assert(s.live.Load(addr), "freeing untracked pointer %#x", addr)
	s.live.Delete(addr)
}

// Count returns the number of currently-tracked pointers.
func (s *LiveSet) Count() int {
	n := 0
	for range s.live.All() {
		n++
	}
	return n
}

package shardalloc

import (
	"sync"

	"github.com/khollbach/shardalloc/internal/unsafe2"
)

// Heap is one heap in the hierarchy: either a per-CPU heap or the single
// global heap (index -1). Each holds one [Subheap] per size class plus a
// pool of unclassified, fully-empty superblocks (the "empties pool") that
// have been pseudo-reclaimed from a subheap but not yet given back to the
// arena (which this allocator never does; see spec's Non-goals).
type Heap struct {
	_ unsafe2.NoCopy

	index int // -1 for the global heap, else a CPU index in [0, NumProcessors).

	subheaps []*Subheap // Length numSizes(), indexed by size class.

	emptiesMu  sync.Mutex
	empties    binHead
	numEmpties int
}

func newHeap(index int, t sizeTable, nbins int) *Heap {
	h := &Heap{index: index}
	h.subheaps = make([]*Subheap, t.numSizes())
	for sc := range h.subheaps {
		h.subheaps[sc] = newSubheap(h, sc, t.sizes[sc], t.maxBlocks[sc], nbins)
	}
	h.empties.heap = h
	return h
}

func (h *Heap) isGlobal() bool { return h.index < 0 }

// takeEmpty removes and returns one superblock from h's empties pool, or
// nil if it is empty. Callers hold h.emptiesMu.
func (h *Heap) takeEmpty() *Superblock {
	sb := pop(&h.empties)
	if sb != nil {
		h.numEmpties--
	}
	return sb
}

// putEmpty adds sb, which must be fully free and detached, to h's empties
// pool. Callers hold h.emptiesMu.
func (h *Heap) putEmpty(sb *Superblock) {
	sb.sc = scEmpty
	push(&h.empties, sb)
	h.numEmpties++
}

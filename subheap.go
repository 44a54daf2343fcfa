package shardalloc

import "sync"

// Subheap is the per-size-class portion of a [Heap]: a set of fullness
// bins holding classified superblocks, plus the distinguished full bin for
// superblocks with no free slots.
//
// Bins are indexed 0..NBINS-1 by approximate fullness (emptiest first); the
// full bin is kept separate so the allocation path never has to scan past
// superblocks it cannot use.
type Subheap struct {
	mu sync.Mutex

	sc        int // Which size class this subheap serves.
	blockSize int
	maxBlocks int // Blocks per superblock at this size class.

	bins []binHead // Length NBINS; bins[i].heap is always the owning Heap.
	full binHead

	allocated int32 // Total blocks across all superblocks owned by this subheap.
	used      int32 // Total blocks currently handed out.

	_ [64]byte // Pad to a cache line; see DESIGN.md for the false-sharing rationale.
}

func newSubheap(h *Heap, sc, blockSize, maxBlocks, nbins int) *Subheap {
	sh := &Subheap{
		sc:        sc,
		blockSize: blockSize,
		maxBlocks: maxBlocks,
		bins:      make([]binHead, nbins),
	}
	for i := range sh.bins {
		sh.bins[i].heap = h
	}
	sh.full.heap = h
	return sh
}

// binIndex maps a superblock's fullness (used out of maxBlocks slots) to a
// fullness-bin index in [0, nbins). A superblock with used == maxBlocks
// belongs in the full bin instead, never in bins[nbins-1].
func binIndex(used, maxBlocks, nbins int) int {
	if maxBlocks <= 1 {
		return 0
	}
	i := used * nbins / maxBlocks
	if i >= nbins {
		i = nbins - 1
	}
	return i
}

// reclassify moves sb to the fullness bin matching its current used count,
// or to the full bin if it has no free slots left. sb must already be
// linked into some bin of sh (or be freshly classified with sb.bin == nil);
// callers hold sh.mu.
func (sh *Subheap) reclassify(sb *Superblock) {
	if sb.bin.Load() != nil {
		remove(sb)
	}
	if int(sb.used) >= sh.maxBlocks {
		push(&sh.full, sb)
		return
	}
	push(&sh.bins[binIndex(int(sb.used), sh.maxBlocks, len(sh.bins))], sb)
}

// fraction returns used/allocated as a ratio in [0, 1], or 0 if the subheap
// owns no superblocks. Used by the reclamation donation trigger in §4.7.5
// to test the ratiometric half of the donate condition (fullness ratio
// below 1/NBINS).
func (sh *Subheap) fraction() float64 {
	if sh.allocated == 0 {
		return 0
	}
	return float64(sh.used) / float64(sh.allocated)
}

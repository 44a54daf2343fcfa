package shardalloc

// SizeClassStats summarizes one heap's bookkeeping for a single size
// class, mirroring the per-class fields `original_source`'s stats routine
// printed: how many blocks this heap could serve without growing, and how
// many of them are currently handed out.
type SizeClassStats struct {
	Size      int
	Allocated int
	Used      int
}

// HeapStats summarizes one heap: -1 for the global heap, else a CPU index.
type HeapStats struct {
	Index        int
	SizeClasses  []SizeClassStats
	EmptyBlocks  int // Superblocks sitting in this heap's empties pool.
}

// Stats is a point-in-time snapshot of an [Allocator]'s bookkeeping. It is
// built by locking and unlocking every subheap and empties pool in turn,
// so it is not atomic across the whole allocator, nor across one heap:
// each subheap's counts and each empties count are read under their own
// lock only.
type Stats struct {
	Heaps              []HeapStats
	ArenaReservedBytes int64
	ArenaChunks        int64
}

// Stats returns a snapshot of a's current bookkeeping. This is test and
// diagnostic support, not part of the allocation fast path.
func (a *Allocator) Stats() Stats {
	var s Stats
	s.Heaps = append(s.Heaps, heapStats(a, a.global))
	for _, h := range a.cpus {
		s.Heaps = append(s.Heaps, heapStats(a, h))
	}
	s.ArenaReservedBytes, s.ArenaChunks = a.arena.Stats()
	return s
}

func heapStats(a *Allocator, h *Heap) HeapStats {
	hs := HeapStats{Index: h.index}
	for sc, sh := range h.subheaps {
		sh.mu.Lock()
		hs.SizeClasses = append(hs.SizeClasses, SizeClassStats{
			Size:      a.sizes.sizes[sc],
			Allocated: int(sh.allocated),
			Used:      int(sh.used),
		})
		sh.mu.Unlock()
	}

	h.emptiesMu.Lock()
	hs.EmptyBlocks = h.numEmpties
	h.emptiesMu.Unlock()

	return hs
}

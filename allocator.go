package shardalloc

import (
	"runtime"
	"unsafe"

	"github.com/khollbach/shardalloc/internal/arena"
	"github.com/khollbach/shardalloc/internal/debug"
	"github.com/khollbach/shardalloc/internal/unsafe2"
)

// Allocator is a Hoard-style concurrent allocator: one global heap plus one
// heap per logical CPU, a fixed size-class table, and a single shared arena
// that every heap's superblocks are ultimately carved from.
//
// The zero Allocator is not ready to use; construct one with [NewAllocator].
// An *Allocator is safe for concurrent use by any number of goroutines.
type Allocator struct {
	_ unsafe2.NoCopy

	cfg   Config
	sizes sizeTable
	arena *arena.Arena

	global *Heap
	cpus   []*Heap
}

// NewAllocator builds an allocator from cfg, with one per-CPU heap for each
// of [NumProcessors] logical CPUs.
func NewAllocator(cfg Config) (*Allocator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Allocator{
		cfg:   cfg,
		sizes: newSizeTable(cfg),
		arena: arena.New(cfg.SuperblockSize),
	}

	a.global = newHeap(-1, a.sizes, cfg.Bins)

	n := NumProcessors()
	a.cpus = make([]*Heap, n)
	for i := range a.cpus {
		a.cpus[i] = newHeap(i, a.sizes, cfg.Bins)
	}

	debug.Log(nil, "new", "cfg=%+v cpus=%d", cfg, n)
	return a, nil
}

// Allocate returns a pointer to size bytes, or nil if size is negative. A
// request of zero bytes is treated as a request for one byte, matching the
// common malloc(0) convention of returning a distinct, valid, freeable
// pointer rather than nil.
func (a *Allocator) Allocate(size int) unsafe.Pointer {
	if size < 0 {
		return nil
	}
	if size == 0 {
		size = 1
	}

	if size > a.sizes.largest() {
		return a.allocateLarge(size)
	}

	sc := a.sizes.sizeClass(size)
	cpu := CurrentCPU(len(a.cpus))
	return a.allocateSmall(sc, cpu)
}

// allocateSmall implements the size-classed allocation path (spec §4.5),
// including the acquisition cascade (§4.6) on a subheap miss.
func (a *Allocator) allocateSmall(sc, cpu int) unsafe.Pointer {
	heap := a.cpus[cpu]
	sh := heap.subheaps[sc]

	sh.mu.Lock()
	sb := findVictim(sh)
	if sb == nil {
		// Miss: drop the subheap lock before cascading through the heap's
		// empties pool, the global heap, and finally the arena, since
		// nothing in the cascade needs sh.mu held. Only this miss path
		// splits into two critical sections; a hit scans and pops under
		// one held lock.
		sh.mu.Unlock()

		fresh := a.acquireSuperblock(heap, sc)

		sh.mu.Lock()
		sh.allocated += int32(sh.maxBlocks)
		// fresh.used is nonzero when the cascade stole a partially-full
		// superblock out of the global subheap's bins[0] rather than
		// classifying a brand-new one; either way the subheap's used
		// count must track whatever blocks fresh already has handed out.
		sh.used += int32(fresh.used)
		sh.reclassify(fresh)

		// Re-validate: another goroutine sharing this CPU's heap may have
		// raced us and already added a superblock with room while the lock
		// was dropped. Re-scanning (rather than assuming `fresh` is the
		// best choice) means we never leave a better victim unused.
		sb = findVictim(sh)
	}

	slot := sb.freelist
	sb.freelist = slot.next
	sb.used++
	sh.used++
	sh.reclassify(sb)
	sh.mu.Unlock()

	debug.Log(nil, "allocate", "sc=%d cpu=%d -> %p", sc, cpu, slot)
	return unsafe.Pointer(slot)
}

// findVictim scans sh's fullness bins from most-full to least-full and
// returns the first superblock with a free slot, or nil if every
// superblock in sh is full (or sh owns none at all). Preferring the
// fullest non-full superblock packs allocations tightly, which is what
// lets the lower bins drain towards fully-empty and become reclaimable.
func findVictim(sh *Subheap) *Superblock {
	for i := len(sh.bins) - 1; i >= 0; i-- {
		if sh.bins[i].head != nil {
			return sh.bins[i].head
		}
	}
	return nil
}

// acquireSuperblock implements the acquisition cascade (spec §4.6): the
// heap's own empties pool, then the global heap's same-size-class subheap,
// then the global heap's empties pool, then finally the arena. Returns a
// superblock classified at sc, detached (linked into no bin) — the caller
// is responsible for pushing it into heap's subheap under that subheap's
// lock, which is what makes it heap's from the free path's point of view
// (see Superblock.bin's doc comment: heap identity is derived purely from
// whichever bin a superblock is currently linked into).
func (a *Allocator) acquireSuperblock(heap *Heap, sc int) *Superblock {
	if sb := a.takeOwnEmpty(heap); sb != nil {
		classify(sb, sc, a.sizes.maxBlocks[sc], a.sizes.sizes[sc])
		debug.Log(nil, "acquire", "%p from own empties, sc=%d", sb, sc)
		return sb
	}

	if !heap.isGlobal() {
		if sb := a.stealFromGlobalSubheap(sc); sb != nil {
			debug.Log(nil, "acquire", "%p stolen from global subheap, sc=%d", sb, sc)
			return sb
		}

		if sb := a.takeOwnEmpty(a.global); sb != nil {
			classify(sb, sc, a.sizes.maxBlocks[sc], a.sizes.sizes[sc])
			debug.Log(nil, "acquire", "%p from global empties, sc=%d", sb, sc)
			return sb
		}
	}

	sb := a.extendArena()
	classify(sb, sc, a.sizes.maxBlocks[sc], a.sizes.sizes[sc])
	debug.Log(nil, "acquire", "%p freshly extended, sc=%d", sb, sc)
	return sb
}

func (a *Allocator) takeOwnEmpty(heap *Heap) *Superblock {
	heap.emptiesMu.Lock()
	sb := heap.takeEmpty()
	heap.emptiesMu.Unlock()
	return sb
}

// stealFromGlobalSubheap removes the global heap's least-full superblock of
// size class sc (spec §4.6.2). Only bins[0] is consulted, never a full scan
// like findVictim's: leaving fuller global superblocks in place preserves
// them for the explicit reclamation donation in §4.7.5 and minimizes the
// chance of starving a bin dry.
func (a *Allocator) stealFromGlobalSubheap(sc int) *Superblock {
	gsh := a.global.subheaps[sc]

	gsh.mu.Lock()
	defer gsh.mu.Unlock()

	sb := pop(&gsh.bins[0])
	if sb == nil {
		return nil
	}
	gsh.allocated -= int32(gsh.maxBlocks)
	gsh.used -= sb.used
	return sb
}

func (a *Allocator) extendArena() *Superblock {
	raw := a.arena.Extend(a.cfg.SuperblockSize)
	sb := unsafe2.Cast[Superblock](raw)
	resetSuperblock(sb)
	return sb
}

// resetSuperblock zeroes sb's header fields in place. Unlike a bare struct
// literal assignment, this never copies over sb.bin, whose atomic.Pointer
// must not be overwritten by value.
func resetSuperblock(sb *Superblock) {
	sb.sc = 0
	sb.used = 0
	sb.bin.Store(nil)
	sb.prev, sb.next = nil, nil
	sb.freelist = nil
	sb.numSuperblocks = 0
}

// superblockOf recovers the superblock header owning ptr by aligning down
// to the nearest S-byte boundary: the arena guarantees every superblock
// (and every large allocation's backing chunk) starts on such a boundary,
// and every pointer Allocate hands out (a block, or the start of a
// large-object payload) lies within the first S bytes of its chunk.
func superblockOf(ptr unsafe.Pointer, superblockSize int) *Superblock {
	addr := unsafe2.AddrOf((*byte)(ptr))
	prev, _ := addr.Misalign(superblockSize)
	base := unsafe2.ByteAdd((*byte)(ptr), -prev)
	return unsafe2.Cast[Superblock](base)
}

// Free releases a pointer previously returned by [Allocator.Allocate]. It
// is a no-op on nil. Passing a pointer not obtained from this allocator,
// or freeing the same pointer twice, is undefined behavior, exactly as
// for C's free().
func (a *Allocator) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}

	sb := superblockOf(ptr, a.cfg.SuperblockSize)
	if sb.sc == scLarge {
		a.freeLarge(sb)
		return
	}
	sc := sb.sc

	// Migration-tolerant lock acquisition (spec §4.7): sb.bin names both
	// the list and (via bin.heap) the heap that currently owns sb. A nil
	// read means sb is transiently detached mid-migration between two
	// bins; since a classified superblock only ever moves while some
	// thread holds its *source* heap's subheap lock, re-validating
	// sb.bin against the bin we locked against is enough to know the
	// lock we're holding is the right one.
	var heap *Heap
	var sh *Subheap
	for {
		bin := sb.bin.Load()
		if bin == nil {
			runtime.Gosched()
			continue
		}
		heap = bin.heap
		sh = heap.subheaps[sc]
		sh.mu.Lock()
		if sb.bin.Load() == bin {
			break
		}
		sh.mu.Unlock()
	}

	slot := (*freeNode)(ptr)
	slot.next = sb.freelist
	sb.freelist = slot
	sb.used--
	sh.used--

	var recycled *Superblock
	if sb.used > 0 {
		// Step 2: still has live blocks, just re-bin it (move-to-front on
		// a same-bin push is the deliberate locality heuristic the spec
		// calls out, not an oversight).
		sh.reclassify(sb)
	} else {
		// Step 3: sb has no live blocks left. It leaves the subheap
		// entirely (allocated accounting shrinks) and becomes an
		// unclassified empty superblock; it does not linger in bins[0],
		// since the fullness-bin invariant requires 0 < used < maxBlocks
		// for anything still classified.
		remove(sb)
		sh.allocated -= int32(sh.maxBlocks)
		sb.freelist = nil
		sb.sc = scEmpty
		recycled = sb
	}

	var donated *Superblock
	if !heap.isGlobal() {
		// Step 5: reclamation trigger. This check runs on every free to a
		// CPU heap, independent of whether this particular free just
		// emptied sb; the victim it donates (the subheap's least-full
		// superblock) need not be sb at all.
		if sh.used < sh.allocated-int32(a.cfg.EmptyThreshold)*int32(sh.maxBlocks) &&
			sh.fraction() < 1/float64(len(sh.bins)) {
			if victim := sh.bins[0].head; victim != nil {
				remove(victim)
				sh.allocated -= int32(sh.maxBlocks)
				sh.used -= victim.used
				donated = victim
			}
		}
	}
	sh.mu.Unlock()

	debug.Log(nil, "free", "sc=%d heap=%d %p", sc, heap.index, ptr)

	if recycled != nil {
		a.recycleEmpty(heap, recycled)
	}
	if donated != nil {
		a.donateToGlobalSubheap(sc, donated)
	}
}

// recycleEmpty implements the pseudo-reclamation half of spec §4.7 step 3:
// a freshly-emptied superblock is pushed into heap's empties pool, unless
// that pool is already at K_THRESH, in which case it goes straight to the
// global heap's empties pool instead, so a single busy CPU heap can never
// hoard more than K_THRESH idle superblocks.
func (a *Allocator) recycleEmpty(heap *Heap, sb *Superblock) {
	if heap.isGlobal() {
		heap.emptiesMu.Lock()
		heap.putEmpty(sb)
		heap.emptiesMu.Unlock()
		return
	}

	heap.emptiesMu.Lock()
	overLimit := heap.numEmpties >= a.cfg.EmptyThreshold
	if !overLimit {
		heap.putEmpty(sb)
	}
	heap.emptiesMu.Unlock()

	if !overLimit {
		return
	}

	a.global.emptiesMu.Lock()
	a.global.putEmpty(sb)
	a.global.emptiesMu.Unlock()

	debug.Log(nil, "donate", "%p heap=%d -> global empties", sb, heap.index)
}

// donateToGlobalSubheap implements the reclamation trigger of spec §4.7.5:
// a superblock pulled from a CPU subheap's least-full bin is handed
// straight to the global heap's same-size-class bin 0, retaining whatever
// partial occupancy it had (unlike recycleEmpty, this superblock is not
// necessarily empty).
func (a *Allocator) donateToGlobalSubheap(sc int32, sb *Superblock) {
	gsh := a.global.subheaps[sc]
	gsh.mu.Lock()
	push(&gsh.bins[0], sb)
	gsh.allocated += int32(gsh.maxBlocks)
	gsh.used += sb.used
	gsh.mu.Unlock()

	debug.Log(nil, "reclaim", "%p -> global subheap sc=%d", sb, sc)
}

// allocateLarge implements the large-object path (spec §4.8): a request
// bigger than the largest size class is satisfied by a single arena chunk
// sized to a whole number of superblocks, tagged scLarge. Because the
// header always occupies fewer than S bytes, the returned pointer always
// lies within the chunk's first superblock-sized window, so the same
// align_down trick used for size-classed blocks recovers the header on
// free.
func (a *Allocator) allocateLarge(size int) unsafe.Pointer {
	need := superblockHeaderSize() + size
	numSB := (need + a.cfg.SuperblockSize - 1) / a.cfg.SuperblockSize

	raw := a.arena.Extend(numSB * a.cfg.SuperblockSize)
	sb := unsafe2.Cast[Superblock](raw)
	resetSuperblock(sb)
	sb.sc = scLarge
	sb.numSuperblocks = int32(numSB)

	debug.Log(nil, "allocate-large", "%d bytes, %d superblocks -> %p", size, numSB, sb)
	return unsafe.Pointer(unsafe2.ByteAdd(raw, superblockHeaderSize()))
}

// freeLarge implements spec §4.9. Rather than returning the span to the
// OS (which this allocator never does, per its Non-goals) or leaving it
// idle, the span is decomposed into its constituent S-byte chunks and
// donated to the global heap's empties pool, exactly the pseudo-
// reclamation mechanism the size-classed path already uses: this is the
// natural way to make a freed large object's backing memory available for
// reuse without inventing a second reclamation scheme.
func (a *Allocator) freeLarge(sb *Superblock) {
	n := int(sb.numSuperblocks)

	a.global.emptiesMu.Lock()
	defer a.global.emptiesMu.Unlock()

	for i := 0; i < n; i++ {
		chunk := unsafe2.ByteAdd(unsafe2.Cast[byte](sb), i*a.cfg.SuperblockSize)
		// Spec §4.9: zero the whole S-byte chunk, not just the header,
		// since it previously held the large allocation's caller data
		// and is about to re-enter circulation as a plain superblock.
		unsafe2.Clear(chunk, a.cfg.SuperblockSize)
		piece := unsafe2.Cast[Superblock](chunk)
		resetSuperblock(piece)
		a.global.putEmpty(piece)
	}

	debug.Log(nil, "free-large", "%d superblocks returned to global empties", n)
}

// View reinterprets a pointer returned by [Allocator.Allocate] (or the
// package-level [Allocate]) as a byte slice of length n, for callers that
// want to read or write an allocation's contents directly rather than
// doing their own unsafe.Pointer arithmetic. n must not exceed the size
// originally requested.
func View(ptr unsafe.Pointer, n int) []byte {
	return unsafe2.Slice((*byte)(ptr), n)
}

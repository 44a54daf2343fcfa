package shardalloc

import (
	"sync/atomic"

	"github.com/khollbach/shardalloc/internal/dbg"
	"github.com/khollbach/shardalloc/internal/debug"
	"github.com/khollbach/shardalloc/internal/unsafe2"
)

// Sentinel size-class tags. Non-negative values are ordinary size classes.
const (
	scEmpty int32 = -1 // Unclassified, sits in some heap's empties pool.
	scLarge int32 = -2 // First superblock of a multi-superblock large allocation.
)

// binHead is the head of one doubly-linked list of superblocks: either a
// subheap's fullness bin, its full bin, or a heap's empties pool.
//
// Unlike the source this was distilled from, the containing heap is stored
// directly as a pointer rather than recovered by pointer arithmetic over a
// contiguous heap array; see DESIGN.md for why.
type binHead struct {
	heap *Heap
	head *Superblock
}

// Superblock is a fixed-size, fixed-alignment region holding equal-sized
// blocks of one size class. It occupies the first bytes of an S-byte chunk
// handed out by the arena; align_down(ptr, S) on any pointer returned by
// [Allocator.Allocate] recovers a pointer to this header, which is the sole
// mechanism by which Free discovers a block's metadata.
//
// A Superblock is always in exactly one of five states (see spec's
// Ownership and lifecycle): fresh (zero value, just carved from the arena,
// not yet touched by classify), classified (sc >= 0, a member of
// exactly one bin), empty-in-heap (sc == scEmpty, a member of some heap's
// empties pool), large-owned (sc == scLarge, first superblock of a run, not
// in any list), or detached (bin == nil, transiently, never observed under
// a stable lock by another goroutine).
type Superblock struct {
	sc   int32
	used int32

	// bin is the head of whichever list currently holds sb (a fullness
	// bin, the full bin, or a heap's empties pool), or nil while sb is
	// detached. This is the sole source of heap identity: a bin's heap
	// field never changes once the bin is constructed, so recovering
	// "which heap owns sb" is just bin.Load().heap.
	//
	// It is an atomic pointer, not a plain one, because the free path
	// (§4.7) reads it without holding any lock, to discover which
	// subheap lock to acquire before it can safely touch prev/next/
	// freelist; every writer (push/pop/remove) only ever stores into it
	// while holding that bin's heap's matching lock. This is the
	// "relaxed atomic load with a fence" the spec's concurrency section
	// calls for, with sync/atomic standing in for the fence.
	bin atomic.Pointer[binHead]

	prev *Superblock
	next *Superblock

	freelist *freeNode // Singly-linked list of unused slots.

	// Valid only when sc == scLarge: the number of contiguous superblocks
	// making up this large allocation, starting at this one.
	numSuperblocks int32
}

// freeNode is the shape of a free slot: its first machine word is a link to
// the next free slot (or nil). Used/freed slots otherwise hold caller data,
// so this type is never dereferenced once a slot has been handed out.
type freeNode struct {
	next *freeNode
}

// superblockHeaderSize is the number of bytes at the start of every
// S-byte chunk reserved for the Superblock header; the remainder is
// partitioned into equal-sized slots.
func superblockHeaderSize() int {
	size, _ := unsafe2.Layout[Superblock]()
	return size
}

// slots is sb's variable-length array of block slots, i.e. the region
// following the fixed Superblock header.
func slots(sb *Superblock) *unsafe2.VLA[freeNode] {
	return unsafe2.Beyond[freeNode](sb)
}

// slotAt returns a pointer to the i-th block slot (0-indexed) of a
// superblock classified at blockSize bytes per slot.
func slotAt(sb *Superblock, blockSize, i int) *freeNode {
	return slots(sb).ByteGet(i * blockSize)
}

// classify initializes a fresh or empty superblock as a member of size
// class sc, threading a freelist through its max_blocks[sc] slots.
func classify(sb *Superblock, sc int, maxBlocks, blockSize int) {
	debug.Assert(sb.bin.Load() == nil, "classify: superblock %p is still linked into a bin", sb)

	sb.sc = int32(sc)
	sb.used = 0
	sb.bin.Store(nil)
	sb.prev, sb.next = nil, nil

	var head *freeNode
	for i := maxBlocks - 1; i >= 0; i-- {
		slot := slotAt(sb, blockSize, i)
		slot.next = head
		head = slot
	}
	sb.freelist = head

	debug.Log(nil, "classify", "%p sc=%d max=%d", sb, sc, maxBlocks)
}

// String implements fmt.Stringer for debug logging.
func (sb *Superblock) String() string {
	return dbg.Dict("superblock",
		"addr", sb,
		"sc", sb.sc,
		"used", sb.used,
		"detached", sb.bin.Load() == nil,
	).String()
}

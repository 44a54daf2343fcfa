package shardalloc

import "github.com/khollbach/shardalloc/internal/debug"

// push links sb into bin as the new head. sb must be detached (sb.bin ==
// nil); callers hold bin.heap's subheap (or empties) lock.
func push(bin *binHead, sb *Superblock) {
	debug.Assert(sb.bin.Load() == nil, "push: superblock %p is already linked into a bin", sb)

	sb.prev = nil
	sb.next = bin.head
	if bin.head != nil {
		bin.head.prev = sb
	}
	bin.head = sb
	sb.bin.Store(bin)
}

// pop unlinks and returns bin's head, or nil if bin is empty. Callers hold
// bin.heap's subheap (or empties) lock.
func pop(bin *binHead) *Superblock {
	sb := bin.head
	if sb == nil {
		return nil
	}
	remove(sb)
	return sb
}

// remove unlinks sb from whichever bin it currently belongs to. sb must be
// linked (sb.bin != nil); callers hold that bin.heap's subheap (or empties)
// lock.
func remove(sb *Superblock) {
	bin := sb.bin.Load()
	debug.Assert(bin != nil, "remove: superblock %p is not linked into any bin", sb)

	if sb.prev != nil {
		sb.prev.next = sb.next
	} else {
		bin.head = sb.next
	}
	if sb.next != nil {
		sb.next.prev = sb.prev
	}

	sb.prev, sb.next = nil, nil
	sb.bin.Store(nil)
}

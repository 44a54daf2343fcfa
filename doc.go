// Package shardalloc is a concurrent, Hoard-style memory allocator for
// multi-threaded Go programs.
//
// Rather than a single global free list, allocations are served from a
// hierarchy of heaps: one heap per logical CPU, plus a single global heap
// that idle memory drains into and that busy CPUs can borrow from. Each
// heap partitions its memory into fixed-size classes, and tracks, for each
// class, a set of superblocks — fixed-size, fixed-alignment chunks of
// same-sized blocks — bucketed by how full they are. This keeps the common
// allocate/free path lock-contended only against goroutines sharing the
// same CPU heap, while still bounding the total memory any one CPU can
// hoard via a donation back to the global heap whenever a free leaves that
// CPU's heap both over-provisioned and mostly unused.
//
// The zero-value entry point is the package-level [Allocate] and [Free]
// pair, backed by a lazily-initialized default [Allocator] tuned by
// [DefaultConfig]. Callers needing more than one independently-configured
// allocator (for instance, in tests) should construct their own via
// [NewAllocator].
package shardalloc

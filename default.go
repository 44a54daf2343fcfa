package shardalloc

import (
	"sync"
	"unsafe"
)

var (
	defaultOnce  sync.Once
	defaultAlloc *Allocator
	defaultErr   error
)

// Init sets up the package-level default allocator using cfg. It is safe
// to call from multiple goroutines; only the first call's cfg takes
// effect, and every call blocks until that first call has finished.
//
// Init is optional: [Allocate] and [Free] lazily initialize the default
// allocator with [DefaultConfig] on first use if Init was never called.
func Init(cfg Config) error {
	defaultOnce.Do(func() {
		defaultAlloc, defaultErr = NewAllocator(cfg)
	})
	return defaultErr
}

func defaultAllocator() *Allocator {
	defaultOnce.Do(func() {
		defaultAlloc, defaultErr = NewAllocator(DefaultConfig())
	})
	return defaultAlloc
}

// Allocate returns a pointer to size bytes from the package-level default
// allocator, initializing it with [DefaultConfig] if [Init] was never
// called.
func Allocate(size int) unsafe.Pointer {
	return defaultAllocator().Allocate(size)
}

// Free releases a pointer previously returned by [Allocate] (or by an
// explicit [Allocator.Allocate] on the same default allocator).
func Free(ptr unsafe.Pointer) {
	defaultAllocator().Free(ptr)
}

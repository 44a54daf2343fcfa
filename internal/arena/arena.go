// Copyright 2020-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package arena provides a low-level, relatively unsafe arena allocation
// abstraction: a single, monotonically-growing region of memory (the "sbrk
// region") that superblocks are cut from.
//
// # Design
//
// See <https://mcyoung.xyz/2025/04/21/go-arenas/>.
//
// Go offers no sbrk or mmap primitive, so this package fakes one: each call
// to [Arena.Extend] obtains a fresh, alignment-guaranteed, GC-managed chunk
// of exactly the requested size and never gives it back. Chunks handed out
// by different calls need not be adjacent to one another; nothing above
// this package ever reads across a chunk boundary, since every unit handed
// to a caller (a superblock, or a run of contiguous superblocks for a large
// allocation) is satisfied from a single chunk.
//
// Arenas are designed to only return pointers to data with pointer-free
// shape. The allocator threads its own freelist and bin links through this
// memory, so the arena itself never needs to be retraced to keep it alive:
// as long as some live pointer reaches into a chunk (for instance, because
// the superblock carved from it is linked into a bin), the whole chunk
// stays reachable.
package arena

import (
	"sync"

	"github.com/khollbach/shardalloc/internal/debug"
	"github.com/khollbach/shardalloc/internal/unsafe2"
)

// Arena is the single, shared backing store for all superblocks. The zero
// Arena is not ready to use; construct one with [New].
type Arena struct {
	_ unsafe2.NoCopy

	mu    sync.Mutex
	align int // Alignment of every chunk handed out (the superblock size S).

	// Diagnostics only: total bytes ever handed out, and number of chunks.
	// Nothing in the allocator's core paths reads these outside of tests.
	reserved int64
	chunks   int64
}

// New returns an Arena that hands out chunks aligned to align, which must be
// a power of two. align is ordinarily the superblock size S, so that
// align_down(ptr, S) reliably recovers a superblock's header from any
// interior pointer.
func New(align int) *Arena {
	if align <= 0 || align&(align-1) != 0 {
		panic("shardalloc: arena alignment must be a positive power of two")
	}
	return &Arena{align: align}
}

// Extend returns a pointer to n freshly reserved bytes, aligned to this
// arena's alignment. n must be a positive multiple of that alignment.
//
// Extend is the only path by which new memory enters the allocator; it is
// serialized by a single lock, since growth is rare compared to the
// allocate/free fast paths that consume the memory it returns.
func (a *Arena) Extend(n int) *byte {
	if n <= 0 || n%a.align != 0 {
		panic("shardalloc: arena extend size must be a positive multiple of the alignment")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Over-allocate by up to align-1 bytes so that some interior offset of
	// the raw allocation is align-aligned, then hand out that offset. The
	// keep-alive pointer planted by AllocTraceable rides along in the same
	// allocation, so the raw, possibly-misaligned base never needs to be
	// remembered anywhere.
	raw := AllocTraceable(n+a.align-1, nil)
	_, up := unsafe2.AddrOf(raw).Misalign(a.align)
	p := unsafe2.ByteAdd(raw, up)

	a.reserved += int64(n)
	a.chunks++
	a.Log("extend", "%p, %d bytes (align %d)", p, n, a.align)

	return p
}

// Stats returns the total bytes reserved from the arena and the number of
// chunks extended so far. Diagnostic only.
func (a *Arena) Stats() (reservedBytes, chunkCount int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reserved, a.chunks
}

func (a *Arena) Log(op, format string, args ...any) {
	debug.Log(nil, op, format, args...)
}

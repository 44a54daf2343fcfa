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

package arena

import (
	"reflect"
	"unsafe"

	"github.com/khollbach/shardalloc/internal/unsafe2"
)

// AllocTraceable allocates size bytes of garbage-collected memory and returns
// a pointer to them.
//
// This function will also store ptr in the same allocation in such a way that
// as long as any pointer into the allocated memory is live, ptr will be marked
// as live by the garbage collector. This is how [Arena] fakes a raw,
// non-GC'd backing store: every superblock it ever hands out is reachable
// only by following pointers planted by the allocator itself (freelist
// links, bin links, and so on), so the Arena value itself never needs to be
// consulted to keep the memory alive.
//
// Unlike the arena's hot allocation path (there isn't one: growth happens
// once per superblock-sized chunk, under the arena lock), this does not
// bother caching a [reflect.Type] per size class, since reflect.StructOf is
// not on any path that runs more than once per chunk.
func AllocTraceable(size int, ptr unsafe.Pointer) *byte {
	// This needs to be done with reflection, because we need a weirdly-shaped
	// allocation: a bunch of bytes followed by a pointer.
	_, up := unsafe2.Addr[byte](size).Misalign(unsafe2.PointerAlign)
	size += up

	shape := chunkShape(size)
	p := (*byte)(reflect.New(shape).UnsafePointer())
	unsafe2.ByteStore(p, size, ptr)

	// The data comes first in the allocation, so p is the data pointer.
	return p
}

func chunkShape(size int) reflect.Type {
	return reflect.StructOf([]reflect.StructField{
		{Name: "Data", Type: reflect.ArrayOf(size, reflect.TypeFor[byte]())},
		{Name: "Keep", Type: reflect.TypeFor[unsafe.Pointer]()},
	})
}

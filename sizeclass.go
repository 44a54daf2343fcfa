package shardalloc

import "sort"

// sizeTable is the resolved, per-allocator form of Config.Sizes: the byte
// size of each size class, plus the derived block capacity of a superblock
// classified at that size.
type sizeTable struct {
	sizes     []int // Ascending byte sizes, one per size class.
	maxBlocks []int // maxBlocks[sc] = floor((S - header) / sizes[sc]).
}

func newSizeTable(cfg Config) sizeTable {
	header := superblockHeaderSize()
	usable := cfg.SuperblockSize - header

	t := sizeTable{
		sizes:     append([]int(nil), cfg.Sizes...),
		maxBlocks: make([]int, len(cfg.Sizes)),
	}
	for i, sz := range t.sizes {
		t.maxBlocks[i] = usable / sz
	}
	return t
}

// numSizes is NSIZES.
func (t sizeTable) numSizes() int { return len(t.sizes) }

// largest is sizes[last]: the boundary between the size-classed path and
// the large-object path.
func (t sizeTable) largest() int { return t.sizes[len(t.sizes)-1] }

// sizeClass returns the smallest index i with sizes[i] >= sz. Defined only
// for 0 <= sz <= t.largest(); callers must route larger requests to the
// large-object path before calling this.
func (t sizeTable) sizeClass(sz int) int {
	return sort.Search(len(t.sizes), func(i int) bool { return t.sizes[i] >= sz })
}

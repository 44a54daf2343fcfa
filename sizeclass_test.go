package shardalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSizeTable(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	tbl := newSizeTable(cfg)

	assert.Equal(t, len(cfg.Sizes), tbl.numSizes())
	assert.Equal(t, cfg.Sizes[len(cfg.Sizes)-1], tbl.largest())

	header := superblockHeaderSize()
	for i, sz := range tbl.sizes {
		want := (cfg.SuperblockSize - header) / sz
		assert.Equal(t, want, tbl.maxBlocks[i], "size class %d", sz)
		assert.Greater(t, tbl.maxBlocks[i], 1, "size class %d must fit at least two blocks", sz)
	}
}

func TestSizeClass(t *testing.T) {
	t.Parallel()

	tbl := newSizeTable(DefaultConfig())

	cases := []struct {
		sz   int
		want int
	}{
		{1, 0},
		{8, 0},
		{9, 1},
		{16, 1},
		{17, 2},
		{256, len(tbl.sizes) - 2},
		{257, len(tbl.sizes) - 1},
		{450, len(tbl.sizes) - 1},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, tbl.sizeClass(c.sz), "sizeClass(%d)", c.sz)
	}
}

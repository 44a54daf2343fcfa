package shardalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPushPopRemove(t *testing.T) {
	t.Parallel()

	bin := &binHead{}
	a, b, c := &Superblock{}, &Superblock{}, &Superblock{}

	push(bin, a)
	push(bin, b)
	push(bin, c)
	assert.Same(t, c, bin.head)

	// Remove from the middle.
	remove(b)
	assert.Nil(t, b.bin.Load())
	assert.Same(t, c, bin.head)
	assert.Same(t, a, c.next)
	assert.Same(t, c, a.prev)

	got := pop(bin)
	assert.Same(t, c, got)
	assert.Nil(t, c.bin.Load())
	assert.Same(t, a, bin.head)
	assert.Nil(t, a.prev)

	got = pop(bin)
	assert.Same(t, a, got)
	assert.Nil(t, bin.head)

	assert.Nil(t, pop(bin))
}

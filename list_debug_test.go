//go:build debug

package shardalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPushPanicsOnLinkedSuperblock(t *testing.T) {
	t.Parallel()

	bin := &binHead{}
	sb := &Superblock{}
	push(bin, sb)

	assert.Panics(t, func() { push(bin, sb) })
}

func TestRemovePanicsOnDetachedSuperblock(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { remove(&Superblock{}) })
}

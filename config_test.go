package shardalloc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/khollbach/shardalloc"
)

func TestDefaultConfigIsValid(t *testing.T) {
	t.Parallel()
	assert.NoError(t, shardalloc.DefaultConfig().Validate())
}

func TestValidateRejectsNonPow2SuperblockSize(t *testing.T) {
	t.Parallel()
	cfg := shardalloc.DefaultConfig()
	cfg.SuperblockSize = 1000
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnsortedSizes(t *testing.T) {
	t.Parallel()
	cfg := shardalloc.DefaultConfig()
	cfg.Sizes = []int{8, 32, 16}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptySizes(t *testing.T) {
	t.Parallel()
	cfg := shardalloc.DefaultConfig()
	cfg.Sizes = nil
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveBinsOrThreshold(t *testing.T) {
	t.Parallel()

	cfg := shardalloc.DefaultConfig()
	cfg.Bins = 0
	assert.Error(t, cfg.Validate())

	cfg = shardalloc.DefaultConfig()
	cfg.EmptyThreshold = -1
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsTooSmallSuperblock(t *testing.T) {
	t.Parallel()

	cfg := shardalloc.DefaultConfig()
	cfg.SuperblockSize = 64 // too small to hold even two of the largest blocks plus a header
	assert.Error(t, cfg.Validate())
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Parallel()
	_, err := shardalloc.LoadConfig("/nonexistent/shardalloc.yaml")
	assert.Error(t, err)
}

package shardalloc

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the tunables of the allocator. All of them are fixed for the
// lifetime of an [Allocator]; there is no way to reconfigure one in place.
type Config struct {
	// SuperblockSize is S: the fixed size, in bytes, of every superblock.
	// Must be a power of two large enough to hold a superblock header plus
	// at least two blocks of the largest size class.
	SuperblockSize int `yaml:"superblock_size"`

	// Sizes is the ascending sequence of byte sizes that make up the size
	// classes. Requests larger than the last entry take the large-object
	// path.
	Sizes []int `yaml:"sizes"`

	// Bins is NBINS: the number of fullness bins per subheap, not counting
	// the distinguished full bin.
	Bins int `yaml:"bins"`

	// EmptyThreshold is K_THRESH: the maximum number of empty superblocks a
	// CPU heap may hold onto before donating the excess to the global
	// heap's empties pool.
	EmptyThreshold int `yaml:"empty_threshold"`
}

// DefaultConfig returns the configuration used when none is supplied,
// matching the worked example in the allocator's design: size classes
// 8/16/32/64/128/256/450 over 1024-byte superblocks, 4 fullness bins, and a
// per-CPU empties threshold of 4 (the values used in the Hoard paper).
func DefaultConfig() Config {
	return Config{
		SuperblockSize: 1024,
		Sizes:          []int{8, 16, 32, 64, 128, 256, 450},
		Bins:           4,
		EmptyThreshold: 4,
	}
}

// LoadConfig reads a YAML-encoded Config from path. Fields the file does not
// set keep their [DefaultConfig] values; a field the file sets explicitly,
// even to zero, replaces the default and is then checked by Validate.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("shardalloc: reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("shardalloc: parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration describes a coherent size-class
// table: a power-of-two superblock size, an ascending, non-empty size-class
// table, and headroom for at least two blocks of the largest class.
func (c Config) Validate() error {
	if c.SuperblockSize <= 0 || c.SuperblockSize&(c.SuperblockSize-1) != 0 {
		return fmt.Errorf("shardalloc: superblock size %d is not a positive power of two", c.SuperblockSize)
	}
	if len(c.Sizes) == 0 {
		return fmt.Errorf("shardalloc: size-class table is empty")
	}
	for i, sz := range c.Sizes {
		if sz <= 0 {
			return fmt.Errorf("shardalloc: size class %d has non-positive size %d", i, sz)
		}
		if i > 0 && sz <= c.Sizes[i-1] {
			return fmt.Errorf("shardalloc: size classes must be strictly ascending, got %d after %d", sz, c.Sizes[i-1])
		}
	}
	if c.Bins <= 0 {
		return fmt.Errorf("shardalloc: bins must be positive, got %d", c.Bins)
	}
	if c.EmptyThreshold <= 0 {
		return fmt.Errorf("shardalloc: empty threshold must be positive, got %d", c.EmptyThreshold)
	}

	header := superblockHeaderSize()
	largest := c.Sizes[len(c.Sizes)-1]
	if 2*largest > c.SuperblockSize-header {
		return fmt.Errorf(
			"shardalloc: superblock of size %d (header %d) cannot hold two blocks of the largest size class %d",
			c.SuperblockSize, header, largest,
		)
	}
	return nil
}

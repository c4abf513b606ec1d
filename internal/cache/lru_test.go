package cache

import (
	"testing"

	"github.com/hupe1980/vecfile/resource"
	"github.com/stretchr/testify/assert"
)

func TestPageCache_LRU(t *testing.T) {
	c := NewPageCache(30, nil)

	c.Set(1, make([]byte, 10))
	c.Set(2, make([]byte, 10))
	c.Set(3, make([]byte, 10))
	assert.Equal(t, 3, c.Len())

	// Touch 1 so 2 is the eviction victim.
	_, ok := c.Get(1)
	assert.True(t, ok)

	c.Set(4, make([]byte, 10))
	_, ok = c.Get(2)
	assert.False(t, ok)
	_, ok = c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, int64(30), c.Size())

	hits, misses := c.Stats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(1), misses)
}

func TestPageCache_Replace(t *testing.T) {
	c := NewPageCache(50, nil)

	c.Set(7, []byte{1, 2, 3})
	c.Set(7, []byte{9})
	got, ok := c.Get(7)
	assert.True(t, ok)
	assert.Equal(t, []byte{9}, got)
	assert.Equal(t, int64(1), c.Size())

	c.Set(8, make([]byte, 60))
	_, ok = c.Get(8)
	assert.False(t, ok, "page larger than capacity should not be cached")
}

func TestPageCache_ResourceController(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 15})
	c := NewPageCache(100, rc)

	c.Set(1, make([]byte, 10))
	assert.Equal(t, int64(10), rc.MemoryUsage())

	// Within local capacity but over the global limit.
	c.Set(2, make([]byte, 10))
	_, ok := c.Get(2)
	assert.False(t, ok)

	c.Remove(1)
	assert.Zero(t, rc.MemoryUsage())
}

func TestPageCache_Invalidate(t *testing.T) {
	c := NewPageCache(100, nil)
	for id := uint32(0); id < 5; id++ {
		c.Set(id, make([]byte, 4))
	}

	c.Invalidate(func(id uint32) bool { return id >= 2 })
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int64(8), c.Size())
}

package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLCacheExpires(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewTTLCache[string, int]()
	c.now = func() time.Time { return now }

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, 0)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)

	v, ok = c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestTTLCacheDeleteFunc(t *testing.T) {
	c := NewTTLCache[string, int]()
	c.Set("org:1", 1, time.Minute)
	c.Set("org:2", 2, time.Minute)

	c.DeleteFunc(func(k string) bool { return k == "org:1" })

	_, ok := c.Get("org:1")
	assert.False(t, ok)
	_, ok = c.Get("org:2")
	assert.True(t, ok)
}

func TestNoopCacheMisses(t *testing.T) {
	var c Cache[string, int] = NoopCache[string, int]{}
	c.Set("a", 1, time.Minute)
	_, ok := c.Get("a")
	assert.False(t, ok)
}

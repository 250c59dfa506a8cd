package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestCache() (*Cache[string], *time.Time) {
	now := time.Unix(1700000000, 0)
	c := New[string](0)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestSetGetExpire(t *testing.T) {
	c, now := newTestCache()
	defer c.Close()

	c.Set("a", "1", time.Minute)
	c.Set("b", "2", 0)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	*now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 1, c.Count())

	c.DeleteExpired()
	c.mu.RLock()
	assert.Len(t, c.items, 1)
	c.mu.RUnlock()
}

func TestTakeRemoves(t *testing.T) {
	c, _ := newTestCache()
	defer c.Close()

	c.Set("code", "123456", time.Minute)
	v, ok := c.Take("code")
	assert.True(t, ok)
	assert.Equal(t, "123456", v)

	_, ok = c.Take("code")
	assert.False(t, ok)
}

func TestSetNX(t *testing.T) {
	c, now := newTestCache()
	defer c.Close()

	assert.True(t, c.SetNX("limit", "x", time.Minute))
	assert.False(t, c.SetNX("limit", "y", time.Minute))

	*now = now.Add(time.Minute + time.Second)
	assert.True(t, c.SetNX("limit", "z", time.Minute))
	v, _ := c.Get("limit")
	assert.Equal(t, "z", v)
}

func TestCloseTwice(t *testing.T) {
	c := New[int](time.Millisecond)
	c.Close()
	c.Close()
}

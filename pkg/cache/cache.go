// Package cache 带过期时间的内存缓存。
package cache

import (
	"sync"
	"time"
)

// item 缓存项，expiration 为 0 表示永不过期
type item[V any] struct {
	value      V
	expiration int64
}

func (it item[V]) expired(now int64) bool {
	return it.expiration != 0 && now > it.expiration
}

// Cache 内存缓存
type Cache[V any] struct {
	mu    sync.RWMutex
	items map[string]item[V]
	now   func() time.Time

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	closeOnce       sync.Once
}

// New 创建缓存，cleanupInterval 大于 0 时定期清理过期项
func New[V any](cleanupInterval time.Duration) *Cache[V] {
	c := &Cache[V]{
		items:           make(map[string]item[V]),
		now:             time.Now,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.cleanupLoop()
	}
	return c
}

func (c *Cache[V]) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.DeleteExpired()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *Cache[V]) deadline(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return c.now().Add(ttl).UnixNano()
}

// Set 设置缓存，ttl 不大于 0 时永不过期
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	c.items[key] = item[V]{value: value, expiration: c.deadline(ttl)}
	c.mu.Unlock()
}

// SetNX 仅当 key 不存在或已过期时设置
func (c *Cache[V]) SetNX(key string, value V, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if it, ok := c.items[key]; ok && !it.expired(c.now().UnixNano()) {
		return false
	}
	c.items[key] = item[V]{value: value, expiration: c.deadline(ttl)}
	return true
}

// Get 获取缓存
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()

	if !ok || it.expired(c.now().UnixNano()) {
		var zero V
		return zero, false
	}
	return it.value, true
}

// Take 获取并删除
func (c *Cache[V]) Take(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[key]
	delete(c.items, key)
	if !ok || it.expired(c.now().UnixNano()) {
		var zero V
		return zero, false
	}
	return it.value, true
}

// Delete 删除缓存
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// DeleteExpired 删除所有过期项
func (c *Cache[V]) DeleteExpired() {
	now := c.now().UnixNano()

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, it := range c.items {
		if it.expired(now) {
			delete(c.items, key)
		}
	}
}

// Count 未过期的缓存数量
func (c *Cache[V]) Count() int {
	now := c.now().UnixNano()

	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, it := range c.items {
		if !it.expired(now) {
			n++
		}
	}
	return n
}

// Close 停止清理协程，可重复调用
func (c *Cache[V]) Close() {
	c.closeOnce.Do(func() { close(c.stopCleanup) })
}

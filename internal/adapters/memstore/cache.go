package memstore

import (
	"context"
	"sync"
	"time"

	"vibeailife/internal/domain"
)

// Cache: TTL-кэш в памяти с тем же контрактом, что и Redis.
type Cache struct {
	mu    sync.Mutex
	now   func() time.Time
	items map[string]cacheItem
}

type cacheItem struct {
	value     []byte
	expiresAt time.Time
}

var _ domain.Cache = (*Cache)(nil)

// NewCache создаёт кэш.
func NewCache() *Cache {
	return &Cache{now: time.Now, items: map[string]cacheItem{}}
}

func (c *Cache) alive(key string) (cacheItem, bool) {
	item, ok := c.items[key]
	if !ok {
		return cacheItem{}, false
	}
	if !item.expiresAt.IsZero() && !c.now().Before(item.expiresAt) {
		delete(c.items, key)
		return cacheItem{}, false
	}
	return item, true
}

func (c *Cache) put(key string, value []byte, ttl time.Duration) {
	item := cacheItem{value: value}
	if ttl > 0 {
		item.expiresAt = c.now().Add(ttl)
	}
	c.items[key] = item
}

// Once выполняет fn, если ключ ещё не занят. При ошибке ключ освобождается.
func (c *Cache) Once(_ context.Context, key string, ttl time.Duration, fn func() error) error {
	c.mu.Lock()
	if _, ok := c.alive(key); ok {
		c.mu.Unlock()
		return nil
	}
	c.put(key, []byte("1"), ttl)
	c.mu.Unlock()

	if err := fn(); err != nil {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return err
	}
	return nil
}

// Set задаёт значение.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, append([]byte(nil), value...), ttl)
	return nil
}

// Get возвращает значение или domain.ErrNotFound.
func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.alive(key)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), item.value...), nil
}

package cache

import (
	"sync"
	"time"
)

type record struct {
	value any
	exp   time.Time
}

// TTLCache is the in-process fallback used when Redis is not configured.
// A ttl of zero or less means the entry never expires.
type TTLCache struct {
	mu    sync.RWMutex
	items map[string]record
}

func NewTTLCache() *TTLCache {
	return &TTLCache{items: make(map[string]record)}
}

func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.RLock()
	r, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !r.exp.IsZero() && time.Now().After(r.exp) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return nil, false
	}
	return r.value, true
}

func (c *TTLCache) Set(key string, v any, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.items[key] = record{value: v, exp: exp}
	c.mu.Unlock()
}

func (c *TTLCache) GetBytes(key string) ([]byte, bool, error) {
	v, ok := c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, false, nil
	}
	return b, true, nil
}

func (c *TTLCache) SetBytes(key string, value []byte, ttl time.Duration) error {
	c.Set(key, value, ttl)
	return nil
}

package extract

import (
	"context"
	"sync"
)

// Cache memoizes oracle answers keyed by the exact rendered fragment.
// A nil *Cache is valid and caches nothing.
type Cache struct {
	mu    sync.RWMutex
	pages map[string]string
	bits  map[string]bool
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{pages: make(map[string]string), bits: make(map[string]bool)}
}

func (c *Cache) page(q string) (string, bool) {
	if c == nil {
		return "", false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.pages[q]
	return v, ok
}

func (c *Cache) putPage(q, v string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.pages[q] = v
	c.mu.Unlock()
}

func (c *Cache) bit(q string) (bool, bool) {
	if c == nil {
		return false, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.bits[q]
	return v, ok
}

func (c *Cache) putBit(q string, v bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.bits[q] = v
	c.mu.Unlock()
}

// Len returns the number of cached answers.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pages) + len(c.bits)
}

// Pages builds a PageFunc from a window renderer and a page reader, with
// pages memoized in c by rendered query.
func Pages(c *Cache, render func(start int) (string, error), read func(ctx context.Context, query string) (string, error)) PageFunc {
	return func(ctx context.Context, start int) (string, error) {
		q, err := render(start)
		if err != nil {
			return "", err
		}
		if v, ok := c.page(q); ok {
			return v, nil
		}
		v, err := read(ctx, q)
		if err != nil {
			return "", err
		}
		c.putPage(q, v)
		return v, nil
	}
}

package tilestore

import (
	"container/list"
	"sync"
	"time"
)

// cache is a bounded TTL cache of fetched tiles, least recently used first out.
type cache struct {
	max int
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	order *list.List
	items map[string]*list.Element
}

type cacheItem struct {
	key    string
	tile   Tile
	expiry time.Time
}

func newCache(max int, ttl time.Duration) *cache {
	return &cache{
		max:   max,
		ttl:   ttl,
		now:   time.Now,
		order: list.New(),
		items: make(map[string]*list.Element),
	}
}

func (c *cache) get(key string) (Tile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return Tile{}, false
	}
	item := el.Value.(*cacheItem)
	if c.now().After(item.expiry) {
		c.order.Remove(el)
		delete(c.items, key)
		return Tile{}, false
	}
	c.order.MoveToFront(el)
	return item.tile, true
}

func (c *cache) set(key string, t Tile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value = &cacheItem{key: key, tile: t, expiry: c.now().Add(c.ttl)}
		c.order.MoveToFront(el)
		return
	}
	c.items[key] = c.order.PushFront(&cacheItem{key: key, tile: t, expiry: c.now().Add(c.ttl)})
	for c.order.Len() > c.max {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheItem).key)
	}
}

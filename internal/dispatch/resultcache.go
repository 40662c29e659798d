package dispatch

import (
	"container/list"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// boolResult is the cached outcome of a FullMatch/PartialMatch call.
type boolResult struct {
	matched bool
}

type resultCacheItem struct {
	key    uint64
	result boolResult
}

// ResultCache is a thread-safe LRU of boolean match outcomes keyed by
// (pattern key, input bytes), adapted from AgentSmith-HUB's
// regex_result_cache.go. It sits in front of FullMatch/PartialMatch only —
// capture and replace results are not cacheable by a bare boolean — and
// backs the metrics snapshot's pattern_result_cache section.
type ResultCache struct {
	mu       sync.RWMutex
	capacity int
	index    map[uint64]*list.Element
	order    *list.List

	hits   uint64
	misses uint64
}

// NewResultCache creates a result cache holding up to capacity entries. A
// capacity of 0 disables caching entirely (Get always misses, Put is a
// no-op), used when callers configure the dispatch layer without this
// optimization.
func NewResultCache(capacity int) *ResultCache {
	return &ResultCache{
		capacity: capacity,
		index:    make(map[uint64]*list.Element),
		order:    list.New(),
	}
}

func resultKey(patternKey uint64, input []byte) uint64 {
	d := xxhash.New()
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(patternKey >> (8 * i))
	}
	_, _ = d.Write(buf[:])
	_, _ = d.Write(input)
	return d.Sum64()
}

// Get returns a cached boolean result for (patternKey, input), if present.
func (c *ResultCache) Get(patternKey uint64, input []byte) (matched bool, ok bool) {
	if c.capacity == 0 {
		return false, false
	}
	key := resultKey(patternKey, input)

	c.mu.RLock()
	elem, exists := c.index[key]
	if !exists {
		c.mu.RUnlock()
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return false, false
	}
	item := elem.Value.(*resultCacheItem)
	result := item.result
	c.mu.RUnlock()

	c.mu.Lock()
	c.order.MoveToFront(elem)
	c.hits++
	c.mu.Unlock()
	return result.matched, true
}

// Put stores a boolean result for (patternKey, input), evicting the least
// recently used entry if the cache is at capacity.
func (c *ResultCache) Put(patternKey uint64, input []byte, matched bool) {
	if c.capacity == 0 {
		return
	}
	key := resultKey(patternKey, input)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.index[key]; exists {
		c.order.MoveToFront(elem)
		elem.Value.(*resultCacheItem).result = boolResult{matched: matched}
		return
	}

	elem := c.order.PushFront(&resultCacheItem{key: key, result: boolResult{matched: matched}})
	c.index[key] = elem

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.index, oldest.Value.(*resultCacheItem).key)
		}
	}
}

// Stats reports size and hit/miss counters for the metrics snapshot.
func (c *ResultCache) Stats() (size int, hits, misses uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len(), c.hits, c.misses
}

// Clear empties the cache and resets counters.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = make(map[uint64]*list.Element)
	c.order = list.New()
	c.hits, c.misses = 0, 0
}

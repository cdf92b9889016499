package lsm

import (
	"container/list"
	"sync"
)

// blockKey identifies one block: the table's file number and the block's offset
type blockKey struct {
	file   uint64
	offset uint64
}

// BlockCache is an LRU cache of decompressed data blocks, bounded in bytes
type BlockCache struct {
	mu       sync.Mutex
	capacity int
	used     int
	cache    map[blockKey]*list.Element
	lru      *list.List

	// Statistics
	hits   int64
	misses int64
}

type cacheEntry struct {
	key   blockKey
	value []byte
}

// NewBlockCache creates a new LRU block cache holding up to capacity bytes
func NewBlockCache(capacity int) *BlockCache {
	return &BlockCache{
		capacity: capacity,
		cache:    make(map[blockKey]*list.Element),
		lru:      list.New(),
	}
}

// Get retrieves a block from the cache
func (bc *BlockCache) Get(key blockKey) ([]byte, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if elem, ok := bc.cache[key]; ok {
		// Move to front (most recently used)
		bc.lru.MoveToFront(elem)
		bc.hits++
		return elem.Value.(*cacheEntry).value, true
	}

	bc.misses++
	return nil, false
}

// Put adds a block to the cache. Blocks larger than the whole cache are not kept.
func (bc *BlockCache) Put(key blockKey, value []byte) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if len(value) > bc.capacity {
		return
	}

	if elem, ok := bc.cache[key]; ok {
		entry := elem.Value.(*cacheEntry)
		bc.used += len(value) - len(entry.value)
		entry.value = value
		bc.lru.MoveToFront(elem)
	} else {
		elem := bc.lru.PushFront(&cacheEntry{key: key, value: value})
		bc.cache[key] = elem
		bc.used += len(value)
	}

	for bc.used > bc.capacity {
		bc.evict()
	}
}

// evict removes the least recently used entry
func (bc *BlockCache) evict() {
	elem := bc.lru.Back()
	if elem != nil {
		bc.remove(elem)
	}
}

func (bc *BlockCache) remove(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	bc.lru.Remove(elem)
	delete(bc.cache, entry.key)
	bc.used -= len(entry.value)
}

// EvictFile drops every cached block belonging to a table file
func (bc *BlockCache) EvictFile(file uint64) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	for key, elem := range bc.cache {
		if key.file == file {
			bc.remove(elem)
		}
	}
}

// Clear removes all entries from the cache
func (bc *BlockCache) Clear() {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	bc.cache = make(map[blockKey]*list.Element)
	bc.lru = list.New()
	bc.used = 0
	bc.hits = 0
	bc.misses = 0
}

// Stats returns cache statistics
func (bc *BlockCache) Stats() (hits, misses int64, hitRate float64) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	hits = bc.hits
	misses = bc.misses
	total := hits + misses
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return
}

// Len returns the current number of cached blocks
func (bc *BlockCache) Len() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.lru.Len()
}

// Used returns the number of cached bytes
func (bc *BlockCache) Used() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.used
}

// Capacity returns the configured capacity in bytes
func (bc *BlockCache) Capacity() int {
	return bc.capacity
}

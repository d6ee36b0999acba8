// pkg/exefile/pagecache.go
package exefile

import (
	"container/list"
	"sync"
)

// DefaultPageCacheCapacity is the default number of image pages to cache
const DefaultPageCacheCapacity = 64

// PageCacheStats holds statistics about the page cache
type PageCacheStats struct {
	Hits     int64
	Misses   int64
	Entries  int
	Capacity int
	HitRate  float64
}

type pageKey struct {
	section *Section
	index   int
}

type pageCacheEntry struct {
	key     pageKey
	data    []byte
	element *list.Element
}

// PageCache is an LRU cache of section pages. A clean page evicted from
// physical memory is reloaded from here instead of the image file. One
// cache may be shared by many readers.
type PageCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[pageKey]*pageCacheEntry
	lru      *list.List
	hits     int64
	misses   int64
}

// NewPageCache creates a cache holding up to capacity pages.
// If capacity is 0 or negative, DefaultPageCacheCapacity is used.
func NewPageCache(capacity int) *PageCache {
	if capacity <= 0 {
		capacity = DefaultPageCacheCapacity
	}
	return &PageCache{
		capacity: capacity,
		entries:  make(map[pageKey]*pageCacheEntry),
		lru:      list.New(),
	}
}

// get copies a cached page into frame
func (pc *PageCache) get(key pageKey, frame []byte) bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	entry, ok := pc.entries[key]
	if !ok {
		pc.misses++
		return false
	}
	pc.lru.MoveToFront(entry.element)
	pc.hits++
	copy(frame, entry.data)
	return true
}

// put stores a copy of frame
func (pc *PageCache) put(key pageKey, frame []byte) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if entry, ok := pc.entries[key]; ok {
		copy(entry.data, frame)
		pc.lru.MoveToFront(entry.element)
		return
	}

	entry := &pageCacheEntry{key: key, data: append([]byte(nil), frame...)}
	entry.element = pc.lru.PushFront(entry)
	pc.entries[key] = entry
	pc.evictIfNeeded()
}

// forget drops every page of sections. Called when a reader closes.
func (pc *PageCache) forget(sections []*Section) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	for _, s := range sections {
		for i := 0; i < s.pages; i++ {
			if entry, ok := pc.entries[pageKey{s, i}]; ok {
				pc.lru.Remove(entry.element)
				delete(pc.entries, entry.key)
			}
		}
	}
}

// evictIfNeeded removes entries until within capacity (called while holding lock)
func (pc *PageCache) evictIfNeeded() {
	for pc.lru.Len() > pc.capacity {
		elem := pc.lru.Back()
		entry := elem.Value.(*pageCacheEntry)
		pc.lru.Remove(elem)
		delete(pc.entries, entry.key)
	}
}

// Stats returns cache statistics
func (pc *PageCache) Stats() PageCacheStats {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	total := pc.hits + pc.misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(pc.hits) / float64(total)
	}

	return PageCacheStats{
		Hits:     pc.hits,
		Misses:   pc.misses,
		Entries:  len(pc.entries),
		Capacity: pc.capacity,
		HitRate:  hitRate,
	}
}

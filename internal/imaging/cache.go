package imaging

import (
	"container/list"
	"fmt"
	"os"
	"sync"

	"github.com/llehouerou/notifyd/internal/notify"
)

const defaultCacheEntries = 64

// Cache keeps decoded image files in memory. Entries are keyed by path,
// modification time, size and target dimension, so an edited file is decoded
// again. Safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[string]*list.Element
	lru        *list.List // front = most recently used
}

type cacheEntry struct {
	key string
	img *notify.RawImage
}

// NewCache creates a cache holding at most maxEntries images.
func NewCache(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = defaultCacheEntries
	}
	return &Cache{
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
	}
}

func cacheKey(path string, info os.FileInfo, maxDim int) string {
	return fmt.Sprintf("%s:%d:%d:%d", path, info.ModTime().UnixNano(), info.Size(), maxDim)
}

// Load returns the decoded image at path, decoding it on a miss.
// A nil Cache decodes every time.
func (c *Cache) Load(path string, maxDim int) (*notify.RawImage, error) {
	if c == nil {
		return FromFile(path, maxDim)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	key := cacheKey(path, info, maxDim)

	c.mu.Lock()
	if elem, ok := c.entries[key]; ok {
		c.lru.MoveToFront(elem)
		img := elem.Value.(*cacheEntry).img
		c.mu.Unlock()
		return img, nil
	}
	c.mu.Unlock()

	img, err := FromFile(path, maxDim)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		// Decoded concurrently; keep the first.
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).img, nil
	}
	c.entries[key] = c.lru.PushFront(&cacheEntry{key: key, img: img})
	for c.lru.Len() > c.maxEntries {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
	return img, nil
}

// Len returns the number of cached images.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

package frameset

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kdimtricp/poseannotator/internal/metrics"
	"github.com/kdimtricp/poseannotator/internal/models"
	"github.com/kdimtricp/poseannotator/internal/storage"
)

// Cache is a read-through cache of frame set descriptors in front of the
// meta.json documents in the object store. The object store stays the
// source of truth; descriptors are immutable so a cached copy never goes
// stale.
//
// Concurrent misses for the same id may both fetch the document. Both
// results are identical so the last write wins harmlessly. A miss that
// overlaps an Evict does not populate the cache, so a deleted frame set is
// never resurrected.
type Cache struct {
	store      storage.ObjectStore
	maxEntries int

	mu        sync.RWMutex
	entries   map[string]*list.Element
	order     *list.List
	evictions uint64
}

// NewCache returns a cache holding at most maxEntries descriptors, evicting
// the oldest inserted first. maxEntries <= 0 means unbounded.
func NewCache(store storage.ObjectStore, maxEntries int) *Cache {
	return &Cache{
		store:      store,
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}
}

func (c *Cache) Get(ctx context.Context, frameSetID string) (*models.FrameSetDescriptor, error) {
	c.mu.RLock()
	var cached *models.FrameSetDescriptor
	if el, ok := c.entries[frameSetID]; ok {
		cached = el.Value.(*models.FrameSetDescriptor)
	}
	evictions := c.evictions
	c.mu.RUnlock()
	if cached != nil {
		metrics.MetadataCacheTotal.WithLabelValues("hit").Inc()
		return cached, nil
	}
	metrics.MetadataCacheTotal.WithLabelValues("miss").Inc()

	var desc models.FrameSetDescriptor
	err := storage.GetJSON(ctx, c.store, models.MetaKey(frameSetID), &desc)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, fmt.Errorf("metadata for frame set %s: %w", frameSetID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load metadata for frame set %s: %v", models.ErrStorageFailure, frameSetID, err)
	}

	c.mu.Lock()
	if c.evictions == evictions {
		c.put(&desc)
	}
	c.mu.Unlock()
	return &desc, nil
}

func (c *Cache) Put(desc *models.FrameSetDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(desc)
}

// put requires c.mu held for writing.
func (c *Cache) put(desc *models.FrameSetDescriptor) {
	if el, ok := c.entries[desc.ID]; ok {
		el.Value = desc
		return
	}
	c.entries[desc.ID] = c.order.PushBack(desc)

	for c.maxEntries > 0 && c.order.Len() > c.maxEntries {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*models.FrameSetDescriptor).ID)
	}
}

func (c *Cache) Evict(frameSetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictions++
	if el, ok := c.entries[frameSetID]; ok {
		c.order.Remove(el)
		delete(c.entries, frameSetID)
	}
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

package catalog

import (
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/kadirbelkuyu/metasync/pkg/logger"
)

// DeleteDirection declares which way a deep cache delete walks the
// parent/child key links.
type DeleteDirection int

const (
	ChildToParent DeleteDirection = iota
	ParentToChild
)

// MetaCache is the catalog's performance layer. Every entity has a
// canonical id key; list keys cover scope-level membership and alias keys
// map a title to an id. The cache is never authoritative: a miss always
// falls through to the store, so eviction or a dropped Set is harmless.
type MetaCache struct {
	cache *ristretto.Cache[string, any]
	log   *logger.Logger

	mu       sync.Mutex
	parents  map[string]string
	children map[string]map[string]struct{}
}

func NewMetaCache(maxEntries int64, log *logger.Logger) (*MetaCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, any]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create meta cache: %w", err)
	}
	return &MetaCache{
		cache:    cache,
		log:      log,
		parents:  make(map[string]string),
		children: make(map[string]map[string]struct{}),
	}, nil
}

func TableKey(id string) string             { return "meta:table:" + id }
func TableAliasKey(scope Scope, name string) string {
	return "meta:table:alias:" + scope.BaseID + ":" + scope.SourceID + ":" + name
}
func TableListKey(scope Scope) string { return "meta:table:list:" + scope.BaseID + ":" + scope.SourceID }
func ColumnKey(id string) string      { return "meta:column:" + id }
func ColumnListKey(tableID string) string { return "meta:column:list:" + tableID }
func ViewListKey(tableID string) string   { return "meta:view:list:" + tableID }
func ViewColumnListKey(viewID string) string { return "meta:viewcolumn:list:" + viewID }

func (c *MetaCache) Get(key string) (any, bool) {
	return c.cache.Get(key)
}

func (c *MetaCache) Set(key string, value any) {
	if ok := c.cache.Set(key, value, 1); !ok {
		// Dropped sets only cost a future store round-trip.
		c.log.Debugf("meta cache rejected set for %s", key)
	}
}

func (c *MetaCache) Del(key string) {
	c.cache.Del(key)
}

// Link records a parent/child relationship between two cache keys so deep
// deletes can walk the subtree.
func (c *MetaCache) Link(parentKey, childKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parents[childKey] = parentKey
	if c.children[parentKey] == nil {
		c.children[parentKey] = make(map[string]struct{})
	}
	c.children[parentKey][childKey] = struct{}{}
}

// DeepDelete removes the key and, depending on the direction, every
// ancestor key (so no stale parent list survives a child deletion) or the
// whole descendant subtree.
func (c *MetaCache) DeepDelete(key string, direction DeleteDirection) {
	c.mu.Lock()
	var keys []string
	switch direction {
	case ChildToParent:
		for current := key; current != ""; current = c.parents[current] {
			keys = append(keys, current)
			if _, ok := c.parents[current]; !ok {
				break
			}
		}
	case ParentToChild:
		keys = c.collectSubtree(key)
	}
	for _, k := range keys {
		c.unlink(k)
	}
	c.mu.Unlock()

	for _, k := range keys {
		c.cache.Del(k)
	}
}

func (c *MetaCache) collectSubtree(key string) []string {
	keys := []string{key}
	for childKey := range c.children[key] {
		keys = append(keys, c.collectSubtree(childKey)...)
	}
	return keys
}

func (c *MetaCache) unlink(key string) {
	if parentKey, ok := c.parents[key]; ok {
		delete(c.children[parentKey], key)
		delete(c.parents, key)
	}
	delete(c.children, key)
}

// Wait flushes ristretto's set buffers; tests use it to observe writes.
func (c *MetaCache) Wait() {
	c.cache.Wait()
}

func (c *MetaCache) Clear() {
	c.mu.Lock()
	c.parents = make(map[string]string)
	c.children = make(map[string]map[string]struct{})
	c.mu.Unlock()
	c.cache.Clear()
}

func (c *MetaCache) Close() {
	c.cache.Close()
}

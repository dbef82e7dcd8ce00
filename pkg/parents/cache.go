// Package parents caches child to parent links of partitions
package parents

import (
	"context"
	"sync"

	"github.com/ethpandaops/partcache/pkg/catalog"
	"github.com/ethpandaops/partcache/pkg/observability"
	"github.com/sirupsen/logrus"
)

// SearchResult classifies the answer of a parent lookup
type SearchResult int

const (
	// NotFound means the relation has no parent
	NotFound SearchResult = iota
	// KnownParent means the parent is a partitioned table managed by this cache
	KnownParent
	// ParentUnrecognized means the relation inherits from a table that is not partitioned
	ParentUnrecognized
	// Indeterminate means the relation is not visible under the current snapshot
	Indeterminate
)

// String returns the name of the search result
func (s SearchResult) String() string {
	switch s {
	case NotFound:
		return "not_found"
	case KnownParent:
		return "known_parent"
	case ParentUnrecognized:
		return "parent_unrecognized"
	case Indeterminate:
		return "indeterminate"
	default:
		return "unknown"
	}
}

// Lookup is the part of the catalog needed to classify parents
type Lookup interface {
	LookupRelationParent(ctx context.Context, relid catalog.RelID) (catalog.ParentInfo, error)
	PartitioningConfig(ctx context.Context, relid catalog.RelID) (*catalog.Config, error)
}

// Cache maps partitions to their partitioned parents
type Cache struct {
	log     logrus.FieldLogger
	catalog Lookup

	mu    sync.RWMutex
	links map[catalog.RelID]catalog.RelID
}

// NewCache creates a parent-link cache backed by cat
func NewCache(log logrus.FieldLogger, cat Lookup) *Cache {
	return &Cache{
		log:     log.WithField("service", "parents"),
		catalog: cat,
		links:   make(map[catalog.RelID]catalog.RelID),
	}
}

// CacheParentOf records parent as the parent of child, replacing any previous link
func (c *Cache) CacheParentOf(child, parent catalog.RelID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.links[child] = parent
}

// Cached returns the cached parent of child without consulting the catalog
func (c *Cache) Cached(child catalog.RelID) (catalog.RelID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	parent, ok := c.links[child]

	return parent, ok
}

// GetParentOf returns the parent of child.
// Only KnownParent answers are cached, every other result is asked again next time.
func (c *Cache) GetParentOf(ctx context.Context, child catalog.RelID) (catalog.RelID, SearchResult, error) {
	if child.IsSystem() {
		return catalog.InvalidRelID, NotFound, nil
	}

	if parent, ok := c.Cached(child); ok {
		observability.RecordParentLookup("cache", KnownParent.String())

		return parent, KnownParent, nil
	}

	parent, result, err := c.classify(ctx, child)
	if err != nil {
		observability.RecordError("parents", "catalog_lookup")

		return catalog.InvalidRelID, NotFound, err
	}

	observability.RecordParentLookup("catalog", result.String())

	if result == KnownParent {
		c.CacheParentOf(child, parent)
	}

	return parent, result, nil
}

func (c *Cache) classify(ctx context.Context, child catalog.RelID) (catalog.RelID, SearchResult, error) {
	info, err := c.catalog.LookupRelationParent(ctx, child)
	if err != nil {
		return catalog.InvalidRelID, NotFound, catalog.LookupFailure("lookup relation parent", err)
	}

	if !info.Visible {
		return catalog.InvalidRelID, Indeterminate, nil
	}

	if !info.HasParent() {
		return catalog.InvalidRelID, NotFound, nil
	}

	cfg, err := c.catalog.PartitioningConfig(ctx, info.Parent)
	if err != nil {
		return catalog.InvalidRelID, NotFound, catalog.LookupFailure("read partitioning config", err)
	}

	if cfg == nil {
		return info.Parent, ParentUnrecognized, nil
	}

	return info.Parent, KnownParent, nil
}

// ForgetParentOf evicts the link of child.
// It returns the removed parent with KnownParent, or NotFound when nothing was cached.
func (c *Cache) ForgetParentOf(child catalog.RelID) (catalog.RelID, SearchResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	parent, ok := c.links[child]
	if !ok {
		return catalog.InvalidRelID, NotFound
	}

	delete(c.links, child)

	return parent, KnownParent
}

// ForgetIfParent evicts the link of child only while it still points at parent
func (c *Cache) ForgetIfParent(child, parent catalog.RelID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.links[child]; !ok || cached != parent {
		return false
	}

	delete(c.links, child)

	return true
}

// Children returns the cached children of parent
func (c *Cache) Children(parent catalog.RelID) []catalog.RelID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []catalog.RelID

	for child, p := range c.links {
		if p == parent {
			out = append(out, child)
		}
	}

	return out
}

// Clear evicts every link
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.links = make(map[catalog.RelID]catalog.RelID)
}

// Len returns the number of cached links
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.links)
}

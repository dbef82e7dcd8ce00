// Package bounds memoizes per-partition bound data derived from partition descriptors
package bounds

import (
	"fmt"
	"sync"

	"github.com/ethpandaops/partcache/pkg/bound"
	"github.com/ethpandaops/partcache/pkg/catalog"
	"github.com/ethpandaops/partcache/pkg/observability"
	"github.com/sirupsen/logrus"
)

// Source is the owning descriptor an entry is derived from
type Source interface {
	RelID() catalog.RelID
	Generation() uint64
	PartType() catalog.PartType
	ByVal() bool
	TypLen() int16
	// IsStale reports whether src was invalidated; bounds of a stale source are never stored
	IsStale() bool
	// PartitionBounds returns the bounds of child, false when child is not listed
	PartitionBounds(child catalog.RelID) (catalog.ChildPartition, bool)
}

// Entry is the bound data of one partition.
// Min and Max are set for RANGE partitions, HashSlot for HASH partitions.
type Entry struct {
	Child      catalog.RelID
	Parent     catalog.RelID
	Generation uint64
	PartType   catalog.PartType
	Min        bound.Bound
	Max        bound.Bound
	ByVal      bool
	HashSlot   uint32
}

// Contains reports whether a finite value falls into [Min, Max)
func (e Entry) Contains(cmp bound.CmpFunc, collation uint32, v bound.Bound) bool {
	if e.PartType != catalog.PartTypeRange {
		return false
	}

	return bound.CompareBounds(cmp, collation, e.Min, v) <= 0 &&
		bound.CompareBounds(cmp, collation, v, e.Max) < 0
}

// Cache maps a child relation to the bounds derived from its parent's descriptor
type Cache struct {
	log     logrus.FieldLogger
	enabled func() bool

	mu      sync.Mutex
	entries map[catalog.RelID]*Entry
}

// NewCache creates a bounds cache. A nil enabled switch keeps the cache on.
func NewCache(log logrus.FieldLogger, enabled func() bool) *Cache {
	if enabled == nil {
		enabled = func() bool { return true }
	}

	return &Cache{
		log:     log.WithField("service", "bounds"),
		enabled: enabled,
		entries: make(map[catalog.RelID]*Entry),
	}
}

// Enabled reports whether entries are currently stored
func (c *Cache) Enabled() bool {
	return c.enabled()
}

// GetBoundsOf returns the bounds of child as listed by src.
// A cached entry is reused only while it was derived from the same generation of src.
// Bounds read through a stale source are returned without being stored.
func (c *Cache) GetBoundsOf(child catalog.RelID, src Source) (Entry, error) {
	if src == nil {
		return Entry{}, ErrNoSource
	}

	enabled := c.enabled()

	if enabled {
		c.mu.Lock()
		e, ok := c.entries[child]
		if ok && e.Parent == src.RelID() && e.Generation == src.Generation() {
			out := *e
			c.mu.Unlock()
			observability.RecordBoundsCacheHit()

			return out, nil
		}
		c.mu.Unlock()
	}

	observability.RecordBoundsCacheMiss()

	part, ok := src.PartitionBounds(child)
	if !ok {
		// the child may have moved, drop whatever an older generation left behind
		c.ForgetBoundsOf(child)

		return Entry{}, fmt.Errorf("%w: %d of %d", ErrNotAPartition, child, src.RelID())
	}

	e := &Entry{
		Child:      child,
		Parent:     src.RelID(),
		Generation: src.Generation(),
		PartType:   src.PartType(),
		ByVal:      src.ByVal(),
	}

	switch e.PartType {
	case catalog.PartTypeRange:
		e.Min = bound.CopyBound(part.Min, e.ByVal, int(src.TypLen()))
		e.Max = bound.CopyBound(part.Max, e.ByVal, int(src.TypLen()))
	case catalog.PartTypeHash:
		e.HashSlot = part.HashSlot
	}

	if !enabled {
		return *e, nil
	}

	c.mu.Lock()
	// checked under the lock so a concurrent invalidation evicts whatever is stored here
	if src.IsStale() {
		c.mu.Unlock()

		return *e, nil
	}

	if old, ok := c.entries[child]; ok {
		freeEntry(old)
	}
	c.entries[child] = e
	out := *e
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"child":      child,
		"parent":     e.Parent,
		"generation": e.Generation,
	}).Debug("Cached partition bounds")

	return out, nil
}

// ForgetBoundsOf evicts the entry of child
func (c *Cache) ForgetBoundsOf(child catalog.RelID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[child]
	if !ok {
		return false
	}

	freeEntry(e)
	delete(c.entries, child)

	return true
}

// ForgetGeneration evicts every entry derived from the given generation of parent
func (c *Cache) ForgetGeneration(parent catalog.RelID, generation uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0

	for child, e := range c.entries {
		if e.Parent != parent || e.Generation != generation {
			continue
		}

		freeEntry(e)
		delete(c.entries, child)
		n++
	}

	return n
}

// ForgetParent evicts every entry derived from any generation of parent
func (c *Cache) ForgetParent(parent catalog.RelID) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0

	for child, e := range c.entries {
		if e.Parent != parent {
			continue
		}

		freeEntry(e)
		delete(c.entries, child)
		n++
	}

	return n
}

// Clear evicts every entry
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for child, e := range c.entries {
		freeEntry(e)
		delete(c.entries, child)
	}
}

// Len returns the number of cached entries
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

func freeEntry(e *Entry) {
	bound.FreeBound(&e.Min, e.ByVal)
	bound.FreeBound(&e.Max, e.ByVal)
}

// Package relinfo caches partition descriptors of partitioned tables.
//
// Descriptors are reference counted. Get and Refresh pin the returned descriptor and
// the caller must Release it. Invalidation unpublishes a descriptor immediately while
// pinned readers keep using it until the last Release frees it.
package relinfo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethpandaops/partcache/pkg/bounds"
	"github.com/ethpandaops/partcache/pkg/catalog"
	"github.com/ethpandaops/partcache/pkg/observability"
	"github.com/ethpandaops/partcache/pkg/parents"
	"github.com/sirupsen/logrus"
)

// Dependencies are the collaborators a descriptor cache reads from and keeps coherent
type Dependencies struct {
	Catalog  catalog.Catalog
	Resolver catalog.FunctionResolver
	Compiler catalog.ExpressionCompiler
	Parents  *parents.Cache
	Bounds   *bounds.Cache
}

// Cache maps partitioned tables to their published descriptors
type Cache struct {
	log      logrus.FieldLogger
	catalog  catalog.Catalog
	resolver catalog.FunctionResolver
	compiler catalog.ExpressionCompiler
	parents  *parents.Cache
	bounds   *bounds.Cache

	mu             sync.Mutex
	entries        map[catalog.RelID]*Descriptor
	notPartitioned map[catalog.RelID]struct{}
	pinnedStale    map[*Descriptor]struct{}
	generation     uint64
}

// NewCache creates a descriptor cache
func NewCache(log logrus.FieldLogger, deps Dependencies) *Cache {
	return &Cache{
		log:            log.WithField("service", "relinfo"),
		catalog:        deps.Catalog,
		resolver:       deps.Resolver,
		compiler:       deps.Compiler,
		parents:        deps.Parents,
		bounds:         deps.Bounds,
		entries:        make(map[catalog.RelID]*Descriptor),
		notPartitioned: make(map[catalog.RelID]struct{}),
		pinnedStale:    make(map[*Descriptor]struct{}),
	}
}

// Get returns the published descriptor of relid pinned, never rebuilding it
func (c *Cache) Get(relid catalog.RelID) (*Descriptor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.entries[relid]
	if !ok {
		observability.RecordDescriptorMiss()

		return nil, false
	}

	observability.RecordDescriptorHit()
	d.refcount.Add(1)

	return d, true
}

// Release unpins d, freeing it when it is stale and no longer referenced
func (c *Cache) Release(d *Descriptor) {
	if d == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	refs := d.refcount.Add(-1)
	if refs < 0 {
		panic(fmt.Sprintf("relinfo: negative refcount %d on descriptor of %d", refs, d.relid))
	}

	if refs == 0 && d.stale.Load() {
		c.freeLocked(d)
	}
}

// Has reports whether relid has a published descriptor
func (c *Cache) Has(relid catalog.RelID) bool {
	d, ok := c.Get(relid)
	if ok {
		c.Release(d)
	}

	return ok
}

// Refresh rebuilds the descriptor of relid and publishes it, returning it pinned.
// A table without partitions fails with ErrEmptyPartitionSet and keeps its previous descriptor,
// unless allowIncomplete is set: then the previous descriptor is invalidated as well and
// (nil, nil) is returned, since trivial descriptors are never published.
// Any failure leaves the previously published descriptor untouched.
func (c *Cache) Refresh(ctx context.Context, relid catalog.RelID, partType catalog.PartType, expr string, allowIncomplete bool) (*Descriptor, error) {
	cfg, err := c.catalog.PartitioningConfig(ctx, relid)
	if err != nil {
		return nil, catalog.LookupFailure("read partitioning params", err)
	}

	req := buildRequest{relid: relid, partType: partType, expr: expr}
	if cfg != nil {
		req.enableParent = cfg.EnableParent
	}

	return c.refresh(ctx, req, allowIncomplete)
}

func (c *Cache) refresh(ctx context.Context, req buildRequest, allowIncomplete bool) (*Descriptor, error) {
	if req.relid.IsSystem() {
		return nil, fmt.Errorf("%w: %d", ErrSystemRelation, req.relid)
	}

	if !req.partType.Valid() {
		return nil, fmt.Errorf("%w %d", ErrInvalidPartitioningType, uint32(req.partType))
	}

	started := time.Now()
	log := c.log.WithFields(logrus.Fields{"relid": req.relid, "part_type": req.partType})

	d, err := c.build(ctx, req)
	if err != nil {
		observability.RecordRefresh(req.partType.String(), "failed", time.Since(started).Seconds())
		log.WithError(err).Debug("Failed to build partition descriptor")

		return nil, err
	}

	if len(d.children) == 0 {
		observability.RecordRefresh(req.partType.String(), "incomplete", time.Since(started).Seconds())

		if !allowIncomplete {
			return nil, fmt.Errorf("%w: %d", ErrEmptyPartitionSet, req.relid)
		}

		c.Invalidate(req.relid)
		log.Debug("Dropped trivial partition descriptor")

		return nil, nil
	}

	c.publish(d)

	observability.RecordRefresh(req.partType.String(), "success", time.Since(started).Seconds())
	log.WithFields(logrus.Fields{
		"generation": d.generation,
		"children":   len(d.children),
	}).Debug("Published partition descriptor")

	return d, nil
}

// publish swaps d in for the current descriptor of its table and pins it for the caller
func (c *Cache) publish(d *Descriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	d.generation = c.generation
	d.refcount.Store(1)

	if old, ok := c.entries[d.relid]; ok {
		c.unpublishLocked(old)
	}

	c.entries[d.relid] = d
	delete(c.notPartitioned, d.relid)

	for _, child := range d.children {
		c.parents.CacheParentOf(child, d.relid)
	}

	observability.DescriptorsCached.Set(float64(len(c.entries)))
}

// Load returns the descriptor of relid pinned, building it from the stored configuration on a miss.
// Tables that are not partitioned yield (nil, nil) and are remembered until invalidated.
func (c *Cache) Load(ctx context.Context, relid catalog.RelID) (*Descriptor, error) {
	if relid.IsSystem() {
		return nil, nil
	}

	if d, ok := c.Get(relid); ok {
		return d, nil
	}

	c.mu.Lock()
	_, negative := c.notPartitioned[relid]
	c.mu.Unlock()

	if negative {
		return nil, nil
	}

	cfg, err := c.catalog.PartitioningConfig(ctx, relid)
	if err != nil {
		return nil, catalog.LookupFailure("read partitioning config", err)
	}

	if cfg == nil {
		c.mu.Lock()
		c.notPartitioned[relid] = struct{}{}
		c.mu.Unlock()

		return nil, nil
	}

	return c.refresh(ctx, buildRequest{
		relid:        relid,
		partType:     cfg.PartType,
		expr:         cfg.Expr,
		enableParent: cfg.EnableParent,
	}, true)
}

// Invalidate unpublishes the descriptor of relid; the next Get is a miss
func (c *Cache) Invalidate(relid catalog.RelID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.notPartitioned, relid)

	d, ok := c.entries[relid]
	if !ok {
		return false
	}

	c.unpublishLocked(d)
	observability.DescriptorsCached.Set(float64(len(c.entries)))

	return true
}

// InvalidateAll unpublishes every descriptor
func (c *Cache) InvalidateAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)

	for _, d := range c.entries {
		c.unpublishLocked(d)
	}

	c.notPartitioned = make(map[catalog.RelID]struct{})
	observability.DescriptorsCached.Set(0)

	return n
}

// Published returns the tables that currently have a descriptor
func (c *Cache) Published() []catalog.RelID {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]catalog.RelID, 0, len(c.entries))
	for relid := range c.entries {
		out = append(out, relid)
	}

	return out
}

// Len returns the number of published descriptors
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// PinnedStale returns the number of invalidated descriptors that are still pinned
func (c *Cache) PinnedStale() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.pinnedStale)
}

func (c *Cache) unpublishLocked(d *Descriptor) {
	if cur, ok := c.entries[d.relid]; ok && cur == d {
		delete(c.entries, d.relid)
	}

	d.stale.Store(true)

	c.bounds.ForgetGeneration(d.relid, d.generation)

	for _, child := range d.children {
		c.parents.ForgetIfParent(child, d.relid)
	}

	c.log.WithFields(logrus.Fields{
		"relid":      d.relid,
		"generation": d.generation,
		"refcount":   d.refcount.Load(),
	}).Debug("Invalidated partition descriptor")

	if d.refcount.Load() == 0 {
		c.freeLocked(d)

		return
	}

	c.pinnedStale[d] = struct{}{}
	observability.DescriptorsPinnedStale.Set(float64(len(c.pinnedStale)))
}

func (c *Cache) freeLocked(d *Descriptor) {
	if d.freed.Load() {
		return
	}

	d.free()
	delete(c.pinnedStale, d)
	observability.DescriptorsPinnedStale.Set(float64(len(c.pinnedStale)))

	c.log.WithFields(logrus.Fields{
		"relid":      d.relid,
		"generation": d.generation,
	}).Debug("Freed partition descriptor")
}

// ShoutIfInvalid fails when d cannot serve a caller expecting the given strategy.
// PartTypeAny accepts every strategy.
func ShoutIfInvalid(relid catalog.RelID, d *Descriptor, expected catalog.PartType) error {
	if d == nil {
		return fmt.Errorf("%w: %d", ErrNotPartitioned, relid)
	}

	if d.IsFreed() {
		return fmt.Errorf("%w: %d", ErrDescriptorFreed, relid)
	}

	if d.ChildrenCount() == 0 {
		return fmt.Errorf("%w: %d", ErrEmptyPartitionSet, relid)
	}

	if expected != catalog.PartTypeAny && d.partType != expected {
		return fmt.Errorf("%w: relation %d is not partitioned by %s", ErrStaleDescriptorType, relid, expected)
	}

	return nil
}

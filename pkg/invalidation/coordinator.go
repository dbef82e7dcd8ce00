// Package invalidation keeps the partition caches coherent with catalog changes.
//
// Notifications are applied immediately unless a guard is installed. Guarded
// notifications are queued and applied in order by FinishDelayedInvalidation,
// which callers invoke at safe points such as the end of a statement.
package invalidation

import (
	"context"
	"sync"

	"github.com/ethpandaops/partcache/pkg/catalog"
	"github.com/ethpandaops/partcache/pkg/observability"
	"github.com/ethpandaops/partcache/pkg/parents"
	"github.com/sirupsen/logrus"
)

// Mode is the state of the coordinator
type Mode int

const (
	// ModeImmediate applies notifications as they arrive
	ModeImmediate Mode = iota
	// ModeDelayed queues guarded notifications until the next safe point
	ModeDelayed
)

// String returns the mode name
func (m Mode) String() string {
	if m == ModeDelayed {
		return "delayed"
	}

	return "immediate"
}

// Descriptors is the descriptor cache contract
type Descriptors interface {
	Invalidate(relid catalog.RelID) bool
	InvalidateAll() int
}

// ParentLinks is the parent-link cache contract
type ParentLinks interface {
	Cached(child catalog.RelID) (catalog.RelID, bool)
	GetParentOf(ctx context.Context, child catalog.RelID) (catalog.RelID, parents.SearchResult, error)
	ForgetParentOf(child catalog.RelID) (catalog.RelID, parents.SearchResult)
	Clear()
}

// BoundsEntries is the bounds cache contract
type BoundsEntries interface {
	ForgetBoundsOf(child catalog.RelID) bool
	ForgetParent(parent catalog.RelID) int
	Clear()
}

// Catalog is the part of the catalog needed to classify relations at safe points
type Catalog interface {
	Installed(ctx context.Context) (bool, error)
	PartitioningConfig(ctx context.Context, relid catalog.RelID) (*catalog.Config, error)
}

// Source delivers notifications received outside the session's thread
type Source interface {
	Drain() []Notification
}

// Caches groups the caches kept coherent by the coordinator
type Caches struct {
	Descriptors Descriptors
	Parents     ParentLinks
	Bounds      BoundsEntries
}

type commandKind int

const (
	cmdRelation commandKind = iota
	cmdParent
	cmdVague
	cmdAll
)

func (k commandKind) String() string {
	switch k {
	case cmdRelation:
		return "relation"
	case cmdParent:
		return "parent"
	case cmdVague:
		return "vague"
	default:
		return "all"
	}
}

type command struct {
	kind  commandKind
	relid catalog.RelID
}

// Coordinator applies or defers invalidations
type Coordinator struct {
	log     logrus.FieldLogger
	catalog Catalog
	caches  Caches

	mu              sync.Mutex
	shutdownPending bool
	guardedParents  map[catalog.RelID]struct{}
	guardedVague    map[catalog.RelID]struct{}
	queue           []command
	sources         []Source
}

// NewCoordinator creates a coordinator in immediate mode
func NewCoordinator(log logrus.FieldLogger, cat Catalog, caches Caches) *Coordinator {
	return &Coordinator{
		log:            log.WithField("service", "invalidation"),
		catalog:        cat,
		caches:         caches,
		guardedParents: make(map[catalog.RelID]struct{}),
		guardedVague:   make(map[catalog.RelID]struct{}),
	}
}

// RegisterSource adds a notification source drained by AcceptInvalidationMessages
func (c *Coordinator) RegisterSource(src Source) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sources = append(c.sources, src)
}

// Mode returns the current state
func (c *Coordinator) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.modeLocked()
}

func (c *Coordinator) modeLocked() Mode {
	if c.shutdownPending || len(c.guardedParents) > 0 || len(c.guardedVague) > 0 || len(c.queue) > 0 {
		return ModeDelayed
	}

	return ModeImmediate
}

// Pending returns the number of queued commands
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.queue)
}

// DelayShutdown guards every cache until the next safe point decides whether the
// partitioning configuration is gone
func (c *Coordinator) DelayShutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.shutdownPending = true
	c.log.Debug("Delayed shutdown")
}

// DelayInvalidationParentRel queues an invalidation of a partitioned table and guards it
func (c *Coordinator) DelayInvalidationParentRel(parent catalog.RelID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.guardedParents[parent] = struct{}{}
	c.enqueueLocked(command{kind: cmdParent, relid: parent})
}

// DelayInvalidationVagueRel queues a relation whose partitioning role is not yet known
func (c *Coordinator) DelayInvalidationVagueRel(relid catalog.RelID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.guardedVague[relid] = struct{}{}
	c.enqueueLocked(command{kind: cmdVague, relid: relid})
}

// Notify handles a catalog change notification
func (c *Coordinator) Notify(n Notification) {
	if err := n.Validate(); err != nil {
		c.log.WithError(err).Warn("Ignoring notification")

		return
	}

	switch n.Kind {
	case KindShutdown:
		c.DelayShutdown()
	case KindAll:
		c.notifyAll()
	case KindRelation:
		c.notifyRelation(n.RelID)
	}
}

func (c *Coordinator) notifyAll() {
	c.mu.Lock()

	if c.modeLocked() == ModeDelayed {
		c.enqueueLocked(command{kind: cmdAll})
		c.mu.Unlock()

		return
	}

	c.mu.Unlock()

	c.applyAll()
	observability.RecordInvalidation("all", ModeImmediate.String())
}

func (c *Coordinator) notifyRelation(relid catalog.RelID) {
	if relid.IsSystem() {
		return
	}

	c.mu.Lock()

	if c.guardedLocked(relid) {
		c.enqueueLocked(command{kind: cmdRelation, relid: relid})
		c.mu.Unlock()

		return
	}

	c.mu.Unlock()

	c.applyRelation(relid)
	observability.RecordInvalidation("relation", ModeImmediate.String())
}

// guardedLocked reports whether a notification for relid must wait for a safe point
func (c *Coordinator) guardedLocked(relid catalog.RelID) bool {
	if c.shutdownPending {
		return true
	}

	if _, ok := c.guardedParents[relid]; ok {
		return true
	}

	if _, ok := c.guardedVague[relid]; ok {
		return true
	}

	if parent, ok := c.caches.Parents.Cached(relid); ok {
		_, guarded := c.guardedParents[parent]

		return guarded
	}

	return false
}

func (c *Coordinator) enqueueLocked(cmd command) {
	c.queue = append(c.queue, cmd)
	observability.DelayedQueueDepth.Set(float64(len(c.queue)))

	c.log.WithFields(logrus.Fields{
		"command": cmd.kind.String(),
		"relid":   cmd.relid,
	}).Debug("Delayed invalidation")
}

// AcceptInvalidationMessages drains every registered source into Notify
func (c *Coordinator) AcceptInvalidationMessages() int {
	c.mu.Lock()
	sources := append([]Source(nil), c.sources...)
	c.mu.Unlock()

	n := 0

	for _, src := range sources {
		for _, msg := range src.Drain() {
			c.Notify(msg)
			n++
		}
	}

	return n
}

// FinishDelayedInvalidation applies queued invalidations at a safe point.
// Relations that still cannot be classified stay queued until the next call.
func (c *Coordinator) FinishDelayedInvalidation(ctx context.Context) {
	c.AcceptInvalidationMessages()

	c.mu.Lock()
	shutdown := c.shutdownPending
	c.shutdownPending = false
	queue := c.queue
	c.queue = nil
	c.guardedParents = make(map[catalog.RelID]struct{})
	c.guardedVague = make(map[catalog.RelID]struct{})
	c.mu.Unlock()

	if shutdown && c.configGone(ctx) {
		c.applyAll()
		observability.RecordInvalidation("shutdown", ModeDelayed.String())
		observability.DelayedQueueDepth.Set(0)
		c.log.WithField("dropped", len(queue)).Info("Partitioning configuration is gone, cleared every cache")

		return
	}

	var retained []command

	for _, cmd := range queue {
		if !c.apply(ctx, cmd) {
			retained = append(retained, cmd)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// commands queued while draining go after the ones kept from this round
	c.queue = append(retained, c.queue...)

	for _, cmd := range retained {
		c.guardedVague[cmd.relid] = struct{}{}
	}

	observability.DelayedQueueDepth.Set(float64(len(c.queue)))

	c.log.WithFields(logrus.Fields{
		"applied":  len(queue) - len(retained),
		"retained": len(retained),
		"mode":     c.modeLocked().String(),
	}).Debug("Finished delayed invalidation")
}

// configGone reports whether the partitioning configuration was dropped; unknown counts as gone
func (c *Coordinator) configGone(ctx context.Context) bool {
	installed, err := c.catalog.Installed(ctx)
	if err != nil {
		observability.RecordError("invalidation", "catalog_lookup")
		c.log.WithError(err).Warn("Failed to check partitioning configuration, assuming it is gone")

		return true
	}

	return !installed
}

// apply runs one queued command, returning false when it has to stay queued
func (c *Coordinator) apply(ctx context.Context, cmd command) bool {
	switch cmd.kind {
	case cmdAll:
		c.applyAll()
	case cmdParent:
		c.caches.Descriptors.Invalidate(cmd.relid)
		c.caches.Bounds.ForgetParent(cmd.relid)
	case cmdRelation:
		c.applyRelation(cmd.relid)
	case cmdVague:
		if !c.applyVague(ctx, cmd.relid) {
			return false
		}
	}

	observability.RecordInvalidation(cmd.kind.String(), ModeDelayed.String())

	return true
}

// applyVague classifies relid now that its catalog state may be visible
func (c *Coordinator) applyVague(ctx context.Context, relid catalog.RelID) bool {
	log := c.log.WithField("relid", relid)

	cfg, err := c.catalog.PartitioningConfig(ctx, relid)
	if err != nil {
		observability.RecordError("invalidation", "catalog_lookup")
		log.WithError(err).Warn("Failed to classify relation, invalidating every cache")
		c.applyAll()

		return true
	}

	if cfg != nil {
		c.applyRelation(relid)

		return true
	}

	_, result, err := c.caches.Parents.GetParentOf(ctx, relid)
	if err != nil {
		observability.RecordError("invalidation", "catalog_lookup")
		log.WithError(err).Warn("Failed to classify relation, invalidating every cache")
		c.applyAll()

		return true
	}

	if result == parents.Indeterminate {
		log.Debug("Relation is not visible yet, keeping it queued")

		return false
	}

	// a known parent is looked up and invalidated through the link
	c.applyRelation(relid)

	return true
}

// applyRelation forgets everything cached about relid and the table it belongs to
func (c *Coordinator) applyRelation(relid catalog.RelID) {
	c.caches.Bounds.ForgetBoundsOf(relid)

	if parent, result := c.caches.Parents.ForgetParentOf(relid); result == parents.KnownParent {
		c.caches.Descriptors.Invalidate(parent)
	}

	c.caches.Descriptors.Invalidate(relid)
}

func (c *Coordinator) applyAll() {
	n := c.caches.Descriptors.InvalidateAll()
	c.caches.Parents.Clear()
	c.caches.Bounds.Clear()

	c.log.WithField("descriptors", n).Debug("Invalidated every cache")
}

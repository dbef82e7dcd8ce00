package relinfo

import (
	"slices"
	"sync/atomic"

	"github.com/ethpandaops/partcache/pkg/bound"
	"github.com/ethpandaops/partcache/pkg/catalog"
)

// RangeEntry is the interval [Min, Max) covered by one RANGE partition
type RangeEntry struct {
	Child catalog.RelID
	Min   bound.Bound
	Max   bound.Bound
}

// Descriptor is the cached partitioning metadata of one table.
// Everything but the lifetime state is immutable once published.
type Descriptor struct {
	relid        catalog.RelID
	generation   uint64
	partType     catalog.PartType
	enableParent bool

	// HASH: children[i] holds slot i. RANGE: ordered by Min, parallel to ranges.
	children   []catalog.RelID
	ranges     []RangeEntry
	childIndex map[catalog.RelID]int

	typeInfo catalog.TypeInfo
	cmp      bound.CmpFunc
	hash     catalog.HashFunc
	exprText string
	expr     catalog.Expression

	// lifetime, written under the owning cache's lock
	refcount atomic.Int32
	stale    atomic.Bool
	freed    atomic.Bool
}

// RelID returns the partitioned table
func (d *Descriptor) RelID() catalog.RelID { return d.relid }

// Generation identifies this build of the descriptor
func (d *Descriptor) Generation() uint64 { return d.generation }

// PartType returns the partitioning strategy
func (d *Descriptor) PartType() catalog.PartType { return d.partType }

// EnableParent reports whether the parent table is included in plans
func (d *Descriptor) EnableParent() bool { return d.enableParent }

// ByVal reports whether partitioning values are passed by value
func (d *Descriptor) ByVal() bool { return d.typeInfo.ByVal }

// TypLen returns the storage length of partitioning values, -1 for variable length
func (d *Descriptor) TypLen() int16 { return d.typeInfo.Len }

// TypeInfo returns the partitioning value's type metadata
func (d *Descriptor) TypeInfo() catalog.TypeInfo { return d.typeInfo }

// Collation returns the collation used to compare bounds
func (d *Descriptor) Collation() uint32 { return d.typeInfo.Collation }

// ExprText returns the partitioning expression as stored
func (d *Descriptor) ExprText() string { return d.exprText }

// Expression returns the compiled partitioning expression
func (d *Descriptor) Expression() catalog.Expression { return d.expr }

// CmpFunc returns the comparison function of the partitioning type
func (d *Descriptor) CmpFunc() bound.CmpFunc { return d.cmp }

// HashFunc returns the hash function of the partitioning type, nil when it has none
func (d *Descriptor) HashFunc() catalog.HashFunc { return d.hash }

// Children returns a copy of the ordered child relations
func (d *Descriptor) Children() []catalog.RelID { return slices.Clone(d.children) }

// Ranges returns a copy of the range entries, nil for HASH
func (d *Descriptor) Ranges() []RangeEntry { return slices.Clone(d.ranges) }

// ChildrenCount returns the number of partitions
func (d *Descriptor) ChildrenCount() int { return len(d.children) }

// LastChild returns the last partition in order
func (d *Descriptor) LastChild() (catalog.RelID, error) {
	if len(d.children) == 0 {
		return catalog.InvalidRelID, ErrEmptyPartitionSet
	}

	return d.children[len(d.children)-1], nil
}

// ChildIndex returns the position of child, which is its slot for HASH
func (d *Descriptor) ChildIndex(child catalog.RelID) (int, bool) {
	i, ok := d.childIndex[child]

	return i, ok
}

// PartitionBounds returns the bounds of child as a catalog partition
func (d *Descriptor) PartitionBounds(child catalog.RelID) (catalog.ChildPartition, bool) {
	i, ok := d.childIndex[child]
	if !ok {
		return catalog.ChildPartition{}, false
	}

	if d.partType == catalog.PartTypeRange {
		return catalog.ChildPartition{RelID: child, Min: d.ranges[i].Min, Max: d.ranges[i].Max}, true
	}

	return catalog.ChildPartition{
		RelID:    child,
		Min:      bound.MakeInfiniteBound(bound.MinusInfinity),
		Max:      bound.MakeInfiniteBound(bound.PlusInfinity),
		HashSlot: uint32(i), //nolint:gosec // bounded by the number of children
	}, true
}

// Compare orders two bounds with the descriptor's comparison function and collation
func (d *Descriptor) Compare(b1, b2 bound.Bound) int {
	return bound.CompareBounds(d.cmp, d.typeInfo.Collation, b1, b2)
}

// IsStale reports whether the descriptor was invalidated or replaced
func (d *Descriptor) IsStale() bool { return d.stale.Load() }

// IsFreed reports whether the descriptor released its bounds
func (d *Descriptor) IsFreed() bool { return d.freed.Load() }

// RefCount returns the number of outstanding pins
func (d *Descriptor) RefCount() int { return int(d.refcount.Load()) }

func (d *Descriptor) free() {
	for i := range d.ranges {
		bound.FreeBound(&d.ranges[i].Min, d.typeInfo.ByVal)
		bound.FreeBound(&d.ranges[i].Max, d.typeInfo.ByVal)
	}

	d.freed.Store(true)
}

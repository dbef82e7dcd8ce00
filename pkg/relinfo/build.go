package relinfo

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ethpandaops/partcache/pkg/bound"
	"github.com/ethpandaops/partcache/pkg/catalog"
)

// buildRequest carries everything needed to build a descriptor
type buildRequest struct {
	relid        catalog.RelID
	partType     catalog.PartType
	expr         string
	enableParent bool
}

// build reads the catalog and assembles an unpublished descriptor.
// A descriptor without children is returned as is, the caller decides what that means.
func (c *Cache) build(ctx context.Context, req buildRequest) (*Descriptor, error) {
	d := &Descriptor{
		relid:        req.relid,
		partType:     req.partType,
		enableParent: req.enableParent,
		exprText:     req.expr,
	}

	compiled, err := c.compiler.CompilePartitioningExpression(ctx, req.relid, req.expr)
	if err != nil {
		return nil, err
	}

	d.expr = compiled

	info, err := c.catalog.TypeMetadata(ctx, compiled.ResultType())
	if err != nil {
		return nil, catalog.LookupFailure("read type metadata", err)
	}

	info.Typmod = compiled.ResultTypmod()
	if coll := compiled.Collation(); coll != catalog.InvalidCollation {
		info.Collation = coll
	}

	d.typeInfo = info

	if err := c.resolveFunctions(d); err != nil {
		return nil, err
	}

	parts, err := c.catalog.ListChildPartitions(ctx, req.relid)
	if err != nil {
		return nil, catalog.LookupFailure("list child partitions", err)
	}

	if len(parts) == 0 {
		return d, nil
	}

	switch req.partType {
	case catalog.PartTypeRange:
		err = d.fillRanges(parts)
	case catalog.PartTypeHash:
		err = d.fillHashSlots(parts)
	}

	if err != nil {
		return nil, err
	}

	d.childIndex = make(map[catalog.RelID]int, len(d.children))
	for i, child := range d.children {
		d.childIndex[child] = i
	}

	return d, nil
}

// resolveFunctions looks up comparison and hash support; only the one the strategy needs is mandatory
func (c *Cache) resolveFunctions(d *Descriptor) error {
	cmp, err := c.resolver.ResolveComparisonFunction(d.typeInfo.OID)

	switch {
	case err == nil:
		d.cmp = cmp
	case d.partType == catalog.PartTypeRange || !errors.Is(err, catalog.ErrNoSupportFunction):
		return err
	}

	hash, err := c.resolver.ResolveHashFunction(d.typeInfo.OID)

	switch {
	case err == nil:
		d.hash = hash
	case d.partType == catalog.PartTypeHash || !errors.Is(err, catalog.ErrNoSupportFunction):
		return err
	}

	return nil
}

func (d *Descriptor) fillRanges(parts []catalog.ChildPartition) error {
	byval, typLen := d.typeInfo.ByVal, int(d.typeInfo.Len)

	ranges := make([]RangeEntry, len(parts))
	for i, p := range parts {
		ranges[i] = RangeEntry{
			Child: p.RelID,
			Min:   bound.CopyBound(p.Min, byval, typLen),
			Max:   bound.CopyBound(p.Max, byval, typLen),
		}
	}

	sort.SliceStable(ranges, func(i, j int) bool {
		return d.Compare(ranges[i].Min, ranges[j].Min) < 0
	})

	for i, r := range ranges {
		if d.Compare(r.Min, r.Max) >= 0 {
			return fmt.Errorf("%w: partition %d [%s, %s)", ErrInvalidRange, r.Child, r.Min, r.Max)
		}

		if i > 0 && d.Compare(ranges[i-1].Max, r.Min) > 0 {
			return fmt.Errorf("%w: partitions %d and %d", ErrOverlappingRanges, ranges[i-1].Child, r.Child)
		}
	}

	d.ranges = ranges
	d.children = make([]catalog.RelID, len(ranges))

	for i, r := range ranges {
		d.children[i] = r.Child
	}

	return nil
}

func (d *Descriptor) fillHashSlots(parts []catalog.ChildPartition) error {
	children := make([]catalog.RelID, len(parts))

	for _, p := range parts {
		slot := int(p.HashSlot)
		if slot >= len(children) {
			return fmt.Errorf("%w: partition %d has slot %d of %d", ErrInvalidHashSlot, p.RelID, slot, len(children))
		}

		if children[slot] != catalog.InvalidRelID {
			return fmt.Errorf("%w: partitions %d and %d share slot %d", ErrInvalidHashSlot, children[slot], p.RelID, slot)
		}

		children[slot] = p.RelID
	}

	d.children = children

	return nil
}

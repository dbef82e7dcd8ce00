package relinfo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethpandaops/partcache/internal/testutil"
	"github.com/ethpandaops/partcache/pkg/bound"
	"github.com/ethpandaops/partcache/pkg/bounds"
	"github.com/ethpandaops/partcache/pkg/catalog"
	"github.com/ethpandaops/partcache/pkg/parents"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCaches struct {
	relinfo *Cache
	parents *parents.Cache
	bounds  *bounds.Cache
}

func newTestCaches(t *testing.T, cat interface {
	catalog.Catalog
	catalog.FunctionResolver
	catalog.ColumnSource
}) testCaches {
	t.Helper()

	log := testutil.NewLogger()
	p := parents.NewCache(log, cat)
	b := bounds.NewCache(log, nil)

	return testCaches{
		relinfo: NewCache(log, Dependencies{
			Catalog:  cat,
			Resolver: cat,
			Compiler: catalog.NewColumnCompiler(cat),
			Parents:  p,
			Bounds:   b,
		}),
		parents: p,
		bounds:  b,
	}
}

func date(t *testing.T, s string) bound.Bound {
	t.Helper()

	v, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)

	return bound.MakeBound(v.UTC())
}

func TestRefresh_OrdersScenario(t *testing.T) {
	ctx := context.Background()
	c := newTestCaches(t, testutil.NewCatalog(t))

	d, err := c.relinfo.Refresh(ctx, testutil.OrdersRelID, catalog.PartTypeRange, "order_date", false)
	require.NoError(t, err)
	require.NotNil(t, d)
	defer c.relinfo.Release(d)

	ranges := d.Ranges()
	require.Len(t, ranges, 3)

	assert.Equal(t, []catalog.RelID{
		testutil.OrdersOldRelID,
		testutil.Orders2020RelID,
		testutil.Orders2021RelID,
	}, d.Children())

	assert.True(t, ranges[0].Min.IsMinusInfinity())
	assert.Equal(t, 0, d.Compare(ranges[0].Max, date(t, "2020-01-01")))
	assert.Equal(t, 0, d.Compare(ranges[1].Min, date(t, "2020-01-01")))
	assert.Equal(t, 0, d.Compare(ranges[1].Max, date(t, "2021-01-01")))
	assert.Equal(t, 0, d.Compare(ranges[2].Min, date(t, "2021-01-01")))
	assert.True(t, ranges[2].Max.IsPlusInfinity())

	probe := date(t, "2020-06-01")
	assert.Positive(t, d.Compare(probe, ranges[1].Min))
	assert.Negative(t, d.Compare(probe, ranges[1].Max))

	last, err := d.LastChild()
	require.NoError(t, err)
	assert.Equal(t, testutil.Orders2021RelID, last)
	assert.Equal(t, catalog.DateOID, d.TypeInfo().OID)
	assert.True(t, d.ByVal())
	assert.Equal(t, "order_date", d.ExprText())
	assert.False(t, d.EnableParent())
}

func TestRefresh_RoundTripThroughGet(t *testing.T) {
	ctx := context.Background()
	mem := testutil.NewCatalog(t)
	c := newTestCaches(t, mem)

	d, err := c.relinfo.Refresh(ctx, testutil.OrdersRelID, catalog.PartTypeRange, "order_date", false)
	require.NoError(t, err)
	c.relinfo.Release(d)

	got, ok := c.relinfo.Get(testutil.OrdersRelID)
	require.True(t, ok)
	defer c.relinfo.Release(got)

	parts, err := mem.ListChildPartitions(ctx, testutil.OrdersRelID)
	require.NoError(t, err)

	ranges := got.Ranges()
	assert.Len(t, ranges, len(parts))

	for i := 1; i < len(ranges); i++ {
		assert.Negative(t, got.Compare(ranges[i-1].Min, ranges[i].Min))
	}
}

func TestGet_IdempotentWithoutInvalidation(t *testing.T) {
	ctx := context.Background()
	c := newTestCaches(t, testutil.NewCatalog(t))

	d, err := c.relinfo.Refresh(ctx, testutil.OrdersRelID, catalog.PartTypeRange, "order_date", false)
	require.NoError(t, err)
	c.relinfo.Release(d)

	first, ok := c.relinfo.Get(testutil.OrdersRelID)
	require.True(t, ok)
	second, ok := c.relinfo.Get(testutil.OrdersRelID)
	require.True(t, ok)

	assert.Equal(t, first.Generation(), second.Generation())
	assert.Equal(t, first.Children(), second.Children())
	assert.Equal(t, first.Ranges(), second.Ranges())
	assert.Equal(t, 2, first.RefCount())

	c.relinfo.Release(first)
	c.relinfo.Release(second)
	assert.Equal(t, 0, first.RefCount())
	assert.False(t, first.IsFreed())
}

func TestGet_NeverRebuilds(t *testing.T) {
	c := newTestCaches(t, testutil.NewCatalog(t))

	d, ok := c.relinfo.Get(testutil.OrdersRelID)
	assert.False(t, ok)
	assert.Nil(t, d)
	assert.False(t, c.relinfo.Has(testutil.OrdersRelID))
}

func TestInvalidate_ThenGetMisses(t *testing.T) {
	tests := []struct {
		name   string
		pinned bool
	}{
		{name: "unpinned descriptor is freed immediately", pinned: false},
		{name: "pinned descriptor survives until released", pinned: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			c := newTestCaches(t, testutil.NewCatalog(t))

			d, err := c.relinfo.Refresh(ctx, testutil.OrdersRelID, catalog.PartTypeRange, "order_date", false)
			require.NoError(t, err)

			if !tt.pinned {
				c.relinfo.Release(d)
			}

			assert.True(t, c.relinfo.Invalidate(testutil.OrdersRelID))
			assert.False(t, c.relinfo.Invalidate(testutil.OrdersRelID))

			_, ok := c.relinfo.Get(testutil.OrdersRelID)
			assert.False(t, ok)
			assert.True(t, d.IsStale())

			if !tt.pinned {
				assert.True(t, d.IsFreed())
				assert.Equal(t, 0, c.relinfo.PinnedStale())

				return
			}

			// the reader keeps the same data until it lets go
			assert.False(t, d.IsFreed())
			assert.Equal(t, 1, c.relinfo.PinnedStale())
			assert.Len(t, d.Ranges(), 3)
			require.NoError(t, ShoutIfInvalid(testutil.OrdersRelID, d, catalog.PartTypeRange))

			c.relinfo.Release(d)
			assert.True(t, d.IsFreed())
			assert.Equal(t, 0, c.relinfo.PinnedStale())
		})
	}
}

func TestInvalidate_PinnedReaderLeavesNoBounds(t *testing.T) {
	ctx := context.Background()
	c := newTestCaches(t, testutil.NewCatalog(t))

	d, err := c.relinfo.Refresh(ctx, testutil.OrdersRelID, catalog.PartTypeRange, "order_date", false)
	require.NoError(t, err)

	_, err = c.bounds.GetBoundsOf(testutil.Orders2021RelID, d)
	require.NoError(t, err)
	assert.Equal(t, 1, c.bounds.Len())

	require.True(t, c.relinfo.Invalidate(testutil.OrdersRelID))
	assert.Equal(t, 0, c.bounds.Len())

	// a reader still holding the old generation gets its bounds but nothing is kept
	e, err := c.bounds.GetBoundsOf(testutil.Orders2020RelID, d)
	require.NoError(t, err)
	assert.Equal(t, d.Generation(), e.Generation)
	assert.Equal(t, 0, c.bounds.Len())

	c.relinfo.Release(d)
	assert.True(t, d.IsFreed())
	assert.Equal(t, 0, c.bounds.Len())
}

func TestInvalidateAll(t *testing.T) {
	ctx := context.Background()
	c := newTestCaches(t, testutil.NewCatalog(t))

	orders, err := c.relinfo.Refresh(ctx, testutil.OrdersRelID, catalog.PartTypeRange, "order_date", false)
	require.NoError(t, err)
	events, err := c.relinfo.Refresh(ctx, testutil.EventsRelID, catalog.PartTypeHash, "user_id", false)
	require.NoError(t, err)
	c.relinfo.Release(events)

	assert.Equal(t, 2, c.relinfo.InvalidateAll())
	assert.Equal(t, 0, c.relinfo.Len())
	assert.Equal(t, 0, c.parents.Len())
	assert.True(t, events.IsFreed())
	assert.False(t, orders.IsFreed())

	c.relinfo.Release(orders)
	assert.True(t, orders.IsFreed())
}

func TestRefresh_EmptyPartitionSetKeepsPriorDescriptor(t *testing.T) {
	ctx := context.Background()
	mem := testutil.NewCatalog(t)
	c := newTestCaches(t, mem)

	prior, err := c.relinfo.Refresh(ctx, testutil.OrdersRelID, catalog.PartTypeRange, "order_date", false)
	require.NoError(t, err)
	c.relinfo.Release(prior)

	for _, child := range prior.Children() {
		require.NoError(t, mem.Detach(child))
	}

	d, err := c.relinfo.Refresh(ctx, testutil.OrdersRelID, catalog.PartTypeRange, "order_date", false)
	require.ErrorIs(t, err, ErrEmptyPartitionSet)
	assert.Nil(t, d)

	got, ok := c.relinfo.Get(testutil.OrdersRelID)
	require.True(t, ok)
	defer c.relinfo.Release(got)

	assert.Same(t, prior, got)
	assert.False(t, got.IsStale())
	assert.Len(t, got.Ranges(), 3)
}

func TestRefresh_EmptyPartitionSet(t *testing.T) {
	ctx := context.Background()
	c := newTestCaches(t, testutil.NewCatalog(t))

	d, err := c.relinfo.Refresh(ctx, testutil.EmptyLogsRelID, catalog.PartTypeRange, "id", false)
	require.ErrorIs(t, err, ErrEmptyPartitionSet)
	assert.Nil(t, d)
	assert.Equal(t, 0, c.relinfo.Len())
}

func TestRefresh_AllowIncompleteUnpublishes(t *testing.T) {
	ctx := context.Background()
	mem := testutil.NewCatalog(t)
	c := newTestCaches(t, mem)

	prior, err := c.relinfo.Refresh(ctx, testutil.OrdersRelID, catalog.PartTypeRange, "order_date", false)
	require.NoError(t, err)
	c.relinfo.Release(prior)

	for _, child := range prior.Children() {
		require.NoError(t, mem.Detach(child))
	}

	d, err := c.relinfo.Refresh(ctx, testutil.OrdersRelID, catalog.PartTypeRange, "order_date", true)
	require.NoError(t, err)
	assert.Nil(t, d)

	assert.False(t, c.relinfo.Has(testutil.OrdersRelID))
	assert.True(t, prior.IsFreed())
}

func TestRefresh_ReplacesDescriptor(t *testing.T) {
	ctx := context.Background()
	mem := testutil.NewCatalog(t)
	c := newTestCaches(t, mem)

	first, err := c.relinfo.Refresh(ctx, testutil.OrdersRelID, catalog.PartTypeRange, "order_date", false)
	require.NoError(t, err)

	_, err = c.bounds.GetBoundsOf(testutil.Orders2020RelID, first)
	require.NoError(t, err)
	require.Equal(t, 1, c.bounds.Len())

	require.NoError(t, mem.Detach(testutil.Orders2021RelID))

	second, err := c.relinfo.Refresh(ctx, testutil.OrdersRelID, catalog.PartTypeRange, "order_date", false)
	require.NoError(t, err)
	defer c.relinfo.Release(second)

	assert.Greater(t, second.Generation(), first.Generation())
	assert.True(t, first.IsStale())
	assert.False(t, first.IsFreed())
	assert.Equal(t, 2, second.ChildrenCount())

	// bounds of the replaced generation are gone, the detached child lost its link
	assert.Equal(t, 0, c.bounds.Len())
	_, ok := c.parents.Cached(testutil.Orders2021RelID)
	assert.False(t, ok)

	parent, ok := c.parents.Cached(testutil.Orders2020RelID)
	require.True(t, ok)
	assert.Equal(t, testutil.OrdersRelID, parent)

	c.relinfo.Release(first)
	assert.True(t, first.IsFreed())
}

func TestRefresh_CachesAndForgetsParentLinks(t *testing.T) {
	ctx := context.Background()
	c := newTestCaches(t, testutil.NewCatalog(t))

	d, err := c.relinfo.Refresh(ctx, testutil.OrdersRelID, catalog.PartTypeRange, "order_date", false)
	require.NoError(t, err)
	c.relinfo.Release(d)

	assert.ElementsMatch(t, d.Children(), c.parents.Children(testutil.OrdersRelID))

	// a child re-pointed elsewhere must survive invalidation of its old parent
	c.parents.CacheParentOf(testutil.OrdersOldRelID, 30000)

	c.relinfo.Invalidate(testutil.OrdersRelID)

	assert.Empty(t, c.parents.Children(testutil.OrdersRelID))

	parent, ok := c.parents.Cached(testutil.OrdersOldRelID)
	require.True(t, ok)
	assert.Equal(t, catalog.RelID(30000), parent)
}

func TestRefresh_Hash(t *testing.T) {
	ctx := context.Background()
	c := newTestCaches(t, testutil.NewCatalog(t))

	d, err := c.relinfo.Refresh(ctx, testutil.EventsRelID, catalog.PartTypeHash, "user_id", false)
	require.NoError(t, err)
	defer c.relinfo.Release(d)

	assert.Equal(t, []catalog.RelID{21003, 21002, 21004, 21001}, d.Children())
	assert.Nil(t, d.Ranges())
	assert.True(t, d.EnableParent())
	assert.NotNil(t, d.HashFunc())

	slot, ok := d.ChildIndex(21004)
	require.True(t, ok)
	assert.Equal(t, 2, slot)

	e, err := c.bounds.GetBoundsOf(21004, d)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), e.HashSlot)
	assert.Equal(t, catalog.PartTypeHash, e.PartType)
}

func newRangeCatalog(t *testing.T, parts ...[2]int64) *catalog.Memory {
	t.Helper()

	mem := catalog.NewMemory(nil)
	cols := []catalog.Column{{Name: "id", Type: catalog.Int8OID, Typmod: -1, NotNull: true}}

	require.NoError(t, mem.AddRelation(30000, "t", cols...))
	require.NoError(t, mem.SetPartitioning(catalog.Config{RelID: 30000, PartType: catalog.PartTypeRange, Expr: "id"}))

	for i, p := range parts {
		child := catalog.RelID(30001 + i)
		require.NoError(t, mem.AddRelation(child, "t_part", cols...))
		require.NoError(t, mem.AttachRangePartition(30000, child, bound.MakeBound(p[0]), bound.MakeBound(p[1])))
	}

	return mem
}

func newHashCatalog(t *testing.T, slots ...uint32) *catalog.Memory {
	t.Helper()

	mem := catalog.NewMemory(nil)
	cols := []catalog.Column{{Name: "id", Type: catalog.Int4OID, Typmod: -1, NotNull: true}}

	require.NoError(t, mem.AddRelation(30000, "t", cols...))
	require.NoError(t, mem.SetPartitioning(catalog.Config{RelID: 30000, PartType: catalog.PartTypeHash, Expr: "id"}))

	for i, slot := range slots {
		child := catalog.RelID(30001 + i)
		require.NoError(t, mem.AddRelation(child, "t_part", cols...))
		require.NoError(t, mem.AttachHashPartition(30000, child, slot))
	}

	return mem
}

func TestRefresh_Validation(t *testing.T) {
	tests := []struct {
		name     string
		mem      func(t *testing.T) *catalog.Memory
		partType catalog.PartType
		expr     string
		wantErr  error
	}{
		{
			name:     "unknown partitioning type",
			mem:      func(t *testing.T) *catalog.Memory { return newRangeCatalog(t, [2]int64{0, 10}) },
			partType: catalog.PartType(7),
			expr:     "id",
			wantErr:  ErrInvalidPartitioningType,
		},
		{
			name:     "any is not a concrete type",
			mem:      func(t *testing.T) *catalog.Memory { return newRangeCatalog(t, [2]int64{0, 10}) },
			partType: catalog.PartTypeAny,
			expr:     "id",
			wantErr:  ErrInvalidPartitioningType,
		},
		{
			name:     "empty range",
			mem:      func(t *testing.T) *catalog.Memory { return newRangeCatalog(t, [2]int64{10, 10}) },
			partType: catalog.PartTypeRange,
			expr:     "id",
			wantErr:  ErrInvalidRange,
		},
		{
			name:     "inverted range",
			mem:      func(t *testing.T) *catalog.Memory { return newRangeCatalog(t, [2]int64{10, 0}) },
			partType: catalog.PartTypeRange,
			expr:     "id",
			wantErr:  ErrInvalidRange,
		},
		{
			name: "overlapping ranges",
			mem: func(t *testing.T) *catalog.Memory {
				t.Helper()
				return newRangeCatalog(t, [2]int64{0, 10}, [2]int64{5, 20})
			},
			partType: catalog.PartTypeRange,
			expr:     "id",
			wantErr:  ErrOverlappingRanges,
		},
		{
			name:     "hash slot out of range",
			mem:      func(t *testing.T) *catalog.Memory { return newHashCatalog(t, 0, 2) },
			partType: catalog.PartTypeHash,
			expr:     "id",
			wantErr:  ErrInvalidHashSlot,
		},
		{
			name:     "duplicate hash slot",
			mem:      func(t *testing.T) *catalog.Memory { return newHashCatalog(t, 1, 1) },
			partType: catalog.PartTypeHash,
			expr:     "id",
			wantErr:  ErrInvalidHashSlot,
		},
		{
			name:     "unknown column",
			mem:      func(t *testing.T) *catalog.Memory { return newRangeCatalog(t, [2]int64{0, 10}) },
			partType: catalog.PartTypeRange,
			expr:     "missing",
			wantErr:  catalog.ErrExpressionParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCaches(t, tt.mem(t))

			d, err := c.relinfo.Refresh(context.Background(), 30000, tt.partType, tt.expr, false)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, d)
			assert.Equal(t, 0, c.relinfo.Len())
			assert.Equal(t, 0, c.parents.Len())
		})
	}
}

func TestRefresh_GapsAllowed(t *testing.T) {
	c := newTestCaches(t, newRangeCatalog(t, [2]int64{20, 30}, [2]int64{0, 10}))

	d, err := c.relinfo.Refresh(context.Background(), 30000, catalog.PartTypeRange, "id", false)
	require.NoError(t, err)
	defer c.relinfo.Release(d)

	assert.Equal(t, []catalog.RelID{30002, 30001}, d.Children())
}

func TestRefresh_SystemRelation(t *testing.T) {
	c := newTestCaches(t, testutil.NewCatalog(t))

	_, err := c.relinfo.Refresh(context.Background(), 1259, catalog.PartTypeRange, "id", false)
	require.ErrorIs(t, err, ErrSystemRelation)
}

type failingCatalog struct {
	*catalog.Memory
	err error
}

func (f *failingCatalog) ListChildPartitions(_ context.Context, _ catalog.RelID) ([]catalog.ChildPartition, error) {
	return nil, f.err
}

func TestRefresh_CatalogFailurePropagates(t *testing.T) {
	ctx := context.Background()
	mem := testutil.NewCatalog(t)
	c := newTestCaches(t, mem)

	prior, err := c.relinfo.Refresh(ctx, testutil.OrdersRelID, catalog.PartTypeRange, "order_date", false)
	require.NoError(t, err)
	c.relinfo.Release(prior)

	boom := errors.New("catalog unavailable")
	c.relinfo.catalog = &failingCatalog{Memory: mem, err: boom}

	_, err = c.relinfo.Refresh(ctx, testutil.OrdersRelID, catalog.PartTypeRange, "order_date", false)
	require.ErrorIs(t, err, catalog.ErrCatalogLookupFailure)
	require.ErrorIs(t, err, boom)

	got, ok := c.relinfo.Get(testutil.OrdersRelID)
	require.True(t, ok)
	defer c.relinfo.Release(got)
	assert.Same(t, prior, got)
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	mem := testutil.NewCatalog(t)
	c := newTestCaches(t, mem)

	d, err := c.relinfo.Load(ctx, testutil.EventsRelID)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, catalog.PartTypeHash, d.PartType())
	assert.True(t, d.EnableParent())

	again, err := c.relinfo.Load(ctx, testutil.EventsRelID)
	require.NoError(t, err)
	assert.Same(t, d, again)
	assert.Equal(t, 2, d.RefCount())

	c.relinfo.Release(d)
	c.relinfo.Release(again)
}

func TestLoad_TrivialAndSystemRelations(t *testing.T) {
	ctx := context.Background()
	c := newTestCaches(t, testutil.NewCatalog(t))

	d, err := c.relinfo.Load(ctx, testutil.EmptyLogsRelID)
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = c.relinfo.Load(ctx, 1259)
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestLoad_NegativeEntryUntilInvalidated(t *testing.T) {
	ctx := context.Background()
	mem := testutil.NewCatalog(t)
	c := newTestCaches(t, mem)

	d, err := c.relinfo.Load(ctx, testutil.CustomersRelID)
	require.NoError(t, err)
	assert.Nil(t, d)

	require.NoError(t, mem.AddRelation(22001, "customers_1", catalog.Column{Name: "id", Type: catalog.Int8OID, Typmod: -1, NotNull: true}))
	require.NoError(t, mem.AttachRangePartition(testutil.CustomersRelID, 22001,
		bound.MakeInfiniteBound(bound.MinusInfinity), bound.MakeInfiniteBound(bound.PlusInfinity)))
	require.NoError(t, mem.SetPartitioning(catalog.Config{RelID: testutil.CustomersRelID, PartType: catalog.PartTypeRange, Expr: "id"}))

	d, err = c.relinfo.Load(ctx, testutil.CustomersRelID)
	require.NoError(t, err)
	assert.Nil(t, d)

	c.relinfo.Invalidate(testutil.CustomersRelID)

	d, err = c.relinfo.Load(ctx, testutil.CustomersRelID)
	require.NoError(t, err)
	require.NotNil(t, d)
	defer c.relinfo.Release(d)
	assert.Equal(t, []catalog.RelID{22001}, d.Children())
}

func TestShoutIfInvalid(t *testing.T) {
	ctx := context.Background()
	c := newTestCaches(t, testutil.NewCatalog(t))

	d, err := c.relinfo.Refresh(ctx, testutil.OrdersRelID, catalog.PartTypeRange, "order_date", false)
	require.NoError(t, err)
	c.relinfo.Release(d)

	tests := []struct {
		name     string
		desc     *Descriptor
		expected catalog.PartType
		wantErr  error
	}{
		{name: "matching type", desc: d, expected: catalog.PartTypeRange},
		{name: "any type", desc: d, expected: catalog.PartTypeAny},
		{name: "type changed", desc: d, expected: catalog.PartTypeHash, wantErr: ErrStaleDescriptorType},
		{name: "not partitioned", desc: nil, expected: catalog.PartTypeAny, wantErr: ErrNotPartitioned},
		{name: "no children", desc: &Descriptor{partType: catalog.PartTypeRange}, expected: catalog.PartTypeAny, wantErr: ErrEmptyPartitionSet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ShoutIfInvalid(testutil.OrdersRelID, tt.desc, tt.expected)
			if tt.wantErr == nil {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	c.relinfo.Invalidate(testutil.OrdersRelID)
	require.ErrorIs(t, ShoutIfInvalid(testutil.OrdersRelID, d, catalog.PartTypeRange), ErrDescriptorFreed)
}

func TestRelease_NegativeRefcountPanics(t *testing.T) {
	ctx := context.Background()
	c := newTestCaches(t, testutil.NewCatalog(t))

	d, err := c.relinfo.Refresh(ctx, testutil.OrdersRelID, catalog.PartTypeRange, "order_date", false)
	require.NoError(t, err)

	c.relinfo.Release(d)
	assert.Panics(t, func() { c.relinfo.Release(d) })
}

func TestDescriptor_LastChildEmpty(t *testing.T) {
	_, err := (&Descriptor{}).LastChild()
	require.ErrorIs(t, err, ErrEmptyPartitionSet)
}

func TestDescriptor_PartitionBounds(t *testing.T) {
	ctx := context.Background()
	c := newTestCaches(t, testutil.NewCatalog(t))

	d, err := c.relinfo.Refresh(ctx, testutil.OrdersRelID, catalog.PartTypeRange, "order_date", false)
	require.NoError(t, err)
	defer c.relinfo.Release(d)

	p, ok := d.PartitionBounds(testutil.OrdersOldRelID)
	require.True(t, ok)
	assert.True(t, p.Min.IsMinusInfinity())
	assert.Equal(t, 0, d.Compare(p.Max, date(t, "2020-01-01")))

	_, ok = d.PartitionBounds(testutil.EventsRelID)
	assert.False(t, ok)
}

package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFixture = `
collations:
  - {oid: 12345, locale: de}
tables:
  - relid: 30000
    name: sales
    columns:
      - {name: region, type: text, collation: 12345, notNull: true}
      - {name: sold_at, type: timestamptz, notNull: true}
    partitioning:
      type: range
      expr: sold_at
    partitions:
      - {relid: 30001, name: sales_h1, min: "2024-01-01T00:00:00Z", max: "2024-07-01T00:00:00Z"}
      - {relid: 30002, name: sales_h2, min: "2024-07-01T00:00:00Z", visible: false}
  - relid: 31000
    name: sessions
    columns:
      - {name: id, type: uuid, notNull: true}
    partitioning:
      type: hash
      expr: id
      enableParent: true
    partitions:
      - {relid: 31001, name: sessions_0, slot: 0}
      - {relid: 31002, name: sessions_1, slot: 1}
`

func TestLoadFixture(t *testing.T) {
	mem, err := LoadFixture([]byte(testFixture), nil)
	require.NoError(t, err)

	ctx := context.Background()

	cfg, err := mem.PartitioningConfig(ctx, 30000)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, PartTypeRange, cfg.PartType)
	assert.Equal(t, "sold_at", cfg.Expr)

	children, err := mem.ListChildPartitions(ctx, 30000)
	require.NoError(t, err)
	require.Len(t, children, 1, "invisible partitions are not listed")
	assert.Equal(t, RelID(30001), children[0].RelID)
	assert.True(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Equal(children[0].Min.Value().(time.Time)))

	cols, err := mem.Columns(ctx, 30001)
	require.NoError(t, err)
	require.Len(t, cols, 2, "partitions inherit the parent's columns")
	assert.Equal(t, uint32(12345), cols[0].Collation)

	hashCfg, err := mem.PartitioningConfig(ctx, 31000)
	require.NoError(t, err)
	require.NotNil(t, hashCfg)
	assert.True(t, hashCfg.EnableParent)

	hashChildren, err := mem.ListChildPartitions(ctx, 31000)
	require.NoError(t, err)
	require.Len(t, hashChildren, 2)
	assert.Equal(t, uint32(1), hashChildren[1].HashSlot)

	installed, err := mem.Installed(ctx)
	require.NoError(t, err)
	assert.True(t, installed)
}

func TestLoadFixture_OpenEndedBounds(t *testing.T) {
	mem, err := LoadFixture([]byte(testFixture), nil)
	require.NoError(t, err)
	require.NoError(t, mem.SetVisible(30002, true))

	children, err := mem.ListChildPartitions(context.Background(), 30000)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.True(t, children[1].Max.IsPlusInfinity())
}

func TestLoadFixture_Errors(t *testing.T) {
	tests := []struct {
		name    string
		fixture string
	}{
		{name: "not yaml", fixture: "tables: [: bad"},
		{name: "unknown type", fixture: `
tables:
  - {relid: 30000, name: a, columns: [{name: id, type: money}]}`},
		{name: "unknown partitioning type", fixture: `
tables:
  - relid: 30000
    name: a
    columns: [{name: id, type: int4, notNull: true}]
    partitioning: {type: list, expr: id}`},
		{name: "hash without slot", fixture: `
tables:
  - relid: 30000
    name: a
    columns: [{name: id, type: int4, notNull: true}]
    partitioning: {type: hash, expr: id}
    partitions: [{relid: 30001, name: a_0}]`},
		{name: "bad bound", fixture: `
tables:
  - relid: 30000
    name: a
    columns: [{name: id, type: int4, notNull: true}]
    partitioning: {type: range, expr: id}
    partitions: [{relid: 30001, name: a_0, min: "x"}]`},
		{name: "unknown partitioning column", fixture: `
tables:
  - relid: 30000
    name: a
    columns: [{name: id, type: int4, notNull: true}]
    partitioning: {type: range, expr: other}`},
		{name: "partitions without partitioning", fixture: `
tables:
  - relid: 30000
    name: a
    columns: [{name: id, type: int4}]
    partitions: [{relid: 30001, name: a_0}]`},
		{name: "duplicate relid", fixture: `
tables:
  - {relid: 30000, name: a, columns: [{name: id, type: int4}]}
  - {relid: 30000, name: b, columns: [{name: id, type: int4}]}`},
		{name: "bad collation", fixture: `
collations: [{oid: 1, locale: "!!"}]
tables: []`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFixture([]byte(tt.fixture), nil)
			require.ErrorIs(t, err, ErrInvalidFixture)
		})
	}
}

func TestLoadFixture_NotInstalled(t *testing.T) {
	mem, err := LoadFixture([]byte("installed: false\ntables: []\n"), nil)
	require.NoError(t, err)

	installed, err := mem.Installed(context.Background())
	require.NoError(t, err)
	assert.False(t, installed)
}

func TestLoadFixtureFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testFixture), 0o600))

	mem, err := LoadFixtureFile(path, NewTypes())
	require.NoError(t, err)
	assert.Len(t, mem.PartitionedRelations(), 2)

	_, err = LoadFixtureFile(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
}

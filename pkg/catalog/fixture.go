package catalog

import (
	"fmt"
	"os"

	"github.com/ethpandaops/partcache/pkg/bound"
	"gopkg.in/yaml.v3"
)

// Fixture is the YAML description of an in-memory catalog
type Fixture struct {
	Installed  *bool              `yaml:"installed,omitempty"`
	Collations []FixtureCollation `yaml:"collations,omitempty"`
	Tables     []FixtureTable     `yaml:"tables"`
}

// FixtureCollation maps a collation identifier to a locale
type FixtureCollation struct {
	OID    uint32 `yaml:"oid"`
	Locale string `yaml:"locale"`
}

// FixtureColumn describes one column
type FixtureColumn struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	Collation uint32 `yaml:"collation,omitempty"`
	NotNull   bool   `yaml:"notNull"`
}

// FixturePartitioning is the partitioning configuration of a table
type FixturePartitioning struct {
	Type         string `yaml:"type"`
	Expr         string `yaml:"expr"`
	EnableParent bool   `yaml:"enableParent"`
}

// FixturePartition is one child of a partitioned table.
// A missing min or max is an open-ended bound.
type FixturePartition struct {
	RelID   RelID   `yaml:"relid"`
	Name    string  `yaml:"name"`
	Min     *string `yaml:"min,omitempty"`
	Max     *string `yaml:"max,omitempty"`
	Slot    *uint32 `yaml:"slot,omitempty"`
	Visible *bool   `yaml:"visible,omitempty"`
}

// FixtureTable is a table and, when partitioned, its partitions
type FixtureTable struct {
	RelID        RelID                `yaml:"relid"`
	Name         string               `yaml:"name"`
	Columns      []FixtureColumn      `yaml:"columns"`
	Partitioning *FixturePartitioning `yaml:"partitioning,omitempty"`
	Partitions   []FixturePartition   `yaml:"partitions,omitempty"`
	Visible      *bool                `yaml:"visible,omitempty"`
}

// LoadFixtureFile reads a YAML fixture from disk into a new Memory catalog
func LoadFixtureFile(path string, types *Types) (*Memory, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided fixture path
	if err != nil {
		return nil, err
	}

	return LoadFixture(data, types)
}

// LoadFixture builds a Memory catalog from YAML
func LoadFixture(data []byte, types *Types) (*Memory, error) {
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFixture, err)
	}

	mem := NewMemory(types)

	if err := fx.apply(mem); err != nil {
		return nil, err
	}

	return mem, nil
}

func (fx *Fixture) apply(mem *Memory) error {
	for _, c := range fx.Collations {
		if err := mem.types.RegisterCollation(c.OID, c.Locale); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidFixture, err)
		}
	}

	for i := range fx.Tables {
		if err := fx.Tables[i].apply(mem); err != nil {
			return fmt.Errorf("%w: table %q: %w", ErrInvalidFixture, fx.Tables[i].Name, err)
		}
	}

	if fx.Installed != nil {
		mem.SetInstalled(*fx.Installed)
	}

	return nil
}

func (t *FixtureTable) apply(mem *Memory) error {
	columns, err := t.columns(mem.types)
	if err != nil {
		return err
	}

	if err := mem.AddRelation(t.RelID, t.Name, columns...); err != nil {
		return err
	}

	if t.Visible != nil {
		if err := mem.SetVisible(t.RelID, *t.Visible); err != nil {
			return err
		}
	}

	if t.Partitioning == nil {
		if len(t.Partitions) > 0 {
			return fmt.Errorf("partitions listed without partitioning")
		}

		return nil
	}

	partType, err := ParsePartTypeName(t.Partitioning.Type)
	if err != nil {
		return err
	}

	if err := mem.SetPartitioning(Config{
		RelID:        t.RelID,
		PartType:     partType,
		Expr:         t.Partitioning.Expr,
		EnableParent: t.Partitioning.EnableParent,
	}); err != nil {
		return err
	}

	valueType, err := t.valueType(columns)
	if err != nil {
		return err
	}

	for _, p := range t.Partitions {
		if err := t.attach(mem, partType, valueType, columns, p); err != nil {
			return fmt.Errorf("partition %q: %w", p.Name, err)
		}
	}

	return nil
}

func (t *FixtureTable) attach(mem *Memory, partType PartType, valueType TypeOID, columns []Column, p FixturePartition) error {
	if err := mem.AddRelation(p.RelID, p.Name, columns...); err != nil {
		return err
	}

	if p.Visible != nil {
		if err := mem.SetVisible(p.RelID, *p.Visible); err != nil {
			return err
		}
	}

	if partType == PartTypeHash {
		if p.Slot == nil {
			return fmt.Errorf("hash partition needs a slot")
		}

		return mem.AttachHashPartition(t.RelID, p.RelID, *p.Slot)
	}

	minBound, err := parseFixtureBound(mem.types, valueType, p.Min, bound.MinusInfinity)
	if err != nil {
		return err
	}

	maxBound, err := parseFixtureBound(mem.types, valueType, p.Max, bound.PlusInfinity)
	if err != nil {
		return err
	}

	return mem.AttachRangePartition(t.RelID, p.RelID, minBound, maxBound)
}

func (t *FixtureTable) columns(types *Types) ([]Column, error) {
	out := make([]Column, 0, len(t.Columns))

	for _, c := range t.Columns {
		def, ok := types.LookupName(c.Type)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownType, c.Type)
		}

		col := Column{Name: c.Name, Type: def.OID, Typmod: -1, Collation: c.Collation, NotNull: c.NotNull}
		if def.Collatable && col.Collation == InvalidCollation {
			col.Collation = DefaultCollation
		}

		out = append(out, col)
	}

	return out, nil
}

// valueType resolves the type of the partitioning column
func (t *FixtureTable) valueType(columns []Column) (TypeOID, error) {
	name, ok := normalizeColumnRef(t.Partitioning.Expr)
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrExpressionParse, t.Partitioning.Expr)
	}

	for _, c := range columns {
		if c.Name == name {
			return c.Type, nil
		}
	}

	return 0, fmt.Errorf("%w %q: unknown column", ErrExpressionParse, t.Partitioning.Expr)
}

func parseFixtureBound(types *Types, typ TypeOID, text *string, open bound.Infinity) (bound.Bound, error) {
	if text == nil {
		return bound.MakeInfiniteBound(open), nil
	}

	v, err := types.ParseValue(typ, *text)
	if err != nil {
		return bound.Bound{}, err
	}

	return bound.MakeBound(v), nil
}

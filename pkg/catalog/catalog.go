// Package catalog defines the external collaborators consumed by the partition caches
// together with an in-memory implementation and the builtin value types
package catalog

import (
	"context"
	"strings"

	"github.com/ethpandaops/partcache/pkg/bound"
)

// RelID identifies a relation
type RelID uint32

// TypeOID identifies a value type
type TypeOID uint32

const (
	// InvalidRelID is the zero relation identifier
	InvalidRelID RelID = 0
	// FirstNormalObjectID is the first identifier handed out to user relations.
	// Relations below it belong to the system catalog and are never cached.
	FirstNormalObjectID RelID = 16384
)

// Collation identifiers known without registration
const (
	InvalidCollation uint32 = 0
	DefaultCollation uint32 = 100
	CCollation       uint32 = 950
	POSIXCollation   uint32 = 951
)

// IsSystem reports whether relid belongs to the system catalog
func (r RelID) IsSystem() bool {
	return r < FirstNormalObjectID
}

// PartType is the partitioning strategy of a table
type PartType uint32

const (
	// PartTypeAny matches every strategy, used by callers that do not care
	PartTypeAny PartType = iota
	// PartTypeHash partitions rows by hash slot
	PartTypeHash
	// PartTypeRange partitions rows by value ranges
	PartTypeRange
)

// ParsePartType decodes a stored partitioning type code
func ParsePartType(code uint32) (PartType, error) {
	switch PartType(code) {
	case PartTypeHash, PartTypeRange:
		return PartType(code), nil
	default:
		return PartTypeAny, invalidPartType(code)
	}
}

// ParsePartTypeName decodes a partitioning type name such as "range" or "HASH"
func ParsePartTypeName(name string) (PartType, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "HASH", "1":
		return PartTypeHash, nil
	case "RANGE", "2":
		return PartTypeRange, nil
	default:
		return PartTypeAny, invalidPartTypeName(name)
	}
}

// Valid reports whether p is a concrete strategy
func (p PartType) Valid() bool {
	return p == PartTypeHash || p == PartTypeRange
}

// String returns the strategy name
func (p PartType) String() string {
	switch p {
	case PartTypeAny:
		return "ANY"
	case PartTypeHash:
		return "HASH"
	case PartTypeRange:
		return "RANGE"
	default:
		return "UNKNOWN"
	}
}

// Code returns the stored representation of a concrete strategy
func (p PartType) Code() (string, error) {
	switch p {
	case PartTypeHash:
		return "1", nil
	case PartTypeRange:
		return "2", nil
	default:
		return "", invalidPartType(uint32(p))
	}
}

// Config is the stored partitioning configuration of a table
type Config struct {
	RelID        RelID
	PartType     PartType
	Expr         string
	EnableParent bool
}

// ChildPartition is one partition as reported by the catalog.
// Min and Max are set for RANGE partitions, HashSlot for HASH partitions.
type ChildPartition struct {
	RelID    RelID
	Min      bound.Bound
	Max      bound.Bound
	HashSlot uint32
}

// ParentInfo is the answer to a parent lookup.
// Visible is false when the relation cannot be seen under the current snapshot.
type ParentInfo struct {
	Parent  RelID
	Visible bool
}

// HasParent reports whether a parent relation was found
func (p ParentInfo) HasParent() bool {
	return p.Parent != InvalidRelID
}

// TypeInfo describes how values of a type are stored and compared
type TypeInfo struct {
	OID       TypeOID
	Typmod    int32
	ByVal     bool
	Len       int16
	Align     byte
	Collation uint32
}

// HashFunc hashes a finite datum
type HashFunc func(d bound.Datum) uint32

// Expression is a compiled partitioning expression
type Expression interface {
	String() string
	Columns() []string
	ResultType() TypeOID
	ResultTypmod() int32
	Collation() uint32
}

// Catalog reads partitioning metadata
type Catalog interface {
	// PartitioningConfig returns nil when relid is not partitioned
	PartitioningConfig(ctx context.Context, relid RelID) (*Config, error)
	// ListChildPartitions returns the visible partitions ordered by relation id
	ListChildPartitions(ctx context.Context, relid RelID) ([]ChildPartition, error)
	// LookupRelationParent follows the inheritance catalog under snapshot visibility
	LookupRelationParent(ctx context.Context, relid RelID) (ParentInfo, error)
	// TypeMetadata returns byval, length, alignment and default collation of a type
	TypeMetadata(ctx context.Context, typ TypeOID) (TypeInfo, error)
	// Installed reports whether the partitioning configuration catalog exists
	Installed(ctx context.Context) (bool, error)
}

// FunctionResolver resolves support functions for a value type
type FunctionResolver interface {
	ResolveComparisonFunction(typ TypeOID) (bound.CmpFunc, error)
	ResolveHashFunction(typ TypeOID) (HashFunc, error)
}

// ExpressionCompiler turns partitioning expression text into an Expression
type ExpressionCompiler interface {
	CompilePartitioningExpression(ctx context.Context, relid RelID, expr string) (Expression, error)
}

// Column describes a table column
type Column struct {
	Name      string
	Type      TypeOID
	Typmod    int32
	Collation uint32
	NotNull   bool
}

// ColumnSource lists the columns of a relation
type ColumnSource interface {
	Columns(ctx context.Context, relid RelID) ([]Column, error)
}

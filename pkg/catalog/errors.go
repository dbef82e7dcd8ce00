package catalog

import (
	"errors"
	"fmt"
)

// Catalog-specific errors
var (
	ErrInvalidPartitioningType = errors.New("unknown partitioning type")
	ErrCatalogLookupFailure    = errors.New("catalog lookup failed")
	ErrUnknownRelation         = errors.New("relation does not exist")
	ErrUnknownType             = errors.New("type does not exist")
	ErrNoSupportFunction       = errors.New("type has no support function")
	ErrRelationExists          = errors.New("relation already exists")
	ErrAlreadyPartition        = errors.New("relation is already a partition")
	ErrNotAPartition           = errors.New("relation is not a partition")
	ErrExpressionParse         = errors.New("failed to parse partitioning expression")
	ErrNullableColumn          = errors.New("partitioning column should be marked NOT NULL")
	ErrInvalidFixture          = errors.New("invalid catalog fixture")
)

func invalidPartType(code uint32) error {
	return fmt.Errorf("%w %d", ErrInvalidPartitioningType, code)
}

func invalidPartTypeName(name string) error {
	return fmt.Errorf("%w %q", ErrInvalidPartitioningType, name)
}

// LookupFailure wraps a collaborator error so callers can match ErrCatalogLookupFailure
// while the original error stays reachable through errors.Is/As.
func LookupFailure(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrCatalogLookupFailure) {
		return err
	}

	return fmt.Errorf("%w: %s: %w", ErrCatalogLookupFailure, op, err)
}

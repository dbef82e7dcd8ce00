package relinfo

import (
	"errors"

	"github.com/ethpandaops/partcache/pkg/catalog"
)

// Descriptor cache errors
var (
	ErrInvalidPartitioningType = catalog.ErrInvalidPartitioningType
	ErrEmptyPartitionSet       = errors.New("relation has no partitions")
	ErrStaleDescriptorType     = errors.New("partitioning type of relation changed")
	ErrNotPartitioned          = errors.New("relation is not partitioned")
	ErrInvalidRange            = errors.New("partition range is empty")
	ErrOverlappingRanges       = errors.New("partition ranges overlap")
	ErrInvalidHashSlot         = errors.New("hash partition slots do not form a permutation")
	ErrSystemRelation          = errors.New("system relations are never cached")
	ErrDescriptorFreed         = errors.New("descriptor used after it was freed")
)

package bounds

import "errors"

// Bounds cache errors
var (
	ErrNotAPartition = errors.New("relation is not a partition of the descriptor")
	ErrNoSource      = errors.New("bounds need an owning descriptor")
)

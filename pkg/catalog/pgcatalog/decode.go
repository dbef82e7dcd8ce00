package pgcatalog

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/ethpandaops/partcache/pkg/bound"
	"github.com/ethpandaops/partcache/pkg/catalog"
	"github.com/jackc/pgtype"
)

// hashSlotPattern matches the tail of a pg_pathman hash check constraint,
// e.g. CHECK ((get_hash_part_idx(hashint4(id), 4) = 2))
var hashSlotPattern = regexp.MustCompile(`=\s*(\d+)[\s)]*$`)

// parseHashSlot extracts the partition index from a hash check constraint
func parseHashSlot(constraint string) (uint32, error) {
	m := hashSlotPattern.FindStringSubmatch(constraint)
	if m == nil {
		return 0, fmt.Errorf("%w: no slot in constraint %q", ErrMalformedConstraint, constraint)
	}

	slot, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMalformedConstraint, err)
	}

	return uint32(slot), nil
}

// decodeBound turns a range bound as printed by PostgreSQL into a Bound.
// NULL stands for an open end.
func decodeBound(ci *pgtype.ConnInfo, typ catalog.TypeOID, text *string, open bound.Infinity) (bound.Bound, error) {
	if text == nil {
		return bound.MakeInfiniteBound(open), nil
	}

	dt, ok := ci.DataTypeForOID(uint32(typ))
	if !ok {
		return bound.Bound{}, fmt.Errorf("%w: %d", catalog.ErrUnknownType, typ)
	}

	// decode into a fresh value, the registered one is shared
	value := pgtype.NewValue(dt.Value)

	decoder, ok := value.(pgtype.TextDecoder)
	if !ok {
		return bound.Bound{}, fmt.Errorf("%w: %s has no text decoder", catalog.ErrUnknownType, dt.Name)
	}

	if err := decoder.DecodeText(ci, []byte(*text)); err != nil {
		return bound.Bound{}, fmt.Errorf("failed to decode %s bound %q: %w", dt.Name, *text, err)
	}

	datum, err := toDatum(value.Get())
	if err != nil {
		return bound.Bound{}, err
	}

	return bound.MakeBound(datum), nil
}

// toDatum maps pgtype values onto the representation used by catalog.Types
func toDatum(v any) (bound.Datum, error) {
	switch d := v.(type) {
	case int32, int64:
		return d, nil
	case int16:
		return int32(d), nil
	case time.Time:
		return d.UTC(), nil
	case string:
		return []byte(d), nil
	case []byte:
		return append([]byte(nil), d...), nil
	case [16]byte:
		return append([]byte(nil), d[:]...), nil
	case pgtype.InfinityModifier:
		return nil, fmt.Errorf("%w: infinite value %s", ErrUnsupportedBound, d)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedBound, v)
	}
}

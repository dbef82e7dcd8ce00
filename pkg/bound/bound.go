// Package bound provides the range bound algebra used by partition descriptors
package bound

import (
	"fmt"
)

// Datum is an opaque partitioning value.
// By-value datums are plain Go scalars, by-reference datums are []byte or implement Copyable.
type Datum = any

// Copyable is implemented by by-reference datums that know how to deep-copy themselves
type Copyable interface {
	CopyDatum() Datum
}

// CmpFunc compares two finite datums under the given collation
type CmpFunc func(collation uint32, a, b Datum) int

// Infinity tags a bound as finite or open-ended
type Infinity int8

const (
	// Finite marks a bound carrying a value
	Finite Infinity = 0
	// PlusInfinity is greater than every other bound
	PlusInfinity Infinity = 1
	// MinusInfinity is less than every other bound
	MinusInfinity Infinity = -1
)

// Bound is a value on the partitioning axis, possibly infinite
type Bound struct {
	value    Datum
	infinity Infinity
}

// MakeBound returns a finite bound holding v
func MakeBound(v Datum) Bound {
	return Bound{value: v, infinity: Finite}
}

// MakeInfiniteBound returns an open-ended bound
func MakeInfiniteBound(sign Infinity) Bound {
	if sign == Finite {
		panic("bound: MakeInfiniteBound called with Finite")
	}

	return Bound{infinity: sign}
}

// IsInfinite reports whether b is open-ended
func (b Bound) IsInfinite() bool { return b.infinity != Finite }

// IsPlusInfinity reports whether b is +inf
func (b Bound) IsPlusInfinity() bool { return b.infinity == PlusInfinity }

// IsMinusInfinity reports whether b is -inf
func (b Bound) IsMinusInfinity() bool { return b.infinity == MinusInfinity }

// Sign returns the infinity tag of b
func (b Bound) Sign() Infinity { return b.infinity }

// Value returns the payload of a finite bound
func (b Bound) Value() Datum {
	if b.IsInfinite() {
		panic("bound: Value called on infinite bound")
	}

	return b.value
}

// String renders b for logs, infinite bounds render as NULL
func (b Bound) String() string {
	if b.IsInfinite() {
		return "NULL"
	}

	switch v := b.value.(type) {
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// CopyBound copies b into a longer-lived owner.
// Finite by-reference payloads are deep-copied, everything else is returned as is.
func CopyBound(b Bound, byval bool, typLen int) Bound {
	if b.IsInfinite() || byval {
		return b
	}

	return Bound{value: copyDatum(b.value, typLen), infinity: Finite}
}

func copyDatum(v Datum, typLen int) Datum {
	switch d := v.(type) {
	case nil:
		return nil
	case []byte:
		n := len(d)
		if typLen > 0 && typLen < n {
			n = typLen
		}

		out := make([]byte, n)
		copy(out, d[:n])

		return out
	case Copyable:
		return d.CopyDatum()
	default:
		// immutable values (strings, scalars) can be shared
		return v
	}
}

// FreeBound releases the payload of a finite by-reference bound.
// Freeing an already freed, infinite or by-value bound is a no-op.
func FreeBound(b *Bound, byval bool) {
	if b == nil || b.IsInfinite() || byval {
		return
	}

	b.value = nil
}

// CompareBounds orders two bounds, returning -1, 0 or 1.
// -inf is the unique minimum and +inf the unique maximum; finite bounds use cmp.
func CompareBounds(cmp CmpFunc, collation uint32, b1, b2 Bound) int {
	if b1.IsInfinite() || b2.IsInfinite() {
		return compareInfinities(b1.infinity, b2.infinity)
	}

	if cmp == nil {
		panic("bound: CompareBounds needs a comparison function for finite bounds")
	}

	switch r := cmp(collation, b1.value, b2.value); {
	case r < 0:
		return -1
	case r > 0:
		return 1
	default:
		return 0
	}
}

// compareInfinities works because Finite sits between the two infinity tags
func compareInfinities(a, b Infinity) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

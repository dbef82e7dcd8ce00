package catalog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/ethpandaops/partcache/pkg/bound"
	"github.com/google/uuid"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Builtin type identifiers
const (
	Int8OID        TypeOID = 20
	Int4OID        TypeOID = 23
	TextOID        TypeOID = 25
	DateOID        TypeOID = 1082
	TimestampOID   TypeOID = 1114
	TimestampTZOID TypeOID = 1184
	UUIDOID        TypeOID = 2950
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05.999999"
	// timestampTZLayout accepts hour offsets as PostgreSQL prints them, e.g. +00
	timestampTZLayout = "2006-01-02 15:04:05.999999Z07"
)

// TypeDef describes a value type and its support functions
type TypeDef struct {
	OID        TypeOID
	Name       string
	ByVal      bool
	Len        int16
	Align      byte
	Collatable bool

	Parse   func(s string) (bound.Datum, error)
	Format  func(d bound.Datum) string
	Compare bound.CmpFunc
	Hash    HashFunc
}

// Types is a registry of value types and collations
type Types struct {
	mu         sync.RWMutex
	byOID      map[TypeOID]TypeDef
	byName     map[string]TypeOID
	collations map[uint32]*sync.Pool
}

// NewTypes creates a registry holding the builtin types
func NewTypes() *Types {
	t := &Types{
		byOID:      make(map[TypeOID]TypeDef),
		byName:     make(map[string]TypeOID),
		collations: make(map[uint32]*sync.Pool),
	}

	for _, def := range t.builtins() {
		t.Register(def)
	}

	return t
}

// Register adds or replaces a type definition
func (t *Types) Register(def TypeDef) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.byOID[def.OID] = def
	t.byName[strings.ToLower(def.Name)] = def.OID
}

// RegisterCollation maps a collation identifier to a locale
func (t *Types) RegisterCollation(oid uint32, locale string) error {
	tag, err := language.Parse(locale)
	if err != nil {
		return fmt.Errorf("invalid locale %q for collation %d: %w", locale, oid, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// one pool per collation, a collator serves a single goroutine at a time
	t.collations[oid] = &sync.Pool{
		New: func() any { return collate.New(tag) },
	}

	return nil
}

// Lookup returns the definition of a type
func (t *Types) Lookup(oid TypeOID) (TypeDef, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	def, ok := t.byOID[oid]

	return def, ok
}

// LookupName returns the definition of a type by name
func (t *Types) LookupName(name string) (TypeDef, bool) {
	t.mu.RLock()
	oid, ok := t.byName[strings.ToLower(strings.TrimSpace(name))]
	t.mu.RUnlock()

	if !ok {
		return TypeDef{}, false
	}

	return t.Lookup(oid)
}

// Info returns the storage metadata of a type
func (t *Types) Info(oid TypeOID) (TypeInfo, error) {
	def, ok := t.Lookup(oid)
	if !ok {
		return TypeInfo{}, fmt.Errorf("%w: %d", ErrUnknownType, oid)
	}

	info := TypeInfo{
		OID:    def.OID,
		Typmod: -1,
		ByVal:  def.ByVal,
		Len:    def.Len,
		Align:  def.Align,
	}
	if def.Collatable {
		info.Collation = DefaultCollation
	}

	return info, nil
}

// ResolveComparisonFunction implements FunctionResolver
func (t *Types) ResolveComparisonFunction(oid TypeOID) (bound.CmpFunc, error) {
	def, ok := t.Lookup(oid)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, oid)
	}

	if def.Compare == nil {
		return nil, fmt.Errorf("%w: no comparison function for %s", ErrNoSupportFunction, def.Name)
	}

	return def.Compare, nil
}

// ResolveHashFunction implements FunctionResolver
func (t *Types) ResolveHashFunction(oid TypeOID) (HashFunc, error) {
	def, ok := t.Lookup(oid)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, oid)
	}

	if def.Hash == nil {
		return nil, fmt.Errorf("%w: no hash function for %s", ErrNoSupportFunction, def.Name)
	}

	return def.Hash, nil
}

// ParseValue parses the text representation of a value of type oid
func (t *Types) ParseValue(oid TypeOID, s string) (bound.Datum, error) {
	def, ok := t.Lookup(oid)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, oid)
	}

	return def.Parse(s)
}

// FormatBound renders a bound using the type's output format
func (t *Types) FormatBound(oid TypeOID, b bound.Bound) string {
	if b.IsInfinite() {
		if b.IsMinusInfinity() {
			return "-infinity"
		}

		return "+infinity"
	}

	def, ok := t.Lookup(oid)
	if !ok || def.Format == nil {
		return b.String()
	}

	return def.Format(b.Value())
}

// HashSlot maps a hash value onto one of n partitions
func HashSlot(hash, partitions uint32) uint32 {
	if partitions == 0 {
		return 0
	}

	return hash % partitions
}

func (t *Types) builtins() []TypeDef {
	return []TypeDef{
		{
			OID: Int4OID, Name: "int4", ByVal: true, Len: 4, Align: 'i',
			Parse: func(s string) (bound.Datum, error) {
				v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
				if err != nil {
					return nil, err
				}

				return int32(v), nil
			},
			Format:  func(d bound.Datum) string { return strconv.FormatInt(int64(d.(int32)), 10) },
			Compare: func(_ uint32, a, b bound.Datum) int { return compareOrdered(a.(int32), b.(int32)) },
			Hash: func(d bound.Datum) uint32 {
				var buf [4]byte
				binary.LittleEndian.PutUint32(buf[:], uint32(d.(int32)))

				return fold(xxhash.Sum64(buf[:]))
			},
		},
		{
			OID: Int8OID, Name: "int8", ByVal: true, Len: 8, Align: 'd',
			Parse: func(s string) (bound.Datum, error) {
				return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			},
			Format:  func(d bound.Datum) string { return strconv.FormatInt(d.(int64), 10) },
			Compare: func(_ uint32, a, b bound.Datum) int { return compareOrdered(a.(int64), b.(int64)) },
			Hash:    hashInt64,
		},
		{
			OID: DateOID, Name: "date", ByVal: true, Len: 4, Align: 'i',
			Parse:   parseTime(dateLayout),
			Format:  func(d bound.Datum) string { return d.(time.Time).Format(dateLayout) },
			Compare: compareTime,
			Hash:    hashTime,
		},
		{
			OID: TimestampOID, Name: "timestamp", ByVal: true, Len: 8, Align: 'd',
			Parse:   parseTime(timestampLayout, time.RFC3339Nano, dateLayout),
			Format:  func(d bound.Datum) string { return d.(time.Time).Format(timestampLayout) },
			Compare: compareTime,
			Hash:    hashTime,
		},
		{
			OID: TimestampTZOID, Name: "timestamptz", ByVal: true, Len: 8, Align: 'd',
			Parse:   parseTime(time.RFC3339Nano, timestampTZLayout, dateLayout),
			Format:  func(d bound.Datum) string { return d.(time.Time).Format(time.RFC3339Nano) },
			Compare: compareTime,
			Hash:    hashTime,
		},
		{
			OID: TextOID, Name: "text", ByVal: false, Len: -1, Align: 'i', Collatable: true,
			Parse:   func(s string) (bound.Datum, error) { return []byte(s), nil },
			Format:  func(d bound.Datum) string { return string(d.([]byte)) },
			Compare: t.compareText,
			Hash:    func(d bound.Datum) uint32 { return fold(xxhash.Sum64(d.([]byte))) },
		},
		{
			OID: UUIDOID, Name: "uuid", ByVal: false, Len: 16, Align: 'c',
			Parse: func(s string) (bound.Datum, error) {
				id, err := uuid.Parse(strings.TrimSpace(s))
				if err != nil {
					return nil, err
				}

				return id[:], nil
			},
			Format: func(d bound.Datum) string {
				id, err := uuid.FromBytes(d.([]byte))
				if err != nil {
					return fmt.Sprintf("%x", d)
				}

				return id.String()
			},
			Compare: func(_ uint32, a, b bound.Datum) int { return bytes.Compare(a.([]byte), b.([]byte)) },
			Hash:    func(d bound.Datum) uint32 { return fold(xxhash.Sum64(d.([]byte))) },
		},
	}
}

// compareText honours registered collations, everything else compares bytewise
func (t *Types) compareText(collation uint32, a, b bound.Datum) int {
	x, y := a.([]byte), b.([]byte)

	t.mu.RLock()
	pool, ok := t.collations[collation]
	t.mu.RUnlock()

	if !ok {
		return bytes.Compare(x, y)
	}

	c, _ := pool.Get().(*collate.Collator)
	defer pool.Put(c)

	return c.Compare(x, y)
}

func compareOrdered[T int32 | int64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareTime(_ uint32, a, b bound.Datum) int {
	return a.(time.Time).Compare(b.(time.Time))
}

func parseTime(layouts ...string) func(string) (bound.Datum, error) {
	return func(s string) (bound.Datum, error) {
		var lastErr error

		for _, layout := range layouts {
			v, err := time.Parse(layout, strings.TrimSpace(s))
			if err == nil {
				return v.UTC(), nil
			}
			lastErr = err
		}

		return nil, lastErr
	}
}

func hashInt64(d bound.Datum) uint32 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(d.(int64)))

	return fold(xxhash.Sum64(buf[:]))
}

func hashTime(d bound.Datum) uint32 {
	return hashInt64(d.(time.Time).UnixNano())
}

func fold(h uint64) uint32 {
	return uint32(h) ^ uint32(h>>32)
}

package testutil

import (
	"testing"

	"github.com/ethpandaops/partcache/pkg/catalog"
	"github.com/sirupsen/logrus"
)

// Relation identifiers used by CatalogFixture
const (
	OrdersRelID     catalog.RelID = 20000
	Orders2021RelID catalog.RelID = 20001
	Orders2020RelID catalog.RelID = 20002
	OrdersOldRelID  catalog.RelID = 20003

	EventsRelID catalog.RelID = 21000

	CustomersRelID catalog.RelID = 22000

	EmptyLogsRelID catalog.RelID = 23000
)

// CatalogFixture describes:
//   - orders, RANGE on order_date with children listed out of bound order
//   - events, HASH on user_id with four children
//   - customers, a plain table
//   - empty_logs, RANGE on id without children
const CatalogFixture = `
installed: true
tables:
  - relid: 20000
    name: orders
    columns:
      - {name: id, type: int8, notNull: true}
      - {name: order_date, type: date, notNull: true}
      - {name: note, type: text}
    partitioning:
      type: range
      expr: order_date
    partitions:
      - {relid: 20001, name: orders_2021, min: "2021-01-01"}
      - {relid: 20002, name: orders_2020, min: "2020-01-01", max: "2021-01-01"}
      - {relid: 20003, name: orders_old, max: "2020-01-01"}
  - relid: 21000
    name: events
    columns:
      - {name: user_id, type: int4, notNull: true}
      - {name: payload, type: text}
    partitioning:
      type: hash
      expr: user_id
      enableParent: true
    partitions:
      - {relid: 21001, name: events_3, slot: 3}
      - {relid: 21002, name: events_1, slot: 1}
      - {relid: 21003, name: events_0, slot: 0}
      - {relid: 21004, name: events_2, slot: 2}
  - relid: 22000
    name: customers
    columns:
      - {name: id, type: int8, notNull: true}
  - relid: 23000
    name: empty_logs
    columns:
      - {name: id, type: int8, notNull: true}
    partitioning:
      type: range
      expr: id
`

// NewCatalog loads CatalogFixture into a fresh in-memory catalog
func NewCatalog(t *testing.T) *catalog.Memory {
	t.Helper()

	mem, err := catalog.LoadFixture([]byte(CatalogFixture), catalog.NewTypes())
	if err != nil {
		t.Fatalf("failed to load catalog fixture: %v", err)
	}

	return mem
}

// NewLogger returns a logger that only reports panics
func NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	return log
}

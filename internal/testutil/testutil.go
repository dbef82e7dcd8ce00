// Package testutil provides test utilities for partcache, including:
//   - Catalog fixtures with partitioned tables (catalog.go)
//   - Miniredis helpers for unit tests (miniredis.go)
//
// None of the helpers need external services.
package testutil

package session

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethpandaops/partcache/pkg/catalog"
	"github.com/ethpandaops/partcache/pkg/catalog/pgcatalog"
	"github.com/sirupsen/logrus"
)

// Backend bundles the collaborators the caches read metadata through
type Backend struct {
	Catalog  catalog.Catalog
	Resolver catalog.FunctionResolver
	Compiler catalog.ExpressionCompiler
	Types    *catalog.Types

	relations func(ctx context.Context) ([]catalog.RelID, error)
	names     func(ctx context.Context, relid catalog.RelID) (string, error)
	lookup    func(ctx context.Context, name string) (catalog.RelID, bool, error)
	close     func()
}

// NewMemoryBackend serves metadata from an in-memory catalog
func NewMemoryBackend(mem *catalog.Memory) *Backend {
	return &Backend{
		Catalog:  mem,
		Resolver: mem,
		Compiler: catalog.NewColumnCompiler(mem),
		Types:    mem.Types(),
		relations: func(context.Context) ([]catalog.RelID, error) {
			return mem.PartitionedRelations(), nil
		},
		names: func(_ context.Context, relid catalog.RelID) (string, error) {
			return mem.RelationName(relid), nil
		},
		lookup: func(_ context.Context, name string) (catalog.RelID, bool, error) {
			relid, ok := mem.RelationByName(name)

			return relid, ok, nil
		},
	}
}

// NewPostgresBackend serves metadata from a pg_pathman database
func NewPostgresBackend(pg *pgcatalog.Catalog) *Backend {
	return &Backend{
		Catalog:   pg,
		Resolver:  pg,
		Compiler:  pg,
		Types:     pg.Types(),
		relations: pg.PartitionedRelations,
		names:     pg.RelationName,
		lookup:    pg.RelationByName,
		close:     pg.Close,
	}
}

// OpenBackend opens the backend selected by cfg
func OpenBackend(ctx context.Context, log logrus.FieldLogger, cfg *CatalogConfig) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog configuration: %w", err)
	}

	types := catalog.NewTypes()

	if cfg.Fixture != "" {
		mem, err := catalog.LoadFixtureFile(cfg.Fixture, types)
		if err != nil {
			return nil, fmt.Errorf("failed to load catalog fixture: %w", err)
		}

		log.WithField("fixture", cfg.Fixture).Info("Loaded catalog fixture")

		return NewMemoryBackend(mem), nil
	}

	pg, err := pgcatalog.Connect(ctx, log, cfg.Postgres, types)
	if err != nil {
		return nil, err
	}

	return NewPostgresBackend(pg), nil
}

// PartitionedRelations lists every relation with a partitioning configuration
func (b *Backend) PartitionedRelations(ctx context.Context) ([]catalog.RelID, error) {
	if b.relations == nil {
		return nil, nil
	}

	return b.relations(ctx)
}

// RelationName returns a display name for relid, falling back to the identifier
func (b *Backend) RelationName(ctx context.Context, relid catalog.RelID) string {
	if b.names != nil {
		if name, err := b.names(ctx, relid); err == nil && name != "" {
			return name
		}
	}

	return strconv.FormatUint(uint64(relid), 10)
}

// ResolveRelation accepts a relation identifier or name
func (b *Backend) ResolveRelation(ctx context.Context, ref string) (catalog.RelID, error) {
	if id, err := strconv.ParseUint(ref, 10, 32); err == nil {
		return catalog.RelID(id), nil
	}

	if b.lookup != nil {
		relid, ok, err := b.lookup(ctx, ref)
		if err != nil {
			return catalog.InvalidRelID, err
		}

		if ok {
			return relid, nil
		}
	}

	return catalog.InvalidRelID, fmt.Errorf("%w: %q", catalog.ErrUnknownRelation, ref)
}

// Close releases backend resources
func (b *Backend) Close() {
	if b.close != nil {
		b.close()
	}
}

package pgcatalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethpandaops/partcache/pkg/bound"
	"github.com/ethpandaops/partcache/pkg/catalog"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/sirupsen/logrus"
)

// querier is the subset of *pgxpool.Pool used by Catalog
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Catalog implements catalog.Catalog, catalog.FunctionResolver and
// catalog.ExpressionCompiler on top of a pg_pathman installation
type Catalog struct {
	log      logrus.FieldLogger
	cfg      Config
	pool     *pgxpool.Pool
	db       querier
	types    *catalog.Types
	connInfo *pgtype.ConnInfo
	compiler *catalog.ColumnCompiler
	queries  queries
}

var (
	_ catalog.Catalog            = (*Catalog)(nil)
	_ catalog.FunctionResolver   = (*Catalog)(nil)
	_ catalog.ExpressionCompiler = (*Catalog)(nil)
	_ catalog.ColumnSource       = (*Catalog)(nil)
)

// Connect opens a connection pool and verifies it with a ping
func Connect(ctx context.Context, log logrus.FieldLogger, cfg Config, types *catalog.Types) (*Catalog, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid postgres config: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnLifetime

	log = log.WithField("service", "pgcatalog")
	log.WithField("schema", cfg.Schema).Debug("Connecting to postgres")

	pool, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()

		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	c := newCatalog(log, cfg, pool, types)
	c.pool = pool

	log.Info("Connected to postgres")

	return c, nil
}

func newCatalog(log logrus.FieldLogger, cfg Config, db querier, types *catalog.Types) *Catalog {
	if types == nil {
		types = catalog.NewTypes()
	}

	c := &Catalog{
		log:      log,
		cfg:      cfg,
		db:       db,
		types:    types,
		connInfo: pgtype.NewConnInfo(),
		queries:  newQueries(cfg.Schema),
	}
	c.compiler = catalog.NewColumnCompiler(c)

	return c
}

// Close releases the connection pool
func (c *Catalog) Close() {
	if c.pool != nil {
		c.pool.Close()
	}
}

// Types returns the value type registry used to decode bounds
func (c *Catalog) Types() *catalog.Types {
	return c.types
}

func (c *Catalog) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.QueryTimeout)
}

// Installed implements catalog.Catalog
func (c *Catalog) Installed(ctx context.Context) (bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var installed bool
	if err := c.db.QueryRow(ctx, c.queries.installed, c.queries.configTable).Scan(&installed); err != nil {
		return false, fmt.Errorf("failed to check for %s: %w", c.queries.configTable, err)
	}

	return installed, nil
}

// PartitioningConfig implements catalog.Catalog
func (c *Catalog) PartitioningConfig(ctx context.Context, relid catalog.RelID) (*catalog.Config, error) {
	installed, err := c.Installed(ctx)
	if err != nil {
		return nil, err
	}

	if !installed {
		return nil, nil
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var (
		code         int32
		expr         string
		enableParent bool
	)

	err = c.db.QueryRow(ctx, c.queries.config, uint32(relid)).Scan(&code, &expr, &enableParent)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read partitioning config of %d: %w", relid, err)
	}

	partType, err := catalog.ParsePartType(uint32(code))
	if err != nil {
		return nil, err
	}

	return &catalog.Config{
		RelID:        relid,
		PartType:     partType,
		Expr:         expr,
		EnableParent: enableParent,
	}, nil
}

// PartitionedRelations returns every relation with a stored partitioning configuration
func (c *Catalog) PartitionedRelations(ctx context.Context) ([]catalog.RelID, error) {
	installed, err := c.Installed(ctx)
	if err != nil || !installed {
		return nil, err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	rows, err := c.db.Query(ctx, c.queries.relations)
	if err != nil {
		return nil, fmt.Errorf("failed to list partitioned relations: %w", err)
	}
	defer rows.Close()

	var out []catalog.RelID

	for rows.Next() {
		var relid uint32
		if err := rows.Scan(&relid); err != nil {
			return nil, fmt.Errorf("failed to scan partitioned relation: %w", err)
		}

		out = append(out, catalog.RelID(relid))
	}

	return out, rows.Err()
}

// RelationByName resolves a possibly schema-qualified relation name
func (c *Catalog) RelationByName(ctx context.Context, name string) (catalog.RelID, bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var relid uint32
	if err := c.db.QueryRow(ctx, c.queries.regclass, name).Scan(&relid); err != nil {
		return catalog.InvalidRelID, false, fmt.Errorf("failed to resolve relation %q: %w", name, err)
	}

	return catalog.RelID(relid), relid != 0, nil
}

// RelationName returns the name of relid as printed by regclass
func (c *Catalog) RelationName(ctx context.Context, relid catalog.RelID) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var name string
	if err := c.db.QueryRow(ctx, c.queries.relname, uint32(relid)).Scan(&name); err != nil {
		return "", fmt.Errorf("failed to read name of %d: %w", relid, err)
	}

	return name, nil
}

// ListChildPartitions implements catalog.Catalog
func (c *Catalog) ListChildPartitions(ctx context.Context, relid catalog.RelID) ([]catalog.ChildPartition, error) {
	cfg, err := c.PartitioningConfig(ctx, relid)
	if err != nil {
		return nil, err
	}

	if cfg == nil {
		return nil, nil
	}

	var valueType catalog.TypeOID

	if cfg.PartType == catalog.PartTypeRange {
		expr, err := c.compiler.CompilePartitioningExpression(ctx, relid, cfg.Expr)
		if err != nil {
			return nil, err
		}

		valueType = expr.ResultType()
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	rows, err := c.db.Query(ctx, c.queries.partitions, uint32(relid))
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions of %d: %w", relid, err)
	}
	defer rows.Close()

	var out []catalog.ChildPartition

	for rows.Next() {
		var (
			child      uint32
			rangeMin   *string
			rangeMax   *string
			constraint *string
		)

		if err := rows.Scan(&child, &rangeMin, &rangeMax, &constraint); err != nil {
			return nil, fmt.Errorf("failed to scan partition of %d: %w", relid, err)
		}

		part, err := c.decodePartition(cfg.PartType, valueType, catalog.RelID(child), rangeMin, rangeMax, constraint)
		if err != nil {
			return nil, err
		}

		out = append(out, part)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list partitions of %d: %w", relid, err)
	}

	return out, nil
}

func (c *Catalog) decodePartition(
	partType catalog.PartType,
	valueType catalog.TypeOID,
	child catalog.RelID,
	rangeMin, rangeMax, constraint *string,
) (catalog.ChildPartition, error) {
	part := catalog.ChildPartition{RelID: child}

	switch partType {
	case catalog.PartTypeHash:
		if constraint == nil {
			return part, fmt.Errorf("%w: partition %d has no check constraint", ErrMalformedConstraint, child)
		}

		slot, err := parseHashSlot(*constraint)
		if err != nil {
			return part, err
		}

		part.HashSlot = slot
	case catalog.PartTypeRange:
		var err error

		if part.Min, err = decodeBound(c.connInfo, valueType, rangeMin, bound.MinusInfinity); err != nil {
			return part, err
		}

		if part.Max, err = decodeBound(c.connInfo, valueType, rangeMax, bound.PlusInfinity); err != nil {
			return part, err
		}
	}

	return part, nil
}

// LookupRelationParent implements catalog.Catalog.
// Rows written by other transactions are only seen once committed, so Visible is always set.
func (c *Catalog) LookupRelationParent(ctx context.Context, relid catalog.RelID) (catalog.ParentInfo, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var parent uint32
	if err := c.db.QueryRow(ctx, c.queries.parent, uint32(relid)).Scan(&parent); err != nil {
		return catalog.ParentInfo{}, fmt.Errorf("failed to read parent of %d: %w", relid, err)
	}

	return catalog.ParentInfo{Parent: catalog.RelID(parent), Visible: true}, nil
}

// TypeMetadata implements catalog.Catalog
func (c *Catalog) TypeMetadata(ctx context.Context, typ catalog.TypeOID) (catalog.TypeInfo, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var (
		byVal     bool
		length    int16
		align     string
		collation uint32
	)

	err := c.db.QueryRow(ctx, c.queries.typeMetadata, uint32(typ)).Scan(&byVal, &length, &align, &collation)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.TypeInfo{}, fmt.Errorf("%w: %d", catalog.ErrUnknownType, typ)
	}

	if err != nil {
		return catalog.TypeInfo{}, fmt.Errorf("failed to read type %d: %w", typ, err)
	}

	info := catalog.TypeInfo{
		OID:       typ,
		Typmod:    -1,
		ByVal:     byVal,
		Len:       length,
		Collation: collation,
	}
	if align != "" {
		info.Align = align[0]
	}

	return info, nil
}

// Columns implements catalog.ColumnSource
func (c *Catalog) Columns(ctx context.Context, relid catalog.RelID) ([]catalog.Column, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	rows, err := c.db.Query(ctx, c.queries.columns, uint32(relid))
	if err != nil {
		return nil, fmt.Errorf("failed to list columns of %d: %w", relid, err)
	}
	defer rows.Close()

	var out []catalog.Column

	for rows.Next() {
		var (
			col catalog.Column
			typ uint32
		)

		if err := rows.Scan(&col.Name, &typ, &col.Typmod, &col.Collation, &col.NotNull); err != nil {
			return nil, fmt.Errorf("failed to scan column of %d: %w", relid, err)
		}

		col.Type = catalog.TypeOID(typ)
		out = append(out, col)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list columns of %d: %w", relid, err)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %d", catalog.ErrUnknownRelation, relid)
	}

	return out, nil
}

// CompilePartitioningExpression implements catalog.ExpressionCompiler
func (c *Catalog) CompilePartitioningExpression(ctx context.Context, relid catalog.RelID, expr string) (catalog.Expression, error) {
	return c.compiler.CompilePartitioningExpression(ctx, relid, expr)
}

// ResolveComparisonFunction implements catalog.FunctionResolver
func (c *Catalog) ResolveComparisonFunction(typ catalog.TypeOID) (bound.CmpFunc, error) {
	return c.types.ResolveComparisonFunction(typ)
}

// ResolveHashFunction implements catalog.FunctionResolver
func (c *Catalog) ResolveHashFunction(typ catalog.TypeOID) (catalog.HashFunc, error) {
	return c.types.ResolveHashFunction(typ)
}

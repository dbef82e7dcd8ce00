package pgcatalog

import (
	"fmt"

	"github.com/jackc/pgx/v4"
)

type queries struct {
	configTable  string
	installed    string
	config       string
	relations    string
	regclass     string
	relname      string
	partitions   string
	parent       string
	typeMetadata string
	columns      string
}

func newQueries(schema string) queries {
	if schema == "" {
		schema = "public"
	}

	configTable := pgx.Identifier{schema, "pathman_config"}.Sanitize()
	paramsTable := pgx.Identifier{schema, "pathman_config_params"}.Sanitize()
	partitionList := pgx.Identifier{schema, "pathman_partition_list"}.Sanitize()

	return queries{
		configTable: configTable,
		installed:   `SELECT to_regclass($1::text) IS NOT NULL`,
		config: fmt.Sprintf(`
SELECT c.parttype, c.expr, COALESCE(p.enable_parent, false)
FROM %s c
LEFT JOIN %s p ON p.partrel = c.partrel
WHERE c.partrel = $1::oid::regclass`, configTable, paramsTable),
		relations: fmt.Sprintf(`
SELECT partrel::oid FROM %s ORDER BY partrel::oid`, configTable),
		regclass: `SELECT COALESCE(to_regclass($1::text)::oid, 0::oid)`,
		relname:  `SELECT $1::oid::regclass::text`,
		partitions: fmt.Sprintf(`
SELECT l.partition::oid, l.range_min, l.range_max, (
	SELECT pg_get_constraintdef(con.oid)
	FROM pg_constraint con
	WHERE con.conrelid = l.partition AND con.contype = 'c' AND con.conname LIKE 'pathman\_%%\_check'
	LIMIT 1
)
FROM %s l
WHERE l.parent = $1::oid::regclass
ORDER BY l.partition::oid`, partitionList),
		parent: `
SELECT COALESCE((SELECT inhparent FROM pg_inherits WHERE inhrelid = $1::oid LIMIT 1), 0::oid)`,
		typeMetadata: `
SELECT typbyval, typlen, typalign::text, typcollation
FROM pg_type
WHERE oid = $1::oid`,
		columns: `
SELECT attname::text, atttypid, atttypmod, attcollation, attnotnull
FROM pg_attribute
WHERE attrelid = $1::oid AND attnum > 0 AND NOT attisdropped
ORDER BY attnum`,
	}
}

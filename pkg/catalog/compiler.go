package catalog

import (
	"context"
	"fmt"
	"strings"
)

// ColumnExpr is a partitioning expression consisting of a single column reference
type ColumnExpr struct {
	Column       string
	Type         TypeOID
	Typmod       int32
	CollationOID uint32
}

// String implements Expression
func (c ColumnExpr) String() string { return c.Column }

// Columns implements Expression
func (c ColumnExpr) Columns() []string { return []string{c.Column} }

// ResultType implements Expression
func (c ColumnExpr) ResultType() TypeOID { return c.Type }

// ResultTypmod implements Expression
func (c ColumnExpr) ResultTypmod() int32 { return c.Typmod }

// Collation implements Expression
func (c ColumnExpr) Collation() uint32 { return c.CollationOID }

// ColumnCompiler compiles partitioning expressions that reference one column
type ColumnCompiler struct {
	columns ColumnSource
}

// NewColumnCompiler creates a compiler resolving columns through src
func NewColumnCompiler(src ColumnSource) *ColumnCompiler {
	return &ColumnCompiler{columns: src}
}

// CompilePartitioningExpression implements ExpressionCompiler
func (c *ColumnCompiler) CompilePartitioningExpression(ctx context.Context, relid RelID, expr string) (Expression, error) {
	name, ok := normalizeColumnRef(expr)
	if !ok {
		return nil, fmt.Errorf("%w %q: only column references are supported", ErrExpressionParse, expr)
	}

	columns, err := c.columns.Columns(ctx, relid)
	if err != nil {
		return nil, err
	}

	for _, col := range columns {
		if !strings.EqualFold(col.Name, name) {
			continue
		}

		if !col.NotNull {
			return nil, fmt.Errorf("%w: column %q", ErrNullableColumn, col.Name)
		}

		return ColumnExpr{
			Column:       col.Name,
			Type:         col.Type,
			Typmod:       col.Typmod,
			CollationOID: col.Collation,
		}, nil
	}

	return nil, fmt.Errorf("%w %q: column does not exist in relation %d", ErrExpressionParse, expr, relid)
}

// normalizeColumnRef strips whitespace, parentheses and identifier quotes
func normalizeColumnRef(expr string) (string, bool) {
	s := strings.TrimSpace(expr)
	for strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = s[1 : len(s)-1]
	}

	if s == "" || strings.ContainsAny(s, " \t\n()+-*/,;'\"") {
		return "", false
	}

	return s, true
}

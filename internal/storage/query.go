package storage

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidField is returned when a field name is not a known attribute of
// the target table.
var ErrInvalidField = errors.New("invalid field")

// Op is a comparison operator usable in a Filter.
type Op string

const (
	OpEq     Op = "eq"
	OpNeq    Op = "neq"
	OpGtr    Op = "gtr"
	OpLess   Op = "less"
	OpGtrEq  Op = "gtr_eq"
	OpLessEq Op = "less_eq"
	OpLike   Op = "like"
	OpIn     Op = "in"
)

// Filter is one typed predicate on a column. OpIn expects a slice value.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Where builds an equality filter.
func Where(field string, value any) Filter {
	return Filter{Field: field, Op: OpEq, Value: value}
}

// WhereOp builds a filter with an explicit operator.
func WhereOp(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Query combines filters with an optional ordering. Order fields prefixed
// with '-' sort descending.
type Query struct {
	Filters []Filter
	OrderBy []string
}

func (f Filter) expr(t *table) (string, error) {
	if !t.hasColumn(f.Field) {
		return "", fmt.Errorf("%w: %q on table %s", ErrInvalidField, f.Field, t.name)
	}
	switch f.Op {
	case OpEq:
		return f.Field + " = ?", nil
	case OpNeq:
		return f.Field + " != ?", nil
	case OpGtr:
		return f.Field + " > ?", nil
	case OpLess:
		return f.Field + " < ?", nil
	case OpGtrEq:
		return f.Field + " >= ?", nil
	case OpLessEq:
		return f.Field + " <= ?", nil
	case OpLike:
		return f.Field + " LIKE ?", nil
	case OpIn:
		// The single placeholder is expanded by sqlx.In.
		return f.Field + " IN (?)", nil
	default:
		return "", fmt.Errorf("unsupported operator %q", f.Op)
	}
}

// whereClause renders the filters to a WHERE fragment and its arguments.
// Returns an empty string when there are no filters.
func whereClause(t *table, filters []Filter) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	exprs := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters))
	for _, f := range filters {
		expr, err := f.expr(t)
		if err != nil {
			return "", nil, err
		}
		exprs = append(exprs, expr)
		args = append(args, f.Value)
	}
	return " WHERE " + strings.Join(exprs, " AND "), args, nil
}

// orderClause renders the ordering fields to an ORDER BY fragment.
func orderClause(t *table, orderBy []string) (string, error) {
	if len(orderBy) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(orderBy))
	for _, field := range orderBy {
		dir := " ASC"
		if strings.HasPrefix(field, "-") {
			field = field[1:]
			dir = " DESC"
		}
		if !t.hasColumn(field) {
			return "", fmt.Errorf("%w: %q on table %s", ErrInvalidField, field, t.name)
		}
		parts = append(parts, field+dir)
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

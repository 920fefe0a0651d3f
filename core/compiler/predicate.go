package compiler

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/asaidimu/go-quarry/core"
	"github.com/asaidimu/go-quarry/core/query"
	"github.com/asaidimu/go-quarry/core/schema"
	"github.com/asaidimu/go-quarry/dialect"
)

// criterion renders one node of the criteria tree. Nested junctions are
// parenthesized; an empty junction renders as "".
func (c *Compiler) criterion(state *QueryState, crit query.Criterion, nested bool) (string, error) {
	switch n := crit.(type) {
	case nil:
		return "", nil
	case query.Junction:
		return c.junction(state, n, nested)
	case *query.Junction:
		return c.junction(state, *n, nested)
	case query.Negation:
		return c.negation(state, n)
	case *query.Negation:
		return c.negation(state, *n)
	case query.Comparison:
		return c.comparison(state, n, nested)
	case *query.Comparison:
		return c.comparison(state, *n, nested)
	case query.IdEquals:
		return c.idEquals(state, n.Value, nested)
	case *query.IdEquals:
		return c.idEquals(state, n.Value, nested)
	case query.VersionEquals:
		return c.versionEquals(state, n.Value)
	case *query.VersionEquals:
		return c.versionEquals(state, n.Value)
	case query.Subquery:
		return c.subquery(state, n)
	case *query.Subquery:
		return c.subquery(state, *n)
	default:
		return "", core.NewMappingError(state.entity.Name, "", fmt.Sprintf("unsupported criterion %T", crit))
	}
}

func (c *Compiler) junction(state *QueryState, j query.Junction, nested bool) (string, error) {
	// Without grouping only AND junctions exist, and they flatten.
	grouped := c.dialect.Supports(dialect.FeatureGrouping)
	parts := make([]string, 0, len(j.Criteria))
	for _, child := range j.Criteria {
		sql, err := c.criterion(state, child, grouped)
		if err != nil {
			return "", err
		}
		if sql != "" {
			parts = append(parts, sql)
		}
	}
	if len(parts) == 0 {
		return "", nil
	}
	if len(parts) == 1 {
		return parts[0], nil
	}

	op := " AND "
	if j.Operator == query.LogicalOperatorOr {
		if !c.dialect.Supports(dialect.FeatureOr) {
			return "", core.NewUnsupportedError(c.dialect.Name(), dialect.FeatureOr.String())
		}
		op = " OR "
	}
	return group(parts, op, nested), nil
}

func (c *Compiler) negation(state *QueryState, n query.Negation) (string, error) {
	if !c.dialect.Supports(dialect.FeatureGrouping) {
		return "", core.NewUnsupportedError(c.dialect.Name(), dialect.FeatureGrouping.String())
	}
	sql, err := c.criterion(state, n.Criterion, false)
	if err != nil || sql == "" {
		return "", err
	}
	return "NOT (" + sql + ")", nil
}

func (c *Compiler) idEquals(state *QueryState, value any, nested bool) (string, error) {
	cols, err := c.identityColumns(state.alias, state.entity)
	if err != nil {
		return "", err
	}
	return c.equalsAll(state, cols, value, nested)
}

func (c *Compiler) versionEquals(state *QueryState, value any) (string, error) {
	v := state.entity.Version
	if v == nil {
		return "", core.NewMappingError(state.entity.Name, "", "entity has no version property")
	}
	col := column{expr: c.column(state.alias, v.PersistedName), name: v.PersistedName, path: v.Name, prop: v}
	return col.expr + " = " + c.bindValue(state, col, value, query.LikeNone), nil
}

// equalsAll renders one equality per column, joined with AND in declaration
// order. Composite values are split by each column's relative path.
func (c *Compiler) equalsAll(state *QueryState, cols []column, value any, nested bool) (string, error) {
	parts := make([]string, 0, len(cols))
	for _, col := range cols {
		v, err := componentValue(state.entity.Name, col, value)
		if err != nil {
			return "", err
		}
		if isNull(v) {
			parts = append(parts, col.expr+" IS NULL")
			continue
		}
		parts = append(parts, col.expr+" = "+c.bindValue(state, col, v, query.LikeNone))
	}
	return group(parts, " AND ", nested), nil
}

func (c *Compiler) comparison(state *QueryState, cmp query.Comparison, nested bool) (string, error) {
	r, err := c.resolve(state, cmp.Property)
	if err != nil {
		return "", err
	}
	entity := state.entity.Name

	if len(r.columns) > 1 {
		switch cmp.Operator {
		case query.ComparisonOperatorEq:
			return c.equalsAll(state, r.columns, cmp.Value, nested)
		case query.ComparisonOperatorNeq:
			if !c.dialect.Supports(dialect.FeatureGrouping) {
				return "", core.NewUnsupportedError(c.dialect.Name(), dialect.FeatureGrouping.String())
			}
			sql, err := c.equalsAll(state, r.columns, cmp.Value, false)
			if err != nil {
				return "", err
			}
			return "NOT (" + sql + ")", nil
		case query.ComparisonOperatorIsNull, query.ComparisonOperatorIsNotNull:
			suffix := " IS NULL"
			if cmp.Operator == query.ComparisonOperatorIsNotNull {
				suffix = " IS NOT NULL"
			}
			parts := make([]string, len(r.columns))
			for i, col := range r.columns {
				parts[i] = col.expr + suffix
			}
			return group(parts, " AND ", nested), nil
		default:
			return "", core.NewMappingError(entity, cmp.Property, fmt.Sprintf("operator '%s' is not supported on a multi-column property", cmp.Operator))
		}
	}

	col := r.columns[0]
	expr := col.expr
	lower := func(s string) string { return s }
	if cmp.IgnoreCase {
		lower = func(s string) string { return "LOWER(" + s + ")" }
	}
	binary := func(op string, pattern query.LikePattern) string {
		return lower(expr) + " " + op + " " + lower(c.bindValue(state, col, cmp.Value, pattern))
	}

	switch cmp.Operator {
	case query.ComparisonOperatorEq:
		if isNull(cmp.Value) {
			return expr + " IS NULL", nil
		}
		return binary("=", query.LikeNone), nil
	case query.ComparisonOperatorNeq:
		if isNull(cmp.Value) {
			return expr + " IS NOT NULL", nil
		}
		return binary("!=", query.LikeNone), nil
	case query.ComparisonOperatorLt:
		return binary("<", query.LikeNone), nil
	case query.ComparisonOperatorLte:
		return binary("<=", query.LikeNone), nil
	case query.ComparisonOperatorGt:
		return binary(">", query.LikeNone), nil
	case query.ComparisonOperatorGte:
		return binary(">=", query.LikeNone), nil
	case query.ComparisonOperatorBetween:
		if cmp.Upper == nil {
			return "", core.NewMappingError(entity, cmp.Property, "between requires an upper bound")
		}
		low := c.bindValue(state, col, cmp.Value, query.LikeNone)
		high := c.bindValue(state, col, cmp.Upper, query.LikeNone)
		return group([]string{lower(expr) + " >= " + lower(low), lower(expr) + " <= " + lower(high)}, " AND ", nested), nil
	case query.ComparisonOperatorIn, query.ComparisonOperatorNin:
		return c.in(state, col, cmp)
	case query.ComparisonOperatorLike:
		return binary("LIKE", query.LikeNone), nil
	case query.ComparisonOperatorILike:
		if c.dialect.Supports(dialect.FeatureILike) && !cmp.IgnoreCase {
			return expr + " ILIKE " + c.bindValue(state, col, cmp.Value, query.LikeNone), nil
		}
		return "LOWER(" + expr + ") LIKE LOWER(" + c.bindValue(state, col, cmp.Value, query.LikeNone) + ")", nil
	case query.ComparisonOperatorContains:
		return binary("LIKE", query.LikeContains) + c.dialect.LikeEscape(), nil
	case query.ComparisonOperatorStartsWith:
		return binary("LIKE", query.LikePrefix) + c.dialect.LikeEscape(), nil
	case query.ComparisonOperatorEndsWith:
		return binary("LIKE", query.LikeSuffix) + c.dialect.LikeEscape(), nil
	case query.ComparisonOperatorIsNull:
		return expr + " IS NULL", nil
	case query.ComparisonOperatorIsNotNull:
		return expr + " IS NOT NULL", nil
	case query.ComparisonOperatorIsTrue:
		return expr + " = " + c.bindValue(state, col, true, query.LikeNone), nil
	case query.ComparisonOperatorIsFalse:
		return expr + " = " + c.bindValue(state, col, false, query.LikeNone), nil
	case query.ComparisonOperatorIsEmpty:
		if !c.dialect.Supports(dialect.FeatureOr) {
			return "", core.NewUnsupportedError(c.dialect.Name(), dialect.FeatureOr.String())
		}
		return group([]string{expr + " IS NULL", expr + " = ''"}, " OR ", nested), nil
	case query.ComparisonOperatorIsNotEmpty:
		return group([]string{expr + " IS NOT NULL", expr + " != ''"}, " AND ", nested), nil
	default:
		return "", core.NewMappingError(entity, cmp.Property, fmt.Sprintf("unknown comparison operator '%s'", cmp.Operator))
	}
}

// in renders IN / NOT IN. A literal list binds one placeholder per element;
// an empty list is constant false for IN and constant true for NOT IN. A
// parameter reference binds one expandable placeholder that the executor
// widens to the size of the collection argument.
func (c *Compiler) in(state *QueryState, col column, cmp query.Comparison) (string, error) {
	keyword, empty := " IN (", "1=0"
	if cmp.Operator == query.ComparisonOperatorNin {
		keyword, empty = " NOT IN (", "1=1"
	}
	if ref, ok := cmp.Value.(query.ParameterReference); ok {
		prefix := col.expr + keyword
		marker := state.bind(query.ParameterBinding{
			PropertyPath: col.path,
			Column:       col.name,
			DataType:     col.prop.Type,
			ArgumentName: ref.Name,
			ArgumentPath: ref.Path,
			Expansion:    &query.Expansion{Prefix: prefix, Empty: empty},
		})
		return prefix + marker + ")", nil
	}

	values := listValues(cmp.Value)
	if len(values) == 0 {
		return empty, nil
	}
	markers := make([]string, len(values))
	for i, v := range values {
		markers[i] = c.bindValue(state, col, v, query.LikeNone)
	}
	return col.expr + keyword + strings.Join(markers, ",") + ")", nil
}

// bindValue records a binding for a literal or parameter reference compared
// against col and returns its marker.
func (c *Compiler) bindValue(state *QueryState, col column, value any, pattern query.LikePattern) string {
	b := query.ParameterBinding{
		PropertyPath: col.path,
		Column:       col.name,
		DataType:     col.prop.Type,
		Pattern:      pattern,
	}
	if ref, ok := value.(query.ParameterReference); ok {
		b.ArgumentName = ref.Name
		b.ArgumentPath = ref.Path
	} else {
		b.Value = value
		b.HasValue = true
	}
	return state.bind(b)
}

// componentValue picks the part of a composite value that belongs to col.
// Parameter references are narrowed by path; literals must be maps keyed by
// component name.
func componentValue(entity string, col column, value any) (any, error) {
	if col.rel == "" {
		return value, nil
	}
	switch v := value.(type) {
	case query.ParameterReference:
		return query.ParamPath(v.Name, joinPath(v.Path, col.rel)), nil
	case map[string]any:
		return lookup(v, col.rel), nil
	case schema.Document:
		return lookup(v, col.rel), nil
	case nil:
		return nil, nil
	default:
		return nil, core.NewMappingError(entity, col.path, fmt.Sprintf("composite value must be a map or parameter reference, got %T", value))
	}
}

func lookup(m map[string]any, path string) any {
	var current any = m
	for _, segment := range schema.SplitPath(path) {
		switch node := current.(type) {
		case map[string]any:
			current = node[segment]
		case schema.Document:
			current = node[segment]
		default:
			return nil
		}
	}
	return current
}

func listValues(value any) []any {
	if value == nil {
		return nil
	}
	if values, ok := value.([]any); ok {
		return values
	}
	rv := reflect.ValueOf(value)
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []any{value}
}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

func joinPath(prefix, path string) string {
	if prefix == "" {
		return path
	}
	if path == "" {
		return prefix
	}
	return prefix + "." + path
}

// group joins parts with op, parenthesized when nested in a larger
// expression.
func group(parts []string, op string, nested bool) string {
	sql := strings.Join(parts, op)
	if nested && len(parts) > 1 {
		return "(" + sql + ")"
	}
	return sql
}

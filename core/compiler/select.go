package compiler

import (
	"fmt"
	"strings"

	"github.com/asaidimu/go-quarry/core"
	"github.com/asaidimu/go-quarry/core/query"
	"github.com/asaidimu/go-quarry/dialect"
)

// buildSelect assembles SELECT <selection> FROM <table> <joins> WHERE ...
// ORDER BY ... <pagination>. Joins are collected while the selection,
// predicate and sort resolve their paths and rendered in application order.
func (c *Compiler) buildSelect(state *QueryState, q *query.Query) (string, error) {
	if q == nil {
		q = &query.Query{}
	}
	if err := c.applyJoins(state, q.Joins); err != nil {
		return "", err
	}
	selection, err := c.selection(state, q)
	if err != nil {
		return "", err
	}

	orders := q.Sort
	paged := q.Pageable != nil && !q.Pageable.Unpaged()
	if q.Pageable != nil {
		orders = append(append([]query.Order{}, q.Sort...), q.Pageable.Sort...)
	}

	where, err := c.whereClause(state, q.Criteria, q.Pageable, orders)
	if err != nil {
		return "", err
	}
	orderBy, err := c.orderBy(state, orders)
	if err != nil {
		return "", err
	}
	if paged && orderBy == "" && c.dialect.Supports(dialect.FeatureOrderedPagination) {
		orderBy = c.fallbackOrder(state)
	}

	stmt := c.assemble("SELECT "+selection, state, where, orderBy)
	if !paged {
		return stmt, nil
	}
	return c.dialect.Paginate(stmt, q.Pageable.Size, q.Pageable.Offset())
}

// buildCount assembles SELECT COUNT(*) FROM ... WHERE ... without sort or
// pagination.
func (c *Compiler) buildCount(state *QueryState, q *query.Query) (string, error) {
	if q == nil {
		q = &query.Query{}
	}
	if !c.dialect.Supports(dialect.FeatureCount) {
		return "", core.NewUnsupportedError(c.dialect.Name(), dialect.FeatureCount.String())
	}
	count, err := c.dialect.RowCount()
	if err != nil {
		return "", err
	}
	if q.Distinct && state.entity.HasIdentity() && !state.entity.HasCompositeIdentity() {
		cols, err := c.identityColumns(state.alias, state.entity)
		if err != nil {
			return "", err
		}
		count = "COUNT(DISTINCT " + cols[0].expr + ")"
	}
	if err := c.applyJoins(state, q.Joins); err != nil {
		return "", err
	}
	where, err := c.whereClause(state, q.Criteria, nil, nil)
	if err != nil {
		return "", err
	}
	return c.assemble("SELECT "+count, state, where, ""), nil
}

func (c *Compiler) assemble(head string, state *QueryState, where, orderBy string) string {
	var sb strings.Builder
	sb.WriteString(head)
	sb.WriteString(" FROM ")
	sb.WriteString(c.table(state.entity, state.alias))
	for _, fragment := range state.fragments {
		sb.WriteString(" ")
		sb.WriteString(fragment)
	}
	if where != "" {
		sb.WriteString(" ")
		sb.WriteString(where)
	}
	if orderBy != "" {
		sb.WriteString(" ")
		sb.WriteString(orderBy)
	}
	return sb.String()
}

// selection renders the select list: the projections when given, otherwise
// every entity column followed by the columns of fetch joins.
func (c *Compiler) selection(state *QueryState, q *query.Query) (string, error) {
	var items []string
	if len(q.Projections) == 0 {
		for _, col := range c.entityColumns(state.alias, state.entity) {
			items = append(items, col.expr)
		}
		for _, j := range q.Joins {
			if !j.Fetch {
				continue
			}
			fetched, err := c.fetchColumns(state, j.Path)
			if err != nil {
				return "", err
			}
			items = append(items, fetched...)
		}
	} else {
		for i, p := range q.Projections {
			item, err := c.projection(state, p, i)
			if err != nil {
				return "", err
			}
			items = append(items, item)
		}
	}

	list := strings.Join(items, ",")
	if q.Distinct && !strings.HasPrefix(list, "DISTINCT ") {
		list = "DISTINCT " + list
	}
	return list, nil
}

// fetchColumns selects the columns of a joined association, aliased
// "path.column" so rows can be folded back into nested documents.
func (c *Compiler) fetchColumns(state *QueryState, path string) ([]string, error) {
	alias, ok := state.applied[path]
	if !ok {
		return nil, core.NewMappingError(state.entity.Name, path, "fetch path was not joined")
	}
	target, err := c.targetOf(state, path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, col := range c.entityColumns(alias, target) {
		out = append(out, col.expr+" AS "+c.dialect.QuoteIdentifier(path+"."+col.name))
	}
	return out, nil
}

func (c *Compiler) projection(state *QueryState, p query.Projection, index int) (string, error) {
	entity := state.entity.Name
	var item string
	switch p.Kind {
	case query.ProjectionCount:
		count, err := c.dialect.RowCount()
		if err != nil {
			return "", err
		}
		item = count
	case query.ProjectionId:
		cols, err := c.identityColumns(state.alias, state.entity)
		if err != nil {
			return "", err
		}
		exprs := make([]string, len(cols))
		for i, col := range cols {
			exprs[i] = col.expr
		}
		item = strings.Join(exprs, ",")
	case query.ProjectionProperty, query.ProjectionDistinct:
		r, err := c.resolve(state, p.Property)
		if err != nil {
			return "", err
		}
		exprs := make([]string, len(r.columns))
		for i, col := range r.columns {
			exprs[i] = col.expr
		}
		item = strings.Join(exprs, ",")
		if p.Kind == query.ProjectionDistinct {
			if index != 0 {
				return "", core.NewMappingError(entity, p.Property, "a distinct projection must come first")
			}
			item = "DISTINCT " + item
		}
	case query.ProjectionCountProperty, query.ProjectionCountDistinct,
		query.ProjectionMax, query.ProjectionMin, query.ProjectionSum, query.ProjectionAvg:
		r, err := c.resolve(state, p.Property)
		if err != nil {
			return "", err
		}
		col, err := r.single(entity, p.Property)
		if err != nil {
			return "", err
		}
		switch p.Kind {
		case query.ProjectionCountProperty:
			item = "COUNT(" + col.expr + ")"
		case query.ProjectionCountDistinct:
			item = "COUNT(DISTINCT " + col.expr + ")"
		default:
			item = strings.ToUpper(string(p.Kind)) + "(" + col.expr + ")"
		}
	default:
		return "", core.NewMappingError(entity, p.Property, fmt.Sprintf("unknown projection kind '%s'", p.Kind))
	}
	if p.Alias != "" {
		item += " AS " + p.Alias
	}
	return item, nil
}

// whereClause renders the WHERE clause from the criteria and, for keyset
// pagination, the cursor predicate.
func (c *Compiler) whereClause(state *QueryState, crit query.Criterion, pageable *query.Pageable, orders []query.Order) (string, error) {
	keyset := pageable != nil && len(pageable.Cursor) > 0
	sql, err := c.criterion(state, crit, keyset && c.dialect.Supports(dialect.FeatureGrouping))
	if err != nil {
		return "", err
	}
	if keyset {
		terms, err := c.cursorPredicate(state, orders, pageable.Cursor)
		if err != nil {
			return "", err
		}
		switch {
		case sql == "":
			sql = strings.Join(terms, " OR ")
		default:
			sql += " AND " + group(terms, " OR ", true)
		}
	}
	if sql == "" {
		return "", nil
	}
	return c.where(sql), nil
}

// where renders a WHERE clause around sql, parenthesized unless the dialect
// rejects grouping.
func (c *Compiler) where(sql string) string {
	if !c.dialect.Supports(dialect.FeatureGrouping) {
		return "WHERE " + sql
	}
	return "WHERE (" + sql + ")"
}

type orderColumn struct {
	col       column
	expr      string
	direction query.SortDirection
}

func (c *Compiler) orderColumns(state *QueryState, orders []query.Order) ([]orderColumn, error) {
	var out []orderColumn
	for _, o := range orders {
		r, err := c.resolve(state, o.Property)
		if err != nil {
			return nil, err
		}
		direction := o.Direction
		if direction == "" {
			direction = query.SortDirectionAsc
		}
		for _, col := range r.columns {
			expr := col.expr
			if o.IgnoreCase {
				expr = "LOWER(" + expr + ")"
			}
			out = append(out, orderColumn{col: col, expr: expr, direction: direction})
		}
	}
	return out, nil
}

func (c *Compiler) orderBy(state *QueryState, orders []query.Order) (string, error) {
	cols, err := c.orderColumns(state, orders)
	if err != nil || len(cols) == 0 {
		return "", err
	}
	items := make([]string, len(cols))
	for i, oc := range cols {
		items[i] = oc.expr + " " + strings.ToUpper(string(oc.direction))
	}
	return "ORDER BY " + strings.Join(items, ","), nil
}

// fallbackOrder orders by the identity, or by a constant when the entity has
// none, for dialects that only paginate ordered results.
func (c *Compiler) fallbackOrder(state *QueryState) string {
	cols, err := c.identityColumns(state.alias, state.entity)
	if err != nil {
		return "ORDER BY (SELECT NULL)"
	}
	items := make([]string, len(cols))
	for i, col := range cols {
		items[i] = col.expr + " ASC"
	}
	return "ORDER BY " + strings.Join(items, ",")
}

// cursorPredicate renders the OR terms of the keyset condition selecting
// rows after the cursor: (a > ?) OR (a = ? AND b > ?) ..., flipped for
// descending orders.
func (c *Compiler) cursorPredicate(state *QueryState, orders []query.Order, cursor []any) ([]string, error) {
	cols, err := c.orderColumns(state, orders)
	if err != nil {
		return nil, err
	}
	if len(cols) != len(cursor) {
		return nil, core.NewMappingError(state.entity.Name, "", fmt.Sprintf("cursor has %d values for %d sort columns", len(cursor), len(cols)))
	}
	if len(cols) > 1 && !c.dialect.Supports(dialect.FeatureOr) {
		return nil, core.NewUnsupportedError(c.dialect.Name(), dialect.FeatureOr.String())
	}

	terms := make([]string, len(cols))
	for i := range cols {
		parts := make([]string, 0, i+1)
		for j := 0; j < i; j++ {
			parts = append(parts, cols[j].expr+" = "+c.cursorValue(state, cols[j], cursor[j]))
		}
		op := " > "
		if cols[i].direction == query.SortDirectionDesc {
			op = " < "
		}
		parts = append(parts, cols[i].expr+op+c.cursorValue(state, cols[i], cursor[i]))
		terms[i] = strings.Join(parts, " AND ")
		if c.dialect.Supports(dialect.FeatureGrouping) {
			terms[i] = "(" + terms[i] + ")"
		}
	}
	return terms, nil
}

func (c *Compiler) cursorValue(state *QueryState, oc orderColumn, value any) string {
	marker := c.bindValue(state, oc.col, value, query.LikeNone)
	if strings.HasPrefix(oc.expr, "LOWER(") {
		return "LOWER(" + marker + ")"
	}
	return marker
}

// subquery renders IN / NOT IN / EXISTS / NOT EXISTS over another entity.
// The inner select is aliased apart from the outer one and shares its
// bindings.
func (c *Compiler) subquery(state *QueryState, sq query.Subquery) (string, error) {
	if !c.dialect.Supports(dialect.FeatureSubqueries) {
		return "", core.NewUnsupportedError(c.dialect.Name(), dialect.FeatureSubqueries.String())
	}
	target, ok := c.registry.Entity(sq.Entity)
	if !ok {
		return "", core.NewMappingError(state.entity.Name, sq.Property, fmt.Sprintf("unknown subquery entity '%s'", sq.Entity))
	}
	*state.subqueries++
	alias := ""
	if c.dialect.Supports(dialect.FeatureTableAlias) {
		alias = state.reserveAlias(fmt.Sprintf("%s%d_", target.Alias, *state.subqueries))
	}

	var outer string
	if sq.Operator == query.SubqueryIn || sq.Operator == query.SubqueryNotIn {
		r, err := c.resolve(state, sq.Property)
		if err != nil {
			return "", err
		}
		col, err := r.single(state.entity.Name, sq.Property)
		if err != nil {
			return "", err
		}
		outer = col.expr
	}

	inner := state.child(target, alias)
	q := sq.Query
	if q == nil {
		q = &query.Query{}
	}
	if len(q.Projections) == 0 {
		q = &query.Query{Criteria: q.Criteria, Joins: q.Joins, Distinct: q.Distinct,
			Projections: []query.Projection{{Kind: query.ProjectionId}}}
	}
	if err := c.applyJoins(inner, q.Joins); err != nil {
		return "", err
	}
	selection, err := c.selection(inner, q)
	if err != nil {
		return "", err
	}
	where, err := c.whereClause(inner, q.Criteria, nil, nil)
	if err != nil {
		return "", err
	}
	sql := c.assemble("SELECT "+selection, inner, where, "")

	switch sq.Operator {
	case query.SubqueryIn:
		return outer + " IN (" + sql + ")", nil
	case query.SubqueryNotIn:
		return outer + " NOT IN (" + sql + ")", nil
	case query.SubqueryExists:
		return "EXISTS (" + sql + ")", nil
	case query.SubqueryNotExists:
		return "NOT EXISTS (" + sql + ")", nil
	default:
		return "", core.NewMappingError(state.entity.Name, sq.Property, fmt.Sprintf("unknown subquery operator '%s'", sq.Operator))
	}
}

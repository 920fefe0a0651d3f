package query

import (
	"fmt"
	"strings"
)

// QueryBuilder provides a fluent API for building Query values. Conditions
// added with Where are combined with AND; groups add nested AND/OR
// junctions.
type QueryBuilder struct {
	query    Query
	criteria []Criterion
}

// NewQueryBuilder creates a new, empty query builder instance.
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{}
}

// Build returns the constructed Query.
func (qb *QueryBuilder) Build() *Query {
	q := qb.query
	q.Criteria = combine(LogicalOperatorAnd, qb.criteria)
	q.Projections = append([]Projection(nil), qb.query.Projections...)
	q.Joins = append([]JoinRequest(nil), qb.query.Joins...)
	q.Sort = append([]Order(nil), qb.query.Sort...)
	if qb.query.Pageable != nil {
		p := *qb.query.Pageable
		p.Cursor = append([]any(nil), p.Cursor...)
		q.Pageable = &p
	}
	return &q
}

// Criteria returns the combined criteria without the rest of the query, for
// UPDATE and DELETE specs.
func (qb *QueryBuilder) Criteria() Criterion {
	return combine(LogicalOperatorAnd, qb.criteria)
}

// Clone creates a copy of the builder that can be modified without
// affecting the original.
func (qb *QueryBuilder) Clone() *QueryBuilder {
	built := qb.Build()
	return &QueryBuilder{
		query:    Query{Projections: built.Projections, Joins: built.Joins, Sort: built.Sort, Pageable: built.Pageable, Distinct: built.Distinct},
		criteria: append([]Criterion(nil), qb.criteria...),
	}
}

// Reset clears all configurations from the query builder.
func (qb *QueryBuilder) Reset() *QueryBuilder {
	qb.query = Query{}
	qb.criteria = nil
	return qb
}

func combine(op LogicalOperator, criteria []Criterion) Criterion {
	switch len(criteria) {
	case 0:
		return nil
	case 1:
		if op == LogicalOperatorAnd {
			return criteria[0]
		}
	}
	return Junction{Operator: op, Criteria: append([]Criterion(nil), criteria...)}
}

func (qb *QueryBuilder) add(c Criterion) *QueryBuilder {
	qb.criteria = append(qb.criteria, c)
	return qb
}

// Where begins a condition on a property path.
func (qb *QueryBuilder) Where(property string) *ConditionBuilder[*QueryBuilder] {
	return &ConditionBuilder[*QueryBuilder]{property: property, add: qb.add}
}

// Match adds an already built criterion.
func (qb *QueryBuilder) Match(c Criterion) *QueryBuilder {
	return qb.add(c)
}

// WhereId matches the entity identity.
func (qb *QueryBuilder) WhereId(value any) *QueryBuilder {
	return qb.add(IdEquals{Value: value})
}

// WhereVersion matches the entity version.
func (qb *QueryBuilder) WhereVersion(value any) *QueryBuilder {
	return qb.add(VersionEquals{Value: value})
}

// WhereGroup begins a nested group of conditions combined with operator.
func (qb *QueryBuilder) WhereGroup(operator LogicalOperator) *GroupBuilder {
	return &GroupBuilder{parent: qb, operator: operator}
}

// WhereNot begins a group of AND-ed conditions that is negated as a whole.
func (qb *QueryBuilder) WhereNot() *GroupBuilder {
	return &GroupBuilder{parent: qb, operator: LogicalOperatorAnd, negate: true}
}

// WhereSubquery tests property against the rows of sub, a query over
// entity. Exists operators ignore property.
func (qb *QueryBuilder) WhereSubquery(property string, operator SubqueryOperator, entity string, sub *QueryBuilder) *QueryBuilder {
	return qb.add(Subquery{Property: property, Operator: operator, Entity: entity, Query: sub.Build()})
}

// ConditionBuilder builds one comparison on a property and hands it to its
// parent builder.
type ConditionBuilder[P any] struct {
	property   string
	ignoreCase bool
	add        func(Criterion) P
}

// IgnoreCase compares with LOWER() on both sides.
func (cb *ConditionBuilder[P]) IgnoreCase() *ConditionBuilder[P] {
	cb.ignoreCase = true
	return cb
}

func (cb *ConditionBuilder[P]) compare(op ComparisonOperator, value any) P {
	return cb.add(Comparison{Property: cb.property, Operator: op, Value: value, IgnoreCase: cb.ignoreCase})
}

// Eq adds an equality condition.
func (cb *ConditionBuilder[P]) Eq(value any) P { return cb.compare(ComparisonOperatorEq, value) }

// Neq adds an inequality condition.
func (cb *ConditionBuilder[P]) Neq(value any) P { return cb.compare(ComparisonOperatorNeq, value) }

// Lt adds a less-than condition.
func (cb *ConditionBuilder[P]) Lt(value any) P { return cb.compare(ComparisonOperatorLt, value) }

// Lte adds a less-than-or-equal condition.
func (cb *ConditionBuilder[P]) Lte(value any) P { return cb.compare(ComparisonOperatorLte, value) }

// Gt adds a greater-than condition.
func (cb *ConditionBuilder[P]) Gt(value any) P { return cb.compare(ComparisonOperatorGt, value) }

// Gte adds a greater-than-or-equal condition.
func (cb *ConditionBuilder[P]) Gte(value any) P { return cb.compare(ComparisonOperatorGte, value) }

// Between adds an inclusive range condition.
func (cb *ConditionBuilder[P]) Between(lower, upper any) P {
	return cb.add(Comparison{Property: cb.property, Operator: ComparisonOperatorBetween, Value: lower, Upper: upper, IgnoreCase: cb.ignoreCase})
}

// In adds a membership condition. A single ParameterReference binds the
// whole list to one placeholder.
func (cb *ConditionBuilder[P]) In(values ...any) P {
	return cb.compare(ComparisonOperatorIn, inValue(values))
}

// NotIn adds a negated membership condition.
func (cb *ConditionBuilder[P]) NotIn(values ...any) P {
	return cb.compare(ComparisonOperatorNin, inValue(values))
}

func inValue(values []any) any {
	if len(values) == 1 {
		if ref, ok := values[0].(ParameterReference); ok {
			return ref
		}
	}
	return values
}

// Like adds a LIKE condition with a caller-supplied pattern.
func (cb *ConditionBuilder[P]) Like(pattern any) P { return cb.compare(ComparisonOperatorLike, pattern) }

// ILike adds a case-insensitive LIKE condition.
func (cb *ConditionBuilder[P]) ILike(pattern any) P {
	return cb.compare(ComparisonOperatorILike, pattern)
}

// Contains matches values containing value.
func (cb *ConditionBuilder[P]) Contains(value any) P {
	return cb.compare(ComparisonOperatorContains, value)
}

// StartsWith matches values starting with value.
func (cb *ConditionBuilder[P]) StartsWith(value any) P {
	return cb.compare(ComparisonOperatorStartsWith, value)
}

// EndsWith matches values ending with value.
func (cb *ConditionBuilder[P]) EndsWith(value any) P {
	return cb.compare(ComparisonOperatorEndsWith, value)
}

// IsNull matches NULL values.
func (cb *ConditionBuilder[P]) IsNull() P { return cb.compare(ComparisonOperatorIsNull, nil) }

// IsNotNull matches non-NULL values.
func (cb *ConditionBuilder[P]) IsNotNull() P { return cb.compare(ComparisonOperatorIsNotNull, nil) }

// IsTrue matches true values.
func (cb *ConditionBuilder[P]) IsTrue() P { return cb.compare(ComparisonOperatorIsTrue, nil) }

// IsFalse matches false values.
func (cb *ConditionBuilder[P]) IsFalse() P { return cb.compare(ComparisonOperatorIsFalse, nil) }

// IsEmpty matches NULL or empty strings.
func (cb *ConditionBuilder[P]) IsEmpty() P { return cb.compare(ComparisonOperatorIsEmpty, nil) }

// IsNotEmpty matches non-NULL, non-empty strings.
func (cb *ConditionBuilder[P]) IsNotEmpty() P { return cb.compare(ComparisonOperatorIsNotEmpty, nil) }

// GroupBuilder is used to build a group of conditions.
type GroupBuilder struct {
	parent   *QueryBuilder
	outer    *GroupBuilder
	operator LogicalOperator
	negate   bool
	criteria []Criterion
}

func (g *GroupBuilder) add(c Criterion) *GroupBuilder {
	g.criteria = append(g.criteria, c)
	return g
}

// Where adds a new condition to the group.
func (g *GroupBuilder) Where(property string) *ConditionBuilder[*GroupBuilder] {
	return &ConditionBuilder[*GroupBuilder]{property: property, add: g.add}
}

// Match adds an already built criterion to the group.
func (g *GroupBuilder) Match(c Criterion) *GroupBuilder {
	return g.add(c)
}

// WhereGroup opens a group nested in this one. Close it with Done.
func (g *GroupBuilder) WhereGroup(operator LogicalOperator) *GroupBuilder {
	return &GroupBuilder{parent: g.parent, outer: g, operator: operator}
}

func (g *GroupBuilder) criterion() Criterion {
	c := Criterion(Junction{Operator: g.operator, Criteria: g.criteria})
	if g.negate {
		return Negation{Criterion: c}
	}
	return c
}

// Done closes a nested group and returns the group enclosing it. On a
// top-level group it is a no-op.
func (g *GroupBuilder) Done() *GroupBuilder {
	if g.outer == nil {
		return g
	}
	g.outer.add(g.criterion())
	return g.outer
}

// End closes this group and every group enclosing it, and returns to the
// query builder.
func (g *GroupBuilder) End() *QueryBuilder {
	current := g
	for current.outer != nil {
		current = current.Done()
	}
	return current.parent.add(current.criterion())
}

// OrderBy adds a sort order.
func (qb *QueryBuilder) OrderBy(property string, direction SortDirection) *QueryBuilder {
	qb.query.Sort = append(qb.query.Sort, Order{Property: property, Direction: direction})
	return qb
}

// OrderByAsc adds an ascending sort order.
func (qb *QueryBuilder) OrderByAsc(property string) *QueryBuilder {
	return qb.OrderBy(property, SortDirectionAsc)
}

// OrderByDesc adds a descending sort order.
func (qb *QueryBuilder) OrderByDesc(property string) *QueryBuilder {
	return qb.OrderBy(property, SortDirectionDesc)
}

// OrderByIgnoreCase adds a case-insensitive sort order.
func (qb *QueryBuilder) OrderByIgnoreCase(property string, direction SortDirection) *QueryBuilder {
	qb.query.Sort = append(qb.query.Sort, Order{Property: property, Direction: direction, IgnoreCase: true})
	return qb
}

func (qb *QueryBuilder) pageable() *Pageable {
	if qb.query.Pageable == nil {
		qb.query.Pageable = &Pageable{}
	}
	return qb.query.Pageable
}

// Page requests the zero-based page of the given size.
func (qb *QueryBuilder) Page(page, size int) *QueryBuilder {
	p := qb.pageable()
	p.Page = page
	p.Size = size
	return qb
}

// Limit requests the first size rows.
func (qb *QueryBuilder) Limit(size int) *QueryBuilder {
	return qb.Page(0, size)
}

// Cursor selects the page after the row holding values, one per sort
// column.
func (qb *QueryBuilder) Cursor(values ...any) *QueryBuilder {
	qb.pageable().Cursor = values
	return qb
}

// Distinct selects distinct root rows.
func (qb *QueryBuilder) Distinct() *QueryBuilder {
	qb.query.Distinct = true
	return qb
}

// Join joins an association path with the given type.
func (qb *QueryBuilder) Join(path string, joinType JoinType) *QueryBuilder {
	qb.query.Joins = append(qb.query.Joins, JoinRequest{Path: path, Type: joinType})
	return qb
}

// InnerJoin joins an association path with an INNER JOIN.
func (qb *QueryBuilder) InnerJoin(path string) *QueryBuilder {
	return qb.Join(path, JoinTypeInner)
}

// LeftJoin joins an association path with a LEFT JOIN.
func (qb *QueryBuilder) LeftJoin(path string) *QueryBuilder {
	return qb.Join(path, JoinTypeLeft)
}

// Fetch joins an association path and selects its columns.
func (qb *QueryBuilder) Fetch(path string, joinType JoinType) *QueryBuilder {
	qb.query.Joins = append(qb.query.Joins, JoinRequest{Path: path, Type: joinType, Fetch: true})
	return qb
}

// ProjectionBuilder builds the select list.
type ProjectionBuilder struct {
	parent *QueryBuilder
}

// Select begins the projection list.
func (qb *QueryBuilder) Select() *ProjectionBuilder {
	return &ProjectionBuilder{parent: qb}
}

func (pb *ProjectionBuilder) add(kind ProjectionKind, property string) *ProjectionBuilder {
	pb.parent.query.Projections = append(pb.parent.query.Projections, Projection{Kind: kind, Property: property})
	return pb
}

// Property selects a property path.
func (pb *ProjectionBuilder) Property(path string) *ProjectionBuilder {
	return pb.add(ProjectionProperty, path)
}

// Id selects the identity.
func (pb *ProjectionBuilder) Id() *ProjectionBuilder { return pb.add(ProjectionId, "") }

// Count selects COUNT(*).
func (pb *ProjectionBuilder) Count() *ProjectionBuilder { return pb.add(ProjectionCount, "") }

// CountProperty selects the count of non-null values of a property.
func (pb *ProjectionBuilder) CountProperty(path string) *ProjectionBuilder {
	return pb.add(ProjectionCountProperty, path)
}

// CountDistinct selects the count of distinct values of a property.
func (pb *ProjectionBuilder) CountDistinct(path string) *ProjectionBuilder {
	return pb.add(ProjectionCountDistinct, path)
}

// DistinctProperty selects the distinct values of a property.
func (pb *ProjectionBuilder) DistinctProperty(path string) *ProjectionBuilder {
	return pb.add(ProjectionDistinct, path)
}

// Max selects the maximum of a property.
func (pb *ProjectionBuilder) Max(path string) *ProjectionBuilder { return pb.add(ProjectionMax, path) }

// Min selects the minimum of a property.
func (pb *ProjectionBuilder) Min(path string) *ProjectionBuilder { return pb.add(ProjectionMin, path) }

// Sum selects the sum of a property.
func (pb *ProjectionBuilder) Sum(path string) *ProjectionBuilder { return pb.add(ProjectionSum, path) }

// Avg selects the average of a property.
func (pb *ProjectionBuilder) Avg(path string) *ProjectionBuilder { return pb.add(ProjectionAvg, path) }

// As aliases the last projection.
func (pb *ProjectionBuilder) As(alias string) *ProjectionBuilder {
	projections := pb.parent.query.Projections
	if n := len(projections); n > 0 {
		projections[n-1].Alias = alias
	}
	return pb
}

// End finalizes the projection list and returns to the query builder.
func (pb *ProjectionBuilder) End() *QueryBuilder {
	return pb.parent
}

// QueryValidationError represents an error found during query validation.
type QueryValidationError struct {
	Field   string
	Message string
}

// Error returns the error message for a QueryValidationError.
func (ve QueryValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// QueryValidationResult contains the results of a query validation.
type QueryValidationResult struct {
	IsValid bool
	Errors  []QueryValidationError
}

// Validate checks the built query for structural mistakes that do not need
// the metamodel: bad pagination, cursors without sort orders, empty join
// paths and aggregates without a property.
func (qb *QueryBuilder) Validate() QueryValidationResult {
	var errors []QueryValidationError

	if p := qb.query.Pageable; p != nil {
		if p.Size <= 0 {
			errors = append(errors, QueryValidationError{Field: "pageable.size", Message: "size must be greater than 0"})
		}
		if p.Page < 0 {
			errors = append(errors, QueryValidationError{Field: "pageable.page", Message: "page cannot be negative"})
		}
		if len(p.Cursor) > 0 {
			orders := len(qb.query.Sort) + len(p.Sort)
			if orders == 0 {
				errors = append(errors, QueryValidationError{Field: "pageable.cursor", Message: "cursor pagination requires a sort order"})
			} else if len(p.Cursor) != orders {
				errors = append(errors, QueryValidationError{Field: "pageable.cursor", Message: fmt.Sprintf("cursor has %d values for %d sort orders", len(p.Cursor), orders)})
			}
		}
	}

	for i, join := range qb.query.Joins {
		if join.Path == "" {
			errors = append(errors, QueryValidationError{Field: fmt.Sprintf("joins[%d].path", i), Message: "join path cannot be empty"})
		}
	}

	for i, p := range qb.query.Projections {
		switch p.Kind {
		case ProjectionCount, ProjectionId:
		default:
			if p.Property == "" {
				errors = append(errors, QueryValidationError{Field: fmt.Sprintf("projections[%d].property", i), Message: fmt.Sprintf("property is required for %s projections", p.Kind)})
			}
		}
	}

	return QueryValidationResult{
		IsValid: len(errors) == 0,
		Errors:  errors,
	}
}

// String returns a human-readable representation of the built query.
func (qb *QueryBuilder) String() string {
	var parts []string

	if len(qb.criteria) > 0 {
		parts = append(parts, fmt.Sprintf("CRITERIA: %d", len(qb.criteria)))
	}
	if len(qb.query.Projections) > 0 {
		var fields []string
		for _, p := range qb.query.Projections {
			if p.Property != "" {
				fields = append(fields, fmt.Sprintf("%s(%s)", p.Kind, p.Property))
			} else {
				fields = append(fields, string(p.Kind))
			}
		}
		parts = append(parts, "SELECT: "+strings.Join(fields, ", "))
	}
	if len(qb.query.Joins) > 0 {
		var joins []string
		for _, j := range qb.query.Joins {
			joins = append(joins, j.Path)
		}
		parts = append(parts, "JOIN: "+strings.Join(joins, ", "))
	}
	if len(qb.query.Sort) > 0 {
		var sorts []string
		for _, s := range qb.query.Sort {
			sorts = append(sorts, fmt.Sprintf("%s %s", s.Property, s.Direction))
		}
		parts = append(parts, "SORT: "+strings.Join(sorts, ", "))
	}
	if p := qb.query.Pageable; p != nil {
		if len(p.Cursor) > 0 {
			parts = append(parts, fmt.Sprintf("CURSOR: %v", p.Cursor))
		} else {
			parts = append(parts, fmt.Sprintf("PAGE: %d SIZE: %d", p.Page, p.Size))
		}
	}

	if len(parts) == 0 {
		return "Empty query"
	}
	return strings.Join(parts, " | ")
}

// Package query defines the dialect-neutral query model consumed by the
// compiler: a criteria tree, projections, join requests, sort orders and
// pagination. A Query is read-only once handed to the compiler.
package query

// LogicalOperator combines criteria in a Junction.
type LogicalOperator string

// Logical operators for combining criteria.
const (
	LogicalOperatorAnd LogicalOperator = "and"
	LogicalOperatorOr  LogicalOperator = "or"
)

// ComparisonOperator defines the operators usable in a Comparison.
type ComparisonOperator string

// Supported comparison operators.
const (
	ComparisonOperatorEq         ComparisonOperator = "eq"
	ComparisonOperatorNeq        ComparisonOperator = "neq"
	ComparisonOperatorLt         ComparisonOperator = "lt"
	ComparisonOperatorLte        ComparisonOperator = "lte"
	ComparisonOperatorGt         ComparisonOperator = "gt"
	ComparisonOperatorGte        ComparisonOperator = "gte"
	ComparisonOperatorBetween    ComparisonOperator = "between"
	ComparisonOperatorIn         ComparisonOperator = "in"
	ComparisonOperatorNin        ComparisonOperator = "nin"
	ComparisonOperatorLike       ComparisonOperator = "like"
	ComparisonOperatorILike      ComparisonOperator = "ilike"
	ComparisonOperatorContains   ComparisonOperator = "contains"
	ComparisonOperatorStartsWith ComparisonOperator = "startswith"
	ComparisonOperatorEndsWith   ComparisonOperator = "endswith"
	ComparisonOperatorIsNull     ComparisonOperator = "isnull"
	ComparisonOperatorIsNotNull  ComparisonOperator = "isnotnull"
	ComparisonOperatorIsTrue     ComparisonOperator = "istrue"
	ComparisonOperatorIsFalse    ComparisonOperator = "isfalse"
	ComparisonOperatorIsEmpty    ComparisonOperator = "isempty"
	ComparisonOperatorIsNotEmpty ComparisonOperator = "isnotempty"
)

// Criterion is a node of the criteria tree. The interface is sealed: only
// types in this package implement it, so compilers can switch exhaustively.
type Criterion interface {
	criterionNode()
}

// Comparison compares a property path against a value. Value may be a
// literal or a ParameterReference.
type Comparison struct {
	Property   string
	Operator   ComparisonOperator
	Value      any
	Upper      any  // Upper bound for Between.
	IgnoreCase bool // Compare with LOWER() on both sides.
}

// IdEquals matches the entity identity, expanding composite ids into one
// predicate per component.
type IdEquals struct {
	Value any
}

// VersionEquals matches the entity version property.
type VersionEquals struct {
	Value any
}

// Junction combines criteria with AND or OR.
type Junction struct {
	Operator LogicalOperator
	Criteria []Criterion
}

// Negation negates a criterion.
type Negation struct {
	Criterion Criterion
}

// SubqueryOperator links a property to a subquery.
type SubqueryOperator string

// Supported subquery operators.
const (
	SubqueryIn        SubqueryOperator = "in"
	SubqueryNotIn     SubqueryOperator = "nin"
	SubqueryExists    SubqueryOperator = "exists"
	SubqueryNotExists SubqueryOperator = "nexists"
)

// Subquery tests a property against the rows of a query over another
// entity. Exists variants ignore Property.
type Subquery struct {
	Property string
	Operator SubqueryOperator
	Entity   string
	Query    *Query
}

func (Comparison) criterionNode()    {}
func (IdEquals) criterionNode()      {}
func (VersionEquals) criterionNode() {}
func (Junction) criterionNode()      {}
func (Negation) criterionNode()      {}
func (Subquery) criterionNode()      {}

// ParameterReference stands for a runtime argument instead of a literal
// value. Path selects a nested value within the argument.
type ParameterReference struct {
	Name string
	Path string
}

// Param references the runtime argument with the given name.
func Param(name string) ParameterReference {
	return ParameterReference{Name: name}
}

// ParamPath references a nested value of a runtime argument.
func ParamPath(name, path string) ParameterReference {
	return ParameterReference{Name: name, Path: path}
}

// ProjectionKind is the kind of a projection.
type ProjectionKind string

// Supported projection kinds.
const (
	ProjectionProperty      ProjectionKind = "property"
	ProjectionId            ProjectionKind = "id"
	ProjectionCount         ProjectionKind = "count"
	ProjectionCountProperty ProjectionKind = "count_property"
	ProjectionCountDistinct ProjectionKind = "count_distinct"
	ProjectionDistinct      ProjectionKind = "distinct"
	ProjectionMax           ProjectionKind = "max"
	ProjectionMin           ProjectionKind = "min"
	ProjectionSum           ProjectionKind = "sum"
	ProjectionAvg           ProjectionKind = "avg"
)

// Projection selects a property, aggregate or the identity.
type Projection struct {
	Kind     ProjectionKind
	Property string
	Alias    string
}

// JoinType specifies how an association is joined.
type JoinType string

// Supported join types.
const (
	JoinTypeDefault JoinType = ""
	JoinTypeInner   JoinType = "inner"
	JoinTypeLeft    JoinType = "left"
	JoinTypeRight   JoinType = "right"
	JoinTypeOuter   JoinType = "outer"
)

// JoinRequest asks for an association path to be joined. Fetch joins add the
// associated columns to the select list.
type JoinRequest struct {
	Path  string
	Type  JoinType
	Fetch bool
}

// SortDirection specifies the direction for sorting.
type SortDirection string

// Supported sort directions.
const (
	SortDirectionAsc  SortDirection = "asc"
	SortDirectionDesc SortDirection = "desc"
)

// Order sorts by a property path.
type Order struct {
	Property   string
	Direction  SortDirection
	IgnoreCase bool
}

// Pageable requests one page of results. Page is zero based. Cursor holds the
// sort values of the last row of the previous page; when set, the page is
// selected by keyset rather than by offset.
type Pageable struct {
	Page   int
	Size   int
	Sort   []Order
	Cursor []any
}

// Offset returns the number of rows skipped before the page.
func (p Pageable) Offset() int {
	if len(p.Cursor) > 0 {
		return 0
	}
	return p.Page * p.Size
}

// Unpaged reports whether the pageable requests no limit.
func (p Pageable) Unpaged() bool {
	return p.Size <= 0
}

// Query is the top-level query model.
type Query struct {
	Criteria    Criterion
	Projections []Projection
	Joins       []JoinRequest
	Sort        []Order
	Pageable    *Pageable
	Distinct    bool
}

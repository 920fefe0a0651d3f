package catalog

import (
	"fmt"
	"strings"

	"github.com/asaidimu/go-quarry/core"
	"github.com/asaidimu/go-quarry/core/compiler"
	"github.com/asaidimu/go-quarry/core/query"
	"gopkg.in/yaml.v3"
)

// Definition is the on-disk form of a catalog: the dialect to compile for and
// the named queries.
type Definition struct {
	Dialect         string            `yaml:"dialect,omitempty"`
	NamedParameters bool              `yaml:"namedParameters,omitempty"`
	Queries         []QueryDefinition `yaml:"queries"`
}

// QueryDefinition describes one named statement over an entity.
type QueryDefinition struct {
	Name               string                 `yaml:"name"`
	Entity             string                 `yaml:"entity"`
	Operation          query.Operation        `yaml:"operation,omitempty"`
	Where              *CriterionDefinition   `yaml:"where,omitempty"`
	Projections        []ProjectionDefinition `yaml:"projections,omitempty"`
	Joins              []JoinDefinition       `yaml:"joins,omitempty"`
	Sort               []OrderDefinition      `yaml:"sort,omitempty"`
	Page               *PageDefinition        `yaml:"page,omitempty"`
	Distinct           bool                   `yaml:"distinct,omitempty"`
	Set                []AssignmentDefinition `yaml:"set,omitempty"`
	AllowUnconditional bool                   `yaml:"allowUnconditional,omitempty"`
}

// ValueDefinition is either a literal value or a reference to a runtime
// argument, optionally narrowed by a path.
type ValueDefinition struct {
	Value any    `yaml:"value,omitempty"`
	Param string `yaml:"param,omitempty"`
	Path  string `yaml:"path,omitempty"`
}

func (v *ValueDefinition) resolve() any {
	if v == nil {
		return nil
	}
	if v.Param != "" {
		return query.ParamPath(v.Param, v.Path)
	}
	return v.Value
}

// CriterionDefinition is one node of a criteria tree. Exactly one of the
// junctions (and, or, not), id, version, subquery or a property comparison
// is set.
type CriterionDefinition struct {
	And []*CriterionDefinition `yaml:"and,omitempty"`
	Or  []*CriterionDefinition `yaml:"or,omitempty"`
	Not *CriterionDefinition   `yaml:"not,omitempty"`

	ID       *ValueDefinition    `yaml:"id,omitempty"`
	Version  *ValueDefinition    `yaml:"version,omitempty"`
	Subquery *SubqueryDefinition `yaml:"subquery,omitempty"`

	Property        string           `yaml:"property,omitempty"`
	Op              string           `yaml:"op,omitempty"`
	ValueDefinition `yaml:",inline"`
	Upper           *ValueDefinition `yaml:"upper,omitempty"`
	IgnoreCase      bool             `yaml:"ignoreCase,omitempty"`
}

// SubqueryDefinition tests a property against a query over another entity.
type SubqueryDefinition struct {
	Property string          `yaml:"property,omitempty"`
	Op       string          `yaml:"op"`
	Entity   string          `yaml:"entity"`
	Query    QueryDefinition `yaml:"query"`
}

// ProjectionDefinition selects a property or an aggregate.
type ProjectionDefinition struct {
	Kind     query.ProjectionKind `yaml:"kind"`
	Property string               `yaml:"property,omitempty"`
	Alias    string               `yaml:"alias,omitempty"`
}

// JoinDefinition requests a join on an association path.
type JoinDefinition struct {
	Path  string         `yaml:"path"`
	Type  query.JoinType `yaml:"type,omitempty"`
	Fetch bool           `yaml:"fetch,omitempty"`
}

// OrderDefinition sorts by a property path.
type OrderDefinition struct {
	Property   string              `yaml:"property"`
	Direction  query.SortDirection `yaml:"direction,omitempty"`
	IgnoreCase bool                `yaml:"ignoreCase,omitempty"`
}

// PageDefinition requests a page, or the page after a cursor.
type PageDefinition struct {
	Page   int   `yaml:"page,omitempty"`
	Size   int   `yaml:"size"`
	Cursor []any `yaml:"cursor,omitempty"`
}

// AssignmentDefinition sets a property in an UPDATE.
type AssignmentDefinition struct {
	Property        string `yaml:"property"`
	ValueDefinition `yaml:",inline"`
}

var comparisonOperators = map[string]query.ComparisonOperator{}

func init() {
	for _, op := range []query.ComparisonOperator{
		query.ComparisonOperatorEq, query.ComparisonOperatorNeq,
		query.ComparisonOperatorLt, query.ComparisonOperatorLte,
		query.ComparisonOperatorGt, query.ComparisonOperatorGte,
		query.ComparisonOperatorBetween, query.ComparisonOperatorIn, query.ComparisonOperatorNin,
		query.ComparisonOperatorLike, query.ComparisonOperatorILike, query.ComparisonOperatorContains,
		query.ComparisonOperatorStartsWith, query.ComparisonOperatorEndsWith,
		query.ComparisonOperatorIsNull, query.ComparisonOperatorIsNotNull,
		query.ComparisonOperatorIsTrue, query.ComparisonOperatorIsFalse,
		query.ComparisonOperatorIsEmpty, query.ComparisonOperatorIsNotEmpty,
	} {
		comparisonOperators[string(op)] = op
	}
}

var subqueryOperators = map[string]query.SubqueryOperator{
	string(query.SubqueryIn):        query.SubqueryIn,
	string(query.SubqueryNotIn):     query.SubqueryNotIn,
	string(query.SubqueryExists):    query.SubqueryExists,
	string(query.SubqueryNotExists): query.SubqueryNotExists,
}

// ParseDefinition parses a YAML catalog definition.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse catalog definition: %w", err)
	}
	if len(def.Queries) == 0 {
		return nil, fmt.Errorf("catalog definition declares no queries")
	}
	return &def, nil
}

// ParseQuery parses a single YAML query definition.
func ParseQuery(data []byte) (*QueryDefinition, error) {
	var def QueryDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse query definition: %w", err)
	}
	return &def, nil
}

// Criterion converts the definition into a criteria tree.
func (d *CriterionDefinition) Criterion() (query.Criterion, error) {
	switch {
	case len(d.And) > 0:
		return junction(query.LogicalOperatorAnd, d.And)
	case len(d.Or) > 0:
		return junction(query.LogicalOperatorOr, d.Or)
	case d.Not != nil:
		inner, err := d.Not.Criterion()
		if err != nil {
			return nil, err
		}
		return query.Negation{Criterion: inner}, nil
	case d.ID != nil:
		return query.IdEquals{Value: d.ID.resolve()}, nil
	case d.Version != nil:
		return query.VersionEquals{Value: d.Version.resolve()}, nil
	case d.Subquery != nil:
		op, ok := subqueryOperators[strings.ToLower(d.Subquery.Op)]
		if !ok {
			return nil, fmt.Errorf("unknown subquery operator %q", d.Subquery.Op)
		}
		sub, err := d.Subquery.Query.Query()
		if err != nil {
			return nil, fmt.Errorf("subquery over %s: %w", d.Subquery.Entity, err)
		}
		return query.Subquery{Property: d.Subquery.Property, Operator: op, Entity: d.Subquery.Entity, Query: sub}, nil
	case d.Property != "":
		op := query.ComparisonOperatorEq
		if d.Op != "" {
			var ok bool
			if op, ok = comparisonOperators[strings.ToLower(d.Op)]; !ok {
				return nil, fmt.Errorf("unknown comparison operator %q on %s", d.Op, d.Property)
			}
		}
		return query.Comparison{
			Property:   d.Property,
			Operator:   op,
			Value:      d.ValueDefinition.resolve(),
			Upper:      d.Upper.resolve(),
			IgnoreCase: d.IgnoreCase,
		}, nil
	}
	return nil, fmt.Errorf("empty criterion")
}

func junction(op query.LogicalOperator, defs []*CriterionDefinition) (query.Criterion, error) {
	criteria := make([]query.Criterion, 0, len(defs))
	for _, def := range defs {
		c, err := def.Criterion()
		if err != nil {
			return nil, err
		}
		criteria = append(criteria, c)
	}
	return query.Junction{Operator: op, Criteria: criteria}, nil
}

// Builder converts the definition into a query builder.
func (d *QueryDefinition) Builder() (*query.QueryBuilder, error) {
	qb := query.NewQueryBuilder()
	if d.Where != nil {
		c, err := d.Where.Criterion()
		if err != nil {
			return nil, err
		}
		qb.Match(c)
	}

	if len(d.Projections) > 0 {
		pb := qb.Select()
		for _, p := range d.Projections {
			switch p.Kind {
			case query.ProjectionProperty, "":
				pb.Property(p.Property)
			case query.ProjectionId:
				pb.Id()
			case query.ProjectionCount:
				pb.Count()
			case query.ProjectionCountProperty:
				pb.CountProperty(p.Property)
			case query.ProjectionCountDistinct:
				pb.CountDistinct(p.Property)
			case query.ProjectionDistinct:
				pb.DistinctProperty(p.Property)
			case query.ProjectionMax:
				pb.Max(p.Property)
			case query.ProjectionMin:
				pb.Min(p.Property)
			case query.ProjectionSum:
				pb.Sum(p.Property)
			case query.ProjectionAvg:
				pb.Avg(p.Property)
			default:
				return nil, fmt.Errorf("unknown projection kind %q", p.Kind)
			}
			if p.Alias != "" {
				pb.As(p.Alias)
			}
		}
		pb.End()
	}

	for _, j := range d.Joins {
		if j.Fetch {
			qb.Fetch(j.Path, j.Type)
		} else {
			qb.Join(j.Path, j.Type)
		}
	}
	for _, o := range d.Sort {
		direction := o.Direction
		if direction == "" {
			direction = query.SortDirectionAsc
		}
		if o.IgnoreCase {
			qb.OrderByIgnoreCase(o.Property, direction)
		} else {
			qb.OrderBy(o.Property, direction)
		}
	}
	if d.Page != nil {
		qb.Page(d.Page.Page, d.Page.Size)
		if len(d.Page.Cursor) > 0 {
			qb.Cursor(d.Page.Cursor...)
		}
	}
	if d.Distinct {
		qb.Distinct()
	}

	if result := qb.Validate(); !result.IsValid {
		return nil, result.Errors[0]
	}
	return qb, nil
}

// Query converts the definition into a query.
func (d *QueryDefinition) Query() (*query.Query, error) {
	qb, err := d.Builder()
	if err != nil {
		return nil, err
	}
	return qb.Build(), nil
}

// Compile compiles the definition with c. The operation defaults to select.
func (d *QueryDefinition) Compile(c *compiler.Compiler) (*query.QueryResult, error) {
	op := d.Operation
	if op == "" {
		op = query.OperationSelect
	}

	if op == query.OperationPagination {
		if d.Page == nil {
			return nil, fmt.Errorf("pagination query %s requires a page", d.Name)
		}
		return c.BuildPagination(query.Pageable{Page: d.Page.Page, Size: d.Page.Size})
	}

	entity, ok := c.Registry().Entity(d.Entity)
	if !ok {
		return nil, core.NewMappingError(d.Entity, "", "entity is not registered")
	}

	if op == query.OperationInsert {
		return c.BuildInsert(entity)
	}

	q, err := d.Query()
	if err != nil {
		return nil, err
	}

	switch op {
	case query.OperationSelect:
		return c.BuildQuery(entity, q)
	case query.OperationCount:
		return c.BuildCount(entity, q)
	case query.OperationUpdate:
		spec := query.UpdateSpec{Criteria: q.Criteria, AllowUnconditional: d.AllowUnconditional}
		for _, a := range d.Set {
			spec.Assignments = append(spec.Assignments, query.Assignment{Property: a.Property, Value: a.ValueDefinition.resolve()})
		}
		return c.BuildUpdate(entity, spec)
	case query.OperationDelete:
		return c.BuildDelete(entity, query.DeleteSpec{Criteria: q.Criteria, AllowUnconditional: d.AllowUnconditional})
	}
	return nil, fmt.Errorf("unknown operation %q", op)
}

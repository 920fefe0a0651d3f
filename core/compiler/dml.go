package compiler

import (
	"fmt"
	"strings"

	"github.com/asaidimu/go-quarry/core"
	"github.com/asaidimu/go-quarry/core/query"
	"github.com/asaidimu/go-quarry/core/schema"
	"github.com/asaidimu/go-quarry/dialect"
)

// unaliased switches a state to the single-table form used by INSERT,
// UPDATE and DELETE: no alias and no joins.
func unaliased(state *QueryState) {
	state.alias = ""
	state.joins = false
}

// entityBinding binds a column to a path of the entity argument.
func (c *Compiler) entityBinding(state *QueryState, col column, argumentPath string) string {
	return state.bind(query.ParameterBinding{
		PropertyPath:  col.path,
		Column:        col.name,
		DataType:      col.prop.Type,
		ArgumentName:  query.EntityArgument,
		ArgumentPath:  argumentPath,
		AutoPopulated: col.prop.AutoPopulated,
	})
}

// writableColumns lists the columns of p written from the entity argument,
// with the argument path supplying each one.
func (c *Compiler) writableColumns(p *schema.PersistentProperty) ([]column, error) {
	if p.IsForeignKey() {
		target, err := c.registry.Target(p)
		if err != nil {
			return nil, err
		}
		return c.foreignKeyColumns("", p, target, p.Name).columns, nil
	}
	var cols []column
	for _, leaf := range schema.Leaves(p) {
		cols = append(cols, column{expr: c.column("", leaf.PersistedName), name: leaf.PersistedName, path: leaf.Path(), prop: leaf})
	}
	return cols, nil
}

func skipWrite(p *schema.PersistentProperty) bool {
	if p.Transient || p.ReadOnly {
		return true
	}
	return p.IsAssociation() && !p.IsForeignKey()
}

// buildInsert renders INSERT INTO t (cols) VALUES (?,...) with every value
// bound from the entity argument. A generated identity is left to the
// database unless the dialect supplies an explicit value expression.
func (c *Compiler) buildInsert(state *QueryState) (string, error) {
	unaliased(state)
	entity := state.entity
	spec := dialect.InsertSpec{Table: c.table(entity, "")}
	add := func(col column, value string) {
		spec.Columns = append(spec.Columns, col.name)
		spec.Rendered = append(spec.Rendered, col.expr)
		spec.Values = append(spec.Values, value)
	}

	generated := false
	for _, id := range entity.IdentityProperties() {
		if id.Generated {
			generated = true
			explicit := false
			if len(entity.IdentityColumns()) == 1 {
				sequence := id.Sequence
				if sequence == "" {
					sequence = entity.PersistedName + "_seq"
				}
				if expr, ok := c.dialect.GeneratedValue(sequence); ok {
					add(column{expr: c.column("", id.PersistedName), name: id.PersistedName}, expr)
					explicit = true
				}
			}
			if !explicit && !c.dialect.Supports(dialect.FeatureGeneratedIdentity) {
				return "", core.NewUnsupportedError(c.dialect.Name(), dialect.FeatureGeneratedIdentity.String())
			}
			continue
		}
		cols, err := c.writableColumns(id)
		if err != nil {
			return "", err
		}
		for _, col := range cols {
			add(col, c.entityBinding(state, col, col.path))
		}
	}

	properties := entity.Properties
	if entity.Version != nil {
		properties = append(append([]*schema.PersistentProperty{}, properties...), entity.Version)
	}
	for _, p := range properties {
		if skipWrite(p) || p.Generated {
			continue
		}
		cols, err := c.writableColumns(p)
		if err != nil {
			return "", err
		}
		for _, col := range cols {
			add(col, c.entityBinding(state, col, col.path))
		}
	}
	if len(spec.Columns) == 0 {
		return "", core.NewMappingError(entity.Name, "", "entity has no insertable columns")
	}

	stmt := c.dialect.InsertStatement(spec)
	if generated && c.dialect.Supports(dialect.FeatureReturning) {
		ids, err := c.identityColumns("", entity)
		if err != nil {
			return "", err
		}
		rendered := make([]string, len(ids))
		for i, col := range ids {
			rendered[i] = col.expr
		}
		if returning := c.dialect.Returning(rendered); returning != "" {
			stmt += " " + returning
		}
	}
	return stmt, nil
}

// buildUpdate renders UPDATE t SET c=?,... WHERE .... Without assignments
// every updatable property is bound from the entity argument. Without
// criteria the statement is bound to the identity and, when the entity is
// versioned, checks and bumps the version.
func (c *Compiler) buildUpdate(state *QueryState, spec query.UpdateSpec) (string, error) {
	unaliased(state)
	entity := state.entity
	identityBound := spec.Criteria == nil && !spec.AllowUnconditional
	if identityBound && !entity.HasIdentity() {
		return "", fmt.Errorf("%w: %s has no identity; set AllowUnconditional to update every row", core.ErrUnsafeOperation, entity.Name)
	}

	var sets []string
	assigned := make(map[string]bool)
	if len(spec.Assignments) == 0 {
		for _, p := range entity.Properties {
			if skipWrite(p) || p.Generated || p.AutoPopulated == schema.AutoPopulatedDateCreated {
				continue
			}
			cols, err := c.writableColumns(p)
			if err != nil {
				return "", err
			}
			for _, col := range cols {
				sets = append(sets, col.expr+"="+c.entityBinding(state, col, col.path))
			}
			assigned[p.Name] = true
		}
	} else {
		for _, a := range spec.Assignments {
			r, err := c.resolve(state, a.Property)
			if err != nil {
				return "", err
			}
			if r.property == entity.Identity || isIdentityComponent(entity, r.property) {
				return "", core.NewMappingError(entity.Name, a.Property, "identity columns cannot be updated")
			}
			for _, col := range r.columns {
				v, err := componentValue(entity.Name, col, a.Value)
				if err != nil {
					return "", err
				}
				sets = append(sets, col.expr+"="+c.bindValue(state, col, v, query.LikeNone))
			}
			assigned[schema.SplitPath(a.Property)[0]] = true
		}
		for _, p := range entity.Properties {
			if p.AutoPopulated != schema.AutoPopulatedDateUpdated || assigned[p.Name] || skipWrite(p) {
				continue
			}
			cols, err := c.writableColumns(p)
			if err != nil {
				return "", err
			}
			for _, col := range cols {
				sets = append(sets, col.expr+"="+c.entityBinding(state, col, col.path))
			}
		}
	}

	version := entity.Version
	locked := identityBound && version != nil
	if locked {
		col := column{expr: c.column("", version.PersistedName), name: version.PersistedName, path: version.Name, prop: version}
		sets = append(sets, col.expr+"="+state.bind(query.ParameterBinding{
			PropertyPath: col.path,
			Column:       col.name,
			DataType:     version.Type,
			ArgumentName: query.EntityArgument,
			ArgumentPath: version.Name,
			NextVersion:  true,
		}))
	}
	if len(sets) == 0 {
		return "", core.NewMappingError(entity.Name, "", "nothing to update")
	}

	where, err := c.mutationWhere(state, spec.Criteria, spec.AllowUnconditional, locked)
	if err != nil {
		return "", err
	}
	stmt := "UPDATE " + c.table(entity, "") + " SET " + strings.Join(sets, ",")
	if where != "" {
		stmt += " " + where
	}
	return stmt, nil
}

// buildDelete renders DELETE FROM t WHERE ..., bound to the identity (and
// version) unless criteria are given.
func (c *Compiler) buildDelete(state *QueryState, spec query.DeleteSpec) (string, error) {
	unaliased(state)
	entity := state.entity
	identityBound := spec.Criteria == nil && !spec.AllowUnconditional
	if identityBound && !entity.HasIdentity() {
		return "", fmt.Errorf("%w: %s has no identity; set AllowUnconditional to delete every row", core.ErrUnsafeOperation, entity.Name)
	}
	where, err := c.mutationWhere(state, spec.Criteria, spec.AllowUnconditional, identityBound && entity.Version != nil)
	if err != nil {
		return "", err
	}
	stmt := "DELETE FROM " + c.table(entity, "")
	if where != "" {
		stmt += " " + where
	}
	return stmt, nil
}

// mutationWhere renders the WHERE of an UPDATE or DELETE: the criteria when
// given, nothing when unconditional, else the identity of the entity
// argument plus its version when locked. Dialects with conditional
// mutations check the version in a trailing IF clause instead.
func (c *Compiler) mutationWhere(state *QueryState, crit query.Criterion, unconditional, locked bool) (string, error) {
	entity := state.entity
	if crit != nil {
		where, err := c.whereClause(state, crit, nil, nil)
		if err != nil {
			return "", err
		}
		if where == "" && !unconditional {
			return "", fmt.Errorf("%w: criteria of %s render no condition", core.ErrUnsafeOperation, entity.Name)
		}
		return where, nil
	}
	if unconditional {
		return "", nil
	}

	cols, err := c.identityColumns("", entity)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(cols)+1)
	for _, col := range cols {
		parts = append(parts, col.expr+" = "+c.entityBinding(state, col, col.path))
	}
	if !locked {
		return c.where(strings.Join(parts, " AND ")), nil
	}

	v := entity.Version
	col := column{expr: c.column("", v.PersistedName), name: v.PersistedName, path: v.Name, prop: v}
	check := col.expr + " = " + c.entityBinding(state, col, v.Name)
	if c.dialect.Supports(dialect.FeatureConditionalMutation) {
		// Only key columns may appear in the WHERE of a conditional mutation.
		return c.where(strings.Join(parts, " AND ")) + " IF " + check, nil
	}
	return c.where(strings.Join(append(parts, check), " AND ")), nil
}

func isIdentityComponent(entity *schema.PersistentEntity, p *schema.PersistentProperty) bool {
	for _, id := range entity.IdentityProperties() {
		if id == p {
			return true
		}
		for _, leaf := range schema.Leaves(id) {
			if leaf == p {
				return true
			}
		}
	}
	return false
}

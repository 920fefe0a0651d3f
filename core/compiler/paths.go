package compiler

import (
	"fmt"
	"strings"

	"github.com/asaidimu/go-quarry/core"
	"github.com/asaidimu/go-quarry/core/schema"
)

// column is one physical column a property path resolves to.
type column struct {
	expr string                     // Rendered, alias qualified.
	name string                     // Raw column name.
	path string                     // Property path from the statement root.
	rel  string                     // Path relative to the resolved property, "" for single columns.
	prop *schema.PersistentProperty // Leaf property supplying the data type.
}

// resolved is a property path mapped onto columns.
type resolved struct {
	property *schema.PersistentProperty
	columns  []column
}

func (r *resolved) single(entity, path string) (column, error) {
	if len(r.columns) != 1 {
		return column{}, core.NewMappingError(entity, path, fmt.Sprintf("property maps to %d columns where one is required", len(r.columns)))
	}
	return r.columns[0], nil
}

// resolve maps a dotted property path onto columns, joining associations
// along the way. A path ending in the identity of an owning to-one
// association resolves to the foreign key column without a join.
func (c *Compiler) resolve(state *QueryState, path string) (*resolved, error) {
	root := state.entity
	segments := schema.SplitPath(path)
	if len(segments) == 0 {
		return nil, core.NewMappingError(root.Name, path, "empty property path")
	}

	entity, alias := root, state.alias
	var embedded *schema.PersistentProperty
	for i, segment := range segments {
		var p *schema.PersistentProperty
		if embedded != nil {
			p = embedded.FindEmbedded(segment)
		} else {
			p = entity.FindProperty(segment)
		}
		if p == nil {
			return nil, core.NewMappingError(root.Name, path, fmt.Sprintf("unknown property '%s' on %s", segment, entity.Name))
		}
		if p.Transient {
			return nil, core.NewMappingError(root.Name, path, "transient properties are not persisted")
		}
		last := i == len(segments)-1

		switch {
		case p.IsEmbedded():
			if last {
				return c.leafColumns(alias, p, path), nil
			}
			embedded = p

		case p.IsAssociation():
			target, err := c.registry.Target(p)
			if err != nil {
				return nil, err
			}
			if p.IsForeignKey() && i == len(segments)-2 && target.Identity != nil &&
				!target.HasCompositeIdentity() && target.Identity.Name == segments[i+1] {
				fk := p.Association.ForeignKeyColumns[0]
				return &resolved{
					property: target.Identity,
					columns:  []column{{expr: c.column(alias, fk), name: fk, path: path, prop: target.Identity}},
				}, nil
			}
			if last {
				if !p.IsForeignKey() {
					return nil, core.NewMappingError(root.Name, path, "collection and inverse associations have no column; reference one of their properties")
				}
				return c.foreignKeyColumns(alias, p, target, path), nil
			}
			hop := strings.Join(segments[:i+1], ".")
			_, joined, err := c.BuildJoin(state, hop, "")
			if err != nil {
				return nil, err
			}
			entity, alias = target, joined

		default:
			if !last {
				return nil, core.NewMappingError(root.Name, path, fmt.Sprintf("'%s' is neither an association nor embedded", segment))
			}
			return &resolved{
				property: p,
				columns:  []column{{expr: c.column(alias, p.PersistedName), name: p.PersistedName, path: path, prop: p}},
			}, nil
		}
	}
	return nil, core.NewMappingError(root.Name, path, "path does not end in a property")
}

// leafColumns expands an embedded property into its leaf columns.
func (c *Compiler) leafColumns(alias string, p *schema.PersistentProperty, path string) *resolved {
	r := &resolved{property: p}
	for _, leaf := range schema.Leaves(p) {
		rel := strings.TrimPrefix(leaf.Path(), p.Path()+".")
		r.columns = append(r.columns, column{
			expr: c.column(alias, leaf.PersistedName),
			name: leaf.PersistedName,
			path: path + "." + rel,
			rel:  rel,
			prop: leaf,
		})
	}
	return r
}

// foreignKeyColumns maps an owning to-one association onto its key columns,
// paired with the target's identity leaves.
func (c *Compiler) foreignKeyColumns(alias string, p *schema.PersistentProperty, target *schema.PersistentEntity, path string) *resolved {
	r := &resolved{property: p}
	leaves := target.IdentityColumns()
	composite := len(leaves) > 1
	for i, fk := range p.Association.ForeignKeyColumns {
		if i >= len(leaves) {
			break
		}
		col := column{
			expr: c.column(alias, fk),
			name: fk,
			path: path + "." + leaves[i].Path(),
			prop: leaves[i],
		}
		if composite {
			col.rel = leaves[i].Path()
		}
		r.columns = append(r.columns, col)
	}
	return r
}

// identityColumns maps the entity identity onto columns at alias. rel is
// the component path used to pick a composite value apart.
func (c *Compiler) identityColumns(alias string, entity *schema.PersistentEntity) ([]column, error) {
	if !entity.HasIdentity() {
		return nil, core.NewMappingError(entity.Name, "", "entity has no identity")
	}
	leaves := entity.IdentityColumns()
	cols := make([]column, 0, len(leaves))
	for _, leaf := range leaves {
		col := column{
			expr: c.column(alias, leaf.PersistedName),
			name: leaf.PersistedName,
			path: leaf.Path(),
			prop: leaf,
		}
		if entity.HasCompositeIdentity() {
			col.rel = leaf.Path()
			if entity.Identity != nil {
				col.rel = strings.TrimPrefix(leaf.Path(), entity.Identity.Name+".")
			}
		}
		cols = append(cols, col)
	}
	return cols, nil
}

// entityColumns lists every column the entity maps to, in declaration order:
// identity, properties and version. Collections and inverse associations
// have no column.
func (c *Compiler) entityColumns(alias string, entity *schema.PersistentEntity) []column {
	var cols []column
	for _, p := range entity.AllProperties() {
		if p.Transient {
			continue
		}
		if p.IsAssociation() {
			if !p.IsForeignKey() {
				continue
			}
			target, err := c.registry.Target(p)
			if err != nil {
				continue
			}
			cols = append(cols, c.foreignKeyColumns(alias, p, target, p.Name).columns...)
			continue
		}
		for _, leaf := range schema.Leaves(p) {
			cols = append(cols, column{
				expr: c.column(alias, leaf.PersistedName),
				name: leaf.PersistedName,
				path: leaf.Path(),
				prop: leaf,
			})
		}
	}
	return cols
}

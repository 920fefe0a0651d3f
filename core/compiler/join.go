package compiler

import (
	"fmt"
	"strings"

	"github.com/asaidimu/go-quarry/core"
	"github.com/asaidimu/go-quarry/core/query"
	"github.com/asaidimu/go-quarry/core/schema"
	"github.com/asaidimu/go-quarry/dialect"
)

// BuildJoin applies the joins for an association path, hop by hop, and
// returns the fragment produced by this call together with the alias of the
// path's last hop. Hops already applied to the state are reused: joining an
// applied path returns an empty fragment and the existing alias.
func (c *Compiler) BuildJoin(state *QueryState, path string, joinType query.JoinType) (string, string, error) {
	if !c.dialect.Supports(dialect.FeatureJoins) {
		return "", "", core.NewUnsupportedError(c.dialect.Name(), dialect.FeatureJoins.String())
	}
	if !state.joins {
		return "", "", core.NewMappingError(state.entity.Name, path, "association paths cannot be joined in this statement")
	}
	segments := schema.SplitPath(path)
	if len(segments) == 0 {
		return "", "", core.NewMappingError(state.entity.Name, path, "empty join path")
	}
	state.Request(path, joinType)

	entity, alias := state.entity, state.alias
	var fragments []string
	for i, segment := range segments {
		hop := strings.Join(segments[:i+1], ".")
		p := entity.FindProperty(segment)
		if p == nil || !p.IsAssociation() {
			return "", "", core.NewMappingError(state.entity.Name, hop, fmt.Sprintf("'%s' is not an association of %s", segment, entity.Name))
		}
		target, err := c.registry.Target(p)
		if err != nil {
			return "", "", err
		}
		if applied, ok := state.applied[hop]; ok {
			entity, alias = target, applied
			continue
		}

		targetAlias := state.joinAlias(hop)
		fragment, err := c.joinHop(state, p, entity, alias, target, targetAlias, state.joinTypeFor(hop))
		if err != nil {
			return "", "", err
		}
		state.applied[hop] = targetAlias
		state.fragments = append(state.fragments, fragment)
		state.paths = append(state.paths, hop)
		fragments = append(fragments, fragment)
		entity, alias = target, targetAlias
	}
	return strings.Join(fragments, " "), alias, nil
}

// joinHop renders the join from the owner (at ownerAlias) across p to target.
func (c *Compiler) joinHop(state *QueryState, p *schema.PersistentProperty, owner *schema.PersistentEntity, ownerAlias string,
	target *schema.PersistentEntity, targetAlias string, joinType query.JoinType) (string, error) {
	keyword, err := joinKeyword(joinType)
	if err != nil {
		return "", core.NewMappingError(owner.Name, p.Name, err.Error())
	}

	switch {
	case p.IsForeignKey():
		return c.joinOn(keyword, target, targetAlias,
			ownerAlias, p.Association.ForeignKeyColumns,
			targetAlias, columnNames(target.IdentityColumns())), nil

	case p.Association.MappedBy != "":
		owning, err := c.registry.Inverse(p)
		if err != nil {
			return "", err
		}
		if owning.IsForeignKey() {
			return c.joinOn(keyword, target, targetAlias,
				ownerAlias, columnNames(owner.IdentityColumns()),
				targetAlias, owning.Association.ForeignKeyColumns), nil
		}
	}

	// Collections owned through a join table, from either side.
	jt, err := c.registry.JoinTableFor(p)
	if err != nil {
		return "", err
	}
	junctionAlias := state.reserveAlias(targetAlias + "junction_")
	junction := c.joinOnTable(keyword, c.quote(jt.Name), junctionAlias,
		ownerAlias, columnNames(owner.IdentityColumns()),
		junctionAlias, jt.JoinColumns)
	hop := c.joinOn(keyword, target, targetAlias,
		junctionAlias, jt.InverseJoinColumns,
		targetAlias, columnNames(target.IdentityColumns()))
	return junction + " " + hop, nil
}

func (c *Compiler) joinOn(keyword string, target *schema.PersistentEntity, targetAlias string,
	leftAlias string, left []string, rightAlias string, right []string) string {
	return c.joinOnTable(keyword, c.quote(target.PersistedName), targetAlias, leftAlias, left, rightAlias, right)
}

func (c *Compiler) joinOnTable(keyword, table, tableAlias string,
	leftAlias string, left []string, rightAlias string, right []string) string {
	conditions := make([]string, 0, len(left))
	for i := range left {
		if i >= len(right) {
			break
		}
		conditions = append(conditions, c.column(leftAlias, left[i])+"="+c.column(rightAlias, right[i]))
	}
	return fmt.Sprintf("%s %s %s ON %s", keyword, table, tableAlias, strings.Join(conditions, " AND "))
}

// applyJoins applies the query's join requests in order.
func (c *Compiler) applyJoins(state *QueryState, joins []query.JoinRequest) error {
	for _, j := range joins {
		state.Request(j.Path, j.Type)
	}
	for _, j := range joins {
		if _, _, err := c.BuildJoin(state, j.Path, j.Type); err != nil {
			return err
		}
	}
	return nil
}

func joinKeyword(t query.JoinType) (string, error) {
	switch t {
	case query.JoinTypeDefault, query.JoinTypeInner:
		return "INNER JOIN", nil
	case query.JoinTypeLeft:
		return "LEFT JOIN", nil
	case query.JoinTypeRight:
		return "RIGHT JOIN", nil
	case query.JoinTypeOuter:
		return "FULL OUTER JOIN", nil
	default:
		return "", fmt.Errorf("unknown join type '%s'", t)
	}
}

func columnNames(props []*schema.PersistentProperty) []string {
	out := make([]string, len(props))
	for i, p := range props {
		out[i] = p.PersistedName
	}
	return out
}

// targetOf returns the entity an association path leads to.
func (c *Compiler) targetOf(state *QueryState, path string) (*schema.PersistentEntity, error) {
	entity := state.entity
	for _, segment := range schema.SplitPath(path) {
		p := entity.FindProperty(segment)
		if p == nil || !p.IsAssociation() {
			return nil, core.NewMappingError(state.entity.Name, path, fmt.Sprintf("'%s' is not an association of %s", segment, entity.Name))
		}
		target, err := c.registry.Target(p)
		if err != nil {
			return nil, err
		}
		entity = target
	}
	return entity, nil
}

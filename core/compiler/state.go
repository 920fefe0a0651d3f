package compiler

import (
	"fmt"
	"strings"

	"github.com/asaidimu/go-quarry/core/query"
	"github.com/asaidimu/go-quarry/core/schema"
)

// QueryState holds everything that changes while one statement compiles:
// the joins applied so far, their fragments, and the bindings in placeholder
// order. A QueryState belongs to a single Build call and is never shared
// between goroutines.
type QueryState struct {
	entity    *schema.PersistentEntity
	alias     string // Root alias, "" when the statement is unaliased.
	joins     bool   // Whether association paths may be joined.
	applied   map[string]string
	fragments []string
	paths     []string
	requested map[string]query.JoinType

	// Shared with subquery states.
	bindings   *[]query.ParameterBinding
	subqueries *int
	aliases    map[string]struct{} // Every alias used in the statement.
}

func newState(entity *schema.PersistentEntity, alias string, joins bool) *QueryState {
	s := &QueryState{
		entity:     entity,
		alias:      alias,
		joins:      joins,
		applied:    make(map[string]string),
		requested:  make(map[string]query.JoinType),
		bindings:   &[]query.ParameterBinding{},
		subqueries: new(int),
		aliases:    make(map[string]struct{}),
	}
	if alias != "" {
		s.aliases[alias] = struct{}{}
	}
	return s
}

// child returns a state for a subquery over entity. Bindings, aliases and
// the subquery counter are shared with the parent so placeholders stay
// ordered and aliases stay distinct. The alias must come from reserveAlias.
func (s *QueryState) child(entity *schema.PersistentEntity, alias string) *QueryState {
	return &QueryState{
		entity:     entity,
		alias:      alias,
		joins:      s.joins,
		applied:    make(map[string]string),
		requested:  make(map[string]query.JoinType),
		bindings:   s.bindings,
		subqueries: s.subqueries,
		aliases:    s.aliases,
	}
}

// Entity returns the root entity of the state.
func (s *QueryState) Entity() *schema.PersistentEntity {
	return s.entity
}

// Alias returns the root alias, "" for unaliased statements.
func (s *QueryState) Alias() string {
	return s.alias
}

// AppliedJoins returns the applied association paths mapped to their
// aliases.
func (s *QueryState) AppliedJoins() map[string]string {
	out := make(map[string]string, len(s.applied))
	for k, v := range s.applied {
		out[k] = v
	}
	return out
}

// Bindings returns the bindings recorded so far.
func (s *QueryState) Bindings() []query.ParameterBinding {
	return *s.bindings
}

// Request records the join type asked for a path. Unspecified types never
// replace a recorded one.
func (s *QueryState) Request(path string, t query.JoinType) {
	if current, ok := s.requested[path]; ok && (t == query.JoinTypeDefault || current != query.JoinTypeDefault) {
		return
	}
	s.requested[path] = t
}

// bind records a binding and returns its positional marker.
func (s *QueryState) bind(b query.ParameterBinding) string {
	*s.bindings = append(*s.bindings, b)
	return "?"
}

// joinAlias reserves the alias of an association path, derived from the
// root alias.
func (s *QueryState) joinAlias(path string) string {
	return s.reserveAlias(s.alias + strings.ReplaceAll(path, ".", "_") + "_")
}

// reserveAlias records base as used and returns it. When another path
// already took base, the first free "<base><n>_" with n >= 2 is used
// instead: author.publisher and author_publisher both derive
// book_author_publisher_.
func (s *QueryState) reserveAlias(base string) string {
	alias := base
	for n := 2; ; n++ {
		if _, taken := s.aliases[alias]; !taken {
			break
		}
		alias = fmt.Sprintf("%s%d_", base, n)
	}
	s.aliases[alias] = struct{}{}
	return alias
}

// joinTypeFor resolves the join type of a path: the type requested for the
// path itself, else the type of the deepest requested descendant, else INNER.
func (s *QueryState) joinTypeFor(path string) query.JoinType {
	if t := s.requested[path]; t != query.JoinTypeDefault {
		return t
	}
	deepest := ""
	found := query.JoinTypeInner
	prefix := path + "."
	for p, t := range s.requested {
		if t == query.JoinTypeDefault || !strings.HasPrefix(p, prefix) {
			continue
		}
		if len(p) > len(deepest) || (len(p) == len(deepest) && p < deepest) {
			deepest, found = p, t
		}
	}
	return found
}

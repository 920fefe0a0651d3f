package schema

import (
	"fmt"
	"strings"

	"github.com/asaidimu/go-quarry/core"
	"github.com/go-openapi/inflect"
)

// Registry owns a finalized set of entities. Registration fills in persisted
// names, aliases, foreign key columns and join tables from the naming
// strategy, then validates the result. A Registry must not be modified after
// NewRegistry returns; compilers read it concurrently.
type Registry struct {
	naming   NamingStrategy
	entities map[string]*PersistentEntity
	order    []*PersistentEntity
}

// NewRegistry finalizes and validates the given entities.
func NewRegistry(naming NamingStrategy, entities ...*PersistentEntity) (*Registry, error) {
	if naming == nil {
		naming = UnderscoreSeparatedLowerCase
	}
	r := &Registry{
		naming:   naming,
		entities: make(map[string]*PersistentEntity, len(entities)),
	}

	for _, e := range entities {
		if e == nil {
			return nil, fmt.Errorf("%w: nil entity", core.ErrInvalidEntity)
		}
		if _, exists := r.entities[e.Name]; exists {
			return nil, fmt.Errorf("%w: duplicate entity '%s'", core.ErrInvalidEntity, e.Name)
		}
		r.entities[e.Name] = e
		r.order = append(r.order, e)
	}

	validator := NewValidator(r)
	if ok, issues := validator.Validate(); !ok {
		return nil, &ValidationError{Issues: issues}
	}

	for _, e := range r.order {
		r.finalizeEntity(e)
	}
	for _, e := range r.order {
		if err := r.finalizeAssociations(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Entity returns the entity registered under name.
func (r *Registry) Entity(name string) (*PersistentEntity, bool) {
	e, ok := r.entities[name]
	return e, ok
}

// Entities returns all entities in registration order.
func (r *Registry) Entities() []*PersistentEntity {
	out := make([]*PersistentEntity, len(r.order))
	copy(out, r.order)
	return out
}

// Naming returns the registry's naming strategy.
func (r *Registry) Naming() NamingStrategy {
	return r.naming
}

// Target returns the entity an association property points to.
func (r *Registry) Target(p *PersistentProperty) (*PersistentEntity, error) {
	if p.Association == nil {
		return nil, core.NewMappingError(ownerName(p), p.Path(), "property is not an association")
	}
	target, ok := r.entities[p.Association.Target]
	if !ok {
		return nil, core.NewMappingError(ownerName(p), p.Path(), fmt.Sprintf("unknown association target '%s'", p.Association.Target))
	}
	return target, nil
}

// Inverse returns the owning-side property named by a MappedBy association.
func (r *Registry) Inverse(p *PersistentProperty) (*PersistentProperty, error) {
	target, err := r.Target(p)
	if err != nil {
		return nil, err
	}
	owning := target.FindProperty(p.Association.MappedBy)
	if owning == nil {
		return nil, core.NewMappingError(ownerName(p), p.Path(), fmt.Sprintf("mappedBy property '%s' not found on %s", p.Association.MappedBy, target.Name))
	}
	return owning, nil
}

// JoinTableFor returns the junction table for a many-to-many (or
// unidirectional one-to-many) association, oriented from p's owner: the
// JoinColumns reference p's owner and the InverseJoinColumns its target.
func (r *Registry) JoinTableFor(p *PersistentProperty) (*JoinTable, error) {
	if p.Association == nil {
		return nil, core.NewMappingError(ownerName(p), p.Path(), "property is not an association")
	}
	if p.Association.MappedBy == "" {
		if p.Association.JoinTable == nil {
			return nil, core.NewMappingError(ownerName(p), p.Path(), "association has no join table")
		}
		return p.Association.JoinTable, nil
	}
	owning, err := r.Inverse(p)
	if err != nil {
		return nil, err
	}
	if owning.Association == nil || owning.Association.JoinTable == nil {
		return nil, core.NewMappingError(ownerName(p), p.Path(), "owning side has no join table")
	}
	jt := owning.Association.JoinTable
	return &JoinTable{
		Name:               jt.Name,
		JoinColumns:        jt.InverseJoinColumns,
		InverseJoinColumns: jt.JoinColumns,
	}, nil
}

func (r *Registry) finalizeEntity(e *PersistentEntity) {
	if e.PersistedName == "" {
		e.PersistedName = r.naming.MappedName(e.Name)
	}
	if e.Alias == "" {
		e.Alias = strings.ToLower(inflect.Underscore(e.Name)) + "_"
	}
	for _, p := range e.AllProperties() {
		r.finalizeProperty(e, nil, p)
	}
}

func (r *Registry) finalizeProperty(e *PersistentEntity, parent, p *PersistentProperty) {
	p.owner = e
	p.parent = parent
	if p.Type == "" {
		switch {
		case p.Association != nil:
			p.Type = DataTypeEntity
		case len(p.Embedded) > 0:
			p.Type = DataTypeObject
		default:
			p.Type = DataTypeString
		}
	}
	if p.PersistedName == "" {
		if parent != nil {
			p.PersistedName = parent.PersistedName + "_" + r.naming.MappedName(p.Name)
		} else {
			p.PersistedName = r.naming.MappedName(p.Name)
		}
	}
	for _, sub := range p.Embedded {
		r.finalizeProperty(e, p, sub)
	}
}

func (r *Registry) finalizeAssociations(e *PersistentEntity) error {
	for _, p := range e.Properties {
		if p.Association == nil {
			continue
		}
		target, err := r.Target(p)
		if err != nil {
			return err
		}
		a := p.Association
		if p.IsForeignKey() && len(a.ForeignKeyColumns) == 0 {
			for _, leaf := range target.IdentityColumns() {
				a.ForeignKeyColumns = append(a.ForeignKeyColumns, p.PersistedName+"_"+leaf.PersistedName)
			}
		}
		if a.MappedBy == "" && p.IsCollection() {
			if a.JoinTable == nil {
				a.JoinTable = &JoinTable{}
			}
			if a.JoinTable.Name == "" {
				a.JoinTable.Name = e.PersistedName + "_" + target.PersistedName
			}
			if len(a.JoinTable.JoinColumns) == 0 {
				for _, leaf := range e.IdentityColumns() {
					a.JoinTable.JoinColumns = append(a.JoinTable.JoinColumns, r.naming.MappedName(e.Name)+"_"+leaf.PersistedName)
				}
			}
			if len(a.JoinTable.InverseJoinColumns) == 0 {
				for _, leaf := range target.IdentityColumns() {
					a.JoinTable.InverseJoinColumns = append(a.JoinTable.InverseJoinColumns, r.naming.MappedName(target.Name)+"_"+leaf.PersistedName)
				}
			}
		}
	}
	return nil
}

func ownerName(p *PersistentProperty) string {
	if p.owner == nil {
		return "?"
	}
	return p.owner.Name
}

// ValidationError aggregates the issues that prevented registration.
type ValidationError struct {
	Issues []Issue
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		msgs = append(msgs, fmt.Sprintf("%s at %s: %s", issue.Code, issue.Path, issue.Message))
	}
	return fmt.Sprintf("%s: %s", core.ErrInvalidEntity.Error(), strings.Join(msgs, "; "))
}

// Is reports whether the target error matches core.ErrInvalidEntity.
func (e *ValidationError) Is(err error) bool {
	return err == core.ErrInvalidEntity
}

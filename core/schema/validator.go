package schema

import (
	"fmt"
)

// Validator checks the entities of a Registry for structural problems:
// missing names, conflicting identity strategies, duplicate properties and
// inconsistent associations.
type Validator struct {
	registry *Registry
	issues   []Issue
}

// NewValidator creates a new Validator for the registry's entities.
func NewValidator(registry *Registry) *Validator {
	return &Validator{
		registry: registry,
		issues:   make([]Issue, 0),
	}
}

// Validate checks every entity and returns whether no error-severity issue
// was found, along with all issues.
func (v *Validator) Validate() (bool, []Issue) {
	v.issues = make([]Issue, 0)
	for _, e := range v.registry.order {
		v.validateEntity(e)
	}

	valid := true
	for _, issue := range v.issues {
		if issue.Severity == "error" {
			valid = false
			break
		}
	}
	return valid, v.issues
}

func (v *Validator) validateEntity(e *PersistentEntity) {
	if e.Name == "" {
		v.addIssue("MISSING_NAME", "Entity must declare a name", "", "error")
		return
	}

	if e.Identity != nil && len(e.CompositeIdentity) > 0 {
		v.addIssue("DUPLICATE_IDENTITY", "Entity declares both a single and a composite identity", e.Name, "error")
	}
	if e.Version != nil && e.Version.Association != nil {
		v.addIssue("INVALID_VERSION", "Version property cannot be an association", e.Name+"."+e.Version.Name, "error")
	}

	seen := make(map[string]struct{})
	for _, p := range e.AllProperties() {
		path := e.Name + "." + p.Name
		if p.Name == "" {
			v.addIssue("MISSING_NAME", "Property must declare a name", e.Name, "error")
			continue
		}
		if _, dup := seen[p.Name]; dup {
			v.addIssue("DUPLICATE_PROPERTY", fmt.Sprintf("Property '%s' is declared more than once", p.Name), path, "error")
		}
		seen[p.Name] = struct{}{}
		v.validateProperty(e, p, path)
	}
}

func (v *Validator) validateProperty(e *PersistentEntity, p *PersistentProperty, path string) {
	if p.Association != nil && len(p.Embedded) > 0 {
		v.addIssue("INVALID_PROPERTY", "Property cannot be both an association and embedded", path, "error")
		return
	}
	for _, sub := range p.Embedded {
		if sub.Association != nil {
			v.addIssue("INVALID_PROPERTY", "Embedded sub-properties cannot be associations", path+"."+sub.Name, "error")
		}
	}
	if p.Association == nil {
		return
	}

	a := p.Association
	switch a.Kind {
	case RelationOneToOne, RelationManyToOne, RelationOneToMany, RelationManyToMany:
	default:
		v.addIssue("INVALID_RELATION", fmt.Sprintf("Unknown relation kind '%s'", a.Kind), path, "error")
		return
	}

	target, ok := v.registry.entities[a.Target]
	if !ok {
		v.addIssue("UNKNOWN_TARGET", fmt.Sprintf("Association target '%s' is not registered", a.Target), path, "error")
		return
	}

	if a.MappedBy == "" {
		if (a.Kind == RelationManyToOne || a.Kind == RelationOneToOne || a.Kind == RelationManyToMany) && !target.HasIdentity() {
			v.addIssue("MISSING_IDENTITY", fmt.Sprintf("Association target '%s' has no identity to reference", target.Name), path, "error")
		}
		if a.Kind == RelationManyToMany && !e.HasIdentity() {
			v.addIssue("MISSING_IDENTITY", "Many-to-many owner has no identity to reference", path, "error")
		}
		if a.Kind == RelationOneToOne && target != e {
			for _, back := range target.Properties {
				if back.Association != nil && back.Association.Kind == RelationOneToOne &&
					back.Association.Target == e.Name && back.Association.MappedBy == "" {
					v.addIssue("AMBIGUOUS_OWNER", fmt.Sprintf("Both %s and %s.%s hold the foreign key; mark one side with mappedBy", path, target.Name, back.Name), path, "error")
				}
			}
		}
		return
	}

	if a.Kind == RelationManyToOne {
		v.addIssue("INVALID_MAPPED_BY", "Many-to-one associations are always the owning side", path, "error")
		return
	}
	owning := target.FindProperty(a.MappedBy)
	if owning == nil {
		v.addIssue("MAPPED_BY_NOT_FOUND", fmt.Sprintf("mappedBy property '%s' not found on %s", a.MappedBy, target.Name), path, "error")
		return
	}
	if owning.Association == nil || owning.Association.Target != e.Name {
		v.addIssue("MAPPED_BY_MISMATCH", fmt.Sprintf("%s.%s does not reference %s", target.Name, owning.Name, e.Name), path, "error")
		return
	}
	if owning.Association.MappedBy != "" {
		v.addIssue("NO_OWNING_SIDE", "Both sides of the association declare mappedBy", path, "error")
		return
	}
	if a.Kind == RelationOneToMany && owning.Association.Kind != RelationManyToOne {
		v.addIssue("MAPPED_BY_MISMATCH", "One-to-many must be mapped by a many-to-one association", path, "error")
	}
	if !e.HasIdentity() {
		v.addIssue("MISSING_IDENTITY", "Inverse side has no identity to join on", path, "error")
	}
}

// addIssue records a validation issue.
func (v *Validator) addIssue(code, message, path, severity string) {
	v.issues = append(v.issues, Issue{
		Code:     code,
		Message:  message,
		Path:     path,
		Severity: severity,
	})
}

// Package schema defines the persistent metamodel consumed by the query compiler.
// A metamodel describes the shape of each mapped entity: its table, identity,
// version, scalar and embedded properties, and associations to other entities.
// The compiler treats these definitions as an immutable snapshot.
package schema

import (
	"fmt"
	"strings"
)

// DataType tags the storage type of a persistent property.
type DataType string

const (
	DataTypeString    DataType = "STRING"
	DataTypeInteger   DataType = "INTEGER"
	DataTypeLong      DataType = "LONG"
	DataTypeBoolean   DataType = "BOOLEAN"
	DataTypeDouble    DataType = "DOUBLE"
	DataTypeDecimal   DataType = "DECIMAL"
	DataTypeDate      DataType = "DATE"
	DataTypeTimestamp DataType = "TIMESTAMP"
	DataTypeUUID      DataType = "UUID"
	DataTypeJSON      DataType = "JSON"  // Serialized document column
	DataTypeArray     DataType = "ARRAY" // Vendor array column
	DataTypeBytes     DataType = "BYTES"
	DataTypeObject    DataType = "OBJECT" // Embedded value, expands into sub-columns
	DataTypeEntity    DataType = "ENTITY" // Association to another entity
)

// Relation is the kind of relationship an association property models.
type Relation string

const (
	RelationNone       Relation = ""
	RelationOneToOne   Relation = "ONE_TO_ONE"
	RelationManyToOne  Relation = "MANY_TO_ONE"
	RelationOneToMany  Relation = "ONE_TO_MANY"
	RelationManyToMany Relation = "MANY_TO_MANY"
	RelationEmbedded   Relation = "EMBEDDED"
)

// Cascade names an operation that propagates across an association.
type Cascade string

const (
	CascadePersist Cascade = "PERSIST"
	CascadeUpdate  Cascade = "UPDATE"
	CascadeRemove  Cascade = "REMOVE"
	CascadeAll     Cascade = "ALL"
)

// AutoPopulated marks properties whose values are supplied by the runtime
// rather than by the caller.
type AutoPopulated string

const (
	AutoPopulatedNone        AutoPopulated = ""
	AutoPopulatedDateCreated AutoPopulated = "DATE_CREATED"
	AutoPopulatedDateUpdated AutoPopulated = "DATE_UPDATED"
)

// JoinTable describes the junction table of a many-to-many association.
// Empty fields are filled in by the Registry from the naming strategy.
type JoinTable struct {
	Name               string   `json:"name,omitempty" yaml:"name,omitempty"`
	JoinColumns        []string `json:"joinColumns,omitempty" yaml:"joinColumns,omitempty"`               // Columns referencing the owning entity.
	InverseJoinColumns []string `json:"inverseJoinColumns,omitempty" yaml:"inverseJoinColumns,omitempty"` // Columns referencing the target entity.
}

// Association carries the relationship details of an association property.
type Association struct {
	Kind      Relation   `json:"kind" yaml:"kind"`
	Target    string     `json:"target" yaml:"target"`                           // Name of the associated entity.
	MappedBy  string     `json:"mappedBy,omitempty" yaml:"mappedBy,omitempty"`   // Set on the inverse side.
	JoinTable *JoinTable `json:"joinTable,omitempty" yaml:"joinTable,omitempty"` // Many-to-many only.
	Cascade   []Cascade  `json:"cascade,omitempty" yaml:"cascade,omitempty"`
	// ForeignKeyColumns overrides the generated foreign key column names on
	// the owning side of a to-one association.
	ForeignKeyColumns []string `json:"foreignKeyColumns,omitempty" yaml:"foreignKeyColumns,omitempty"`
}

// PersistentProperty describes a scalar, embedded or association attribute.
type PersistentProperty struct {
	Name          string        `json:"name" yaml:"name"`
	PersistedName string        `json:"persistedName,omitempty" yaml:"persistedName,omitempty"`
	Type          DataType      `json:"type,omitempty" yaml:"type,omitempty"`
	Nullable      bool          `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	Generated     bool          `json:"generated,omitempty" yaml:"generated,omitempty"` // Value assigned by the database.
	Sequence      string        `json:"sequence,omitempty" yaml:"sequence,omitempty"`   // Sequence backing a generated id.
	AutoPopulated AutoPopulated `json:"autoPopulated,omitempty" yaml:"autoPopulated,omitempty"`
	ReadOnly      bool          `json:"readOnly,omitempty" yaml:"readOnly,omitempty"`
	Transient     bool          `json:"transient,omitempty" yaml:"transient,omitempty"`
	// Association is set for ONE_TO_ONE, MANY_TO_ONE, ONE_TO_MANY and
	// MANY_TO_MANY properties.
	Association *Association `json:"association,omitempty" yaml:"association,omitempty"`
	// Embedded holds the sub-properties of an embedded value or embedded id.
	Embedded []*PersistentProperty `json:"embedded,omitempty" yaml:"embedded,omitempty"`

	owner  *PersistentEntity
	parent *PersistentProperty
}

// Kind returns the relation kind of the property.
func (p *PersistentProperty) Kind() Relation {
	if p.Association != nil {
		return p.Association.Kind
	}
	if len(p.Embedded) > 0 {
		return RelationEmbedded
	}
	return RelationNone
}

// IsAssociation reports whether the property references another entity.
func (p *PersistentProperty) IsAssociation() bool {
	return p.Association != nil
}

// IsEmbedded reports whether the property expands into sub-columns.
func (p *PersistentProperty) IsEmbedded() bool {
	return p.Association == nil && len(p.Embedded) > 0
}

// IsForeignKey reports whether this side of the association holds the
// physical key column(s): an owning to-one association.
func (p *PersistentProperty) IsForeignKey() bool {
	if p.Association == nil || p.Association.MappedBy != "" {
		return false
	}
	switch p.Association.Kind {
	case RelationManyToOne, RelationOneToOne:
		return true
	}
	return false
}

// IsCollection reports whether the association targets many rows.
func (p *PersistentProperty) IsCollection() bool {
	if p.Association == nil {
		return false
	}
	return p.Association.Kind == RelationOneToMany || p.Association.Kind == RelationManyToMany
}

// Owner returns the entity declaring the property.
func (p *PersistentProperty) Owner() *PersistentEntity {
	return p.owner
}

// Path returns the dotted property path from the entity root, which differs
// from Name for embedded sub-properties.
func (p *PersistentProperty) Path() string {
	if p.parent != nil {
		return p.parent.Path() + "." + p.Name
	}
	return p.Name
}

// FindEmbedded returns the embedded sub-property with the given name.
func (p *PersistentProperty) FindEmbedded(name string) *PersistentProperty {
	for _, sub := range p.Embedded {
		if sub.Name == name {
			return sub
		}
	}
	return nil
}

// PersistentEntity describes one mapped type.
type PersistentEntity struct {
	Name          string `json:"name" yaml:"name"`
	PersistedName string `json:"persistedName,omitempty" yaml:"persistedName,omitempty"`
	Alias         string `json:"alias,omitempty" yaml:"alias,omitempty"`
	// Identity is the single id property. An Identity with Embedded
	// sub-properties is an embedded (composite) id.
	Identity *PersistentProperty `json:"identity,omitempty" yaml:"identity,omitempty"`
	// CompositeIdentity lists root properties that together form the id.
	// It is mutually exclusive with Identity.
	CompositeIdentity []*PersistentProperty `json:"compositeIdentity,omitempty" yaml:"compositeIdentity,omitempty"`
	Version           *PersistentProperty   `json:"version,omitempty" yaml:"version,omitempty"`
	Properties        []*PersistentProperty `json:"properties,omitempty" yaml:"properties,omitempty"`
	Parent            string                `json:"parent,omitempty" yaml:"parent,omitempty"`
}

// HasIdentity reports whether the entity declares any identity.
func (e *PersistentEntity) HasIdentity() bool {
	return e.Identity != nil || len(e.CompositeIdentity) > 0
}

// HasCompositeIdentity reports whether the identity spans several columns.
func (e *PersistentEntity) HasCompositeIdentity() bool {
	return len(e.CompositeIdentity) > 0 || (e.Identity != nil && len(e.Identity.Embedded) > 0)
}

// IdentityProperties returns the root identity properties in declaration order.
func (e *PersistentEntity) IdentityProperties() []*PersistentProperty {
	if e.Identity != nil {
		return []*PersistentProperty{e.Identity}
	}
	return e.CompositeIdentity
}

// IdentityColumns returns the leaf identity properties, expanding an
// embedded id into its components.
func (e *PersistentEntity) IdentityColumns() []*PersistentProperty {
	var out []*PersistentProperty
	for _, p := range e.IdentityProperties() {
		out = append(out, Leaves(p)...)
	}
	return out
}

// AllProperties returns identity, version and regular properties in the
// order they map to columns.
func (e *PersistentEntity) AllProperties() []*PersistentProperty {
	all := make([]*PersistentProperty, 0, len(e.Properties)+2)
	all = append(all, e.IdentityProperties()...)
	all = append(all, e.Properties...)
	if e.Version != nil {
		all = append(all, e.Version)
	}
	return all
}

// FindProperty returns the root-level property with the given name,
// including identity and version properties.
func (e *PersistentEntity) FindProperty(name string) *PersistentProperty {
	for _, p := range e.AllProperties() {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// String implements fmt.Stringer.
func (e *PersistentEntity) String() string {
	return fmt.Sprintf("%s(%s)", e.Name, e.PersistedName)
}

// Leaves expands embedded properties into their leaf sub-properties. Any
// other property is returned as is.
func Leaves(p *PersistentProperty) []*PersistentProperty {
	if !p.IsEmbedded() {
		return []*PersistentProperty{p}
	}
	var out []*PersistentProperty
	for _, sub := range p.Embedded {
		out = append(out, Leaves(sub)...)
	}
	return out
}

// SplitPath splits a dotted property path into its segments.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// Issue represents a metamodel validation problem.
type Issue struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Path     string `json:"path,omitempty"`
	Severity string `json:"severity,omitempty"` // "error" or "warning"
}

// Document is a row or argument set keyed by property name.
type Document map[string]any

// Package query defines the interfaces for compiling the dialect-neutral query
// model into dialect-specific statements.
package query

import (
	"github.com/asaidimu/go-quarry/core/schema"
)

// EntityArgument is the argument name bindings use when a statement reads its
// values from the entity instance being inserted, updated or deleted.
const EntityArgument = "entity"

// Assignment sets a property in an UPDATE. Value may be a literal or a
// ParameterReference.
type Assignment struct {
	Property string
	Value    any
}

// UpdateSpec describes an UPDATE. Without Assignments every updatable
// property is bound from the entity argument. Without Criteria the statement
// is bound to the identity (and version, when present). AllowUnconditional
// permits an UPDATE without a WHERE clause on entities without identity.
type UpdateSpec struct {
	Assignments        []Assignment
	Criteria           Criterion
	AllowUnconditional bool
}

// DeleteSpec describes a DELETE. Without Criteria the statement is bound to
// the identity. AllowUnconditional must be set to delete every row.
type DeleteSpec struct {
	Criteria           Criterion
	AllowUnconditional bool
}

// QueryCompiler compiles the query model for one dialect. Implementations
// hold no per-call state and are safe for concurrent use.
type QueryCompiler interface {
	// BuildQuery compiles a SELECT over the entity.
	BuildQuery(entity *schema.PersistentEntity, q *Query) (*QueryResult, error)

	// BuildCount compiles a row-count SELECT over the entity, ignoring sort
	// and pagination.
	BuildCount(entity *schema.PersistentEntity, q *Query) (*QueryResult, error)

	// BuildInsert compiles a single-row INSERT bound to the entity argument.
	BuildInsert(entity *schema.PersistentEntity) (*QueryResult, error)

	// BuildUpdate compiles an UPDATE.
	BuildUpdate(entity *schema.PersistentEntity, spec UpdateSpec) (*QueryResult, error)

	// BuildDelete compiles a DELETE.
	BuildDelete(entity *schema.PersistentEntity, spec DeleteSpec) (*QueryResult, error)

	// BuildPagination compiles the dialect's pagination clause on its own.
	BuildPagination(pageable Pageable) (*QueryResult, error)
}

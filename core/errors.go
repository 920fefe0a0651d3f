// Package core holds the error taxonomy shared by the metamodel, the compiler
// and the dialects. All errors are local and deterministic: they describe a
// query that cannot be expressed as requested, never a transient condition.
package core

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below match these through errors.Is.
var (
	// ErrMapping is returned when a query references a property path, join
	// target or identity that the metamodel does not provide.
	ErrMapping = errors.New("quarry: mapping error")

	// ErrUnsupported is returned when a dialect cannot express a requested
	// construct, such as a join on a joinless backend.
	ErrUnsupported = errors.New("quarry: unsupported operation")

	// ErrDialectConfig is returned when a dialect is unknown or incompletely
	// configured.
	ErrDialectConfig = errors.New("quarry: dialect configuration error")

	// ErrUnsafeOperation is returned for an UPDATE or DELETE that would touch
	// every row without an explicit opt-in.
	ErrUnsafeOperation = errors.New("quarry: unconditional mutation not allowed")

	// ErrInvalidEntity is returned when the metamodel violates an invariant.
	ErrInvalidEntity = errors.New("quarry: invalid entity")
)

// MappingError describes an unresolvable reference against an entity.
type MappingError struct {
	Entity string
	Path   string
	Reason string
}

// Error returns the error string.
func (e *MappingError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("quarry: entity %s: %s", e.Entity, e.Reason)
	}
	return fmt.Sprintf("quarry: entity %s: path '%s': %s", e.Entity, e.Path, e.Reason)
}

// Is reports whether the target error matches ErrMapping.
func (e *MappingError) Is(err error) bool {
	return err == ErrMapping
}

// NewMappingError returns a new MappingError.
func NewMappingError(entity, path, reason string) *MappingError {
	return &MappingError{Entity: entity, Path: path, Reason: reason}
}

// UnsupportedError names a feature a dialect cannot express.
type UnsupportedError struct {
	Dialect string
	Feature string
}

// Error returns the error string.
func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("quarry: dialect %s does not support %s", e.Dialect, e.Feature)
}

// Is reports whether the target error matches ErrUnsupported.
func (e *UnsupportedError) Is(err error) bool {
	return err == ErrUnsupported
}

// NewUnsupportedError returns a new UnsupportedError.
func NewUnsupportedError(dialect, feature string) *UnsupportedError {
	return &UnsupportedError{Dialect: dialect, Feature: feature}
}

// IsMapping returns true if the error is a mapping error.
func IsMapping(err error) bool {
	return errors.Is(err, ErrMapping)
}

// IsUnsupported returns true if the error signals an unsupported capability.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}

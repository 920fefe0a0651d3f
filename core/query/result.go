package query

import (
	"strings"

	"github.com/asaidimu/go-quarry/core/schema"
)

// Operation is the kind of statement a QueryResult holds.
type Operation string

// Supported operations.
const (
	OperationSelect     Operation = "select"
	OperationCount      Operation = "count"
	OperationInsert     Operation = "insert"
	OperationUpdate     Operation = "update"
	OperationDelete     Operation = "delete"
	OperationPagination Operation = "pagination"
)

// LikePattern describes how a bound value is wrapped for a LIKE comparison.
type LikePattern string

// Supported LIKE patterns.
const (
	LikeNone     LikePattern = ""
	LikePrefix   LikePattern = "prefix"   // value%
	LikeSuffix   LikePattern = "suffix"   // %value
	LikeContains LikePattern = "contains" // %value%
)

// likeEscaper escapes the LIKE wildcards of a literal with a backslash.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// Apply wraps a string value according to the pattern. Wildcards inside the
// value are escaped so they match literally; LikeNone values are passed
// through as patterns.
func (p LikePattern) Apply(v string) string {
	switch p {
	case LikePrefix:
		return likeEscaper.Replace(v) + "%"
	case LikeSuffix:
		return "%" + likeEscaper.Replace(v)
	case LikeContains:
		return "%" + likeEscaper.Replace(v) + "%"
	default:
		return v
	}
}

// ParameterBinding describes one placeholder of a compiled statement: where
// its value comes from and what it is compared against or assigned to.
type ParameterBinding struct {
	Name         string          `json:"name" msgpack:"name"`         // Placeholder name, p1..pN.
	Position     int             `json:"position" msgpack:"position"` // 1-based position in the text.
	PropertyPath string          `json:"propertyPath,omitempty" msgpack:"propertyPath,omitempty"`
	Column       string          `json:"column,omitempty" msgpack:"column,omitempty"`
	DataType     schema.DataType `json:"dataType,omitempty" msgpack:"dataType,omitempty"`
	// ArgumentName is the runtime argument supplying the value. Empty for
	// literal values.
	ArgumentName string `json:"argumentName,omitempty" msgpack:"argumentName,omitempty"`
	// ArgumentPath selects a nested value of the argument, for example the
	// component of a composite id.
	ArgumentPath string      `json:"argumentPath,omitempty" msgpack:"argumentPath,omitempty"`
	Value        any         `json:"value,omitempty" msgpack:"value,omitempty"`
	HasValue     bool        `json:"hasValue,omitempty" msgpack:"hasValue,omitempty"`
	Pattern      LikePattern `json:"pattern,omitempty" msgpack:"pattern,omitempty"`
	// AutoPopulated marks date-created/updated values supplied at runtime.
	AutoPopulated schema.AutoPopulated `json:"autoPopulated,omitempty" msgpack:"autoPopulated,omitempty"`
	// NextVersion marks the bumped version of an optimistic-locking update.
	NextVersion bool `json:"nextVersion,omitempty" msgpack:"nextVersion,omitempty"`
	// Expansion is set when the argument is a collection that expands into
	// one placeholder per element at execution time.
	Expansion *Expansion `json:"expansion,omitempty" msgpack:"expansion,omitempty"`
}

// Expansion describes the IN / NOT IN predicate around an expandable
// binding, in the text of QueryResult.RawQuery.
type Expansion struct {
	// Prefix is the text directly preceding the placeholder, such as
	// `book_."pages" IN (`. A ")" directly follows the placeholder.
	Prefix string `json:"prefix" msgpack:"prefix"`
	// Empty replaces the whole predicate when the collection is empty.
	Empty string `json:"empty" msgpack:"empty"`
}

// Reference returns "argument.path" for argument bindings and "" for literals.
func (b ParameterBinding) Reference() string {
	if b.ArgumentName == "" {
		return ""
	}
	if b.ArgumentPath == "" {
		return b.ArgumentName
	}
	return b.ArgumentName + "." + b.ArgumentPath
}

// Bind returns the value to send for this placeholder: string values of LIKE
// bindings are wrapped in the binding's pattern.
func (b ParameterBinding) Bind(v any) any {
	if b.Pattern == LikeNone {
		return v
	}
	if s, ok := v.(string); ok {
		return b.Pattern.Apply(s)
	}
	return v
}

// QueryResult is the compiled form of a statement: the text and the ordered
// placeholder bindings. With NamedParameters the placeholders are :p1..:pN,
// otherwise they are positional in the dialect's format.
type QueryResult struct {
	ID              string             `json:"id" msgpack:"id"`
	Dialect         string             `json:"dialect" msgpack:"dialect"`
	Operation       Operation          `json:"operation" msgpack:"operation"`
	Entity          string             `json:"entity,omitempty" msgpack:"entity,omitempty"`
	Query           string             `json:"query" msgpack:"query"`
	Bindings        []ParameterBinding `json:"bindings,omitempty" msgpack:"bindings,omitempty"`
	NamedParameters bool               `json:"namedParameters,omitempty" msgpack:"namedParameters,omitempty"`
	JoinPaths       []string           `json:"joinPaths,omitempty" msgpack:"joinPaths,omitempty"`
	// RawQuery is the text with '?' markers before placeholder rewriting.
	// It is kept only when a binding expands at execution time.
	RawQuery string `json:"rawQuery,omitempty" msgpack:"rawQuery,omitempty"`
}

// Expandable reports whether any binding expands at execution time.
func (r *QueryResult) Expandable() bool {
	for _, b := range r.Bindings {
		if b.Expansion != nil {
			return true
		}
	}
	return false
}

// ParameterMap maps each placeholder name to its argument reference. Literal
// bindings map to "".
func (r *QueryResult) ParameterMap() map[string]string {
	out := make(map[string]string, len(r.Bindings))
	for _, b := range r.Bindings {
		out[b.Name] = b.Reference()
	}
	return out
}

// LiteralValues returns the values of literal bindings in placeholder order.
func (r *QueryResult) LiteralValues() []any {
	out := make([]any, 0, len(r.Bindings))
	for _, b := range r.Bindings {
		if b.HasValue {
			out = append(out, b.Bind(b.Value))
		}
	}
	return out
}

// String implements fmt.Stringer.
func (r *QueryResult) String() string {
	return r.Query
}

// Package dialect provides the vendor strategies the compiler renders with.
// A Dialect decides identifier quoting, placeholder format, pagination and
// which query shapes the backend can express at all. Dialects are immutable
// and safe for concurrent use.
package dialect

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/asaidimu/go-quarry/core"
)

// Feature names an optional capability of a dialect.
type Feature int

const (
	FeatureJoins             Feature = iota // JOIN clauses
	FeatureTableAlias                       // FROM "t" alias
	FeatureOr                               // OR junctions
	FeatureILike                            // native ILIKE
	FeatureReturning                        // INSERT ... RETURNING
	FeatureCount                            // COUNT(*) projections
	FeatureOffset                           // non-zero page offsets
	FeatureOrderedPagination                // pagination requires ORDER BY
	FeatureGrouping                         // parenthesized predicates, NOT (...)
	FeatureSubqueries                       // IN (SELECT ...) and EXISTS
	FeatureGeneratedIdentity                // database-assigned identities
	FeatureConditionalMutation              // version checks in an IF clause
)

// String returns the feature name used in error messages.
func (f Feature) String() string {
	switch f {
	case FeatureJoins:
		return "joins"
	case FeatureTableAlias:
		return "table aliases"
	case FeatureOr:
		return "OR predicates"
	case FeatureILike:
		return "ILIKE"
	case FeatureReturning:
		return "RETURNING"
	case FeatureCount:
		return "count projections"
	case FeatureOffset:
		return "offset pagination"
	case FeatureOrderedPagination:
		return "ordered pagination"
	case FeatureGrouping:
		return "grouped predicates"
	case FeatureSubqueries:
		return "subqueries"
	case FeatureGeneratedIdentity:
		return "generated identities"
	case FeatureConditionalMutation:
		return "conditional mutations"
	default:
		return fmt.Sprintf("feature(%d)", int(f))
	}
}

// InsertSpec carries the rendered parts of a single-row INSERT.
type InsertSpec struct {
	Table    string   // Rendered table name.
	Columns  []string // Raw column names.
	Rendered []string // Rendered (possibly quoted) column names.
	Values   []string // Placeholder or value expression per column.
}

// Dialect is the vendor strategy injected into the compiler.
type Dialect interface {
	// Name returns the registry name of the dialect.
	Name() string

	// QuoteIdentifier quotes a table or column name.
	QuoteIdentifier(name string) string

	// PlaceholderFormat rewrites the positional '?' markers the compiler
	// emits into the dialect's placeholder syntax.
	PlaceholderFormat() squirrel.PlaceholderFormat

	// Supports reports whether the dialect has the capability.
	Supports(f Feature) bool

	// RowCount returns the row-count projection.
	RowCount() (string, error)

	// PaginationClause renders the clause selecting limit rows after offset.
	PaginationClause(limit, offset int) (string, error)

	// Paginate applies pagination to a complete statement.
	Paginate(statement string, limit, offset int) (string, error)

	// InsertStatement renders a single-row INSERT.
	InsertStatement(spec InsertSpec) string

	// GeneratedValue returns the value expression that produces a generated
	// identity on insert, or false when the database assigns it implicitly.
	GeneratedValue(sequence string) (string, bool)

	// Returning renders the clause returning generated columns from an
	// INSERT, or "" when unsupported.
	Returning(columns []string) string

	// LikeEscape returns the clause appended to LIKE comparisons whose bound
	// values have wildcards and backslashes escaped with a backslash, or ""
	// when the backslash is already the escape character.
	LikeEscape() string
}

// Options configures dialect construction.
type Options struct {
	// OracleLegacyPagination wraps Oracle statements in ROWNUM filters for
	// databases older than 12c, which lack OFFSET/FETCH.
	OracleLegacyPagination bool
}

// DefaultOptions returns the default dialect options.
func DefaultOptions() *Options {
	return &Options{}
}

type constructor func(opts *Options) Dialect

var registry = map[string]constructor{
	"ansi":       func(*Options) Dialect { return Ansi() },
	"h2":         func(*Options) Dialect { return H2() },
	"postgres":   func(*Options) Dialect { return Postgres() },
	"postgresql": func(*Options) Dialect { return Postgres() },
	"mysql":      func(*Options) Dialect { return MySQL() },
	"sqlite":     func(*Options) Dialect { return SQLite() },
	"sqlite3":    func(*Options) Dialect { return SQLite() },
	"sqlserver":  func(*Options) Dialect { return SqlServer() },
	"mssql":      func(*Options) Dialect { return SqlServer() },
	"oracle":     func(o *Options) Dialect { return Oracle(o) },
	"cql":        func(*Options) Dialect { return Cql() },
	"cassandra":  func(*Options) Dialect { return Cql() },
	"dynamodb":   func(*Options) Dialect { return DynamoDb() },
}

// ByName returns the dialect registered under name. Names are case-insensitive.
func ByName(name string, opts *Options) (Dialect, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	ctor, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: unknown dialect '%s'", core.ErrDialectConfig, name)
	}
	return ctor(opts), nil
}

// Names returns the registered dialect names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func unsupported(d Dialect, f Feature) error {
	return core.NewUnsupportedError(d.Name(), f.String())
}

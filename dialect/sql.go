package dialect

import (
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/lib/pq"
)

type paginationStyle int

const (
	limitOffset paginationStyle = iota // LIMIT m OFFSET n
	offsetFetch                        // OFFSET n ROWS FETCH NEXT m ROWS ONLY
)

// base implements Dialect for the relational vendors. Variants differ only
// in the fields set by their constructors.
type base struct {
	name       string
	quote      func(string) string
	format     squirrel.PlaceholderFormat
	features   map[Feature]bool
	pagination paginationStyle
	likeEscape string
}

func newBase(name string, quote func(string) string, format squirrel.PlaceholderFormat, style paginationStyle, extra ...Feature) *base {
	features := map[Feature]bool{
		FeatureJoins:             true,
		FeatureTableAlias:        true,
		FeatureOr:                true,
		FeatureCount:             true,
		FeatureOffset:            true,
		FeatureGrouping:          true,
		FeatureSubqueries:        true,
		FeatureGeneratedIdentity: true,
	}
	for _, f := range extra {
		features[f] = true
	}
	return &base{
		name:       name,
		quote:      quote,
		format:     format,
		features:   features,
		pagination: style,
		likeEscape: ` ESCAPE '\'`,
	}
}

func (b *base) Name() string { return b.name }

func (b *base) QuoteIdentifier(name string) string { return b.quote(name) }

func (b *base) PlaceholderFormat() squirrel.PlaceholderFormat { return b.format }

func (b *base) Supports(f Feature) bool { return b.features[f] }

func (b *base) RowCount() (string, error) { return "COUNT(*)", nil }

func (b *base) PaginationClause(limit, offset int) (string, error) {
	if limit <= 0 {
		return "", fmt.Errorf("pagination requires a positive limit, got %d", limit)
	}
	if offset < 0 {
		offset = 0
	}
	switch b.pagination {
	case offsetFetch:
		return fmt.Sprintf("OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", offset, limit), nil
	default:
		if offset == 0 {
			return fmt.Sprintf("LIMIT %d", limit), nil
		}
		return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset), nil
	}
}

func (b *base) Paginate(statement string, limit, offset int) (string, error) {
	clause, err := b.PaginationClause(limit, offset)
	if err != nil {
		return "", err
	}
	return statement + " " + clause, nil
}

func (b *base) InsertStatement(spec InsertSpec) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		spec.Table, strings.Join(spec.Rendered, ","), strings.Join(spec.Values, ","))
}

func (b *base) GeneratedValue(string) (string, bool) { return "", false }

func (b *base) LikeEscape() string { return b.likeEscape }

func (b *base) Returning(columns []string) string {
	if !b.features[FeatureReturning] || len(columns) == 0 {
		return ""
	}
	return "RETURNING " + strings.Join(columns, ",")
}

// doubleQuote quotes with ANSI double quotes.
func doubleQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func backtick(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

func brackets(s string) string {
	return "[" + strings.ReplaceAll(s, "]", "]]") + "]"
}

// Ansi returns the ANSI SQL:2008 dialect.
func Ansi() Dialect {
	return newBase("ansi", doubleQuote, squirrel.Question, offsetFetch)
}

// H2 returns the H2 dialect.
func H2() Dialect {
	return newBase("h2", doubleQuote, squirrel.Question, limitOffset)
}

// Postgres returns the PostgreSQL dialect.
func Postgres() Dialect {
	return newBase("postgres", pq.QuoteIdentifier, squirrel.Dollar, limitOffset, FeatureILike, FeatureReturning)
}

// MySQL returns the MySQL dialect. Backslash is MySQL's default LIKE escape
// and would need doubling inside a literal, so no ESCAPE clause is rendered.
func MySQL() Dialect {
	b := newBase("mysql", backtick, squirrel.Question, limitOffset)
	b.likeEscape = ""
	return b
}

// SQLite returns the SQLite dialect.
func SQLite() Dialect {
	return newBase("sqlite", doubleQuote, squirrel.Question, limitOffset, FeatureReturning)
}

// SqlServer returns the Microsoft SQL Server dialect. Pagination requires an
// ORDER BY; the compiler falls back to the identity when none is given.
func SqlServer() Dialect {
	return newBase("sqlserver", brackets, squirrel.AtP, offsetFetch, FeatureOrderedPagination)
}

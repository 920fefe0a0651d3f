package dialect

import (
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/asaidimu/go-quarry/core"
)

type cql struct {
	*base
}

// Cql returns the Cassandra Query Language dialect. CQL has no joins, table
// aliases, OR predicates, parentheses or subqueries and can only limit from
// the first row. Identities are never generated, and version checks are
// lightweight transactions: UPDATE ... WHERE "id" = ? IF "version" = ?.
func Cql() Dialect {
	b := newBase("cql", doubleQuote, squirrel.Question, limitOffset)
	b.features = map[Feature]bool{FeatureCount: true, FeatureConditionalMutation: true}
	b.likeEscape = ""
	return &cql{base: b}
}

func (c *cql) PaginationClause(limit, offset int) (string, error) {
	if offset > 0 {
		return "", unsupported(c, FeatureOffset)
	}
	if limit <= 0 {
		return "", fmt.Errorf("pagination requires a positive limit, got %d", limit)
	}
	return fmt.Sprintf("LIMIT %d", limit), nil
}

func (c *cql) Paginate(statement string, limit, offset int) (string, error) {
	clause, err := c.PaginationClause(limit, offset)
	if err != nil {
		return "", err
	}
	return statement + " " + clause, nil
}

type dynamo struct {
	*base
}

// DynamoDb returns the DynamoDB PartiQL dialect. PartiQL statements address
// a single table: no joins, aliases, subqueries, row counts or pagination
// clauses, and identities are always supplied by the caller.
func DynamoDb() Dialect {
	b := newBase("dynamodb", doubleQuote, squirrel.Question, limitOffset)
	b.features = map[Feature]bool{FeatureOr: true, FeatureGrouping: true}
	b.likeEscape = ""
	return &dynamo{base: b}
}

func (d *dynamo) RowCount() (string, error) {
	return "", unsupported(d, FeatureCount)
}

func (d *dynamo) PaginationClause(int, int) (string, error) {
	return "", core.NewUnsupportedError(d.Name(), "pagination")
}

func (d *dynamo) Paginate(string, int, int) (string, error) {
	return "", core.NewUnsupportedError(d.Name(), "pagination")
}

// InsertStatement renders the PartiQL document form:
// INSERT INTO "t" VALUE {'a' : ?, 'b' : ?}.
func (d *dynamo) InsertStatement(spec InsertSpec) string {
	pairs := make([]string, len(spec.Columns))
	for i, col := range spec.Columns {
		pairs[i] = fmt.Sprintf("'%s' : %s", strings.ReplaceAll(col, "'", "''"), spec.Values[i])
	}
	return fmt.Sprintf("INSERT INTO %s VALUE {%s}", spec.Table, strings.Join(pairs, ", "))
}

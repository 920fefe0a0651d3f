package dialect

import (
	"fmt"

	"github.com/Masterminds/squirrel"
)

type oracle struct {
	*base
	legacy bool
}

// Oracle returns the Oracle dialect. With OracleLegacyPagination statements
// are paginated by wrapping them in ROWNUM filters.
func Oracle(opts *Options) Dialect {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &oracle{
		base:   newBase("oracle", doubleQuote, squirrel.Colon, offsetFetch),
		legacy: opts.OracleLegacyPagination,
	}
}

func (o *oracle) PaginationClause(limit, offset int) (string, error) {
	if o.legacy {
		return "", unsupported(o, FeatureOffset)
	}
	return o.base.PaginationClause(limit, offset)
}

func (o *oracle) Paginate(statement string, limit, offset int) (string, error) {
	if !o.legacy {
		return o.base.Paginate(statement, limit, offset)
	}
	if limit <= 0 {
		return "", fmt.Errorf("pagination requires a positive limit, got %d", limit)
	}
	if offset < 0 {
		offset = 0
	}
	if offset == 0 {
		return fmt.Sprintf("SELECT * FROM (%s) WHERE ROWNUM <= %d", statement, limit), nil
	}
	return fmt.Sprintf("SELECT * FROM (SELECT a_.*, ROWNUM rnum_ FROM (%s) a_ WHERE ROWNUM <= %d) WHERE rnum_ > %d",
		statement, offset+limit, offset), nil
}

// GeneratedValue draws generated ids from the sequence.
func (o *oracle) GeneratedValue(sequence string) (string, bool) {
	if sequence == "" {
		return "", false
	}
	return o.quote(sequence) + ".NEXTVAL", true
}

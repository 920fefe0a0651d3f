package dialect

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
)

// Named is a squirrel.PlaceholderFormat that rewrites '?' markers into named
// parameters :p1, :p2, ... in order of appearance. A doubled '??' is kept as
// a literal '?'.
var Named squirrel.PlaceholderFormat = namedFormat{prefix: ":p"}

type namedFormat struct {
	prefix string
}

func (f namedFormat) ReplacePlaceholders(sql string) (string, error) {
	buf := &bytes.Buffer{}
	i := 0
	for {
		p := strings.Index(sql, "?")
		if p == -1 {
			break
		}
		if len(sql[p:]) > 1 && sql[p:p+2] == "??" {
			buf.WriteString(sql[:p])
			buf.WriteString("?")
			sql = sql[p+2:]
			continue
		}
		i++
		buf.WriteString(sql[:p])
		fmt.Fprintf(buf, "%s%d", f.prefix, i)
		sql = sql[p+1:]
	}
	buf.WriteString(sql)
	return buf.String(), nil
}

// ParameterName returns the name of the n-th (1-based) placeholder.
func ParameterName(n int) string {
	return fmt.Sprintf("p%d", n)
}

package schema

import (
	"fmt"
	"strings"

	"github.com/go-openapi/inflect"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NamingStrategy maps a logical name (entity or property) to a persisted name.
type NamingStrategy interface {
	MappedName(name string) string
}

// NamingStrategyFunc adapts a function to the NamingStrategy interface.
type NamingStrategyFunc func(name string) string

// MappedName implements NamingStrategy.
func (f NamingStrategyFunc) MappedName(name string) string {
	return f(name)
}

var upper = cases.Upper(language.Und)

// UnderscoreSeparatedLowerCase maps "totalPages" to "total_pages". It is the
// default strategy.
var UnderscoreSeparatedLowerCase NamingStrategy = NamingStrategyFunc(func(name string) string {
	return strings.ToLower(inflect.Underscore(name))
})

// UnderscoreSeparatedUpperCase maps "totalPages" to "TOTAL_PAGES".
var UnderscoreSeparatedUpperCase NamingStrategy = NamingStrategyFunc(func(name string) string {
	return upper.String(inflect.Underscore(name))
})

// Raw keeps names unchanged.
var Raw NamingStrategy = NamingStrategyFunc(func(name string) string {
	return name
})

// NamingStrategyByName resolves a strategy from its configuration name.
func NamingStrategyByName(name string) (NamingStrategy, error) {
	switch strings.ToLower(name) {
	case "", "underscore", "underscore_lower", "snake_case":
		return UnderscoreSeparatedLowerCase, nil
	case "underscore_upper", "upper_snake_case":
		return UnderscoreSeparatedUpperCase, nil
	case "raw":
		return Raw, nil
	default:
		return nil, fmt.Errorf("unknown naming strategy '%s'", name)
	}
}

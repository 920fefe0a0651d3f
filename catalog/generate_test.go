package catalog

import (
	"bytes"
	"go/parser"
	"go/token"
	"testing"

	"github.com/asaidimu/go-quarry/core/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateGo(t *testing.T) {
	cat := buildCatalog(t)

	var buf bytes.Buffer
	require.NoError(t, cat.GenerateGo(&buf, "queries"))
	src := buf.String()

	file, err := parser.ParseFile(token.NewFileSet(), "queries.go", src, parser.ParseComments)
	require.NoError(t, err, src)
	assert.Equal(t, "queries", file.Name.Name)

	assert.Contains(t, src, "// Code generated by quarry. DO NOT EDIT.")
	var imports []string
	for _, spec := range file.Imports {
		imports = append(imports, spec.Path.Value)
	}
	assert.Contains(t, imports, `"github.com/asaidimu/go-quarry/core/query"`)

	assert.Contains(t, src, `const Dialect = "h2"`)
	assert.Contains(t, src, "var FindByTitle = &query.QueryResult{")
	assert.Contains(t, src, "query.OperationCount,")
	assert.Contains(t, src, `query.LikePattern("prefix")`)
	assert.Regexp(t, `Value:\s+300,`, src)
	assert.Regexp(t, `"findByTitle":\s+FindByTitle,`, src)
	assert.Regexp(t, `"secondPage":\s+SecondPage,`, src)
}

func TestGenerateGo_Expansion(t *testing.T) {
	cat := &Catalog{Dialect: "h2", Entries: []Entry{{Name: "bySizes", Result: &query.QueryResult{
		Operation: query.OperationSelect,
		Dialect:   "h2",
		Query:     `SELECT 1 FROM "book" WHERE "pages" IN (?)`,
		RawQuery:  `SELECT 1 FROM "book" WHERE "pages" IN (?)`,
		Bindings: []query.ParameterBinding{{
			Name:         "p1",
			Position:     1,
			ArgumentName: "sizes",
			Expansion:    &query.Expansion{Prefix: `"pages" IN (`, Empty: "1=0"},
		}},
	}}}}

	var buf bytes.Buffer
	require.NoError(t, cat.GenerateGo(&buf, "queries"))
	src := buf.String()
	_, err := parser.ParseFile(token.NewFileSet(), "queries.go", src, 0)
	require.NoError(t, err, src)

	assert.Regexp(t, `RawQuery:\s+"SELECT 1 FROM`, src)
	assert.Contains(t, src, "&query.Expansion{")
	assert.Regexp(t, `Empty:\s+"1=0"`, src)
}

func TestGenerateGo_Errors(t *testing.T) {
	result := &query.QueryResult{Operation: query.OperationSelect, Query: "SELECT 1"}

	tests := []struct {
		name    string
		catalog *Catalog
		message string
	}{
		{
			name:    "colliding names",
			catalog: &Catalog{Entries: []Entry{{Name: "find_by_title", Result: result}, {Name: "findByTitle", Result: result}}},
			message: "both map to FindByTitle",
		},
		{
			name:    "reserved name",
			catalog: &Catalog{Entries: []Entry{{Name: "queries", Result: result}}},
			message: "reserved identifier Queries",
		},
		{
			name:    "no identifier characters",
			catalog: &Catalog{Entries: []Entry{{Name: "--", Result: result}}},
			message: "no identifier characters",
		},
		{
			name: "unrenderable literal",
			catalog: &Catalog{Entries: []Entry{{Name: "q", Result: &query.QueryResult{
				Operation: query.OperationSelect,
				Bindings:  []query.ParameterBinding{{Name: "p1", Position: 1, Value: struct{}{}, HasValue: true}},
			}}}},
			message: "cannot render literal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.catalog.GenerateGo(&bytes.Buffer{}, "queries")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestExportedName(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"findByTitle", "FindByTitle"},
		{"find_by_title", "FindByTitle"},
		{"find-books by author", "FindBooksByAuthor"},
		{"2ndPage", "Query2ndPage"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := exportedName(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
